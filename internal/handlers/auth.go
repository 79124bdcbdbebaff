package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/adoptly/apiserver/internal/auth"
	"github.com/adoptly/apiserver/internal/services"
	"github.com/adoptly/apiserver/types"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Accounts is the account behaviour the HTTP layer needs.
type Accounts interface {
	CreateUser(ctx context.Context, fields services.UserFields) (types.User, error)
	Authenticate(ctx context.Context, email, password string) (types.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (types.User, error)
	GetByEmail(ctx context.Context, email string) (types.User, error)
	UpdateUser(ctx context.Context, id uuid.UUID, fields services.UserFields) (types.User, error)
	DeleteUser(ctx context.Context, id uuid.UUID) error
	ListUsers(ctx context.Context) ([]types.User, error)
}

// AuthHandler provides JWT authentication endpoints.
type AuthHandler struct {
	users    Accounts
	sessions *auth.Sessions
	log      logrus.FieldLogger
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users Accounts, sessions *auth.Sessions, log logrus.FieldLogger) *AuthHandler {
	return &AuthHandler{
		users:    users,
		sessions: sessions,
		log:      log,
	}
}

// AuthRouter registers auth routes on the given router.
func AuthRouter(r chi.Router, users Accounts, sessions *auth.Sessions, log logrus.FieldLogger) {
	handler := NewAuthHandler(users, sessions, log)

	r.Post("/register", handler.Register)
	r.Post("/login", handler.Login)
	r.With(RequireAuth(sessions)).Get("/me", handler.Me)
}

// RequireAuth rejects requests without a valid bearer token and stores the
// caller identity in the request context.
func RequireAuth(sessions *auth.Sessions) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := sessions.FromRequest(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

// Register creates a new user account and returns a JWT.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	user, err := h.users.CreateUser(r.Context(), services.UserFields{
		Username: &req.Username,
		Email:    &req.Email,
		Phone:    &req.Phone,
		Password: &req.Password,
		Image:    &req.Image,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	h.respondWithToken(w, r, http.StatusCreated, user)
}

// Login verifies credentials and returns a JWT.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	h.respondWithToken(w, r, http.StatusOK, user)
}

// Me returns the current authenticated user.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r, h.users)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) respondWithToken(w http.ResponseWriter, r *http.Request, status int, user types.User) {
	token, err := h.sessions.Issue(user.Email)
	if err != nil {
		logRequestError(h.log, r, err)
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, status, AuthResponse{Token: token, User: user})
}

// currentUser resolves the session identity to a stored user.
func currentUser(r *http.Request, users Accounts) (types.User, error) {
	identity := auth.FromContext(r.Context())
	if identity == nil {
		return types.User{}, services.ErrUnauthorized
	}
	user, err := users.GetByEmail(r.Context(), identity.Email)
	if errors.Is(err, services.ErrNotFound) {
		return types.User{}, services.ErrUnauthorized
	}
	return user, err
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
	Image    string `json:"image"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token string     `json:"token"`
	User  types.User `json:"user"`
}
