package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/adoptly/apiserver/internal/auth"
	"github.com/adoptly/apiserver/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

// UserHandler provides HTTP handlers for accounts and their listings.
type UserHandler struct {
	users    Accounts
	animals  Listings
	sessions *auth.Sessions
	log      logrus.FieldLogger
}

func NewUserHandler(users Accounts, animals Listings, sessions *auth.Sessions, log logrus.FieldLogger) *UserHandler {
	return &UserHandler{
		users:    users,
		animals:  animals,
		sessions: sessions,
		log:      log,
	}
}

// UserRouter registers account routes on the given router.
func UserRouter(
	r chi.Router,
	users Accounts,
	animals Listings,
	sessions *auth.Sessions,
	log logrus.FieldLogger,
) {
	handler := NewUserHandler(users, animals, sessions, log)
	authMiddleware := RequireAuth(sessions)

	r.With(authMiddleware, handler.requireAdmin).Get("/", handler.ListUsers)
	r.Route("/me", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Put("/", handler.UpdateMe)
		r.Delete("/", handler.DeleteMe)
		r.Get("/animals", handler.ListMyAnimals)
	})
	r.Get("/{userID}", handler.GetUser)
	r.Get("/{userID}/animals", handler.ListUserAnimals)
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// GetUser returns the public profile of a listing owner.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	user, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *UserHandler) ListMyAnimals(w http.ResponseWriter, r *http.Request) {
	animals, err := h.animals.ListMine(r.Context(), auth.FromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, animals)
}

func (h *UserHandler) ListUserAnimals(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUUIDParam(r, "userID")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	animals, err := h.animals.ListByOwner(r.Context(), userID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, animals)
}

// UpdateMe edits the caller's profile. A fresh token is returned because
// the session subject is the email, which may have changed.
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r, h.users)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	var req UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	updated, err := h.users.UpdateUser(r.Context(), me.ID, services.UserFields{
		Username: req.Username,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Image:    req.Image,
	})
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	token, err := h.sessions.Issue(updated.Email)
	if err != nil {
		logRequestError(h.log, r, err)
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Token: token, User: updated})
}

func (h *UserHandler) DeleteMe(w http.ResponseWriter, r *http.Request) {
	me, err := currentUser(r, h.users)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	if err := h.users.DeleteUser(r.Context(), me.ID); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := currentUser(r, h.users)
		if err != nil {
			writeServiceError(w, r, h.log, err)
			return
		}
		if !user.IsAdmin {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// UpdateUserRequest carries the profile fields to change. Omitted fields
// are left as they are.
type UpdateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Phone    *string `json:"phone"`
	Password *string `json:"password"`
	Image    *string `json:"image"`
}
