package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/adoptly/apiserver/config"
	"github.com/adoptly/apiserver/internal/auth"
	"github.com/adoptly/apiserver/internal/cache"
	"github.com/adoptly/apiserver/internal/db"
	"github.com/adoptly/apiserver/internal/handlers"
	"github.com/adoptly/apiserver/internal/mq"
	"github.com/adoptly/apiserver/internal/services"
	"github.com/adoptly/apiserver/internal/storage"
	"github.com/adoptly/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	cache      *cache.Cache
	mq         *mq.MQ
	log        *logrus.Logger

	stopListener context.CancelFunc
	listenerDone sync.WaitGroup
}

// New constructs a Server with its dependencies, middleware and routes.
func New(ctx context.Context, cfg config.Config, log *logrus.Logger) (*Server, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	blobs, err := newStorage(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}

	log.WithFields(logrus.Fields{
		"backend": cfg.Storage.Backend,
		"bucket":  blobs.Bucket(),
	}).Info("blob storage ready")

	listingCache, err := cache.New(ctx, cfg.Redis)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	queue, err := newMQ(ctx, cfg.MQ)
	if err != nil {
		_ = listingCache.Close()
		_ = dbConn.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	animalRepo := store.NewAnimalRepository(dbConn)
	photoRepo := store.NewPhotoRepository(dbConn)
	userRepo := store.NewUserRepository(dbConn)

	invalidator := cache.NewInvalidator(listingCache, queue, cfg.MQ.InvalidationChannel, log)
	animalService := services.NewAnimalService(services.AnimalServiceDeps{
		Animals:     animalRepo,
		Photos:      photoRepo,
		Users:       userRepo,
		Blobs:       blobs,
		Cache:       listingCache,
		Invalidator: invalidator,
		Log:         log,
		Timeout:     cfg.OperationTimeout,
	})
	userService := services.NewUserService(userRepo, blobs, invalidator, log, cfg.OperationTimeout)

	sessions := auth.NewSessions(cfg.JWTSecret, cfg.TokenTTL)
	authMiddleware := handlers.RequireAuth(sessions)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		middleware.Logger,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Get("/uploads/*", handlers.ServeUploads(blobs, log))
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, sessions, log)
	})
	router.Route("/animals", func(r chi.Router) {
		handlers.AnimalRouter(r, animalService, authMiddleware, log, cfg.MaxUploadBytes)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, animalService, sessions, log)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s := &Server{
		httpServer: httpServer,
		db:         dbConn,
		cache:      listingCache,
		mq:         queue,
		log:        log,
	}
	s.startListener(cfg.MQ.InvalidationChannel)
	return s, nil
}

// Start runs the HTTP server.
func (s *Server) Start() error {
	s.log.WithField("addr", s.httpServer.Addr).Info("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, stops the invalidation listener and
// releases the connections.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)

	if s.stopListener != nil {
		s.stopListener()
	}
	if s.mq != nil {
		_ = s.mq.Close()
	}
	s.listenerDone.Wait()

	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}

// startListener evicts cached listings invalidated by other replicas.
func (s *Server) startListener(channel string) {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopListener = cancel
	s.listenerDone.Add(1)
	go func() {
		defer s.listenerDone.Done()
		err := cache.Listen(ctx, s.mq, channel, s.cache, s.log)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.log.WithError(err).Error("invalidation listener stopped")
		}
	}()
}

func newStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Storage, error) {
	var (
		backend storage.ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case "", "local":
		backend, err = storage.NewLocalClient(cfg.UploadDir)
	case "minio":
		backend, err = storage.NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = storage.NewGCSClient(ctx, cfg.GCS)
	case "azure":
		backend, err = storage.NewAzureClient(cfg.Azure)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	blobs := storage.NewStorage(backend)
	if err := blobs.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return blobs, nil
}

func newMQ(ctx context.Context, cfg config.MQConfig) (*mq.MQ, error) {
	switch cfg.Backend {
	case "", "none", "memory":
		return mq.New(mq.NewMemoryClient()), nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub, instanceID())
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, err
		}
		return mq.New(client), nil
	default:
		return nil, fmt.Errorf("unknown message queue backend %q", cfg.Backend)
	}
}

func instanceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return uuid.NewString()
}
