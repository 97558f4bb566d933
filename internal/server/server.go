package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/readshelf/apiserver/config"
	"github.com/readshelf/apiserver/internal/db"
	"github.com/readshelf/apiserver/internal/handlers"
	"github.com/readshelf/apiserver/internal/logger"
	"github.com/readshelf/apiserver/internal/mq"
	"github.com/readshelf/apiserver/internal/openlibrary"
	"github.com/readshelf/apiserver/internal/security"
	"github.com/readshelf/apiserver/internal/services"
	"github.com/readshelf/apiserver/internal/storage"
	"github.com/readshelf/apiserver/internal/store"
)

// Server wraps the HTTP server and router.
type Server struct {
	httpServer *http.Server
	db         *sql.DB
	covers     *storage.Storage
	mq         *mq.MQ
	log        *logger.Logger
}

// New connects every backing service and builds the router.
func New(ctx context.Context, cfg config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}

	dbConn, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	covers, err := storage.NewFromConfig(ctx, cfg.Storage)
	if err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("init cover storage: %w", err)
	}

	broker, err := mq.NewFromConfig(ctx, cfg.MQ, log)
	if err != nil {
		_ = covers.Close()
		_ = dbConn.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	txManager := store.NewTxManager(dbConn)
	userRepo := store.NewUserRepository(dbConn)
	bookRepo := store.NewBookRepository(dbConn)
	shelfRepo := store.NewShelfRepository(dbConn)

	tokens := security.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	hasher := security.PasswordHasher{Cost: cfg.Auth.BcryptCost}
	library := openlibrary.NewClient(cfg.OpenLibrary, openlibrary.WithLogger(log))

	bookOpts := []services.BookOption{
		services.WithBookLogger(log),
		services.WithCatalogEvents(mq.NewEventPublisher(broker, cfg.MQ.EventsChannel, log)),
	}
	if covers != nil {
		bookOpts = append(bookOpts, services.WithCoverMirror(covers, library))
		log.Infow("cover mirroring enabled", "backend", cfg.Storage.Backend, "bucket", covers.Bucket())
	}
	if broker != nil {
		log.Infow("catalog events enabled", "backend", cfg.MQ.Backend, "channel", cfg.MQ.EventsChannel)
	}

	userService := services.NewUserService(userRepo, txManager, hasher, tokens)
	bookService := services.NewBookService(bookRepo, txManager, library, bookOpts...)
	shelfService := services.NewShelfService(shelfRepo, bookRepo, txManager)

	authMiddleware := handlers.RequireAuth(userService, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Recoverer,
		handlers.RequestLogger(log),
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Route("/auth", func(r chi.Router) {
		handlers.AuthRouter(r, userService, log)
	})
	router.Route("/books", func(r chi.Router) {
		handlers.BookRouter(r, bookService, authMiddleware, log)
	})
	router.Route("/users", func(r chi.Router) {
		handlers.UserRouter(r, userService, authMiddleware, log)
	})
	router.Route("/shelf", func(r chi.Router) {
		handlers.ShelfRouter(r, shelfService, authMiddleware, log)
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		db:         dbConn,
		covers:     covers,
		mq:         broker,
		log:        log,
	}, nil
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	s.log.Infow("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then closes the broker, cover storage
// and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.mq != nil {
		if closeErr := s.mq.Close(); closeErr != nil {
			s.log.Warnw("close message queue", "error", closeErr)
		}
	}
	if closeErr := s.covers.Close(); closeErr != nil {
		s.log.Warnw("close cover storage", "error", closeErr)
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
