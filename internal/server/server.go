package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"github.com/sealbox/sealbox/internal/auth"
	"github.com/sealbox/sealbox/internal/config"
	"github.com/sealbox/sealbox/internal/download"
	"github.com/sealbox/sealbox/internal/invite"
	"github.com/sealbox/sealbox/internal/metrics"
	"github.com/sealbox/sealbox/internal/middleware"
	"github.com/sealbox/sealbox/internal/object"
	"github.com/sealbox/sealbox/internal/settings"
	"github.com/sealbox/sealbox/internal/sweeper"
	"github.com/sealbox/sealbox/internal/upload"
)

// Server wires every manager over one SQLite database and serves the HTTP
// API. All state lives under config.DataDir: the database file plus one
// directory per object under FilesRoot.
type Server struct {
	config     *config.Config
	db         *sql.DB
	router     *mux.Router
	httpServer *http.Server

	objects   object.Manager
	uploads   upload.Manager
	downloads *download.Issuer
	invites   invite.Manager
	settings  *settings.Manager
	auth      *auth.Manager
	metrics   *metrics.Manager
	sweeper   *sweeper.Worker

	startTime time.Time
}

// New creates a new server instance
func New(cfg *config.Config) (*Server, error) {
	db, err := sql.Open("sqlite", filepath.Join(cfg.DataDir, "sealbox.db"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// modernc.org/sqlite serializes writers itself; a single connection
	// avoids SQLITE_BUSY on concurrent statements.
	db.SetMaxOpenConns(1)

	objectStore, err := object.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize object store: %w", err)
	}

	objectManager, err := object.NewManager(objectStore, cfg.FilesRoot)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize object manager: %w", err)
	}

	inviteStore, err := invite.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize invite store: %w", err)
	}

	settingsManager, err := settings.NewManager(db, logrus.StandardLogger())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize settings manager: %w", err)
	}

	authManager, err := auth.NewManager(db, cfg.Auth.JWTSecret, cfg.Auth.AdminPassword, "sealbox")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize auth manager: %w", err)
	}

	s := &Server{
		config:    cfg,
		db:        db,
		objects:   objectManager,
		uploads:   upload.NewManager(objectManager),
		downloads: download.NewIssuer(),
		invites:   invite.NewManager(inviteStore),
		settings:  settingsManager,
		auth:      authManager,
		metrics:   metrics.NewManager(),
		startTime: time.Now(),
	}

	s.sweeper = sweeper.NewWorker(s.objects, s.invites, s.uploads)
	s.sweeper.OnSweep(func(r sweeper.Result) {
		s.metrics.RecordSweep(r.ObjectsPurged, r.LinksPurged, r.SessionsPurged, r.BytesReclaimed)
	})

	s.setupRoutes()

	return s, nil
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	sweepInterval := time.Duration(s.config.SweepInterval) * time.Second
	if sweepInterval <= 0 {
		sweepInterval = sweeper.DefaultInterval
	}
	s.sweeper.Start(ctx, sweepInterval)

	s.httpServer = &http.Server{
		Addr:         s.config.Listen,
		Handler:      handlers.RecoveryHandler()(s.router),
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	errChan := make(chan error, 1)
	go func() {
		logrus.WithFields(logrus.Fields{
			"listen": s.config.Listen,
			"tls":    s.config.EnableTLS,
		}).Info("Starting Sealbox server")

		var err error
		if s.config.EnableTLS {
			err = s.httpServer.ListenAndServeTLS(s.config.CertFile, s.config.KeyFile)
		} else {
			err = s.httpServer.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		logrus.Info("Shutting down server...")
		return s.shutdown()
	}
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.sweeper.Stop()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logrus.WithError(err).Error("HTTP server shutdown error")
		}
	}

	if err := s.db.Close(); err != nil {
		logrus.WithError(err).Error("Database close error")
	}

	logrus.Info("Server stopped")
	return nil
}

func (s *Server) setupRoutes() {
	router := mux.NewRouter()
	router.Use(middleware.CORS())
	router.Use(middleware.Logging(s.metrics))

	router.HandleFunc("/", s.handleInfo).Methods("GET")
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	if s.config.Metrics.Enable {
		router.Handle(s.config.Metrics.Path, s.metrics.Handler()).Methods("GET")
	}

	api := router.PathPrefix("/api").Subrouter()

	// Object lifecycle
	api.HandleFunc("/objects", s.handleCreate).Methods("POST", "OPTIONS")
	api.HandleFunc("/objects/{id}/open", s.handleOpen).Methods("POST", "OPTIONS")
	api.HandleFunc("/objects/{id}", s.handleDestroy).Methods("DELETE", "OPTIONS")

	// Multipart uploads
	api.HandleFunc("/objects/{id}/uploads", s.handleUploadStart).Methods("POST", "OPTIONS")
	api.HandleFunc("/objects/{id}/uploads/{uploadId}/parts/{partIndex}", s.handleUploadPart).Methods("PUT", "OPTIONS")
	api.HandleFunc("/objects/{id}/uploads/{uploadId}/complete", s.handleUploadComplete).Methods("POST", "OPTIONS")
	api.HandleFunc("/objects/{id}/uploads/{uploadId}", s.handleUploadAbort).Methods("DELETE", "OPTIONS")

	// Downloads
	api.HandleFunc("/objects/{id}/files/{filename}/token", s.handleDownloadIssue).Methods("POST", "OPTIONS")
	api.HandleFunc("/download/{token}", s.handleDownloadRedeem).Methods("GET")

	// Invite pre-flight (public, non-consuming)
	api.HandleFunc("/invites/{token}/check", s.handleInviteCheck).Methods("GET", "OPTIONS")

	// Admin session
	api.HandleFunc("/auth/login", s.handleLogin).Methods("POST", "OPTIONS")
	api.HandleFunc("/auth/refresh", s.handleRefresh).Methods("POST", "OPTIONS")

	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(s.requireAuth)

	admin.HandleFunc("/auth/password", s.handleChangePassword).Methods("POST", "OPTIONS")
	admin.HandleFunc("/auth/2fa", s.handleTwoFAStatus).Methods("GET", "OPTIONS")
	admin.HandleFunc("/auth/2fa/setup", s.handleTwoFASetup).Methods("POST", "OPTIONS")
	admin.HandleFunc("/auth/2fa/enable", s.handleTwoFAEnable).Methods("POST", "OPTIONS")
	admin.HandleFunc("/auth/2fa/disable", s.handleTwoFADisable).Methods("POST", "OPTIONS")

	admin.HandleFunc("/keys", s.handleListAPIKeys).Methods("GET", "OPTIONS")
	admin.HandleFunc("/keys", s.handleCreateAPIKey).Methods("POST", "OPTIONS")
	admin.HandleFunc("/keys/{id}", s.handleDeleteAPIKey).Methods("DELETE", "OPTIONS")

	admin.HandleFunc("/settings", s.handleListSettings).Methods("GET", "OPTIONS")
	admin.HandleFunc("/settings", s.handleUpdateSettings).Methods("PUT", "OPTIONS")

	admin.HandleFunc("/invites", s.handleInviteCreate).Methods("POST", "OPTIONS")
	admin.HandleFunc("/invites", s.handleInviteList).Methods("GET", "OPTIONS")
	admin.HandleFunc("/invites/{token}/label", s.handleInviteUpdateLabel).Methods("PUT", "OPTIONS")
	admin.HandleFunc("/invites/{token}", s.handleInviteDelete).Methods("DELETE", "OPTIONS")

	admin.HandleFunc("/stats", s.handleStats).Methods("GET", "OPTIONS")
	admin.HandleFunc("/objects", s.handleAdminListObjects).Methods("GET", "OPTIONS")
	admin.HandleFunc("/objects/{id}", s.handleAdminDeleteObject).Methods("DELETE", "OPTIONS")
	admin.HandleFunc("/objects", s.handleAdminDeleteAll).Methods("DELETE", "OPTIONS")

	s.router = router
}

// requireAuth gates admin routes behind a bearer token or API key.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == "OPTIONS" {
			next.ServeHTTP(w, r)
			return
		}
		if !s.auth.Authenticated(r) {
			s.writeError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
