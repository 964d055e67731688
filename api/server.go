package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"fintechx-ops/config"
	"fintechx-ops/core/auth"
	"fintechx-ops/core/batch"
	"fintechx-ops/core/fraud"
	"fintechx-ops/core/rbac"
	"fintechx-ops/core/store"
	"fintechx-ops/core/utils"
)

type Server struct {
	cfg        *config.AppConfig
	router     chi.Router
	httpServer *http.Server
	logger     *utils.Logger
	db         *sql.DB

	policy    *rbac.Policy
	authority *auth.Authority
	batches   *batch.Engine
	fraud     *fraud.Engine
	audits    store.AuditStore
	archive   store.BatchArchiveStore

	loginLimiter *requestLimiter
}

func NewServer(cfg *config.AppConfig, db *sql.DB, logger *utils.Logger) (*Server, error) {
	policy, err := rbac.NewPolicy()
	if err != nil {
		return nil, err
	}
	audits := store.NewAuditStore(db)
	archive := store.NewBatchArchiveStore(db)
	authority := auth.NewAuthority(cfg.Auth, cfg.Pepper, policy, audits, logger)
	batches := batch.NewEngine(archive, logger)
	fraudEngine := fraud.NewEngine(cfg.Fraud, logger)

	s := &Server{
		cfg:          cfg,
		router:       chi.NewRouter(),
		logger:       logger,
		db:           db,
		policy:       policy,
		authority:    authority,
		batches:      batches,
		fraud:        fraudEngine,
		audits:       audits,
		archive:      archive,
		loginLimiter: newLimiter(10, time.Minute),
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) Authority() *auth.Authority { return s.authority }
func (s *Server) Batches() *batch.Engine     { return s.batches }
func (s *Server) Fraud() *fraud.Engine       { return s.fraud }
func (s *Server) Handler() http.Handler      { return s.router }

func (s *Server) Start() error {
	if err := s.fraud.StartSweeper(); err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:         s.cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.logger.Printf("listening on %s", s.cfg.ListenAddr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	s.fraud.StopSweeper()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.securityHeadersMiddleware)

	s.registerObservabilityRoutes()

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(s.withSession)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/password", s.handleChangePassword)

			r.Route("/users", func(r chi.Router) {
				r.With(s.requirePermission(rbac.PermManageUsers)).Get("/", s.handleListUsers)
				r.With(s.requirePermission(rbac.PermManageUsers)).Post("/", s.handleCreateUser)
				r.With(s.requirePermission(rbac.PermExportData)).Get("/export", s.handleExportUsers)
				r.With(s.requirePermission(rbac.PermManageUsers)).Post("/import", s.handleImportUsers)
				r.With(s.requirePermission(rbac.PermManageUsers)).Get("/{id}", s.handleGetUser)
				r.With(s.requirePermission(rbac.PermManageUsers)).Patch("/{id}", s.handleUpdateUser)
				r.With(s.requirePermission(rbac.PermManageUsers)).Delete("/{id}", s.handleDeleteUser)
				r.With(s.requirePermission(rbac.PermManageUsers)).Post("/{id}/lock", s.handleLockUser)
				r.With(s.requirePermission(rbac.PermManageUsers)).Post("/{id}/unlock", s.handleUnlockUser)
				r.With(s.requirePermission(rbac.PermManageUsers)).Post("/{id}/activate", s.handleActivateUser)
				r.With(s.requirePermission(rbac.PermManageUsers)).Post("/{id}/deactivate", s.handleDeactivateUser)
				r.With(s.requirePermission(rbac.PermManageUsers)).Post("/{id}/reset-password", s.handleResetPassword)
			})

			r.Route("/batches", func(r chi.Router) {
				r.With(s.requirePermission(rbac.PermProcessPayments)).Get("/", s.handleListBatches)
				r.With(s.requirePermission(rbac.PermProcessPayments)).Post("/", s.handleCreateBatch)
				r.With(s.requirePermission(rbac.PermProcessPayments)).Post("/import", s.handleImportBatchCSV)
				r.With(s.requirePermission(rbac.PermViewReports)).Get("/archive", s.handleListArchivedBatches)
				r.With(s.requirePermission(rbac.PermViewReports)).Get("/archive/{id}", s.handleGetArchivedBatch)
				r.With(s.requirePermission(rbac.PermProcessPayments)).Get("/{id}", s.handleGetBatch)
				r.With(s.requirePermission(rbac.PermProcessPayments)).Post("/{id}/start", s.handleStartBatch)
				r.With(s.requirePermission(rbac.PermProcessPayments)).Delete("/{id}", s.handleDeleteBatch)
				r.With(s.requirePermission(rbac.PermProcessPayments)).Get("/{id}/progress", s.handleBatchProgress)
				r.With(s.requirePermission(rbac.PermExportData)).Get("/{id}/export", s.handleExportBatch)
			})

			r.Route("/fraud", func(r chi.Router) {
				r.With(s.requirePermission(rbac.PermFraudManagement)).Post("/evaluate", s.handleEvaluateTransaction)
				r.With(s.requirePermission(rbac.PermFraudManagement)).Get("/rules", s.handleListFraudRules)
				r.With(s.requirePermission(rbac.PermFraudManagement)).Post("/rules", s.handleAddFraudRule)
				r.With(s.requirePermission(rbac.PermFraudManagement)).Delete("/rules/{name}", s.handleRemoveFraudRule)
			})

			r.With(s.requirePermission(rbac.PermViewReports)).Get("/audit", s.handleListAudit)
		})
	})
}
