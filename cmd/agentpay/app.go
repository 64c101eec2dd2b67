package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ntduong/agentpay/internal/apperrors"
	"github.com/ntduong/agentpay/internal/handlers"
	"github.com/ntduong/agentpay/internal/logger"
	"github.com/ntduong/agentpay/internal/repository"
	"github.com/ntduong/agentpay/internal/repository/postgres"
	"github.com/ntduong/agentpay/internal/service/auth"
	"github.com/ntduong/agentpay/internal/service/quota"
	"github.com/ntduong/agentpay/internal/service/settlement"
)

type ServerApp struct {
	ListenAddr string
	Handler    http.Handler

	logger  logger.Logger
	sweeper *quota.Sweeper
	close   func()
}

func NewServerApp(ctx context.Context, c *Config) (*ServerApp, error) {
	l := logger.New(c.LogLevel)
	if c.Environment == envProduction {
		l = logger.NewJSON(c.LogLevel)
	}

	// Connect to the database and run migrations
	pool, err := repository.ConnectAndMigrate(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("error while connecting to db. Err: %w", err)
	}

	// Initialize repositories
	storage := postgres.NewStorage(pool)

	// Initialize services
	authService, err := auth.NewService(auth.Config{SecretKey: c.SecretKey}, storage.Users())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("error while creating auth service. Err: %w", err)
	}
	settlementService := settlement.NewService(storage, l)
	quotaService := quota.NewService(storage, l)
	sweeper := quota.NewSweeper(storage, l, c.SweepSchedule)

	if err := bootstrapAdmin(ctx, c, authService, l); err != nil {
		pool.Close()
		return nil, err
	}

	mux := handlers.NewRouter(authService, settlementService, quotaService, l)

	return &ServerApp{
		ListenAddr: c.ListenAddr,
		Handler:    mux,
		logger:     l,
		sweeper:    sweeper,
		close:      pool.Close,
	}, nil
}

// bootstrapAdmin creates the configured admin account if it doesn't exist yet
func bootstrapAdmin(ctx context.Context, c *Config, authService *auth.Service, l logger.Logger) error {
	if c.AdminUsername == "" || c.AdminPassword == "" {
		return nil
	}

	_, _, err := authService.Register(ctx, c.AdminUsername, c.AdminPassword, true)
	switch {
	case err == nil:
		l.Info("admin account created", "username", c.AdminUsername)
		return nil
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		return nil
	default:
		return fmt.Errorf("error while creating admin account. Err: %w", err)
	}
}

// Run starts http server and closes gracefully on context cancellation
func (s *ServerApp) Run(ctx context.Context) error {
	defer s.close()

	if err := s.sweeper.Start(); err != nil {
		return fmt.Errorf("error while starting expiry sweeper. Err: %w", err)
	}
	defer s.sweeper.Stop()

	httpServer := &http.Server{
		Addr:    s.ListenAddr,
		Handler: s.Handler,
	}

	idleConnsClosed := make(chan struct{})
	srvCtx, srvCtxCancel := context.WithCancel(ctx)
	defer srvCtxCancel()

	go func() {
		<-srvCtx.Done()

		timeoutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(timeoutCtx); err == context.DeadlineExceeded {
			s.logger.Error("HTTP server shutdown timeout exceeded, forcing shutdown...")
		}
		s.logger.Info("HTTP server stopped")
		close(idleConnsClosed)
	}()

	// Listen and serve until context is cancelled; then close gracefully connections
	s.logger.Info("Starting server", "addr", s.ListenAddr)
	err := httpServer.ListenAndServe()
	srvCtxCancel()
	<-idleConnsClosed

	return err
}
