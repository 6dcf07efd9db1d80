// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/authcore/internal/config"
	"codeberg.org/oliverandrich/authcore/internal/database"
	"codeberg.org/oliverandrich/authcore/internal/handlers"
	"codeberg.org/oliverandrich/authcore/internal/i18n"
	"codeberg.org/oliverandrich/authcore/internal/metrics"
	"codeberg.org/oliverandrich/authcore/internal/repository"
	"codeberg.org/oliverandrich/authcore/internal/services/auth"
	"codeberg.org/oliverandrich/authcore/internal/services/email"
	"codeberg.org/oliverandrich/authcore/internal/services/password"
	"codeberg.org/oliverandrich/authcore/internal/services/session"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v3"
)

var errMissingSMTP = errors.New("smtp-host is required in production")

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	SetupLogger(cfg.Log.Level, cfg.Log.Format)

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
		"env", cfg.App.Env,
	)

	// Database
	db, err := database.Open(cfg.Database.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("failed to close database", "error", closeErr)
		}
	}()

	// i18n
	if initErr := i18n.Init(); initErr != nil {
		return fmt.Errorf("failed to init i18n: %w", initErr)
	}

	repo := repository.New(db)

	e, err := New(cfg, repo, metrics.NewRegistry())
	if err != nil {
		return err
	}

	return startWithGracefulShutdown(ctx, e, cfg)
}

// New builds the Echo instance with middleware and routes wired to repo.
func New(cfg *config.Config, repo *repository.Repository, reg *prometheus.Registry) (*echo.Echo, error) {
	sessions, err := session.NewManager(&cfg.Session, cfg.IsProduction())
	if err != nil {
		return nil, fmt.Errorf("failed to create session manager: %w", err)
	}

	sender, err := newSender(cfg)
	if err != nil {
		return nil, err
	}

	svc := auth.NewService(repo, sender, password.NewHasher(), sessions)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	setupMiddleware(e, cfg)
	setupRoutes(e, repo, svc, sessions, reg)

	return e, nil
}

// newSender picks SMTP delivery, or the console in development when no
// SMTP host is configured.
func newSender(cfg *config.Config) (auth.Notifier, error) {
	if cfg.SMTP.Host == "" {
		if cfg.IsProduction() {
			return nil, errMissingSMTP
		}
		slog.Warn("no smtp host configured, mails are written to stdout")
		return email.NewConsoleSender(os.Stdout, cfg.SMTP.From), nil
	}

	svc, err := email.NewService(&cfg.SMTP)
	if err != nil {
		return nil, fmt.Errorf("failed to create mail service: %w", err)
	}
	return svc, nil
}

func setupRoutes(e *echo.Echo, repo *repository.Repository, svc *auth.Service, sessions *session.Manager, reg *prometheus.Registry) {
	h := handlers.New(repo)
	authH := handlers.NewAuth(svc, sessions)
	userH := handlers.NewUser(svc)
	requireAuth := RequireAuth(svc, sessions)

	e.GET("/", h.Home)
	e.GET("/health", h.Health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(reg)))

	a := e.Group("/auth")
	a.POST("/register", authH.Register)
	a.POST("/login", authH.Login)
	a.POST("/logout", authH.Logout)
	a.POST("/send-reset-otp", authH.SendResetOtp)
	a.POST("/reset-password", authH.ResetPassword)
	a.POST("/send-verify-otp", authH.SendVerifyOtp, requireAuth)
	a.POST("/verify-account", authH.VerifyAccount, requireAuth)
	a.POST("/is-auth", authH.IsAuth, requireAuth)
	a.POST("/send-delete-account-otp", authH.SendDeleteAccountOtp, requireAuth)
	a.DELETE("/delete-account", authH.DeleteAccount, requireAuth)

	u := e.Group("/user", requireAuth)
	u.POST("/data", userH.Data)
}

func startWithGracefulShutdown(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	// Setup TLS
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	// Channel for server errors
	errChan := make(chan error, 2)

	// HTTP redirect server for ACME mode
	var httpServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		// HTTPS on :443
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, ":443", tlsResult.Config); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.ChallengeHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP to HTTPS redirect active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeManual:
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		go func() {
			slog.Info("Server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(e, addr, tlsResult.Config); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	// Wait for interrupt signal, cancellation or error
	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case <-sigCtx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.Server.Serve(e.TLSListener)
}
