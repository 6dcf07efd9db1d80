// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/authcore/internal/appcontext"
	"codeberg.org/oliverandrich/authcore/internal/config"
	"codeberg.org/oliverandrich/authcore/internal/handlers"
	"codeberg.org/oliverandrich/authcore/internal/i18n"
	"codeberg.org/oliverandrich/authcore/internal/services/auth"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SessionChecker resolves a session token to the account it belongs to.
type SessionChecker interface {
	CheckSession(ctx context.Context, token string) (string, error)
}

// TokenSource extracts the raw session token of a request.
type TokenSource interface {
	TokenFromRequest(r *http.Request) string
}

func setupMiddleware(e *echo.Echo, cfg *config.Config) {
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	e.Use(corsMiddleware(cfg))
	e.Use(customContext())
	e.Use(i18nMiddleware())
}

// corsMiddleware allows the configured frontends to send the session cookie.
func corsMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{echo.HeaderContentType, echo.HeaderAuthorization, "Accept-Language"},
		AllowCredentials: true,
	})
}

// customContext wraps the Echo context with our custom Context.
func customContext() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			return next(&appcontext.Context{Context: c})
		}
	}
}

// RequireAuth rejects requests without a valid session and stores the
// account id on the custom context. A missing token is 401, a present but
// invalid or expired one is 403.
func RequireAuth(checker SessionChecker, tokens TokenSource) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			accountID, err := checker.CheckSession(c.Request().Context(), tokens.TokenFromRequest(c.Request()))
			if err != nil {
				if !errors.Is(err, auth.ErrNoToken) {
					slog.Info("session_rejected", "error", err, "path", c.Path())
				}
				return handlers.Error(c, err, "Forbidden")
			}

			if cc, ok := c.(*appcontext.Context); ok {
				cc.AccountID = accountID
				return next(cc)
			}
			return next(&appcontext.Context{Context: c, AccountID: accountID})
		}
	}
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRequestID: true,
		HandleError:  true,
		Skipper: func(c echo.Context) bool {
			return c.Path() == "/health" || c.Path() == "/metrics"
		},
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}

			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				slog.LogAttrs(c.Request().Context(), slog.LevelError, "request", attrs...)
			} else {
				slog.LogAttrs(c.Request().Context(), slog.LevelInfo, "request", attrs...)
			}

			return nil
		},
	})
}

// i18nMiddleware sets the locale based on Accept-Language header.
func i18nMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			acceptLang := c.Request().Header.Get("Accept-Language")
			lang := i18n.MatchLanguage(acceptLang)
			ctx := i18n.WithLocale(c.Request().Context(), lang)
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	}
}
