package handler

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/sumire/defects/internal/domain"
	"github.com/sumire/defects/internal/logging"
	"github.com/sumire/defects/internal/metrics"
	"github.com/sumire/defects/internal/service"
)

const (
	contextKeyIdentity = "identity"
)

// TokenVerifier resolves a bearer token to the calling user.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// RequestLogger attaches a request-scoped logger to the request context, then
// logs and counts each HTTP request once the error handler has written it.
// It must run after the request ID middleware.
func RequestLogger(base *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			logger := base.With("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
			c.SetRequest(req.WithContext(logging.WithContext(req.Context(), logger)))

			if err := next(c); err != nil {
				c.Error(err)
			}

			elapsed := time.Since(start)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			status := c.Response().Status
			metrics.ObserveRequest(req.Method, route, status, elapsed)

			attrs := []any{
				"method", req.Method,
				"path", req.URL.Path,
				"status", status,
				"duration_ms", elapsed.Milliseconds(),
			}
			if id, ok := CurrentUser(c); ok {
				attrs = append(attrs, "user_id", id.ID)
			}
			logger.Info("http request", attrs...)
			return nil
		}
	}
}

// JWTAuth validates the Bearer token and injects the caller's identity into echo context.
func JWTAuth(verifier TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return domain.ErrUnauthorized
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				return domain.ErrUnauthorized
			}

			ctx := c.Request().Context()
			identity, err := verifier.Verify(ctx, strings.TrimSpace(parts[1]))
			if err != nil {
				return err
			}

			c.Set(contextKeyIdentity, identity)
			logger := logging.FromContext(ctx).With("user_id", identity.ID)
			c.SetRequest(c.Request().WithContext(logging.WithContext(ctx, logger)))
			return next(c)
		}
	}
}

// RequireAction rejects callers whose role the access policy does not admit for action.
func RequireAction(action service.Action) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identity, ok := CurrentUser(c)
			if !ok {
				return domain.ErrUnauthorized
			}
			if !service.Allowed(identity.Role, action) {
				return domain.ErrForbidden
			}
			return next(c)
		}
	}
}

// CurrentUser extracts the authenticated identity from echo context.
func CurrentUser(c echo.Context) (domain.Identity, bool) {
	id, ok := c.Get(contextKeyIdentity).(domain.Identity)
	return id, ok
}
