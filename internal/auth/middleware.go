package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/straye-as/blob-processor/internal/config"
	"go.uber.org/zap"
)

// TokenValidator validates a bearer token
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*Delivery, error)
}

// Middleware authenticates Event Grid deliveries
type Middleware struct {
	enabled   bool
	validator TokenValidator
	logger    *zap.Logger
}

// NewMiddleware creates a new authentication middleware
func NewMiddleware(cfg *config.EventGridConfig, logger *zap.Logger) *Middleware {
	return NewMiddlewareWithValidator(cfg.AuthEnabled, NewDeliveryValidator(cfg), logger)
}

// NewMiddlewareWithValidator creates a middleware with a custom validator
func NewMiddlewareWithValidator(enabled bool, validator TokenValidator, logger *zap.Logger) *Middleware {
	return &Middleware{
		enabled:   enabled,
		validator: validator,
		logger:    logger,
	}
}

// Authenticate requires a valid bearer token when delivery auth is enabled.
// When disabled every request passes through unchanged.
func (m *Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized: missing authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			http.Error(w, "Unauthorized: invalid authorization header format", http.StatusUnauthorized)
			return
		}

		delivery, err := m.validator.ValidateToken(r.Context(), parts[1])
		if err != nil {
			m.logger.Warn("token validation failed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
				zap.Error(err),
			)
			http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
			return
		}

		m.logger.Debug("delivery authenticated",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("app_id", delivery.AppID),
			zap.Strings("roles", delivery.Roles),
			zap.Duration("auth_duration", time.Since(start)),
		)

		next.ServeHTTP(w, r.WithContext(WithDelivery(r.Context(), delivery)))
	})
}
