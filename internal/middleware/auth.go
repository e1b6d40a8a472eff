package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/pagepulse/pagepulse/internal/auth"
)

const (
	// minAuthDuration is the minimum time to spend on auth to prevent timing attacks.
	minAuthDuration = 200 * time.Millisecond
)

// AdminAuthConfig holds configuration for the admin auth middleware.
type AdminAuthConfig struct {
	Logger *slog.Logger

	// TokenHash is the argon2id hash of the admin token (ADMIN_TOKEN_HASH).
	// Empty disables admin endpoints entirely.
	TokenHash string
}

// AdminAuth returns a middleware that authenticates admin requests against
// the configured token hash and marks the request context as admin.
func AdminAuth(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			startTime := time.Now()

			// Ensure consistent timing regardless of outcome
			defer func() {
				elapsed := time.Since(startTime)
				if elapsed < minAuthDuration {
					time.Sleep(minAuthDuration - elapsed)
				}
			}()

			if cfg.TokenHash == "" {
				cfg.Logger.Warn("admin request rejected",
					slog.String("reason", "admin_disabled"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			token := extractAdminToken(r)
			if token == "" {
				cfg.Logger.Warn("admin authentication failed",
					slog.String("reason", "missing_token"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			if !auth.ValidateTokenFormat(token) {
				cfg.Logger.Warn("admin authentication failed",
					slog.String("reason", "invalid_format"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			match, err := auth.VerifyToken(token, cfg.TokenHash)
			if err != nil || !match {
				cfg.Logger.Warn("admin authentication failed",
					slog.String("reason", "invalid_token"),
					slog.String("ip", r.RemoteAddr),
					slog.String("endpoint", r.Method+" "+r.URL.Path),
					slog.String("request_id", GetRequestID(r.Context())),
				)
				writeAuthError(w)
				return
			}

			cfg.Logger.Info("admin authenticated",
				slog.String("ip", r.RemoteAddr),
				slog.String("endpoint", r.Method+" "+r.URL.Path),
				slog.String("request_id", GetRequestID(r.Context())),
			)

			next.ServeHTTP(w, r.WithContext(auth.ContextWithAdmin(r.Context())))
		})
	}
}

// MarkAdminIfAuthenticated returns a middleware that marks the context as
// admin when a valid token is present but lets the request through either
// way. Used on /api/track so synthetic backfill fields are honored only for
// admin callers.
func MarkAdminIfAuthenticated(cfg AdminAuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractAdminToken(r)
			if token != "" && cfg.TokenHash != "" && auth.ValidateTokenFormat(token) {
				if match, err := auth.VerifyToken(token, cfg.TokenHash); err == nil && match {
					r = r.WithContext(auth.ContextWithAdmin(r.Context()))
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractAdminToken extracts the admin token from the request.
// Supports both "Authorization: Bearer <token>" and "X-Admin-Token: <token>".
func extractAdminToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader != "" {
		if strings.HasPrefix(authHeader, "Bearer ") {
			return strings.TrimPrefix(authHeader, "Bearer ")
		}
	}

	return r.Header.Get("X-Admin-Token")
}

// writeAuthError writes a 401 Unauthorized response.
// Uses the same message for all auth failures to prevent enumeration.
func writeAuthError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"UNAUTHORIZED","message":"Invalid or missing admin token"}}`))
}
