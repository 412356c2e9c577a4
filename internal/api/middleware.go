package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	guardianIDKey contextKey = "guardian_id"
	staffLoginKey contextKey = "staff_login"
)

// RequestIDMiddleware adds a unique request ID to each request context
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// LoggingMiddleware logs HTTP requests with method, path, status, duration, and request ID
func LoggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", wrapped.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", GetRequestID(r.Context())),
			)
		})
	}
}

// GuardianAuth requires a Bearer token issued at login and stores the
// guardian id in the request context.
func GuardianAuth(tokens Tokens) func(http.Handler) http.Handler {
	return bearerAuth(tokens.Parse, guardianIDKey)
}

// StaffAuth requires a staff Bearer token and stores the staff login in the
// request context. Guardian tokens are rejected.
func StaffAuth(tokens Tokens) func(http.Handler) http.Handler {
	return bearerAuth(tokens.ParseStaff, staffLoginKey)
}

func bearerAuth(parse func(string) (string, error), key contextKey) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			if auth == "" || !strings.HasPrefix(auth, "Bearer ") {
				writeError(w, http.StatusUnauthorized, "missing_token", "authorization header must be a Bearer token")
				return
			}

			subject, err := parse(strings.TrimPrefix(auth, "Bearer "))
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid_token", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), key, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WebhookSecret checks the secret token header the chat platform echoes
// on every webhook call. An empty secret accepts all calls.
func WebhookSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret != "" {
				got := r.Header.Get("X-Telegram-Bot-Api-Secret-Token")
				if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
					writeError(w, http.StatusUnauthorized, "invalid_webhook_secret", "webhook secret mismatch")
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GuardianIDFromContext returns the authenticated guardian id.
func GuardianIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(guardianIDKey).(string)
	return id, ok && id != ""
}

// StaffLoginFromContext returns the authenticated staff login.
func StaffLoginFromContext(ctx context.Context) (string, bool) {
	login, ok := ctx.Value(staffLoginKey).(string)
	return login, ok && login != ""
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
