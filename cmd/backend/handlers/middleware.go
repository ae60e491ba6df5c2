package handlers

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

// ContextKey is a custom type for context keys to avoid collisions.
type ContextKey string

const (
	// TokenNameKey is the context key for the authenticated token name.
	TokenNameKey ContextKey = "token_name"

	// ScopeKey is the context key for the authenticated scope.
	ScopeKey ContextKey = "scope"
)

// Token scopes.
const (
	ScopeReadOnly  = "read_only"
	ScopeReadWrite = "read_write"
)

// Token is an API token accepted by the middleware. Hash is the bcrypt hash
// of the raw bearer value.
type Token struct {
	Name  string
	Hash  string
	Scope string
}

// HashToken returns the bcrypt hash to configure for a raw token.
func HashToken(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("token must not be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash token: %w", err)
	}
	return string(hash), nil
}

// AuthMiddleware validates Bearer tokens against the configured hashes.
// With no tokens configured every request passes with read_write scope.
type AuthMiddleware struct {
	tokens []Token
	logger logger.Logger
}

// NewAuthMiddleware creates a new authentication middleware.
func NewAuthMiddleware(tokens []Token, log logger.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens: tokens,
		logger: log,
	}
}

// Enabled reports whether any token is configured.
func (m *AuthMiddleware) Enabled() bool {
	return len(m.tokens) > 0
}

// Handler wraps an HTTP handler with authentication.
func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			ctx := context.WithValue(r.Context(), ScopeKey, ScopeReadWrite)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if !strings.HasPrefix(authHeader, "Bearer ") {
			m.logger.Warn(r.Context(), "missing bearer token", logger.Fields{
				"path": r.URL.Path,
			})
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}

		token, ok := m.match(strings.TrimPrefix(authHeader, "Bearer "))
		if !ok {
			m.logger.Warn(r.Context(), "invalid bearer token", logger.Fields{
				"path": r.URL.Path,
			})
			respondError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		scope := token.Scope
		if scope == "" {
			scope = ScopeReadOnly
		}
		ctx := context.WithValue(r.Context(), TokenNameKey, token.Name)
		ctx = context.WithValue(ctx, ScopeKey, scope)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) match(raw string) (Token, bool) {
	if raw == "" {
		return Token{}, false
	}
	for _, t := range m.tokens {
		if bcrypt.CompareHashAndPassword([]byte(t.Hash), []byte(raw)) == nil {
			return t, true
		}
	}
	return Token{}, false
}

// GetTokenName extracts the token name from the request context.
func GetTokenName(ctx context.Context) (string, bool) {
	name, ok := ctx.Value(TokenNameKey).(string)
	return name, ok
}

// GetScope extracts the scope from the request context.
func GetScope(ctx context.Context) string {
	scope, ok := ctx.Value(ScopeKey).(string)
	if !ok {
		return ScopeReadWrite
	}
	return scope
}

// RequireWriteScope checks if the current request has write scope.
// Returns true if the scope is read_write, false otherwise (and writes a 403 response).
func RequireWriteScope(w http.ResponseWriter, r *http.Request) bool {
	if GetScope(r.Context()) != ScopeReadWrite {
		respondError(w, http.StatusForbidden, "write access required")
		return false
	}
	return true
}

// WriteScopeMiddleware enforces write scope for state-mutating HTTP methods.
// GET and HEAD requests pass through regardless of scope. POST, PUT, DELETE,
// and PATCH require read_write scope.
func WriteScopeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch:
			if !RequireWriteScope(w, r) {
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit rejects requests with 429 once limiter runs out of tokens.
func RateLimit(limiter *rate.Limiter, log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter != nil && !limiter.Allow() {
				retry := time.Duration(float64(time.Second) / math.Max(float64(limiter.Limit()), 0.001))
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(math.Ceil(retry.Seconds()))))
				log.Warn(r.Context(), "rate limit exceeded", logger.Fields{
					"path":   r.URL.Path,
					"method": r.Method,
				})
				respondError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent events working behind the logging middleware.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Debug(r.Context(), "request handled", logger.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			})
		})
	}
}
