package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hairizuanbinnoorazman/web-pentest/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

func TestRequireWriteScope(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		scope      string
		wantOK     bool
		wantStatus int
	}{
		{
			name:   "read_write scope passes",
			scope:  ScopeReadWrite,
			wantOK: true,
		},
		{
			name:       "read_only scope returns 403",
			scope:      ScopeReadOnly,
			wantOK:     false,
			wantStatus: http.StatusForbidden,
		},
		{
			name:   "no scope in context defaults to read_write",
			scope:  "",
			wantOK: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			if tc.scope != "" {
				ctx := context.WithValue(req.Context(), ScopeKey, tc.scope)
				req = req.WithContext(ctx)
			}
			w := httptest.NewRecorder()

			got := RequireWriteScope(w, req)
			if got != tc.wantOK {
				t.Errorf("RequireWriteScope() = %v, want %v", got, tc.wantOK)
			}
			if !tc.wantOK && w.Code != tc.wantStatus {
				t.Errorf("status code = %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func TestWriteScopeMiddleware(t *testing.T) {
	t.Parallel()

	okHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	tests := []struct {
		name       string
		method     string
		scope      string
		wantStatus int
	}{
		{
			name:       "GET with read_only passes",
			method:     http.MethodGet,
			scope:      ScopeReadOnly,
			wantStatus: http.StatusOK,
		},
		{
			name:       "GET with read_write passes",
			method:     http.MethodGet,
			scope:      ScopeReadWrite,
			wantStatus: http.StatusOK,
		},
		{
			name:       "POST with read_write passes",
			method:     http.MethodPost,
			scope:      ScopeReadWrite,
			wantStatus: http.StatusOK,
		},
		{
			name:       "POST with read_only blocked",
			method:     http.MethodPost,
			scope:      ScopeReadOnly,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "PUT with read_only blocked",
			method:     http.MethodPut,
			scope:      ScopeReadOnly,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "DELETE with read_only blocked",
			method:     http.MethodDelete,
			scope:      ScopeReadOnly,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "PATCH with read_only blocked",
			method:     http.MethodPatch,
			scope:      ScopeReadOnly,
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "HEAD with read_only passes",
			method:     http.MethodHead,
			scope:      ScopeReadOnly,
			wantStatus: http.StatusOK,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(tc.method, "/test", nil)
			ctx := context.WithValue(req.Context(), ScopeKey, tc.scope)
			req = req.WithContext(ctx)

			w := httptest.NewRecorder()
			WriteScopeMiddleware(okHandler).ServeHTTP(w, req)

			if w.Code != tc.wantStatus {
				t.Errorf("status code = %d, want %d", w.Code, tc.wantStatus)
			}
		})
	}
}

func hashForTest(t *testing.T, raw string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(raw), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	tokens := []Token{
		{Name: "ci", Hash: hashForTest(t, "ci-secret"), Scope: ScopeReadWrite},
		{Name: "dashboard", Hash: hashForTest(t, "dash-secret"), Scope: ScopeReadOnly},
		{Name: "legacy", Hash: hashForTest(t, "legacy-secret")},
	}

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantName   string
		wantScope  string
	}{
		{name: "read write token", header: "Bearer ci-secret", wantStatus: http.StatusOK, wantName: "ci", wantScope: ScopeReadWrite},
		{name: "read only token", header: "Bearer dash-secret", wantStatus: http.StatusOK, wantName: "dashboard", wantScope: ScopeReadOnly},
		{name: "missing scope defaults to read only", header: "Bearer legacy-secret", wantStatus: http.StatusOK, wantName: "legacy", wantScope: ScopeReadOnly},
		{name: "unknown token", header: "Bearer nope", wantStatus: http.StatusUnauthorized},
		{name: "empty bearer", header: "Bearer ", wantStatus: http.StatusUnauthorized},
		{name: "missing header", header: "", wantStatus: http.StatusUnauthorized},
		{name: "basic auth", header: "Basic Y2k6c2VjcmV0", wantStatus: http.StatusUnauthorized},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var gotName, gotScope string
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotName, _ = GetTokenName(r.Context())
				gotScope = GetScope(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/tests", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			NewAuthMiddleware(tokens, logger.NewTestLogger()).Handler(next).ServeHTTP(w, req)

			assert.Equal(t, tc.wantStatus, w.Code)
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, tc.wantName, gotName)
				assert.Equal(t, tc.wantScope, gotScope)
			}
		})
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	t.Parallel()

	m := NewAuthMiddleware(nil, logger.NewTestLogger())
	assert.False(t, m.Enabled())

	var scope string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scope = GetScope(r.Context())
	})
	w := httptest.NewRecorder()
	m.Handler(next).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/tests", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, ScopeReadWrite, scope)
}

func TestHashToken(t *testing.T) {
	t.Parallel()

	hash, err := HashToken("s3cret")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))

	_, err = HashToken("")
	assert.Error(t, err)
}

func TestRateLimit(t *testing.T) {
	t.Parallel()

	log := logger.NewTestLogger()
	limiter := rate.NewLimiter(rate.Limit(1), 2)
	h := RateLimit(limiter, log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = httptest.NewRecorder()
		h.ServeHTTP(last, httptest.NewRequest(http.MethodPost, "/api/v1/tests", nil))
		codes = append(codes, last.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.Equal(t, "1", last.Header().Get("Retry-After"))
	assert.True(t, log.HasMessage("warn", "rate limit exceeded"))
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	log := logger.NewTestLogger()
	h := RequestLogger(log)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		w.(http.Flusher).Flush()
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.True(t, w.Flushed)
	entries := log.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, http.StatusTeapot, entries[0].Fields["status"])
}
