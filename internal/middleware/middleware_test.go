package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/skill-worlds/internal/domain"
	"github.com/ashureev/skill-worlds/internal/identity"
	"github.com/stretchr/testify/assert"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestCORS(t *testing.T) {
	tests := []struct {
		name        string
		allowed     []string
		origin      string
		method      string
		wantStatus  int
		wantOrigin  string
		wantCreds   bool
		wantHeaders bool
	}{
		{name: "explicit origin", allowed: []string{"https://app.example"}, origin: "https://app.example", method: http.MethodGet, wantStatus: http.StatusOK, wantOrigin: "https://app.example", wantCreds: true, wantHeaders: true},
		{name: "wildcard has no credentials", allowed: []string{"*"}, origin: "https://x.example", method: http.MethodGet, wantStatus: http.StatusOK, wantOrigin: "https://x.example", wantHeaders: true},
		{name: "unknown origin", allowed: []string{"https://app.example"}, origin: "https://evil.example", method: http.MethodGet, wantStatus: http.StatusOK},
		{name: "preflight", allowed: []string{"https://app.example"}, origin: "https://app.example", method: http.MethodOptions, wantStatus: http.StatusNoContent, wantOrigin: "https://app.example", wantCreds: true, wantHeaders: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/me", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			CORS(tt.allowed)(okHandler).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCreds, rec.Header().Get("Access-Control-Allow-Credentials") == "true")
			if tt.wantHeaders {
				assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), identity.SessionHeaderName)
			}
		})
	}
}

func TestRateLimiterPerUser(t *testing.T) {
	rl := NewRateLimiter(1, 2)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	handler := rl.Middleware(okHandler)

	do := func(userID, tab string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/flow/chat/reply", nil)
		req = req.WithContext(identity.WithSession(req.Context(), domain.Session{UserID: userID, SessionID: tab}))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("u1", "tab-1"))
	assert.Equal(t, http.StatusOK, do("u1", "tab-2"))
	assert.Equal(t, http.StatusTooManyRequests, do("u1", "tab-3"))
	assert.Equal(t, http.StatusOK, do("u2", "tab-1"))

	fixed = fixed.Add(time.Second)
	assert.Equal(t, http.StatusOK, do("u1", "tab-1"))
}

func TestRateLimiterFallsBackToIP(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return fixed }
	handler := rl.Middleware(okHandler)

	do := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("10.0.0.1:1234"))
	assert.Equal(t, http.StatusTooManyRequests, do("10.0.0.1:5678"))
	assert.Equal(t, http.StatusOK, do("10.0.0.2:1234"))
}

func TestRateLimiterResetsBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	fixed := time.Now()
	rl.now = func() time.Time { return fixed }

	assert.True(t, rl.Allow("k"))
	assert.False(t, rl.Allow("k"))

	fixed = fixed.Add(2 * limiterResetInterval)
	assert.True(t, rl.Allow("k"))
	rl.mu.Lock()
	assert.Len(t, rl.limiters, 1)
	rl.mu.Unlock()
}
