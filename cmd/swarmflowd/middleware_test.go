package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/swarmflow/api"
	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/swarm"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
}

func TestChainOrdering(t *testing.T) {
	t.Parallel()

	var order []string
	mk := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	handler := Chain(okHandler(), mk("outer"), mk("inner"))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRecoveryCatchesPanic(t *testing.T) {
	t.Parallel()

	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := Recovery(zap.NewNop())(panicky)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestSecurityHeaders(t *testing.T) {
	t.Parallel()

	handler := SecurityHeaders()(okHandler())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", w.Header().Get("Referrer-Policy"))
}

func TestRequestIDAssignedAndPreserved(t *testing.T) {
	t.Parallel()

	var seen string
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	})
	handler := RequestID()(inner)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
	assert.Equal(t, w.Header().Get("X-Request-ID"), seen)

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("X-Request-ID", "req-fixed")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, "req-fixed", w.Header().Get("X-Request-ID"))
	assert.Equal(t, "req-fixed", seen)
}

func TestRateLimiterThrottles(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := RateLimiter(ctx, 1, 2, zap.NewNop())(okHandler())

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		codes = append(codes, w.Code)
	}

	assert.Equal(t, http.StatusOK, codes[0])
	assert.Equal(t, http.StatusOK, codes[1])
	assert.Equal(t, http.StatusTooManyRequests, codes[2])

	// A different client has its own bucket.
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func signToken(t *testing.T, secret, issuer string, ttl time.Duration) string {
	t.Helper()
	claims := jwt.MapClaims{
		"iss": issuer,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()

	cfg := config.AuthConfig{Secret: "test-secret", Issuer: "swarmflow"}
	handler := JWTAuth(cfg, []string{"/healthz"}, zap.NewNop())(okHandler())

	do := func(path, token string) int {
		r := httptest.NewRequest(http.MethodGet, path, nil)
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		return w.Code
	}

	t.Run("valid token passes", func(t *testing.T) {
		code := do("/api/v1/swarm/status", signToken(t, "test-secret", "swarmflow", time.Hour))
		assert.Equal(t, http.StatusOK, code)
	})

	t.Run("missing token rejected", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, do("/api/v1/swarm/status", ""))
	})

	t.Run("wrong secret rejected", func(t *testing.T) {
		code := do("/api/v1/swarm/status", signToken(t, "other-secret", "swarmflow", time.Hour))
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("wrong issuer rejected", func(t *testing.T) {
		code := do("/api/v1/swarm/status", signToken(t, "test-secret", "someone-else", time.Hour))
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		code := do("/api/v1/swarm/status", signToken(t, "test-secret", "swarmflow", -time.Hour))
		assert.Equal(t, http.StatusUnauthorized, code)
	})

	t.Run("skip path bypasses auth", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, do("/healthz", ""))
	})
}

func TestJWTAuthDisabledWithoutSecret(t *testing.T) {
	t.Parallel()

	handler := JWTAuth(config.AuthConfig{}, nil, zap.NewNop())(okHandler())
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/swarm/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

// The websocket upgrade must survive the full middleware chain: every
// status-capturing wrapper in between has to expose the underlying
// writer or the hijack fails.
func TestEventsFeedThroughMiddlewareChain(t *testing.T) {
	t.Parallel()

	bus := swarm.NewBus(swarm.Config{}, zap.NewNop(), nil)
	t.Cleanup(bus.Stop)
	delegator := swarm.NewDelegator(bus, zap.NewNop(), nil)

	mux := api.Router(bus, delegator, zap.NewNop())
	handler := Chain(mux,
		Recovery(zap.NewNop()),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(zap.NewNop()),
		OTelTracing(),
	)

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/swarm/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err, "upgrade must succeed behind the middleware chain")
	defer conn.Close(websocket.StatusNormalClosure, "")

	// Let the handler subscribe before broadcasting.
	time.Sleep(50 * time.Millisecond)

	bus.RegisterWorker(swarm.Registration{
		WorkerName:      "sec-1",
		Specializations: []swarm.TaskType{swarm.TaskSecurityAnalysis},
		Timestamp:       time.Now(),
	})

	_, raw, err := conn.Read(ctx)
	require.NoError(t, err)

	var msg swarm.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, swarm.KindRegistration, msg.Kind)
}

func TestNormalizePath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"/healthz", "/healthz"},
		{"/api/v1/workers", "/api/v1/workers"},
		{"/api/v1/workers/5f3a1c2e-0d4b-4c6a-9e8f-1a2b3c4d5e6f/bids", "/api/v1/workers/:id/bids"},
		{"/api/v1/workers/12345", "/api/v1/workers/:id"},
		{"/api/v1/swarm/status", "/api/v1/swarm/status"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizePath(tt.in), tt.in)
	}
}
