package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/cctalk-host/internal/config"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(mw...)
	r.GET("/api/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("request_id"))
	})
	return r
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := config.AuthConfig{Enabled: true, APIKeys: []string{"sk_test_12345678"}}
	r := newEngine(APIKeyAuth(cfg, nil))

	tests := []struct {
		name   string
		header map[string]string
		code   int
	}{
		{"缺少key", nil, http.StatusUnauthorized},
		{"无效key", map[string]string{"X-API-Key": "nope"}, http.StatusForbidden},
		{"X-API-Key有效", map[string]string{"X-API-Key": "sk_test_12345678"}, http.StatusOK},
		{"Bearer有效", map[string]string{"Authorization": "Bearer sk_test_12345678"}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.code, w.Code)
		})
	}

	t.Run("未启用直接放行", func(t *testing.T) {
		r := newEngine(APIKeyAuth(config.AuthConfig{}, nil))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestMaskAPIKey(t *testing.T) {
	assert.Equal(t, "****", maskAPIKey("short"))
	assert.Equal(t, "sk_t****5678", maskAPIKey("sk_test_12345678"))
}

func TestRateLimit(t *testing.T) {
	l := NewRateLimiter(1, 2)
	r := newEngine(RateLimit(l, nil))

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)

	st := l.Stats()
	assert.Equal(t, int64(2), st.AllowedTotal)
	assert.Equal(t, int64(1), st.RejectedTotal)
	assert.Equal(t, 2, st.Burst)
}

func TestRateLimiter_Wait(t *testing.T) {
	l := NewRateLimiter(1, 1)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
	assert.Equal(t, int64(1), l.Stats().RejectedTotal)

	d := NewRateLimiter(0, 0)
	assert.Equal(t, 20, d.Stats().RatePerSecond)
	assert.Equal(t, 40, d.Stats().Burst)
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/x", nil))
	rid := w.Header().Get(HeaderRequestID)
	_, err := uuid.Parse(rid)
	require.NoError(t, err)
	assert.Equal(t, rid, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
	req.Header.Set(HeaderRequestID, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(HeaderRequestID))
}
