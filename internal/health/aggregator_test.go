package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/cctalk-host/internal/poller"
)

// mockChecker 模拟检查器
type mockChecker struct {
	name   string
	status Status
}

func (m *mockChecker) Name() string {
	return m.name
}

func (m *mockChecker) Check(ctx context.Context) CheckResult {
	return CheckResult{Status: m.status, Message: "mock", Latency: time.Millisecond}
}

func TestAggregator(t *testing.T) {
	tests := []struct {
		name     string
		statuses []Status
		want     Status
		ready    bool
	}{
		{"全部健康", []Status{StatusHealthy, StatusHealthy}, StatusHealthy, true},
		{"部分降级", []Status{StatusHealthy, StatusDegraded}, StatusDegraded, true},
		{"部分不健康", []Status{StatusDegraded, StatusUnhealthy}, StatusUnhealthy, false},
		{"无检查器", nil, StatusHealthy, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := NewAggregator()
			for i, s := range tt.statuses {
				agg.AddChecker(&mockChecker{name: string(rune('a' + i)), status: s})
			}
			assert.Equal(t, tt.want, agg.OverallStatus(context.Background()))
			assert.Equal(t, tt.ready, agg.Ready(context.Background()))
			assert.Len(t, agg.CheckAll(context.Background()), len(tt.statuses))
		})
	}

	t.Run("Alive始终返回true", func(t *testing.T) {
		assert.True(t, NewAggregator().Alive())
	})

	t.Run("CheckFunc补齐耗时", func(t *testing.T) {
		agg := NewAggregator(CheckFunc{CheckName: "fn", Fn: func(ctx context.Context) CheckResult {
			time.Sleep(time.Millisecond)
			return CheckResult{Status: StatusHealthy}
		}})
		res := agg.CheckAll(context.Background())["fn"]
		assert.Greater(t, res.Latency, time.Duration(0))
	})
}

type fixedLast struct{ t time.Time }

func (f fixedLast) LastResponse() time.Time { return f.t }

func TestSerialChecker(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ready := New()

	c := NewSerialChecker("/dev/ttyUSB0", ready, fixedLast{}, time.Minute)
	c.now = func() time.Time { return now }
	assert.Equal(t, StatusUnhealthy, c.Check(context.Background()).Status)

	ready.SetSerialReady(true)
	res := c.Check(context.Background())
	assert.Equal(t, StatusDegraded, res.Status)
	assert.Equal(t, "no valid response yet", res.Message)

	c.source = fixedLast{now.Add(-10 * time.Second)}
	res = c.Check(context.Background())
	assert.Equal(t, StatusHealthy, res.Status)
	assert.Equal(t, int64(10000), res.Details["age_ms"])

	c.source = fixedLast{now.Add(-2 * time.Minute)}
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

type fakePoller struct {
	running bool
	stats   poller.Stats
}

func (f fakePoller) IsRunning() bool     { return f.running }
func (f fakePoller) Stats() poller.Stats { return f.stats }

func TestPollerChecker(t *testing.T) {
	tests := []struct {
		name string
		p    fakePoller
		want Status
	}{
		{"未运行", fakePoller{}, StatusHealthy},
		{"运行中尚未轮询", fakePoller{running: true}, StatusHealthy},
		{"全部超时", fakePoller{running: true, stats: poller.Stats{Polls: 3, Timeouts: 3}}, StatusDegraded},
		{"有变化", fakePoller{running: true, stats: poller.Stats{Polls: 3, Timeouts: 2, Changes: 1}}, StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewPollerChecker(tt.p).Check(context.Background()).Status)
		})
	}
}

func TestRegisterHTTPRoutes(t *testing.T) {
	gin.SetMode(gin.TestMode)
	sick := &mockChecker{name: "serial", status: StatusUnhealthy}
	r := gin.New()
	RegisterHTTPRoutes(r, NewAggregator(sick))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var report HealthReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, StatusUnhealthy, report.Status)
	assert.Contains(t, report.Checks, "serial")

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	sick.status = StatusDegraded
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
