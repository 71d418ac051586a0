package health

import (
	"context"
	"time"

	"github.com/taoyao-code/cctalk-host/internal/poller"
)

// PollerSource 轮询器状态
type PollerSource interface {
	IsRunning() bool
	Stats() poller.Stats
}

// PollerChecker 后台轮询健康检查器
type PollerChecker struct {
	p PollerSource
}

func NewPollerChecker(p PollerSource) *PollerChecker {
	return &PollerChecker{p: p}
}

// Name 返回检查器名称
func (c *PollerChecker) Name() string {
	return "poller"
}

// Check 轮询未运行视为健康；运行中但从未收到有效应答为 Degraded
func (c *PollerChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	st := c.p.Stats()
	details := map[string]interface{}{
		"running":  c.p.IsRunning(),
		"polls":    st.Polls,
		"changes":  st.Changes,
		"timeouts": st.Timeouts,
		"invalid":  st.Invalid,
		"errors":   st.Errors,
	}

	if !c.p.IsRunning() {
		return CheckResult{Status: StatusHealthy, Message: "idle", Details: details, Latency: time.Since(start)}
	}
	if st.Polls > 0 && st.Changes == 0 && st.Timeouts+st.Invalid+st.Errors == st.Polls {
		return CheckResult{Status: StatusDegraded, Message: "device not answering polls", Details: details, Latency: time.Since(start)}
	}
	return CheckResult{Status: StatusHealthy, Message: "ok", Details: details, Latency: time.Since(start)}
}
