package health

import (
	"context"
	"time"
)

// LastResponder 提供最近一次有效应答时间
type LastResponder interface {
	LastResponse() time.Time
}

// SerialChecker 串口与总线健康检查器
type SerialChecker struct {
	port      string
	readiness *Readiness
	source    LastResponder
	stale     time.Duration
	now       func() time.Time
}

// NewSerialChecker stale 为判定设备无应答的时间窗口
func NewSerialChecker(port string, readiness *Readiness, source LastResponder, stale time.Duration) *SerialChecker {
	if stale <= 0 {
		stale = time.Minute
	}
	return &SerialChecker{port: port, readiness: readiness, source: source, stale: stale, now: time.Now}
}

// Name 返回检查器名称
func (c *SerialChecker) Name() string {
	return "serial"
}

// Check 串口不可用为 Unhealthy；从未应答或应答过旧为 Degraded
func (c *SerialChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	details := map[string]interface{}{"port": c.port}

	if c.readiness != nil && !c.readiness.SerialReady() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "serial port not open",
			Details: details,
			Latency: time.Since(start),
		}
	}

	last := c.source.LastResponse()
	if last.IsZero() {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "no valid response yet",
			Details: details,
			Latency: time.Since(start),
		}
	}

	age := c.now().Sub(last)
	details["last_response"] = last
	details["age_ms"] = age.Milliseconds()
	if age > c.stale {
		return CheckResult{
			Status:  StatusDegraded,
			Message: "no recent response",
			Details: details,
			Latency: time.Since(start),
		}
	}

	return CheckResult{
		Status:  StatusHealthy,
		Message: "ok",
		Details: details,
		Latency: time.Since(start),
	}
}
