package health

import "sync/atomic"

// Readiness 就绪状态（串口已打开、HTTP 已监听）
type Readiness struct {
	serialReady atomic.Bool
	httpReady   atomic.Bool
}

func New() *Readiness { return &Readiness{} }

func (r *Readiness) SetSerialReady(v bool) { r.serialReady.Store(v) }
func (r *Readiness) SetHTTPReady(v bool)   { r.httpReady.Store(v) }

// SerialReady 串口是否可用
func (r *Readiness) SerialReady() bool { return r.serialReady.Load() }

// Ready 总体就绪：各子系统均为 true
func (r *Readiness) Ready() bool {
	return r.serialReady.Load() && r.httpReady.Load()
}
