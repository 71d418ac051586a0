// Package poller 后台周期轮询一个 header，只在应答变化时推送
package poller

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/cctalk-host/internal/logging"
	"github.com/taoyao-code/cctalk-host/internal/metrics"
	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
	"github.com/taoyao-code/cctalk-host/internal/session"
)

const (
	// MinPeriod 轮询周期下限
	MinPeriod = 100 * time.Millisecond
	// DefaultPeriod 默认周期
	DefaultPeriod = time.Second
	// DefaultBuffer Updates 通道容量
	DefaultBuffer = 16
)

var ErrAlreadyRunning = errors.New("poller already running")

// Commander 轮询所需的会话能力
type Commander interface {
	Command(ctx context.Context, header byte, payload []byte) (*session.Result, error)
}

// Update 一次变化的应答
type Update struct {
	At      time.Time    `json:"at"`
	Header  byte         `json:"header"`
	Payload []byte       `json:"payload"`
	Reply   cctalk.Reply `json:"-"`
}

// Stats 运行计数
type Stats struct {
	Polls    uint64 `json:"polls"`
	Changes  uint64 `json:"changes"`
	Timeouts uint64 `json:"timeouts"`
	Invalid  uint64 `json:"invalid"`
	Errors   uint64 `json:"errors"`
}

// Options 构造参数
type Options struct {
	Logger  *zap.Logger
	Metrics *metrics.AppMetrics
	Buffer  int
}

// Poller 单个后台工作协程。last 由 lastMu 保护，只有工作协程写入；
// 前台通过 Last() 读取，或消费 Updates()。
type Poller struct {
	cmd     Commander
	log     *zap.Logger
	metrics *metrics.AppMetrics

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	header  byte
	period  time.Duration

	lastMu sync.RWMutex
	last   *Update
	stats  Stats

	updates chan Update
}

func New(cmd Commander, opts Options) *Poller {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Buffer <= 0 {
		opts.Buffer = DefaultBuffer
	}
	return &Poller{
		cmd:     cmd,
		log:     opts.Logger,
		metrics: opts.Metrics,
		updates: make(chan Update, opts.Buffer),
	}
}

// ClampPeriod 周期不低于 MinPeriod，非正值取默认
func ClampPeriod(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultPeriod
	}
	if d < MinPeriod {
		return MinPeriod
	}
	return d
}

// Start 启动轮询。重复启动返回 ErrAlreadyRunning。
func (p *Poller) Start(ctx context.Context, header byte, period time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return ErrAlreadyRunning
	}

	period = ClampPeriod(period)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.running = true
	p.cancel = cancel
	p.done = done
	p.header = header
	p.period = period

	p.lastMu.Lock()
	p.last = nil
	p.lastMu.Unlock()

	go p.run(runCtx, done, header, period)

	p.log.Info("poller started", zap.Uint8("header", header), zap.Duration("period", period))
	return nil
}

// Stop 停止并等待工作协程退出，未运行时为空操作
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel, done := p.cancel, p.done
	p.mu.Unlock()

	cancel()
	<-done
	p.log.Info("poller stopped")
}

// IsRunning 检查是否正在运行
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Params 最近一次启动的 header 与周期
func (p *Poller) Params() (byte, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.header, p.period
}

// Last 最近一次有效应答
func (p *Poller) Last() (Update, bool) {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	if p.last == nil {
		return Update{}, false
	}
	return *p.last, true
}

// Stats 运行计数快照
func (p *Poller) Stats() Stats {
	p.lastMu.RLock()
	defer p.lastMu.RUnlock()
	return p.stats
}

// Updates 变化通知。消费者滞后时丢弃最旧的一条。
func (p *Poller) Updates() <-chan Update {
	return p.updates
}

func (p *Poller) run(ctx context.Context, done chan struct{}, header byte, period time.Duration) {
	defer func() {
		p.mu.Lock()
		if p.done == done {
			p.running = false
		}
		p.mu.Unlock()
		close(done)
	}()

	for {
		// 发送前检查停止信号
		if ctx.Err() != nil {
			return
		}
		p.pollOnce(ctx, header)

		timer := time.NewTimer(period)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context, header byte) {
	res, err := p.cmd.Command(ctx, header, nil)

	p.lastMu.Lock()
	p.stats.Polls++
	switch {
	case err == nil && res.Valid:
	case err == nil:
		p.stats.Invalid++
	case errors.Is(err, session.ErrNoResponse):
		p.stats.Timeouts++
	default:
		p.stats.Errors++
	}
	p.lastMu.Unlock()

	switch {
	case errors.Is(err, session.ErrNoResponse):
		p.log.Debug("poll: no response", zap.Uint8("header", header))
		return
	case errors.Is(err, context.Canceled):
		return
	case err != nil:
		p.log.Warn("poll failed", zap.Uint8("header", header), zap.Error(err))
		return
	case !res.Valid:
		// 会话已记录校验失败详情
		return
	case len(res.Payload) == 0:
		// 空 ACK 不参与比较
		return
	}

	p.lastMu.Lock()
	changed := p.last == nil || !bytes.Equal(p.last.Payload, res.Payload)
	var u Update
	if changed {
		u = Update{
			At:      time.Now(),
			Header:  header,
			Payload: append([]byte(nil), res.Payload...),
			Reply:   cctalk.DecodeReply(header, res.Payload),
		}
		p.last = &u
		p.stats.Changes++
	}
	p.lastMu.Unlock()

	if !changed {
		return
	}
	if p.metrics != nil {
		p.metrics.PollChangesTotal.Inc()
	}
	p.log.Info("poll: response changed", zap.Uint8("header", header), logging.Frame("payload", u.Payload))
	p.publish(u)
}

// publish 只有工作协程发送，循环必然结束
func (p *Poller) publish(u Update) {
	for {
		select {
		case p.updates <- u:
			return
		default:
		}
		select {
		case <-p.updates:
		default:
		}
	}
}
