// Package session 实现 ccTalk 主机侧的收发会话：组帧、跳过回显、按长度字节定界读取应答
package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/cctalk-host/internal/logging"
	"github.com/taoyao-code/cctalk-host/internal/metrics"
	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
	"github.com/taoyao-code/cctalk-host/internal/serialport"
)

var (
	// ErrNoResponse 超时内未读到完整应答
	ErrNoResponse = errors.New("no response")
	// ErrInvalidAddress 地址必须在 1..255
	ErrInvalidAddress = errors.New("invalid address")
)

// DefaultAddress 纸币器常用地址
const DefaultAddress = 40

// Options 会话构造参数
type Options struct {
	Address byte
	Mode    cctalk.Mode
	Timeout time.Duration
	Logger  *zap.Logger
	Metrics *metrics.AppMetrics
}

// Config 会话当前配置快照
type Config struct {
	Address byte          `json:"address"`
	Mode    cctalk.Mode   `json:"mode"`
	Timeout time.Duration `json:"-"`
}

// Result 一次成功定界的应答。Valid=false 表示校验失败，Payload 仍按原样给出。
type Result struct {
	ID          string
	Header      byte
	Payload     []byte
	Valid       bool
	EchoMissing bool
	Request     []byte // 发送的完整帧
	Response    []byte // 去掉回显后的应答帧（含校验字节）
	Duration    time.Duration
}

// Session 独占一个串口，同一时刻只有一个交换在进行
type Session struct {
	mu      sync.Mutex
	port    serialport.Port
	address byte
	mode    cctalk.Mode
	timeout time.Duration

	// 最近一次有效应答（UnixNano），不经 mu，扫描期间也可读
	lastOK atomic.Int64

	log     *zap.Logger
	wire    *zap.Logger
	metrics *metrics.AppMetrics
}

// New 创建会话，非法校验方式在此拒绝
func New(port serialport.Port, opts Options) (*Session, error) {
	if port == nil {
		return nil, errors.New("session: nil port")
	}
	if !opts.Mode.Valid() {
		return nil, fmt.Errorf("session: %w: %d", cctalk.ErrInvalidMode, int(opts.Mode))
	}
	if opts.Address == 0 {
		return nil, fmt.Errorf("session: %w: 0", ErrInvalidAddress)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Session{
		port:    port,
		address: opts.Address,
		mode:    opts.Mode,
		timeout: port.Timeout(),
		log:     opts.Logger,
		wire:    opts.Logger.Named(logging.WireLogger),
		metrics: opts.Metrics,
	}
	if opts.Timeout > 0 {
		if err := port.SetTimeout(opts.Timeout); err != nil {
			return nil, fmt.Errorf("session: set timeout: %w", err)
		}
		s.timeout = opts.Timeout
	}
	return s, nil
}

// Config 当前地址、校验方式与超时
func (s *Session) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Config{Address: s.address, Mode: s.mode, Timeout: s.timeout}
}

// SetAddress 修改目的地址
func (s *Session) SetAddress(addr byte) error {
	if addr == 0 {
		return fmt.Errorf("%w: 0", ErrInvalidAddress)
	}
	s.mu.Lock()
	s.address = addr
	s.mu.Unlock()
	return nil
}

// SetMode 修改校验方式
func (s *Session) SetMode(m cctalk.Mode) error {
	if !m.Valid() {
		return fmt.Errorf("%w: %d", cctalk.ErrInvalidMode, int(m))
	}
	s.mu.Lock()
	s.mode = m
	s.mu.Unlock()
	return nil
}

// SetTimeout 修改每次读调用的超时
func (s *Session) SetTimeout(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("session: timeout must be positive, got %s", d)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.port.SetTimeout(d); err != nil {
		return err
	}
	s.timeout = d
	return nil
}

// LastResponse 最近一次校验通过的应答时间，从未收到返回零值
func (s *Session) LastResponse() time.Time {
	ns := s.lastOK.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Command 发送一条命令并等待应答。
// 超时/短读返回 ErrNoResponse；校验失败不算错误，见 Result.Valid。
func (s *Session) Command(ctx context.Context, header byte, payload []byte) (*Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exchange(ctx, header, payload)
}

// exchange 调用方需持有 s.mu
func (s *Session) exchange(ctx context.Context, header byte, payload []byte) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	hdr := strconv.Itoa(int(header))

	sealed, err := cctalk.Build(s.mode, s.address, header, payload)
	if err != nil {
		s.countCommand(hdr, metrics.ResultError)
		return nil, err
	}

	start := time.Now()
	res := &Result{ID: uuid.NewString(), Request: sealed}
	log := s.log.With(
		zap.String("exchange_id", res.ID),
		zap.Uint8("address", s.address),
		zap.Stringer("mode", s.mode),
		zap.Uint8("header", header),
	)

	if err := s.port.FlushInput(); err != nil {
		s.countCommand(hdr, metrics.ResultError)
		return nil, fmt.Errorf("flush input: %w", err)
	}
	if _, err := s.port.Write(sealed); err != nil {
		s.countCommand(hdr, metrics.ResultError)
		return nil, fmt.Errorf("write frame: %w", err)
	}
	s.countBytes(len(sealed), 0)

	// 1. 回显：硬件环回的发送字节
	echo, err := s.port.ReadExactly(len(sealed))
	if err != nil {
		s.countCommand(hdr, metrics.ResultError)
		return nil, fmt.Errorf("read echo: %w", err)
	}
	if len(echo) == 0 {
		res.EchoMissing = true
		log.Warn("no echo received, check wiring", logging.Frame("request", sealed))
		if s.metrics != nil {
			s.metrics.EchoMissingTotal.Inc()
		}
	}

	// 2. 长度探测：目的地址回显 + 长度字节
	head, err := s.port.ReadExactly(2)
	if err != nil {
		s.countCommand(hdr, metrics.ResultError)
		return nil, fmt.Errorf("read length: %w", err)
	}
	if len(head) < 2 {
		s.countBytes(0, len(echo)+len(head))
		s.finish(hdr, metrics.ResultNoResponse, start)
		log.Debug("no response", zap.Int("echo_len", len(echo)), zap.Int("head_len", len(head)))
		s.trace(res.ID, metrics.ResultNoResponse, sealed, head)
		return nil, ErrNoResponse
	}

	// 3. 报文体：n 字节数据 + 固定开销
	want := int(head[1]) + cctalk.FrameOverhead
	body, err := s.port.ReadExactly(want)
	if err != nil {
		s.countCommand(hdr, metrics.ResultError)
		return nil, fmt.Errorf("read body: %w", err)
	}
	s.countBytes(0, len(echo)+len(head)+len(body))
	if len(body) < want {
		s.finish(hdr, metrics.ResultNoResponse, start)
		log.Debug("short body", zap.Int("want", want), zap.Int("got", len(body)))
		s.trace(res.ID, metrics.ResultNoResponse, sealed, append(head, body...))
		return nil, ErrNoResponse
	}

	// 读到的总字节不超过未封装请求长度，视为无应答；无回显设备的短应答仍然有效
	if len(echo)+len(head)+len(body) <= cctalk.FrameOverhead+len(payload) {
		s.finish(hdr, metrics.ResultNoResponse, start)
		s.trace(res.ID, metrics.ResultNoResponse, sealed, append(head, body...))
		return nil, ErrNoResponse
	}

	raw := make([]byte, 0, len(head)+len(body))
	raw = append(raw, head...)
	raw = append(raw, body...)
	res.Response = raw

	frame, valid := cctalk.Parse(s.mode, raw)
	if !frame.Complete() {
		s.finish(hdr, metrics.ResultMalformed, start)
		log.Warn("malformed response", logging.Frame("response", raw))
		s.trace(res.ID, metrics.ResultMalformed, sealed, raw)
		return nil, fmt.Errorf("%w: %d bytes after strip", cctalk.ErrMalformedFrame, len(frame.Stripped))
	}

	res.Header = frame.Header
	res.Payload = frame.Payload
	res.Valid = valid
	res.Duration = time.Since(start)

	if !valid {
		log.Warn("integrity check failed",
			logging.Frame("request", sealed),
			logging.Frame("response", raw),
		)
		if s.metrics != nil {
			s.metrics.IntegrityErrors.WithLabelValues(s.mode.String()).Inc()
		}
		s.finish(hdr, metrics.ResultIntegrityError, start)
		s.trace(res.ID, metrics.ResultIntegrityError, sealed, raw)
		return res, nil
	}

	s.lastOK.Store(time.Now().UnixNano())
	s.finish(hdr, metrics.ResultOK, start)
	s.trace(res.ID, metrics.ResultOK, sealed, raw)
	return res, nil
}

// trace 每次交换的收发帧，写入 wire 日志
func (s *Session) trace(id, result string, request, response []byte) {
	s.wire.Debug("exchange",
		zap.String("exchange_id", id),
		zap.Uint8("address", s.address),
		zap.Stringer("mode", s.mode),
		zap.String("result", result),
		logging.Frame("request", request),
		logging.Frame("response", response),
	)
}

func (s *Session) finish(header, result string, start time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.CommandsTotal.WithLabelValues(header, result).Inc()
	s.metrics.ExchangeSeconds.Observe(time.Since(start).Seconds())
}

func (s *Session) countCommand(header, result string) {
	if s.metrics != nil {
		s.metrics.CommandsTotal.WithLabelValues(header, result).Inc()
	}
}

func (s *Session) countBytes(written, read int) {
	if s.metrics == nil {
		return
	}
	if written > 0 {
		s.metrics.BytesWritten.Add(float64(written))
	}
	if read > 0 {
		s.metrics.BytesRead.Add(float64(read))
	}
}
