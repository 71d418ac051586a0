package serialport

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Serial 基于 go.bug.st/serial 的实现
type Serial struct {
	mu      sync.Mutex
	name    string
	port    serial.Port
	timeout time.Duration
	closed  bool
}

// Open 以 8N1 打开串口
func Open(name string, opts Options) (*Serial, error) {
	if opts.BaudRate <= 0 {
		opts.BaudRate = DefaultOptions().BaudRate
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	mode := &serial.Mode{
		BaudRate: opts.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(opts.Timeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("set read timeout: %w", err)
	}
	return &Serial{name: name, port: p, timeout: opts.Timeout}, nil
}

// Name 设备路径
func (s *Serial) Name() string { return s.name }

func (s *Serial) Write(b []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	return s.port.Write(b)
}

// ReadExactly 单步读取预算为一个超时周期；期间持续累积，直到读满或某次读取超时返回 0
func (s *Serial) ReadExactly(n int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if n <= 0 {
		return nil, nil
	}
	buf := make([]byte, n)
	got := 0
	deadline := time.Now().Add(s.timeout)
	for got < n {
		m, err := s.port.Read(buf[got:])
		if err != nil {
			return buf[:got], fmt.Errorf("read: %w", err)
		}
		if m == 0 {
			break
		}
		got += m
		if time.Now().After(deadline) {
			break
		}
	}
	return buf[:got], nil
}

func (s *Serial) FlushInput() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return s.port.ResetInputBuffer()
}

func (s *Serial) SetTimeout(d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.port.SetReadTimeout(d); err != nil {
		return err
	}
	s.timeout = d
	return nil
}

func (s *Serial) Timeout() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timeout
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.port.Close()
}

// List 枚举可用串口；详细信息不可用时退回到名称列表
func List() ([]Info, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil {
		out := make([]Info, 0, len(details))
		for _, d := range details {
			out = append(out, Info{
				Name:         d.Name,
				Description:  d.Product,
				IsUSB:        d.IsUSB,
				VID:          d.VID,
				PID:          d.PID,
				SerialNumber: d.SerialNumber,
			})
		}
		return out, nil
	}
	names, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("list ports: %w", err)
	}
	out := make([]Info, 0, len(names))
	for _, n := range names {
		out = append(out, Info{Name: n})
	}
	return out, nil
}
