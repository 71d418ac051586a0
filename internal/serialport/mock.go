package serialport

import (
	"sync"
	"time"
)

// Responder 根据写入的帧返回设备应答字节（nil 表示无应答）
type Responder func(written []byte) []byte

// Mock 内存串口：可选回显写入字节，再追加 Responder 的应答
type Mock struct {
	mu       sync.Mutex
	rx       []byte
	writes   [][]byte
	timeout  time.Duration
	closed   bool
	flushes  int
	echo     bool
	respond  Responder
	timeouts []time.Duration

	// 模拟设备不回显且应答迟到：应答字节在 lag 次空读之后才可读
	lag     int
	lagLeft int
	pending []byte
}

// NewMock echo=true 时模拟硬件环回
func NewMock(echo bool, respond Responder) *Mock {
	return &Mock{echo: echo, respond: respond, timeout: DefaultOptions().Timeout}
}

// SetResponder 替换应答函数
func (m *Mock) SetResponder(r Responder) {
	m.mu.Lock()
	m.respond = r
	m.mu.Unlock()
}

// SetLag 应答延后 reads 次空读才出现（仅作用于 Responder 输出）
func (m *Mock) SetLag(reads int) {
	m.mu.Lock()
	m.lag = reads
	m.mu.Unlock()
}

// Feed 直接注入待读字节
func (m *Mock) Feed(b []byte) {
	m.mu.Lock()
	m.rx = append(m.rx, b...)
	m.mu.Unlock()
}

func (m *Mock) Write(b []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	dup := append([]byte(nil), b...)
	m.writes = append(m.writes, dup)
	if m.echo {
		m.rx = append(m.rx, dup...)
	}
	if m.respond != nil {
		resp := m.respond(dup)
		if m.lag > 0 {
			m.pending = append(m.pending, resp...)
			m.lagLeft = m.lag
		} else {
			m.rx = append(m.rx, resp...)
		}
	}
	return len(b), nil
}

func (m *Mock) ReadExactly(n int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if len(m.rx) == 0 && m.lagLeft > 0 {
		m.lagLeft--
		if m.lagLeft == 0 {
			m.rx, m.pending = m.pending, nil
		}
		return nil, nil
	}
	if n > len(m.rx) {
		n = len(m.rx)
	}
	out := append([]byte(nil), m.rx[:n]...)
	m.rx = m.rx[n:]
	return out, nil
}

func (m *Mock) FlushInput() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.rx = nil
	m.pending = nil
	m.lagLeft = 0
	m.flushes++
	return nil
}

func (m *Mock) SetTimeout(d time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeout = d
	m.timeouts = append(m.timeouts, d)
	return nil
}

func (m *Mock) Timeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeout
}

func (m *Mock) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Writes 已写入的帧（副本）
func (m *Mock) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.writes))
	for i, w := range m.writes {
		out[i] = append([]byte(nil), w...)
	}
	return out
}

// Flushes FlushInput 调用次数
func (m *Mock) Flushes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushes
}

// TimeoutHistory SetTimeout 调用序列
func (m *Mock) TimeoutHistory() []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.timeouts...)
}
