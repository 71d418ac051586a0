package session

import (
	"sort"
	"sync"
	"time"

	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
)

// Device 扫描发现的设备，仅在本次运行内有效
type Device struct {
	Address      byte        `json:"address"`
	Mode         cctalk.Mode `json:"mode"`
	Manufacturer string      `json:"manufacturer"`
	LastSeen     time.Time   `json:"last_seen"`
}

// Registry 内存设备表：记录扫描结果与最近应答时间，判断是否在线
type Registry struct {
	mu       sync.RWMutex
	devices  map[byte]Device // address -> device
	lastSeen time.Time       // 任一有效应答
	timeout  time.Duration
}

func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Registry{devices: make(map[byte]Device), timeout: timeout}
}

// Upsert 记录或覆盖设备（同地址后到者覆盖）
func (r *Registry) Upsert(d Device) {
	r.mu.Lock()
	if d.LastSeen.IsZero() {
		d.LastSeen = time.Now()
	}
	r.devices[d.Address] = d
	if d.LastSeen.After(r.lastSeen) {
		r.lastSeen = d.LastSeen
	}
	r.mu.Unlock()
}

// Touch 收到有效应答时更新时间
func (r *Registry) Touch(addr byte, t time.Time) {
	r.mu.Lock()
	if d, ok := r.devices[addr]; ok {
		d.LastSeen = t
		r.devices[addr] = d
	}
	if t.After(r.lastSeen) {
		r.lastSeen = t
	}
	r.mu.Unlock()
}

// Get 按地址查询
func (r *Registry) Get(addr byte) (Device, bool) {
	r.mu.RLock()
	d, ok := r.devices[addr]
	r.mu.RUnlock()
	return d, ok
}

// List 按地址排序
func (r *Registry) List() []Device {
	r.mu.RLock()
	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, d)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Address < out[j].Address })
	return out
}

// LastSeen 最近一次有效应答时间
func (r *Registry) LastSeen() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSeen
}

// IsOnline 设备在超时窗口内有应答
func (r *Registry) IsOnline(addr byte, now time.Time) bool {
	r.mu.RLock()
	d, ok := r.devices[addr]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return now.Sub(d.LastSeen) <= r.timeout
}

// OnlineCount 窗口内在线设备数量
func (r *Registry) OnlineCount(now time.Time) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, d := range r.devices {
		if now.Sub(d.LastSeen) <= r.timeout {
			count++
		}
	}
	return count
}

// Timeout 在线判定窗口
func (r *Registry) Timeout() time.Duration {
	return r.timeout
}
