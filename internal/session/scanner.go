package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
)

// DefaultScanTimeout 扫描时每次读调用的超时
const DefaultScanTimeout = 20 * time.Millisecond

// Candidate 扫描候选
type Candidate struct {
	Address byte
	Mode    cctalk.Mode
}

// ScanOrder 常见地址优先：40（纸币器）、2（投币器）、1（主机），其余 3..255 顺序
func ScanOrder() []byte {
	order := make([]byte, 0, 255)
	order = append(order, 40, 2, 1)
	for a := 3; a <= 255; a++ {
		if a == 40 {
			continue
		}
		order = append(order, byte(a))
	}
	return order
}

// Candidates 地址 × 校验方式，地址为外层循环
func Candidates() []Candidate {
	addrs := ScanOrder()
	out := make([]Candidate, 0, len(addrs)*len(cctalk.Modes))
	for _, a := range addrs {
		for _, m := range cctalk.Modes {
			out = append(out, Candidate{Address: a, Mode: m})
		}
	}
	return out
}

// Scanner 遍历全部地址与校验方式寻找在线设备
type Scanner struct {
	session  *Session
	timeout  time.Duration
	registry *Registry
	log      *zap.Logger

	// OnFound 每发现一台设备回调一次（持有会话锁期间调用，不可再调用会话）
	OnFound func(Device)
}

// NewScanner registry 可为 nil
func NewScanner(s *Session, timeout time.Duration, registry *Registry, log *zap.Logger) *Scanner {
	if timeout <= 0 {
		timeout = DefaultScanTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Scanner{session: s, timeout: timeout, registry: registry, log: log}
}

// Scan 全量扫描。整个过程独占会话；结束时（含 ctx 取消）恢复原地址、校验方式与超时。
func (sc *Scanner) Scan(ctx context.Context) (devices []Device, err error) {
	s := sc.session
	s.mu.Lock()
	defer s.mu.Unlock()

	scanID := uuid.NewString()
	log := sc.log.With(zap.String("scan_id", scanID))

	savedAddr, savedMode, savedTimeout := s.address, s.mode, s.timeout
	defer func() {
		s.address, s.mode = savedAddr, savedMode
		if rerr := s.port.SetTimeout(savedTimeout); rerr != nil && err == nil {
			err = rerr
		}
		s.timeout = savedTimeout
		if s.metrics != nil {
			s.metrics.ScanDevices.Set(float64(len(devices)))
		}
		log.Info("scan finished", zap.Int("devices", len(devices)), zap.Error(err))
	}()

	if err := s.port.SetTimeout(sc.timeout); err != nil {
		return nil, err
	}
	s.timeout = sc.timeout
	log.Info("scan started", zap.Duration("timeout", sc.timeout))

	for _, c := range Candidates() {
		if err := ctx.Err(); err != nil {
			return devices, err
		}
		s.address, s.mode = c.Address, c.Mode

		res, err := s.exchange(ctx, cctalk.HeaderSimplePoll, nil)
		if err != nil {
			if skippable(err) {
				continue
			}
			return devices, err
		}
		if !res.Valid {
			continue
		}

		dev := Device{Address: c.Address, Mode: c.Mode, LastSeen: time.Now()}
		if id, err := s.exchange(ctx, cctalk.HeaderManufacturerID, nil); err == nil && id.Valid {
			if text, ok := cctalk.ASCII(id.Payload); ok {
				dev.Manufacturer = strings.TrimSpace(text)
			}
		} else if err != nil && !skippable(err) {
			return devices, err
		}

		log.Info("device found",
			zap.Uint8("address", dev.Address),
			zap.Stringer("mode", dev.Mode),
			zap.String("manufacturer", dev.Manufacturer),
		)
		devices = append(devices, dev)
		if sc.registry != nil {
			sc.registry.Upsert(dev)
		}
		if sc.OnFound != nil {
			sc.OnFound(dev)
		}
	}
	return devices, nil
}

// skippable 单个候选无应答或帧残缺时继续扫描
func skippable(err error) bool {
	return errors.Is(err, ErrNoResponse) || errors.Is(err, cctalk.ErrMalformedFrame)
}
