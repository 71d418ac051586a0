package session

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
	"github.com/taoyao-code/cctalk-host/internal/serialport"
)

// fakeDevice 只在指定地址与校验方式下应答：254 回空 ACK，246 回厂商名
type fakeDevice struct {
	address      byte
	mode         cctalk.Mode
	manufacturer string
}

func (d fakeDevice) respond(w []byte) []byte {
	frame, ok := cctalk.Parse(d.mode, w)
	if !ok || !frame.Complete() || frame.Address() != d.address {
		return nil
	}
	switch frame.Header {
	case cctalk.HeaderSimplePoll:
		return mustBuild(d.mode, cctalk.HeaderReply, nil)
	case cctalk.HeaderManufacturerID:
		return mustBuild(d.mode, cctalk.HeaderReply, []byte(d.manufacturer))
	}
	return nil
}

// mustBuild 设备发往主机（地址 1）的应答帧
func mustBuild(mode cctalk.Mode, header byte, payload []byte) []byte {
	b, err := cctalk.Build(mode, 1, header, payload)
	if err != nil {
		panic(err)
	}
	return b
}

func newTestSession(t *testing.T, port serialport.Port, addr byte, mode cctalk.Mode) *Session {
	t.Helper()
	s, err := New(port, Options{Address: addr, Mode: mode})
	require.NoError(t, err)
	return s
}

// counterValue 从 registry 中取计数器值（按标签过滤）
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if want, ok := labels[lp.GetName()]; ok && want != lp.GetValue() {
					continue next
				}
			}
			if c := m.GetCounter(); c != nil {
				total += c.GetValue()
			}
			if g := m.GetGauge(); g != nil {
				total += g.GetValue()
			}
		}
		return total
	}
	return 0
}
