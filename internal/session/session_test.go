package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/taoyao-code/cctalk-host/internal/logging"
	"github.com/taoyao-code/cctalk-host/internal/metrics"
	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
	"github.com/taoyao-code/cctalk-host/internal/serialport"
)

func TestNew_Validation(t *testing.T) {
	port := serialport.NewMock(true, nil)

	_, err := New(port, Options{Address: 40, Mode: cctalk.Mode(9)})
	assert.ErrorIs(t, err, cctalk.ErrInvalidMode)

	_, err = New(port, Options{Address: 0, Mode: cctalk.ModeCRC16})
	assert.ErrorIs(t, err, ErrInvalidAddress)

	_, err = New(nil, Options{Address: 40, Mode: cctalk.ModeCRC16})
	assert.Error(t, err)

	s, err := New(port, Options{Address: 40, Mode: cctalk.ModeCRC16, Timeout: 50 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, Config{Address: 40, Mode: cctalk.ModeCRC16, Timeout: 50 * time.Millisecond}, s.Config())
	assert.Equal(t, 50*time.Millisecond, port.Timeout())
}

func TestCommand_ValidResponse(t *testing.T) {
	for _, mode := range cctalk.Modes {
		t.Run(mode.String(), func(t *testing.T) {
			dev := fakeDevice{address: 40, mode: mode, manufacturer: "ITL"}
			port := serialport.NewMock(true, dev.respond)
			s := newTestSession(t, port, 40, mode)

			res, err := s.Command(context.Background(), cctalk.HeaderManufacturerID, nil)
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.True(t, res.Valid)
			assert.False(t, res.EchoMissing)
			assert.Equal(t, byte(cctalk.HeaderReply), res.Header)
			assert.Equal(t, []byte("ITL"), res.Payload)
			assert.NotEmpty(t, res.ID)
			assert.False(t, s.LastResponse().IsZero())

			// 每次交换前清空输入缓冲，写入的正是封装后的帧
			assert.Equal(t, 1, port.Flushes())
			sealed, _ := cctalk.Build(mode, 40, cctalk.HeaderManufacturerID, nil)
			assert.Equal(t, [][]byte{sealed}, port.Writes())
			assert.Equal(t, sealed, res.Request)
			assert.Equal(t, mustBuild(mode, cctalk.HeaderReply, []byte("ITL")), res.Response)
		})
	}
}

func TestCommand_NoResponse(t *testing.T) {
	tests := []struct {
		name    string
		respond serialport.Responder
	}{
		{"无应答", func([]byte) []byte { return nil }},
		{"长度探测只读到1字节", func([]byte) []byte { return []byte{1} }},
		{"报文体不足", func([]byte) []byte { return []byte{1, 4, 0, 0} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := serialport.NewMock(true, tt.respond)
			s := newTestSession(t, port, 40, cctalk.ModeCRC16)

			res, err := s.Command(context.Background(), cctalk.HeaderSimplePoll, nil)
			assert.Nil(t, res)
			assert.ErrorIs(t, err, ErrNoResponse)
			assert.True(t, s.LastResponse().IsZero())
		})
	}
}

func TestCommand_SessionIdleAfterTimeout(t *testing.T) {
	dev := fakeDevice{address: 40, mode: cctalk.ModeCRC16}
	port := serialport.NewMock(true, func([]byte) []byte { return []byte{1} })
	s := newTestSession(t, port, 40, cctalk.ModeCRC16)

	_, err := s.Command(context.Background(), cctalk.HeaderSimplePoll, nil)
	require.ErrorIs(t, err, ErrNoResponse)

	// 残留字节被下一次交换前的 flush 清掉
	port.SetResponder(dev.respond)
	res, err := s.Command(context.Background(), cctalk.HeaderSimplePoll, nil)
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestCommand_EchoMissing(t *testing.T) {
	dev := fakeDevice{address: 40, mode: cctalk.ModeCRC16, manufacturer: "JCM"}
	port := serialport.NewMock(false, dev.respond)
	port.SetLag(1)

	core, logs := observer.New(zap.WarnLevel)
	reg := prometheus.NewRegistry()
	s, err := New(port, Options{
		Address: 40,
		Mode:    cctalk.ModeCRC16,
		Logger:  zap.New(core),
		Metrics: metrics.NewAppMetrics(reg),
	})
	require.NoError(t, err)

	res, err := s.Command(context.Background(), cctalk.HeaderManufacturerID, nil)
	require.NoError(t, err)
	assert.True(t, res.EchoMissing)
	assert.True(t, res.Valid)
	assert.Equal(t, []byte("JCM"), res.Payload)

	assert.Equal(t, 1, logs.FilterMessage("no echo received, check wiring").Len())
	assert.Equal(t, 1.0, counterValue(t, reg, "cctalk_echo_missing_total", nil))
}

func TestCommand_EchoMissingShortAck(t *testing.T) {
	// 空 ACK 与 simple poll 请求等长，无回显时仍是有效应答
	for _, mode := range cctalk.Modes {
		t.Run(mode.String(), func(t *testing.T) {
			dev := fakeDevice{address: 40, mode: mode}
			port := serialport.NewMock(false, dev.respond)
			port.SetLag(1)
			s := newTestSession(t, port, 40, mode)

			res, err := s.Command(context.Background(), cctalk.HeaderSimplePoll, nil)
			require.NoError(t, err)
			require.NotNil(t, res)
			assert.True(t, res.EchoMissing)
			assert.True(t, res.Valid)
			assert.Empty(t, res.Payload)
			assert.Len(t, res.Response, len(res.Request))
		})
	}
}

func TestCommand_WireTrace(t *testing.T) {
	dev := fakeDevice{address: 40, mode: cctalk.ModeCRC16}
	port := serialport.NewMock(true, dev.respond)
	core, logs := observer.New(zap.DebugLevel)
	s, err := New(port, Options{Address: 40, Mode: cctalk.ModeCRC16, Logger: zap.New(core)})
	require.NoError(t, err)

	_, err = s.Command(context.Background(), cctalk.HeaderSimplePoll, nil)
	require.NoError(t, err)

	traces := logs.FilterLoggerName(logging.WireLogger).FilterMessage("exchange").All()
	require.Len(t, traces, 1)
	ctx := traces[0].ContextMap()
	assert.Equal(t, metrics.ResultOK, ctx["result"])
	req, ok := ctx["request"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "28 00 B6 FE 21", req["hex"])
}

func TestCommand_IntegrityMismatch(t *testing.T) {
	port := serialport.NewMock(true, func([]byte) []byte {
		b := mustBuild(cctalk.ModeCRC16, cctalk.HeaderReply, []byte{7, 8})
		b[len(b)-1] ^= 0xFF
		return b
	})
	core, logs := observer.New(zap.WarnLevel)
	reg := prometheus.NewRegistry()
	s, err := New(port, Options{
		Address: 40,
		Mode:    cctalk.ModeCRC16,
		Logger:  zap.New(core),
		Metrics: metrics.NewAppMetrics(reg),
	})
	require.NoError(t, err)

	res, err := s.Command(context.Background(), cctalk.HeaderSimplePoll, nil)
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.False(t, res.Valid)
	assert.Equal(t, []byte{7, 8}, res.Payload)
	assert.True(t, s.LastResponse().IsZero())

	entries := logs.FilterMessage("integrity check failed").All()
	require.Len(t, entries, 1)
	ctx := entries[0].ContextMap()
	assert.Contains(t, ctx, "request")
	assert.Contains(t, ctx, "response")

	assert.Equal(t, 1.0, counterValue(t, reg, "cctalk_integrity_errors_total", map[string]string{"mode": "crc16"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "cctalk_commands_total", map[string]string{"result": metrics.ResultIntegrityError}))
}

func TestCommand_Errors(t *testing.T) {
	t.Run("负载过长", func(t *testing.T) {
		s := newTestSession(t, serialport.NewMock(true, nil), 40, cctalk.ModeCRC16)
		_, err := s.Command(context.Background(), 1, make([]byte, 256))
		assert.ErrorIs(t, err, cctalk.ErrPayloadTooLong)
	})
	t.Run("串口已关闭", func(t *testing.T) {
		port := serialport.NewMock(true, nil)
		s := newTestSession(t, port, 40, cctalk.ModeCRC16)
		require.NoError(t, port.Close())
		_, err := s.Command(context.Background(), cctalk.HeaderSimplePoll, nil)
		assert.ErrorIs(t, err, serialport.ErrClosed)
		assert.False(t, errors.Is(err, ErrNoResponse))
	})
	t.Run("ctx已取消", func(t *testing.T) {
		port := serialport.NewMock(true, nil)
		s := newTestSession(t, port, 40, cctalk.ModeCRC16)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := s.Command(ctx, cctalk.HeaderSimplePoll, nil)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, port.Writes())
	})
}

func TestSetters(t *testing.T) {
	port := serialport.NewMock(true, nil)
	s := newTestSession(t, port, 40, cctalk.ModeCRC16)

	require.NoError(t, s.SetAddress(2))
	require.NoError(t, s.SetMode(cctalk.ModeChecksum8))
	require.NoError(t, s.SetTimeout(100*time.Millisecond))
	assert.Equal(t, Config{Address: 2, Mode: cctalk.ModeChecksum8, Timeout: 100 * time.Millisecond}, s.Config())
	assert.Equal(t, 100*time.Millisecond, port.Timeout())

	assert.ErrorIs(t, s.SetAddress(0), ErrInvalidAddress)
	assert.ErrorIs(t, s.SetMode(cctalk.Mode(-1)), cctalk.ErrInvalidMode)
	assert.Error(t, s.SetTimeout(0))
}
