package cctalk

import (
	"errors"
	"fmt"
)

const (
	// SourceAddress checksum 模式下 index 2 固定填入的主机源地址
	SourceAddress = 1

	// MaxPayload 长度字段为单字节
	MaxPayload = 255

	// FrameOverhead 地址+长度之后的固定开销：index 2 字节 + header + 末尾校验字节。
	// 两种校验方式开销一致，会话依赖此值按长度字节定界响应。
	FrameOverhead = 3

	minCRCFrame      = 5 // dest + len + lsb + header + msb
	minChecksumFrame = 2
)

var (
	ErrPayloadTooLong = errors.New("payload too long")
	ErrMalformedFrame = errors.New("malformed frame")
)

// Frame 去除校验字节后的帧：Stripped = [address, len, header, ...payload]
type Frame struct {
	Stripped []byte
	Header   byte
	Payload  []byte

	complete bool
}

// Address 目的地址回显
func (f Frame) Address() byte {
	if len(f.Stripped) == 0 {
		return 0
	}
	return f.Stripped[0]
}

// Complete 校验字节已去除且至少包含 address、len、header；过短输入恒为 false
func (f Frame) Complete() bool {
	return f.complete
}

// Build 组帧并按 mode 施加校验字节：
//
//	CRC16:     [address, len, lsb, header, ...payload, msb]
//	Checksum8: [address, len, 1, header, ...payload, checksum]
func Build(mode Mode, address, header byte, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLong, len(payload))
	}
	base := make([]byte, 0, len(payload)+3)
	base = append(base, address, byte(len(payload)), header)
	base = append(base, payload...)

	switch mode {
	case ModeCRC16:
		msb, lsb := CRC16(base)
		out := make([]byte, 0, len(base)+2)
		out = append(out, base[0], base[1], lsb)
		out = append(out, base[2:]...)
		out = append(out, msb)
		return out, nil
	case ModeChecksum8:
		out := make([]byte, 0, len(base)+2)
		out = append(out, base[0], base[1], SourceAddress)
		out = append(out, base[2:]...)
		out = append(out, Checksum8(out))
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(mode))
	}
}

// Parse 去除校验字节并校验，raw 需已按帧长定界。
// 只读切片，不修改 raw；过短输入不报错，仅返回 valid=false。
func Parse(mode Mode, raw []byte) (Frame, bool) {
	switch mode {
	case ModeCRC16:
		return parseCRC(raw)
	case ModeChecksum8:
		return parseChecksum(raw)
	default:
		return unstripped(raw), false
	}
}

func parseCRC(raw []byte) (Frame, bool) {
	if len(raw) < minCRCFrame {
		return unstripped(raw), false
	}
	msb := raw[len(raw)-1]
	lsb := raw[2]

	stripped := make([]byte, 0, len(raw)-2)
	stripped = append(stripped, raw[:2]...)
	stripped = append(stripped, raw[3:len(raw)-1]...)

	wantMSB, wantLSB := CRC16(stripped)
	return newFrame(stripped), wantMSB == msb && wantLSB == lsb
}

func parseChecksum(raw []byte) (Frame, bool) {
	if len(raw) < minChecksumFrame {
		return unstripped(raw), false
	}
	body := raw[:len(raw)-1]
	valid := VerifyChecksum8(body, raw[len(raw)-1])

	// 去掉 index 2 的源地址，与 CRC 模式返回形状一致
	if len(body) >= 3 {
		stripped := make([]byte, 0, len(body)-1)
		stripped = append(stripped, body[:2]...)
		stripped = append(stripped, body[3:]...)
		return newFrame(stripped), valid
	}
	return newFrame(body), valid
}

func newFrame(b []byte) Frame {
	f := Frame{Stripped: append([]byte(nil), b...)}
	if len(f.Stripped) >= 3 {
		f.Header = f.Stripped[2]
		f.Payload = f.Stripped[3:]
		f.complete = true
	}
	return f
}

// unstripped 无法定位校验字节：原样拷贝，不解释 header/payload
func unstripped(raw []byte) Frame {
	return Frame{Stripped: append([]byte(nil), raw...)}
}
