package cctalk

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sigurn/crc16"
)

// Mode 校验方式（会话构造时选定）
type Mode int

const (
	ModeCRC16     Mode = iota // CRC16-XModem：LSB 占 index 2，MSB 追加在末尾
	ModeChecksum8             // 8位累加和补码：index 2 为源地址 1，末尾一字节校验
)

var (
	// ErrInvalidMode 非法校验方式（配置错误，构造期拒绝）
	ErrInvalidMode = errors.New("invalid integrity mode")
)

// Modes 扫描顺序：先 CRC 后 checksum
var Modes = []Mode{ModeCRC16, ModeChecksum8}

func (m Mode) String() string {
	switch m {
	case ModeCRC16:
		return "crc16"
	case ModeChecksum8:
		return "checksum8"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Valid 是否为已知校验方式
func (m Mode) Valid() bool {
	return m == ModeCRC16 || m == ModeChecksum8
}

// ParseMode 解析配置中的校验方式名称
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crc16", "crc", "crc16xmodem", "xmodem":
		return ModeCRC16, nil
	case "checksum8", "checksum", "sum8", "simple":
		return ModeChecksum8, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// MarshalText 以名称形式输出（JSON/YAML）
func (m Mode) MarshalText() ([]byte, error) {
	if !m.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, int(m))
	}
	return []byte(m.String()), nil
}

// UnmarshalText 从名称解析
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// xmodemTable CRC16-XModem 256 项查表：poly 0x1021，init 0，无反射
var xmodemTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CRC16 计算 XModem CRC，返回 (msb, lsb)
func CRC16(data []byte) (msb, lsb byte) {
	crc := crc16.Checksum(data, xmodemTable)
	return byte(crc >> 8), byte(crc & 0xFF)
}

// Checksum8 计算 8 位校验：(256 - sum%256) % 256
func Checksum8(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return -sum
}

// VerifyChecksum8 同时校验两个条件：重算值相等，且 sum(data)+checksum 模 256 为 0
func VerifyChecksum8(data []byte, checksum byte) bool {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return Checksum8(data) == checksum && sum+checksum == 0
}
