package logging

import (
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Hex "01 02 74 00" 形式
func Hex(b []byte) string {
	var sb strings.Builder
	for i, c := range b {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strconv.FormatUint(uint64(c)>>4, 16))
		sb.WriteString(strconv.FormatUint(uint64(c)&0x0F, 16))
	}
	return strings.ToUpper(sb.String())
}

// Dec "1 2 116 0" 形式
func Dec(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = strconv.Itoa(int(c))
	}
	return strings.Join(parts, " ")
}

// Frame 帧字节的十六进制与十进制两种转储
func Frame(key string, b []byte) zap.Field {
	return zap.Dict(key,
		zap.String("hex", Hex(b)),
		zap.String("dec", Dec(b)),
		zap.Int("len", len(b)),
	)
}
