package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunTool(t *testing.T) {
	tests := []struct {
		name   string
		mode   string
		args   []string
		code   int
		stdout []string
	}{
		{"默认seal", "crc16", []string{"seal"}, 0, []string{"Output: 1 2 116 0 31 0 84"}},
		{"默认unseal", "crc16", []string{"unseal"}, 0, []string{"Output: 1 2 0 31 0", "Valid:  true", "Header: 0"}},
		{"checksum seal", "checksum8", []string{"seal", "40", "0", "159"}, 0, []string{"Output: 40 0 1 159 56"}},
		{"逗号与十六进制", "crc16", []string{"seal", "0x28,0,0xFE"}, 0, []string{"Hex:    28 00 B6 FE 21"}},
		{"校验失败", "crc16", []string{"unseal", "1", "2", "117", "0", "31", "0", "84"}, 0, []string{"Valid:  false"}},
		{"长度字节不符", "crc16", []string{"seal", "40", "2", "1"}, 1, nil},
		{"非法字节", "crc16", []string{"seal", "40", "0", "300"}, 1, nil},
		{"未知命令", "crc16", []string{"frobnicate"}, 1, nil},
		{"非法校验方式", "parity", []string{"seal"}, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out, errOut bytes.Buffer
			code := runTool(&out, &errOut, tt.mode, tt.args)
			require.Equal(t, tt.code, code, errOut.String())
			for _, s := range tt.stdout {
				assert.Contains(t, out.String(), s)
			}
			if tt.code != 0 {
				assert.NotEmpty(t, errOut.String())
			}
		})
	}
}

func TestRunTool_UnsealTooShort(t *testing.T) {
	var out, errOut bytes.Buffer
	code := runTool(&out, &errOut, "crc16", []string{"unseal", "1", "0", "2", "3"})
	require.Equal(t, 0, code, errOut.String())
	assert.Contains(t, out.String(), "Valid:  false")
	assert.NotContains(t, out.String(), "Header:")
}
