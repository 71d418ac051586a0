package cctalk

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		wantMSB byte
		wantLSB byte
	}{
		{"空数据", []byte{}, 0x00, 0x00},
		{"标准校验串 123456789", []byte("123456789"), 0x31, 0xC3},
		{"ccTalk 文档示例", []byte{1, 2, 0, 31, 0}, 84, 116},
		{"simple poll 地址40", []byte{40, 0, 254}, 0x21, 0xB6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msb, lsb := CRC16(tt.data)
			assert.Equal(t, tt.wantMSB, msb, "msb")
			assert.Equal(t, tt.wantLSB, lsb, "lsb")
		})
	}
}

func TestCRC16_Deterministic(t *testing.T) {
	data := []byte{40, 11, 159, 3, 5, 0, 0, 0, 0, 0, 0, 0, 0, 0}
	m1, l1 := CRC16(data)
	m2, l2 := CRC16(data)
	assert.Equal(t, m1, m2)
	assert.Equal(t, l1, l2)

	// 单 bit 变化应改变结果
	flipped := append([]byte(nil), data...)
	flipped[3] ^= 0x01
	m3, l3 := CRC16(flipped)
	assert.False(t, m1 == m3 && l1 == l3)
}

func TestChecksum8(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"空数据", nil, 0},
		{"读纸币事件 地址40", []byte{40, 0, 1, 159}, 56},
		{"simple poll 地址2", []byte{2, 0, 1, 254}, 255},
		{"和为256整数倍", []byte{128, 128}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Checksum8(tt.data)
			if got != tt.want {
				t.Fatalf("Checksum8() = %d, want %d", got, tt.want)
			}
			var sum int
			for _, b := range tt.data {
				sum += int(b)
			}
			if (sum+int(got))%256 != 0 {
				t.Fatalf("sum+checksum not zero mod 256: %d", (sum+int(got))%256)
			}
		})
	}
}

func TestVerifyChecksum8(t *testing.T) {
	data := []byte{40, 0, 1, 159}
	assert.True(t, VerifyChecksum8(data, 56))
	assert.False(t, VerifyChecksum8(data, 57))
	assert.False(t, VerifyChecksum8(data, 0))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"crc16", ModeCRC16, false},
		{"CRC", ModeCRC16, false},
		{"checksum8", ModeChecksum8, false},
		{" checksum ", ModeChecksum8, false},
		{"md5", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseMode(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidMode))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMode_Text(t *testing.T) {
	b, err := ModeChecksum8.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "checksum8", string(b))

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("crc16")))
	assert.Equal(t, ModeCRC16, m)

	_, err = Mode(7).MarshalText()
	assert.ErrorIs(t, err, ErrInvalidMode)
	assert.False(t, Mode(7).Valid())
}
