// Package serialport 提供会话依赖的串口能力集：写、定长读（允许短读）、清空输入缓冲、可配置超时
package serialport

import (
	"errors"
	"time"
)

var (
	ErrClosed = errors.New("serial port closed")
)

// Port 半双工串口抽象。ReadExactly 在超时内尽量读满 n 字节，超时返回已读部分，不视为错误。
type Port interface {
	Write(b []byte) (int, error)
	ReadExactly(n int) ([]byte, error)
	FlushInput() error
	SetTimeout(d time.Duration) error
	Timeout() time.Duration
	Close() error
}

// Options 打开串口参数
type Options struct {
	BaudRate int
	Timeout  time.Duration
}

// DefaultOptions ccTalk 常用 9600 8N1，读超时 20ms
func DefaultOptions() Options {
	return Options{BaudRate: 9600, Timeout: 20 * time.Millisecond}
}

// Info 可用串口描述
type Info struct {
	Name         string `json:"name"`
	Description  string `json:"description,omitempty"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
}
