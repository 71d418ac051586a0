package logging

import (
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	cfgpkg "github.com/taoyao-code/cctalk-host/internal/config"
)

// WireLogger 串口收发帧跟踪日志器名称（如 session.wire）
const WireLogger = "wire"

// ParseLevel 解析日志级别，空串为 info
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return zapcore.InfoLevel, nil
	case "debug":
		return zapcore.DebugLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stack",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     func(t time.Time, enc zapcore.PrimitiveArrayEncoder) { enc.AppendString(t.Format(time.RFC3339Nano)) },
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

func rolling(c cfgpkg.LumberjackConfig) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   c.Filename,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxAgeDays,
		Compress:   c.Compress,
	})
}

// InitLogger 初始化 zap 日志器：stdout + 可选滚动文件；
// 配置了 wire 文件时，帧跟踪日志单独落盘且始终记录 debug，不进入主输出
func InitLogger(cfg cfgpkg.LoggingConfig) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encCfg := encoderConfig()
	var encoder zapcore.Encoder
	if strings.ToLower(cfg.Format) == "console" {
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	ws := zapcore.AddSync(os.Stdout)
	if cfg.File.Filename != "" {
		ws = zapcore.NewMultiWriteSyncer(ws, rolling(cfg.File))
	}
	core := zapcore.NewCore(encoder, ws, level)

	if cfg.Wire.Filename != "" {
		wire := zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), rolling(cfg.Wire), zapcore.DebugLevel)
		core = zapcore.NewTee(
			wireFilter{Core: core, wire: false},
			wireFilter{Core: wire, wire: true},
		)
	}

	return zap.New(core, zap.AddCaller()), nil
}

// IsWire 日志器名为 wire 或以 .wire 结尾
func IsWire(loggerName string) bool {
	return loggerName == WireLogger || strings.HasSuffix(loggerName, "."+WireLogger)
}

// wireFilter 按日志器名分流：wire=true 只放行帧跟踪，false 只放行其余
type wireFilter struct {
	zapcore.Core
	wire bool
}

func (f wireFilter) Enabled(l zapcore.Level) bool {
	return f.Core.Enabled(l)
}

func (f wireFilter) With(fields []zapcore.Field) zapcore.Core {
	return wireFilter{Core: f.Core.With(fields), wire: f.wire}
}

func (f wireFilter) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if IsWire(ent.LoggerName) != f.wire {
		return ce
	}
	return f.Core.Check(ent, ce)
}
