package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// SerialConfig 串口与 ccTalk 会话配置
type SerialConfig struct {
	Port        string        `mapstructure:"port"`
	Baud        int           `mapstructure:"baud"`
	Address     int           `mapstructure:"address"`
	Integrity   string        `mapstructure:"integrity"` // crc16 | checksum8
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
	ScanTimeout time.Duration `mapstructure:"scanTimeout"`
	// OfflineAfter 超过该时长无有效应答视为离线（健康检查与设备表）
	OfflineAfter time.Duration `mapstructure:"offlineAfter"`
}

// PollConfig 后台轮询配置
type PollConfig struct {
	Header    int           `mapstructure:"header"`
	Period    time.Duration `mapstructure:"period"`
	AutoStart bool          `mapstructure:"autoStart"`
}

// ProtocolConfig 协议显示相关
type ProtocolConfig struct {
	HeaderTablePath string `mapstructure:"headerTablePath"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
	// Wire 串口帧跟踪单独落盘；filename 为空则不记录
	Wire LumberjackConfig `mapstructure:"wire"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// AuthConfig API Key 认证
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"apiKeys"`
}

// RateLimitConfig API 令牌桶限流
type RateLimitConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	RatePerSec int  `mapstructure:"ratePerSec"`
	Burst      int  `mapstructure:"burst"`
}

// APIConfig 控制 API 配置
type APIConfig struct {
	Auth      AuthConfig      `mapstructure:"auth"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

// Config 顶层配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Serial   SerialConfig   `mapstructure:"serial"`
	Poll     PollConfig     `mapstructure:"poll"`
	Protocol ProtocolConfig `mapstructure:"protocol"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	API      APIConfig      `mapstructure:"api"`
}

var ErrInvalidConfig = errors.New("invalid config")

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 CCTALK_CONFIG 读取；否则回退到 configs/cctalk.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	// 环境变量覆盖：前缀 CCTALK_，并将点号替换为下划线
	v.SetEnvPrefix("CCTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("cctalk")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		// 首次运行允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 构造期校验，非法校验方式等配置直接拒绝
func (c *Config) Validate() error {
	if _, err := cctalk.ParseMode(c.Serial.Integrity); err != nil {
		return fmt.Errorf("%w: serial.integrity: %w", ErrInvalidConfig, err)
	}
	if c.Serial.Address < 1 || c.Serial.Address > 255 {
		return fmt.Errorf("%w: serial.address %d out of range 1..255", ErrInvalidConfig, c.Serial.Address)
	}
	if c.Serial.Baud <= 0 {
		return fmt.Errorf("%w: serial.baud must be positive", ErrInvalidConfig)
	}
	if c.Poll.Header < 0 || c.Poll.Header > 255 {
		return fmt.Errorf("%w: poll.header %d out of range", ErrInvalidConfig, c.Poll.Header)
	}
	return nil
}

// Mode 已校验的校验方式
func (c SerialConfig) Mode() cctalk.Mode {
	m, _ := cctalk.ParseMode(c.Integrity)
	return m
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cctalk-host")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "30s")

	v.SetDefault("serial.port", "/dev/ttyUSB0")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.address", 40)
	v.SetDefault("serial.integrity", "crc16")
	v.SetDefault("serial.readTimeout", "20ms")
	v.SetDefault("serial.scanTimeout", "20ms")
	v.SetDefault("serial.offlineAfter", "30s")

	v.SetDefault("poll.header", cctalk.HeaderReadBillEvents)
	v.SetDefault("poll.period", "1s")
	v.SetDefault("poll.autoStart", false)

	v.SetDefault("protocol.headerTablePath", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/cctalk-host.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)
	v.SetDefault("logging.wire.maxSize", 50)
	v.SetDefault("logging.wire.maxBackups", 3)
	v.SetDefault("logging.wire.maxAge", 7)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("api.auth.enabled", false)
	v.SetDefault("api.auth.apiKeys", []string{})
	v.SetDefault("api.rateLimit.enabled", true)
	v.SetDefault("api.rateLimit.ratePerSec", 20)
	v.SetDefault("api.rateLimit.burst", 40)
}
