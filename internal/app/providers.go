// Package app 组装驱动各组件的构造函数
package app

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/cctalk-host/internal/config"
	"github.com/taoyao-code/cctalk-host/internal/health"
	"github.com/taoyao-code/cctalk-host/internal/httpserver"
	"github.com/taoyao-code/cctalk-host/internal/metrics"
	"github.com/taoyao-code/cctalk-host/internal/poller"
	"github.com/taoyao-code/cctalk-host/internal/protocol/cctalk"
	"github.com/taoyao-code/cctalk-host/internal/serialport"
	"github.com/taoyao-code/cctalk-host/internal/session"
)

// Opener 打开串口；测试中替换为 Mock
type Opener func(name string, opts serialport.Options) (serialport.Port, error)

// OpenSerial 默认 Opener（go.bug.st/serial）
func OpenSerial(name string, opts serialport.Options) (serialport.Port, error) {
	return serialport.Open(name, opts)
}

// NewMetrics 初始化注册表与应用指标
func NewMetrics() (*prometheus.Registry, *metrics.AppMetrics) {
	reg := metrics.NewRegistry()
	return reg, metrics.NewAppMetrics(reg)
}

// LoadHeaders 默认 header 表，配置了覆盖文件时合并；覆盖文件读取失败只告警
func LoadHeaders(path string, log *zap.Logger) *cctalk.HeaderTable {
	table := cctalk.DefaultHeaderTable()
	if path == "" {
		return table
	}
	override, err := cctalk.LoadHeaderTable(path)
	if err != nil {
		log.Warn("load header table failed, using defaults", zap.String("path", path), zap.Error(err))
		return table
	}
	table.Merge(override)
	log.Info("header table loaded", zap.String("path", path), zap.Int("overrides", len(override.Names)))
	return table
}

// Driver 串口会话及其上的扫描器、设备表、轮询器
type Driver struct {
	Port     serialport.Port
	Session  *session.Session
	Scanner  *session.Scanner
	Registry *session.Registry
	Poller   *poller.Poller
}

// NewDriver 打开串口并构造会话；校验方式非法在此失败
func NewDriver(cfg cfgpkg.SerialConfig, open Opener, appm *metrics.AppMetrics, log *zap.Logger) (*Driver, error) {
	mode, err := cctalk.ParseMode(cfg.Integrity)
	if err != nil {
		return nil, err
	}
	if cfg.Address < 1 || cfg.Address > 255 {
		return nil, fmt.Errorf("%w: %d", session.ErrInvalidAddress, cfg.Address)
	}

	port, err := open(cfg.Port, serialport.Options{BaudRate: cfg.Baud, Timeout: cfg.ReadTimeout})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", cfg.Port, err)
	}

	sess, err := session.New(port, session.Options{
		Address: byte(cfg.Address),
		Mode:    mode,
		Timeout: cfg.ReadTimeout,
		Logger:  log.Named("session"),
		Metrics: appm,
	})
	if err != nil {
		_ = port.Close()
		return nil, err
	}

	registry := session.NewRegistry(cfg.OfflineAfter)
	return &Driver{
		Port:     port,
		Session:  sess,
		Scanner:  session.NewScanner(sess, cfg.ScanTimeout, registry, log.Named("scanner")),
		Registry: registry,
		Poller:   poller.New(sess, poller.Options{Logger: log.Named("poller"), Metrics: appm}),
	}, nil
}

// Close 停止轮询并关闭串口
func (d *Driver) Close() error {
	d.Poller.Stop()
	return d.Port.Close()
}

// NewHealthAggregator 串口与轮询检查器
func NewHealthAggregator(cfg cfgpkg.SerialConfig, ready *health.Readiness, d *Driver) *health.Aggregator {
	return health.NewAggregator(
		health.NewSerialChecker(cfg.Port, ready, d.Session, cfg.OfflineAfter),
		health.NewPollerChecker(d.Poller),
	)
}

// NewHTTPServer 根据配置创建 HTTP 服务器
func NewHTTPServer(cfg cfgpkg.HTTPConfig, m cfgpkg.MetricsConfig, metricsHandler http.Handler, readyFn func() bool, log *zap.Logger) *httpserver.Server {
	if !m.Enable {
		metricsHandler = nil
	}
	return httpserver.New(cfg, m.Path, metricsHandler, readyFn, log.Named("http"))
}
