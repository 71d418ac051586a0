package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRegistry 创建自定义 Prometheus Registry，并注册常用采集器
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler 返回 Prometheus 指标 HTTP 处理器
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// 命令结果标签
const (
	ResultOK             = "ok"
	ResultNoResponse     = "no_response"
	ResultIntegrityError = "integrity_error"
	ResultMalformed      = "malformed"
	ResultError          = "error"
)

// AppMetrics ccTalk 驱动指标
type AppMetrics struct {
	CommandsTotal    *prometheus.CounterVec // labels: header, result
	BytesWritten     prometheus.Counter
	BytesRead        prometheus.Counter
	EchoMissingTotal prometheus.Counter
	IntegrityErrors  *prometheus.CounterVec // labels: mode
	ExchangeSeconds  prometheus.Histogram
	ScanDevices      prometheus.Gauge // 最近一次扫描发现的设备数
	PollChangesTotal prometheus.Counter
}

// NewAppMetrics 注册并返回驱动指标
func NewAppMetrics(reg prometheus.Registerer) *AppMetrics {
	m := &AppMetrics{
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cctalk_commands_total",
			Help: "ccTalk command exchanges by header and result.",
		}, []string{"header", "result"}),
		BytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cctalk_bytes_written_total",
			Help: "Total bytes written to the serial port.",
		}),
		BytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cctalk_bytes_read_total",
			Help: "Total bytes read from the serial port, echo included.",
		}),
		EchoMissingTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cctalk_echo_missing_total",
			Help: "Exchanges where no loopback echo was read.",
		}),
		IntegrityErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cctalk_integrity_errors_total",
			Help: "Responses failing CRC/checksum verification.",
		}, []string{"mode"}),
		ExchangeSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cctalk_exchange_seconds",
			Help:    "Duration of a full command exchange.",
			Buckets: []float64{0.005, 0.01, 0.02, 0.05, 0.1, 0.2, 0.5, 1},
		}),
		ScanDevices: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cctalk_scan_devices",
			Help: "Devices found by the last address/mode scan.",
		}),
		PollChangesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cctalk_poll_changes_total",
			Help: "Polling results that differed from the previous poll.",
		}),
	}
	reg.MustRegister(m.CommandsTotal, m.BytesWritten, m.BytesRead, m.EchoMissingTotal,
		m.IntegrityErrors, m.ExchangeSeconds, m.ScanDevices, m.PollChangesTotal)
	return m
}
