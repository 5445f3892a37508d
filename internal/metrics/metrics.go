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

// DriverMetrics FDM 驱动指标
type DriverMetrics struct {
	FramesReceived  *prometheus.CounterVec // labels: result=ok|bad
	ControlReceived *prometheus.CounterVec // labels: byte=ack|nack
	ControlSent     *prometheus.CounterVec // labels: byte=ack|nack
	SendTotal       *prometheus.CounterVec // labels: cmd, result=ok|timeout|disconnect
	RetryTotal      *prometheus.CounterVec // labels: cmd
	LateResponses   prometheus.Counter     // 无等待方的应答
	SessionsOpen    prometheus.Gauge       // 当前打开的串口会话数
	DevicesOnline   prometheus.Gauge       // 已识别的 FDM 数
	ScanTotal       prometheus.Counter     // 扫描轮次
	ScanSkipped     prometheus.Counter     // 因上一轮未结束而跳过
	ProbeTotal      *prometheus.CounterVec // labels: result=ok|open_error|ident_error|duplicate|breaker_open
	SendLatency     *prometheus.HistogramVec
}

// NewDriverMetrics 注册并返回驱动指标
func NewDriverMetrics(reg prometheus.Registerer) *DriverMetrics {
	m := &DriverMetrics{
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fdm_frames_received_total",
			Help: "Inbound FDM frames by validation result.",
		}, []string{"result"}),
		ControlReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fdm_control_received_total",
			Help: "Inbound ACK/NACK control bytes.",
		}, []string{"byte"}),
		ControlSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fdm_control_sent_total",
			Help: "Outbound ACK/NACK control bytes.",
		}, []string{"byte"}),
		SendTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fdm_send_total",
			Help: "Request/response exchanges by command and result.",
		}, []string{"cmd", "result"}),
		RetryTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fdm_retry_total",
			Help: "Retransmissions after response timeout.",
		}, []string{"cmd"}),
		LateResponses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdm_unsolicited_responses_total",
			Help: "Inbound frames without a waiting request.",
		}),
		SessionsOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fdm_port_sessions_open",
			Help: "Currently open serial port sessions.",
		}),
		DevicesOnline: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "fdm_devices_online",
			Help: "Currently identified FDM devices.",
		}),
		ScanTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdm_scan_total",
			Help: "Serial port scans performed.",
		}),
		ScanSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fdm_scan_skipped_total",
			Help: "Scans skipped because the previous scan was still running.",
		}),
		ProbeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fdm_probe_total",
			Help: "Port probes by outcome.",
		}, []string{"result"}),
		SendLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fdm_send_duration_seconds",
			Help:    "Time from first transmission to response or failure.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 0.75, 1.5, 2.25, 3, 4},
		}, []string{"cmd"}),
	}
	reg.MustRegister(m.FramesReceived, m.ControlReceived, m.ControlSent, m.SendTotal, m.RetryTotal,
		m.LateResponses, m.SessionsOpen, m.DevicesOnline, m.ScanTotal, m.ScanSkipped, m.ProbeTotal, m.SendLatency)
	return m
}

// ControlLabel ACK/NACK 的标签值
func ControlLabel(b byte) string {
	switch b {
	case 0x06:
		return "ack"
	case 0x15:
		return "nack"
	}
	return "other"
}
