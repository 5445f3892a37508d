package health

import (
	"context"
	"time"

	"github.com/taoyao-code/fdm-driver/internal/driver"
)

// DriverSource 驱动运行状态来源
type DriverSource interface {
	Running() bool
	LastScan() time.Time
	Devices() []driver.DeviceInfo
	ProbeStats() []driver.BreakerStats
	HandshakeStats() driver.LimiterStats
}

// DriverChecker FDM 驱动健康检查
type DriverChecker struct {
	src DriverSource
	// staleAfter 超过该时长未完成扫描视为降级
	staleAfter time.Duration
}

// NewDriverChecker 创建驱动检查器
func NewDriverChecker(src DriverSource) *DriverChecker {
	return &DriverChecker{src: src, staleAfter: 3 * driver.ScanInterval}
}

func (c *DriverChecker) Name() string {
	return "driver"
}

func (c *DriverChecker) Check(_ context.Context) CheckResult {
	start := time.Now()

	if !c.src.Running() {
		return CheckResult{
			Status:  StatusUnhealthy,
			Message: "scan loop not running",
			Latency: time.Since(start),
		}
	}

	devices := c.src.Devices()
	breakers := c.src.ProbeStats()
	suspended := 0
	for _, b := range breakers {
		if b.State == driver.StateOpen.String() {
			suspended++
		}
	}
	details := map[string]any{
		"devices_online":  len(devices),
		"ports_suspended": suspended,
		"handshake":       c.src.HandshakeStats(),
	}

	status := StatusHealthy
	message := "ok"
	last := c.src.LastScan()
	if !last.IsZero() {
		details["last_scan"] = last
		if time.Since(last) > c.staleAfter {
			status = StatusDegraded
			message = "scan overdue"
		}
	}
	if suspended > 0 && status == StatusHealthy {
		status = StatusDegraded
		message = "port probing suspended"
	}

	return CheckResult{
		Status:  status,
		Message: message,
		Details: details,
		Latency: time.Since(start),
	}
}
