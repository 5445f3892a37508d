package app

import (
	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/fdm-driver/internal/config"
	"github.com/taoyao-code/fdm-driver/internal/driver"
	"github.com/taoyao-code/fdm-driver/internal/metrics"
	"github.com/taoyao-code/fdm-driver/internal/protocol/fdm"
	"github.com/taoyao-code/fdm-driver/internal/registry"
)

// LoadStatusTable 加载状态码表；未配置或加载失败时使用内置表
func LoadStatusTable(path string, logger *zap.Logger) *fdm.StatusTable {
	if path == "" {
		return fdm.DefaultStatusTable()
	}
	t, err := fdm.LoadStatusTable(path)
	if err != nil {
		logger.Warn("load fdm status map failed, using built-in table", zap.String("path", path), zap.Error(err))
		return fdm.DefaultStatusTable()
	}
	logger.Info("fdm status map loaded", zap.String("path", path), zap.Int("codes", len(t.Codes)))
	return t
}

// NewDriver 按配置创建 FDM 驱动（未启动）
func NewDriver(cfg cfgpkg.DriverConfig, logger *zap.Logger, m *metrics.DriverMetrics, reg registry.Registry) *driver.Driver {
	return driver.New(driver.Options{
		Logger:                logger,
		Metrics:               m,
		Status:                LoadStatusTable(cfg.StatusMapPath, logger),
		Registry:              reg,
		ProbeFailureThreshold: cfg.ProbeFailureThreshold,
		ProbeCooldown:         cfg.ProbeCooldown,
		HandshakeRate:         cfg.HandshakeRate,
		HandshakeBurst:        cfg.HandshakeBurst,
		ExcludePorts:          cfg.ExcludePorts,
	})
}
