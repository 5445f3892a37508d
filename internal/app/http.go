package app

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	cfgpkg "github.com/taoyao-code/fdm-driver/internal/config"
	"github.com/taoyao-code/fdm-driver/internal/driver"
	"github.com/taoyao-code/fdm-driver/internal/health"
	"github.com/taoyao-code/fdm-driver/internal/httpserver"
	"github.com/taoyao-code/fdm-driver/internal/registry"
)

// NewHTTPServer 创建诊断 HTTP 服务：探针、指标、健康报告与设备查询
func NewHTTPServer(cfg *cfgpkg.Config, metricsHandler http.Handler, agg *health.Aggregator, drv *driver.Driver, reg registry.Registry) *httpserver.Server {
	if !cfg.Metrics.Enable {
		metricsHandler = nil
	}
	readyFn := func() bool { return agg.Ready(context.Background()) }
	return httpserver.New(cfg.HTTP, cfg.Metrics.Path, metricsHandler, readyFn,
		func(r gin.IRouter) { health.RegisterHTTPRoutes(r, agg) },
		httpserver.DeviceRoutes(drv, reg),
	)
}
