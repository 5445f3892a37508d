package bootstrap

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/fdm-driver/internal/app"
	cfgpkg "github.com/taoyao-code/fdm-driver/internal/config"
	"github.com/taoyao-code/fdm-driver/internal/metrics"
)

// Run 统一启动流程：依赖就绪后再启动扫描，收到信号后按相反顺序关闭
func Run(cfg *cfgpkg.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return run(ctx, cfg, log)
}

func run(ctx context.Context, cfg *cfgpkg.Config, log *zap.Logger) error {
	log.Info("starting fdm driver", zap.String("app", cfg.App.Name), zap.String("env", cfg.App.Env))

	// ========== 阶段1: 指标 ==========
	reg := metrics.NewRegistry()
	dm := metrics.NewDriverMetrics(reg)

	// ========== 阶段2: Redis 与设备登记 ==========
	redisClient, err := app.NewRedisClient(cfg.Redis, log)
	if err != nil {
		log.Error("redis initialization failed", zap.Error(err))
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	devReg, err := app.NewRegistry(cfg.Registry, redisClient, log)
	if err != nil {
		return err
	}

	// ========== 阶段3: 驱动 ==========
	drv := app.NewDriver(cfg.Driver, log, dm, devReg)
	drv.Start(ctx)

	// ========== 阶段4: HTTP（可选）==========
	var httpErr chan error
	healthAgg := app.NewHealthAggregator(drv, redisClient)
	httpSrv := app.NewHTTPServer(cfg, metrics.Handler(reg), healthAgg, drv, devReg)
	if cfg.HTTP.Enable {
		httpErr = make(chan error, 1)
		go func() {
			if err := httpSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				httpErr <- err
			}
		}()
		log.Info("http server started", zap.String("addr", httpSrv.Addr()))
	}

	// ========== 阶段5: 等待关闭 ==========
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal, gracefully shutting down...")
	case runErr = <-httpErr:
		log.Error("http server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if cfg.HTTP.Enable {
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http shutdown", zap.Error(err))
		}
		log.Info("http server stopped")
	}
	if err := drv.Stop(shutdownCtx); err != nil {
		log.Warn("driver shutdown", zap.Error(err))
	}

	log.Info("shutdown complete")
	return runErr
}
