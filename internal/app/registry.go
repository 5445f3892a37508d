package app

import (
	"fmt"

	"go.uber.org/zap"

	cfgpkg "github.com/taoyao-code/fdm-driver/internal/config"
	"github.com/taoyao-code/fdm-driver/internal/registry"
	redisstorage "github.com/taoyao-code/fdm-driver/internal/storage/redis"
)

// NewRegistry 按配置选择设备登记后端
func NewRegistry(cfg cfgpkg.RegistryConfig, client *redisstorage.Client, logger *zap.Logger) (registry.Registry, error) {
	switch cfg.Backend {
	case "", "memory":
		logger.Info("device registry: memory")
		return registry.NewMemory(), nil
	case "redis":
		if client == nil {
			return nil, fmt.Errorf("registry backend redis requires an enabled redis client")
		}
		r := registry.NewRedisRegistry(client.Client, GenerateServerID(cfg.ServerID), cfg.TTL)
		logger.Info("device registry: redis",
			zap.String("server_id", r.ServerID()),
			zap.Duration("ttl", cfg.TTL))
		return r, nil
	default:
		return nil, fmt.Errorf("unknown registry backend %q", cfg.Backend)
	}
}
