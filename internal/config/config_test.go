package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExampleFile(t *testing.T) {
	cfg, err := Load("../../configs/example.yaml")
	require.NoError(t, err, "配置文件加载失败")

	assert.Equal(t, "fdm-driver", cfg.App.Name)
	assert.Equal(t, "memory", cfg.Registry.Backend)
	assert.Equal(t, 0, cfg.Driver.ProbeFailureThreshold, "识别熔断默认关闭")
	assert.Equal(t, 5*time.Minute, cfg.Driver.ProbeCooldown)
	assert.Equal(t, []string{"/dev/ttyS0"}, cfg.Driver.ExcludePorts)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("FDM_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:8089", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 30*time.Second, cfg.Registry.TTL)
	assert.Equal(t, 2, cfg.Driver.HandshakeRate)
	assert.Equal(t, 0, cfg.Driver.ProbeFailureThreshold, "识别熔断默认关闭")
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("FDM_LOGGING_LEVEL", "debug")
	t.Setenv("FDM_DRIVER_PROBEFAILURETHRESHOLD", "7")

	cfg, err := Load("../../configs/example.yaml")
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 7, cfg.Driver.ProbeFailureThreshold)
}

func TestLoad_InvalidBackend(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(tmp, []byte("registry:\n  backend: etcd\n"), 0o644))

	_, err := Load(tmp)
	assert.Error(t, err)
}

func TestLoad_RedisBackendRequiresRedis(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "redis.yaml")
	require.NoError(t, os.WriteFile(tmp, []byte("registry:\n  backend: redis\n"), 0o644))

	_, err := Load(tmp)
	assert.Error(t, err)
}
