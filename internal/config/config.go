package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig 诊断 HTTP 服务配置
type HTTPConfig struct {
	Enable       bool          `mapstructure:"enable"`
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
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
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// RedisConfig Redis 连接配置
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// RegistryConfig 设备在线登记配置
type RegistryConfig struct {
	Backend  string        `mapstructure:"backend"` // memory | redis
	TTL      time.Duration `mapstructure:"ttl"`
	ServerID string        `mapstructure:"serverId"`
}

// DriverConfig FDM 驱动可调项
// 串口参数、T1/T2、重试次数与 10s 扫描周期为协议固定值，不在此配置
type DriverConfig struct {
	StatusMapPath         string        `mapstructure:"statusMapPath"`
	ProbeFailureThreshold int           `mapstructure:"probeFailureThreshold"`
	ProbeCooldown         time.Duration `mapstructure:"probeCooldown"`
	HandshakeRate         int           `mapstructure:"handshakeRate"`
	HandshakeBurst        int           `mapstructure:"handshakeBurst"`
	ExcludePorts          []string      `mapstructure:"excludePorts"`
}

// Config 顶层配置结构
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Registry RegistryConfig `mapstructure:"registry"`
	Driver   DriverConfig   `mapstructure:"driver"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试从环境变量 FDM_CONFIG 读取；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("FDM_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// 环境变量覆盖：前缀 FDM_，并将点号替换为下划线
	v.SetEnvPrefix("FDM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

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

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch c.Registry.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("invalid registry.backend %q (memory|redis)", c.Registry.Backend)
	}
	if c.Registry.Backend == "redis" && !c.Redis.Enabled {
		return errors.New("registry.backend=redis requires redis.enabled")
	}
	if c.Driver.ProbeFailureThreshold < 0 {
		return fmt.Errorf("invalid driver.probeFailureThreshold %d", c.Driver.ProbeFailureThreshold)
	}
	if c.Driver.HandshakeRate < 0 || c.Driver.HandshakeBurst < 0 {
		return errors.New("driver.handshakeRate and driver.handshakeBurst must not be negative")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "fdm-driver")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.enable", true)
	v.SetDefault("http.addr", "127.0.0.1:8089")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/fdm-driver.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 10)
	v.SetDefault("redis.minIdleConns", 2)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")

	v.SetDefault("registry.backend", "memory")
	v.SetDefault("registry.ttl", "30s")
	v.SetDefault("registry.serverId", "")

	v.SetDefault("driver.statusMapPath", "")
	v.SetDefault("driver.probeFailureThreshold", 0)
	v.SetDefault("driver.probeCooldown", "5m")
	v.SetDefault("driver.handshakeRate", 2)
	v.SetDefault("driver.handshakeBurst", 4)
	v.SetDefault("driver.excludePorts", []string{})
}
