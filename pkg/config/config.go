// 配置管理
package config

import (
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

// Config 主配置结构
type Config struct {
	System        SystemConfig        `mapstructure:"system"`
	Temporal      TemporalConfig      `mapstructure:"temporal"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Engine        EngineConfig        `mapstructure:"engine"`
	Server        ServerConfig        `mapstructure:"server"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

// SystemConfig 系统配置
type SystemConfig struct {
	Env             string        `mapstructure:"env"`
	ServiceName     string        `mapstructure:"service_name"`
	Version         string        `mapstructure:"version"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// TemporalConfig Temporal 配置
type TemporalConfig struct {
	Address   string       `mapstructure:"address"`
	Namespace string       `mapstructure:"namespace"`
	TaskQueue string       `mapstructure:"task_queue"`
	Worker    WorkerConfig `mapstructure:"worker"`
}

// WorkerConfig Worker 配置
type WorkerConfig struct {
	MaxConcurrentActivities int `mapstructure:"max_concurrent_activities"`
	MaxConcurrentWorkflows  int `mapstructure:"max_concurrent_workflows"`
}

// StorageConfig 存储配置
type StorageConfig struct {
	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Address      string        `mapstructure:"address"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// EngineConfig 估值引擎默认值，零值表示沿用引擎内置默认
type EngineConfig struct {
	CacheTTL    time.Duration      `mapstructure:"cache_ttl"`
	Assumptions AssumptionsConfig  `mapstructure:"assumptions"`
	Weights     map[string]float64 `mapstructure:"weights"`
	MonteCarlo  MonteCarloConfig   `mapstructure:"monte_carlo"`
	Sensitivity SensitivityConfig  `mapstructure:"sensitivity"`
	Scenarios   []ScenarioConfig   `mapstructure:"scenarios"`
}

// AssumptionsConfig 默认假设 (百分数)
type AssumptionsConfig struct {
	WACC              float64       `mapstructure:"wacc"`
	TerminalGrowth    float64       `mapstructure:"terminal_growth"`
	Stages            []StageConfig `mapstructure:"stages"`
	EVEBITDAMultiple  float64       `mapstructure:"ev_ebitda_multiple"`
	PriceFCFMultiple  float64       `mapstructure:"price_fcf_multiple"`
	DividendGrowth    float64       `mapstructure:"dividend_growth"`
	RiskFreeRate      float64       `mapstructure:"risk_free_rate"`
	EquityRiskPremium float64       `mapstructure:"equity_risk_premium"`
	TaxRate           float64       `mapstructure:"tax_rate"`
}

// StageConfig DCF 预测阶段
type StageConfig struct {
	Years  int     `mapstructure:"years"`
	Growth float64 `mapstructure:"growth"`
}

// MonteCarloConfig 蒙特卡洛配置
type MonteCarloConfig struct {
	Iterations int   `mapstructure:"iterations"`
	Seed       int64 `mapstructure:"seed"`
	Bins       int   `mapstructure:"bins"`
}

// SensitivityConfig 敏感性矩阵坐标
type SensitivityConfig struct {
	WACC   []float64 `mapstructure:"wacc"`
	Growth []float64 `mapstructure:"growth"`
}

// ScenarioConfig 情景配置
type ScenarioConfig struct {
	Name                     string  `mapstructure:"name"`
	GrowthMultiplier         float64 `mapstructure:"growth_multiplier"`
	DiscountRateOffset       float64 `mapstructure:"discount_rate_offset"`
	TerminalGrowthMultiplier float64 `mapstructure:"terminal_growth_multiplier"`
	MultipleMultiplier       float64 `mapstructure:"multiple_multiplier"`
}

// ServerConfig HTTP API 与 gRPC 健康检查
type ServerConfig struct {
	HTTPAddr     string        `mapstructure:"http_addr"`
	GRPCPort     int           `mapstructure:"grpc_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Tracing TracingConfig `mapstructure:"tracing"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Endpoint   string  `mapstructure:"endpoint"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// ModelNames engine.weights 可用的估值模型名
var ModelNames = []string{"dcf", "graham", "pe", "ev_ebitda", "ddm", "rim", "pfcf"}

func knownModel(name string) bool {
	for _, m := range ModelNames {
		if m == name {
			return true
		}
	}
	return false
}

// Load 加载配置
func Load() (*Config, error) {
	// 确定配置文件路径
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量替换
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// 处理环境变量中的密钥
	config.Storage.Redis.Password = os.ExpandEnv(config.Storage.Redis.Password)

	// 设置默认值
	setDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(cfg *Config) {
	if cfg.System.ServiceName == "" {
		cfg.System.ServiceName = "fairvalue-worker"
	}
	if cfg.System.ShutdownTimeout == 0 {
		cfg.System.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Temporal.TaskQueue == "" {
		cfg.Temporal.TaskQueue = "fairvalue"
	}
	if cfg.Temporal.Worker.MaxConcurrentActivities == 0 {
		cfg.Temporal.Worker.MaxConcurrentActivities = 20
	}
	if cfg.Temporal.Worker.MaxConcurrentWorkflows == 0 {
		cfg.Temporal.Worker.MaxConcurrentWorkflows = 10
	}
	if cfg.Storage.Redis.PoolSize == 0 {
		cfg.Storage.Redis.PoolSize = 100
	}
	if cfg.Engine.CacheTTL == 0 {
		cfg.Engine.CacheTTL = time.Hour
	}
	if cfg.Engine.MonteCarlo.Iterations == 0 {
		cfg.Engine.MonteCarlo.Iterations = 2000
	}
	if cfg.Engine.MonteCarlo.Seed == 0 {
		cfg.Engine.MonteCarlo.Seed = 1
	}
	if cfg.Server.HTTPAddr == "" {
		cfg.Server.HTTPAddr = ":8080"
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = 9091
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}
	if cfg.Observability.Metrics.Port == 0 {
		cfg.Observability.Metrics.Port = 9090
	}
	if cfg.Observability.Tracing.SampleRate == 0 {
		cfg.Observability.Tracing.SampleRate = 0.1
	}
}

// validate 启动期配置检查，失败归类为致命错误
func validate(cfg *Config) error {
	invalid := func(format string, args ...interface{}) error {
		return fmt.Errorf("%w: %s", apperrors.ErrConfigInvalid, fmt.Sprintf(format, args...))
	}

	if cfg.Engine.CacheTTL < 0 {
		return invalid("engine.cache_ttl must not be negative")
	}
	if cfg.Engine.MonteCarlo.Iterations < 0 {
		return invalid("engine.monte_carlo.iterations must not be negative")
	}
	for name, w := range cfg.Engine.Weights {
		if !knownModel(name) {
			return invalid("engine.weights.%s is not a known model", name)
		}
		if math.IsNaN(w) || w < 0 || w > 100 {
			return invalid("engine.weights.%s must be within [0, 100]", name)
		}
	}
	for i, s := range cfg.Engine.Scenarios {
		if s.Name == "" {
			return invalid("engine.scenarios[%d].name is required", i)
		}
	}
	if r := cfg.Observability.Tracing.SampleRate; r < 0 || r > 1 {
		return invalid("observability.tracing.sample_rate must be within [0, 1]")
	}
	return nil
}
