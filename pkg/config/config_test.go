package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/biovalue-ai/fairvalue/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("CONFIG_PATH", writeConfig(t, `
temporal:
  address: temporal:7233
  namespace: valuation
storage:
  redis:
    address: redis:6379
    password: ${TEST_REDIS_PASSWORD}
engine:
  cache_ttl: 10m
  weights:
    dcf: 50
    pe: 50
  assumptions:
    wacc: 9
    stages:
      - years: 3
        growth: 12
  sensitivity:
    wacc: [7, 9]
    growth: [2, 4]
  scenarios:
    - name: stress
      growth_multiplier: 0.2
      discount_rate_offset: 3
`))
	t.Setenv("TEST_REDIS_PASSWORD", "s3cret")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, "temporal:7233", cfg.Temporal.Address)
	assert.Equal(t, "s3cret", cfg.Storage.Redis.Password)
	assert.Equal(t, 10*time.Minute, cfg.Engine.CacheTTL)
	assert.Equal(t, map[string]float64{"dcf": 50, "pe": 50}, cfg.Engine.Weights)
	assert.Equal(t, 9.0, cfg.Engine.Assumptions.WACC)
	assert.Equal(t, []StageConfig{{Years: 3, Growth: 12}}, cfg.Engine.Assumptions.Stages)
	assert.Equal(t, []float64{7, 9}, cfg.Engine.Sensitivity.WACC)
	require.Len(t, cfg.Engine.Scenarios, 1)
	assert.Equal(t, "stress", cfg.Engine.Scenarios[0].Name)

	// 默认值
	assert.Equal(t, "fairvalue", cfg.Temporal.TaskQueue)
	assert.Equal(t, 2000, cfg.Engine.MonteCarlo.Iterations)
	assert.Equal(t, ":8080", cfg.Server.HTTPAddr)
	assert.Equal(t, 9090, cfg.Observability.Metrics.Port)
	assert.Equal(t, 0.1, cfg.Observability.Tracing.SampleRate)
}

func TestLoad_MissingFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "absent.yaml"))

	_, err := Load()

	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"negative ttl":        func(c *Config) { c.Engine.CacheTTL = -time.Second },
		"weight out of range": func(c *Config) { c.Engine.Weights = map[string]float64{"dcf": 120} },
		"unknown model":       func(c *Config) { c.Engine.Weights = map[string]float64{"dfc": 30} },
		"unnamed scenario":    func(c *Config) { c.Engine.Scenarios = []ScenarioConfig{{GrowthMultiplier: 1}} },
		"sample rate":         func(c *Config) { c.Observability.Tracing.SampleRate = 2 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := &Config{}
			setDefaults(cfg)
			mutate(cfg)

			err := validate(cfg)

			assert.ErrorIs(t, err, apperrors.ErrConfigInvalid)
		})
	}

	cfg := &Config{}
	setDefaults(cfg)
	assert.NoError(t, validate(cfg))

	cfg.Engine.Weights = map[string]float64{"ev_ebitda": 0, "pfcf": 15}
	assert.NoError(t, validate(cfg))
}
