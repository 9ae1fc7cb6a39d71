package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestParseEnv(t *testing.T) {
	tests := []struct {
		input string
		want  Environment
	}{
		{"dev", EnvDevelopment},
		{"test", EnvTest},
		{"prod", EnvProduction},
		{"production", EnvProduction},
		{"PROD", EnvProduction},
		{"", EnvDevelopment},
		{"unknown", EnvDevelopment},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, parseEnv(tt.input), "input=%q", tt.input)
	}
}

func TestValidateDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.API.BaseURL = "https://eval.example.com/api/v1"
	cfg.validate()

	assert.Equal(t, 30*time.Second, cfg.API.Timeout)
	assert.Equal(t, time.Second, cfg.Watcher.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Watcher.BackoffMax)
	assert.Equal(t, 8, cfg.Watcher.MaxRetries)
	assert.Equal(t, 3*time.Second, cfg.Poll.Interval)

	// WS 地址从 API 地址推导，协议替换为 wss
	assert.Equal(t, "wss://eval.example.com/api/v1", cfg.API.WSURL)
}

func TestYAMLDuration(t *testing.T) {
	raw := `
api:
  timeout: 45s
watcher:
  backoff_base: 500ms
poll:
  interval: 2000000000
`
	var cfg YAMLConfig
	require.NoError(t, yaml.Unmarshal([]byte(raw), &cfg))
	assert.Equal(t, duration(45*time.Second), cfg.API.Timeout)
	assert.Equal(t, duration(500*time.Millisecond), cfg.Watcher.BackoffBase)
	assert.Equal(t, duration(2*time.Second), cfg.Poll.Interval)

	var bad YAMLConfig
	assert.Error(t, yaml.Unmarshal([]byte("api:\n  timeout: fast\n"), &bad))
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("EVAL_API_BASE_URL", "http://127.0.0.1:9000/api/v1")
	t.Setenv("APP_ENV", "test")

	cfg := Load()
	assert.Equal(t, EnvTest, cfg.Env)
	assert.True(t, cfg.IsTest())
	assert.Equal(t, "http://127.0.0.1:9000/api/v1", cfg.API.BaseURL)
}
