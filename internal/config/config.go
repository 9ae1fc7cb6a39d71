// Package config 统一配置管理
//
// 配置加载策略：
//  1. 从 .env 加载敏感信息和 APP_ENV
//  2. 根据 APP_ENV 加载对应的 configs/{env}.yaml 配置文件
//  3. 环境变量可覆盖 YAML 配置
//
// 使用方式：
//   - 开发环境: APP_ENV=dev (默认)
//   - 测试环境: APP_ENV=test
//   - 生产环境: APP_ENV=prod
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment 环境类型
type Environment string

const (
	EnvProduction  Environment = "prod"
	EnvTest        Environment = "test"
	EnvDevelopment Environment = "dev"
)

// duration 让 YAML 里能写 "30s" 这样的时长
type duration time.Duration

func (d *duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("非法的时长 %q: %w", s, err)
		}
		*d = duration(parsed)
		return nil
	}
	var n int64
	if err := node.Decode(&n); err != nil {
		return err
	}
	*d = duration(time.Duration(n))
	return nil
}

// YAMLConfig YAML 配置文件结构
type YAMLConfig struct {
	API struct {
		BaseURL string   `yaml:"base_url"`
		WSURL   string   `yaml:"ws_url"`
		Timeout duration `yaml:"timeout"`
	} `yaml:"api"`
	State struct {
		Path string `yaml:"path"`
	} `yaml:"state"`
	Watcher struct {
		BackoffBase duration `yaml:"backoff_base"`
		BackoffMax  duration `yaml:"backoff_max"`
		MaxRetries  int      `yaml:"max_retries"`
	} `yaml:"watcher"`
	Poll struct {
		Interval duration `yaml:"interval"`
	} `yaml:"poll"`
}

// APIConfig 远端 API 配置
type APIConfig struct {
	BaseURL string
	WSURL   string
	Timeout time.Duration
}

// StateConfig 本地状态持久化配置
type StateConfig struct {
	Path string // SQLite 文件路径，":memory:" 表示不落盘
}

// WatcherConfig WebSocket 订阅器配置
type WatcherConfig struct {
	BackoffBase time.Duration // 首次重连等待
	BackoffMax  time.Duration // 重连等待上限
	MaxRetries  int           // 连续失败上限，超过进入放弃态
}

// PollConfig 轮询配置
type PollConfig struct {
	Interval time.Duration // 进度轮询间隔
}

// Config 应用配置（最终使用的配置）
type Config struct {
	Env     Environment
	API     APIConfig
	State   StateConfig
	Watcher WatcherConfig
	Poll    PollConfig
}

var configPaths = []string{
	"configs",
	"../configs",
	"../../configs",
	"../../../configs",
}

var envPaths = []string{
	".env",
	"../.env",
	"../../.env",
	"../../../.env",
}

// Load 加载配置
// 1. 加载 .env（APP_ENV 等）
// 2. 根据 APP_ENV 加载 configs/{env}.yaml
// 3. 环境变量覆盖（EVAL_API_BASE_URL / EVAL_WS_BASE_URL / EVAL_STATE_PATH）
func Load() *Config {
	// 加载 .env
	for _, p := range envPaths {
		if err := godotenv.Load(p); err == nil {
			break
		}
	}

	// 解析环境
	env := parseEnv(getEnv("APP_ENV", "dev"))

	// 加载 YAML 配置
	yamlCfg := loadYAMLConfig(env)

	cfg := &Config{
		Env: env,
		API: APIConfig{
			BaseURL: yamlCfg.API.BaseURL,
			WSURL:   yamlCfg.API.WSURL,
			Timeout: time.Duration(yamlCfg.API.Timeout),
		},
		State: StateConfig{Path: yamlCfg.State.Path},
		Watcher: WatcherConfig{
			BackoffBase: time.Duration(yamlCfg.Watcher.BackoffBase),
			BackoffMax:  time.Duration(yamlCfg.Watcher.BackoffMax),
			MaxRetries:  yamlCfg.Watcher.MaxRetries,
		},
		Poll: PollConfig{Interval: time.Duration(yamlCfg.Poll.Interval)},
	}

	// 环境变量覆盖
	if v := os.Getenv("EVAL_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("EVAL_WS_BASE_URL"); v != "" {
		cfg.API.WSURL = v
	}
	if v := os.Getenv("EVAL_STATE_PATH"); v != "" {
		cfg.State.Path = v
	}

	cfg.validate()
	return cfg
}

// loadYAMLConfig 加载 YAML 配置文件
// 加载顺序：默认值 → common.yaml → {env}.yaml
func loadYAMLConfig(env Environment) *YAMLConfig {
	cfg := &YAMLConfig{}
	cfg.API.BaseURL = "http://localhost:8000/api/v1"
	cfg.API.WSURL = "ws://localhost:8000/api/v1"
	cfg.API.Timeout = duration(30 * time.Second)
	cfg.State.Path = defaultStatePath()
	cfg.Watcher.BackoffBase = duration(time.Second)
	cfg.Watcher.BackoffMax = duration(30 * time.Second)
	cfg.Watcher.MaxRetries = 8
	cfg.Poll.Interval = duration(3 * time.Second)

	for _, base := range configPaths {
		path := filepath.Join(base, "common.yaml")
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	filename := fmt.Sprintf("%s.yaml", env)
	for _, base := range configPaths {
		path := filepath.Join(base, filename)
		if data, err := os.ReadFile(path); err == nil {
			yaml.Unmarshal(data, cfg)
			break
		}
	}

	return cfg
}

// defaultStatePath 默认的本地状态文件位置
func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "eval-console.db"
	}
	return filepath.Join(home, ".eval-console", "state.db")
}

func parseEnv(env string) Environment {
	switch strings.ToLower(env) {
	case "test":
		return EnvTest
	case "prod", "production":
		return EnvProduction
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// IsTest 是否为测试环境
func (c *Config) IsTest() bool {
	return c.Env == EnvTest
}

// String 返回配置摘要
func (c *Config) String() string {
	return fmt.Sprintf("Config{Env: %s, API: %s, State: %s}", c.Env, c.API.BaseURL, c.State.Path)
}

// validate 验证并填充默认值
func (c *Config) validate() {
	if c.API.Timeout == 0 {
		c.API.Timeout = 30 * time.Second
	}
	if c.Watcher.BackoffBase == 0 {
		c.Watcher.BackoffBase = time.Second
	}
	if c.Watcher.BackoffMax == 0 {
		c.Watcher.BackoffMax = 30 * time.Second
	}
	if c.Watcher.MaxRetries == 0 {
		c.Watcher.MaxRetries = 8
	}
	if c.Poll.Interval == 0 {
		c.Poll.Interval = 3 * time.Second
	}
	// WS 地址缺省时从 API 地址推导
	if c.API.WSURL == "" {
		ws := strings.Replace(c.API.BaseURL, "https://", "wss://", 1)
		ws = strings.Replace(ws, "http://", "ws://", 1)
		c.API.WSURL = ws
	}
}
