package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Session SessionConfig
	Store   StoreConfig
	Log     LogConfig
}

// Load 从环境变量加载配置并校验。
func Load() (*Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate rejects values no component can run with.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderArk:
	default:
		return fmt.Errorf("invalid LLM_PROVIDER value %q", c.LLM.Provider)
	}
	switch c.Store.Driver {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("invalid STORE_DRIVER value %q", c.Store.Driver)
	}
	if c.Session.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be positive, got %d", c.Session.HistoryWindow)
	}
	if c.Session.MemoryQueueSize <= 0 {
		return fmt.Errorf("MEMORY_QUEUE_SIZE must be positive, got %d", c.Session.MemoryQueueSize)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("LLM_TEMPERATURE out of range: %v", c.LLM.Temperature)
	}
	return nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string `env:"-"`
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// LLMConfig 描述大模型相关配置。会话配置中的模型与密钥可以覆盖这里的默认值。
type LLMConfig struct {
	Provider    string        `env:"LLM_PROVIDER" envDefault:"openai"`
	Model       string        `env:"LLM_MODEL"`
	Temperature float64       `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	Timeout     time.Duration `env:"LLM_TIMEOUT" envDefault:"60s"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL"`

	ArkAPIKey    string `env:"ARK_API_KEY"`
	ArkAccessKey string `env:"ARK_ACCESS_KEY"`
	ArkSecretKey string `env:"ARK_SECRET_KEY"`
	ArkBaseURL   string `env:"ARK_BASE_URL" envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	ArkRegion    string `env:"ARK_REGION" envDefault:"cn-beijing"`
}

// APIKey returns the key of the selected provider.
func (c LLMConfig) APIKey() string {
	if c.Provider == ProviderArk {
		return c.ArkAPIKey
	}
	return c.OpenAIAPIKey
}

// HasCredential 表示是否提供了必需的密钥。
func (c LLMConfig) HasCredential() bool {
	if c.Provider == ProviderArk {
		return c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != "")
	}
	return c.OpenAIAPIKey != ""
}

// NewArkChatModel 使用配置创建一个 Ark 模型实例。apiKey 与 modelName 非空时覆盖环境配置。
func (c LLMConfig) NewArkChatModel(ctx context.Context, modelName, apiKey string) (model.ChatModel, error) {
	if modelName == "" {
		modelName = c.Model
	}
	if apiKey == "" {
		apiKey = c.ArkAPIKey
	}
	if modelName == "" || (apiKey == "" && (c.ArkAccessKey == "" || c.ArkSecretKey == "")) {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	temperature := float32(c.Temperature)
	var timeout *time.Duration
	if c.Timeout > 0 {
		timeout = &c.Timeout
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.ArkBaseURL,
		Region:      c.ArkRegion,
		APIKey:      apiKey,
		AccessKey:   c.ArkAccessKey,
		SecretKey:   c.ArkSecretKey,
		Model:       modelName,
		Temperature: &temperature,
		Timeout:     timeout,
	}

	return ark.NewChatModel(ctx, cfg)
}

// SessionConfig 描述会话编排相关配置。
type SessionConfig struct {
	HistoryWindow     int    `env:"HISTORY_WINDOW" envDefault:"20"`
	MemoryQueueSize   int    `env:"MEMORY_QUEUE_SIZE" envDefault:"32"`
	ModulePresetsPath string `env:"MODULE_PRESETS_PATH"`
}

// StoreConfig 描述记忆档案的持久化配置。
type StoreConfig struct {
	Driver string `env:"STORE_DRIVER" envDefault:"sqlite"`
	Path   string `env:"STORE_PATH"`
}

// ResolvedPath returns Path or the driver's default location.
func (c StoreConfig) ResolvedPath() string {
	if strings.TrimSpace(c.Path) != "" {
		return c.Path
	}
	if c.Driver == "file" {
		return "data/memory.json"
	}
	return "data/memory.db"
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}
