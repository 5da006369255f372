package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// DefaultSystemPrompt is the assistant persona sent with every completion.
const DefaultSystemPrompt = "You are SmartSpark, a helpful and intelligent AI assistant. You are creative, knowledgeable, and always ready to help users with their questions and tasks."

// Store drivers.
const (
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// LLM providers.
const (
	ProviderOpenAI = "openai"
	ProviderArk    = "ark"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	Store  StoreConfig
	AI     AIConfig
	Log    LogConfig
	CORS   CORSConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
}

// StoreConfig selects and configures the conversation backend.
type StoreConfig struct {
	Driver      string
	MongoURL    string
	Database    string
	SQLitePath  string
	PostgresDSN string
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Provider     string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
	HistoryLimit int
	Temperature  *float64
	MaxTokens    *int

	OpenAIAPIKey  string
	OpenAIBaseURL string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkBaseURL   string
	ArkRegion    string
}

// Enabled 表示是否提供了所选供应商必需的密钥。
func (c AIConfig) Enabled() bool {
	if c.Model == "" {
		return false
	}
	switch c.Provider {
	case ProviderOpenAI:
		return c.OpenAIAPIKey != ""
	case ProviderArk:
		return c.ArkAPIKey != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != "")
	default:
		return false
	}
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string
	Format string
	File   string
}

// CORSConfig lists origins allowed to call the API.
type CORSConfig struct {
	AllowedOrigins []string
}

func newViper() (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("port", "8001")
	v.SetDefault("store_driver", DriverMongo)
	v.SetDefault("mongo_url", "mongodb://localhost:27017")
	v.SetDefault("db_name", "smartspark")
	v.SetDefault("sqlite_path", "smartspark.db")
	v.SetDefault("llm_provider", ProviderOpenAI)
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_system_prompt", DefaultSystemPrompt)
	v.SetDefault("llm_timeout", "60s")
	v.SetDefault("llm_history_limit", "0")
	v.SetDefault("ark_base_url", "https://ark.cn-beijing.volces.com/api/v3")
	v.SetDefault("ark_region", "cn-beijing")
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.AutomaticEnv()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	return v, nil
}

// Load 从环境变量（以及可选的 CONFIG_FILE）加载配置。
func Load() (*Config, error) {
	v, err := newViper()
	if err != nil {
		return nil, err
	}

	server, err := loadServerConfig(v)
	if err != nil {
		return nil, err
	}

	store, err := loadStoreConfig(v)
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig(v)
	if err != nil {
		return nil, err
	}

	return &Config{
		Server: server,
		Store:  store,
		AI:     ai,
		Log: LogConfig{
			Level:  strings.ToLower(getString(v, "log_level")),
			Format: strings.ToLower(getString(v, "log_format")),
			File:   getString(v, "log_file"),
		},
		CORS: CORSConfig{AllowedOrigins: splitList(getString(v, "cors_allowed_origins"))},
	}, nil
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig(v *viper.Viper) (ServerConfig, error) {
	port := getString(v, "port")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8001" 或 "127.0.0.1:8001"。
		return ServerConfig{Addr: port}, nil
	}

	if _, err := strconv.Atoi(port); err != nil {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

func loadStoreConfig(v *viper.Viper) (StoreConfig, error) {
	cfg := StoreConfig{
		Driver:      strings.ToLower(getString(v, "store_driver")),
		MongoURL:    getString(v, "mongo_url"),
		Database:    getString(v, "db_name"),
		SQLitePath:  getString(v, "sqlite_path"),
		PostgresDSN: getString(v, "database_url"),
	}

	switch cfg.Driver {
	case DriverMongo, DriverSQLite, DriverMemory:
	case DriverPostgres:
		if cfg.PostgresDSN == "" {
			return StoreConfig{}, fmt.Errorf("DATABASE_URL is required for STORE_DRIVER=%s", DriverPostgres)
		}
	default:
		return StoreConfig{}, fmt.Errorf("invalid STORE_DRIVER value %q", cfg.Driver)
	}
	return cfg, nil
}

func loadAIConfig(v *viper.Viper) (AIConfig, error) {
	provider := strings.ToLower(getString(v, "llm_provider"))
	if provider != ProviderOpenAI && provider != ProviderArk {
		return AIConfig{}, fmt.Errorf("invalid LLM_PROVIDER value %q", provider)
	}

	timeout, err := parseDuration(v, "llm_timeout")
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit, err := strconv.Atoi(getString(v, "llm_history_limit"))
	if err != nil || historyLimit < 0 {
		return AIConfig{}, fmt.Errorf("invalid LLM_HISTORY_LIMIT value %q", getString(v, "llm_history_limit"))
	}

	temperature, err := parseOptionalFloat(v, "llm_temperature")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalInt(v, "llm_max_tokens")
	if err != nil {
		return AIConfig{}, err
	}

	return AIConfig{
		Provider:      provider,
		Model:         getString(v, "llm_model"),
		SystemPrompt:  getString(v, "llm_system_prompt"),
		Timeout:       timeout,
		HistoryLimit:  historyLimit,
		Temperature:   temperature,
		MaxTokens:     maxTokens,
		OpenAIAPIKey:  getString(v, "openai_api_key"),
		OpenAIBaseURL: getString(v, "openai_base_url"),
		ArkAPIKey:     getString(v, "ark_api_key"),
		ArkAccessKey:  getString(v, "ark_access_key"),
		ArkSecretKey:  getString(v, "ark_secret_key"),
		ArkBaseURL:    getString(v, "ark_base_url"),
		ArkRegion:     getString(v, "ark_region"),
	}, nil
}

func getString(v *viper.Viper, key string) string {
	return strings.TrimSpace(v.GetString(key))
}

func envName(key string) string {
	return strings.ToUpper(key)
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := getString(v, key)
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", envName(key), raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s value %q: must be positive", envName(key), raw)
	}
	return d, nil
}

func parseOptionalFloat(v *viper.Viper, key string) (*float64, error) {
	raw := getString(v, key)
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", envName(key), raw, err)
	}
	return &val, nil
}

func parseOptionalInt(v *viper.Viper, key string) (*int, error) {
	raw := getString(v, key)
	if raw == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", envName(key), raw, err)
	}
	return &val, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
