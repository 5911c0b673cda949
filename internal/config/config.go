package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration values for the API service.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseURL      string
	RedisURL         string
	NATSURL          string
	NATSSubject      string
	JWTSecret        string
	GraceSeconds     int
	AutosaveInterval time.Duration
	ResultCacheTTL   time.Duration
	DockerHost       string
	ExecutionTimeout time.Duration
	CodeRunMemoryMB  int
	CodeRunCPUShares int
	AIProvider       string
	OpenAIAPIKey     string
	AnthropicAPIKey  string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and an optional
// .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PROCTORLY")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Proctorly Exam API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("nats.subject", "exam.attempt.completed")
	v.SetDefault("session.grace_seconds", 10)
	v.SetDefault("session.autosave_interval", "30s")
	v.SetDefault("result.cache_ttl", "1h")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("ai.provider", "openai")

	autosave, err := time.ParseDuration(v.GetString("session.autosave_interval"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid autosave interval: %w", err)
	}

	cacheTTL, err := time.ParseDuration(v.GetString("result.cache_ttl"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid result cache ttl: %w", err)
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		NATSURL:          v.GetString("nats.url"),
		NATSSubject:      v.GetString("nats.subject"),
		JWTSecret:        v.GetString("jwt.secret"),
		GraceSeconds:     v.GetInt("session.grace_seconds"),
		AutosaveInterval: autosave,
		ResultCacheTTL:   cacheTTL,
		DockerHost:       v.GetString("docker_host"),
		ExecutionTimeout: time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:  v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares: v.GetInt("code_run_cpu_shares"),
		AIProvider:       strings.ToLower(v.GetString("ai.provider")),
		OpenAIAPIKey:     v.GetString("openai_api_key"),
		AnthropicAPIKey:  v.GetString("anthropic_api_key"),
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	if cfg.GraceSeconds <= 0 {
		cfg.GraceSeconds = 10
	}
	if cfg.AutosaveInterval <= 0 {
		cfg.AutosaveInterval = 30 * time.Second
	}
	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}
	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}

	return cfg, nil
}
