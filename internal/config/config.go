package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all service configuration loaded from environment variables.
type Config struct {
	Port      string
	LogLevel  string
	LogPretty bool

	PerplexityAPIKey  string
	PerplexityBaseURL string
	MarketModel       string
	CommunityModel    string
	ResearchTimeout   time.Duration

	OpenAIAPIKey     string
	OpenAIBaseURL    string
	SynthesisModel   string
	SynthesisTimeout time.Duration

	CacheBackend string
	CacheTTL     time.Duration

	RedisAddr      string
	RedisPassword  string
	MongoURI       string
	MongoDB        string
	PostgresDSN    string
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioUseSSL    bool

	CORSOrigins []string
}

// Cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

var defaults = map[string]interface{}{
	"PORT":                "8080",
	"LOG_LEVEL":           "info",
	"LOG_PRETTY":          false,
	"PERPLEXITY_BASE_URL": "https://api.perplexity.ai",
	"MARKET_MODEL":        "sonar-pro",
	"COMMUNITY_MODEL":     "sonar",
	"RESEARCH_TIMEOUT":    "60s",
	"OPENAI_BASE_URL":     "https://api.openai.com/v1",
	"SYNTHESIS_MODEL":     "gpt-4o",
	"SYNTHESIS_TIMEOUT":   "120s",
	"CACHE_BACKEND":       CacheMemory,
	"CACHE_TTL":           "24h",
	"REDIS_ADDR":          "redis:6379",
	"MONGO_DB":            "truth_engine",
	"MINIO_BUCKET":        "truth-engine-reports",
	"MINIO_USE_SSL":       false,
	"CORS_ORIGINS":        "http://localhost:5173,http://localhost:3000",
}

// keys without a default that are still read from the environment
var optional = []string{
	"PERPLEXITY_API_KEY", "OPENAI_API_KEY", "REDIS_PASSWORD", "MONGO_URI",
	"POSTGRES_DSN", "MINIO_ENDPOINT", "MINIO_ACCESS_KEY", "MINIO_SECRET_KEY",
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	for _, k := range optional {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}
	v.AutomaticEnv()

	cfg := &Config{
		Port:      v.GetString("PORT"),
		LogLevel:  v.GetString("LOG_LEVEL"),
		LogPretty: v.GetBool("LOG_PRETTY"),

		PerplexityAPIKey:  v.GetString("PERPLEXITY_API_KEY"),
		PerplexityBaseURL: v.GetString("PERPLEXITY_BASE_URL"),
		MarketModel:       v.GetString("MARKET_MODEL"),
		CommunityModel:    v.GetString("COMMUNITY_MODEL"),
		ResearchTimeout:   v.GetDuration("RESEARCH_TIMEOUT"),

		OpenAIAPIKey:     v.GetString("OPENAI_API_KEY"),
		OpenAIBaseURL:    v.GetString("OPENAI_BASE_URL"),
		SynthesisModel:   v.GetString("SYNTHESIS_MODEL"),
		SynthesisTimeout: v.GetDuration("SYNTHESIS_TIMEOUT"),

		CacheBackend: strings.ToLower(v.GetString("CACHE_BACKEND")),
		CacheTTL:     v.GetDuration("CACHE_TTL"),

		RedisAddr:      v.GetString("REDIS_ADDR"),
		RedisPassword:  v.GetString("REDIS_PASSWORD"),
		MongoURI:       v.GetString("MONGO_URI"),
		MongoDB:        v.GetString("MONGO_DB"),
		PostgresDSN:    v.GetString("POSTGRES_DSN"),
		MinioEndpoint:  v.GetString("MINIO_ENDPOINT"),
		MinioAccessKey: v.GetString("MINIO_ACCESS_KEY"),
		MinioSecretKey: v.GetString("MINIO_SECRET_KEY"),
		MinioBucket:    v.GetString("MINIO_BUCKET"),
		MinioUseSSL:    v.GetBool("MINIO_USE_SSL"),

		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.CacheBackend {
	case CacheMemory, CacheRedis:
	default:
		return fmt.Errorf("CACHE_BACKEND: unknown backend %q (valid: memory, redis)", c.CacheBackend)
	}
	if c.CacheTTL <= 0 {
		return fmt.Errorf("CACHE_TTL must be positive")
	}
	if c.ResearchTimeout <= 0 || c.SynthesisTimeout <= 0 {
		return fmt.Errorf("RESEARCH_TIMEOUT and SYNTHESIS_TIMEOUT must be positive")
	}
	return nil
}

// ResearchEnabled reports whether the research provider credential is set.
func (c *Config) ResearchEnabled() bool { return c.PerplexityAPIKey != "" }

// SynthesisEnabled reports whether the synthesis provider credential is set.
func (c *Config) SynthesisEnabled() bool { return c.OpenAIAPIKey != "" }

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
