package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the research service
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Server    ServerConfig    `mapstructure:"server"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Research  ResearchConfig  `mapstructure:"research"`
	Providers ProvidersConfig `mapstructure:"providers"`
	WebSearch WebSearchConfig `mapstructure:"web_search"`
}

// GeneralConfig contains general application settings
type GeneralConfig struct {
	Env      string `mapstructure:"env"` // dev or prod; selects the log encoder
	LogLevel string `mapstructure:"log_level"`
	Locale   string `mapstructure:"locale"` // fallback locale for API messages
}

// ServerConfig contains HTTP server and auth settings
type ServerConfig struct {
	Address   string        `mapstructure:"address"`
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

func (s ServerConfig) Validate() error {
	if strings.TrimSpace(s.JWTSecret) == "" {
		return fmt.Errorf("server.jwt_secret required")
	}
	if s.TokenTTL <= 0 {
		return fmt.Errorf("server.token_ttl must be > 0")
	}
	return nil
}

// StorageConfig contains storage and persistence settings
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains Postgres connection settings
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

func (p PostgresConfig) Validate() error {
	if strings.TrimSpace(p.URL) != "" {
		return nil
	}
	if strings.TrimSpace(p.Host) == "" {
		return fmt.Errorf("storage.postgres.host required when url is not provided")
	}
	if strings.TrimSpace(p.DBName) == "" {
		return fmt.Errorf("storage.postgres.dbname required when url is not provided")
	}
	return nil
}

// DSN builds the lib/pq connection string, preferring the explicit url.
func (p PostgresConfig) DSN() string {
	if p.URL != "" {
		return p.URL
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl)
}

// RedisConfig contains Redis connection settings. Redis is optional; an empty
// host disables cross-replica job locks.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a redis endpoint is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Host) != "" }

// Addr returns host:port.
func (r RedisConfig) Addr() string {
	port := r.Port
	if port == "" {
		port = "6379"
	}
	return r.Host + ":" + port
}

// ResearchConfig controls background job execution.
type ResearchConfig struct {
	MaxConcurrentJobs int           `mapstructure:"max_concurrent_jobs"`
	LockTTL           time.Duration `mapstructure:"lock_ttl"`
	RecoverOnStartup  bool          `mapstructure:"recover_on_startup"`
}

func (r ResearchConfig) Validate() error {
	if r.MaxConcurrentJobs <= 0 {
		return fmt.Errorf("research.max_concurrent_jobs must be > 0")
	}
	if r.LockTTL <= 0 {
		return fmt.Errorf("research.lock_ttl must be > 0")
	}
	return nil
}

// ProvidersConfig groups LLM provider settings.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures the chat completion client used by the research engine.
// APIKey is the server-wide fallback when the job owner has not stored their own key.
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

func (o OpenAIConfig) Validate() error {
	if strings.TrimSpace(o.Model) == "" {
		return fmt.Errorf("providers.openai.model required")
	}
	if o.Temperature < 0 || o.Temperature > 2 {
		return fmt.Errorf("providers.openai.temperature must be within [0,2]")
	}
	return nil
}

// WebSearchConfig contains web search and page fetch settings
type WebSearchConfig struct {
	Provider        string            `mapstructure:"provider"` // brave or serper
	APIKey          string            `mapstructure:"api_key"`
	ResultsPerQuery int               `mapstructure:"results_per_query"`
	MaxQueries      int               `mapstructure:"max_queries"`
	FetchTimeout    time.Duration     `mapstructure:"fetch_timeout"`
	MaxChars        int               `mapstructure:"max_chars"`
	CrawlPolicy     CrawlPolicyConfig `mapstructure:"crawl_policy"`
}

func (w WebSearchConfig) Validate() error {
	switch w.Provider {
	case "brave", "serper":
	default:
		return fmt.Errorf("web_search.provider must be brave or serper, got %q", w.Provider)
	}
	if w.ResultsPerQuery <= 0 {
		return fmt.Errorf("web_search.results_per_query must be > 0")
	}
	if w.MaxQueries <= 0 {
		return fmt.Errorf("web_search.max_queries must be > 0")
	}
	return w.CrawlPolicy.Validate()
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.env", "dev")
	v.SetDefault("general.log_level", "info")
	v.SetDefault("general.locale", "en")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.token_ttl", time.Hour)
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.sslmode", "disable")
	v.SetDefault("research.max_concurrent_jobs", 4)
	v.SetDefault("research.lock_ttl", 30*time.Minute)
	v.SetDefault("research.recover_on_startup", true)
	v.SetDefault("providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.temperature", 0.2)
	v.SetDefault("providers.openai.max_tokens", 4096)
	v.SetDefault("providers.openai.timeout", 90*time.Second)
	v.SetDefault("providers.openai.max_retries", 2)
	v.SetDefault("web_search.provider", "brave")
	v.SetDefault("web_search.results_per_query", 4)
	v.SetDefault("web_search.max_queries", 5)
	v.SetDefault("web_search.fetch_timeout", 15*time.Second)
	v.SetDefault("web_search.max_chars", 12000)
}

// LoadConfig loads config from file. With an empty path the usual locations
// are searched and a missing file is tolerated, so env-only deployments work.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("json")
	setDefaults(v)

	if path == "" {
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
		if exe, err := os.Executable(); err == nil {
			exeDir := filepath.Dir(exe)
			v.AddConfigPath(exeDir)
			v.AddConfigPath(filepath.Join(exeDir, "..", "config"))
		}
	} else {
		v.SetConfigFile(path)
	}

	v.SetEnvPrefix("RESEARCHER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.WebSearch.CrawlPolicy = cfg.WebSearch.CrawlPolicy.Normalize()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	validators := []func() error{
		c.Server.Validate,
		c.Storage.Postgres.Validate,
		c.Research.Validate,
		c.Providers.OpenAI.Validate,
		c.WebSearch.Validate,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			return err
		}
	}
	return nil
}

// bindEnv registers keys that have no default so AutomaticEnv can see them
// during Unmarshal.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"server.jwt_secret",
		"storage.postgres.url",
		"storage.postgres.host",
		"storage.postgres.user",
		"storage.postgres.password",
		"storage.postgres.dbname",
		"storage.redis.host",
		"storage.redis.port",
		"storage.redis.password",
		"storage.redis.db",
		"providers.openai.api_key",
		"web_search.api_key",
	} {
		_ = v.BindEnv(key)
	}
}
