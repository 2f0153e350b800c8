package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the studybuddy backend.
type Config struct {
	General   GeneralConfig   `mapstructure:"general"`
	Databases DatabasesConfig `mapstructure:"databases"`
	Providers ProvidersConfig `mapstructure:"providers"`
	Retrieval RetrievalConfig `mapstructure:"retrieval"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Uploads   UploadsConfig   `mapstructure:"uploads"`
}

// GeneralConfig contains general application settings.
type GeneralConfig struct {
	Listen    string `mapstructure:"listen"`
	JWTSecret string `mapstructure:"jwt_secret"`
	Debug     bool   `mapstructure:"debug"`
	LogLevel  string `mapstructure:"log_level"`
}

// DatabasesConfig groups the backing stores.
type DatabasesConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig describes the primary relational store. URL wins over the
// discrete fields when both are present.
type PostgresConfig struct {
	URL      string `mapstructure:"url"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN assembles a postgres connection string from the configured fields.
func (p PostgresConfig) DSN() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	if p.Host == "" || p.DBName == "" {
		return "", fmt.Errorf("postgres not configured (databases.postgres.host/dbname or url)")
	}
	port := p.Port
	if port == "" {
		port = "5432"
	}
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", p.User, p.Password, p.Host, port, p.DBName, ssl), nil
}

// RedisConfig describes the queue/cache store.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns host:port for the redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

// ProvidersConfig holds external AI provider settings.
type ProvidersConfig struct {
	OpenAI OpenAIConfig `mapstructure:"openai"`
}

// OpenAIConfig configures the chat-completion and embedding client.
type OpenAIConfig struct {
	APIKey          string        `mapstructure:"api_key"`
	BaseURL         string        `mapstructure:"base_url"`
	CompletionModel string        `mapstructure:"completion_model"`
	EmbeddingModel  string        `mapstructure:"embedding_model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxOutputTokens int           `mapstructure:"max_output_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

// RetrievalConfig tunes the context assembly step. The threshold and history
// window are deliberately configurable rather than baked in.
type RetrievalConfig struct {
	TopK               int     `mapstructure:"top_k"`
	RelevanceThreshold float64 `mapstructure:"relevance_threshold"`
	HistoryWindow      int     `mapstructure:"history_window"`
	MaxSessionMessages int     `mapstructure:"max_session_messages"`
}

// SummaryConfig tunes the asynchronous summary/title maintenance.
type SummaryConfig struct {
	TokenBudget        int `mapstructure:"token_budget"`
	MinSummaryForTitle int `mapstructure:"min_summary_for_title"`
}

// UploadsConfig bounds the upload endpoint.
type UploadsConfig struct {
	MaxFiles int `mapstructure:"max_files"`
}

func (r RetrievalConfig) Validate() error {
	if r.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be > 0")
	}
	if r.RelevanceThreshold < 0 || r.RelevanceThreshold > 1 {
		return fmt.Errorf("retrieval.relevance_threshold must be within [0,1]")
	}
	if r.HistoryWindow < 0 {
		return fmt.Errorf("retrieval.history_window must be >= 0")
	}
	if r.MaxSessionMessages <= 0 {
		return fmt.Errorf("retrieval.max_session_messages must be > 0")
	}
	return nil
}

func (s SummaryConfig) Validate() error {
	if s.TokenBudget <= 0 {
		return fmt.Errorf("summary.token_budget must be > 0")
	}
	return nil
}

// LoadConfig loads config from file and STUDYBUDDY_* environment variables.
func LoadConfig(path string) *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("json")

	viper.SetDefault("general.listen", ":8080")
	viper.SetDefault("general.log_level", "info")
	viper.SetDefault("providers.openai.completion_model", "gpt-4o-mini")
	viper.SetDefault("providers.openai.embedding_model", "text-embedding-3-small")
	viper.SetDefault("providers.openai.temperature", 0.7)
	viper.SetDefault("providers.openai.max_output_tokens", 500)
	viper.SetDefault("providers.openai.timeout", "60s")
	viper.SetDefault("retrieval.top_k", 3)
	viper.SetDefault("retrieval.relevance_threshold", 0.6)
	viper.SetDefault("retrieval.history_window", 6)
	viper.SetDefault("retrieval.max_session_messages", 8)
	viper.SetDefault("summary.token_budget", 1000)
	viper.SetDefault("summary.min_summary_for_title", 50)
	viper.SetDefault("uploads.max_files", 8)
	viper.SetDefault("databases.postgres.sslmode", "disable")
	viper.SetDefault("databases.redis.port", "6379")

	if path == "" {
		viper.AddConfigPath("./config")
		viper.AddConfigPath(".")
		exe, _ := os.Executable()
		exeDir := filepath.Dir(exe)
		viper.AddConfigPath(exeDir)
		viper.AddConfigPath(filepath.Join(exeDir, ".."))
	} else {
		viper.SetConfigFile(path)
	}

	viper.SetEnvPrefix("STUDYBUDDY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		panic(fmt.Errorf("fatal error config file: %w", err))
	}

	if err := config.Retrieval.Validate(); err != nil {
		panic(err)
	}
	if err := config.Summary.Validate(); err != nil {
		panic(err)
	}
	return &config
}
