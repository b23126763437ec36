// Package config loads the process configuration from defaults, an optional
// YAML file, and NLQUERY_-prefixed environment variables, in that order of
// increasing precedence.
package config

import (
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/koustreak/nlquery/internal/errs"
)

// DefaultFile is the config file looked up when none is given explicitly.
const DefaultFile = "nlquery.yaml"

// envPrefix namespaces the environment variables this process reads.
// Nesting uses a double underscore: NLQUERY_JUDGE__MAX_ITERATIONS.
const envPrefix = "NLQUERY_"

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr     string `koanf:"addr"`
	RowLimit int    `koanf:"row_limit"`
}

// DatabaseConfig configures the SQL backend.
type DatabaseConfig struct {
	Driver              string `koanf:"driver"` // mysql | postgres
	DSN                 string `koanf:"dsn"`
	MaxConns            int    `koanf:"max_conns"`
	QueryTimeoutSeconds int    `koanf:"query_timeout_seconds"`
}

// QueryTimeout returns the per-query deadline.
func (c DatabaseConfig) QueryTimeout() time.Duration {
	return time.Duration(c.QueryTimeoutSeconds) * time.Second
}

// LLMConfig configures the model endpoint.
type LLMConfig struct {
	BaseURL        string `koanf:"base_url"`
	APIKey         string `koanf:"api_key"`
	ChatModel      string `koanf:"chat_model"`
	EmbedModel     string `koanf:"embed_model"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

// Timeout returns the per-call deadline.
func (c LLMConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// JudgeConfig tunes the generation-validation loop.
type JudgeConfig struct {
	MaxIterations       int     `koanf:"max_iterations"`
	SimilarityThreshold float64 `koanf:"similarity_threshold"`
	EmbeddingBlocking   bool    `koanf:"embedding_blocking"`
	RefineQuestion      bool    `koanf:"refine_question"`
}

// ReportsConfig configures the optional report archive.
type ReportsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Endpoint  string `koanf:"endpoint"`
	AccessKey string `koanf:"access_key"`
	SecretKey string `koanf:"secret_key"`
	Bucket    string `koanf:"bucket"`
	UseSSL    bool   `koanf:"use_ssl"`
}

// LogConfig configures process logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json | console
}

// Config is the full process configuration.
type Config struct {
	Server   ServerConfig   `koanf:"server"`
	Database DatabaseConfig `koanf:"database"`
	LLM      LLMConfig      `koanf:"llm"`
	Judge    JudgeConfig    `koanf:"judge"`
	Reports  ReportsConfig  `koanf:"reports"`
	Log      LogConfig      `koanf:"log"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.addr":                    ":8080",
		"server.row_limit":               200,
		"database.driver":                "mysql",
		"database.max_conns":             10,
		"database.query_timeout_seconds": 30,
		"llm.base_url":                   "http://localhost:11434/v1",
		"llm.chat_model":                 "qwen2.5:14b",
		"llm.embed_model":                "nomic-embed-text",
		"llm.timeout_seconds":            60,
		"judge.max_iterations":           3,
		"judge.similarity_threshold":     0.75,
		"judge.embedding_blocking":       false,
		"judge.refine_question":          true,
		"reports.enabled":                false,
		"log.level":                      "info",
		"log.format":                     "json",
	}
}

// Load builds the configuration. path may be empty, in which case
// nlquery.yaml is used when present and silently skipped when not.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "failed to load config defaults", err)
	}

	explicit := path != ""
	if path == "" {
		path = DefaultFile
	}
	if _, err := os.Stat(path); err == nil {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to read config file "+path, err)
		}
	} else if explicit {
		return nil, errs.Wrap(errs.ErrKindNotFound, "config file not found: "+path, err)
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, errs.Wrap(errs.ErrKindUnknown, "failed to load environment", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "failed to unmarshal config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the process cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "mysql", "postgres":
	default:
		return errs.New(errs.ErrKindInvalidInput, "database.driver must be mysql or postgres, got "+c.Database.Driver)
	}
	if c.LLM.BaseURL == "" {
		return errs.New(errs.ErrKindInvalidInput, "llm.base_url must not be empty")
	}
	if c.Judge.MaxIterations < 1 {
		return errs.New(errs.ErrKindInvalidInput, "judge.max_iterations must be at least 1")
	}
	if c.Judge.SimilarityThreshold < 0 || c.Judge.SimilarityThreshold > 1 {
		return errs.New(errs.ErrKindInvalidInput, "judge.similarity_threshold must be within [0, 1]")
	}
	if c.Reports.Enabled && (c.Reports.Endpoint == "" || c.Reports.Bucket == "") {
		return errs.New(errs.ErrKindInvalidInput, "reports.endpoint and reports.bucket are required when reports.enabled")
	}
	return nil
}
