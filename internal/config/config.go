package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
	Fetch  FetchConfig  `yaml:"fetch" mapstructure:"fetch"`
	Detect DetectConfig `yaml:"detect" mapstructure:"detect"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Uber   UberConfig   `yaml:"uber" mapstructure:"uber"`
	Export ExportConfig `yaml:"export" mapstructure:"export"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// FetchConfig configures the page fetch client shared by detection and
// enrichment.
type FetchConfig struct {
	TimeoutSecs  int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent    string  `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	RatePerHost  float64 `yaml:"rate_per_host" mapstructure:"rate_per_host"`
	Burst        int     `yaml:"burst" mapstructure:"burst"`
	MaxAttempts  int     `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Timeout returns the per-request timeout.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// DetectConfig points at an optional Signal Catalog override.
type DetectConfig struct {
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
}

// BatchConfig configures sweeps.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
	CommitSize  int `yaml:"commit_size" mapstructure:"commit_size"`
	Limit       int `yaml:"limit" mapstructure:"limit"`
}

// ServerConfig configures the query API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// UberConfig holds delivery quote API credentials.
type UberConfig struct {
	ClientID     string `yaml:"client_id" mapstructure:"client_id"`
	ClientSecret string `yaml:"client_secret" mapstructure:"client_secret"`
	CustomerID   string `yaml:"customer_id" mapstructure:"customer_id"`
	BaseURL      string `yaml:"base_url" mapstructure:"base_url"`
	AuthURL      string `yaml:"auth_url" mapstructure:"auth_url"`
	Concurrency  int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// ExportConfig holds export defaults.
type ExportConfig struct {
	Output string `yaml:"output" mapstructure:"output"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "storefronts.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("fetch.timeout_secs", 10)
	v.SetDefault("fetch.user_agent", "")
	v.SetDefault("fetch.max_body_bytes", 2<<20)
	v.SetDefault("fetch.rate_per_host", 0)
	v.SetDefault("fetch.burst", 1)
	v.SetDefault("fetch.max_attempts", 2)
	v.SetDefault("detect.catalog_path", "")
	v.SetDefault("batch.concurrency", 20)
	v.SetDefault("batch.commit_size", 100)
	v.SetDefault("batch.limit", 1000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("uber.client_id", "")
	v.SetDefault("uber.client_secret", "")
	v.SetDefault("uber.customer_id", "")
	v.SetDefault("uber.base_url", "https://api.uber.com")
	v.SetDefault("uber.auth_url", "https://login.uber.com/oauth/v2/token")
	v.SetDefault("uber.concurrency", 5)
	v.SetDefault("export.output", "storefronts.csv")
	v.SetDefault("export.format", "")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on. Modes are
// "discover", "rescrape", "check-uber", "export", and "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "discover", "rescrape":
		if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 200 {
			errs = append(errs, "batch.concurrency must be between 1 and 200")
		}
		if c.Batch.CommitSize < 1 {
			errs = append(errs, "batch.commit_size must be > 0")
		}
		if c.Fetch.TimeoutSecs < 1 {
			errs = append(errs, "fetch.timeout_secs must be > 0")
		}
	case "check-uber":
		if c.Uber.ClientID == "" {
			errs = append(errs, "uber.client_id is required")
		}
		if c.Uber.ClientSecret == "" {
			errs = append(errs, "uber.client_secret is required")
		}
		if c.Uber.CustomerID == "" {
			errs = append(errs, "uber.customer_id is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "export":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
