// Package config handles configuration loading for form13f.
// It supports YAML config files, command-line flags and environment
// variable overrides.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/seenimoa/form13f/internal/feed"
	"github.com/seenimoa/form13f/internal/index"
	"github.com/seenimoa/form13f/internal/infra"
	"github.com/seenimoa/form13f/internal/sec"
)

// firstIndexYear is the first year EDGAR publishes a full index for.
const firstIndexYear = 1993

// Config represents the complete application configuration.
type Config struct {
	Year        int           `mapstructure:"year"        yaml:"year"`
	Quarter     string        `mapstructure:"quarter"     yaml:"quarter"` // "1", "Q1" or "QTR1"
	Count       int           `mapstructure:"count"       yaml:"count"`
	All         bool          `mapstructure:"all"         yaml:"all"`
	FormType    string        `mapstructure:"form_type"   yaml:"form_type"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	CIKs        []string      `mapstructure:"ciks"        yaml:"ciks"`
	SEC         SECConfig     `mapstructure:"sec"         yaml:"sec"`
	Index       IndexConfig   `mapstructure:"index"       yaml:"index"`
	Logging     LoggingConfig `mapstructure:"logging"     yaml:"logging"`
}

// SECConfig holds settings for talking to EDGAR.
type SECConfig struct {
	BaseURL        string        `mapstructure:"base_url"        yaml:"base_url"`
	FeedURL        string        `mapstructure:"feed_url"        yaml:"feed_url"`
	UserAgent      string        `mapstructure:"user_agent"      yaml:"user_agent"`
	RateLimit      int           `mapstructure:"rate_limit"      yaml:"rate_limit"` // requests per second
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
}

// IndexConfig holds quarterly index cache settings.
type IndexConfig struct {
	CacheDir       string        `mapstructure:"cache_dir"       yaml:"cache_dir"`
	AttemptTimeout time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	RetryDelay     time.Duration `mapstructure:"retry_delay"     yaml:"retry_delay"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `mapstructure:"format" yaml:"format"` // "text" or "json"
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"year":        "year",
	"quarter":     "quarter",
	"count":       "count",
	"all":         "all",
	"form-type":   "form_type",
	"concurrency": "concurrency",
	"cache-dir":   "index.cache_dir",
	"user-agent":  "sec.user_agent",
	"log-level":   "logging.level",
}

// Load reads the configuration from file, flags and environment variables.
// Config file search order:
//  1. ./config/form13f.yaml
//  2. ~/.form13f/form13f.yaml
//
// Environment variables override config file values and flags set on the
// command line override both.
// Format: FORM13F_<SECTION>_<KEY>, e.g., FORM13F_SEC_USER_AGENT
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := newViper()

	v.SetConfigName("form13f")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath(filepath.Join(homeDir(), ".form13f"))

	// Read config file (not required to exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return decode(v, flags)
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string, flags *pflag.FlagSet) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return decode(v, flags)
}

func newViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("FORM13F")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper, flags *pflag.FlagSet) (*Config, error) {
	if flags != nil {
		for name, key := range flagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("error binding flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

// setDefaults sets sensible defaults for all config values.
func setDefaults(v *viper.Viper) {
	// Selection defaults
	v.SetDefault("year", 2021)
	v.SetDefault("quarter", "1")
	v.SetDefault("count", 2)
	v.SetDefault("all", false)
	v.SetDefault("form_type", sec.DefaultFormType)
	v.SetDefault("concurrency", 1)

	// SEC defaults
	v.SetDefault("sec.base_url", sec.DefaultBaseURL)
	v.SetDefault("sec.feed_url", feed.DefaultURL)
	v.SetDefault("sec.user_agent", infra.DefaultUserAgent)
	v.SetDefault("sec.rate_limit", 10) // SEC fair-access ceiling
	v.SetDefault("sec.request_timeout", 30*time.Second)

	// Index cache defaults
	v.SetDefault("index.cache_dir", ".")
	v.SetDefault("index.attempt_timeout", sec.DefaultAttemptTimeout)
	v.SetDefault("index.retry_delay", sec.DefaultRetryDelay)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// overrideFromEnv reads the conventional SEC_USER_AGENT variable when the
// prefixed one is absent.
func overrideFromEnv(cfg *Config) {
	if os.Getenv("FORM13F_SEC_USER_AGENT") != "" {
		return
	}
	if ua := os.Getenv("SEC_USER_AGENT"); ua != "" {
		cfg.SEC.UserAgent = ua
	}
}

// Validate checks the configuration before any network activity.
func (c *Config) Validate() error {
	if c.Year < firstIndexYear || c.Year > time.Now().Year()+1 {
		return &sec.ConfigError{Field: "year", Detail: fmt.Sprintf("%d out of range", c.Year)}
	}
	if _, err := sec.ParseQuarter(c.Quarter); err != nil {
		return err
	}
	if c.Count < 0 {
		return &sec.ConfigError{Field: "count", Detail: "must not be negative"}
	}
	if c.Concurrency < 1 {
		return &sec.ConfigError{Field: "concurrency", Detail: "must be at least 1"}
	}
	if strings.TrimSpace(c.FormType) == "" {
		return &sec.ConfigError{Field: "form_type", Detail: "empty"}
	}
	for _, cik := range c.CIKs {
		if !sec.IsNumeric(cik) {
			return &sec.ConfigError{Field: "cik", Detail: fmt.Sprintf("%q is not numeric", cik)}
		}
	}
	if _, err := c.Logging.level(); err != nil {
		return err
	}
	return nil
}

// QuarterToken returns the parsed quarter. Call Validate first.
func (c *Config) QuarterToken() sec.Quarter {
	q, _ := sec.ParseQuarter(c.Quarter)
	return q
}

// Limit returns the filing count bound, or index.Unbounded when all
// filings were requested.
func (c *Config) Limit() int {
	if c.All {
		return index.Unbounded
	}
	return c.Count
}

func (l LoggingConfig) level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, &sec.ConfigError{Field: "logging.level", Detail: fmt.Sprintf("unknown level %q", l.Level)}
	}
	return lvl, nil
}

// NewLogger builds a logger writing to w in the configured format.
func (l LoggingConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := l.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	switch strings.ToLower(l.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, &sec.ConfigError{Field: "logging.format", Detail: fmt.Sprintf("unknown format %q", l.Format)}
	}
}

// homeDir returns the user's home directory.
func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
