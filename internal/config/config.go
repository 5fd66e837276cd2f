// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads acctgate configuration.
//
// Sources are applied in order, later ones winning: built-in defaults, the
// YAML config file, environment variables (optionally read from a .env
// file), then command-line flags the user actually set.
package config

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/holomush/acctgate/internal/logging"
)

// Config is the full acctgate configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database"`
	HTTP     HTTPConfig     `koanf:"http"`
	Metrics  MetricsConfig  `koanf:"metrics"`
	Log      LogConfig      `koanf:"log"`
	SMTP     SMTPConfig     `koanf:"smtp"`
	Security SecurityConfig `koanf:"security"`
}

// DatabaseConfig selects the credential store.
type DatabaseConfig struct {
	// URL is postgres://... or sqlite:///path/to/file.db.
	URL         string `koanf:"url"`
	AutoMigrate bool   `koanf:"auto_migrate"`
}

// HTTPConfig configures the JSON API listener.
type HTTPConfig struct {
	Addr            string        `koanf:"addr"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// AdminToken protects the admin routes. Empty leaves them open, which
	// only suits deployments where the API is not reachable by customers.
	AdminToken        string `koanf:"admin_token"`
	TrustProxyHeaders bool   `koanf:"trust_proxy_headers"`
}

// MetricsConfig configures the observability listener. Empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// LogConfig configures logging.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// SMTPConfig configures reset code delivery. When disabled, codes are
// written to the log.
type SMTPConfig struct {
	Enabled     bool          `koanf:"enabled"`
	Host        string        `koanf:"host"`
	Port        int           `koanf:"port"`
	Username    string        `koanf:"username"`
	Password    string        `koanf:"password"`
	From        string        `koanf:"from"`
	Subject     string        `koanf:"subject"`
	ImplicitTLS bool          `koanf:"implicit_tls"`
	Timeout     time.Duration `koanf:"timeout"`
}

// SecurityConfig tunes the account engine.
type SecurityConfig struct {
	ConcealUnknownEmail bool          `koanf:"conceal_unknown_email"`
	ConflictRetries     uint64        `koanf:"conflict_retries"`
	ConflictBackoff     time.Duration `koanf:"conflict_backoff"`
	Argon2              Argon2Config  `koanf:"argon2"`
}

// Argon2Config holds argon2id cost parameters.
type Argon2Config struct {
	Time    uint32 `koanf:"time"`
	Memory  uint32 `koanf:"memory"`
	Threads uint8  `koanf:"threads"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Database: DatabaseConfig{URL: "sqlite://acctgate.db"},
		HTTP: HTTPConfig{
			Addr:            "127.0.0.1:8080",
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
		SMTP: SMTPConfig{
			Port:    587,
			Subject: "Reset your password",
			Timeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			ConflictRetries: 3,
			ConflictBackoff: 10 * time.Millisecond,
			Argon2:          Argon2Config{Time: 1, Memory: 64 * 1024, Threads: 4},
		},
	}
}

// envKeys maps environment variables onto config keys. Later entries win.
var envKeys = []struct{ name, key string }{
	{"DATABASE_URL", "database.url"},
	{"ACCTGATE_DATABASE_URL", "database.url"},
	{"ACCTGATE_HTTP_ADDR", "http.addr"},
	{"ACCTGATE_ADMIN_TOKEN", "http.admin_token"},
	{"ACCTGATE_METRICS_ADDR", "metrics.addr"},
	{"ACCTGATE_LOG_FORMAT", "log.format"},
	{"ACCTGATE_LOG_LEVEL", "log.level"},
	{"ACCTGATE_SMTP_ENABLED", "smtp.enabled"},
	{"ACCTGATE_SMTP_HOST", "smtp.host"},
	{"ACCTGATE_SMTP_PORT", "smtp.port"},
	{"ACCTGATE_SMTP_USERNAME", "smtp.username"},
	{"ACCTGATE_SMTP_PASSWORD", "smtp.password"},
	{"ACCTGATE_SMTP_FROM", "smtp.from"},
	{"ACCTGATE_CONCEAL_UNKNOWN_EMAIL", "security.conceal_unknown_email"},
}

// flagKeys maps command-line flag names onto config keys.
var flagKeys = map[string]string{
	"database-url": "database.url",
	"auto-migrate": "database.auto_migrate",
	"http-addr":    "http.addr",
	"metrics-addr": "metrics.addr",
	"log-format":   "log.format",
	"log-level":    "log.level",
}

// LoadOptions names the sources Load reads.
type LoadOptions struct {
	// ConfigFile is a YAML file. Empty skips the file.
	ConfigFile string
	// EnvFile is a dotenv file. A missing file is ignored.
	EnvFile string
	// Flags are applied last; only flags that were set count.
	Flags *pflag.FlagSet
}

// RegisterFlags adds the flags Load understands to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("database-url", d.Database.URL, "database URL (postgres://... or sqlite:///path)")
	fs.Bool("auto-migrate", d.Database.AutoMigrate, "apply pending migrations on startup")
	fs.String("http-addr", d.HTTP.Addr, "API listen address")
	fs.String("metrics-addr", d.Metrics.Addr, "metrics/health HTTP address (empty = disabled)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
}

// Load builds and validates a Config.
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, oops.Code("CONFIG_ENV_FILE_INVALID").With("path", opts.EnvFile).Wrap(err)
		}
	}

	k := koanf.New(".")

	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_FILE_INVALID").With("path", opts.ConfigFile).Wrap(err)
		}
	}

	if err := loadEnv(k); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		provider := posflag.ProviderWithFlag(opts.Flags, ".", nil, func(f *pflag.Flag) (string, interface{}) {
			key, ok := flagKeys[f.Name]
			if !ok || !f.Changed {
				return "", nil
			}
			return key, posflag.FlagVal(opts.Flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_FLAGS_INVALID").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, oops.Code("CONFIG_INVALID").With("operation", "decode").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadEnv(k *koanf.Koanf) error {
	for _, e := range envKeys {
		val, ok := os.LookupEnv(e.name)
		if !ok || val == "" {
			continue
		}
		if err := k.Set(e.key, val); err != nil {
			return oops.Code("CONFIG_ENV_INVALID").With("variable", e.name).Wrap(err)
		}
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var problems []string
	if c.Database.URL == "" {
		problems = append(problems, "database.url is required")
	}
	if c.HTTP.Addr == "" {
		problems = append(problems, "http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		problems = append(problems, "log.format must be 'json' or 'text', got "+strconv.Quote(c.Log.Format))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		problems = append(problems, "log.level must be debug, info, warn or error, got "+strconv.Quote(c.Log.Level))
	}
	if c.SMTP.Enabled {
		if c.SMTP.Host == "" {
			problems = append(problems, "smtp.host is required when smtp is enabled")
		}
		if c.SMTP.From == "" {
			problems = append(problems, "smtp.from is required when smtp is enabled")
		}
		if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
			problems = append(problems, "smtp.port must be between 1 and 65535")
		}
	}
	if c.Security.Argon2.Time == 0 || c.Security.Argon2.Memory == 0 || c.Security.Argon2.Threads == 0 {
		problems = append(problems, "security.argon2 time, memory and threads must be positive")
	}
	if len(problems) > 0 {
		return oops.Code("CONFIG_INVALID").
			With("problems", problems).
			Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
