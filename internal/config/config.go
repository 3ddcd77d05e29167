// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

// Package config loads the qread server configuration.
//
// Values are layered, later sources winning: built-in defaults, a YAML
// file, secrets from the environment, then command-line flags.
package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/robfig/cron/v3"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/qread/qread/internal/apperr"
	"github.com/qread/qread/internal/auth"
	"github.com/qread/qread/internal/credential"
	"github.com/qread/qread/internal/logging"
	"github.com/qread/qread/internal/notify"
	"github.com/qread/qread/internal/provision"
	"github.com/qread/qread/internal/secret"
	"github.com/qread/qread/internal/store"
	"github.com/qread/qread/internal/web"
)

// Backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
	MailLog     = "log"
	MailSMTP    = "smtp"
)

// Config is the complete server configuration.
type Config struct {
	HTTP     web.Config       `koanf:"http"`
	Database store.PoolConfig `koanf:"database"`
	Cache    CacheConfig      `koanf:"cache"`
	Auth     AuthConfig       `koanf:"auth"`
	Mail     MailConfig       `koanf:"mail"`
	Metrics  MetricsConfig    `koanf:"metrics"`
	Log      LogConfig        `koanf:"log"`
}

// CacheConfig selects the ephemeral secret store.
type CacheConfig struct {
	Backend       string `koanf:"backend"`
	RedisAddr     string `koanf:"redis_addr"`
	RedisDB       int    `koanf:"redis_db"`
	RedisPassword string `koanf:"redis_password"` //nolint:gosec // G117: loaded from the environment
	KeyPrefix     string `koanf:"key_prefix"`
	// SweepSchedule is a cron spec for purging expired memory entries.
	SweepSchedule string `koanf:"sweep_schedule"`
}

// AuthConfig holds lifetimes and hashing cost.
type AuthConfig struct {
	OTPTTL             time.Duration     `koanf:"otp_ttl"`
	MaxOTPAttempts     int               `koanf:"max_otp_attempts"`
	SessionIdleTTL     time.Duration     `koanf:"session_idle_ttl"`
	SessionAbsoluteTTL time.Duration     `koanf:"session_absolute_ttl"`
	ResetTTL           time.Duration     `koanf:"reset_ttl"`
	InviteTTL          time.Duration     `koanf:"invite_ttl"`
	Argon2             credential.Params `koanf:"argon2"`
}

// Service returns the authentication service settings.
func (c AuthConfig) Service() auth.Config {
	return auth.Config{
		OTPTTL:             c.OTPTTL,
		MaxOTPAttempts:     c.MaxOTPAttempts,
		SessionIdleTTL:     c.SessionIdleTTL,
		SessionAbsoluteTTL: c.SessionAbsoluteTTL,
	}
}

// Provisioning returns the provisioning service settings.
func (c AuthConfig) Provisioning() provision.Config {
	return provision.Config{ResetTTL: c.ResetTTL, InviteTTL: c.InviteTTL}
}

// Hashing returns the argon2id parameters with the fixed salt and key
// lengths filled in.
func (c AuthConfig) Hashing() credential.Params {
	p := credential.DefaultParams()
	p.Time = c.Argon2.Time
	p.MemoryKiB = c.Argon2.MemoryKiB
	p.Threads = c.Argon2.Threads
	return p
}

// MailConfig selects and tunes outbound delivery.
type MailConfig struct {
	Backend        string        `koanf:"backend"`
	Host           string        `koanf:"host"`
	Port           int           `koanf:"port"`
	Username       string        `koanf:"username"`
	Password       string        `koanf:"password"` //nolint:gosec // G117: loaded from the environment
	From           string        `koanf:"from"`
	TLS            bool          `koanf:"tls"`
	MaxAttempts    int           `koanf:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff"`
}

// SMTP returns the SMTP sender settings.
func (c MailConfig) SMTP() notify.SMTPConfig {
	return notify.SMTPConfig{
		Host:     c.Host,
		Port:     c.Port,
		Username: c.Username,
		Password: c.Password,
		From:     c.From,
		TLS:      c.TLS,
	}
}

// Dispatch returns the retry policy.
func (c MailConfig) Dispatch() notify.DispatchConfig {
	return notify.DispatchConfig{MaxAttempts: c.MaxAttempts, InitialBackoff: c.InitialBackoff}
}

// MetricsConfig configures the metrics and health listener.
type MetricsConfig struct {
	// Addr is empty to disable the listener.
	Addr string `koanf:"addr"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Format string `koanf:"format"`
	Level  string `koanf:"level"`
}

// Default returns a configuration suitable for local development: an
// in-memory cache, logged mail and no database URL.
func Default() Config {
	authCfg := auth.DefaultConfig()
	provCfg := provision.DefaultConfig()
	dispatch := notify.DefaultDispatchConfig()
	return Config{
		HTTP: web.DefaultConfig(),
		Database: store.PoolConfig{
			MaxConns:        25,
			MinConns:        2,
			MaxConnLifetime: time.Hour,
			MaxConnIdleTime: 30 * time.Minute,
		},
		Cache: CacheConfig{
			Backend:       CacheMemory,
			KeyPrefix:     secret.DefaultKeyPrefix,
			SweepSchedule: "@every 1m",
		},
		Auth: AuthConfig{
			OTPTTL:             authCfg.OTPTTL,
			MaxOTPAttempts:     authCfg.MaxOTPAttempts,
			SessionIdleTTL:     authCfg.SessionIdleTTL,
			SessionAbsoluteTTL: authCfg.SessionAbsoluteTTL,
			ResetTTL:           provCfg.ResetTTL,
			InviteTTL:          provCfg.InviteTTL,
			Argon2:             credential.DefaultParams(),
		},
		Mail: MailConfig{
			Backend:        MailLog,
			Port:           587,
			TLS:            true,
			MaxAttempts:    dispatch.MaxAttempts,
			InitialBackoff: dispatch.InitialBackoff,
		},
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
		Log:     LogConfig{Format: "json", Level: "info"},
	}
}

// secrets are read from the environment so they stay out of config files.
type secrets struct {
	DatabaseURL   string `envconfig:"DATABASE_URL"`
	SMTPPassword  string `envconfig:"QREAD_SMTP_PASSWORD"`
	RedisPassword string `envconfig:"QREAD_REDIS_PASSWORD"`
}

// flagSections are the key prefixes a flag may set.
var flagSections = []string{"http", "database", "cache", "auth", "mail", "metrics", "log"}

// Load builds the configuration. path may be empty to skip the file;
// flags may be nil. Only flags the user changed are applied, and a flag
// named "section-key" sets "section.key".
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("path", path).Wrap(err)
		}
	}

	var env secrets
	if err := envconfig.Process("", &env); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "environment").Wrap(err)
	}
	for key, val := range map[string]string{
		"database.url":         env.DatabaseURL,
		"mail.password":        env.SMTPPassword,
		"cache.redis_password": env.RedisPassword,
	} {
		if val == "" {
			continue
		}
		if err := k.Set(key, val); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("key", key).Wrap(err)
		}
	}

	if flags != nil {
		provider := posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, any) {
			key := flagKey(f.Name)
			if !f.Changed || key == "" {
				return "", nil
			}
			return key, posflag.FlagVal(flags, f)
		})
		if err := k.Load(provider, nil); err != nil {
			return nil, oops.Code("CONFIG_LOAD_FAILED").With("source", "flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code("CONFIG_LOAD_FAILED").With("operation", "decode").Wrap(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// flagKey maps "http-addr" to "http.addr" and "cache-redis-addr" to
// "cache.redis_addr". Flags outside a known section map to "".
func flagKey(name string) string {
	section, rest, ok := strings.Cut(name, "-")
	if !ok {
		return ""
	}
	for _, s := range flagSections {
		if s == section {
			return section + "." + strings.ReplaceAll(rest, "-", "_")
		}
	}
	return ""
}

func invalid(key, format string, args ...any) error {
	return apperr.NewWith(apperr.KindValidation, []any{"key", key}, format, args...)
}

// Validate reports the first setting that cannot work.
func (c *Config) Validate() error {
	if c.HTTP.Addr == "" {
		return invalid("http.addr", "http.addr is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return err
	}

	switch c.Cache.Backend {
	case CacheMemory:
		if _, err := cron.ParseStandard(c.Cache.SweepSchedule); err != nil {
			return invalid("cache.sweep_schedule", "cache.sweep_schedule %q: %v", c.Cache.SweepSchedule, err)
		}
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return invalid("cache.redis_addr", "cache.redis_addr is required for the redis backend")
		}
	default:
		return invalid("cache.backend", "cache.backend must be 'memory' or 'redis', got %q", c.Cache.Backend)
	}

	switch c.Mail.Backend {
	case MailLog:
	case MailSMTP:
		if c.Mail.Host == "" || c.Mail.From == "" {
			return invalid("mail.host", "mail.host and mail.from are required for the smtp backend")
		}
	default:
		return invalid("mail.backend", "mail.backend must be 'log' or 'smtp', got %q", c.Mail.Backend)
	}
	if c.Mail.MaxAttempts < 1 {
		return invalid("mail.max_attempts", "mail.max_attempts must be at least 1")
	}

	for key, d := range map[string]time.Duration{
		"auth.otp_ttl":              c.Auth.OTPTTL,
		"auth.session_idle_ttl":     c.Auth.SessionIdleTTL,
		"auth.session_absolute_ttl": c.Auth.SessionAbsoluteTTL,
		"auth.reset_ttl":            c.Auth.ResetTTL,
		"auth.invite_ttl":           c.Auth.InviteTTL,
	} {
		if d <= 0 {
			return invalid(key, "%s must be positive", key)
		}
	}
	if c.Auth.SessionIdleTTL > c.Auth.SessionAbsoluteTTL {
		return invalid("auth.session_idle_ttl", "auth.session_idle_ttl must not exceed auth.session_absolute_ttl")
	}
	if c.Auth.MaxOTPAttempts < 1 {
		return invalid("auth.max_otp_attempts", "auth.max_otp_attempts must be at least 1")
	}
	if c.Auth.Argon2.Time < 1 || c.Auth.Argon2.MemoryKiB < 8 || c.Auth.Argon2.Threads < 1 {
		return invalid("auth.argon2", "auth.argon2 parameters are too weak")
	}
	return nil
}
