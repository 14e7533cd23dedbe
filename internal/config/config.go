// Package config loads portal settings. Sources, lowest precedence first:
// built-in defaults, an optional YAML file named by PORTAL_CONFIG, an optional
// .env file, and PORTAL_* environment variables.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces every environment variable the portal reads.
const EnvPrefix = "PORTAL"

// Environments.
const (
	EnvDevelopment = "development"
	EnvTest        = "test"
	EnvProduction  = "production"
)

// Config errors.
var (
	ErrMissingCSRFKey    = errors.New("csrf_key is required in production")
	ErrMissingSessionKey = errors.New("session_key is required in production")
	ErrBadKey            = errors.New("keys must be 64 hex characters (32 bytes)")
	ErrMissingAPIBaseURL = errors.New("api_base_url is required")
	ErrUnknownEnv        = errors.New("env must be development, test or production")
)

// Config is the resolved portal configuration.
type Config struct {
	Env      string `mapstructure:"env"`
	Addr     string `mapstructure:"addr"`
	DBPath   string `mapstructure:"db_path"`
	LogLevel string `mapstructure:"log_level"`

	APIBaseURL string        `mapstructure:"api_base_url"`
	APITimeout time.Duration `mapstructure:"api_timeout"`

	// Service credentials used by background jobs (reference data refresh).
	ServiceEmail    string `mapstructure:"service_email"`
	ServicePassword string `mapstructure:"service_password"`

	CSRFKey    string        `mapstructure:"csrf_key"`
	SessionKey string        `mapstructure:"session_key"`
	SessionTTL time.Duration `mapstructure:"session_ttl"`

	ResendKey   string `mapstructure:"resend_key"`
	SendgridKey string `mapstructure:"sendgrid_key"`
	EmailFrom   string `mapstructure:"email_from"`
	ReplyTo     string `mapstructure:"reply_to"`
	ContactTo   string `mapstructure:"contact_to"`

	RollbarToken string `mapstructure:"rollbar_token"`

	ContentDir      string `mapstructure:"content_dir"`
	RefdataSchedule string `mapstructure:"refdata_schedule"`

	RateLimitPerSecond float64       `mapstructure:"rate_limit_per_second"`
	SlowRequest        time.Duration `mapstructure:"slow_request"`
	SlowQuery          time.Duration `mapstructure:"slow_query"`

	// AuditRetention bounds the audit trail's age. Zero keeps everything.
	AuditRetention time.Duration `mapstructure:"audit_retention"`
}

var keys = []string{
	"env", "addr", "db_path", "log_level", "api_base_url", "api_timeout",
	"service_email", "service_password", "csrf_key", "session_key", "session_ttl",
	"resend_key", "sendgrid_key", "email_from", "reply_to", "contact_to",
	"rollbar_token", "content_dir", "refdata_schedule", "rate_limit_per_second",
	"slow_request", "slow_query", "audit_retention",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDevelopment)
	v.SetDefault("addr", ":8080")
	v.SetDefault("db_path", "portal.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("api_base_url", "http://localhost:3000/api/v1")
	v.SetDefault("api_timeout", 15*time.Second)
	v.SetDefault("session_ttl", 24*time.Hour)
	v.SetDefault("email_from", "Portal <noreply@localhost>")
	v.SetDefault("reply_to", "support@localhost")
	v.SetDefault("contact_to", "support@localhost")
	v.SetDefault("content_dir", "content")
	v.SetDefault("refdata_schedule", "@every 30m")
	v.SetDefault("rate_limit_per_second", 10.0)
	v.SetDefault("slow_request", 200*time.Millisecond)
	v.SetDefault("slow_query", 10*time.Millisecond)
	v.SetDefault("audit_retention", 365*24*time.Hour)
}

// Load resolves the configuration. dotenv names an optional .env file; an
// empty value means ".env" in the working directory. A missing file is not an
// error.
func Load(dotenv string) (Config, error) {
	if dotenv == "" {
		dotenv = ".env"
	}
	if _, err := os.Stat(dotenv); err == nil {
		// Load never overrides variables already set in the environment.
		if err := godotenv.Load(dotenv); err != nil {
			return Config{}, fmt.Errorf("load %s: %w", dotenv, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("stat %s: %w", dotenv, err)
	}

	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// AutomaticEnv only applies to keys viper already knows about.
	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	return cfg, nil
}

// Validate reports the first problem with cfg.
func (c Config) Validate() error {
	switch c.Env {
	case EnvDevelopment, EnvTest, EnvProduction:
	default:
		return fmt.Errorf("%w: got %q", ErrUnknownEnv, c.Env)
	}
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return ErrMissingAPIBaseURL
	}
	if c.IsProduction() {
		if c.CSRFKey == "" {
			return ErrMissingCSRFKey
		}
		if c.SessionKey == "" {
			return ErrMissingSessionKey
		}
	}
	for name, k := range map[string]string{"csrf_key": c.CSRFKey, "session_key": c.SessionKey} {
		if k == "" {
			continue
		}
		if _, err := DecodeKey(k); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// IsProduction reports whether the portal runs in production.
func (c Config) IsProduction() bool { return c.Env == EnvProduction }

// DecodeKey turns a 64-char hex secret into 32 bytes.
func DecodeKey(hexKey string) ([32]byte, error) {
	var out [32]byte
	b, err := hex.DecodeString(hexKey)
	if err != nil || len(b) != len(out) {
		return out, ErrBadKey
	}
	copy(out[:], b)
	return out, nil
}
