package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen    = ":8480"
	defaultLedgerCfg = "ledger.toml"
)

// Config captures the runtime settings of the ledger daemon.
type Config struct {
	ListenAddress string          `yaml:"listen"`
	LedgerConfig  string          `yaml:"ledger_config"`
	TLS           TLSConfig       `yaml:"tls"`
	Auth          AuthConfig      `yaml:"auth"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	Audit         AuditConfig     `yaml:"audit"`
	Log           LogConfig       `yaml:"log"`
}

// TLSConfig describes the certificate served by the HTTP listener.
type TLSConfig struct {
	CertPath      string `yaml:"cert"`
	KeyPath       string `yaml:"key"`
	AllowInsecure bool   `yaml:"allow_insecure"`
}

// AuthConfig configures bearer token validation. Tokens are HS256 JWTs whose
// subject is the caller's ledger address.
type AuthConfig struct {
	HMACSecret string        `yaml:"hmac_secret"`
	SecretEnv  string        `yaml:"hmac_secret_env"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
}

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// AuditConfig selects the audit log database.
type AuditConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// LogConfig controls logging output.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Load reads the YAML configuration from disk and validates the result.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.LedgerConfig = strings.TrimSpace(cfg.LedgerConfig)
	if cfg.LedgerConfig == "" {
		cfg.LedgerConfig = defaultLedgerCfg
	}
	cfg.TLS.CertPath = strings.TrimSpace(cfg.TLS.CertPath)
	cfg.TLS.KeyPath = strings.TrimSpace(cfg.TLS.KeyPath)
	cfg.Auth.normalize()
	if cfg.RateLimit.RequestsPerMinute <= 0 {
		cfg.RateLimit.RequestsPerMinute = 600
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = 60
	}
	cfg.Audit.Driver = strings.ToLower(strings.TrimSpace(cfg.Audit.Driver))
	cfg.Audit.DSN = strings.TrimSpace(cfg.Audit.DSN)
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
}

func (cfg *AuthConfig) normalize() {
	cfg.SecretEnv = strings.TrimSpace(cfg.SecretEnv)
	if cfg.SecretEnv != "" {
		if secret := strings.TrimSpace(os.Getenv(cfg.SecretEnv)); secret != "" {
			cfg.HMACSecret = secret
		}
	}
	cfg.HMACSecret = strings.TrimSpace(cfg.HMACSecret)
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	if cfg.ClockSkew <= 0 {
		cfg.ClockSkew = 2 * time.Minute
	}
}

func (cfg *Config) validate() error {
	hasCert := cfg.TLS.CertPath != ""
	if hasCert != (cfg.TLS.KeyPath != "") {
		return fmt.Errorf("tls: cert and key must either both be provided or both be empty")
	}
	if !cfg.TLS.AllowInsecure && !hasCert {
		return fmt.Errorf("tls: cert and key are required unless allow_insecure=true")
	}
	if len(cfg.Auth.HMACSecret) < 32 {
		return fmt.Errorf("auth: hmac secret must be at least 32 bytes")
	}
	switch cfg.Audit.Driver {
	case "":
	case "postgres", "sqlite":
		if cfg.Audit.DSN == "" {
			return fmt.Errorf("audit: dsn required for driver %s", cfg.Audit.Driver)
		}
	default:
		return fmt.Errorf("audit: unsupported driver %q", cfg.Audit.Driver)
	}
	return nil
}

// AuditEnabled reports whether an audit database is configured.
func (cfg Config) AuditEnabled() bool { return cfg.Audit.Driver != "" }
