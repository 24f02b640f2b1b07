package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledgerd.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, `
listen: " "
tls:
  allow_insecure: true
auth:
  hmac_secret: "`+testSecret+`"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddress != defaultListen || cfg.LedgerConfig != defaultLedgerCfg {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	if cfg.RateLimit.RequestsPerMinute != 600 || cfg.RateLimit.Burst != 60 {
		t.Fatalf("unexpected rate limit %+v", cfg.RateLimit)
	}
	if cfg.Auth.ClockSkew != 2*time.Minute {
		t.Fatalf("unexpected clock skew %s", cfg.Auth.ClockSkew)
	}
	if cfg.AuditEnabled() {
		t.Fatalf("audit should be disabled without a driver")
	}
}

func TestLoadConfigSecretFromEnv(t *testing.T) {
	t.Setenv("GK_LEDGERD_SECRET", testSecret)
	path := writeConfig(t, `
tls:
  allow_insecure: true
auth:
  hmac_secret_env: GK_LEDGERD_SECRET
  issuer: gk
audit:
  driver: SQLite
  dsn: file:audit.db
log:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Auth.HMACSecret != testSecret || cfg.Auth.Issuer != "gk" {
		t.Fatalf("unexpected auth %+v", cfg.Auth)
	}
	if !cfg.AuditEnabled() || cfg.Audit.Driver != "sqlite" {
		t.Fatalf("unexpected audit %+v", cfg.Audit)
	}
}

func TestLoadConfigRejects(t *testing.T) {
	cases := map[string]string{
		"short secret": "tls:\n  allow_insecure: true\nauth:\n  hmac_secret: short\n",
		"tls":          "auth:\n  hmac_secret: " + testSecret + "\n",
		"half tls":     "tls:\n  cert: a.crt\nauth:\n  hmac_secret: " + testSecret + "\n",
		"audit dsn":    "tls:\n  allow_insecure: true\nauth:\n  hmac_secret: " + testSecret + "\naudit:\n  driver: postgres\n",
		"audit driver": "tls:\n  allow_insecure: true\nauth:\n  hmac_secret: " + testSecret + "\naudit:\n  driver: mysql\n  dsn: x\n",
		"unknown key":  "tls:\n  allow_insecure: true\nauth:\n  hmac_secret: " + testSecret + "\napi_tokens: [a]\n",
	}
	for name, contents := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, contents)); err == nil {
				t.Fatalf("expected %q to be rejected", strings.TrimSpace(name))
			}
		})
	}
}
