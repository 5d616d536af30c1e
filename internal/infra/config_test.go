package infra

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("app:\n  version: \"1.2.0\"\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.RPC.URL != "https://api.verus.services" {
		t.Errorf("unexpected default RPC URL: %s", cfg.RPC.URL)
	}
	if cfg.Debounce() != 500*time.Millisecond {
		t.Errorf("expected 500ms debounce, got %s", cfg.Debounce())
	}
	if cfg.RPCTimeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %s", cfg.RPCTimeout())
	}
	if cfg.App.Version != "1.2.0" {
		t.Errorf("version not parsed: %q", cfg.App.Version)
	}
	bc := cfg.BreakerConfig()
	if bc.FailureThreshold != 5 || bc.SuccessThreshold != 2 || bc.Timeout != 30*time.Second {
		t.Errorf("unexpected breaker config: %+v", bc)
	}
}

func TestParseConfig_EnvOverride(t *testing.T) {
	t.Setenv("CONVERT_RPC_URL", "http://127.0.0.1:27486")
	t.Setenv("CONVERT_LISTEN_ADDR", ":9999")
	t.Setenv("CONVERT_RPC_TIMEOUT_SEC", "5")

	cfg, err := ParseConfig([]byte("rpc:\n  url: https://example.invalid\n"))
	if err != nil {
		t.Fatalf("ParseConfig failed: %v", err)
	}

	if cfg.RPC.URL != "http://127.0.0.1:27486" {
		t.Errorf("env should win over file, got %s", cfg.RPC.URL)
	}
	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("listen addr override failed: %s", cfg.Server.ListenAddr)
	}
	if cfg.RPCTimeout() != 5*time.Second {
		t.Errorf("timeout override failed: %s", cfg.RPCTimeout())
	}
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"bad url", "rpc:\n  url: ftp://nope\n"},
		{"negative debounce", "controller:\n  debounce_ms: -1\n"},
		{"bad log format", "logging:\n  format: xml\n"},
		{"broken yaml", "rpc: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseConfig([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoadConfig_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("catalog:\n  path: /etc/currencies.yaml\n"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Catalog.Path != "/etc/currencies.yaml" {
		t.Errorf("catalog path = %s", cfg.Catalog.Path)
	}

	if _, err := LoadConfig(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadSecretConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rpc.yaml")
	if err := os.WriteFile(path, []byte("rpc:\n  user: alice\n  password: pw\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONVERT_RPC_PASSWORD", "from-env")

	sec, err := LoadSecretConfig(path)
	if err != nil {
		t.Fatalf("LoadSecretConfig failed: %v", err)
	}
	if !sec.HasCredentials() || sec.RPC.User != "alice" || sec.RPC.Password != "from-env" {
		t.Errorf("unexpected secrets: %+v", sec.RPC)
	}
}

func TestNewLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(&buf, "warn", "json")

	logger.Info("hidden")
	logger.Warn("shown", slog.String("k", "v"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info should be filtered at warn level")
	}
	if !strings.Contains(out, `"k":"v"`) {
		t.Errorf("expected json attrs, got %s", out)
	}
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.App.Version = "0.1.0"

	PrintBanner(&buf, cfg)

	if !strings.Contains(buf.String(), "api.verus.services") {
		t.Errorf("banner should name the RPC endpoint: %s", buf.String())
	}
}
