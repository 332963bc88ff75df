package config

import (
	"flag"
	"io"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Compliance != "permissive" || cfg.Backend != "localfs" || cfg.ResolverTries != 5 || cfg.ResolverTimeout != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("XDAO_CONSIGN_DB", "/tmp/state.db")
	t.Setenv("XDAO_CONSIGN_TESTNET", "true")
	t.Setenv("XDAO_CONSIGN_RESOLVER_TIMEOUT", "2s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB != "/tmp/state.db" || !cfg.Testnet || cfg.ResolverTimeout != 2*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	t.Setenv("XDAO_CONSIGN_TESTNET", "maybe")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for invalid bool")
	}
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("XDAO_CONSIGN_DB", "from-env.db")
	var cfg Config
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.DB, "db", "", "")

	if err := ParseConfigFromArgs(&cfg, fs, []string{"--db", "from-flag.db"}); err != nil {
		t.Fatalf("ParseConfigFromArgs: %v", err)
	}
	if cfg.DB != "from-flag.db" {
		t.Fatalf("DB = %q, want the flag value", cfg.DB)
	}

	cfg = Config{}
	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.StringVar(&cfg.DB, "db", "", "")
	if err := ParseConfigFromArgs(&cfg, fs, nil); err != nil {
		t.Fatalf("ParseConfigFromArgs: %v", err)
	}
	if cfg.DB != "from-env.db" {
		t.Fatalf("DB = %q, want the env value", cfg.DB)
	}
}
