// Package config loads xdao-consign defaults from the environment. Command
// line flags override these values.
package config

import (
	"errors"
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment defaults shared by the CLI subcommands.
type Config struct {
	DB         string `env:"XDAO_CONSIGN_DB"`
	Witnesses  string `env:"XDAO_CONSIGN_WITNESSES"`
	Compliance string `env:"XDAO_CONSIGN_COMPLIANCE" envDefault:"permissive"`
	Testnet    bool   `env:"XDAO_CONSIGN_TESTNET"`
	KeyDir     string `env:"XDAO_CONSIGN_KEY_DIR"`
	Policy     string `env:"XDAO_CONSIGN_POLICY"`

	Backend     string `env:"XDAO_CONSIGN_BACKEND" envDefault:"localfs"`
	StoreConfig string `env:"XDAO_CONSIGN_STORE_CONFIG"`
	Listen      string `env:"XDAO_CONSIGN_LISTEN" envDefault:"127.0.0.1:7420"`

	ResolverTries   uint          `env:"XDAO_CONSIGN_RESOLVER_TRIES" envDefault:"5"`
	ResolverTimeout time.Duration `env:"XDAO_CONSIGN_RESOLVER_TIMEOUT" envDefault:"30s"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load returns the environment configuration.
func Load() (Config, error) {
	var cfg Config
	err := ParseEnv(&cfg)
	return cfg, err
}

// ParseConfigFromArgs loads defaults from env into cfg and then parses flags,
// which were bound to cfg's fields before the call.
func ParseConfigFromArgs[T any](cfg *T, fs *flag.FlagSet, args []string) error {
	if cfg == nil {
		return errors.New("config target is required")
	}
	if fs == nil {
		return errors.New("flag parser is required")
	}
	if err := ParseEnv(cfg); err != nil {
		return err
	}
	if args == nil {
		args = []string{}
	}
	return fs.Parse(args)
}
