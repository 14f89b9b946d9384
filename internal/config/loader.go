package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variables read by Load.
const (
	EnvPrefix     = "LIVEDRAFT_"
	EnvConfigFile = "LIVEDRAFT_CONFIG"
	EnvDotenvFile = "LIVEDRAFT_DOTENV"
	defaultDotenv = ".env"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if LIVEDRAFT_CONFIG is set
//  3. env (prefix LIVEDRAFT_), after loading a dotenv file
//
// The dotenv file is LIVEDRAFT_DOTENV, or .env when present. It never
// overrides variables that are already set.
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)

	if err := loadDotenv(); err != nil {
		return nil, err
	}

	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LIVEDRAFT_POLL_INTERVAL_MS -> poll_interval_ms (flat keys).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(s)
		s = strings.TrimPrefix(s, strings.ToLower(EnvPrefix))
		return s
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	cfg.SourceKind = strings.ToLower(strings.TrimSpace(cfg.SourceKind))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadDotenv() error {
	if path := os.Getenv(EnvDotenvFile); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("%w: dotenv %s: %w", ErrLoadConfig, path, err)
		}
		return nil
	}
	if _, err := os.Stat(defaultDotenv); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(defaultDotenv); err != nil {
		return fmt.Errorf("%w: dotenv %s: %w", ErrLoadConfig, defaultDotenv, err)
	}
	return nil
}
