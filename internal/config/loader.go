package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix prefixes every environment override, e.g. LANES_ADDR.
	EnvPrefix = "LANES_"
	// EnvConfigFile names an optional YAML file layered under the environment.
	EnvConfigFile = "LANES_CONFIG"
)

// Load builds a validated Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if LANES_CONFIG is set
//  3. env (prefix LANES_)
func Load(ctx context.Context) (*Config, error) {
	cfg, err := load(ctx, os.Getenv(EnvConfigFile))
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(_ context.Context, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: file %s: %w", ErrLoadConfig, path, err)
		}
	}

	// LANES_PROMOTE_TO_TRENDING -> promote_to_trending (flat keys).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *New()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %w", ErrLoadConfig, err)
	}
	return &cfg, nil
}

// Watch reloads the LANES_CONFIG file whenever it changes and passes every
// valid result to fn. Invalid reloads are reported through onErr and skipped.
// Watching stops when ctx is done. Without a config file Watch is a no-op.
func Watch(ctx context.Context, fn func(*Config), onErr func(error)) error {
	path := os.Getenv(EnvConfigFile)
	if path == "" {
		return nil
	}
	return watchFile(ctx, path, fn, onErr)
}

func watchFile(ctx context.Context, path string, fn func(*Config), onErr func(error)) error {
	provider := file.Provider(path)
	err := provider.Watch(func(_ any, werr error) {
		if werr != nil {
			onErr(fmt.Errorf("%w: watch %s: %w", ErrLoadConfig, path, werr))
			return
		}
		cfg, lerr := load(ctx, path)
		if lerr == nil {
			lerr = cfg.Validate()
		}
		if lerr != nil {
			onErr(lerr)
			return
		}
		fn(cfg)
	})
	if err != nil {
		return fmt.Errorf("%w: watch %s: %w", ErrLoadConfig, path, err)
	}
	go func() {
		<-ctx.Done()
		_ = provider.Unwatch()
	}()
	return nil
}
