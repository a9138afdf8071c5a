// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/moov-io/accounts/pkg/password"
	"github.com/moov-io/accounts/pkg/token"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config holds everything the server reads at startup. Values come from
// defaults, then an optional TOML file, then environment variables.
type Config struct {
	HTTPAddr  string `toml:"http_addr" env:"HTTP_ADDR"`
	AdminAddr string `toml:"admin_addr" env:"ADMIN_ADDR"`

	Storage StorageConfig `toml:"storage"`
	Token   TokenConfig   `toml:"token"`
}

type StorageConfig struct {
	// Driver is either "sqlite" or "buntdb".
	Driver     string `toml:"driver" env:"STORAGE_DRIVER"`
	SqlitePath string `toml:"sqlite_path" env:"SQLITE_DB_PATH"`
	BuntDBPath string `toml:"buntdb_path" env:"BUNTDB_PATH"`
}

type TokenConfig struct {
	// Secret signs and verifies bearer tokens. It has no default, the
	// server refuses to start without one.
	Secret     string        `toml:"secret" env:"TOKEN_SECRET"`
	TTL        time.Duration `toml:"ttl" env:"TOKEN_TTL"`
	BcryptCost int           `toml:"bcrypt_cost" env:"BCRYPT_COST"`
}

func defaultConfig() Config {
	return Config{
		HTTPAddr:  ":8080",
		AdminAddr: ":9090",
		Storage: StorageConfig{
			Driver:     "sqlite",
			SqlitePath: "accounts.db",
		},
		Token: TokenConfig{
			TTL:        token.DefaultTTL,
			BcryptCost: password.DefaultCost,
		},
	}
}

// loadConfig reads path (if non-empty) and then applies environment
// overrides. A missing file is an error when path was given explicitly.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	c.Token.Secret = strings.TrimSpace(c.Token.Secret)
	if c.Token.Secret == "" {
		return errors.New("TOKEN_SECRET is required")
	}
	if c.Token.TTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %v", c.Token.TTL)
	}
	switch c.Storage.Driver {
	case "sqlite", "buntdb":
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	return nil
}
