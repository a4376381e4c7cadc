// Package config loads the daemon configuration from a TOML file, writing a
// commented default file on first run.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// TokenConfig declares a fungible token ledger managed by the daemon.
type TokenConfig struct {
	Symbol string `toml:"Symbol"`
	// Supply is an optional base-10 amount minted to the vault at startup.
	// The reward token typically carries the emission budget here.
	Supply string `toml:"Supply,omitempty"`
}

// TelemetryConfig controls the optional OTLP exporters.
type TelemetryConfig struct {
	Enabled     bool   `toml:"Enabled"`
	Endpoint    string `toml:"Endpoint,omitempty"`
	Insecure    bool   `toml:"Insecure,omitempty"`
	Headers     string `toml:"Headers,omitempty"`
	Environment string `toml:"Environment,omitempty"`
}

type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	DataDir       string `toml:"DataDir"`
	// AuthorityAddress is the hex address of the administrative principal.
	AuthorityAddress string `toml:"AuthorityAddress"`
	// VaultAddress is the engine's holding address on every token ledger.
	VaultAddress string `toml:"VaultAddress"`
	// AdminToken protects the HTTP admin surface. Empty disables it.
	AdminToken string `toml:"AdminToken,omitempty"`
	// RewardToken names the shared reward asset paid across all pools.
	RewardToken string `toml:"RewardToken"`

	RateLimitPerSecond float64 `toml:"RateLimitPerSecond,omitempty"`
	RateLimitBurst     int     `toml:"RateLimitBurst,omitempty"`

	Tokens    []TokenConfig   `toml:"Tokens"`
	Telemetry TelemetryConfig `toml:"Telemetry"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields the daemon cannot default sensibly.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress must be set")
	}
	if strings.TrimSpace(c.AuthorityAddress) == "" {
		return fmt.Errorf("AuthorityAddress must be set")
	}
	if strings.TrimSpace(c.RewardToken) == "" {
		return fmt.Errorf("RewardToken must be set")
	}
	reward := strings.ToUpper(strings.TrimSpace(c.RewardToken))
	for _, token := range c.Tokens {
		if strings.ToUpper(strings.TrimSpace(token.Symbol)) == reward {
			return nil
		}
	}
	return fmt.Errorf("RewardToken %q has no matching entry under Tokens", c.RewardToken)
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		ListenAddress:    ":8645",
		DataDir:          "./farm-data",
		AuthorityAddress: "0x" + strings.Repeat("ad", 20),
		VaultAddress:     "0x" + strings.Repeat("ee", 20),
		RewardToken:      "HARVEST",
		Tokens: []TokenConfig{
			{Symbol: "FARM"},
			{Symbol: "HARVEST", Supply: "1000000000000000000000000"},
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
