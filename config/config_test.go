package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddress == "" || cfg.RewardToken == "" {
		t.Fatalf("default config incomplete: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default file not written: %v", err)
	}

	// A second load reads the persisted file back.
	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.RewardToken != cfg.RewardToken {
		t.Fatalf("reload mismatch: %q vs %q", reloaded.RewardToken, cfg.RewardToken)
	}
}

func TestLoadRejectsIncompleteFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	raw := "ListenAddress = \":8645\"\nAuthorityAddress = \"0xadad\"\n"
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation failure for missing reward token")
	}
}

func TestValidateRequiresRewardTokenEntry(t *testing.T) {
	cfg := &Config{
		ListenAddress:    ":8645",
		AuthorityAddress: "0xad",
		RewardToken:      "HARVEST",
		Tokens:           []TokenConfig{{Symbol: "FARM"}},
	}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected error when reward token missing from Tokens")
	}
	cfg.Tokens = append(cfg.Tokens, TokenConfig{Symbol: "harvest"})
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
