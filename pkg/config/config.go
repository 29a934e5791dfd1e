// Package config resolves the daemon's settings from, in increasing
// priority order: built-in defaults, an optional vault-local TOML file,
// environment variables, and command-line flags.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the optional vault-local configuration file this package
// looks for at the vault root.
const FileName = ".spacenotes.toml"

// Config holds every setting the daemon needs to run.
type Config struct {
	VaultPath      string        `toml:"vault_path"`
	NodeID         string        `toml:"node_id"`
	DataDir        string        `toml:"data_dir"`
	DebounceWindow time.Duration `toml:"-"`
	MetricsAddr    string        `toml:"metrics_addr"`
	MCPAddr        string        `toml:"mcp_addr"`
	LogLevel       string        `toml:"log_level"`
}

type fileConfig struct {
	VaultPath         string `toml:"vault_path"`
	NodeID            string `toml:"node_id"`
	DataDir           string `toml:"data_dir"`
	DebounceWindowMS  int64  `toml:"debounce_window_ms"`
	MetricsAddr       string `toml:"metrics_addr"`
	MCPAddr           string `toml:"mcp_addr"`
	LogLevel          string `toml:"log_level"`
}

// Defaults returns the built-in defaults, before any file, env, or flag
// overrides are applied.
func Defaults() Config {
	return Config{
		NodeID:         "node1",
		DataDir:        ".spacenotes",
		DebounceWindow: 2 * time.Second,
		MetricsAddr:    "",
		MCPAddr:        "127.0.0.1:8181",
		LogLevel:       "info",
	}
}

// Load resolves configuration for vaultPath: it starts from Defaults,
// layers in <vaultPath>/.spacenotes.toml if present, then environment
// variables — both VAULT_PATH/SPACETIME_HOST/SPACETIME_DB (the names the
// deployment spec documents) and the more specific SPACENOTES_* overrides —
// leaving command-line flags to the caller to apply last by assigning the
// returned Config's fields. MCPAddr defaults to the façade's local listener, standing
// in for SPACETIME_HOST since this daemon embeds its own replicated store
// rather than dialing out to one; NodeID stands in for SPACETIME_DB as the
// identifier naming this replica's data.
func Load(vaultPath string) (Config, error) {
	cfg := Defaults()
	cfg.VaultPath = vaultPath

	tomlPath := filepath.Join(vaultPath, FileName)
	if _, err := os.Stat(tomlPath); err == nil {
		var fc fileConfig
		if _, err := toml.DecodeFile(tomlPath, &fc); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", tomlPath, err)
		}
		applyFileConfig(&cfg, fc)
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: stat %s: %w", tomlPath, err)
	}

	applyEnv(&cfg)

	if cfg.DataDir != "" && !filepath.IsAbs(cfg.DataDir) {
		cfg.DataDir = filepath.Join(vaultPath, cfg.DataDir)
	}

	if cfg.VaultPath == "" {
		return Config{}, fmt.Errorf("config: vault path is required")
	}
	return cfg, nil
}

func applyFileConfig(cfg *Config, fc fileConfig) {
	if fc.VaultPath != "" {
		cfg.VaultPath = fc.VaultPath
	}
	if fc.NodeID != "" {
		cfg.NodeID = fc.NodeID
	}
	if fc.DataDir != "" {
		cfg.DataDir = fc.DataDir
	}
	if fc.DebounceWindowMS > 0 {
		cfg.DebounceWindow = time.Duration(fc.DebounceWindowMS) * time.Millisecond
	}
	if fc.MetricsAddr != "" {
		cfg.MetricsAddr = fc.MetricsAddr
	}
	if fc.MCPAddr != "" {
		cfg.MCPAddr = fc.MCPAddr
	}
	if fc.LogLevel != "" {
		cfg.LogLevel = fc.LogLevel
	}
}

// applyEnv layers environment overrides on top of cfg. It checks the
// spec's own documented variable names first (VAULT_PATH, SPACETIME_HOST,
// SPACETIME_DB), then the SPACENOTES_-prefixed names as more specific
// overrides, so either deployment convention works and the prefixed form
// always wins when both are set.
func applyEnv(cfg *Config) {
	if v := os.Getenv("VAULT_PATH"); v != "" {
		cfg.VaultPath = v
	}
	if v := os.Getenv("SPACETIME_HOST"); v != "" {
		cfg.MCPAddr = v
	}
	if v := os.Getenv("SPACETIME_DB"); v != "" {
		cfg.NodeID = v
	}

	if v := os.Getenv("SPACENOTES_VAULT_PATH"); v != "" {
		cfg.VaultPath = v
	}
	if v := os.Getenv("SPACENOTES_NODE_ID"); v != "" {
		cfg.NodeID = v
	}
	if v := os.Getenv("SPACENOTES_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("SPACENOTES_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("SPACENOTES_MCP_ADDR"); v != "" {
		cfg.MCPAddr = v
	}
	if v := os.Getenv("SPACENOTES_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
