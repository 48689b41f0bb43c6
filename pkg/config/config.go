// Package config loads the optional TOML defaults file for the embedvm
// CLI. CLI flags always override a loaded config; the file itself is
// entirely optional, matching spec §6's "no environment variables,
// none required" posture -- this just gives operators a place to pin
// defaults instead of retyping flags.
package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds embedvm defaults. Trace and BlockPath mirror the --trace
// and --block flags; SP0, RP0 and CellZeroPage have no flag equivalent.
type Config struct {
	Trace     bool   `toml:"trace"`
	BlockPath string `toml:"block_path"`
	SP0       uint16 `toml:"sp0"`
	RP0       uint16 `toml:"rp0"`

	// CellZeroPage is reserved for a future zero-page memory-protection
	// mode; embedvm parses and carries it but does not yet act on it.
	CellZeroPage bool `toml:"cell_zero_page"`
}

// DefaultPath returns $XDG_CONFIG_HOME/embed16/config.toml, falling back
// to $HOME/.config/embed16/config.toml when XDG_CONFIG_HOME is unset.
func DefaultPath() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "embed16", "config.toml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "embed16", "config.toml")
}

// Load reads path and decodes it as TOML. A missing file is not an
// error: it returns the zero Config, since every field has a sensible
// off/absent default. Any other read or parse error is returned as-is.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	_, err := toml.DecodeFile(path, &cfg)
	return cfg, err
}
