package cli

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/roach88/vdb/internal/engine"
)

// Config holds settings shared by all commands. Flags override it.
type Config struct {
	LogLevel  string
	Format    string
	DB        string
	Prefix    string
	GoldenDir string
}

type fileConfig struct {
	LogLevel  string `toml:"log_level"`
	Format    string `toml:"format"`
	DB        string `toml:"db"`
	Prefix    string `toml:"prefix"`
	GoldenDir string `toml:"golden_dir"`
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Format:   "text",
		Prefix:   engine.DefaultPrefix,
	}
}

// LoadConfig reads a TOML config file and overlays the keys it defines on
// DefaultConfig. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("load config: unknown keys %s", strings.Join(keys, ", "))
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
		if _, err := parseLogLevel(cfg.LogLevel); err != nil {
			return Config{}, fmt.Errorf("load config: %w", err)
		}
	}
	if meta.IsDefined("format") {
		cfg.Format = strings.TrimSpace(raw.Format)
	}
	if meta.IsDefined("db") {
		cfg.DB = strings.TrimSpace(raw.DB)
	}
	if meta.IsDefined("prefix") {
		prefix := strings.TrimSpace(raw.Prefix)
		if prefix == "" {
			return Config{}, fmt.Errorf("load config: prefix must not be empty")
		}
		cfg.Prefix = prefix
	}
	if meta.IsDefined("golden_dir") {
		cfg.GoldenDir = strings.TrimSpace(raw.GoldenDir)
	}
	return cfg, nil
}

// parseLogLevel accepts the slog level names (debug, info, warn, error).
func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}
