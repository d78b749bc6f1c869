package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps the problems Validate finds in a loaded or saved config.
var ErrInvalid = errors.New("config: invalid")

// ConfigPath returns the default configuration file path: ~/.busbridge/config.yaml.
func ConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// DataDir returns the busbridge data directory: ~/.busbridge.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".busbridge"
	}
	return filepath.Join(home, ".busbridge")
}

// Load layers the YAML file at path (ConfigPath() when empty) over
// DefaultConfig, tidies the bridge list and validates it.
//
// A missing or empty file yields the defaults. A file that does not parse
// is logged and ignored. When validation fails the decoded config is
// still returned, together with an error wrapping ErrInvalid, so callers
// can report the problems.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ConfigPath()
	}

	cfg := DefaultConfig()
	if err := decodeFile(path, &cfg); err != nil {
		var syntax *parseError
		if !errors.As(err, &syntax) {
			return nil, err
		}
		slog.Warn("config: failed to parse, using defaults", "path", path, "err", syntax.err)
		cfg = DefaultConfig()
	}
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return &cfg, fmt.Errorf("%w: %s: %w", ErrInvalid, path, err)
	}
	return &cfg, nil
}

// LoadBridge loads the config at path and returns the bridge named name.
func LoadBridge(path, name string) (BridgeConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return BridgeConfig{}, err
	}
	b, ok := cfg.Bridge(name)
	if !ok {
		return BridgeConfig{}, fmt.Errorf("config: no bridge named %q", name)
	}
	return b, nil
}

// Save validates cfg and writes it to path (ConfigPath() when empty) with
// owner-only permissions.
func Save(cfg *Config, path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config %s: %w", path, err)
	}
	return nil
}

type parseError struct{ err error }

func (e *parseError) Error() string { return e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

// decodeFile decodes path into cfg. Keys absent from the file keep the
// values already in cfg; a bridges list in the file replaces the default
// one.
func decodeFile(path string, cfg *Config) error {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &parseError{err: err}
	}
	return nil
}

// normalize trims stray whitespace from bridge fields and fills in
// defaults that the file can blank out.
func (c *Config) normalize() {
	for i := range c.Bridges {
		b := &c.Bridges[i]
		b.Name = strings.TrimSpace(b.Name)
		b.Src = strings.TrimSpace(b.Src)
		b.TargetOrigin = strings.TrimSpace(b.TargetOrigin)
	}
	def := DefaultConfig()
	if c.Frame.Path == "" {
		c.Frame.Path = def.Frame.Path
	}
	if c.Supervisor.Schedule == "" {
		c.Supervisor.Schedule = def.Supervisor.Schedule
	}
}
