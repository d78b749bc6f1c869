// Package config defines the configuration schema for busbridge.
//
// YAML keys use camelCase to match the names the bridge options carry.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/crystaldolphin/busbridge/internal/bridge"
)

// Config is the root configuration object.
type Config struct {
	// Location is the host document URL relative bridge sources resolve
	// against.
	Location   string           `yaml:"location"`
	Log        LogConfig        `yaml:"log"`
	Bridges    []BridgeConfig   `yaml:"bridges"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Frame      FrameConfig      `yaml:"frame"`
}

// LogConfig controls the CLI's slog handler.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn or error
}

// SlogLevel parses Level; unknown values mean info.
func (l LogConfig) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(l.Level))); err != nil {
		return slog.LevelInfo
	}
	return level
}

// BridgeConfig describes one bridge mounted by "busbridge serve".
type BridgeConfig struct {
	Name         string `yaml:"name"`
	Src          string `yaml:"src"`
	TargetOrigin string `yaml:"targetOrigin,omitempty"`
	Title        string `yaml:"title,omitempty"`
	// AllowedOrigins restricts which origins may send "init". Empty
	// accepts any origin.
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
}

// Bridge converts b to the controller's mount configuration.
func (b BridgeConfig) Bridge() bridge.Config {
	return bridge.Config{
		Name:           b.Name,
		Src:            b.Src,
		TargetOrigin:   b.TargetOrigin,
		Title:          b.Title,
		AllowedOrigins: b.AllowedOrigins,
	}
}

// SupervisorConfig controls the reconnect check.
type SupervisorConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Schedule string `yaml:"schedule"`
}

// FrameConfig configures the demo frame server run by "busbridge frame".
type FrameConfig struct {
	Listen string `yaml:"listen"`
	Path   string `yaml:"path"`
	// HostOrigins limits which host origins may connect. Empty accepts all.
	HostOrigins []string `yaml:"hostOrigins,omitempty"`
}

// DefaultConfig returns a Config with all default values populated.
func DefaultConfig() Config {
	return Config{
		Location: "http://localhost/",
		Log:      LogConfig{Level: "info"},
		Bridges: []BridgeConfig{
			{Name: "demo", Src: "ws://localhost:9000/frame", Title: bridge.DefaultTitle},
		},
		Supervisor: SupervisorConfig{Enabled: true, Schedule: "@every 30s"},
		Frame:      FrameConfig{Listen: ":9000", Path: "/frame"},
	}
}

// Bridge returns the bridge named name.
func (c *Config) Bridge(name string) (BridgeConfig, bool) {
	for _, b := range c.Bridges {
		if b.Name == name {
			return b, true
		}
	}
	return BridgeConfig{}, false
}

// Validate reports every bridge without a name or src and every duplicate
// name.
func (c *Config) Validate() error {
	var errs []error
	seen := make(map[string]bool)
	for i, b := range c.Bridges {
		if b.Name == "" {
			errs = append(errs, fmt.Errorf("bridges[%d]: name is required", i))
		} else if seen[b.Name] {
			errs = append(errs, fmt.Errorf("bridges[%d]: duplicate name %q", i, b.Name))
		}
		seen[b.Name] = true
		if b.Src == "" {
			errs = append(errs, fmt.Errorf("bridges[%d]: src is required", i))
		}
	}
	return errors.Join(errs...)
}
