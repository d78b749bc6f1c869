package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/crystaldolphin/busbridge/internal/bridge"
	"github.com/crystaldolphin/busbridge/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status [bridge]",
	Short: "Show busbridge configuration status",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runStatus,
}

func runStatus(_ *cobra.Command, args []string) error {
	cfgPath := resolvedConfigPath()
	if len(args) == 1 {
		return showBridge(cfgPath, args[0])
	}

	fmt.Printf("%s busbridge Status\n\n", logo)

	_, statErr := os.Stat(cfgPath)
	cfgMark := "✗"
	if statErr == nil {
		cfgMark = "✓"
	}
	fmt.Printf("Config:     %s %s\n", cfgPath, cfgMark)

	cfg, err := config.Load(cfgPath)
	if err != nil && !errors.Is(err, config.ErrInvalid) {
		fmt.Printf("  (could not load config: %v)\n", err)
		return nil
	}

	fmt.Printf("Location:   %s\n", cfg.Location)
	supervisor := "off"
	if cfg.Supervisor.Enabled {
		supervisor = cfg.Supervisor.Schedule
	}
	fmt.Printf("Supervisor: %s\n", supervisor)
	fmt.Printf("Frame:      %s%s\n\n", cfg.Frame.Listen, cfg.Frame.Path)

	if err != nil {
		fmt.Printf("Config problems:\n  %v\n\n", err)
	}

	fmt.Println("Bridges:")
	if len(cfg.Bridges) == 0 {
		fmt.Println("  (none)")
	}
	for _, b := range cfg.Bridges {
		origin, err := bridge.ResolveTargetOrigin(b.Bridge(), cfg.Location)
		if err != nil {
			origin = "✗ " + err.Error()
		}
		fmt.Printf("  %-16s %s → %s\n", b.Name, b.Src, origin)
	}
	return nil
}

func showBridge(cfgPath, name string) error {
	b, err := config.LoadBridge(cfgPath, name)
	if err != nil {
		return err
	}
	cfg, _ := config.Load(cfgPath)
	origin, err := bridge.ResolveTargetOrigin(b.Bridge(), cfg.Location)
	if err != nil {
		origin = "✗ " + err.Error()
	}
	fmt.Printf("%s %s\n\n", logo, b.Name)
	fmt.Printf("Src:             %s\n", b.Src)
	fmt.Printf("Target origin:   %s\n", origin)
	fmt.Printf("Title:           %s\n", b.Title)
	allowed := "any"
	if len(b.AllowedOrigins) > 0 {
		allowed = strings.Join(b.AllowedOrigins, ", ")
	}
	fmt.Printf("Allowed origins: %s\n", allowed)
	return nil
}
