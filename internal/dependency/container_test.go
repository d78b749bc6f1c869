package dependency

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"go.uber.org/dig"

	"github.com/crystaldolphin/busbridge/internal/bridge"
	"github.com/crystaldolphin/busbridge/internal/config"
	"github.com/crystaldolphin/busbridge/internal/wsframe"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestNew_MountsConfiguredBridges(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Location = "https://host.test/"
	cfg.Bridges = []config.BridgeConfig{
		{Name: "a", Src: "ws://127.0.0.1:1/a"},
		{Name: "b", Src: "ws://127.0.0.1:1/b", Title: "second"},
	}

	c, err := New(&cfg, discard)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		for _, b := range c.Bridges() {
			b.Destroy()
		}
	})

	if c.Loop() == nil || c.Hub() == nil || c.Supervisor() == nil {
		t.Fatal("container is missing services")
	}
	if c.Document().Location() != "https://host.test/" {
		t.Errorf("location = %q", c.Document().Location())
	}
	if len(c.Bridges()) != 2 {
		t.Fatalf("expected 2 bridges, got %d", len(c.Bridges()))
	}
	if got := c.Bridges()[1].Element().Title(); got != "second" {
		t.Errorf("title = %q", got)
	}
	for _, b := range c.Bridges() {
		if b.State() != bridge.StateMounted {
			t.Errorf("%s: state = %v, want mounted", b.Name(), b.State())
		}
	}
	// Nothing is loaded yet, so the check has nothing to do.
	if n := c.Supervisor().Check(); n != 0 {
		t.Errorf("expected no retries, got %d", n)
	}
}

func TestNew_MountFailure(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Bridges = []config.BridgeConfig{{Name: "empty"}}

	_, err := New(&cfg, discard)
	if err == nil || !errors.Is(dig.RootCause(err), bridge.ErrMissingSrc) {
		t.Fatalf("expected ErrMissingSrc, got %v", err)
	}
}

func TestNewFrame(t *testing.T) {
	cfg := config.DefaultConfig()
	c, err := NewFrame(&cfg, discard, func(*wsframe.Session) {})
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if c.Loop() == nil || c.Server() == nil {
		t.Fatal("frame container is missing services")
	}
}
