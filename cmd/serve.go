package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/busbridge/internal/dependency"
	"github.com/crystaldolphin/busbridge/internal/hub"
	"github.com/crystaldolphin/busbridge/internal/loop"
)

var serveStdin bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Mount the configured bridges and relay their events",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveStdin, "stdin", false, `Publish lines read from stdin ("<topic> <json payload>")`)
}

func runServe(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := dependency.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}
	logNotifications(c.Hub(), logger)

	// Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Loop().Run(gctx) })
	if cfg.Supervisor.Enabled {
		g.Go(func() error { return c.Supervisor().Start(gctx) })
	}
	if serveStdin {
		go publishStdin(c.Loop(), c.Hub(), logger)
	}

	fmt.Printf("%s Serving %d bridge(s). Press Ctrl+C to stop.\n", logo, len(c.Bridges()))

	err = g.Wait()
	for _, b := range c.Bridges() {
		b.Destroy()
	}
	c.Loop().Drain()
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "serve error: %v\n", err)
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

func logNotifications(h *hub.Hub, logger *slog.Logger) {
	for _, topic := range []string{hub.TopicOpen, hub.TopicClose, hub.TopicSender} {
		h.Subscribe(topic, func(payload any) {
			logger.Info("serve: notification", "topic", topic, "payload", payload)
		})
	}
	h.Subscribe(hub.TopicMessage, func(payload any) {
		logger.Info("serve: message", "data", payload)
	})
}

// publishStdin publishes every "<topic> <json>" line on the loop until
// stdin closes. A payload that is not JSON is sent as a string.
func publishStdin(l *loop.Loop, h *hub.Hub, logger *slog.Logger) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		topic, raw, _ := strings.Cut(line, " ")
		var payload any = raw
		if raw != "" {
			var v any
			if err := json.Unmarshal([]byte(raw), &v); err == nil {
				payload = v
			}
		}
		l.Post(func() {
			if !h.Publish(topic, payload) {
				logger.Warn("serve: no bridge connected, dropped", "topic", topic)
			}
		})
	}
}
