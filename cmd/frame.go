package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/busbridge/internal/dependency"
	"github.com/crystaldolphin/busbridge/internal/hub"
	"github.com/crystaldolphin/busbridge/internal/wsframe"
)

const echoSuffix = ":echo"

var frameListen string

var frameCmd = &cobra.Command{
	Use:   "frame",
	Short: "Run a demo frame that echoes every topic back as <topic>:echo",
	RunE:  runFrame,
}

func init() {
	frameCmd.Flags().StringVarP(&frameListen, "listen", "l", "", "Listen address (default from config)")
}

func runFrame(_ *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	addr := cfg.Frame.Listen
	if frameListen != "" {
		addr = frameListen
	}

	c, err := dependency.NewFrame(cfg, logger, echoSession(logger))
	if err != nil {
		return fmt.Errorf("build frame server: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Frame.Path, c.Server())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.Loop().Run(gctx) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	fmt.Printf("%s Frame listening on %s%s. Press Ctrl+C to stop.\n", logo, addr, cfg.Frame.Path)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("\nShutdown complete.")
	return nil
}

// echoSession answers every addressed message on <topic>:echo.
func echoSession(logger *slog.Logger) wsframe.SessionHandler {
	return func(s *wsframe.Session) {
		logger := logger.With("host", s.HostOrigin)
		s.Hub.Subscribe(hub.TopicOpen, func(any) { logger.Info("frame: channel open") })
		s.Hub.Subscribe(hub.TopicClose, func(any) { logger.Info("frame: channel closed") })
		s.Hub.Subscribe(hub.TopicMessage, func(data any) {
			env, ok := hub.AsEnvelope(data)
			if !ok || strings.HasSuffix(env.Topic, echoSuffix) {
				return
			}
			if !s.Hub.Publish(env.Topic+echoSuffix, env.Payload) {
				logger.Warn("frame: echo dropped", "topic", env.Topic)
			}
		})
	}
}
