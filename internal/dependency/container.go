// Package dependency wires core busbridge services using go.uber.org/dig.
package dependency

import (
	"fmt"
	"log/slog"

	"go.uber.org/dig"

	"github.com/crystaldolphin/busbridge/internal/bridge"
	"github.com/crystaldolphin/busbridge/internal/config"
	"github.com/crystaldolphin/busbridge/internal/hub"
	"github.com/crystaldolphin/busbridge/internal/loop"
	"github.com/crystaldolphin/busbridge/internal/supervisor"
	"github.com/crystaldolphin/busbridge/internal/wsframe"
)

// Container holds the resolved host-side singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	loop       *loop.Loop
	hub        *hub.Hub
	doc        *wsframe.Document
	bridges    Bridges
	supervisor *supervisor.Service
}

func (c *Container) Loop() *loop.Loop                { return c.loop }
func (c *Container) Hub() *hub.Hub                   { return c.hub }
func (c *Container) Document() *wsframe.Document     { return c.doc }
func (c *Container) Bridges() Bridges                { return c.bridges }
func (c *Container) Supervisor() *supervisor.Service { return c.supervisor }

// Bridges is the set of controllers mounted from the config, in config order.
type Bridges []*bridge.Controller

// New builds the host side from cfg and mounts every configured bridge.
// The loop is not started; frames dial in the background and their load
// events wait for the loop to run.
func New(cfg *config.Config, logger *slog.Logger) (*Container, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() *slog.Logger { return logger }); err != nil {
		return nil, err
	}
	if err := d.Provide(newLoop); err != nil {
		return nil, err
	}
	if err := d.Provide(newHub); err != nil {
		return nil, err
	}
	if err := d.Provide(newDocument); err != nil {
		return nil, err
	}
	if err := d.Provide(newBridges); err != nil {
		return nil, err
	}
	if err := d.Provide(newSupervisor); err != nil {
		return nil, err
	}

	var result *Container
	err := d.Invoke(func(
		l *loop.Loop,
		h *hub.Hub,
		doc *wsframe.Document,
		bridges Bridges,
		sup *supervisor.Service,
	) {
		result = &Container{
			loop:       l,
			hub:        h,
			doc:        doc,
			bridges:    bridges,
			supervisor: sup,
		}
	})
	return result, err
}

// FrameContainer holds the frame-side singletons.
type FrameContainer struct {
	loop   *loop.Loop
	server *wsframe.Server
}

func (c *FrameContainer) Loop() *loop.Loop        { return c.loop }
func (c *FrameContainer) Server() *wsframe.Server { return c.server }

// NewFrame builds a frame server that calls handler for every host.
func NewFrame(cfg *config.Config, logger *slog.Logger, handler wsframe.SessionHandler) (*FrameContainer, error) {
	d := dig.New()

	if err := d.Provide(func() *config.Config { return cfg }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() *slog.Logger { return logger }); err != nil {
		return nil, err
	}
	if err := d.Provide(func() wsframe.SessionHandler { return handler }); err != nil {
		return nil, err
	}
	if err := d.Provide(newLoop); err != nil {
		return nil, err
	}
	if err := d.Provide(newFrameServer); err != nil {
		return nil, err
	}

	var result *FrameContainer
	err := d.Invoke(func(l *loop.Loop, srv *wsframe.Server) {
		result = &FrameContainer{loop: l, server: srv}
	})
	return result, err
}

func newLoop(logger *slog.Logger) *loop.Loop {
	return loop.New(logger)
}

func newHub(logger *slog.Logger) *hub.Hub {
	return hub.New(logger)
}

func newDocument(cfg *config.Config, l *loop.Loop, logger *slog.Logger) *wsframe.Document {
	return wsframe.NewDocument(cfg.Location, l, wsframe.WithDocumentLogger(logger))
}

func newBridges(cfg *config.Config, h *hub.Hub, doc *wsframe.Document, l *loop.Loop, logger *slog.Logger) (Bridges, error) {
	bridges := make(Bridges, 0, len(cfg.Bridges))
	for _, bc := range cfg.Bridges {
		c, err := bridge.Mount(h, doc, l, bc.Bridge(), bridge.WithLogger(logger))
		if err != nil {
			for _, mounted := range bridges {
				mounted.Destroy()
			}
			return nil, fmt.Errorf("mount bridge %q: %w", bc.Name, err)
		}
		bridges = append(bridges, c)
	}
	return bridges, nil
}

func newSupervisor(cfg *config.Config, bridges Bridges, l *loop.Loop, logger *slog.Logger) *supervisor.Service {
	s := supervisor.NewService(cfg.Supervisor.Schedule, l, logger)
	for _, b := range bridges {
		s.Register(b)
	}
	return s
}

func newFrameServer(cfg *config.Config, l *loop.Loop, handler wsframe.SessionHandler, logger *slog.Logger) *wsframe.Server {
	return wsframe.NewServer(l, handler,
		wsframe.WithHostOrigins(cfg.Frame.HostOrigins...),
		wsframe.WithServerLogger(logger),
	)
}
