// Package bridge mounts an embedded frame and relays messages between its
// dedicated port and the host's event hub.
package bridge

import (
	"errors"
	"log/slog"
	"time"

	"github.com/crystaldolphin/busbridge/internal/frame"
	"github.com/crystaldolphin/busbridge/internal/hub"
	"github.com/crystaldolphin/busbridge/internal/loop"
	"github.com/crystaldolphin/busbridge/internal/transport"
	"github.com/crystaldolphin/busbridge/internal/window"
)

// DefaultTitle is the frame title used when Config.Title is empty.
const DefaultTitle = "bus-bridge"

// ErrMissingSrc is returned by Mount when Config.Src is empty.
var ErrMissingSrc = errors.New("bridge: src is required")

// Config describes one bridge.
type Config struct {
	Name         string
	Src          string
	TargetOrigin string          // empty = origin of Src
	Parent       frame.Container // nil = document body
	Title        string
	// AllowedOrigins restricts which origins may start a handshake with
	// the "init" signal. Empty accepts any origin.
	AllowedOrigins []string
}

// UpdateOptions changes a mounted bridge. Nil fields are left as they are.
type UpdateOptions struct {
	Src          *string
	TargetOrigin *string
}

// Controller owns one frame element and the transport to it.
//
// All methods, like the callbacks they install, must run on the loop the
// controller was mounted with.
type Controller struct {
	hub    *hub.Hub
	doc    frame.Document
	d      loop.Dispatcher
	logger *slog.Logger
	now    func() time.Time

	cfg        Config
	parent     frame.Container
	el         frame.Frame
	transport  *transport.Transport
	loaded     bool
	wanted     bool // a channel should be up; cleared by Disconnect
	removeLoad func()
	stopListen func()
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// Mount creates a hidden frame for cfg.Src, appends it to cfg.Parent and
// starts listening for its load event and handshake signal.
func Mount(h *hub.Hub, doc frame.Document, d loop.Dispatcher, cfg Config, opts ...Option) (*Controller, error) {
	if cfg.Src == "" {
		return nil, ErrMissingSrc
	}
	if cfg.Title == "" {
		cfg.Title = DefaultTitle
	}
	c := &Controller{
		hub:    h,
		doc:    doc,
		d:      d,
		logger: slog.Default(),
		now:    time.Now,
		cfg:    cfg,
		parent: cfg.Parent,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.parent == nil {
		c.parent = doc.Body()
	}
	c.logger = c.logger.With("bridge", cfg.Name)

	c.transport = transport.New(doc.Window(), c.contentWindow, d,
		transport.WithAllowedOrigins(cfg.AllowedOrigins...),
		transport.WithLogger(c.logger),
	)
	c.transport.OnMessage(h.Deliver)
	c.transport.OnOpen(c.handleOpen)
	c.transport.OnClose(c.handleRemoteClose)
	c.syncTargetOrigin()

	el := doc.CreateFrame()
	el.SetHidden(true)
	el.SetTitle(cfg.Title)
	c.el = el
	c.removeLoad = el.OnLoad(c.handleLoad)
	c.stopListen = c.transport.Listen()
	el.SetSrc(cfg.Src)
	c.parent.AppendChild(el)

	c.logger.Info("bridge: mounted", "src", cfg.Src)
	return c, nil
}

// Name returns the configured bridge name.
func (c *Controller) Name() string { return c.cfg.Name }

// Config returns the bridge's current configuration.
func (c *Controller) Config() Config { return c.cfg }

// Element returns the frame element, or nil after Destroy.
func (c *Controller) Element() frame.Frame { return c.el }

// State reports where the controller is in its lifecycle.
func (c *Controller) State() State {
	switch {
	case c.el == nil:
		return StateUnmounted
	case c.transport.Connected():
		return StateConnected
	case c.loaded:
		return StateLoaded
	default:
		return StateMounted
	}
}

// WantsConnection reports whether the bridge is meant to be connected:
// set by a load, Connect or Update and cleared by Disconnect. A bridge
// that wants a connection but is only loaded lost it to a handshake fault
// or to the frame closing the channel.
func (c *Controller) WantsConnection() bool { return c.wanted }

// Connect hands a fresh dedicated port to the frame and installs the hub
// sender. Failures are logged; the controller then stays disconnected.
func (c *Controller) Connect() {
	if c.el == nil {
		return
	}
	c.wanted = true
	origin, err := ResolveTargetOrigin(c.cfg, c.doc.Location())
	if err != nil {
		c.logger.Error("bridge: resolve target origin", "err", err)
		return
	}
	c.transport.SetTargetOrigin(origin)

	wasConnected := c.transport.Connected()
	err = c.transport.Connect(origin)
	switch {
	case err == nil:
	case errors.Is(err, transport.ErrFrameUnavailable):
		c.logger.Debug("bridge: frame not ready, handshake deferred to load")
	default:
		c.logger.Error("bridge: handshake failed", "origin", origin, "err", err)
	}
	if err != nil && wasConnected && !c.transport.Connected() {
		// The old port was torn down before the new handshake failed.
		c.hub.SetSender(nil)
		c.hub.Emit(hub.TopicClose, nil)
	}
}

// Disconnect clears the hub sender, closes the port and emits TopicClose.
// The bridge stays disconnected until it is explicitly reconnected.
func (c *Controller) Disconnect() {
	c.wanted = false
	c.hub.SetSender(nil)
	c.transport.Disconnect()
	c.hub.Emit(hub.TopicClose, nil)
}

// Destroy disconnects and removes the frame from the document. Calling it
// again does nothing.
func (c *Controller) Destroy() {
	if c.el == nil {
		return
	}
	c.Disconnect()
	c.removeLoad()
	c.stopListen()
	c.parent.RemoveChild(c.el)
	c.el = nil
	c.loaded = false
	c.logger.Info("bridge: destroyed")
}

// Update reconfigures the bridge. It always disconnects first. A new Src
// reloads the frame and the bridge reconnects on the next load; otherwise
// the reconnect is deferred to the loop.
func (c *Controller) Update(opts UpdateOptions) {
	if c.el == nil {
		return
	}
	c.Disconnect()
	c.wanted = true

	if opts.TargetOrigin != nil {
		c.cfg.TargetOrigin = *opts.TargetOrigin
	}
	if opts.Src != nil {
		src := *opts.Src
		next := src
		if src == c.cfg.Src {
			next = cacheBust(src, c.now())
		}
		c.cfg.Src = src
		c.loaded = false
		c.syncTargetOrigin()
		c.el.SetSrc(next)
		c.logger.Info("bridge: reloading frame", "src", next)
		return
	}

	c.syncTargetOrigin()
	c.d.Post(func() {
		if c.el != nil {
			c.Connect()
		}
	})
}

func (c *Controller) handleLoad() {
	if c.el == nil {
		return
	}
	c.loaded = true
	c.wanted = true
	c.logger.Debug("bridge: frame loaded", "src", c.el.Src())
	c.Connect()
}

func (c *Controller) handleOpen(origin string) {
	c.wanted = true
	c.hub.SetSender(c.transport.Post)
	c.hub.Emit(hub.TopicOpen, hub.OpenEvent{Origin: origin})
	c.logger.Info("bridge: open", "origin", origin)
}

// handleRemoteClose runs when the frame side drops the channel. The bridge
// stays loaded and can be reconnected.
func (c *Controller) handleRemoteClose() {
	c.hub.SetSender(nil)
	c.hub.Emit(hub.TopicClose, nil)
	c.logger.Warn("bridge: frame closed the channel")
}

func (c *Controller) contentWindow() window.Window {
	if c.el == nil {
		return nil
	}
	return c.el.ContentWindow()
}

// syncTargetOrigin keeps "init"-triggered handshakes scoped like Connect.
func (c *Controller) syncTargetOrigin() {
	origin, err := ResolveTargetOrigin(c.cfg, c.doc.Location())
	if err != nil {
		c.logger.Warn("bridge: resolve target origin", "err", err)
		return
	}
	c.transport.SetTargetOrigin(origin)
}
