// Package peer is the frame-side half of the bridge protocol. A frame
// attaches a Peer to its parent window; the Peer announces readiness,
// accepts the host's port and wires it into a frame-local hub.
package peer

import (
	"log/slog"

	"github.com/crystaldolphin/busbridge/internal/hub"
	"github.com/crystaldolphin/busbridge/internal/transport"
	"github.com/crystaldolphin/busbridge/internal/window"
)

// Peer owns the frame's end of the dedicated channel.
// Like the host controller, it must only be used from its loop.
type Peer struct {
	parent       window.Window
	self         window.Target
	hub          *hub.Hub
	logger       *slog.Logger
	parentOrigin string
	allowed      []string

	port window.MessagePort
	stop func()
}

// Option configures a Peer.
type Option func(*Peer)

// WithParentOrigin scopes the "init" announcement to origin.
func WithParentOrigin(origin string) Option {
	return func(p *Peer) { p.parentOrigin = origin }
}

// WithAllowedOrigins only accepts ports handed over by these origins.
func WithAllowedOrigins(origins ...string) Option {
	return func(p *Peer) { p.allowed = append(p.allowed, origins...) }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Peer) { p.logger = l }
}

// Attach starts listening on self for the host's handshake and announces
// the frame to parent.
func Attach(parent window.Window, self window.Target, h *hub.Hub, opts ...Option) *Peer {
	p := &Peer{
		parent:       parent,
		self:         self,
		hub:          h,
		logger:       slog.Default(),
		parentOrigin: window.AnyOrigin,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.stop = self.AddMessageListener(p.handleWindowMessage)
	if err := p.Announce(); err != nil {
		p.logger.Warn("peer: announce failed", "err", err)
	}
	return p
}

// Announce posts the "init" signal to the parent window.
func (p *Peer) Announce() error {
	return p.parent.PostMessage(transport.InitSignal, p.parentOrigin)
}

// Connected reports whether the host has handed over a port.
func (p *Peer) Connected() bool { return p.port != nil }

// Close stops listening and releases the port.
func (p *Peer) Close() {
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
	if p.port == nil {
		return
	}
	p.releasePort()
	p.hub.Emit(hub.TopicClose, nil)
}

func (p *Peer) handleWindowMessage(ev window.MessageEvent) {
	if !transport.IsConnect(ev.Data) {
		return
	}
	if len(ev.Ports) == 0 {
		p.logger.Warn("peer: handshake without a port", "origin", ev.Origin)
		return
	}
	if !p.originAllowed(ev.Origin) {
		p.logger.Warn("peer: handshake from origin not on allow-list", "origin", ev.Origin)
		return
	}
	if p.port != nil {
		p.releasePort()
	}

	port := ev.Ports[0]
	p.port = port
	port.SetOnMessage(p.hub.Deliver)
	if n, ok := port.(closeNotifier); ok {
		n.SetOnClose(func() { p.handleHostClose(port) })
	}
	p.hub.SetSender(port.PostMessage)
	p.hub.Emit(hub.TopicOpen, hub.OpenEvent{Origin: ev.Origin})
	p.logger.Debug("peer: channel open", "origin", ev.Origin)
}

// handleHostClose runs when the host closes its end of port.
func (p *Peer) handleHostClose(port window.MessagePort) {
	if p.port != port {
		return
	}
	p.releasePort()
	p.hub.Emit(hub.TopicClose, nil)
}

func (p *Peer) releasePort() {
	p.hub.SetSender(nil)
	if err := p.port.Close(); err != nil {
		p.logger.Debug("peer: close port", "err", err)
	}
	p.port = nil
}

func (p *Peer) originAllowed(origin string) bool {
	if len(p.allowed) == 0 {
		return true
	}
	for _, o := range p.allowed {
		if o == origin || o == window.AnyOrigin {
			return true
		}
	}
	return false
}

type closeNotifier interface {
	SetOnClose(fn func())
}
