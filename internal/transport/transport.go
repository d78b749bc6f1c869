// Package transport establishes a dedicated message channel between the
// host window and one embedded frame window.
//
// The coarse-grained window primitive is only used to bootstrap: the frame
// announces itself with "init", the host answers with {type:"connect"}
// carrying one end of a fresh channel, and from then on both sides talk
// exclusively over their channel ends.
package transport

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/crystaldolphin/busbridge/internal/loop"
	"github.com/crystaldolphin/busbridge/internal/window"
)

var (
	// ErrNotConnected is returned by Post before a handshake has completed.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrFrameUnavailable is returned by Connect when the frame has no
	// window yet.
	ErrFrameUnavailable = errors.New("transport: frame window unavailable")
)

// Transport owns the host side of one frame's dedicated channel.
type Transport struct {
	host        window.Target
	frameWindow func() window.Window
	d           loop.Dispatcher
	logger      *slog.Logger
	allowed     []string // empty = accept "init" from any origin

	targetOrigin string
	onMessage    func(any)
	onOpen       func(origin string)
	onClose      func()

	mu        sync.Mutex
	port      window.MessagePort
	connected bool
}

// Option configures a Transport.
type Option func(*Transport)

// WithAllowedOrigins restricts which origins may trigger a handshake with
// the "init" signal.
func WithAllowedOrigins(origins ...string) Option {
	return func(t *Transport) { t.allowed = append(t.allowed, origins...) }
}

// WithTargetOrigin sets the origin handshakes triggered by "init" are
// scoped to. The default is window.AnyOrigin.
func WithTargetOrigin(origin string) Option {
	return func(t *Transport) { t.targetOrigin = origin }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// New creates a Transport for the frame whose window frameWindow returns.
// frameWindow may return nil while the frame is not loaded.
func New(host window.Target, frameWindow func() window.Window, d loop.Dispatcher, opts ...Option) *Transport {
	t := &Transport{
		host:         host,
		frameWindow:  frameWindow,
		d:            d,
		logger:       slog.Default(),
		targetOrigin: window.AnyOrigin,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnMessage sets the callback for data arriving on the dedicated port.
func (t *Transport) OnMessage(fn func(data any)) { t.onMessage = fn }

// OnOpen sets the callback run after every successful handshake.
func (t *Transport) OnOpen(fn func(origin string)) { t.onOpen = fn }

// OnClose sets the callback run when the frame closes its end of the
// current port. It is not called for Disconnect.
func (t *Transport) OnClose(fn func()) { t.onClose = fn }

// SetTargetOrigin changes the origin used by "init"-triggered handshakes.
func (t *Transport) SetTargetOrigin(origin string) {
	if origin == "" {
		origin = window.AnyOrigin
	}
	t.targetOrigin = origin
}

// Connected reports whether a dedicated port is open.
func (t *Transport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Listen starts answering "init" signals on the host window and returns a
// function that stops listening.
func (t *Transport) Listen() (stop func()) {
	return t.host.AddMessageListener(t.handleWindowMessage)
}

// Connect replaces any current port with a new channel and hands its other
// end to the frame, scoped to targetOrigin.
func (t *Transport) Connect(targetOrigin string) error {
	w := t.currentFrameWindow()
	if w == nil {
		return ErrFrameUnavailable
	}
	t.closePort()

	local, remote := window.NewChannel(t.d)
	local.SetOnMessage(t.receive)
	local.SetOnClose(func() { t.handleRemoteClose(local) })

	if err := w.PostMessage(ConnectMessage{Type: ConnectType}, targetOrigin, remote); err != nil {
		_ = local.Close()
		_ = remote.Close()
		return fmt.Errorf("transport: post handshake to %s: %w", targetOrigin, err)
	}

	t.mu.Lock()
	t.port = local
	t.connected = true
	t.mu.Unlock()

	t.logger.Debug("transport: channel open", "origin", targetOrigin)
	if t.onOpen != nil {
		t.onOpen(targetOrigin)
	}
	return nil
}

// Disconnect closes the dedicated port. Close errors are ignored.
func (t *Transport) Disconnect() {
	t.closePort()
}

// Post sends data over the dedicated port.
func (t *Transport) Post(data any) error {
	t.mu.Lock()
	port := t.port
	t.mu.Unlock()

	if port == nil {
		return ErrNotConnected
	}
	return port.PostMessage(data)
}

func (t *Transport) handleWindowMessage(ev window.MessageEvent) {
	if !IsInit(ev.Data) {
		return
	}
	if t.Connected() {
		t.logger.Debug("transport: ignoring init, already connected", "origin", ev.Origin)
		return
	}
	if !t.originAllowed(ev.Origin) {
		t.logger.Warn("transport: init from origin not on allow-list", "origin", ev.Origin)
		return
	}
	if t.currentFrameWindow() == nil {
		return
	}
	if err := t.Connect(t.targetOrigin); err != nil {
		t.logger.Error("transport: handshake failed", "err", err)
	}
}

func (t *Transport) originAllowed(origin string) bool {
	if len(t.allowed) == 0 {
		return true
	}
	for _, o := range t.allowed {
		if o == origin || o == window.AnyOrigin {
			return true
		}
	}
	return false
}

func (t *Transport) currentFrameWindow() window.Window {
	if t.frameWindow == nil {
		return nil
	}
	return t.frameWindow()
}

func (t *Transport) receive(data any) {
	if t.onMessage != nil {
		t.onMessage(data)
	}
}

func (t *Transport) handleRemoteClose(port window.MessagePort) {
	t.mu.Lock()
	current := t.port == port
	t.mu.Unlock()
	if !current {
		return
	}
	t.closePort()
	t.logger.Debug("transport: frame closed the channel")
	if t.onClose != nil {
		t.onClose()
	}
}

func (t *Transport) closePort() {
	t.mu.Lock()
	port := t.port
	t.port = nil
	t.connected = false
	t.mu.Unlock()

	if port == nil {
		return
	}
	if err := port.Close(); err != nil {
		t.logger.Debug("transport: close port", "err", err)
	}
}
