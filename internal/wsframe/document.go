package wsframe

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/busbridge/internal/frame"
	"github.com/crystaldolphin/busbridge/internal/loop"
	"github.com/crystaldolphin/busbridge/internal/window"
)

// DefaultReconnectDelay is how long a frame waits before redialing a lost
// or failed connection.
const DefaultReconnectDelay = 5 * time.Second

// Document is a frame.Document whose frames are WebSocket endpoints. A
// frame "loads" when its src has been dialed; frame-side posts arrive on
// the document window carrying the src origin.
type Document struct {
	location string
	origin   string
	realm    *window.Realm
	body     *frame.MemoryContainer
	d        loop.Dispatcher
	dialer   *websocket.Dialer
	delay    time.Duration
	logger   *slog.Logger
}

// DocumentOption configures a Document.
type DocumentOption func(*Document)

// WithDialer replaces websocket.DefaultDialer.
func WithDialer(dialer *websocket.Dialer) DocumentOption {
	return func(doc *Document) { doc.dialer = dialer }
}

// WithReconnectDelay sets the delay between dial attempts.
func WithReconnectDelay(delay time.Duration) DocumentOption {
	return func(doc *Document) { doc.delay = delay }
}

// WithDocumentLogger sets the logger. The default is slog.Default().
func WithDocumentLogger(l *slog.Logger) DocumentOption {
	return func(doc *Document) { doc.logger = l }
}

// NewDocument creates a host document at location whose events run on d.
func NewDocument(location string, d loop.Dispatcher, opts ...DocumentOption) *Document {
	origin, err := window.OriginOf(location, "")
	if err != nil {
		origin = "null"
	}
	doc := &Document{
		location: location,
		origin:   origin,
		realm:    window.NewRealm(origin, d),
		body:     &frame.MemoryContainer{},
		d:        d,
		dialer:   websocket.DefaultDialer,
		delay:    DefaultReconnectDelay,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(doc)
	}
	return doc
}

func (doc *Document) Location() string      { return doc.location }
func (doc *Document) Body() frame.Container { return doc.body }
func (doc *Document) Window() window.Target { return doc.realm }

// Origin returns the document origin, sent as the Origin header on dial.
func (doc *Document) Origin() string { return doc.origin }

func (doc *Document) CreateFrame() frame.Frame {
	return &Frame{doc: doc}
}

// Frame is a WebSocket-backed frame element. It dials its src while it is
// attached to a container and redials after connection loss.
type Frame struct {
	doc *Document

	mu          sync.Mutex
	src         string
	title       string
	hidden      bool
	attached    bool
	navigations int
	gen         int // bumped on every restart
	cancel      context.CancelFunc
	conn        *conn
	win         *connWindow
	listeners   []loadListener
	nextID      int
}

type loadListener struct {
	id int
	fn func()
}

func (f *Frame) Src() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.src
}

// SetSrc drops the current connection and, if attached, dials src.
func (f *Frame) SetSrc(src string) {
	f.mu.Lock()
	f.src = src
	f.navigations++
	f.mu.Unlock()
	f.restart()
}

func (f *Frame) Title() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

func (f *Frame) SetTitle(title string) {
	f.mu.Lock()
	f.title = title
	f.mu.Unlock()
}

func (f *Frame) Hidden() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hidden
}

func (f *Frame) SetHidden(hidden bool) {
	f.mu.Lock()
	f.hidden = hidden
	f.mu.Unlock()
}

func (f *Frame) OnLoad(fn func()) (remove func()) {
	f.mu.Lock()
	f.nextID++
	id := f.nextID
	f.listeners = append(f.listeners, loadListener{id: id, fn: fn})
	f.mu.Unlock()

	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		for i, l := range f.listeners {
			if l.id == id {
				f.listeners = append(f.listeners[:i], f.listeners[i+1:]...)
				return
			}
		}
	}
}

// ContentWindow returns the connection to the frame, or nil while it is
// not connected.
func (f *Frame) ContentWindow() window.Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.win == nil {
		return nil
	}
	return f.win
}

// Navigations returns how many times the frame's src was assigned.
func (f *Frame) Navigations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.navigations
}

// Connected reports whether the frame currently has a live connection.
func (f *Frame) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conn != nil
}

// SetAttached starts dialing on attach and hangs up on detach.
func (f *Frame) SetAttached(attached bool) {
	f.mu.Lock()
	f.attached = attached
	f.mu.Unlock()
	f.restart()
}

// restart cancels any running dial loop and connection, then starts a new
// loop when the frame is attached and has a src.
func (f *Frame) restart() {
	f.mu.Lock()
	if f.cancel != nil {
		f.cancel()
		f.cancel = nil
	}
	c := f.conn
	f.conn = nil
	f.win = nil
	f.gen++
	start := f.attached && f.src != ""
	src, gen := f.src, f.gen
	var ctx context.Context
	if start {
		ctx, f.cancel = context.WithCancel(context.Background())
	}
	f.mu.Unlock()

	if c != nil {
		f.doc.d.Post(c.shutdown)
	}
	if start {
		go f.run(ctx, src, gen)
	}
}

func (f *Frame) run(ctx context.Context, src string, gen int) {
	logger := f.doc.logger.With("src", src)
	for {
		err := f.connectOnce(ctx, src, gen)
		if ctx.Err() != nil {
			return
		}
		logger.Warn("wsframe: connection lost, reconnecting", "err", err, "delay", f.doc.delay)
		select {
		case <-ctx.Done():
			return
		case <-time.After(f.doc.delay):
		}
	}
}

func (f *Frame) connectOnce(ctx context.Context, src string, gen int) error {
	endpoint, origin, err := resolveEndpoint(src, f.doc.location)
	if err != nil {
		return err
	}
	header := http.Header{}
	header.Set("Origin", f.doc.origin)
	ws, _, err := f.doc.dialer.DialContext(ctx, endpoint, header)
	if err != nil {
		return fmt.Errorf("wsframe: dial %s: %w", endpoint, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = ws.Close() })
	defer stop()

	c := newConn(ws, f.doc.d, f.doc.logger, 1)
	win := &connWindow{c: c, origin: origin}
	c.onPost = func(data any, ports []window.MessagePort) {
		f.doc.realm.Deliver(window.MessageEvent{Data: data, Origin: origin, Source: win, Ports: ports})
	}
	f.doc.d.Post(func() { f.loaded(gen, c, win) })

	err = c.readLoop()
	f.doc.d.Post(func() { f.lost(c) })
	return err
}

// loaded installs c and fires the load listeners unless the frame was
// navigated or detached while dialing.
func (f *Frame) loaded(gen int, c *conn, win *connWindow) {
	f.mu.Lock()
	if f.gen != gen || c.isClosed() {
		f.mu.Unlock()
		c.shutdown()
		return
	}
	f.conn = c
	f.win = win
	listeners := make([]loadListener, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	f.doc.logger.Debug("wsframe: frame loaded", "src", f.Src())
	for _, l := range listeners {
		l.fn()
	}
}

func (f *Frame) lost(c *conn) {
	f.mu.Lock()
	if f.conn == c {
		f.conn = nil
		f.win = nil
	}
	f.mu.Unlock()
	c.shutdown()
}

// resolveEndpoint maps src to the URL to dial and the origin posts to and
// from the frame are checked against. http and https sources are dialed
// as ws and wss.
func resolveEndpoint(src, base string) (endpoint, origin string, err error) {
	u, err := url.Parse(src)
	if err != nil {
		return "", "", fmt.Errorf("wsframe: parse src %q: %w", src, err)
	}
	if base != "" {
		b, err := url.Parse(base)
		if err != nil {
			return "", "", fmt.Errorf("wsframe: parse location %q: %w", base, err)
		}
		u = b.ResolveReference(u)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", "", fmt.Errorf("wsframe: unsupported src scheme %q", u.Scheme)
	}
	origin, err = window.OriginOf(src, base)
	if err != nil {
		return "", "", err
	}
	return u.String(), origin, nil
}
