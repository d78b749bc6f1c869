// Package wsframe carries the window primitive and its transferred ports
// over a WebSocket, so that a bridge can embed a frame running in another
// process. Document is the host side and Server the frame side.
package wsframe

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/crystaldolphin/busbridge/internal/loop"
	"github.com/crystaldolphin/busbridge/internal/window"
)

// ErrNotLoaded is returned when posting to a frame whose connection is gone.
var ErrNotLoaded = errors.New("wsframe: frame not loaded")

const writeTimeout = 10 * time.Second

// Wire message kinds.
const (
	kindPost      = "post"
	kindPort      = "port"
	kindPortClose = "port-close"
)

// wireMessage is the JSON text frame exchanged on the socket.
type wireMessage struct {
	Kind  string `json:"kind"`
	Data  any    `json:"data,omitempty"`
	Ports []int  `json:"ports,omitempty"`
	ID    int    `json:"id,omitempty"`
}

// transferable is a port the connection can take over when it is posted.
type transferable interface {
	window.MessagePort
	SetOnClose(fn func())
}

// conn multiplexes window posts and any number of ports over one socket.
// Port IDs are allocated by the side that transfers the port; the host
// uses odd IDs and the frame even ones.
type conn struct {
	ws     *websocket.Conn
	d      loop.Dispatcher
	logger *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	ports  map[int]transferable
	nextID int
	closed bool

	// onPost runs on the loop for every inbound post.
	onPost func(data any, ports []window.MessagePort)
}

func newConn(ws *websocket.Conn, d loop.Dispatcher, logger *slog.Logger, firstID int) *conn {
	return &conn{
		ws:     ws,
		d:      d,
		logger: logger,
		ports:  make(map[int]transferable),
		nextID: firstID,
	}
}

func (c *conn) write(msg wireMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteJSON(msg)
}

// post sends data to the remote window, taking over the transferred ports.
func (c *conn) post(data any, transfer []window.MessagePort) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrNotLoaded
	}

	ids := make([]int, 0, len(transfer))
	for _, p := range transfer {
		tp, ok := p.(transferable)
		if !ok {
			return fmt.Errorf("wsframe: cannot transfer %T", p)
		}
		ids = append(ids, c.bind(c.allocID(), tp))
	}
	if err := c.write(wireMessage{Kind: kindPost, Data: data, Ports: ids}); err != nil {
		return fmt.Errorf("wsframe: write post: %w", err)
	}
	return nil
}

func (c *conn) allocID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextID
	c.nextID += 2
	return id
}

// bind forwards everything p receives to the remote side under id.
func (c *conn) bind(id int, p transferable) int {
	c.mu.Lock()
	c.ports[id] = p
	c.mu.Unlock()

	p.SetOnMessage(func(data any) {
		if err := c.write(wireMessage{Kind: kindPort, ID: id, Data: data}); err != nil {
			c.logger.Debug("wsframe: port write failed", "id", id, "err", err)
		}
	})
	p.SetOnClose(func() {
		if !c.unbind(id) {
			return
		}
		if err := c.write(wireMessage{Kind: kindPortClose, ID: id}); err != nil {
			c.logger.Debug("wsframe: port-close write failed", "id", id, "err", err)
		}
	})
	return id
}

func (c *conn) unbind(id int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ports[id]; !ok {
		return false
	}
	delete(c.ports, id)
	return true
}

func (c *conn) port(id int) transferable {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ports[id]
}

// readLoop hands every inbound frame to the loop, in order, until the
// socket fails.
func (c *conn) readLoop() error {
	for {
		var msg wireMessage
		if err := c.ws.ReadJSON(&msg); err != nil {
			return err
		}
		c.d.Post(func() { c.handle(msg) })
	}
}

func (c *conn) handle(msg wireMessage) {
	switch msg.Kind {
	case kindPost:
		ports := make([]window.MessagePort, 0, len(msg.Ports))
		for _, id := range msg.Ports {
			local, remote := window.NewChannel(c.d)
			c.bind(id, local)
			ports = append(ports, remote)
		}
		if c.onPost != nil {
			c.onPost(msg.Data, ports)
		}
	case kindPort:
		p := c.port(msg.ID)
		if p == nil {
			c.logger.Debug("wsframe: data for unknown port", "id", msg.ID)
			return
		}
		if err := p.PostMessage(msg.Data); err != nil {
			c.logger.Debug("wsframe: port delivery failed", "id", msg.ID, "err", err)
		}
	case kindPortClose:
		p := c.port(msg.ID)
		if p == nil || !c.unbind(msg.ID) {
			return
		}
		_ = p.Close()
	default:
		c.logger.Warn("wsframe: unknown message kind", "kind", msg.Kind)
	}
}

// shutdown closes the socket and every bound port. It must run on the loop.
func (c *conn) shutdown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	ports := c.ports
	c.ports = make(map[int]transferable)
	c.mu.Unlock()

	_ = c.ws.Close()
	for _, p := range ports {
		_ = p.Close()
	}
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// connWindow is the remote context's window as seen through a conn.
type connWindow struct {
	c      *conn
	origin string // origin of the remote context
}

func (w *connWindow) PostMessage(data any, targetOrigin string, transfer ...window.MessagePort) error {
	if !window.MatchOrigin(targetOrigin, w.origin) {
		return window.ErrOriginMismatch
	}
	return w.c.post(data, transfer)
}
