package window

import (
	"sync"

	"github.com/crystaldolphin/busbridge/internal/loop"
)

// Port is an in-memory MessagePort. Messages posted on one end are
// delivered asynchronously, through the dispatcher, to the other end.
// Messages that arrive before a handler is set are queued.
type Port struct {
	d loop.Dispatcher

	mu        sync.Mutex
	peer      *Port
	onMessage func(any)
	onClose   func()
	pending   []any
	closed    bool
}

// NewChannel returns two entangled ports.
func NewChannel(d loop.Dispatcher) (*Port, *Port) {
	a := &Port{d: d}
	b := &Port{d: d}
	a.peer = b
	b.peer = a
	return a, b
}

// PostMessage queues data for the entangled end. Once the other end is
// closed, messages are dropped silently.
func (p *Port) PostMessage(data any) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPortClosed
	}
	peer := p.peer
	p.mu.Unlock()

	if peer == nil {
		return nil
	}
	p.d.Post(func() { peer.deliver(data) })
	return nil
}

// SetOnMessage installs the receive handler and flushes queued messages.
func (p *Port) SetOnMessage(fn func(data any)) {
	p.mu.Lock()
	p.onMessage = fn
	flush := fn != nil && len(p.pending) > 0
	p.mu.Unlock()

	if flush {
		p.d.Post(p.drain)
	}
}

// SetOnClose installs a callback run when the entangled end is closed.
func (p *Port) SetOnClose(fn func()) {
	p.mu.Lock()
	p.onClose = fn
	p.mu.Unlock()
}

// Closed reports whether this end has been closed.
func (p *Port) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close disentangles both ends. Closing twice is a no-op.
func (p *Port) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	peer := p.peer
	p.peer = nil
	p.onMessage = nil
	p.onClose = nil
	p.pending = nil
	p.mu.Unlock()

	if peer == nil {
		return nil
	}
	peer.mu.Lock()
	peer.peer = nil
	onClose := peer.onClose
	peer.mu.Unlock()
	if onClose != nil {
		p.d.Post(onClose)
	}
	return nil
}

func (p *Port) deliver(data any) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.pending = append(p.pending, data)
	p.mu.Unlock()
	p.drain()
}

// drain hands every queued message, in arrival order, to the handler.
func (p *Port) drain() {
	p.mu.Lock()
	fn := p.onMessage
	if fn == nil || p.closed {
		p.mu.Unlock()
		return
	}
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()

	for _, data := range batch {
		if p.Closed() {
			return
		}
		fn(data)
	}
}
