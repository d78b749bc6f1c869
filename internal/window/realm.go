package window

import (
	"sync"

	"github.com/crystaldolphin/busbridge/internal/loop"
)

// Realm is an in-memory browsing context: it has an origin, can be
// listened on, and can be posted into through a Window obtained with
// WindowFrom.
type Realm struct {
	origin string
	d      loop.Dispatcher

	mu        sync.Mutex
	listeners []realmListener
	nextID    uint64
}

type realmListener struct {
	id uint64
	fn func(MessageEvent)
}

// NewRealm creates a Realm whose message events are delivered through d.
func NewRealm(origin string, d loop.Dispatcher) *Realm {
	return &Realm{origin: origin, d: d}
}

// Origin returns the realm's origin.
func (r *Realm) Origin() string { return r.origin }

// AddMessageListener registers fn and returns a function removing it.
func (r *Realm) AddMessageListener(fn func(MessageEvent)) (remove func()) {
	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.listeners = append(r.listeners, realmListener{id: id, fn: fn})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			for i, l := range r.listeners {
				if l.id == id {
					r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
					return
				}
			}
		})
	}
}

// ListenerCount returns the number of registered message listeners.
func (r *Realm) ListenerCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// WindowFrom returns the Window through which source posts into r.
// Events delivered through it carry source's origin.
func (r *Realm) WindowFrom(source *Realm) Window {
	return &realmWindow{target: r, source: source}
}

// Deliver hands ev to the realm's listeners through its dispatcher. Bridges
// to remote contexts use it to inject events arriving off the wire.
func (r *Realm) Deliver(ev MessageEvent) {
	r.d.Post(func() {
		r.mu.Lock()
		snapshot := make([]realmListener, len(r.listeners))
		copy(snapshot, r.listeners)
		r.mu.Unlock()

		for _, l := range snapshot {
			l.fn(ev)
		}
	})
}

type realmWindow struct {
	target *Realm
	source *Realm
}

func (w *realmWindow) PostMessage(data any, targetOrigin string, transfer ...MessagePort) error {
	if !MatchOrigin(targetOrigin, w.target.origin) {
		return ErrOriginMismatch
	}
	ev := MessageEvent{Data: data, Ports: transfer}
	if w.source != nil {
		ev.Origin = w.source.origin
		ev.Source = w.source.WindowFrom(w.target)
	}
	w.target.Deliver(ev)
	return nil
}
