package frame

import (
	"sync"

	"github.com/crystaldolphin/busbridge/internal/loop"
	"github.com/crystaldolphin/busbridge/internal/window"
)

// App runs inside a MemoryFrame each time it loads, before the load event
// reaches the host. It typically attaches a peer to f.Realm().
type App func(f *MemoryFrame)

// MemoryDocument is an in-process Document. Frames are only loaded when
// Load is called, unless the document was created with an App, in which
// case every navigation of an attached frame loads it automatically.
type MemoryDocument struct {
	location string
	realm    *window.Realm
	d        loop.Dispatcher
	body     *MemoryContainer
	app      App
}

// NewMemoryDocument creates a document at location whose events run on d.
func NewMemoryDocument(location string, d loop.Dispatcher, app App) *MemoryDocument {
	origin, err := window.OriginOf(location, "")
	if err != nil {
		origin = "null"
	}
	return &MemoryDocument{
		location: location,
		realm:    window.NewRealm(origin, d),
		d:        d,
		body:     &MemoryContainer{},
		app:      app,
	}
}

func (doc *MemoryDocument) Location() string      { return doc.location }
func (doc *MemoryDocument) Body() Container       { return doc.body }
func (doc *MemoryDocument) Window() window.Target { return doc.realm }

// Realm returns the host document's realm.
func (doc *MemoryDocument) Realm() *window.Realm { return doc.realm }

// Children returns the frames currently in the body.
func (doc *MemoryDocument) Children() []Frame { return doc.body.Children() }

func (doc *MemoryDocument) CreateFrame() Frame {
	return &MemoryFrame{doc: doc}
}

// MemoryContainer is a Container that records its children. Children
// implementing Attacher are told when they are added or removed.
type MemoryContainer struct {
	mu       sync.Mutex
	children []Frame
}

func (c *MemoryContainer) AppendChild(f Frame) {
	c.mu.Lock()
	c.children = append(c.children, f)
	c.mu.Unlock()

	if a, ok := f.(Attacher); ok {
		a.SetAttached(true)
	}
}

func (c *MemoryContainer) RemoveChild(f Frame) {
	c.mu.Lock()
	for i, child := range c.children {
		if child == f {
			c.children = append(c.children[:i], c.children[i+1:]...)
			break
		}
	}
	c.mu.Unlock()

	if a, ok := f.(Attacher); ok {
		a.SetAttached(false)
	}
}

// Children returns a copy of the container's children.
func (c *MemoryContainer) Children() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Frame, len(c.children))
	copy(out, c.children)
	return out
}

// MemoryFrame is the Frame created by MemoryDocument.
type MemoryFrame struct {
	doc *MemoryDocument

	mu          sync.Mutex
	src         string
	title       string
	hidden      bool
	attached    bool
	realm       *window.Realm
	loads       int
	navigations int
	listeners   []loadListener
	nextID      int
}

type loadListener struct {
	id int
	fn func()
}

func (f *MemoryFrame) Src() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.src
}

func (f *MemoryFrame) SetSrc(src string) {
	f.mu.Lock()
	f.src = src
	f.realm = nil
	f.navigations++
	nav := f.navigations
	auto := f.attached && f.doc.app != nil
	f.mu.Unlock()

	if auto {
		f.doc.d.Post(func() { f.autoLoad(nav) })
	}
}

func (f *MemoryFrame) Title() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.title
}

func (f *MemoryFrame) SetTitle(title string) {
	f.mu.Lock()
	f.title = title
	f.mu.Unlock()
}

func (f *MemoryFrame) Hidden() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hidden
}

func (f *MemoryFrame) SetHidden(hidden bool) {
	f.mu.Lock()
	f.hidden = hidden
	f.mu.Unlock()
}

func (f *MemoryFrame) OnLoad(fn func()) (remove func()) {
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

func (f *MemoryFrame) ContentWindow() window.Window {
	f.mu.Lock()
	realm := f.realm
	f.mu.Unlock()
	if realm == nil {
		return nil
	}
	return realm.WindowFrom(f.doc.realm)
}

// Realm returns the realm of the currently loaded content, or nil.
func (f *MemoryFrame) Realm() *window.Realm {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.realm
}

// Parent returns the window through which the frame's content posts to
// the host, or nil when nothing is loaded.
func (f *MemoryFrame) Parent() window.Window {
	realm := f.Realm()
	if realm == nil {
		return nil
	}
	return f.doc.realm.WindowFrom(realm)
}

// Load replaces the frame's content with a fresh realm for the origin of
// its src, runs the document's App, and fires the load listeners.
func (f *MemoryFrame) Load() *window.Realm {
	origin, err := window.OriginOf(f.Src(), f.doc.location)
	if err != nil {
		origin = "null"
	}
	realm := window.NewRealm(origin, f.doc.d)

	f.mu.Lock()
	f.realm = realm
	f.loads++
	listeners := make([]loadListener, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.Unlock()

	if f.doc.app != nil {
		f.doc.app(f)
	}
	for _, l := range listeners {
		l.fn()
	}
	return realm
}

// Attached reports whether the frame is in a container.
func (f *MemoryFrame) Attached() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached
}

// Loads returns how many times the frame has loaded.
func (f *MemoryFrame) Loads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads
}

// Navigations returns how many times the frame's src was assigned.
func (f *MemoryFrame) Navigations() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.navigations
}

// SetAttached is called by containers. Detaching unloads the frame;
// attaching a frame that has a src loads it when the document has an App.
func (f *MemoryFrame) SetAttached(attached bool) {
	f.mu.Lock()
	f.attached = attached
	if !attached {
		f.realm = nil
	}
	auto := attached && f.src != "" && f.doc.app != nil
	nav := f.navigations
	f.mu.Unlock()

	if auto {
		f.doc.d.Post(func() { f.autoLoad(nav) })
	}
}

// autoLoad loads the frame unless it was detached or navigated again
// after the load was scheduled.
func (f *MemoryFrame) autoLoad(nav int) {
	f.mu.Lock()
	current := f.attached && f.navigations == nav
	f.mu.Unlock()
	if current {
		f.Load()
	}
}
