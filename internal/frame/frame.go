// Package frame abstracts the embedded-frame element a bridge mounts into
// the host document.
package frame

import "github.com/crystaldolphin/busbridge/internal/window"

// Frame is an embedded frame element.
type Frame interface {
	Src() string
	// SetSrc navigates the frame; a load event follows once the new
	// content is ready.
	SetSrc(src string)
	Title() string
	SetTitle(title string)
	Hidden() bool
	SetHidden(hidden bool)
	// OnLoad registers fn for every load event and returns a remover.
	OnLoad(fn func()) (remove func())
	// ContentWindow returns the frame's window, or nil before the first
	// load and while navigating.
	ContentWindow() window.Window
}

// Attacher is implemented by frames that react to being inserted into or
// removed from a container.
type Attacher interface {
	SetAttached(attached bool)
}

// Container holds frame elements.
type Container interface {
	AppendChild(f Frame)
	RemoveChild(f Frame)
}

// Document is the host document frames are mounted into.
type Document interface {
	// Location is the document URL relative frame sources resolve against.
	Location() string
	Body() Container
	// Window is the host window, on which frames post handshake signals.
	Window() window.Target
	CreateFrame() Frame
}
