// Package window models the coarse-grained cross-context messaging
// primitive a host uses to reach an embedded frame, and the dedicated
// ports that are handed over it.
package window

import "errors"

// AnyOrigin as a target origin delivers regardless of the recipient's origin.
const AnyOrigin = "*"

var (
	// ErrOriginMismatch is returned when a post is scoped to an origin the
	// recipient does not have.
	ErrOriginMismatch = errors.New("window: target origin does not match recipient origin")
	// ErrPortClosed is returned when posting on a closed port.
	ErrPortClosed = errors.New("window: port closed")
)

// MessageEvent is what a Target's listeners receive.
type MessageEvent struct {
	Data   any
	Origin string        // origin of the posting context
	Source Window        // replies go here; may be nil
	Ports  []MessagePort // ports transferred with the message
}

// Window is a handle through which one context posts into another.
type Window interface {
	PostMessage(data any, targetOrigin string, transfer ...MessagePort) error
}

// Target is a context that can be listened on for posted messages.
type Target interface {
	AddMessageListener(fn func(MessageEvent)) (remove func())
}

// MessagePort is one end of a dedicated two-ended channel.
type MessagePort interface {
	PostMessage(data any) error
	SetOnMessage(fn func(data any))
	Close() error
}

// MatchOrigin reports whether a post scoped to targetOrigin may be
// delivered to a context whose origin is origin.
func MatchOrigin(targetOrigin, origin string) bool {
	return targetOrigin == AnyOrigin || targetOrigin == origin
}
