package bridge

// State is a Controller's lifecycle position.
type State int

const (
	StateUnmounted State = iota
	StateMounted         // frame in the document, not loaded yet
	StateLoaded          // loaded, no dedicated port
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateUnmounted:
		return "unmounted"
	case StateMounted:
		return "mounted"
	case StateLoaded:
		return "loaded"
	case StateConnected:
		return "connected"
	}
	return "unknown"
}
