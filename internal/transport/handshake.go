package transport

// InitSignal is posted by a frame on the window primitive once it is ready
// to receive a port.
const InitSignal = "init"

// ConnectType tags the host's handshake reply that carries the port.
const ConnectType = "connect"

// ConnectMessage is the handshake reply posted to the frame window.
type ConnectMessage struct {
	Type string `json:"type"`
}

// IsInit reports whether data is the frame's readiness signal.
func IsInit(data any) bool {
	s, ok := data.(string)
	return ok && s == InitSignal
}

// IsConnect reports whether data is a handshake reply, either typed or in
// its decoded JSON form.
func IsConnect(data any) bool {
	switch v := data.(type) {
	case ConnectMessage:
		return v.Type == ConnectType
	case *ConnectMessage:
		return v != nil && v.Type == ConnectType
	case map[string]any:
		typ, _ := v["type"].(string)
		return typ == ConnectType
	}
	return false
}
