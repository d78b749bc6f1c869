package hub

import (
	"encoding/json"
	"fmt"
)

// Envelope is the addressed wire shape carried over a bridge's dedicated
// port. Anything that is not an Envelope travels as an unaddressed payload.
type Envelope struct {
	Topic   string `json:"topic"`
	Payload any    `json:"payload"`
}

// OpenEvent is the payload of TopicOpen notifications.
type OpenEvent struct {
	Origin string `json:"origin"`
}

// AsEnvelope reports whether data is addressed, accepting both typed
// envelopes and their decoded JSON form (a map with a string "topic").
func AsEnvelope(data any) (Envelope, bool) {
	switch v := data.(type) {
	case Envelope:
		return v, true
	case *Envelope:
		if v == nil {
			return Envelope{}, false
		}
		return *v, true
	case map[string]any:
		topic, ok := v["topic"].(string)
		if !ok {
			return Envelope{}, false
		}
		return Envelope{Topic: topic, Payload: v["payload"]}, true
	}
	return Envelope{}, false
}

// Decode converts an emitted payload to T. Values that already have type T
// are returned as is; anything else (typically JSON decoded off the wire)
// is re-decoded through encoding/json.
func Decode[T any](payload any) (T, error) {
	if v, ok := payload.(T); ok {
		return v, nil
	}
	var v T
	raw, err := json.Marshal(payload)
	if err != nil {
		return v, fmt.Errorf("hub: encode %T: %w", payload, err)
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("hub: decode into %T: %w", v, err)
	}
	return v, nil
}

// Handle subscribes fn to topic with payloads decoded to T. Payloads that
// cannot be decoded are logged and skipped.
func Handle[T any](h *Hub, topic string, fn func(T)) *Subscription {
	return h.Subscribe(topic, func(payload any) {
		v, err := Decode[T](payload)
		if err != nil {
			h.logger.Warn("hub: dropping undecodable payload", "topic", topic, "err", err)
			return
		}
		fn(v)
	})
}

// Deliver emits data received from a bridge: an envelope is emitted on its
// own topic and then on TopicMessage; anything else only on TopicMessage.
func (h *Hub) Deliver(data any) {
	if env, ok := AsEnvelope(data); ok {
		h.Emit(env.Topic, env.Payload)
		h.Emit(TopicMessage, env)
		return
	}
	h.Emit(TopicMessage, data)
}
