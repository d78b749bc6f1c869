package hub

import (
	"errors"
	"fmt"
)

// ErrSenderNotReady is returned by SendStrict when no bridge has installed
// a sender.
var ErrSenderNotReady = errors.New("hub: sender not ready")

// Sender transmits a payload out of the process, typically over a bridge's
// dedicated port.
type Sender func(payload any) error

// SenderStatus is the payload of TopicSender notifications.
type SenderStatus struct {
	Ready bool `json:"ready"`
}

// SetSender installs fn as the outbound path, or removes it when fn is nil.
// A TopicSender notification is emitted on every call.
func (h *Hub) SetSender(fn Sender) {
	h.mu.Lock()
	h.sender = fn
	h.mu.Unlock()

	h.Emit(TopicSender, SenderStatus{Ready: fn != nil})
}

// IsReady reports whether a sender is installed.
func (h *Hub) IsReady() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sender != nil
}

// Send hands payload to the installed sender and reports whether one was
// installed. Transmission errors are logged, not returned.
func (h *Hub) Send(payload any) bool {
	fn := h.currentSender()
	if fn == nil {
		return false
	}
	if err := fn(payload); err != nil {
		h.logger.Warn("hub: send failed", "err", err)
	}
	return true
}

// SendStrict is Send for callers that treat being offline as a failure.
func (h *Hub) SendStrict(payload any) error {
	fn := h.currentSender()
	if fn == nil {
		return ErrSenderNotReady
	}
	if err := fn(payload); err != nil {
		return fmt.Errorf("hub: send: %w", err)
	}
	return nil
}

// Publish sends an addressed envelope for topic.
func (h *Hub) Publish(topic string, payload any) bool {
	return h.Send(Envelope{Topic: topic, Payload: payload})
}

func (h *Hub) currentSender() Sender {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sender
}
