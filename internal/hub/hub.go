// Package hub is the in-process publish/subscribe registry shared by the
// host application and the frame bridges.
//
// Listeners are keyed by topic. The Hub knows nothing about transports; a
// bridge makes itself reachable by installing a Sender, and consumers send
// through the Hub without caring which bridge (if any) is behind it.
package hub

import (
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Notification topics emitted by the hub and the bridges.
const (
	TopicOpen    = "bridge:open"
	TopicClose   = "bridge:close"
	TopicSender  = "bridge:sender"
	TopicMessage = "bridge:message"
)

// Listener receives the payload emitted on a topic.
type Listener func(payload any)

// Subscription is the handle returned by Subscribe and SubscribeOnce.
type Subscription struct {
	hub     *Hub
	topic   string
	id      uint64
	fn      Listener
	once    bool
	fired   atomic.Bool
	removed atomic.Bool
}

// Topic returns the topic the subscription listens on.
func (s *Subscription) Topic() string { return s.topic }

// Unsubscribe removes the listener from its hub.
// It is safe to call multiple times or on a nil Subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil || s.hub == nil {
		return
	}
	s.hub.remove(s)
}

// Hub is an explicitly constructed event registry plus the single outbound
// path used by every consumer of that registry.
type Hub struct {
	mu        sync.RWMutex
	listeners map[string][]*Subscription
	sender    Sender
	nextID    atomic.Uint64
	logger    *slog.Logger
}

// New creates an empty Hub. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		listeners: make(map[string][]*Subscription),
		logger:    logger,
	}
}

// Subscribe registers fn for topic. Every call yields an independent handle.
func (h *Hub) Subscribe(topic string, fn Listener) *Subscription {
	return h.add(topic, fn, false)
}

// SubscribeOnce registers fn for the next emission on topic only. The
// listener is removed before it runs, so emitting the same topic from
// inside fn does not call it again.
func (h *Hub) SubscribeOnce(topic string, fn Listener) *Subscription {
	return h.add(topic, fn, true)
}

// Unsubscribe removes sub from topic. It is a no-op if sub is not
// registered there.
func (h *Hub) Unsubscribe(topic string, sub *Subscription) {
	if sub == nil || sub.hub != h || sub.topic != topic {
		return
	}
	h.remove(sub)
}

// Emit synchronously calls every listener registered on topic when the
// call starts, in registration order. A panicking listener is logged and
// the remaining listeners still run.
func (h *Hub) Emit(topic string, payload any) {
	h.mu.RLock()
	subs := make([]*Subscription, len(h.listeners[topic]))
	copy(subs, h.listeners[topic])
	h.mu.RUnlock()

	for _, sub := range subs {
		if sub.once {
			if !sub.fired.CompareAndSwap(false, true) {
				continue
			}
			h.remove(sub)
		}
		h.safeCall(topic, sub.fn, payload)
	}
}

// Clear drops every listener on the given topics, or on all topics when
// none are given.
func (h *Hub) Clear(topics ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(topics) == 0 {
		for _, subs := range h.listeners {
			markRemoved(subs)
		}
		h.listeners = make(map[string][]*Subscription)
		return
	}
	for _, t := range topics {
		markRemoved(h.listeners[t])
		delete(h.listeners, t)
	}
}

// ListenerCount reports how many listeners are registered on topic.
func (h *Hub) ListenerCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners[topic])
}

// Topics returns the topics that currently have listeners.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	topics := make([]string, 0, len(h.listeners))
	for t := range h.listeners {
		topics = append(topics, t)
	}
	return topics
}

func (h *Hub) add(topic string, fn Listener, once bool) *Subscription {
	sub := &Subscription{
		hub:   h,
		topic: topic,
		id:    h.nextID.Add(1),
		fn:    fn,
		once:  once,
	}
	h.mu.Lock()
	h.listeners[topic] = append(h.listeners[topic], sub)
	h.mu.Unlock()
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	if !sub.removed.CompareAndSwap(false, true) {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.listeners[sub.topic]
	for i, s := range subs {
		if s.id != sub.id {
			continue
		}
		rest := append(subs[:i], subs[i+1:]...)
		if len(rest) == 0 {
			delete(h.listeners, sub.topic)
		} else {
			h.listeners[sub.topic] = rest
		}
		return
	}
}

func (h *Hub) safeCall(topic string, fn Listener, payload any) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("hub: listener panicked",
				"topic", topic,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	fn(payload)
}

func markRemoved(subs []*Subscription) {
	for _, s := range subs {
		s.removed.Store(true)
	}
}
