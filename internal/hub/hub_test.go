package hub

import (
	"errors"
	"io"
	"log/slog"
	"testing"
)

func newTestHub() *Hub {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestEmit_RegistrationOrder(t *testing.T) {
	h := newTestHub()
	var order []int
	for i := 1; i <= 3; i++ {
		i := i
		h.Subscribe("t", func(any) { order = append(order, i) })
	}

	h.Emit("t", nil)

	if len(order) != 3 || order[0] != 1 || order[1] != 2 || order[2] != 3 {
		t.Fatalf("expected [1 2 3], got %v", order)
	}
}

func TestEmit_NoListeners(t *testing.T) {
	h := newTestHub()
	h.Subscribe("other", func(any) { t.Error("listener on another topic should not run") })
	h.Emit("t", "x")
}

func TestEmit_SnapshotIgnoresAddedListeners(t *testing.T) {
	h := newTestHub()
	lateCalls := 0
	h.Subscribe("t", func(any) {
		h.Subscribe("t", func(any) { lateCalls++ })
	})

	h.Emit("t", nil)
	if lateCalls != 0 {
		t.Fatalf("listener added during emission received the event")
	}

	h.Emit("t", nil)
	if lateCalls != 1 {
		t.Fatalf("expected added listener to run on the next emission, got %d calls", lateCalls)
	}
}

func TestEmit_SnapshotKeepsRemovedListeners(t *testing.T) {
	h := newTestHub()
	var second *Subscription
	secondCalls := 0
	h.Subscribe("t", func(any) { second.Unsubscribe() })
	second = h.Subscribe("t", func(any) { secondCalls++ })

	h.Emit("t", nil)
	if secondCalls != 1 {
		t.Fatalf("listener removed mid-emission should still receive it, got %d", secondCalls)
	}

	h.Emit("t", nil)
	if secondCalls != 1 {
		t.Fatalf("removed listener ran again, got %d", secondCalls)
	}
}

func TestEmit_PanickingListenerDoesNotStopDelivery(t *testing.T) {
	h := newTestHub()
	called := false
	h.Subscribe("t", func(any) { panic("boom") })
	h.Subscribe("t", func(any) { called = true })

	h.Emit("t", nil)

	if !called {
		t.Fatal("second listener should run despite the first panicking")
	}
}

func TestSubscribeOnce(t *testing.T) {
	h := newTestHub()
	calls := 0
	h.SubscribeOnce("t", func(any) { calls++ })

	h.Emit("t", nil)
	h.Emit("t", nil)
	h.Emit("t", nil)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
	if n := h.ListenerCount("t"); n != 0 {
		t.Fatalf("expected once-listener to be removed, %d left", n)
	}
}

func TestSubscribeOnce_ReentrantEmit(t *testing.T) {
	h := newTestHub()
	calls := 0
	h.SubscribeOnce("t", func(any) {
		calls++
		h.Emit("t", nil)
	})

	h.Emit("t", nil)

	if calls != 1 {
		t.Fatalf("once-listener re-triggered itself: %d calls", calls)
	}
}

func TestSubscription_UnsubscribeIdempotent(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("t", func(any) { t.Error("unsubscribed listener ran") })
	keep := h.Subscribe("t", func(any) {})

	sub.Unsubscribe()
	sub.Unsubscribe()
	var nilSub *Subscription
	nilSub.Unsubscribe()

	h.Emit("t", nil)
	if n := h.ListenerCount("t"); n != 1 {
		t.Fatalf("expected 1 listener left, got %d", n)
	}
	keep.Unsubscribe()
	if topics := h.Topics(); len(topics) != 0 {
		t.Fatalf("topic should be dropped with its last listener, got %v", topics)
	}
}

func TestUnsubscribe_WrongTopicIsNoop(t *testing.T) {
	h := newTestHub()
	sub := h.Subscribe("a", func(any) {})

	h.Unsubscribe("b", sub)
	if h.ListenerCount("a") != 1 {
		t.Fatal("Unsubscribe on another topic removed the listener")
	}

	h.Unsubscribe("a", sub)
	if h.ListenerCount("a") != 0 {
		t.Fatal("Unsubscribe did not remove the listener")
	}
	h.Unsubscribe("a", sub)
	h.Unsubscribe("a", nil)
}

func TestClear(t *testing.T) {
	h := newTestHub()
	h.Subscribe("a", func(any) {})
	h.Subscribe("b", func(any) {})
	sub := h.Subscribe("b", func(any) {})

	h.Clear("a")
	if h.ListenerCount("a") != 0 || h.ListenerCount("b") != 2 {
		t.Fatalf("Clear(a) removed the wrong listeners")
	}

	h.Clear()
	if len(h.Topics()) != 0 {
		t.Fatalf("Clear() left topics %v", h.Topics())
	}
	// Handles of cleared listeners stay harmless.
	sub.Unsubscribe()
}

func TestSend_WithoutSender(t *testing.T) {
	h := newTestHub()

	if h.IsReady() {
		t.Fatal("new hub should not be ready")
	}
	if h.Send("x") {
		t.Fatal("Send without a sender should return false")
	}
	if err := h.SendStrict("x"); !errors.Is(err, ErrSenderNotReady) {
		t.Fatalf("expected ErrSenderNotReady, got %v", err)
	}
}

func TestSend_WithSender(t *testing.T) {
	h := newTestHub()
	var sent []any
	h.SetSender(func(p any) error {
		sent = append(sent, p)
		return nil
	})

	if !h.IsReady() {
		t.Fatal("hub should be ready after SetSender")
	}
	if !h.Send("x") {
		t.Fatal("Send should return true with a sender installed")
	}
	if err := h.SendStrict("y"); err != nil {
		t.Fatalf("SendStrict: %v", err)
	}
	if !h.Publish("topic", 1) {
		t.Fatal("Publish should return true with a sender installed")
	}
	if len(sent) != 3 {
		t.Fatalf("expected 3 sends, got %d", len(sent))
	}
	if env, ok := sent[2].(Envelope); !ok || env.Topic != "topic" || env.Payload != 1 {
		t.Fatalf("Publish sent %#v", sent[2])
	}

	h.SetSender(nil)
	if h.Send("z") {
		t.Fatal("Send after SetSender(nil) should return false")
	}
}

func TestSend_SenderErrors(t *testing.T) {
	h := newTestHub()
	errWire := errors.New("wire down")
	h.SetSender(func(any) error { return errWire })

	if !h.Send("x") {
		t.Fatal("Send reports whether a sender ran, not whether it succeeded")
	}
	if err := h.SendStrict("x"); !errors.Is(err, errWire) {
		t.Fatalf("expected wrapped errWire, got %v", err)
	}
}

func TestSetSender_Notifications(t *testing.T) {
	h := newTestHub()
	var got []SenderStatus
	h.Subscribe(TopicSender, func(p any) { got = append(got, p.(SenderStatus)) })

	h.SetSender(func(any) error { return nil })
	h.SetSender(nil)

	if len(got) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(got))
	}
	if !got[0].Ready || got[1].Ready {
		t.Fatalf("expected [ready=true ready=false], got %+v", got)
	}
}

func TestSetSender_ReadyVisibleToListeners(t *testing.T) {
	h := newTestHub()
	var readyInListener bool
	h.Subscribe(TopicSender, func(any) { readyInListener = h.IsReady() })

	h.SetSender(func(any) error { return nil })

	if !readyInListener {
		t.Fatal("sender should be installed before the notification fires")
	}
}
