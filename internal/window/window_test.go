package window

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/crystaldolphin/busbridge/internal/loop"
)

func newTestLoop() *loop.Loop {
	return loop.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		target, origin string
		want           bool
	}{
		{"*", "https://a.test", true},
		{"https://a.test", "https://a.test", true},
		{"https://a.test", "https://b.test", false},
		{"https://a.test:8443", "https://a.test", false},
	}
	for _, tt := range tests {
		if got := MatchOrigin(tt.target, tt.origin); got != tt.want {
			t.Errorf("MatchOrigin(%q, %q) = %v, want %v", tt.target, tt.origin, got, tt.want)
		}
	}
}

func TestRealm_PostMessage(t *testing.T) {
	l := newTestLoop()
	host := NewRealm("https://host.test", l)
	frame := NewRealm("https://frame.test", l)

	var got []MessageEvent
	frame.AddMessageListener(func(ev MessageEvent) { got = append(got, ev) })

	w := frame.WindowFrom(host)
	if err := w.PostMessage("hello", "https://frame.test"); err != nil {
		t.Fatalf("PostMessage: %v", err)
	}
	if len(got) != 0 {
		t.Fatal("delivery should be asynchronous")
	}
	l.Drain()

	if len(got) != 1 {
		t.Fatalf("expected 1 event, got %d", len(got))
	}
	if got[0].Data != "hello" || got[0].Origin != "https://host.test" {
		t.Fatalf("unexpected event %+v", got[0])
	}

	// Reply through Source lands back on the host.
	var reply any
	host.AddMessageListener(func(ev MessageEvent) { reply = ev.Data })
	if err := got[0].Source.PostMessage("back", AnyOrigin); err != nil {
		t.Fatalf("reply: %v", err)
	}
	l.Drain()
	if reply != "back" {
		t.Fatalf("expected reply, got %v", reply)
	}
}

func TestRealm_OriginMismatch(t *testing.T) {
	l := newTestLoop()
	host := NewRealm("https://host.test", l)
	frame := NewRealm("https://frame.test", l)
	called := false
	frame.AddMessageListener(func(MessageEvent) { called = true })

	err := frame.WindowFrom(host).PostMessage("x", "https://evil.test")
	if !errors.Is(err, ErrOriginMismatch) {
		t.Fatalf("expected ErrOriginMismatch, got %v", err)
	}
	l.Drain()
	if called {
		t.Fatal("mismatched post was delivered")
	}
}

func TestRealm_RemoveListener(t *testing.T) {
	l := newTestLoop()
	r := NewRealm("https://a.test", l)
	remove := r.AddMessageListener(func(MessageEvent) { t.Error("removed listener ran") })
	remove()
	remove()

	if r.ListenerCount() != 0 {
		t.Fatalf("expected no listeners, got %d", r.ListenerCount())
	}
	_ = r.WindowFrom(nil).PostMessage("x", AnyOrigin)
	l.Drain()
}

func TestPort_QueuesUntilHandlerSet(t *testing.T) {
	l := newTestLoop()
	a, b := NewChannel(l)

	_ = a.PostMessage(1)
	_ = a.PostMessage(2)
	l.Drain()

	var got []any
	b.SetOnMessage(func(d any) { got = append(got, d) })
	_ = a.PostMessage(3)
	l.Drain()

	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("expected [1 2 3] in order, got %v", got)
	}
}

func TestPort_Close(t *testing.T) {
	l := newTestLoop()
	a, b := NewChannel(l)
	peerClosed := false
	b.SetOnClose(func() { peerClosed = true })
	b.SetOnMessage(func(any) { t.Error("message delivered after close") })

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := a.PostMessage("x"); !errors.Is(err, ErrPortClosed) {
		t.Fatalf("expected ErrPortClosed, got %v", err)
	}
	// The other end is disentangled: posts are dropped, not errors.
	if err := b.PostMessage("y"); err != nil {
		t.Fatalf("post on disentangled port: %v", err)
	}
	l.Drain()

	if !peerClosed {
		t.Fatal("expected close notification on the entangled end")
	}
	if !a.Closed() || b.Closed() {
		t.Fatalf("Closed() = %v/%v, want true/false", a.Closed(), b.Closed())
	}
}
