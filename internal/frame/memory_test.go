package frame

import (
	"io"
	"log/slog"
	"testing"

	"github.com/crystaldolphin/busbridge/internal/loop"
)

func newLoop() *loop.Loop {
	return loop.New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestMemoryFrame_ManualLoad(t *testing.T) {
	l := newLoop()
	doc := NewMemoryDocument("https://host.test/app/", l, nil)
	f := doc.CreateFrame().(*MemoryFrame)
	loads := 0
	f.OnLoad(func() { loads++ })

	f.SetSrc("/frame.html")
	doc.Body().AppendChild(f)
	l.Drain()
	if loads != 0 || f.ContentWindow() != nil {
		t.Fatal("frame without an App should only load on demand")
	}

	realm := f.Load()
	if realm.Origin() != "https://host.test" {
		t.Errorf("origin = %q", realm.Origin())
	}
	if loads != 1 || f.ContentWindow() == nil || f.Parent() == nil {
		t.Fatal("Load should fire listeners and expose the content window")
	}

	doc.Body().RemoveChild(f)
	if f.Attached() || f.ContentWindow() != nil {
		t.Fatal("detaching should unload the frame")
	}
}

func TestMemoryFrame_AutoLoad(t *testing.T) {
	l := newLoop()
	var ran []string
	doc := NewMemoryDocument("https://host.test/", l, func(f *MemoryFrame) {
		ran = append(ran, f.Src())
	})
	f := doc.CreateFrame().(*MemoryFrame)

	f.SetSrc("https://a.test/")
	l.Drain()
	if len(ran) != 0 {
		t.Fatal("detached frames must not load")
	}

	doc.Body().AppendChild(f)
	// Navigating again before the scheduled load runs supersedes it.
	f.SetSrc("https://b.test/")
	l.Drain()

	if len(ran) != 1 || ran[0] != "https://b.test/" {
		t.Fatalf("expected a single load of the latest src, got %v", ran)
	}
	if f.Loads() != 1 || f.Navigations() != 2 {
		t.Fatalf("loads=%d navigations=%d", f.Loads(), f.Navigations())
	}
	if got := f.Realm().Origin(); got != "https://b.test" {
		t.Errorf("origin = %q", got)
	}
}

func TestMemoryFrame_OnLoadRemove(t *testing.T) {
	doc := NewMemoryDocument("https://host.test/", newLoop(), nil)
	f := doc.CreateFrame().(*MemoryFrame)
	n := 0
	remove := f.OnLoad(func() { n++ })
	f.SetSrc("/x")
	f.Load()
	remove()
	f.Load()
	if n != 1 {
		t.Fatalf("expected 1 call, got %d", n)
	}
}
