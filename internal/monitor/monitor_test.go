package monitor

import (
	"testing"
	"time"
)

type fakeWatchable struct{ done chan struct{} }

func (f fakeWatchable) Done() <-chan struct{} { return f.done }

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met before deadline")
	}
}

func TestMonitorDeliversDownOnTermination(t *testing.T) {
	out := make(chan Down, 1)
	m := New(out)
	w := fakeWatchable{done: make(chan struct{})}
	h := m.Monitor(w)

	close(w.done)

	waitFor(t, func() bool {
		select {
		case d := <-out:
			return d.Handle == h
		default:
			return false
		}
	})
}

func TestDemonitorSuppressesDown(t *testing.T) {
	out := make(chan Down, 1)
	m := New(out)
	w := fakeWatchable{done: make(chan struct{})}
	h := m.Monitor(w)
	m.Demonitor(h)
	close(w.done)

	select {
	case d := <-out:
		t.Fatalf("unexpected Down after Demonitor: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHandlesAreDistinct(t *testing.T) {
	out := make(chan Down, 2)
	m := New(out)
	h1 := m.Monitor(fakeWatchable{done: make(chan struct{})})
	h2 := m.Monitor(fakeWatchable{done: make(chan struct{})})
	if h1 == h2 {
		t.Fatalf("expected distinct handles, got %v and %v", h1, h2)
	}
}
