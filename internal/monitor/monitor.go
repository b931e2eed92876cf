// Package monitor re-implements, over plain goroutines and channels, the
// liveness-monitoring primitive the registrar depends on: install a watch on
// something that might die, get a single Down notification when it does,
// and be able to cancel the watch before that happens.
package monitor

import "sync"

// Handle identifies one installed watch. The zero Handle never refers to a
// real watch, so it doubles as the "no handle" sentinel for local-only
// binding fields.
type Handle uint64

// Watchable is anything that can be monitored: it must close Done when it
// terminates, exactly once, and never before.
type Watchable interface {
	Done() <-chan struct{}
}

// Down is delivered exactly once per Handle, either because the watched
// Watchable terminated or — never, for a Demonitor — because it was
// cancelled first.
type Down struct {
	Handle Handle
}

// Monitor hands out Handles for Watchables and posts Down notifications to
// a single output channel, mirroring a mailbox's single consumer.
type Monitor struct {
	out chan<- Down

	mu      sync.Mutex
	next    Handle
	pending map[Handle]chan struct{} // closed by Demonitor to stop the watcher goroutine
}

// New creates a Monitor that posts every Down to out. out is typically the
// registrar's own mailbox-feeder channel; the caller owns it and must keep
// draining it for the lifetime of the Monitor.
func New(out chan<- Down) *Monitor {
	return &Monitor{out: out, pending: make(map[Handle]chan struct{})}
}

// Monitor installs a watch on w and returns a Handle identifying it. When w
// terminates, a Down carrying this Handle is sent to the Monitor's output
// channel — unless Demonitor(handle) was called first.
func (m *Monitor) Monitor(w Watchable) Handle {
	m.mu.Lock()
	m.next++
	h := m.next
	cancel := make(chan struct{})
	m.pending[h] = cancel
	m.mu.Unlock()

	go m.watch(h, w, cancel)
	return h
}

func (m *Monitor) watch(h Handle, w Watchable, cancel chan struct{}) {
	select {
	case <-w.Done():
		m.mu.Lock()
		_, stillPending := m.pending[h]
		delete(m.pending, h)
		m.mu.Unlock()
		if stillPending {
			m.out <- Down{Handle: h}
		}
	case <-cancel:
	}
}

// Demonitor cancels a previously installed watch. No Down will be posted
// for it, even if w has already terminated and the watcher goroutine simply
// hasn't observed it yet — the race is resolved in Demonitor's favor.
func (m *Monitor) Demonitor(h Handle) {
	m.mu.Lock()
	cancel, ok := m.pending[h]
	if ok {
		delete(m.pending, h)
	}
	m.mu.Unlock()
	if ok {
		close(cancel)
	}
}
