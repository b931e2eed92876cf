package registry

import (
	"context"
	"log"
	"testing"
	"time"
)

func newTestRegistrar(t *testing.T, net *fakeNet, node NodeID) (*Registrar, context.CancelFunc) {
	t.Helper()
	cluster := net.join(node)
	logger := log.New(testWriter{t}, "", 0)
	r := New(cluster, logger)
	ctx, cancel := context.WithCancel(context.Background())
	go r.Run(ctx)
	return r, cancel
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Logf("%s", p)
	return len(p), nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met before deadline")
	}
}

func TestRegisterWhereIsUnregister(t *testing.T) {
	net := newFakeNet()
	a, cancel := newTestRegistrar(t, net, "a")
	defer cancel()

	p := newFakePrincipal("p1")
	if ok := a.Register("x", p); !ok {
		t.Fatalf("register: want yes")
	}
	got, err := a.WhereIs("x")
	if err != nil {
		t.Fatalf("whereis: %v", err)
	}
	if got.ID != "p1" || got.HomeNode != "a" {
		t.Fatalf("whereis: got %+v", got)
	}

	a.Unregister("x")
	if _, err := a.WhereIs("x"); err != ErrAbsent {
		t.Fatalf("whereis after unregister: got %v, want ErrAbsent", err)
	}
}

func TestRegisterDuplicateRejected(t *testing.T) {
	net := newFakeNet()
	a, cancel := newTestRegistrar(t, net, "a")
	defer cancel()

	if ok := a.Register("x", newFakePrincipal("p1")); !ok {
		t.Fatalf("first register: want yes")
	}
	if ok := a.Register("x", newFakePrincipal("p2")); ok {
		t.Fatalf("second register: want no")
	}
	got, _ := a.WhereIs("x")
	if got.ID != "p1" {
		t.Fatalf("state changed on rejected register: got %+v", got)
	}
}

// S1 — propagation.
func TestScenarioPropagation(t *testing.T) {
	net := newFakeNet()
	a, cancelA := newTestRegistrar(t, net, "a")
	b, cancelB := newTestRegistrar(t, net, "b")
	c, cancelC := newTestRegistrar(t, net, "c")
	defer cancelA()
	defer cancelB()
	defer cancelC()

	net.connect("a", "b")
	net.connect("a", "c")

	if ok := a.Register("x", newFakePrincipal("Pa")); !ok {
		t.Fatalf("a.register: want yes")
	}

	waitFor(t, func() bool {
		p, err := b.WhereIs("x")
		return err == nil && p.ID == "Pa" && p.HomeNode == "a"
	})
	waitFor(t, func() bool {
		p, err := c.WhereIs("x")
		return err == nil && p.ID == "Pa" && p.HomeNode == "a"
	})
}

// S2 — metadata update, and rejection of a non-home-node set_meta.
func TestScenarioMetaUpdate(t *testing.T) {
	net := newFakeNet()
	a, cancelA := newTestRegistrar(t, net, "a")
	b, cancelB := newTestRegistrar(t, net, "b")
	defer cancelA()
	defer cancelB()

	net.connect("a", "b")
	a.Register("x", newFakePrincipal("Pa"))
	waitFor(t, func() bool { return b.Table().Exists("x") })

	if err := a.SetMeta("x", Meta{"k": "1"}); err != nil {
		t.Fatalf("a.SetMeta: %v", err)
	}
	waitFor(t, func() bool {
		bd, ok := b.Table().Get("x")
		return ok && bd.Meta["k"] == "1"
	})

	if err := b.SetMeta("x", Meta{"k": "2"}); err != ErrNotOwner {
		t.Fatalf("b.SetMeta on foreign name: got %v, want ErrNotOwner", err)
	}
	bd, _ := b.Table().Get("x")
	if bd.Meta["k"] != "1" {
		t.Fatalf("meta changed by non-owner: got %+v", bd.Meta)
	}
}

// S3 — late joiner receives full state via sync handshake.
func TestScenarioLateJoiner(t *testing.T) {
	net := newFakeNet()
	a, cancelA := newTestRegistrar(t, net, "a")
	_, cancelB := newTestRegistrar(t, net, "b")
	c, cancelC := newTestRegistrar(t, net, "c")
	defer cancelA()
	defer cancelB()
	defer cancelC()

	net.connect("a", "b")
	a.Register("x", newFakePrincipal("Pa"))

	net.connect("c", "a")

	waitFor(t, func() bool {
		p, err := c.WhereIs("x")
		return err == nil && p.ID == "Pa"
	})
}

// S4 — local principal failure propagates as an unregister.
func TestScenarioPrincipalFailure(t *testing.T) {
	net := newFakeNet()
	a, cancelA := newTestRegistrar(t, net, "a")
	b, cancelB := newTestRegistrar(t, net, "b")
	defer cancelA()
	defer cancelB()

	net.connect("a", "b")
	pa := newFakePrincipal("Pa")
	a.Register("x", pa)
	waitFor(t, func() bool { return b.Table().Exists("x") })

	pa.Terminate("test")

	waitFor(t, func() bool { _, err := a.WhereIs("x"); return err == ErrAbsent })
	waitFor(t, func() bool { _, err := b.WhereIs("x"); return err == ErrAbsent })
}

// S5 — peer registrar failure purges its bindings, leaving the peer's own
// table untouched.
func TestScenarioPeerFailure(t *testing.T) {
	net := newFakeNet()
	a, cancelA := newTestRegistrar(t, net, "a")
	b, cancelB := newTestRegistrar(t, net, "b")
	defer cancelA()
	defer cancelB()

	net.connect("a", "b")
	a.Register("x", newFakePrincipal("Pa"))
	waitFor(t, func() bool { return b.Table().Exists("x") })

	net.failPeer("b", "a")

	waitFor(t, func() bool { _, err := b.WhereIs("x"); return err == ErrAbsent })
	if _, err := a.WhereIs("x"); err != nil {
		t.Fatalf("a's own table should be unaffected by b observing it down: %v", err)
	}
}

// S6 — clash resolution: the lower node identity wins, and the losing
// local principal is terminated.
func TestScenarioClashResolution(t *testing.T) {
	net := newFakeNet()
	a, cancelA := newTestRegistrar(t, net, "a")
	c, cancelC := newTestRegistrar(t, net, "c")
	defer cancelA()
	defer cancelC()

	pc := newFakePrincipal("Pc")
	if ok := c.Register("x", pc); !ok {
		t.Fatalf("c.register: want yes")
	}
	pa := newFakePrincipal("Pa")
	if ok := a.Register("x", pa); !ok {
		t.Fatalf("a.register: want yes")
	}

	net.connect("a", "c")

	waitFor(t, func() bool {
		p, err := a.WhereIs("x")
		return err == nil && p.HomeNode == "a"
	})
	waitFor(t, func() bool {
		p, err := c.WhereIs("x")
		return err == nil && p.HomeNode == "a"
	})
	waitFor(t, func() bool { return pc.isTerminated() })
	if pa.isTerminated() {
		t.Fatalf("winning principal must not be terminated")
	}
}
