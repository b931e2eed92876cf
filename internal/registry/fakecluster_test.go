package registry

import (
	"strings"
	"sync"
)

// fakeNet wires multiple in-process registrars together for tests, playing
// the role the spec assigns to the cluster transport: membership events,
// ordered per-peer delivery, and the node total order.
type fakeNet struct {
	mu    sync.Mutex
	nodes map[NodeID]*fakeCluster
}

func newFakeNet() *fakeNet {
	return &fakeNet{nodes: make(map[NodeID]*fakeCluster)}
}

func (n *fakeNet) join(self NodeID) *fakeCluster {
	c := &fakeCluster{
		self:       self,
		net:        n,
		membership: make(chan MembershipEvent, 64),
		inbound:    make(chan InboundFrame, 256),
		links:      make(map[NodeID]chan struct{}),
		connected:  make(map[NodeID]bool),
	}
	n.mu.Lock()
	n.nodes[self] = c
	n.mu.Unlock()
	return c
}

// connect makes a and b mutual peers and delivers node-up to both.
func (n *fakeNet) connect(a, b NodeID) {
	n.mu.Lock()
	ca, cb := n.nodes[a], n.nodes[b]
	n.mu.Unlock()

	ca.mu.Lock()
	ca.connected[b] = true
	ca.mu.Unlock()
	cb.mu.Lock()
	cb.connected[a] = true
	cb.mu.Unlock()

	ca.membership <- MembershipEvent{Kind: NodeUp, Node: b}
	cb.membership <- MembershipEvent{Kind: NodeUp, Node: a}
}

// failPeer simulates observer seeing failed's registrar link go down: the
// observer's link to failed is cut, and the WatchPeer channel the observer
// installed on failed closes.
func (n *fakeNet) failPeer(observer, failed NodeID) {
	n.mu.Lock()
	co := n.nodes[observer]
	n.mu.Unlock()

	co.mu.Lock()
	co.connected[failed] = false
	ch, ok := co.links[failed]
	co.mu.Unlock()
	if ok {
		close(ch)
	}
}

type fakeCluster struct {
	self NodeID
	net  *fakeNet

	membership chan MembershipEvent
	inbound    chan InboundFrame

	mu        sync.Mutex
	links     map[NodeID]chan struct{}
	connected map[NodeID]bool
}

func (c *fakeCluster) LocalNodeIdentity() NodeID { return c.self }

func (c *fakeCluster) NodeTotalOrder(a, b NodeID) int {
	return strings.Compare(string(a), string(b))
}

func (c *fakeCluster) SendTo(node NodeID, payload []byte) error {
	c.mu.Lock()
	ok := c.connected[node]
	c.mu.Unlock()
	if !ok {
		return nil
	}
	c.net.mu.Lock()
	dst := c.net.nodes[node]
	c.net.mu.Unlock()
	if dst == nil {
		return nil
	}
	dst.inbound <- InboundFrame{From: c.self, Payload: payload}
	return nil
}

func (c *fakeCluster) SubscribeMembership() <-chan MembershipEvent { return c.membership }
func (c *fakeCluster) Inbound() <-chan InboundFrame                { return c.inbound }

func (c *fakeCluster) WatchPeer(node NodeID) (<-chan struct{}, error) {
	ch := make(chan struct{})
	c.mu.Lock()
	c.links[node] = ch
	c.mu.Unlock()
	return ch, nil
}

// fakePrincipal is a LocalPrincipal test double: a cooperative "process"
// that can be asked to terminate.
type fakePrincipal struct {
	id string

	mu         sync.Mutex
	done       chan struct{}
	terminated bool
	reason     string
}

func newFakePrincipal(id string) *fakePrincipal {
	return &fakePrincipal{id: id, done: make(chan struct{})}
}

func (p *fakePrincipal) Identity() string        { return p.id }
func (p *fakePrincipal) Done() <-chan struct{}    { return p.done }

func (p *fakePrincipal) Terminate(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.terminated {
		return
	}
	p.terminated = true
	p.reason = reason
	close(p.done)
}

func (p *fakePrincipal) isTerminated() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated
}
