// Package registry implements the per-node registrar: the local binding
// table, the serialized mutation API, inbound peer notification handling,
// clash resolution, bulk sync, and liveness/DOWN bookkeeping described by
// the spec. It is the core of the distributed name registry.
package registry

import (
	"context"
	"log"

	"regnode/internal/monitor"
)

// Registrar is the single-consumer actor that owns the table's writes, the
// peer set, and the local-principal monitor table. All mutation traffic —
// local API calls, inbound peer notifications, and liveness events — is
// funneled through its mailbox and processed strictly one at a time.
type Registrar struct {
	self    NodeID
	cluster Cluster
	table   *Table
	mon     *monitor.Monitor

	mailbox   chan mailMsg
	downFeed  chan monitor.Down
	peers     map[NodeID]monitor.Handle
	peerNodes map[monitor.Handle]NodeID
	locals    map[monitor.Handle]LocalPrincipal

	logger  *log.Logger
	observe func(kind string, name Name, node NodeID)
}

// SetObserver installs a hook called after register, unregister, meta and
// clash events for observability purposes — e.g. internal/wsevents' live
// admin stream. The bulk purge of a dead peer's bindings is not reported.
// The hook is called synchronously on the registrar's own goroutine while it
// handles a mailbox message, so it must not block or call back into the
// Registrar.
func (r *Registrar) SetObserver(fn func(kind string, name Name, node NodeID)) {
	r.observe = fn
}

func (r *Registrar) emit(kind string, name Name, node NodeID) {
	if r.observe != nil {
		r.observe(kind, name, node)
	}
}

// New creates a Registrar for this node. Call Run to start processing.
func New(cluster Cluster, logger *log.Logger) *Registrar {
	if logger == nil {
		logger = log.Default()
	}
	r := &Registrar{
		self:      cluster.LocalNodeIdentity(),
		cluster:   cluster,
		table:     NewTable(),
		mailbox:   make(chan mailMsg, 64),
		downFeed:  make(chan monitor.Down, 64),
		peers:     make(map[NodeID]monitor.Handle),
		peerNodes: make(map[monitor.Handle]NodeID),
		locals:    make(map[monitor.Handle]LocalPrincipal),
		logger:    logger,
	}
	r.mon = monitor.New(r.downFeed)
	return r
}

// Table exposes the read path. Reads never go through the mailbox.
func (r *Registrar) Table() *Table { return r.table }

// Self returns this registrar's node identity.
func (r *Registrar) Self() NodeID { return r.self }

// Run drives the registrar's mailbox until ctx is cancelled. It forwards
// the Cluster's membership and inbound channels, and the monitor's Down
// channel, into a single mailbox so every message the registrar acts on is
// linearized through one select loop.
func (r *Registrar) Run(ctx context.Context) {
	membership := r.cluster.SubscribeMembership()
	inbound := r.cluster.Inbound()

	go r.forward(ctx, membership, inbound)

	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-r.mailbox:
			r.dispatch(msg)
		}
	}
}

func (r *Registrar) forward(ctx context.Context, membership <-chan MembershipEvent, inbound <-chan InboundFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-membership:
			r.post(membershipMsg{ev})
		case frame := <-inbound:
			r.post(inboundMsg{frame})
		case d := <-r.downFeed:
			r.post(downMsg{d.Handle})
		}
	}
}

func (r *Registrar) post(msg mailMsg) { r.mailbox <- msg }

// mailMsg is the tagged union of everything the registrar's mailbox
// carries.
type mailMsg interface{ isMailMsg() }

type registerReq struct {
	name      Name
	principal LocalPrincipal
	reply     chan bool
}

type unregisterReq struct {
	name  Name
	reply chan struct{}
}

type setMetaReq struct {
	name  Name
	meta  Meta
	reply chan error
}

type membershipMsg struct{ ev MembershipEvent }
type inboundMsg struct{ frame InboundFrame }
type downMsg struct{ handle monitor.Handle }

func (registerReq) isMailMsg()   {}
func (unregisterReq) isMailMsg() {}
func (setMetaReq) isMailMsg()    {}
func (membershipMsg) isMailMsg() {}
func (inboundMsg) isMailMsg()    {}
func (downMsg) isMailMsg()       {}

func (r *Registrar) dispatch(msg mailMsg) {
	switch m := msg.(type) {
	case registerReq:
		m.reply <- r.handleRegister(m.name, m.principal)
	case unregisterReq:
		r.handleUnregister(m.name)
		close(m.reply)
	case setMetaReq:
		m.reply <- r.handleSetMeta(m.name, m.meta)
	case membershipMsg:
		r.handleMembership(m.ev)
	case inboundMsg:
		r.handleInbound(m.frame)
	case downMsg:
		r.handleDown(m.handle)
	}
}

// --- §4.2 Mutation API -----------------------------------------------------

// Register installs name -> principal as a local binding, iff principal is
// local to this node and name is free. Blocks until the registrar has
// processed the request.
func (r *Registrar) Register(name Name, principal LocalPrincipal) bool {
	reply := make(chan bool, 1)
	r.post(registerReq{name: name, principal: principal, reply: reply})
	return <-reply
}

// Unregister drops the local binding at name, if any. Always reports ok.
func (r *Registrar) Unregister(name Name) {
	reply := make(chan struct{})
	r.post(unregisterReq{name: name, reply: reply})
	<-reply
}

// SetMeta overwrites the meta on the local binding at name. Returns
// ErrNotOwner if name is bound to a principal not local to this node; nil
// (ok, no-op) if name has no binding at all.
func (r *Registrar) SetMeta(name Name, meta Meta) error {
	reply := make(chan error, 1)
	r.post(setMetaReq{name: name, meta: meta, reply: reply})
	return <-reply
}

func (r *Registrar) handleRegister(name Name, principal LocalPrincipal) bool {
	if r.table.Exists(name) {
		return false
	}
	handle := r.mon.Monitor(principal)
	ref := PrincipalRef{HomeNode: r.self, ID: principal.Identity()}
	r.table.Insert(Binding{Name: name, Principal: ref, Local: true, Handle: handle, Meta: Meta{}})
	r.locals[handle] = principal
	r.broadcast(registerNotifyEnvelope(r.self, name, ref))
	r.emit("register", name, r.self)
	return true
}

func (r *Registrar) handleUnregister(name Name) {
	b, ok := r.table.Get(name)
	if !ok || !b.Local {
		return
	}
	r.demonitorLocal(b.Handle)
	r.table.Delete(name)
	r.broadcast(unregisterNotifyEnvelope(r.self, name))
	r.emit("unregister", name, r.self)
}

func (r *Registrar) handleSetMeta(name Name, meta Meta) error {
	b, ok := r.table.Get(name)
	if !ok {
		return nil
	}
	if !b.Local {
		return ErrNotOwner
	}
	r.table.UpdateMeta(name, meta.Clone())
	r.broadcast(addMetaNotifyEnvelope(r.self, name, meta))
	r.emit("meta", name, r.self)
	return nil
}

func (r *Registrar) demonitorLocal(h monitor.Handle) {
	r.mon.Demonitor(h)
	delete(r.locals, h)
}

// --- §4.3 Inbound peer notifications ---------------------------------------

func (r *Registrar) handleInbound(frame InboundFrame) {
	env, err := DecodeEnvelope(frame.Payload)
	if err != nil {
		r.logger.Printf("registrar: dropping malformed frame from %s: %v", frame.From, err)
		return
	}
	if env.From != frame.From {
		r.logger.Printf("registrar: dropping frame claiming from=%s on link from %s", env.From, frame.From)
		return
	}

	// sync_req/sync_resp are how a peer enters the peer set in the first
	// place (§4.5), so they must bypass the stranger check below. Every
	// other message kind only ever arrives legitimately from an
	// already-peered node; one from a stranger is logged and dropped so a
	// stray late message from a disconnected peer can't re-corrupt state
	// before its DOWN is processed (§4.3).
	if env.Kind != KindSyncReq && env.Kind != KindSyncResp {
		if _, known := r.peers[frame.From]; !known {
			r.logger.Printf("registrar: dropping %s from unknown peer %s", env.Kind, frame.From)
			return
		}
	}

	switch env.Kind {
	case KindRegisterNotify:
		r.registerNotify(env.From, env.Name, env.Principal, nil)
	case KindUnregisterNotify:
		r.unregisterNotify(env.From, env.Name)
	case KindAddMetaNotify:
		r.addMetaNotify(env.From, env.Name, env.Meta)
	case KindSyncReq:
		r.syncReq(env.From)
	case KindSyncResp:
		r.syncResp(env.From, env.Entries)
	default:
		r.logger.Printf("registrar: dropping unknown message kind %q from %s", env.Kind, env.From)
	}
}

func (r *Registrar) registerNotify(from NodeID, name Name, principal PrincipalRef, meta Meta) {
	existing, ok := r.table.Get(name)
	if !ok {
		m := meta
		if m == nil {
			m = Meta{}
		}
		r.table.Insert(Binding{Name: name, Principal: principal, Local: false, Meta: m})
		r.emit("register", name, from)
		return
	}
	if existing.Principal.Equal(principal) {
		return
	}
	r.resolveClash(existing, Binding{Name: name, Principal: principal, Local: false, Meta: meta})
}

func (r *Registrar) unregisterNotify(from NodeID, name Name) {
	b, ok := r.table.Get(name)
	if !ok || b.Local || b.Principal.HomeNode != from {
		return
	}
	r.table.Delete(name)
	r.emit("unregister", name, from)
}

func (r *Registrar) addMetaNotify(from NodeID, name Name, meta Meta) {
	b, ok := r.table.Get(name)
	if !ok || b.Local || b.Principal.HomeNode != from {
		return
	}
	r.table.UpdateMeta(name, meta.Clone())
	r.emit("meta", name, from)
}

// --- §4.4 Clash resolution ---------------------------------------------------

// resolveClash applies the deterministic total order to a register_notify
// whose name already has a binding with a different principal. old is the
// current binding, incoming the one just received.
func (r *Registrar) resolveClash(old Binding, incoming Binding) {
	nNew := incoming.Principal.HomeNode
	nOld := old.Principal.HomeNode
	if r.cluster.NodeTotalOrder(nNew, nOld) >= 0 {
		// incoming does not win; the winning side is expected to reach the
		// same verdict and broadcast its own notification.
		return
	}

	meta := incoming.Meta
	if meta == nil {
		meta = Meta{}
	}
	r.table.Replace(Binding{Name: incoming.Name, Principal: incoming.Principal, Local: false, Meta: meta})
	r.emit("clash", incoming.Name, nNew)

	if old.Local {
		// The losing side is our own local principal. The binding was
		// overwritten above, and Replace dropped its reverse-index entry;
		// releasing the principal itself is left to the DOWN for
		// old.Handle, which handleDown processes without a reverse entry.
		if target, ok := r.locals[old.Handle]; ok {
			target.Terminate("name clash: lost to " + string(nNew))
		}
	}
}

// --- §4.5 Bulk synchronization ------------------------------------------------

func (r *Registrar) syncReq(from NodeID) {
	entries := r.localSyncEntries()
	_ = r.cluster.SendTo(from, mustEncode(syncRespEnvelope(r.self, entries)))

	if _, known := r.peers[from]; !known {
		r.addPeer(from)
		_ = r.cluster.SendTo(from, mustEncode(syncReqEnvelope(r.self)))
	}
}

func (r *Registrar) syncResp(from NodeID, entries []SyncEntry) {
	for _, e := range entries {
		r.registerNotify(from, e.Name, e.Principal, e.Meta)
	}
	if _, known := r.peers[from]; !known {
		r.addPeer(from)
	}
}

func (r *Registrar) localSyncEntries() []SyncEntry {
	bindings := r.table.Enumerate(func(b Binding) bool { return b.Local })
	out := make([]SyncEntry, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, SyncEntry{Name: b.Name, Principal: b.Principal, Meta: b.Meta})
	}
	return out
}

func (r *Registrar) addPeer(node NodeID) {
	down, err := r.cluster.WatchPeer(node)
	if err != nil {
		r.logger.Printf("registrar: could not watch peer %s: %v", node, err)
		return
	}
	handle := r.mon.Monitor(peerWatch{down})
	r.peers[node] = handle
	r.peerNodes[handle] = node
}

// --- §4.6 Liveness and DOWN handling -----------------------------------------

func (r *Registrar) handleDown(h monitor.Handle) {
	if name, ok := r.table.ByHandle(h); ok {
		r.localPrincipalDown(h, name)
		return
	}
	if node, ok := r.peerNodes[h]; ok {
		r.peerDown(h, node)
		return
	}
	// No reverse entry and not a peer: either the handle was already
	// demonitored (e.g. raced with Unregister), or clash resolution
	// overwrote its binding and dropped the reverse entry. Release the
	// terminated principal, if it is still held.
	delete(r.locals, h)
}

func (r *Registrar) localPrincipalDown(h monitor.Handle, name Name) {
	delete(r.locals, h)
	b, ok := r.table.Get(name)
	if !ok || b.Handle != h {
		// Clash overwrote or removed the binding already; nothing left to
		// clean up.
		return
	}
	r.table.Delete(name)
	r.broadcast(unregisterNotifyEnvelope(r.self, name))
	r.emit("unregister", name, r.self)
}

func (r *Registrar) peerDown(h monitor.Handle, node NodeID) {
	delete(r.peers, node)
	delete(r.peerNodes, h)
	r.table.DeleteWhere(func(b Binding) bool { return !b.Local && b.Principal.HomeNode == node })
}

func (r *Registrar) handleMembership(ev MembershipEvent) {
	switch ev.Kind {
	case NodeUp:
		_ = r.cluster.SendTo(ev.Node, mustEncode(syncReqEnvelope(r.self)))
	case NodeDown:
		// No action: the peer-registrar DOWN delivered via WatchPeer
		// performs the actual cleanup. Acting here too would double-
		// schedule it and open a race window.
	}
}

// --- glue --------------------------------------------------------------------

func (r *Registrar) broadcast(env Envelope) {
	payload := mustEncode(env)
	for node := range r.peers {
		_ = r.cluster.SendTo(node, payload)
	}
}

func mustEncode(env Envelope) []byte {
	b, err := EncodeEnvelope(env)
	if err != nil {
		// Envelope only ever contains JSON-marshalable fields; a failure
		// here means a programming error, not a runtime condition.
		panic(err)
	}
	return b
}

// peerWatch adapts a WatchPeer channel to monitor.Watchable.
type peerWatch struct{ done <-chan struct{} }

func (p peerWatch) Done() <-chan struct{} { return p.done }
