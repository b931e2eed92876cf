package registry

// MembershipKind distinguishes the two cluster membership events the
// registrar reacts to.
type MembershipKind int

const (
	NodeUp MembershipKind = iota
	NodeDown
)

// MembershipEvent is delivered whenever the cluster transport opens or
// closes a peer link.
type MembershipEvent struct {
	Kind MembershipKind
	Node NodeID
}

// InboundFrame is one wire Envelope as received from a peer, together with
// the node the transport attributes it to (which may differ from
// Envelope.From for a misbehaving or stale peer — the registrar checks
// both against the peer set).
type InboundFrame struct {
	From    NodeID
	Payload []byte
}

// Cluster is the pluggable cluster-transport collaborator the spec
// describes as out of scope: delivery of node-up/node-down membership
// events, ordered per-peer-pair message delivery to the registrar's
// well-known endpoint, and the deterministic node total order clash
// resolution relies on. See SPEC_FULL.md §4 for the concrete
// implementation wired in (internal/transport/wsconn).
type Cluster interface {
	// LocalNodeIdentity is this node's own identity.
	LocalNodeIdentity() NodeID

	// NodeTotalOrder returns <0, 0 or >0 as a sorts before, equals, or
	// sorts after b, using the same total order clash resolution requires.
	NodeTotalOrder(a, b NodeID) int

	// SendTo delivers payload to node's registrar endpoint. Delivery is
	// best-effort but ordered relative to other SendTo calls to the same
	// node; SendTo itself never blocks on acknowledgement.
	SendTo(node NodeID, payload []byte) error

	// SubscribeMembership returns the channel of node-up/node-down events.
	// Called once; the returned channel lives for the Cluster's lifetime.
	SubscribeMembership() <-chan MembershipEvent

	// Inbound returns the channel of frames received from any peer. Called
	// once; the returned channel lives for the Cluster's lifetime.
	Inbound() <-chan InboundFrame

	// WatchPeer returns a channel that closes when the link to node is
	// lost, realizing the "liveness handle on a remote registrar's
	// principal" from the data model. It must only be called once a peer
	// has been added to the peer set (post sync-handshake).
	WatchPeer(node NodeID) (<-chan struct{}, error)
}
