package registry

import (
	"sort"

	"regnode/internal/monitor"
)

// NodeID identifies a node (and therefore a registrar) in the cluster. It
// doubles as the identity used for clash resolution's total order, so two
// NodeIDs compare lexicographically as plain strings.
type NodeID string

// Name identifies a binding. It is opaque to the registry; callers choose
// whatever encoding suits their principals.
type Name string

// Meta is an opaque bag of attributes attached to a binding.
type Meta map[string]string

// Clone returns a shallow copy so callers holding a Meta from an
// enumeration cannot mutate the registry's internal copy.
func (m Meta) Clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// PrincipalRef is the wire- and table-level representation of a principal:
// an opaque identity plus the node it lives on. Two PrincipalRefs are the
// same principal iff both fields match.
type PrincipalRef struct {
	HomeNode NodeID
	ID       string
}

// Equal reports whether p and o name the same principal.
func (p PrincipalRef) Equal(o PrincipalRef) bool {
	return p.HomeNode == o.HomeNode && p.ID == o.ID
}

// LocalPrincipal is the live handle to a principal hosted on this node. It
// must be monitorable (Done closes on termination) and forcibly killable,
// since clash resolution can require terminating our own losing principal
// out-of-band.
type LocalPrincipal interface {
	monitor.Watchable
	Identity() string
	Terminate(reason string)
}

// Binding is one name → principal record, as described by the registry's
// data model.
type Binding struct {
	Name      Name
	Principal PrincipalRef
	Local     bool
	Handle    monitor.Handle // non-zero iff Local
	Meta      Meta
}

// Origin reports the owning node identity of the binding: the binding's own
// principal's home node if remote, or selfNode if Local. Per invariant 2,
// a local binding's Principal.HomeNode is already selfNode, so this is
// mostly a documentation aid for callers that don't want to special-case
// Local themselves.
func (b Binding) Origin(selfNode NodeID) NodeID {
	if b.Local {
		return selfNode
	}
	return b.Principal.HomeNode
}

func (b Binding) clone() Binding {
	cp := b
	cp.Meta = b.Meta.Clone()
	return cp
}

// Info is the enumerable, read-only projection of a Binding handed back to
// callers (no Handle — that's registrar-internal).
type Info struct {
	Name      Name
	Principal PrincipalRef
	Meta      Meta
}

func (b Binding) info() Info {
	return Info{Name: b.Name, Principal: b.Principal, Meta: b.Meta.Clone()}
}

// sortedNames returns names sorted for deterministic test output; ordering
// is otherwise unspecified per the spec.
func sortedNames(names []Name) []Name {
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
