package registry

import "runtime"

// Sender is anything a bound principal's name can forward a message to.
// Local principals and remote stand-ins both satisfy this; Send silently
// drops the message if name has no binding, per the spec's read-path
// tolerance for races.
type Sender interface {
	Send(message any)
}

// WhereIs is the read-path lookup: the principal reference bound to name,
// or ErrAbsent. It never touches the registrar's mailbox.
func (r *Registrar) WhereIs(name Name) (PrincipalRef, error) {
	p, ok := r.table.Lookup(name)
	if !ok {
		return PrincipalRef{}, ErrAbsent
	}
	return p, nil
}

// Send forwards message to whatever the directory of senders has for
// name's bound principal. resolve is supplied by the caller because the
// registry itself has no notion of how to reach a PrincipalRef (that's the
// transport/application layer's job); a miss on either lookup is a silent
// no-op, matching the spec.
func (r *Registrar) Send(name Name, message any, resolve func(PrincipalRef) (Sender, bool)) {
	p, ok := r.table.Lookup(name)
	if !ok {
		return
	}
	s, ok := resolve(p)
	if !ok {
		return
	}
	s.Send(message)
}

// LocalRegisteredNames returns every name bound to a local principal.
func (r *Registrar) LocalRegisteredNames() []Name {
	return sortedNames(r.table.Names(func(b Binding) bool { return b.Local }))
}

// LocalRegisteredInfo returns (name, principal, meta) for every local
// binding.
func (r *Registrar) LocalRegisteredInfo() []Info {
	bindings := r.table.Enumerate(func(b Binding) bool { return b.Local })
	out := make([]Info, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, b.info())
	}
	return out
}

// RegisteredNames returns every known name, local or remote.
func (r *Registrar) RegisteredNames() []Name {
	return sortedNames(r.table.Names(nil))
}

// RegisteredInfo returns (name, principal) for every known binding.
func (r *Registrar) RegisteredInfo() []Info {
	bindings := r.table.Enumerate(nil)
	out := make([]Info, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, Info{Name: b.Name, Principal: b.Principal})
	}
	return out
}

// SetPriority is a best-effort scheduling knob. Go's runtime scheduler has
// no user-settable per-goroutine priority equivalent to a BEAM process's
// priority, so p is ignored: the call only yields the calling goroutine
// (runtime.Gosched) and leaves the registrar's goroutine unchanged. It
// exists so callers migrating off the original API have somewhere to call
// it without special cases.
func (r *Registrar) SetPriority(p int) {
	_ = p
	runtime.Gosched()
}
