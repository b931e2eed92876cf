package registry

import (
	"sync"

	"regnode/internal/monitor"
)

// Table is the per-node binding store. It supports many concurrent readers
// racing a single writer (the registrar): point lookups and enumerations
// never block each other or the writer for longer than the map access
// itself takes. Only the registrar goroutine is expected to call the
// mutating methods; readers must treat a result as a snapshot that may
// already be stale by the time they act on it.
type Table struct {
	mu       sync.RWMutex
	bindings map[Name]Binding
	reverse  map[monitor.Handle]Name
}

// NewTable returns an empty Table.
func NewTable() *Table {
	return &Table{
		bindings: make(map[Name]Binding),
		reverse:  make(map[monitor.Handle]Name),
	}
}

// Lookup returns the principal bound to name, if any.
func (t *Table) Lookup(name Name) (PrincipalRef, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.bindings[name]
	if !ok {
		return PrincipalRef{}, false
	}
	return b.Principal, true
}

// Exists reports whether name has any binding, regardless of origin.
func (t *Table) Exists(name Name) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.bindings[name]
	return ok
}

// Get returns a copy of the full binding for name.
func (t *Table) Get(name Name) (Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.bindings[name]
	if !ok {
		return Binding{}, false
	}
	return b.clone(), true
}

// ByHandle resolves a local binding from its reverse-index entry.
func (t *Table) ByHandle(h monitor.Handle) (Name, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	name, ok := t.reverse[h]
	return name, ok
}

// Enumerate returns a snapshot of every binding matching pred. pred is
// evaluated under the table's read lock, so it must not call back into the
// Table.
func (t *Table) Enumerate(pred func(Binding) bool) []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Binding, 0)
	for _, b := range t.bindings {
		if pred == nil || pred(b) {
			out = append(out, b.clone())
		}
	}
	return out
}

// Insert installs a new binding. The caller (the registrar) must already
// have verified name is free.
func (t *Table) Insert(b Binding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bindings[b.Name] = b
	if b.Local {
		t.reverse[b.Handle] = b.Name
	}
}

// Replace overwrites the binding at name (used by clash resolution); it
// removes any stale reverse-index entry for the binding being overwritten
// and installs one for the new binding if it is local.
func (t *Table) Replace(b Binding) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.bindings[b.Name]; ok && old.Local {
		delete(t.reverse, old.Handle)
	}
	t.bindings[b.Name] = b
	if b.Local {
		t.reverse[b.Handle] = b.Name
	}
}

// UpdateMeta overwrites meta on an existing binding in place. It is a no-op
// if name has no binding.
func (t *Table) UpdateMeta(name Name, meta Meta) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[name]
	if !ok {
		return
	}
	b.Meta = meta
	t.bindings[name] = b
}

// Delete removes the binding at name, along with its reverse-index entry if
// local. Reports whether a binding was actually present.
func (t *Table) Delete(name Name) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.bindings[name]
	if !ok {
		return false
	}
	delete(t.bindings, name)
	if b.Local {
		delete(t.reverse, b.Handle)
	}
	return true
}

// DeleteWhere removes every binding matching pred and returns how many were
// removed. Used for the bulk purge of a dead peer's bindings.
func (t *Table) DeleteWhere(pred func(Binding) bool) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for name, b := range t.bindings {
		if pred(b) {
			delete(t.bindings, name)
			if b.Local {
				delete(t.reverse, b.Handle)
			}
			n++
		}
	}
	return n
}

// Names returns every name matching pred.
func (t *Table) Names(pred func(Binding) bool) []Name {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Name, 0, len(t.bindings))
	for name, b := range t.bindings {
		if pred == nil || pred(b) {
			out = append(out, name)
		}
	}
	return out
}
