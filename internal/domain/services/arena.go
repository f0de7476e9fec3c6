package services

import (
	"github.com/ersonp/stinet/internal/domain/entities"
)

// Handle addresses a relationship record in the Arena. A handle whose generation
// no longer matches its slot is stale and never resolves.
type Handle struct {
	Index      uint32
	Generation uint32
}

type arenaSlot struct {
	rel        *entities.Relationship
	generation uint32
	refs       int
}

// Arena owns the canonical relationship records of a simulation. Node registries
// refer to records by id and hold a reference count; a record is freed once it is
// terminated and no registry refers to it.
type Arena struct {
	slots []arenaSlot
	free  []uint32
	byID  map[entities.Suid]Handle
}

// NewArena creates an empty arena.
func NewArena() *Arena {
	return &Arena{byID: make(map[entities.Suid]Handle)}
}

// Insert stores rel and returns its handle. Inserting an id that is already
// present returns the existing handle and leaves the stored record in place.
func (a *Arena) Insert(rel *entities.Relationship) Handle {
	if h, ok := a.byID[rel.ID()]; ok {
		return h
	}
	var h Handle
	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[idx].rel = rel
		a.slots[idx].refs = 0
		h = Handle{Index: idx, Generation: a.slots[idx].generation}
	} else {
		a.slots = append(a.slots, arenaSlot{rel: rel})
		h = Handle{Index: uint32(len(a.slots) - 1)}
	}
	a.byID[rel.ID()] = h
	return h
}

// Get resolves a handle.
func (a *Arena) Get(h Handle) (*entities.Relationship, bool) {
	if int(h.Index) >= len(a.slots) {
		return nil, false
	}
	slot := a.slots[h.Index]
	if slot.rel == nil || slot.generation != h.Generation {
		return nil, false
	}
	return slot.rel, true
}

// HandleOf returns the current handle of a relationship id.
func (a *Arena) HandleOf(id entities.Suid) (Handle, bool) {
	h, ok := a.byID[id]
	return h, ok
}

// Lookup resolves a relationship id.
func (a *Arena) Lookup(id entities.Suid) (*entities.Relationship, bool) {
	h, ok := a.byID[id]
	if !ok {
		return nil, false
	}
	return a.Get(h)
}

// Retain records one more registry reference to id.
func (a *Arena) Retain(id entities.Suid) {
	if h, ok := a.byID[id]; ok {
		a.slots[h.Index].refs++
	}
}

// Release drops one registry reference and frees the record when it is
// terminated and unreferenced.
func (a *Arena) Release(id entities.Suid) {
	h, ok := a.byID[id]
	if !ok {
		return
	}
	slot := &a.slots[h.Index]
	if slot.refs > 0 {
		slot.refs--
	}
	a.reclaim(id, h)
}

// Collect frees id if it is terminated and unreferenced.
func (a *Arena) Collect(id entities.Suid) {
	if h, ok := a.byID[id]; ok {
		a.reclaim(id, h)
	}
}

func (a *Arena) reclaim(id entities.Suid, h Handle) {
	slot := &a.slots[h.Index]
	if slot.refs > 0 || slot.rel.State() != entities.StateTerminated {
		return
	}
	slot.rel = nil
	slot.generation++
	a.free = append(a.free, h.Index)
	delete(a.byID, id)
}

// References returns the number of registries holding id.
func (a *Arena) References(id entities.Suid) int {
	if h, ok := a.byID[id]; ok {
		return a.slots[h.Index].refs
	}
	return 0
}

// Len returns the number of live records.
func (a *Arena) Len() int {
	return len(a.byID)
}

// All returns the live records in slot order.
func (a *Arena) All() []*entities.Relationship {
	out := make([]*entities.Relationship, 0, len(a.byID))
	for _, slot := range a.slots {
		if slot.rel != nil {
			out = append(out, slot.rel)
		}
	}
	return out
}
