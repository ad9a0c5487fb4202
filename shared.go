package chunkhouse

import (
	"github.com/TheBitDrifter/table"

	"github.com/TheBitDrifter/chunkhouse/view"
)

var _ SharedType = SharedComponent[struct{}]{}

// SharedComponent is a typed handle to a shared component type.
type SharedComponent[S any] struct {
	table.ElementType
	desc elementDescriptor
}

func (s SharedComponent[S]) sharedDescriptor() elementDescriptor {
	return s.desc
}

// SharedKey names one registered shared value. It is only meaningful in the
// world that produced it.
type SharedKey struct {
	Type SharedType
	Hash ChunkGroupHash
}

// CreateSharedComponent registers value in w and returns its key. Registering
// an equal value again returns the same key.
func CreateSharedComponent[S any](w World, comp SharedComponent[S], value S) (SharedKey, error) {
	wd := w.(*world)
	wd.mu.Lock()
	defer wd.mu.Unlock()

	id := wd.registerElement(comp, comp.desc)
	raw := append([]byte(nil), view.BytesOf(&value)...)
	hash, err := wd.shared.Register(id, raw)
	if err != nil {
		return SharedKey{}, err
	}
	return SharedKey{Type: comp, Hash: hash}, nil
}

// GetFromEntity returns the shared value entity is grouped under.
func (s SharedComponent[S]) GetFromEntity(w World, entity Entity) (S, error) {
	wd := w.(*world)
	wd.mu.RLock()
	defer wd.mu.RUnlock()

	var zero S
	rec, err := wd.entities.lookup(entity)
	if err != nil {
		return zero, err
	}
	id, ok := wd.componentIDLocked(s.desc)
	if !ok || !rec.arch.store.HasSharedComponentType(id) {
		return zero, SharedComponentNotFoundError{Shared: s}
	}
	return s.load(wd, id, rec.hash)
}

// GetFromCursor returns the shared value of the cursor's current chunk group.
func (s SharedComponent[S]) GetFromCursor(cursor *Cursor) (S, error) {
	var zero S
	id, ok := cursor.world.componentID(s.desc)
	if !ok || !cursor.currentArchetype().store.HasSharedComponentType(id) {
		return zero, SharedComponentNotFoundError{Shared: s}
	}
	cursor.world.mu.RLock()
	defer cursor.world.mu.RUnlock()
	return s.load(cursor.world, id, cursor.Hash())
}

func (s SharedComponent[S]) load(wd *world, id ComponentTypeID, hash ChunkGroupHash) (S, error) {
	var zero S
	raw, ok := wd.shared.Get(id, hash)
	if !ok {
		return zero, SharedValueNotFoundError{Hash: hash}
	}
	return view.NewValue[S](raw).Get(), nil
}
