package chunkhouse

import (
	"github.com/TheBitDrifter/table"

	"github.com/TheBitDrifter/chunkhouse/view"
)

var _ Component = AccessibleComponent[struct{}]{}

// AccessibleComponent extends a base Component with typed access to its values
// It provides methods to read and write values by entity and by cursor
type AccessibleComponent[T any] struct {
	table.ElementType
	desc elementDescriptor
}

func (c AccessibleComponent[T]) descriptor() elementDescriptor {
	return c.desc
}

// Value pairs the component with v for CreateEntity and AddComponentWithValue
func (c AccessibleComponent[T]) Value(v T) ComponentValue {
	return componentValue[T]{comp: c, value: v}
}

// Get returns the value stored for entity
func (c AccessibleComponent[T]) Get(w World, entity Entity) (T, error) {
	wd := w.(*world)
	wd.mu.RLock()
	defer wd.mu.RUnlock()

	var zero T
	rec, id, err := wd.locateComponent(entity, c)
	if err != nil {
		return zero, err
	}
	return GetComponentValue[T](rec.arch.store, id, rec.hash, rec.index)
}

// Set overwrites the value stored for entity
func (c AccessibleComponent[T]) Set(w World, entity Entity, value T) error {
	wd := w.(*world)
	wd.mu.Lock()
	defer wd.mu.Unlock()

	rec, id, err := wd.locateComponent(entity, c)
	if err != nil {
		return err
	}
	return SetComponentValue(rec.arch.store, id, rec.hash, rec.index, value)
}

// Column returns the occupied rows of the cursor's current chunk as a typed view
func (c AccessibleComponent[T]) Column(cursor *Cursor) view.Slice[T] {
	id, ok := cursor.world.componentID(c.desc)
	if !ok {
		panic(ComponentNotFoundError{Component: c})
	}
	return ColumnOf[T](cursor.Chunk(), id)
}

// GetFromCursor returns the value at row of the cursor's current chunk
func (c AccessibleComponent[T]) GetFromCursor(cursor *Cursor, row int) T {
	return c.Column(cursor).Get(row)
}

// SetFromCursor writes the value at row of the cursor's current chunk
func (c AccessibleComponent[T]) SetFromCursor(cursor *Cursor, row int, value T) {
	c.Column(cursor).Set(row, value)
}

// Check determines if the component exists in the archetype at the cursor position
func (c AccessibleComponent[T]) Check(cursor *Cursor) bool {
	id, ok := cursor.world.componentID(c.desc)
	if !ok {
		return false
	}
	return cursor.currentArchetype().store.HasComponentType(id)
}
