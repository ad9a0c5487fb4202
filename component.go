package chunkhouse

import (
	"reflect"

	"github.com/TheBitDrifter/table"

	"github.com/TheBitDrifter/chunkhouse/view"
)

// ComponentTypeID identifies a component type within a world. It is the
// component's row index in the world's schema.
type ComponentTypeID uint32

// ComponentTypeInfo describes one column of a chunk.
type ComponentTypeInfo struct {
	ID   ComponentTypeID
	Size int
}

// SharedComponentTypeInfo describes the shared component an archetype is
// partitioned by.
type SharedComponentTypeInfo struct {
	ID   ComponentTypeID
	Size int
}

// Component represents a per-entity data attribute stored in chunk columns.
// Components can be used to build queries.
type Component interface {
	table.ElementType
	descriptor() elementDescriptor
}

// SharedType represents a component whose value is common to a whole group of
// entities and partitions an archetype's chunks.
type SharedType interface {
	table.ElementType
	sharedDescriptor() elementDescriptor
}

type elementDescriptor struct {
	typ    reflect.Type
	size   int
	shared bool
}

// ComponentValue pairs a component with the value to store for it.
type ComponentValue interface {
	Component() Component
	write(s *ChunkGroupStore, id ComponentTypeID, h ChunkGroupHash, index Index)
}

type componentValue[T any] struct {
	comp  AccessibleComponent[T]
	value T
}

func (v componentValue[T]) Component() Component {
	return v.comp
}

func (v componentValue[T]) write(s *ChunkGroupStore, id ComponentTypeID, h ChunkGroupHash, index Index) {
	if err := SetComponentValue(s, id, h, index, v.value); err != nil {
		// the caller has just inserted at this location
		panic(err)
	}
}

func newDescriptor[T any](shared bool) elementDescriptor {
	view.MustBePlain[T]()
	return elementDescriptor{
		typ:    reflect.TypeFor[T](),
		size:   view.SizeOf[T](),
		shared: shared,
	}
}
