package chunkhouse

import (
	"iter"

	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

type World interface {
	CreateEntity(Signature, ...ComponentValue) (Entity, error)
	CreateSharedEntity(Signature, SharedKey, ...ComponentValue) (Entity, error)
	EnqueueCreateEntity(Signature, ...ComponentValue) error
	EnqueueCreateSharedEntity(Signature, SharedKey, ...ComponentValue) error
	DestroyEntity(Entity) error
	EnqueueDestroyEntity(Entity) error
	AddComponent(Entity, Component) error
	AddComponentWithValue(Entity, ComponentValue) error
	RemoveComponent(Entity, Component) error
	EnqueueAddComponent(Entity, ComponentValue) error
	EnqueueRemoveComponent(Entity, Component) error
	AddSharedComponent(Entity, SharedKey) error
	RemoveSharedComponent(Entity, SharedType) error
	Alive(Entity) bool
	EntityCount() int
	Entities() iter.Seq[Entity]
	ArchetypeOf(Entity) (Archetype, error)
	Archetypes() iter.Seq[Archetype]
	TypeID(table.ElementType) (ComponentTypeID, bool)
	Locked() bool
	Lock()
	Unlock() error
	Release()
}

type Archetype interface {
	ID() uint32
	Mask() mask.Mask
	Components() iter.Seq[Component]
	Shared() (SharedType, bool)
	Store() *ChunkGroupStore
}

type Query interface {
	QueryNode
	And(items ...interface{}) QueryNode
	Or(items ...interface{}) QueryNode
	Not(items ...interface{}) QueryNode
}

type QueryNode interface {
	Evaluate(archetype Archetype, world World) bool
}

type iCursor interface {
	Chunks() iter.Seq2[ChunkGroupHash, ChunkView]
	Next() bool
}

// Warning: internal Dependencies abound!
type Cursor struct {
	// The query to filter archetypes
	query QueryNode

	// The world to iterate over
	world *world

	// Current iteration state
	chunks     []chunkRef
	chunkIndex int

	// Initialization state
	initialized bool
	err         error
}

type chunkRef struct {
	arch  *archetype
	hash  ChunkGroupHash
	chunk ChunkView
}
