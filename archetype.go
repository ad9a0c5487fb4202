package chunkhouse

import (
	"iter"
	"slices"

	"github.com/TheBitDrifter/mask"
)

type archetypeID uint32

type archetype struct {
	id         archetypeID
	mask       mask.Mask
	components []Component
	ids        []ComponentTypeID
	shared     SharedType
	sharedID   ComponentTypeID
	store      *ChunkGroupStore
}

func (a *archetype) ID() uint32 {
	return uint32(a.id)
}

func (a *archetype) Mask() mask.Mask {
	return a.mask
}

func (a *archetype) Components() iter.Seq[Component] {
	return slices.Values(a.components)
}

func (a *archetype) Shared() (SharedType, bool) {
	return a.shared, a.shared != nil
}

func (a *archetype) Store() *ChunkGroupStore {
	return a.store
}

func (a *archetype) hasComponent(id ComponentTypeID) bool {
	return slices.Contains(a.ids, id)
}

// Signature describes an archetype: an ordered list of components and an
// optional shared component. The order of the first signature that creates an
// archetype fixes its chunk layout; later signatures with the same set reuse it.
type Signature struct {
	components []Component
	shared     SharedType
}

// WithShared returns a copy of the signature partitioned by shared.
func (s Signature) WithShared(shared SharedType) Signature {
	return Signature{components: s.components, shared: shared}
}

func (s Signature) Components() []Component {
	return slices.Clone(s.components)
}

func (s Signature) Shared() (SharedType, bool) {
	return s.shared, s.shared != nil
}
