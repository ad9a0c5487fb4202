package chunkhouse

import (
	"fmt"
	"iter"

	"github.com/RoaringBitmap/roaring/v2"
)

// Entity is an opaque handle. IDs are recycled after destruction; the
// generation tells a recycled ID apart from the entity that held it before.
// The zero Entity is never valid.
type Entity struct {
	ID         uint32
	Generation uint32
}

func (e Entity) Valid() bool {
	return e.ID != 0
}

func (e Entity) String() string {
	return fmt.Sprintf("Entity(%d@%d)", e.ID, e.Generation)
}

// entityRecord is the authoritative location of a live entity.
type entityRecord struct {
	arch       *archetype
	hash       ChunkGroupHash
	index      Index
	generation uint32
}

type entityRegistry struct {
	records []entityRecord
	free    []uint32
	live    *roaring.Bitmap
}

func newEntityRegistry() entityRegistry {
	return entityRegistry{
		// ID 0 is reserved for the zero Entity
		records: make([]entityRecord, 1),
		live:    roaring.New(),
	}
}

func (r *entityRegistry) acquire() Entity {
	var id uint32
	if n := len(r.free); n > 0 {
		id = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		id = uint32(len(r.records))
		r.records = append(r.records, entityRecord{})
	}
	rec := &r.records[id]
	rec.generation++
	return Entity{ID: id, Generation: rec.generation}
}

// abandon hands back an ID that was acquired but never placed.
func (r *entityRegistry) abandon(e Entity) {
	r.records[e.ID].arch = nil
	r.free = append(r.free, e.ID)
}

func (r *entityRegistry) place(e Entity, arch *archetype, hash ChunkGroupHash, index Index) {
	rec := &r.records[e.ID]
	rec.arch = arch
	rec.hash = hash
	rec.index = index
	r.live.Add(e.ID)
}

func (r *entityRegistry) release(e Entity) {
	rec := &r.records[e.ID]
	rec.arch = nil
	rec.hash = NoSharedHash
	rec.index = 0
	r.live.Remove(e.ID)
	r.free = append(r.free, e.ID)
}

// moved applies a store's relocation report.
func (r *entityRegistry) moved(removal Removal) {
	if !removal.Moved {
		return
	}
	r.records[removal.Entity.ID].index = removal.Index
}

func (r *entityRegistry) lookup(e Entity) (*entityRecord, error) {
	if !r.alive(e) {
		return nil, EntityNotFoundError{Entity: e}
	}
	return &r.records[e.ID], nil
}

func (r *entityRegistry) alive(e Entity) bool {
	if e.ID == 0 || int(e.ID) >= len(r.records) {
		return false
	}
	return r.live.Contains(e.ID) && r.records[e.ID].generation == e.Generation
}

func (r *entityRegistry) count() int {
	return int(r.live.GetCardinality())
}

func (r *entityRegistry) all() iter.Seq[Entity] {
	return func(yield func(Entity) bool) {
		it := r.live.Iterator()
		for it.HasNext() {
			id := it.Next()
			if !yield(Entity{ID: id, Generation: r.records[id].generation}) {
				return
			}
		}
	}
}
