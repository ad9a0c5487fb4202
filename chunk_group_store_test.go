package chunkhouse

import (
	"errors"
	"testing"

	"github.com/TheBitDrifter/chunkhouse/memory"
)

type vec2 struct {
	X, Y float32
}

const (
	posID ComponentTypeID = 1
	velID ComponentTypeID = 2
	tagID ComponentTypeID = 3
)

var testInfos = []ComponentTypeInfo{
	{ID: posID, Size: 8},
	{ID: velID, Size: 8},
	{ID: tagID, Size: 4},
}

func newTestStore(t *testing.T, epc int, chunkAlloc memory.Allocator) *ChunkGroupStore {
	t.Helper()
	if chunkAlloc == nil {
		chunkAlloc = memory.NewHeap(0)
	}
	store, err := NewChunkGroupStore(testInfos, nil, epc, chunkAlloc, memory.NewHeap(0))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

// fill adds n entities to group h, numbering their ids from first, and stores
// recognisable component values for each.
func fill(t *testing.T, s *ChunkGroupStore, h ChunkGroupHash, first, n int) []Entity {
	t.Helper()
	entities := make([]Entity, n)
	for i := range n {
		e := Entity{ID: uint32(first + i), Generation: 1}
		index, err := s.AddEntity(e, h)
		if err != nil {
			t.Fatalf("Failed to add entity %v: %v", e, err)
		}
		f := float32(first + i)
		mustSet(t, s, posID, h, index, vec2{X: f, Y: -f})
		mustSet(t, s, velID, h, index, vec2{X: 2 * f, Y: 3 * f})
		mustSet(t, s, tagID, h, index, uint32(first+i))
		entities[i] = e
	}
	return entities
}

func mustSet[T any](t *testing.T, s *ChunkGroupStore, id ComponentTypeID, h ChunkGroupHash, index Index, v T) {
	t.Helper()
	if err := SetComponentValue(s, id, h, index, v); err != nil {
		t.Fatalf("Failed to set component %d at %d: %v", id, index, err)
	}
}

func mustGet[T any](t *testing.T, s *ChunkGroupStore, id ComponentTypeID, h ChunkGroupHash, index Index) T {
	t.Helper()
	v, err := GetComponentValue[T](s, id, h, index)
	if err != nil {
		t.Fatalf("Failed to get component %d at %d: %v", id, index, err)
	}
	return v
}

func assertPanics(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Errorf("%s: expected panic", name)
		}
	}()
	fn()
}

func TestChunkGroupStoreAddEntity(t *testing.T) {
	const epc = 4
	tests := []struct {
		name           string
		count          int
		expectedChunks int
	}{
		{"Single entity", 1, 1},
		{"Exactly one chunk", epc, 1},
		{"One past a chunk", epc + 1, 2},
		{"Several chunks", 3 * epc, 3},
		{"Partial tail", 3*epc + 2, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, epc, nil)
			const h ChunkGroupHash = 7
			entities := fill(t, store, h, 1, tt.count)

			if got := store.NumberOfEntitiesIn(h); got != tt.count {
				t.Errorf("Expected %d entities in group, got %d", tt.count, got)
			}
			if got := store.NumberOfEntities(); got != tt.count {
				t.Errorf("Expected %d entities in store, got %d", tt.count, got)
			}
			if got := store.NumberOfChunksIn(h); got != tt.expectedChunks {
				t.Errorf("Expected %d chunks, got %d", tt.expectedChunks, got)
			}
			if got := store.NumberOfChunks(); got != tt.expectedChunks {
				t.Errorf("Expected %d chunks in store, got %d", tt.expectedChunks, got)
			}
			for i, e := range entities {
				got, err := store.Entity(h, Index(i))
				if err != nil {
					t.Fatalf("Failed to read entity at %d: %v", i, err)
				}
				if got != e {
					t.Errorf("Index %d holds %v, expected %v", i, got, e)
				}
				pos := mustGet[vec2](t, store, posID, h, Index(i))
				if pos.X != float32(e.ID) {
					t.Errorf("Index %d has position %v, expected X=%d", i, pos, e.ID)
				}
			}
		})
	}
}

func TestChunkGroupStoreZeroesNewRows(t *testing.T) {
	store := newTestStore(t, 2, memory.NewPool(ChunkSizeFor(testInfos, 2), memory.NewHeap(0)))
	const h ChunkGroupHash = 1

	fill(t, store, h, 1, 3)
	for range 3 {
		if _, err := store.RemoveEntity(h, 0); err != nil {
			t.Fatalf("Failed to remove entity: %v", err)
		}
	}

	// Chunks come back from the pool and must not leak old values
	for i := range 3 {
		index, err := store.AddEntity(Entity{ID: uint32(10 + i), Generation: 1}, h)
		if err != nil {
			t.Fatalf("Failed to add entity: %v", err)
		}
		if pos := mustGet[vec2](t, store, posID, h, index); pos != (vec2{}) {
			t.Errorf("Index %d has position %v, expected zero", index, pos)
		}
		if tag := mustGet[uint32](t, store, tagID, h, index); tag != 0 {
			t.Errorf("Index %d has tag %d, expected zero", index, tag)
		}
	}
}

func TestChunkGroupStoreRemoveEntity(t *testing.T) {
	const epc = 2
	const h ChunkGroupHash = 3

	tests := []struct {
		name            string
		count           int
		remove          Index
		expectedRemoval Removal
		expectedChunks  int
	}{
		{
			name:            "Middle of first chunk",
			count:           5,
			remove:          1,
			expectedRemoval: Removal{Moved: true, Entity: Entity{ID: 5, Generation: 1}, Index: 1},
			expectedChunks:  2,
		},
		{
			name:            "First entity",
			count:           4,
			remove:          0,
			expectedRemoval: Removal{Moved: true, Entity: Entity{ID: 4, Generation: 1}, Index: 0},
			expectedChunks:  2,
		},
		{
			name:            "Last entity",
			count:           4,
			remove:          3,
			expectedRemoval: Removal{},
			expectedChunks:  2,
		},
		{
			name:            "Last entity alone in tail chunk",
			count:           3,
			remove:          2,
			expectedRemoval: Removal{},
			expectedChunks:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newTestStore(t, epc, nil)
			fill(t, store, h, 1, tt.count)

			removal, err := store.RemoveEntity(h, tt.remove)
			if err != nil {
				t.Fatalf("Failed to remove entity: %v", err)
			}
			if removal != tt.expectedRemoval {
				t.Errorf("Expected removal %+v, got %+v", tt.expectedRemoval, removal)
			}
			if got := store.NumberOfEntitiesIn(h); got != tt.count-1 {
				t.Errorf("Expected %d entities, got %d", tt.count-1, got)
			}
			if got := store.NumberOfChunksIn(h); got != tt.expectedChunks {
				t.Errorf("Expected %d chunks, got %d", tt.expectedChunks, got)
			}

			if !removal.Moved {
				return
			}
			// Every column travels with the moved entity
			moved := removal.Entity
			f := float32(moved.ID)
			if got, _ := store.Entity(h, removal.Index); got != moved {
				t.Errorf("Index %d holds %v, expected %v", removal.Index, got, moved)
			}
			if pos := mustGet[vec2](t, store, posID, h, removal.Index); pos != (vec2{X: f, Y: -f}) {
				t.Errorf("Moved entity has position %v", pos)
			}
			if vel := mustGet[vec2](t, store, velID, h, removal.Index); vel != (vec2{X: 2 * f, Y: 3 * f}) {
				t.Errorf("Moved entity has velocity %v", vel)
			}
			if tag := mustGet[uint32](t, store, tagID, h, removal.Index); tag != moved.ID {
				t.Errorf("Moved entity has tag %d", tag)
			}
		})
	}
}

func TestChunkGroupStoreDropsEmptyGroup(t *testing.T) {
	chunkHeap := memory.NewHeap(0)
	store := newTestStore(t, 4, chunkHeap)
	const h ChunkGroupHash = 9

	fill(t, store, h, 1, 6)
	if store.NumberOfChunkGroups() != 1 {
		t.Fatalf("Expected one chunk group, got %d", store.NumberOfChunkGroups())
	}
	for store.NumberOfEntitiesIn(h) > 0 {
		if _, err := store.RemoveEntity(h, 0); err != nil {
			t.Fatalf("Failed to remove entity: %v", err)
		}
	}

	if store.NumberOfChunkGroups() != 0 {
		t.Errorf("Expected no chunk groups, got %d", store.NumberOfChunkGroups())
	}
	if store.NumberOfChunks() != 0 {
		t.Errorf("Expected no chunks, got %d", store.NumberOfChunks())
	}
	if chunkHeap.Used() != 0 {
		t.Errorf("Expected all chunk memory returned, %d bytes still used", chunkHeap.Used())
	}
	_, err := store.Entity(h, 0)
	var notFound ChunkGroupNotFoundError
	if !errors.As(err, &notFound) || notFound.Hash != h {
		t.Errorf("Expected ChunkGroupNotFoundError for %#x, got %v", uint64(h), err)
	}
	if _, err := store.RemoveEntity(h, 0); !errors.As(err, &notFound) {
		t.Errorf("Expected ChunkGroupNotFoundError from RemoveEntity, got %v", err)
	}
}

func TestChunkGroupStoreIndependentGroups(t *testing.T) {
	store := newTestStore(t, 3, nil)
	hashes := []ChunkGroupHash{11, 22, 33}
	counts := []int{2, 7, 3}

	for i, h := range hashes {
		fill(t, store, h, 100*(i+1), counts[i])
	}
	if store.NumberOfChunkGroups() != len(hashes) {
		t.Fatalf("Expected %d groups, got %d", len(hashes), store.NumberOfChunkGroups())
	}

	seen := make(map[ChunkGroupHash]bool)
	for h := range store.Hashes() {
		seen[h] = true
	}
	for i, h := range hashes {
		if !seen[h] {
			t.Errorf("Hashes did not yield %d", h)
		}
		if got := store.NumberOfEntitiesIn(h); got != counts[i] {
			t.Errorf("Group %d: expected %d entities, got %d", h, counts[i], got)
		}
		total := 0
		for _, chunk := range store.Chunks(h) {
			for _, e := range chunk.Entities().All() {
				if int(e.ID)/100 != i+1 {
					t.Errorf("Group %d yielded foreign entity %v", h, e)
				}
				total++
			}
		}
		if total != counts[i] {
			t.Errorf("Group %d: chunks held %d entities, expected %d", h, total, counts[i])
		}
	}

	// Removing from one group leaves the others alone
	if _, err := store.RemoveEntity(22, 0); err != nil {
		t.Fatalf("Failed to remove entity: %v", err)
	}
	if store.NumberOfEntitiesIn(11) != 2 || store.NumberOfEntitiesIn(33) != 3 {
		t.Errorf("Removal from group 22 changed other groups")
	}
	if store.NumberOfEntities() != 11 {
		t.Errorf("Expected 11 entities, got %d", store.NumberOfEntities())
	}
}

func TestChunkGroupStoreOutOfMemory(t *testing.T) {
	const epc = 4
	chunkSize := ChunkSizeFor(testInfos, epc)

	t.Run("Growing a group", func(t *testing.T) {
		store := newTestStore(t, epc, memory.NewHeap(chunkSize))
		const h ChunkGroupHash = 1
		fill(t, store, h, 1, epc)

		_, err := store.AddEntity(Entity{ID: 99, Generation: 1}, h)
		if !errors.Is(err, memory.ErrOutOfMemory) {
			t.Fatalf("Expected ErrOutOfMemory, got %v", err)
		}
		if store.NumberOfEntitiesIn(h) != epc || store.NumberOfChunksIn(h) != 1 {
			t.Errorf("Failed add changed the group: %d entities, %d chunks",
				store.NumberOfEntitiesIn(h), store.NumberOfChunksIn(h))
		}
		if got := mustGet[uint32](t, store, tagID, h, epc-1); got != epc {
			t.Errorf("Last entity has tag %d, expected %d", got, epc)
		}
	})

	t.Run("Opening a group", func(t *testing.T) {
		store := newTestStore(t, epc, memory.NewHeap(chunkSize))
		fill(t, store, 1, 1, 1)

		_, err := store.AddEntity(Entity{ID: 99, Generation: 1}, 2)
		if !errors.Is(err, memory.ErrOutOfMemory) {
			t.Fatalf("Expected ErrOutOfMemory, got %v", err)
		}
		if store.NumberOfChunkGroups() != 1 {
			t.Errorf("Expected one chunk group, got %d", store.NumberOfChunkGroups())
		}
	})

	t.Run("Index cannot grow", func(t *testing.T) {
		Config.SetExpectedChunkGroups(0)
		defer Config.SetExpectedChunkGroups(8)

		chunkHeap := memory.NewHeap(0)
		store, err := NewChunkGroupStore(testInfos, nil, epc, chunkHeap, memory.NewHeap(1))
		if err != nil {
			t.Fatalf("Failed to create store: %v", err)
		}
		_, err = store.AddEntity(Entity{ID: 1, Generation: 1}, 5)
		if !errors.Is(err, memory.ErrOutOfMemory) {
			t.Fatalf("Expected ErrOutOfMemory, got %v", err)
		}
		if store.NumberOfChunkGroups() != 0 || store.NumberOfEntities() != 0 {
			t.Errorf("Failed add left state behind")
		}
		if chunkHeap.Used() != 0 {
			t.Errorf("Failed add kept %d chunk bytes", chunkHeap.Used())
		}
	})
}

func TestChunkGroupStorePanics(t *testing.T) {
	store := newTestStore(t, 4, nil)
	const h ChunkGroupHash = 1
	fill(t, store, h, 1, 2)

	assertPanics(t, "index past count", func() { store.Entity(h, 2) })
	assertPanics(t, "negative index", func() { store.RemoveEntity(h, -1) })
	assertPanics(t, "missing column", func() { GetComponentValue[uint32](store, 42, h, 0) })
	assertPanics(t, "size mismatch", func() { GetComponentValue[uint64](store, tagID, h, 0) })
	assertPanics(t, "shared type as column", func() {
		NewChunkGroupStore(testInfos, &SharedComponentTypeInfo{ID: posID, Size: 4}, 4, memory.NewHeap(0), memory.NewHeap(0))
	})
	assertPanics(t, "zero entities per chunk", func() {
		NewChunkGroupStore(testInfos, nil, 0, memory.NewHeap(0), memory.NewHeap(0))
	})
}

func TestChunkViewLayout(t *testing.T) {
	const epc = 4
	store := newTestStore(t, epc, nil)
	const h ChunkGroupHash = 1
	entities := fill(t, store, h, 1, 6)

	var rows []int
	for i, chunk := range store.Chunks(h) {
		rows = append(rows, chunk.Len())
		if len(chunk.Raw()) != store.ChunkSize() {
			t.Errorf("Chunk %d is %d bytes, expected %d", i, len(chunk.Raw()), store.ChunkSize())
		}
		raw, ok := chunk.ColumnBytes(velID)
		if !ok || len(raw) != chunk.Len()*8 {
			t.Errorf("Chunk %d velocity column is %d bytes", i, len(raw))
		}
		if _, ok := chunk.ColumnBytes(42); ok {
			t.Errorf("Chunk %d has a column for unknown type", i)
		}

		tags := ColumnOf[uint32](chunk, tagID)
		ids := chunk.Entities()
		for row := range chunk.Len() {
			e := entities[i*epc+row]
			if ids.Get(row) != e {
				t.Errorf("Chunk %d row %d holds %v, expected %v", i, row, ids.Get(row), e)
			}
			if tags.Get(row) != e.ID {
				t.Errorf("Chunk %d row %d has tag %d, expected %d", i, row, tags.Get(row), e.ID)
			}
		}
	}
	if len(rows) != 2 || rows[0] != epc || rows[1] != 2 {
		t.Errorf("Expected chunk rows [4 2], got %v", rows)
	}
	assertPanics(t, "column of wrong size", func() { ColumnOf[uint64](ChunkView{layout: &store.layout}, tagID) })
}

func TestChunkGroupStoreCompact(t *testing.T) {
	store := newTestStore(t, 2, nil)
	fill(t, store, 1, 10, 3)
	fill(t, store, 2, 20, 1)
	fill(t, store, 3, 30, 1)

	// Empty the last two groups; their table slots become free
	for _, h := range []ChunkGroupHash{3, 2} {
		if _, err := store.RemoveEntity(h, 0); err != nil {
			t.Fatalf("Failed to remove entity: %v", err)
		}
	}
	store.Compact()
	if len(store.groups) != 1 || len(store.freeGroups) != 0 {
		t.Errorf("Expected 1 group slot and no free slots, got %d and %d", len(store.groups), len(store.freeGroups))
	}

	store.ShrinkToFit(1)
	_, g, err := store.group(1)
	if err != nil {
		t.Fatalf("Group 1 missing after compaction: %v", err)
	}
	if cap(g.chunks) != len(g.chunks) {
		t.Errorf("Expected chunk list without spare capacity, cap %d len %d", cap(g.chunks), len(g.chunks))
	}
	if got := mustGet[uint32](t, store, tagID, 1, 2); got != 12 {
		t.Errorf("Compaction changed values: tag %d", got)
	}

	// A freed slot is reused by the next new group
	fill(t, store, 4, 40, 1)
	if len(store.groups) != 2 {
		t.Errorf("Expected 2 group slots, got %d", len(store.groups))
	}
}

func TestChunkGroupStoreRelease(t *testing.T) {
	chunkHeap := memory.NewHeap(0)
	bookkeeping := memory.NewHeap(0)
	store, err := NewChunkGroupStore(testInfos, &SharedComponentTypeInfo{ID: 9, Size: 4}, 4, chunkHeap, bookkeeping)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	fill(t, store, 1, 10, 5)
	fill(t, store, 2, 20, 9)

	store.Release()
	if chunkHeap.Used() != 0 || bookkeeping.Used() != 0 {
		t.Errorf("Release kept memory: %d chunk bytes, %d bookkeeping bytes", chunkHeap.Used(), bookkeeping.Used())
	}
	if store.NumberOfEntities() != 0 || store.NumberOfChunks() != 0 || store.NumberOfChunkGroups() != 0 {
		t.Errorf("Release left counts behind")
	}

	// The store can be used again
	fill(t, store, 1, 10, 1)
	if store.NumberOfEntitiesIn(1) != 1 {
		t.Errorf("Expected store to accept entities after Release")
	}
	if info, ok := store.SharedComponentType(); !ok || info.ID != 9 {
		t.Errorf("Expected shared type 9, got %+v", info)
	}
	if !store.HasSharedComponentType(9) || store.HasSharedComponentType(posID) {
		t.Errorf("Unexpected shared type membership")
	}
}

func TestCopyComponents(t *testing.T) {
	src := newTestStore(t, 4, nil)
	fill(t, src, 1, 5, 1)

	narrow := []ComponentTypeInfo{{ID: tagID, Size: 4}, {ID: posID, Size: 8}, {ID: 8, Size: 2}}
	dst, err := NewChunkGroupStore(narrow, nil, 4, memory.NewHeap(0), memory.NewHeap(0))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	index, err := dst.AddEntity(Entity{ID: 5, Generation: 1}, 1)
	if err != nil {
		t.Fatalf("Failed to add entity: %v", err)
	}
	if err := copyComponents(dst, 1, index, src, 1, 0); err != nil {
		t.Fatalf("Failed to copy components: %v", err)
	}
	if got := mustGet[uint32](t, dst, tagID, 1, index); got != 5 {
		t.Errorf("Expected tag 5, got %d", got)
	}
	if got := mustGet[vec2](t, dst, posID, 1, index); got != (vec2{X: 5, Y: -5}) {
		t.Errorf("Expected position {5 -5}, got %v", got)
	}
	if got := mustGet[uint16](t, dst, 8, 1, index); got != 0 {
		t.Errorf("Expected new column zeroed, got %d", got)
	}
}
