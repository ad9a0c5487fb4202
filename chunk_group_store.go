package chunkhouse

import (
	"fmt"
	"iter"

	"go.uber.org/zap"

	"github.com/TheBitDrifter/chunkhouse/hashmap"
	"github.com/TheBitDrifter/chunkhouse/memory"
	"github.com/TheBitDrifter/chunkhouse/view"
)

// ChunkGroupHash partitions an archetype's entities by shared component value.
type ChunkGroupHash uint64

// NoSharedHash is the chunk group hash used by archetypes without a shared
// component.
const NoSharedHash ChunkGroupHash = 0

// Index is the dense position of an entity across the concatenated chunks of
// one chunk group.
type Index int

// Removal describes the side effect of RemoveEntity. When Moved is set, the
// former last entity of the group now lives at Index and any location held for
// it must be updated.
type Removal struct {
	Moved  bool
	Entity Entity
	Index  Index
}

type chunkGroup struct {
	chunks [][]byte
	count  int
}

// ChunkGroupStore owns the chunk memory of one archetype. Chunks are grouped by
// shared component hash; within a group every chunk except the last is full
// and the last is never empty.
//
// A store is not safe for concurrent mutation. Reads may run concurrently with
// each other.
type ChunkGroupStore struct {
	layout     chunkLayout
	shared     *SharedComponentTypeInfo
	index      *hashmap.Map[ChunkGroupHash, uint32]
	groups     []chunkGroup
	freeGroups []uint32
	chunkAlloc memory.Allocator
	alloc      memory.Allocator

	entityCount int
	chunkCount  int
}

// NewChunkGroupStore builds a store for the given columns. shared is nil for
// archetypes without a shared component. Chunk memory is taken from
// chunkAlloc, the chunk group index from alloc.
func NewChunkGroupStore(
	infos []ComponentTypeInfo,
	shared *SharedComponentTypeInfo,
	entitiesPerChunk int,
	chunkAlloc memory.Allocator,
	alloc memory.Allocator,
) (*ChunkGroupStore, error) {
	if chunkAlloc == nil || alloc == nil {
		panic("chunkhouse: chunk group store needs both allocators")
	}
	layout := newChunkLayout(infos, entitiesPerChunk)
	if shared != nil {
		if layout.columnIndex(shared.ID) >= 0 {
			panic(fmt.Sprintf("chunkhouse: shared component type %d is also a column", shared.ID))
		}
		copied := *shared
		shared = &copied
	}
	s := &ChunkGroupStore{
		layout:     layout,
		shared:     shared,
		index:      hashmap.New[ChunkGroupHash, uint32](alloc),
		chunkAlloc: chunkAlloc,
		alloc:      alloc,
	}
	if err := s.ReserveChunkGroups(Config.expectedChunkGroups); err != nil {
		return nil, err
	}
	return s, nil
}

// ReserveChunkGroups sizes the chunk group index for n groups up front.
func (s *ChunkGroupStore) ReserveChunkGroups(n int) error {
	if err := s.index.Reserve(n); err != nil {
		return fmt.Errorf("reserve %d chunk groups: %w", n, err)
	}
	return nil
}

// AddEntity appends entity to the chunk group for h and returns its index.
// Every component value of the new row is zeroed. On error the store is left
// unchanged.
func (s *ChunkGroupStore) AddEntity(entity Entity, h ChunkGroupHash) (Index, error) {
	gi, found := s.index.Find(h)
	if !found {
		return s.addToNewGroup(entity, h)
	}
	g := &s.groups[gi]
	epc := s.layout.entitiesPerChunk
	slot := g.count % epc
	if g.count == epc*len(g.chunks) {
		chunk, err := s.chunkAlloc.Allocate(s.layout.chunkSize)
		if err != nil {
			return 0, fmt.Errorf("add entity to chunk group %#x: %w", uint64(h), err)
		}
		g.chunks = append(g.chunks, chunk)
		s.chunkCount++
	}
	chunk := g.chunks[len(g.chunks)-1]
	s.layout.clearRow(chunk, slot)
	view.NewValue[Entity](s.layout.entityBytes(chunk, slot)).Set(entity)
	g.count++
	s.entityCount++
	return Index(g.count - 1), nil
}

func (s *ChunkGroupStore) addToNewGroup(entity Entity, h ChunkGroupHash) (Index, error) {
	chunk, err := s.chunkAlloc.Allocate(s.layout.chunkSize)
	if err != nil {
		return 0, fmt.Errorf("add entity to new chunk group %#x: %w", uint64(h), err)
	}
	var gi uint32
	if n := len(s.freeGroups); n > 0 {
		gi = s.freeGroups[n-1]
		s.freeGroups = s.freeGroups[:n-1]
	} else {
		gi = uint32(len(s.groups))
		s.groups = append(s.groups, chunkGroup{})
	}
	if _, err := s.index.Emplace(h, gi); err != nil {
		s.freeGroups = append(s.freeGroups, gi)
		s.chunkAlloc.Free(chunk)
		return 0, fmt.Errorf("add entity to new chunk group %#x: %w", uint64(h), err)
	}

	clear(chunk)
	view.NewValue[Entity](s.layout.entityBytes(chunk, 0)).Set(entity)
	g := &s.groups[gi]
	g.chunks = append(g.chunks[:0], chunk)
	g.count = 1
	s.entityCount++
	s.chunkCount++

	Config.logger.Debug("chunk group created",
		zap.Uint64("hash", uint64(h)),
		zap.Int("chunk_size", s.layout.chunkSize),
	)
	return 0, nil
}

// RemoveEntity removes the entity at index using swap-with-last: the last
// entity of the group, with all of its component values, is moved into the
// vacated row and reported in the returned Removal. A tail chunk left empty is
// returned to the chunk allocator, and an empty group is dropped.
func (s *ChunkGroupStore) RemoveEntity(h ChunkGroupHash, index Index) (Removal, error) {
	gi, g, err := s.group(h)
	if err != nil {
		return Removal{}, err
	}
	s.checkIndex(g, index)

	last := Index(g.count - 1)
	lastChunk, lastSlot := s.locate(g, last)
	var removal Removal
	if index != last {
		chunk, slot := s.locate(g, index)
		s.layout.copyRow(chunk, slot, lastChunk, lastSlot)
		removal = Removal{
			Moved:  true,
			Entity: view.NewValue[Entity](s.layout.entityBytes(chunk, slot)).Get(),
			Index:  index,
		}
	}
	s.layout.clearRow(lastChunk, lastSlot)
	g.count--
	s.entityCount--

	if lastSlot == 0 {
		tail := len(g.chunks) - 1
		s.chunkAlloc.Free(g.chunks[tail])
		g.chunks[tail] = nil
		g.chunks = g.chunks[:tail]
		s.chunkCount--
	}
	if g.count == 0 {
		s.index.Erase(h)
		s.freeGroups = append(s.freeGroups, gi)
		Config.logger.Debug("chunk group released", zap.Uint64("hash", uint64(h)))
	}
	return removal, nil
}

// Entity returns the entity stored at index.
func (s *ChunkGroupStore) Entity(h ChunkGroupHash, index Index) (Entity, error) {
	_, g, err := s.group(h)
	if err != nil {
		return Entity{}, err
	}
	s.checkIndex(g, index)
	chunk, slot := s.locate(g, index)
	return view.NewValue[Entity](s.layout.entityBytes(chunk, slot)).Get(), nil
}

// GetComponentValue reads the value of component type id at index. T must be
// the type the column was declared with; a column that is missing or whose size
// differs from T is a programming error and panics.
func GetComponentValue[T any](s *ChunkGroupStore, id ComponentTypeID, h ChunkGroupHash, index Index) (T, error) {
	col := s.mustColumn(id, view.SizeOf[T]())
	chunk, slot, err := s.cellAt(h, index)
	if err != nil {
		var zero T
		return zero, err
	}
	return view.NewValue[T](s.layout.cell(chunk, col, slot)).Get(), nil
}

// SetComponentValue writes the value of component type id at index. It panics
// under the same conditions as GetComponentValue.
func SetComponentValue[T any](s *ChunkGroupStore, id ComponentTypeID, h ChunkGroupHash, index Index, value T) error {
	col := s.mustColumn(id, view.SizeOf[T]())
	chunk, slot, err := s.cellAt(h, index)
	if err != nil {
		return err
	}
	view.NewValue[T](s.layout.cell(chunk, col, slot)).Set(value)
	return nil
}

func (s *ChunkGroupStore) mustColumn(id ComponentTypeID, size int) int {
	if !s.HasComponentType(id) {
		panic(fmt.Sprintf("chunkhouse: component type %d is not part of this archetype", id))
	}
	col := s.layout.columnIndex(id)
	if got := s.layout.columns[col].size; got != size {
		panic(fmt.Sprintf("chunkhouse: component type %d holds %d-byte values, accessed as %d bytes", id, got, size))
	}
	return col
}

func (s *ChunkGroupStore) cellAt(h ChunkGroupHash, index Index) ([]byte, int, error) {
	_, g, err := s.group(h)
	if err != nil {
		return nil, 0, err
	}
	s.checkIndex(g, index)
	chunk, slot := s.locate(g, index)
	return chunk, slot, nil
}

func (s *ChunkGroupStore) group(h ChunkGroupHash) (uint32, *chunkGroup, error) {
	gi, found := s.index.Find(h)
	if !found {
		return 0, nil, ChunkGroupNotFoundError{Hash: h}
	}
	return gi, &s.groups[gi], nil
}

func (s *ChunkGroupStore) checkIndex(g *chunkGroup, index Index) {
	if index < 0 || int(index) >= g.count {
		panic(fmt.Sprintf("chunkhouse: index %d out of range [0, %d)", index, g.count))
	}
}

func (s *ChunkGroupStore) locate(g *chunkGroup, index Index) ([]byte, int) {
	epc := s.layout.entitiesPerChunk
	return g.chunks[int(index)/epc], int(index) % epc
}

// copyComponents copies every column the two stores have in common from one
// row to another. Both rows must exist.
func copyComponents(dst *ChunkGroupStore, dstHash ChunkGroupHash, dstIndex Index, src *ChunkGroupStore, srcHash ChunkGroupHash, srcIndex Index) error {
	dstChunk, dstSlot, err := dst.cellAt(dstHash, dstIndex)
	if err != nil {
		return err
	}
	srcChunk, srcSlot, err := src.cellAt(srcHash, srcIndex)
	if err != nil {
		return err
	}
	for srcCol, c := range src.layout.columns {
		dstCol := dst.layout.columnIndex(c.id)
		if dstCol < 0 {
			continue
		}
		copy(dst.layout.cell(dstChunk, dstCol, dstSlot), src.layout.cell(srcChunk, srcCol, srcSlot))
	}
	return nil
}

func (s *ChunkGroupStore) HasComponentType(id ComponentTypeID) bool {
	return s.layout.columnIndex(id) >= 0
}

func (s *ChunkGroupStore) HasSharedComponentType(id ComponentTypeID) bool {
	return s.shared != nil && s.shared.ID == id
}

// SharedComponentType returns the shared component the store is partitioned
// by, if any.
func (s *ChunkGroupStore) SharedComponentType() (SharedComponentTypeInfo, bool) {
	if s.shared == nil {
		return SharedComponentTypeInfo{}, false
	}
	return *s.shared, true
}

// ComponentTypes returns the column descriptors in layout order.
func (s *ChunkGroupStore) ComponentTypes() []ComponentTypeInfo {
	infos := make([]ComponentTypeInfo, len(s.layout.columns))
	for i, c := range s.layout.columns {
		infos[i] = ComponentTypeInfo{ID: c.id, Size: c.size}
	}
	return infos
}

func (s *ChunkGroupStore) NumberOfEntities() int {
	return s.entityCount
}

func (s *ChunkGroupStore) NumberOfEntitiesIn(h ChunkGroupHash) int {
	_, g, err := s.group(h)
	if err != nil {
		return 0
	}
	return g.count
}

func (s *ChunkGroupStore) NumberOfChunks() int {
	return s.chunkCount
}

func (s *ChunkGroupStore) NumberOfChunksIn(h ChunkGroupHash) int {
	_, g, err := s.group(h)
	if err != nil {
		return 0
	}
	return len(g.chunks)
}

func (s *ChunkGroupStore) NumberOfChunkGroups() int {
	return s.index.Len()
}

func (s *ChunkGroupStore) EntitiesPerChunk() int {
	return s.layout.entitiesPerChunk
}

// ChunkSize returns the size in bytes of every chunk in the store.
func (s *ChunkGroupStore) ChunkSize() int {
	return s.layout.chunkSize
}

// Hashes yields the hash of every non-empty chunk group in unspecified order.
func (s *ChunkGroupStore) Hashes() iter.Seq[ChunkGroupHash] {
	return func(yield func(ChunkGroupHash) bool) {
		for h := range s.index.All() {
			if !yield(h) {
				return
			}
		}
	}
}

// Chunks yields the chunks of group h in order.
func (s *ChunkGroupStore) Chunks(h ChunkGroupHash) iter.Seq2[int, ChunkView] {
	return func(yield func(int, ChunkView) bool) {
		_, g, err := s.group(h)
		if err != nil {
			return
		}
		epc := s.layout.entitiesPerChunk
		for i, chunk := range g.chunks {
			rows := min(epc, g.count-i*epc)
			if !yield(i, ChunkView{layout: &s.layout, raw: chunk, rows: rows}) {
				return
			}
		}
	}
}

// ShrinkToFit drops spare capacity from the chunk list of group h.
func (s *ChunkGroupStore) ShrinkToFit(h ChunkGroupHash) {
	_, g, err := s.group(h)
	if err != nil {
		return
	}
	if cap(g.chunks) > len(g.chunks) {
		g.chunks = append([][]byte(nil), g.chunks...)
	}
}

// Compact drops bookkeeping for chunk groups that were released and sit at the
// end of the group table.
func (s *ChunkGroupStore) Compact() {
	if len(s.freeGroups) == 0 {
		return
	}
	free := make(map[uint32]struct{}, len(s.freeGroups))
	for _, gi := range s.freeGroups {
		free[gi] = struct{}{}
	}
	n := len(s.groups)
	for n > 0 {
		if _, ok := free[uint32(n-1)]; !ok {
			break
		}
		n--
	}
	s.groups = append([]chunkGroup(nil), s.groups[:n]...)
	kept := s.freeGroups[:0]
	for _, gi := range s.freeGroups {
		if int(gi) < n {
			kept = append(kept, gi)
		}
	}
	s.freeGroups = kept
}

// Release returns every chunk and the group index to their allocators. The
// store is empty afterwards and may be reused.
func (s *ChunkGroupStore) Release() {
	for h, gi := range s.index.All() {
		g := &s.groups[gi]
		for _, chunk := range g.chunks {
			s.chunkAlloc.Free(chunk)
		}
		Config.logger.Debug("chunk group released", zap.Uint64("hash", uint64(h)))
	}
	s.index.Free()
	s.groups = nil
	s.freeGroups = nil
	s.entityCount = 0
	s.chunkCount = 0
}

// ChunkView is a read view of the occupied rows of one chunk. It is valid until
// the next structural change to its store.
type ChunkView struct {
	layout *chunkLayout
	raw    []byte
	rows   int
}

// Len returns the number of occupied rows.
func (c ChunkView) Len() int {
	return c.rows
}

func (c ChunkView) Entities() view.Slice[Entity] {
	return c.layout.entities(c.raw, c.rows)
}

// ColumnBytes returns the occupied part of a column.
func (c ChunkView) ColumnBytes(id ComponentTypeID) ([]byte, bool) {
	col := c.layout.columnIndex(id)
	if col < 0 {
		return nil, false
	}
	return c.layout.columnBytes(c.raw, col, c.rows), true
}

// Raw returns the whole chunk, including unoccupied rows.
func (c ChunkView) Raw() []byte {
	return c.raw
}

// ColumnOf views a column of chunk as values of T. It panics if the column is
// missing or T has the wrong size.
func ColumnOf[T any](chunk ChunkView, id ComponentTypeID) view.Slice[T] {
	col := chunk.layout.columnIndex(id)
	if col < 0 {
		panic(fmt.Sprintf("chunkhouse: component type %d is not part of this chunk", id))
	}
	if size := chunk.layout.columns[col].size; size != view.SizeOf[T]() {
		panic(fmt.Sprintf("chunkhouse: component type %d holds %d-byte values, accessed as %d bytes", id, size, view.SizeOf[T]()))
	}
	return view.NewSlice[T](chunk.layout.columnBytes(chunk.raw, col, chunk.rows))
}
