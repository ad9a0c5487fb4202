package chunkhouse

import (
	"fmt"
	"iter"
	"reflect"
	"slices"
	"sync"

	"github.com/TheBitDrifter/bark"
	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
	iter_util "github.com/TheBitDrifter/util/iter"
	"go.uber.org/zap"

	"github.com/TheBitDrifter/chunkhouse/memory"
)

var _ World = &world{}

// world routes entity operations to the chunk group store of each entity's
// archetype and keeps every entity's location current.
//
// Mutations hold the write lock, reads the read lock. The lock count is
// separate: while it is non-zero structural changes are refused or queued.
type world struct {
	mu          sync.RWMutex
	locks       int
	opts        Options
	schema      table.Schema
	ids         map[elementKey]ComponentTypeID
	archetypes  *archetypes
	entities    entityRegistry
	shared      *sharedValueCache
	opQueue     opQueue
	chunkHeap   *memory.Heap
	bookkeeping *memory.Heap
}

type elementKey struct {
	typ    reflect.Type
	shared bool
}

type archetypes struct {
	nextID           archetypeID
	asSlice          []*archetype
	pools            []*memory.Pool
	idsGroupedByMask map[mask.Mask]archetypeID
}

func newWorld(opts Options) (*world, error) {
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid world options: %w", err)
	}
	return &world{
		opts:   opts,
		schema: table.Factory.NewSchema(),
		ids:    make(map[elementKey]ComponentTypeID),
		archetypes: &archetypes{
			nextID:           1,
			idsGroupedByMask: make(map[mask.Mask]archetypeID),
		},
		entities:    newEntityRegistry(),
		shared:      newSharedValueCache(opts.MaxSharedValues),
		opQueue:     newOpQueue(),
		chunkHeap:   memory.NewHeap(opts.ChunkMemoryLimit),
		bookkeeping: memory.NewHeap(opts.BookkeepingMemoryLimit),
	}, nil
}

func (w *world) registerElement(elem table.ElementType, d elementDescriptor) ComponentTypeID {
	key := elementKey{typ: d.typ, shared: d.shared}
	if id, ok := w.ids[key]; ok {
		return id
	}
	w.schema.Register(elem)
	id := ComponentTypeID(w.schema.RowIndexFor(elem))
	for other, otherID := range w.ids {
		if otherID == id {
			panic(fmt.Sprintf("chunkhouse: %v (shared=%t) and %v (shared=%t) resolve to the same schema row",
				d.typ, d.shared, other.typ, other.shared))
		}
	}
	w.ids[key] = id
	return id
}

func (w *world) componentIDLocked(d elementDescriptor) (ComponentTypeID, bool) {
	id, ok := w.ids[elementKey{typ: d.typ, shared: d.shared}]
	return id, ok
}

func (w *world) componentID(d elementDescriptor) (ComponentTypeID, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.componentIDLocked(d)
}

// TypeID returns the id elem was registered under. Elements that are neither
// components nor shared types, and types never used in this world, have none.
func (w *world) TypeID(elem table.ElementType) (ComponentTypeID, bool) {
	d, ok := descriptorOf(elem)
	if !ok {
		return 0, false
	}
	return w.componentID(d)
}

func descriptorOf(elem table.ElementType) (elementDescriptor, bool) {
	switch e := elem.(type) {
	case Component:
		return e.descriptor(), true
	case SharedType:
		return e.sharedDescriptor(), true
	}
	return elementDescriptor{}, false
}

// ChunkSizeFor returns the chunk size in bytes of a layout with the given
// columns.
func ChunkSizeFor(infos []ComponentTypeInfo, entitiesPerChunk int) int {
	return newChunkLayout(infos, entitiesPerChunk).chunkSize
}

func (w *world) archetypeFor(components []Component, shared SharedType) (*archetype, error) {
	var archMask mask.Mask
	ids := make([]ComponentTypeID, len(components))
	for i, c := range components {
		id := w.registerElement(c, c.descriptor())
		if slices.Contains(ids[:i], id) {
			panic(fmt.Sprintf("chunkhouse: component %T listed twice in one archetype", c))
		}
		ids[i] = id
		archMask.Mark(uint32(id))
	}
	var sharedID ComponentTypeID
	if shared != nil {
		sharedID = w.registerElement(shared, shared.sharedDescriptor())
		archMask.Mark(uint32(sharedID))
	}

	if id, found := w.archetypes.idsGroupedByMask[archMask]; found {
		return w.archetypes.asSlice[id-1], nil
	}

	infos := make([]ComponentTypeInfo, len(components))
	for i, c := range components {
		infos[i] = ComponentTypeInfo{ID: ids[i], Size: c.descriptor().size}
	}
	var sharedInfo *SharedComponentTypeInfo
	if shared != nil {
		sharedInfo = &SharedComponentTypeInfo{ID: sharedID, Size: shared.sharedDescriptor().size}
	}

	pool := memory.NewPool(ChunkSizeFor(infos, w.opts.EntitiesPerChunk), w.chunkHeap)
	store, err := NewChunkGroupStore(infos, sharedInfo, w.opts.EntitiesPerChunk, pool, w.bookkeeping)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk group store: %w", err)
	}
	if err := store.ReserveChunkGroups(w.opts.ExpectedChunkGroups); err != nil {
		store.Release()
		return nil, fmt.Errorf("failed to create chunk group store: %w", err)
	}

	created := &archetype{
		id:         w.archetypes.nextID,
		mask:       archMask,
		components: slices.Clone(components),
		ids:        ids,
		shared:     shared,
		sharedID:   sharedID,
		store:      store,
	}
	w.archetypes.asSlice = append(w.archetypes.asSlice, created)
	w.archetypes.pools = append(w.archetypes.pools, pool)
	w.archetypes.idsGroupedByMask[archMask] = created.id
	w.archetypes.nextID++

	Config.logger.Debug("archetype created",
		zap.Uint32("id", uint32(created.id)),
		zap.Int("components", len(components)),
		zap.Bool("shared", shared != nil),
		zap.Int("chunk_size", store.ChunkSize()),
	)
	return created, nil
}

// valueIDs resolves the column of every value and checks it belongs to arch.
func (w *world) valueIDs(arch *archetype, values []ComponentValue) ([]ComponentTypeID, error) {
	ids := make([]ComponentTypeID, len(values))
	for i, v := range values {
		c := v.Component()
		id, ok := w.componentIDLocked(c.descriptor())
		if !ok || !arch.hasComponent(id) {
			return nil, ComponentNotFoundError{Component: c}
		}
		ids[i] = id
	}
	return ids, nil
}

func (w *world) locateComponent(entity Entity, c Component) (*entityRecord, ComponentTypeID, error) {
	rec, err := w.entities.lookup(entity)
	if err != nil {
		return nil, 0, err
	}
	id, ok := w.componentIDLocked(c.descriptor())
	if !ok || !rec.arch.hasComponent(id) {
		return nil, 0, ComponentNotFoundError{Component: c}
	}
	return rec, id, nil
}

func checkPlainSignature(sig Signature) {
	if sig.shared != nil {
		panic("chunkhouse: signature declares a shared component, use CreateSharedEntity")
	}
}

func checkSharedSignature(sig Signature, key SharedKey) {
	if sig.shared == nil {
		panic("chunkhouse: signature declares no shared component, use CreateEntity")
	}
	if key.Type == nil || key.Type.sharedDescriptor() != sig.shared.sharedDescriptor() {
		panic(fmt.Sprintf("chunkhouse: shared key of type %T does not match signature shared component %T", key.Type, sig.shared))
	}
}

// CreateEntity creates an entity in the archetype described by sig, which must
// not declare a shared component. Components without a value start zeroed.
func (w *world) CreateEntity(sig Signature, values ...ComponentValue) (Entity, error) {
	checkPlainSignature(sig)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks > 0 {
		return Entity{}, LockedWorldError{}
	}
	return w.createEntity(sig, NoSharedHash, values)
}

// CreateSharedEntity creates an entity grouped under the shared value of key.
// sig must declare key's shared component type.
func (w *world) CreateSharedEntity(sig Signature, key SharedKey, values ...ComponentValue) (Entity, error) {
	checkSharedSignature(sig, key)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks > 0 {
		return Entity{}, LockedWorldError{}
	}
	return w.createSharedEntity(sig, key, values)
}

func (w *world) createSharedEntity(sig Signature, key SharedKey, values []ComponentValue) (Entity, error) {
	keyID := w.registerElement(key.Type, key.Type.sharedDescriptor())
	if !w.shared.Contains(keyID, key.Hash) {
		return Entity{}, SharedValueNotFoundError{Hash: key.Hash}
	}
	return w.createEntity(sig, key.Hash, values)
}

func (w *world) createEntity(sig Signature, hash ChunkGroupHash, values []ComponentValue) (Entity, error) {
	arch, err := w.archetypeFor(sig.components, sig.shared)
	if err != nil {
		return Entity{}, bark.AddTrace(err)
	}
	ids, err := w.valueIDs(arch, values)
	if err != nil {
		return Entity{}, err
	}

	e := w.entities.acquire()
	index, err := arch.store.AddEntity(e, hash)
	if err != nil {
		w.entities.abandon(e)
		return Entity{}, bark.AddTrace(err)
	}
	w.entities.place(e, arch, hash, index)
	for i, v := range values {
		v.write(arch.store, ids[i], hash, index)
	}
	return e, nil
}

func (w *world) DestroyEntity(e Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks > 0 {
		return LockedWorldError{}
	}
	return w.destroyEntity(e)
}

func (w *world) destroyEntity(e Entity) error {
	rec, err := w.entities.lookup(e)
	if err != nil {
		return err
	}
	removal, err := rec.arch.store.RemoveEntity(rec.hash, rec.index)
	if err != nil {
		return bark.AddTrace(err)
	}
	w.entities.moved(removal)
	w.entities.release(e)
	return nil
}

func (w *world) AddComponent(e Entity, c Component) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks > 0 {
		return LockedWorldError{}
	}
	return w.addComponent(e, c, nil)
}

func (w *world) AddComponentWithValue(e Entity, value ComponentValue) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks > 0 {
		return LockedWorldError{}
	}
	return w.addComponent(e, value.Component(), []ComponentValue{value})
}

func (w *world) addComponent(e Entity, c Component, values []ComponentValue) error {
	rec, err := w.entities.lookup(e)
	if err != nil {
		return err
	}
	id := w.registerElement(c, c.descriptor())
	if rec.arch.hasComponent(id) {
		return ComponentExistsError{Component: c}
	}

	comps := append(iter_util.Collect(rec.arch.Components()), c)
	dest, err := w.archetypeFor(comps, rec.arch.shared)
	if err != nil {
		return bark.AddTrace(err)
	}
	return w.moveEntity(e, rec, dest, rec.hash, values)
}

func (w *world) RemoveComponent(e Entity, c Component) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks > 0 {
		return LockedWorldError{}
	}
	return w.removeComponent(e, c)
}

func (w *world) removeComponent(e Entity, c Component) error {
	rec, id, err := w.locateComponent(e, c)
	if err != nil {
		return err
	}

	comps := make([]Component, 0, len(rec.arch.components)-1)
	for i, comp := range rec.arch.components {
		if rec.arch.ids[i] != id {
			comps = append(comps, comp)
		}
	}
	dest, err := w.archetypeFor(comps, rec.arch.shared)
	if err != nil {
		return bark.AddTrace(err)
	}
	return w.moveEntity(e, rec, dest, rec.hash, nil)
}

// AddSharedComponent groups e under the shared value of key. An entity that
// already has a value of the same shared type is regrouped; an entity with a
// different shared type is refused.
func (w *world) AddSharedComponent(e Entity, key SharedKey) error {
	if key.Type == nil {
		panic("chunkhouse: shared key without a type")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks > 0 {
		return LockedWorldError{}
	}

	rec, err := w.entities.lookup(e)
	if err != nil {
		return err
	}
	keyID := w.registerElement(key.Type, key.Type.sharedDescriptor())
	if !w.shared.Contains(keyID, key.Hash) {
		return SharedValueNotFoundError{Hash: key.Hash}
	}
	if rec.arch.shared != nil {
		if rec.arch.sharedID != keyID {
			return SharedComponentExistsError{Shared: rec.arch.shared}
		}
		if rec.hash == key.Hash {
			return nil
		}
		return w.moveEntity(e, rec, rec.arch, key.Hash, nil)
	}

	dest, err := w.archetypeFor(rec.arch.components, key.Type)
	if err != nil {
		return bark.AddTrace(err)
	}
	return w.moveEntity(e, rec, dest, key.Hash, nil)
}

func (w *world) RemoveSharedComponent(e Entity, shared SharedType) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks > 0 {
		return LockedWorldError{}
	}

	rec, err := w.entities.lookup(e)
	if err != nil {
		return err
	}
	id, ok := w.componentIDLocked(shared.sharedDescriptor())
	if !ok || rec.arch.shared == nil || rec.arch.sharedID != id {
		return SharedComponentNotFoundError{Shared: shared}
	}
	dest, err := w.archetypeFor(rec.arch.components, nil)
	if err != nil {
		return bark.AddTrace(err)
	}
	return w.moveEntity(e, rec, dest, NoSharedHash, nil)
}

// moveEntity relocates e to dest under destHash, carrying every component the
// two archetypes share. If dest cannot take the entity, e stays where it was.
func (w *world) moveEntity(e Entity, rec *entityRecord, dest *archetype, destHash ChunkGroupHash, values []ComponentValue) error {
	ids, err := w.valueIDs(dest, values)
	if err != nil {
		return err
	}
	src, srcHash, srcIndex := rec.arch, rec.hash, rec.index

	index, err := dest.store.AddEntity(e, destHash)
	if err != nil {
		return bark.AddTrace(err)
	}
	if err := copyComponents(dest.store, destHash, index, src.store, srcHash, srcIndex); err != nil {
		panic(fmt.Sprintf("chunkhouse: entity %v has a stale location: %v", e, err))
	}
	removal, err := src.store.RemoveEntity(srcHash, srcIndex)
	if err != nil {
		panic(fmt.Sprintf("chunkhouse: entity %v has a stale location: %v", e, err))
	}
	w.entities.moved(removal)
	w.entities.place(e, dest, destHash, index)
	for i, v := range values {
		v.write(dest.store, ids[i], destHash, index)
	}
	return nil
}

func (w *world) Alive(e Entity) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.entities.alive(e)
}

func (w *world) EntityCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.entities.count()
}

// Entities yields a snapshot of the live entities in ascending ID order.
func (w *world) Entities() iter.Seq[Entity] {
	w.mu.RLock()
	snapshot := make([]Entity, 0, w.entities.count())
	for e := range w.entities.all() {
		snapshot = append(snapshot, e)
	}
	w.mu.RUnlock()
	return slices.Values(snapshot)
}

func (w *world) ArchetypeOf(e Entity) (Archetype, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, err := w.entities.lookup(e)
	if err != nil {
		return nil, err
	}
	return rec.arch, nil
}

// Archetypes yields every archetype in creation order.
func (w *world) Archetypes() iter.Seq[Archetype] {
	w.mu.RLock()
	snapshot := slices.Clone(w.archetypes.asSlice)
	w.mu.RUnlock()
	return func(yield func(Archetype) bool) {
		for _, arch := range snapshot {
			if !yield(arch) {
				return
			}
		}
	}
}

func (w *world) Locked() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.locks > 0
}

// Lock defers structural changes until the matching Unlock. Locks nest.
func (w *world) Lock() {
	w.mu.Lock()
	w.locks++
	w.mu.Unlock()
}

// Unlock releases one lock; releasing the last one applies every queued
// operation.
func (w *world) Unlock() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks == 0 {
		panic("chunkhouse: Unlock of an unlocked world")
	}
	w.locks--
	if w.locks > 0 {
		return nil
	}
	return w.processOperationQueue()
}

func (w *world) EnqueueCreateEntity(sig Signature, values ...ComponentValue) error {
	checkPlainSignature(sig)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks == 0 {
		if _, err := w.createEntity(sig, NoSharedHash, values); err != nil {
			return fmt.Errorf("failed to create entity directly: %w", err)
		}
		return nil
	}
	w.opQueue.enqueueOp(operation{typ: opCreate, sig: sig, values: values})
	return nil
}

func (w *world) EnqueueCreateSharedEntity(sig Signature, key SharedKey, values ...ComponentValue) error {
	checkSharedSignature(sig, key)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks == 0 {
		if _, err := w.createSharedEntity(sig, key, values); err != nil {
			return fmt.Errorf("failed to create entity directly: %w", err)
		}
		return nil
	}
	w.opQueue.enqueueOp(operation{typ: opCreate, sig: sig, key: key, shared: true, values: values})
	return nil
}

func (w *world) EnqueueDestroyEntity(e Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks == 0 {
		return w.destroyEntity(e)
	}
	w.opQueue.EnqueueDestroy(e)
	return nil
}

func (w *world) EnqueueAddComponent(e Entity, value ComponentValue) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks == 0 {
		return w.addComponent(e, value.Component(), []ComponentValue{value})
	}
	w.opQueue.EnqueueComponentOp(opAddComponent, e, value.Component(), value)
	return nil
}

func (w *world) EnqueueRemoveComponent(e Entity, c Component) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.locks == 0 {
		return w.removeComponent(e, c)
	}
	w.opQueue.EnqueueComponentOp(opRemoveComponent, e, c, nil)
	return nil
}

// Release destroys every entity and hands all chunk and bookkeeping memory
// back. The world is empty but usable afterwards.
func (w *world) Release() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i, arch := range w.archetypes.asSlice {
		arch.store.Release()
		w.archetypes.pools[i].Release()
	}
	Config.logger.Debug("world released",
		zap.Int("archetypes", len(w.archetypes.asSlice)),
		zap.Int("entities", w.entities.count()),
	)
	w.archetypes.asSlice = nil
	w.archetypes.pools = nil
	w.archetypes.nextID = 1
	clear(w.archetypes.idsGroupedByMask)
	w.entities = newEntityRegistry()
	w.shared.Clear()
	w.opQueue = newOpQueue()
}

// MemoryUsage reports the bytes currently drawn for chunks and for
// bookkeeping. Chunks cached for reuse count as drawn.
func MemoryUsage(w World) (chunks, bookkeeping int) {
	wd := w.(*world)
	wd.mu.RLock()
	defer wd.mu.RUnlock()
	return wd.chunkHeap.Used(), wd.bookkeeping.Used()
}
