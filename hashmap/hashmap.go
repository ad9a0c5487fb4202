/*
Package hashmap implements an open-addressing hash map over integer keys whose
slots live in a single block obtained from a memory.Allocator.

Keys and values are stored in raw memory, so both must be plain types (see the
view package). Collisions are resolved with linear probing and erasure uses
backward-shift deletion, so the table never accumulates tombstones: a map
reserved for n elements keeps working in the same block through any sequence
of insertions, erasures and clears as long as it never holds more than n
elements at once. RequiredMemorySize tells a caller how large that block is,
which is what allows a map to run inside a fixed-size arena.
*/
package hashmap

import (
	"errors"
	"fmt"
	"iter"

	"github.com/TheBitDrifter/chunkhouse/memory"
	"github.com/TheBitDrifter/chunkhouse/view"
)

// ErrKeyNotFound is returned by At when the key is absent.
var ErrKeyNotFound = errors.New("key not found")

// Key is any integer type.
type Key interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

const (
	minCapacity = 8

	// maximum load factor of 7/8
	loadNum = 7
	loadDen = 8

	slotEmpty = 0
	slotFull  = 1
)

// Map is not safe for concurrent mutation.
type Map[K Key, V any] struct {
	alloc  memory.Allocator
	block  []byte
	ctrl   []byte
	keys   view.Slice[K]
	values view.Slice[V]
	mask   uint64
	size   int
}

// New returns an empty map drawing slot memory from alloc. A nil alloc uses an
// unbounded heap. No memory is taken until the first insertion or Reserve.
func New[K Key, V any](alloc memory.Allocator) *Map[K, V] {
	view.MustBePlain[V]()
	if alloc == nil {
		alloc = memory.NewHeap(0)
	}
	return &Map[K, V]{alloc: alloc}
}

func capacityFor(n int) int {
	c := minCapacity
	for n*loadDen > c*loadNum {
		c <<= 1
	}
	return c
}

func slotSize[K Key, V any]() int {
	return 1 + view.SizeOf[K]() + view.SizeOf[V]()
}

// RequiredMemorySize returns the number of bytes a Map[K, V] needs to hold n
// elements without allocating again.
func RequiredMemorySize[K Key, V any](n int) int {
	return capacityFor(n) * slotSize[K, V]()
}

// splitmix64 finalizer; keys are often already hashes but rarely well mixed
// in their low bits.
func mix(k uint64) uint64 {
	k ^= k >> 30
	k *= 0xbf58476d1ce4e5b9
	k ^= k >> 27
	k *= 0x94d049bb133111eb
	k ^= k >> 31
	return k
}

func (m *Map[K, V]) home(k K) uint64 {
	return mix(uint64(k)) & m.mask
}

func (m *Map[K, V]) Len() int {
	return m.size
}

func (m *Map[K, V]) Empty() bool {
	return m.size == 0
}

// Cap returns the number of slots in the table.
func (m *Map[K, V]) Cap() int {
	return len(m.ctrl)
}

// Reserve grows the table so that n elements fit without further allocation.
func (m *Map[K, V]) Reserve(n int) error {
	if n <= 0 {
		return nil
	}
	want := capacityFor(n)
	if want <= len(m.ctrl) {
		return nil
	}
	return m.resize(want)
}

func (m *Map[K, V]) resize(capacity int) error {
	block, err := m.alloc.Allocate(capacity * slotSize[K, V]())
	if err != nil {
		return fmt.Errorf("hashmap resize to %d slots: %w", capacity, err)
	}
	old := *m
	keyBytes := capacity * view.SizeOf[K]()
	m.block = block
	m.ctrl = block[:capacity:capacity]
	m.keys = view.NewSlice[K](block[capacity : capacity+keyBytes])
	m.values = view.NewSlice[V](block[capacity+keyBytes:])
	m.mask = uint64(capacity - 1)
	m.size = 0
	clear(m.ctrl)

	for i, state := range old.ctrl {
		if state == slotFull {
			m.insert(old.keys.Get(i), old.values.Get(i))
		}
	}
	if old.block != nil {
		m.alloc.Free(old.block)
	}
	return nil
}

// lookup returns the slot holding k, or the empty slot where k would go.
func (m *Map[K, V]) lookup(k K) (uint64, bool) {
	i := m.home(k)
	for m.ctrl[i] == slotFull {
		if m.keys.Get(int(i)) == k {
			return i, true
		}
		i = (i + 1) & m.mask
	}
	return i, false
}

func (m *Map[K, V]) insert(k K, v V) {
	i, _ := m.lookup(k)
	m.ctrl[i] = slotFull
	m.keys.Set(int(i), k)
	m.values.Set(int(i), v)
	m.size++
}

// Emplace inserts k with value v. If k is already present the map is left
// untouched and Emplace reports false.
func (m *Map[K, V]) Emplace(k K, v V) (bool, error) {
	if m.size > 0 {
		if _, found := m.lookup(k); found {
			return false, nil
		}
	}
	if (m.size+1)*loadDen > len(m.ctrl)*loadNum {
		if err := m.resize(capacityFor(max(m.size+1, 2*m.size))); err != nil {
			return false, err
		}
	}
	m.insert(k, v)
	return true, nil
}

// Find returns the value stored for k.
func (m *Map[K, V]) Find(k K) (V, bool) {
	var zero V
	if m.size == 0 {
		return zero, false
	}
	i, found := m.lookup(k)
	if !found {
		return zero, false
	}
	return m.values.Get(int(i)), true
}

// At is Find with a typed miss.
func (m *Map[K, V]) At(k K) (V, error) {
	v, ok := m.Find(k)
	if !ok {
		return v, fmt.Errorf("hashmap at %v: %w", k, ErrKeyNotFound)
	}
	return v, nil
}

func (m *Map[K, V]) Contains(k K) bool {
	_, ok := m.Find(k)
	return ok
}

// Update overwrites the value of an existing key.
func (m *Map[K, V]) Update(k K, v V) bool {
	if m.size == 0 {
		return false
	}
	i, found := m.lookup(k)
	if !found {
		return false
	}
	m.values.Set(int(i), v)
	return true
}

// Erase removes k and reports whether it was present.
func (m *Map[K, V]) Erase(k K) bool {
	if m.size == 0 {
		return false
	}
	i, found := m.lookup(k)
	if !found {
		return false
	}
	j := i
	for {
		j = (j + 1) & m.mask
		if m.ctrl[j] == slotEmpty {
			break
		}
		h := m.home(m.keys.Get(int(j)))
		// entry j stays put when its home lies cyclically in (i, j]
		if i <= j {
			if i < h && h <= j {
				continue
			}
		} else if i < h || h <= j {
			continue
		}
		copy(m.keys.Bytes(int(i)), m.keys.Bytes(int(j)))
		copy(m.values.Bytes(int(i)), m.values.Bytes(int(j)))
		i = j
	}
	m.ctrl[i] = slotEmpty
	m.size--
	return true
}

// Clear removes every element and keeps the table.
func (m *Map[K, V]) Clear() {
	clear(m.ctrl)
	m.size = 0
}

// Swap exchanges the contents of two maps, allocators included.
func (m *Map[K, V]) Swap(other *Map[K, V]) {
	*m, *other = *other, *m
}

// All yields every element in unspecified order. The map must not be mutated
// during iteration.
func (m *Map[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for i, state := range m.ctrl {
			if state != slotFull {
				continue
			}
			if !yield(m.keys.Get(i), m.values.Get(i)) {
				return
			}
		}
	}
}

// Free returns the table to the allocator and leaves an empty map.
func (m *Map[K, V]) Free() {
	if m.block != nil {
		m.alloc.Free(m.block)
	}
	*m = Map[K, V]{alloc: m.alloc}
}
