package chunkhouse

import (
	"iter"
)

var _ iCursor = &Cursor{}

func newCursor(query QueryNode, w World) *Cursor {
	return &Cursor{
		query: query,
		world: w.(*world),
	}
}

// Next moves to the next matching chunk. The first call locks the world; the
// call that returns false unlocks it again.
func (c *Cursor) Next() bool {
	if !c.initialized {
		c.initialize()
		c.chunkIndex = 0
	} else {
		c.chunkIndex++
	}
	if c.chunkIndex < len(c.chunks) {
		return true
	}
	c.Reset()
	return false
}

// Chunks yields every matching chunk with the hash of its chunk group. Breaking
// out of the loop early still unlocks the world.
func (c *Cursor) Chunks() iter.Seq2[ChunkGroupHash, ChunkView] {
	return func(yield func(ChunkGroupHash, ChunkView) bool) {
		for c.Next() {
			ref := c.chunks[c.chunkIndex]
			if !yield(ref.hash, ref.chunk) {
				c.Reset()
				return
			}
		}
	}
}

func (c *Cursor) matching() []*archetype {
	matched := make([]*archetype, 0)
	for arch := range c.world.Archetypes() {
		if c.query.Evaluate(arch, c.world) {
			matched = append(matched, arch.(*archetype))
		}
	}
	return matched
}

func (c *Cursor) initialize() {
	if c.initialized {
		return
	}
	c.world.Lock()
	c.err = nil

	// Query evaluation takes the read lock itself
	matched := c.matching()

	c.world.mu.RLock()
	defer c.world.mu.RUnlock()
	c.chunks = c.chunks[:0]
	for _, arch := range matched {
		for h := range arch.store.Hashes() {
			for _, chunk := range arch.store.Chunks(h) {
				c.chunks = append(c.chunks, chunkRef{arch: arch, hash: h, chunk: chunk})
			}
		}
	}
	c.initialized = true
}

// Reset abandons the iteration and unlocks the world. Operations queued while
// the cursor was open run now; their error is kept for Err.
func (c *Cursor) Reset() {
	if !c.initialized {
		return
	}
	c.chunkIndex = 0
	c.chunks = c.chunks[:0]
	c.initialized = false
	c.err = c.world.Unlock()
}

// Err returns the error of the operations applied when the cursor last
// unlocked the world.
func (c *Cursor) Err() error {
	return c.err
}

func (c *Cursor) current() chunkRef {
	if !c.initialized || c.chunkIndex >= len(c.chunks) {
		panic("chunkhouse: cursor is not positioned on a chunk")
	}
	return c.chunks[c.chunkIndex]
}

// Chunk returns the current chunk.
func (c *Cursor) Chunk() ChunkView {
	return c.current().chunk
}

// Hash returns the chunk group hash of the current chunk.
func (c *Cursor) Hash() ChunkGroupHash {
	return c.current().hash
}

// Len returns the number of entities in the current chunk.
func (c *Cursor) Len() int {
	return c.current().chunk.Len()
}

// Archetype returns the archetype of the current chunk.
func (c *Cursor) Archetype() Archetype {
	return c.current().arch
}

func (c *Cursor) currentArchetype() *archetype {
	return c.current().arch
}

// TotalMatched counts the entities the query matches. It does not lock the
// world or move the cursor.
func (c *Cursor) TotalMatched() int {
	if c.initialized {
		total := 0
		for _, ref := range c.chunks {
			total += ref.chunk.Len()
		}
		return total
	}
	matched := c.matching()
	c.world.mu.RLock()
	defer c.world.mu.RUnlock()
	total := 0
	for _, arch := range matched {
		total += arch.store.NumberOfEntities()
	}
	return total
}
