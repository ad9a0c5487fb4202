package chunkhouse

import (
	"bytes"
	"hash/maphash"

	"go.uber.org/zap"
)

var sharedSeed = maphash.MakeSeed()

type sharedLocation struct {
	typeID ComponentTypeID
	hash   ChunkGroupHash
}

// sharedValueCache holds the raw bytes of every registered shared value, keyed
// by type and chunk group hash. Hashes are unique per type: a value whose hash
// collides with a different value is moved to the next free hash.
type sharedValueCache struct {
	items       [][]byte
	itemIndices map[sharedLocation]int
	maxCapacity int
}

func newSharedValueCache(maxCapacity int) *sharedValueCache {
	return &sharedValueCache{
		itemIndices: make(map[sharedLocation]int),
		maxCapacity: maxCapacity,
	}
}

func hashSharedValue(raw []byte) ChunkGroupHash {
	h := ChunkGroupHash(maphash.Bytes(sharedSeed, raw))
	if h == NoSharedHash {
		h++
	}
	return h
}

func (c *sharedValueCache) Register(typeID ComponentTypeID, raw []byte) (ChunkGroupHash, error) {
	hash := hashSharedValue(raw)
	for {
		loc := sharedLocation{typeID: typeID, hash: hash}
		idx, ok := c.itemIndices[loc]
		if !ok {
			break
		}
		if bytes.Equal(c.items[idx], raw) {
			return hash, nil
		}
		hash++
		if hash == NoSharedHash {
			hash++
		}
	}

	if c.maxCapacity > 0 && len(c.items) >= c.maxCapacity {
		return NoSharedHash, SharedValueLimitError{Limit: c.maxCapacity}
	}
	c.itemIndices[sharedLocation{typeID: typeID, hash: hash}] = len(c.items)
	c.items = append(c.items, raw)

	Config.logger.Debug("shared value registered",
		zap.Uint32("type", uint32(typeID)),
		zap.Uint64("hash", uint64(hash)),
		zap.Int("size", len(raw)),
	)
	return hash, nil
}

func (c *sharedValueCache) Get(typeID ComponentTypeID, hash ChunkGroupHash) ([]byte, bool) {
	idx, ok := c.itemIndices[sharedLocation{typeID: typeID, hash: hash}]
	if !ok {
		return nil, false
	}
	return c.items[idx], true
}

func (c *sharedValueCache) Contains(typeID ComponentTypeID, hash ChunkGroupHash) bool {
	_, ok := c.itemIndices[sharedLocation{typeID: typeID, hash: hash}]
	return ok
}

func (c *sharedValueCache) Len() int {
	return len(c.items)
}

func (c *sharedValueCache) Clear() {
	c.items = nil
	c.itemIndices = make(map[sharedLocation]int)
}
