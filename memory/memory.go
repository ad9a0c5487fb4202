// Package memory provides the allocation contexts chunk storage draws from.
package memory

import (
	"errors"
	"fmt"
)

// ErrOutOfMemory is returned when an allocator cannot satisfy a request.
var ErrOutOfMemory = errors.New("allocator out of memory")

// Allocator hands out zeroed byte blocks and takes them back.
type Allocator interface {
	Allocate(size int) ([]byte, error)
	Free(block []byte)
}

func outOfMemory(size, remaining int) error {
	return fmt.Errorf("allocate %d bytes (%d remaining): %w", size, remaining, ErrOutOfMemory)
}

var _ Allocator = &Heap{}

// Heap allocates from the Go heap, optionally capped at a byte budget.
type Heap struct {
	limit int
	used  int
}

// NewHeap returns a heap allocator. A limit of zero means unlimited.
func NewHeap(limit int) *Heap {
	return &Heap{limit: limit}
}

func (h *Heap) Allocate(size int) ([]byte, error) {
	if size < 0 {
		panic(fmt.Sprintf("memory: negative allocation size %d", size))
	}
	if h.limit > 0 && h.used+size > h.limit {
		return nil, outOfMemory(size, h.limit-h.used)
	}
	h.used += size
	return make([]byte, size), nil
}

func (h *Heap) Free(block []byte) {
	h.used -= len(block)
	if h.used < 0 {
		panic("memory: heap freed more than it allocated")
	}
}

// Used returns the number of bytes currently handed out.
func (h *Heap) Used() int {
	return h.used
}

// Limit returns the byte budget, zero when unlimited.
func (h *Heap) Limit() int {
	return h.limit
}
