package memory

import "fmt"

var _ Allocator = &Pool{}

// Pool keeps freed blocks of one size around for reuse. Requests for any
// other size go straight to the upstream allocator.
type Pool struct {
	blockSize int
	upstream  Allocator
	free      [][]byte
}

func NewPool(blockSize int, upstream Allocator) *Pool {
	if blockSize <= 0 {
		panic(fmt.Sprintf("memory: pool block size must be positive, got %d", blockSize))
	}
	if upstream == nil {
		upstream = NewHeap(0)
	}
	return &Pool{blockSize: blockSize, upstream: upstream}
}

func (p *Pool) Allocate(size int) ([]byte, error) {
	if size != p.blockSize || len(p.free) == 0 {
		return p.upstream.Allocate(size)
	}
	last := len(p.free) - 1
	block := p.free[last]
	p.free[last] = nil
	p.free = p.free[:last]
	clear(block)
	return block, nil
}

func (p *Pool) Free(block []byte) {
	if len(block) != p.blockSize {
		p.upstream.Free(block)
		return
	}
	p.free = append(p.free, block)
}

// Cached returns the number of blocks waiting for reuse.
func (p *Pool) Cached() int {
	return len(p.free)
}

func (p *Pool) BlockSize() int {
	return p.blockSize
}

// Release hands every cached block back to the upstream allocator.
func (p *Pool) Release() {
	for i, block := range p.free {
		p.upstream.Free(block)
		p.free[i] = nil
	}
	p.free = p.free[:0]
}
