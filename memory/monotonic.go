package memory

var _ Allocator = &Monotonic{}

// Monotonic carves blocks out of a caller-supplied buffer. Freed blocks are
// not reused until Reset, and nothing is ever requested from elsewhere, so the
// buffer size is a hard bound on what its users can consume.
type Monotonic struct {
	buf    []byte
	offset int
}

func NewMonotonic(buf []byte) *Monotonic {
	return &Monotonic{buf: buf}
}

func (m *Monotonic) Allocate(size int) ([]byte, error) {
	if size < 0 {
		panic("memory: negative allocation size")
	}
	if m.offset+size > len(m.buf) {
		return nil, outOfMemory(size, len(m.buf)-m.offset)
	}
	block := m.buf[m.offset : m.offset+size : m.offset+size]
	m.offset += size
	clear(block)
	return block, nil
}

// Free is a no-op.
func (m *Monotonic) Free([]byte) {}

// Reset makes the whole buffer available again. Blocks handed out before the
// reset must no longer be used.
func (m *Monotonic) Reset() {
	m.offset = 0
}

func (m *Monotonic) Used() int {
	return m.offset
}

func (m *Monotonic) Remaining() int {
	return len(m.buf) - m.offset
}
