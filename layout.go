package chunkhouse

import (
	"fmt"

	"github.com/TheBitDrifter/chunkhouse/view"
)

var entitySize = view.SizeOf[Entity]()

type column struct {
	id     ComponentTypeID
	size   int
	offset int
}

// chunkLayout maps (column, slot) to byte ranges inside a chunk. Columns are
// laid out in descriptor order, each entitiesPerChunk*size bytes long, and are
// followed by entitiesPerChunk entity ids.
type chunkLayout struct {
	columns          []column
	entitiesPerChunk int
	entityOffset     int
	chunkSize        int
}

func newChunkLayout(infos []ComponentTypeInfo, entitiesPerChunk int) chunkLayout {
	if entitiesPerChunk < 1 {
		panic(fmt.Sprintf("chunkhouse: entities per chunk must be positive, got %d", entitiesPerChunk))
	}
	layout := chunkLayout{
		columns:          make([]column, len(infos)),
		entitiesPerChunk: entitiesPerChunk,
	}
	offset := 0
	for i, info := range infos {
		if info.Size < 0 {
			panic(fmt.Sprintf("chunkhouse: component type %d has negative size %d", info.ID, info.Size))
		}
		for _, prev := range infos[:i] {
			if prev.ID == info.ID {
				panic(fmt.Sprintf("chunkhouse: component type %d listed twice", info.ID))
			}
		}
		layout.columns[i] = column{id: info.ID, size: info.Size, offset: offset}
		offset += entitiesPerChunk * info.Size
	}
	layout.entityOffset = offset
	layout.chunkSize = offset + entitiesPerChunk*entitySize
	return layout
}

func (l *chunkLayout) columnIndex(id ComponentTypeID) int {
	for i, col := range l.columns {
		if col.id == id {
			return i
		}
	}
	return -1
}

func (l *chunkLayout) checkSlot(chunk []byte, slot int) {
	if len(chunk) != l.chunkSize {
		panic(fmt.Sprintf("chunkhouse: chunk of %d bytes, layout expects %d", len(chunk), l.chunkSize))
	}
	if slot < 0 || slot >= l.entitiesPerChunk {
		panic(fmt.Sprintf("chunkhouse: slot %d out of range [0, %d)", slot, l.entitiesPerChunk))
	}
}

// cell returns the bytes of one component value.
func (l *chunkLayout) cell(chunk []byte, col, slot int) []byte {
	l.checkSlot(chunk, slot)
	c := l.columns[col]
	start := c.offset + slot*c.size
	return chunk[start : start+c.size : start+c.size]
}

// columnBytes returns the first rows values of a column.
func (l *chunkLayout) columnBytes(chunk []byte, col, rows int) []byte {
	c := l.columns[col]
	end := c.offset + rows*c.size
	return chunk[c.offset:end:end]
}

func (l *chunkLayout) entities(chunk []byte, rows int) view.Slice[Entity] {
	end := l.entityOffset + rows*entitySize
	return view.NewSlice[Entity](chunk[l.entityOffset:end:end])
}

func (l *chunkLayout) entityBytes(chunk []byte, slot int) []byte {
	l.checkSlot(chunk, slot)
	start := l.entityOffset + slot*entitySize
	return chunk[start : start+entitySize : start+entitySize]
}

// copyRow copies every column and the entity id of one slot to another.
func (l *chunkLayout) copyRow(dst []byte, dstSlot int, src []byte, srcSlot int) {
	for i := range l.columns {
		copy(l.cell(dst, i, dstSlot), l.cell(src, i, srcSlot))
	}
	copy(l.entityBytes(dst, dstSlot), l.entityBytes(src, srcSlot))
}

func (l *chunkLayout) clearRow(chunk []byte, slot int) {
	for i := range l.columns {
		clear(l.cell(chunk, i, slot))
	}
	clear(l.entityBytes(chunk, slot))
}
