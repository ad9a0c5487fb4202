package chunkhouse

import "github.com/TheBitDrifter/table"

type factory struct{}

var Factory factory

// NewWorld creates an empty world. Invalid options are reported, not fixed.
func (f factory) NewWorld(opts Options) (World, error) {
	w, err := newWorld(opts)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// NewSignature lists the components of an archetype in column order.
func (f factory) NewSignature(components ...Component) Signature {
	return Signature{components: append([]Component(nil), components...)}
}

func (f factory) NewQuery() Query {
	return newQuery()
}

func (f factory) NewCursor(query QueryNode, w World) *Cursor {
	return newCursor(query, w)
}

func FactoryNewComponent[T any]() AccessibleComponent[T] {
	return AccessibleComponent[T]{
		ElementType: table.FactoryNewElementType[T](),
		desc:        newDescriptor[T](false),
	}
}

func FactoryNewSharedComponent[S any]() SharedComponent[S] {
	return SharedComponent[S]{
		ElementType: table.FactoryNewElementType[S](),
		desc:        newDescriptor[S](true),
	}
}
