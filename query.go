package chunkhouse

import (
	"github.com/TheBitDrifter/mask"
	"github.com/TheBitDrifter/table"
)

type Operation int

const (
	OpAnd Operation = iota
	OpOr
	OpNot
)

type compositeNode struct {
	op       Operation
	children []QueryNode
	elements []table.ElementType
}

type query struct {
	root QueryNode
}

func newQuery() Query {
	return &query{}
}

func newCompositeNode(op Operation, elements []table.ElementType) *compositeNode {
	return &compositeNode{
		op:       op,
		children: make([]QueryNode, 0),
		elements: elements,
	}
}

// nodeMask marks the bit of every element known to w. missing reports whether
// some element has never been registered, so no archetype can contain it.
func nodeMask(elements []table.ElementType, w World) (m mask.Mask, missing bool) {
	for _, elem := range elements {
		id, ok := w.TypeID(elem)
		if !ok {
			missing = true
			continue
		}
		m.Mark(uint32(id))
	}
	return m, missing
}

func (n *compositeNode) Evaluate(archetype Archetype, w World) bool {
	// Build mask at evaluation time
	elemMask, missing := nodeMask(n.elements, w)
	archeMask := archetype.Mask()

	switch n.op {
	case OpAnd:
		if missing || !archeMask.ContainsAll(elemMask) {
			return false
		}
		for _, child := range n.children {
			if !child.Evaluate(archetype, w) {
				return false
			}
		}
		return true

	case OpOr:
		if archeMask.ContainsAny(elemMask) {
			return true
		}
		for _, child := range n.children {
			if child.Evaluate(archetype, w) {
				return true
			}
		}
		return false

	case OpNot:
		for _, child := range n.children {
			if child.Evaluate(archetype, w) {
				return false
			}
		}
		return archeMask.ContainsNone(elemMask)
	}
	return false
}

func (q *query) And(items ...interface{}) QueryNode {
	return q.node(OpAnd, items)
}

func (q *query) Or(items ...interface{}) QueryNode {
	return q.node(OpOr, items)
}

func (q *query) Not(items ...interface{}) QueryNode {
	return q.node(OpNot, items)
}

func (q *query) node(op Operation, items []interface{}) QueryNode {
	elements, children := q.processItems(items...)
	node := newCompositeNode(op, elements)
	node.children = children
	if q.root == nil {
		q.root = node
	}
	return node
}

// processItems sorts items into elements and child nodes. Query nodes are
// matched first; a Component or SharedType is also a table.ElementType.
func (q *query) processItems(items ...interface{}) ([]table.ElementType, []QueryNode) {
	elements := make([]table.ElementType, 0)
	children := make([]QueryNode, 0)

	for _, item := range items {
		switch v := item.(type) {
		case QueryNode:
			children = append(children, v)
		case table.ElementType:
			elements = append(elements, v)
		case []Component:
			for _, c := range v {
				elements = append(elements, c)
			}
		case []SharedType:
			for _, s := range v {
				elements = append(elements, s)
			}
		}
	}

	return elements, children
}

func (q *query) Evaluate(archetype Archetype, w World) bool {
	if q.root == nil {
		return false
	}
	return q.root.Evaluate(archetype, w)
}
