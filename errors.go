package chunkhouse

import "fmt"

type LockedWorldError struct{}

func (e LockedWorldError) Error() string {
	return "world is currently locked"
}

type EntityNotFoundError struct {
	Entity Entity
}

func (e EntityNotFoundError) Error() string {
	return fmt.Sprintf("entity %v does not exist", e.Entity)
}

type ComponentExistsError struct {
	Component Component
}

func (e ComponentExistsError) Error() string {
	return fmt.Sprintf("component already exists on entity: %T", e.Component)
}

type ComponentNotFoundError struct {
	Component Component
}

func (e ComponentNotFoundError) Error() string {
	return fmt.Sprintf("component does not exist on entity: %T", e.Component)
}

type SharedComponentExistsError struct {
	Shared SharedType
}

func (e SharedComponentExistsError) Error() string {
	return fmt.Sprintf("entity already has a different shared component: %T", e.Shared)
}

type SharedComponentNotFoundError struct {
	Shared SharedType
}

func (e SharedComponentNotFoundError) Error() string {
	return fmt.Sprintf("shared component does not exist on entity: %T", e.Shared)
}

type SharedValueNotFoundError struct {
	Hash ChunkGroupHash
}

func (e SharedValueNotFoundError) Error() string {
	return fmt.Sprintf("no shared value registered for hash %#x", uint64(e.Hash))
}

type SharedValueLimitError struct {
	Limit int
}

func (e SharedValueLimitError) Error() string {
	return fmt.Sprintf("shared value registry at maximum capacity (%d)", e.Limit)
}

type ChunkGroupNotFoundError struct {
	Hash ChunkGroupHash
}

func (e ChunkGroupNotFoundError) Error() string {
	return fmt.Sprintf("no chunk group for hash %#x", uint64(e.Hash))
}
