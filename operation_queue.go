package chunkhouse

import (
	"errors"
	"fmt"
)

type operation struct {
	typ    operationType
	sig    Signature
	key    SharedKey
	shared bool
	values []ComponentValue
	entity Entity
	comp   Component
}

type operationType int

const (
	opCreate operationType = iota
	opDestroy
	opAddComponent
	opRemoveComponent
	opCancelled
)

type opQueue struct {
	createOps      []operation
	componentOps   []operation
	destroyOps     []operation
	pendingDestroy map[Entity]struct{}
	pendingMods    map[Entity][]int
}

func newOpQueue() opQueue {
	return opQueue{
		pendingDestroy: make(map[Entity]struct{}),
		pendingMods:    make(map[Entity][]int),
	}
}

func (q *opQueue) enqueueOp(op operation) {
	switch op.typ {
	case opCreate:
		q.createOps = append(q.createOps, op)
	case opDestroy:
		q.destroyOps = append(q.destroyOps, op)
	case opAddComponent, opRemoveComponent:
		q.componentOps = append(q.componentOps, op)
	}
}

func (q *opQueue) empty() bool {
	return len(q.createOps) == 0 &&
		len(q.componentOps) == 0 &&
		len(q.destroyOps) == 0
}

// processOperationQueue applies queued operations: creates first, then
// component changes, then destroys. Every operation is attempted; failures are
// joined into the returned error. The caller holds the write lock.
func (w *world) processOperationQueue() error {
	if w.opQueue.empty() {
		return nil
	}
	var errs []error

	for _, op := range w.opQueue.createOps {
		var err error
		if op.shared {
			_, err = w.createSharedEntity(op.sig, op.key, op.values)
		} else {
			_, err = w.createEntity(op.sig, NoSharedHash, op.values)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("failed to process queued entity creation: %w", err))
		}
	}

	for _, op := range w.opQueue.componentOps {
		// Entity may have been destroyed since the op was queued
		if !w.entities.alive(op.entity) {
			continue
		}
		switch op.typ {
		case opAddComponent:
			if err := w.addComponent(op.entity, op.comp, op.values); err != nil {
				errs = append(errs, fmt.Errorf("failed to add queued component: %w", err))
			}
		case opRemoveComponent:
			if err := w.removeComponent(op.entity, op.comp); err != nil {
				errs = append(errs, fmt.Errorf("failed to remove queued component: %w", err))
			}
		}
	}

	for _, op := range w.opQueue.destroyOps {
		if !w.entities.alive(op.entity) {
			continue
		}
		if err := w.destroyEntity(op.entity); err != nil {
			errs = append(errs, fmt.Errorf("failed to destroy queued entity: %w", err))
		}
	}

	// Clear all queues
	w.opQueue.createOps = w.opQueue.createOps[:0]
	w.opQueue.componentOps = w.opQueue.componentOps[:0]
	w.opQueue.destroyOps = w.opQueue.destroyOps[:0]
	clear(w.opQueue.pendingDestroy)
	clear(w.opQueue.pendingMods)
	return errors.Join(errs...)
}

func (q *opQueue) EnqueueDestroy(entity Entity) {
	if _, exists := q.pendingDestroy[entity]; exists {
		return
	}
	q.pendingDestroy[entity] = struct{}{}

	// Component changes to an entity about to be destroyed are pointless
	for _, idx := range q.pendingMods[entity] {
		q.componentOps[idx].typ = opCancelled
	}
	delete(q.pendingMods, entity)

	q.enqueueOp(operation{typ: opDestroy, entity: entity})
}

func (q *opQueue) EnqueueComponentOp(typ operationType, entity Entity, comp Component, value ComponentValue) {
	// If entity is pending destroy, ignore component operations
	if _, isDestroyed := q.pendingDestroy[entity]; isDestroyed {
		return
	}
	op := operation{typ: typ, entity: entity, comp: comp}
	if value != nil {
		op.values = []ComponentValue{value}
	}
	q.pendingMods[entity] = append(q.pendingMods[entity], len(q.componentOps))
	q.enqueueOp(op)
}
