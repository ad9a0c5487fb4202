/*
Package chunkhouse provides archetype storage for an Entity-Component-System.

Entities with the same set of components share an archetype. Each archetype
keeps its entities in fixed-size chunks: raw byte blocks holding one column per
component plus a column of entity ids. An archetype may also be partitioned by
a shared component, in which case entities with equal shared values live in
their own chunk group and chunks never mix groups.

Core Concepts:

  - Entity: An id plus a generation, reused safely after destruction.
  - Component: A plain (pointer-free) value type stored per entity.
  - Shared component: A value stored once and common to a chunk group.
  - ChunkGroupStore: The chunks of one archetype, grouped by shared value hash.
  - World: Routes entities to stores and moves them when their archetype changes.
  - Query and Cursor: Select archetypes by component and walk their chunks.

Basic Usage:

	world, _ := chunkhouse.Factory.NewWorld(chunkhouse.DefaultOptions())

	position := chunkhouse.FactoryNewComponent[Position]()
	velocity := chunkhouse.FactoryNewComponent[Velocity]()
	sig := chunkhouse.Factory.NewSignature(position, velocity)

	e, _ := world.CreateEntity(sig, velocity.Value(Velocity{X: 1}))

	query := chunkhouse.Factory.NewQuery()
	cursor := chunkhouse.Factory.NewCursor(query.And(position, velocity), world)
	for cursor.Next() {
		pos := position.Column(cursor)
		vel := velocity.Column(cursor)
		for i := range pos.Len() {
			p := pos.Get(i)
			p.X += vel.Get(i).X
			pos.Set(i, p)
		}
	}

While a cursor is open the world is locked: structural changes return
LockedWorldError, and the Enqueue variants defer them until the cursor is done.

The subpackages hold the pieces the stores are built from: view for typed
access to raw bytes, hashmap for the open-addressing map indexing chunk groups,
and memory for the allocators chunks and maps draw from.
*/
package chunkhouse
