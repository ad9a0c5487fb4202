package bench

import (
	"testing"

	"github.com/mlange-42/arche/ecs"

	"github.com/TheBitDrifter/chunkhouse"
)

// go test -bench=. -benchmem ./...

const (
	nPos    = 9000
	nPosVel = 1000
)

type Position struct {
	X float64
	Y float64
}

type Velocity struct {
	X float64
	Y float64
}

func newChunkhouseWorld(b *testing.B) (chunkhouse.World, chunkhouse.AccessibleComponent[Position], chunkhouse.AccessibleComponent[Velocity]) {
	b.Helper()
	world, err := chunkhouse.Factory.NewWorld(chunkhouse.DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}
	position := chunkhouse.FactoryNewComponent[Position]()
	velocity := chunkhouse.FactoryNewComponent[Velocity]()

	both := chunkhouse.Factory.NewSignature(position, velocity)
	for range nPosVel {
		world.CreateEntity(both, velocity.Value(Velocity{X: 1, Y: 1}))
	}
	only := chunkhouse.Factory.NewSignature(position)
	for range nPos {
		world.CreateEntity(only)
	}
	return world, position, velocity
}

func BenchmarkIterChunkhouseColumns(b *testing.B) {
	world, position, velocity := newChunkhouseWorld(b)
	query := chunkhouse.Factory.NewQuery().And(position, velocity)
	b.ResetTimer()

	for b.Loop() {
		cursor := chunkhouse.Factory.NewCursor(query, world)
		for cursor.Next() {
			positions := position.Column(cursor)
			velocities := velocity.Column(cursor)
			for i := range cursor.Len() {
				pos, vel := positions.Get(i), velocities.Get(i)
				pos.X += vel.X
				pos.Y += vel.Y
				positions.Set(i, pos)
			}
		}
	}
}

func BenchmarkIterChunkhouseGet(b *testing.B) {
	world, position, velocity := newChunkhouseWorld(b)
	query := chunkhouse.Factory.NewQuery().And(position, velocity)
	b.ResetTimer()

	for b.Loop() {
		cursor := chunkhouse.Factory.NewCursor(query, world)
		for cursor.Next() {
			for i := range cursor.Len() {
				pos := position.GetFromCursor(cursor, i)
				vel := velocity.GetFromCursor(cursor, i)
				pos.X += vel.X
				pos.Y += vel.Y
				position.SetFromCursor(cursor, i, pos)
			}
		}
	}
}

func BenchmarkCreateDestroyChunkhouse(b *testing.B) {
	world, position, velocity := newChunkhouseWorld(b)
	sig := chunkhouse.Factory.NewSignature(position, velocity)
	entities := make([]chunkhouse.Entity, 0, nPosVel)
	b.ResetTimer()

	for b.Loop() {
		entities = entities[:0]
		for range nPosVel {
			e, _ := world.CreateEntity(sig)
			entities = append(entities, e)
		}
		for _, e := range entities {
			world.DestroyEntity(e)
		}
	}
}

func BenchmarkIterArche(b *testing.B) {
	world := ecs.NewWorld(ecs.NewConfig().WithCapacityIncrement(1024))

	posID := ecs.ComponentID[Position](&world)
	velID := ecs.ComponentID[Velocity](&world)

	ecs.NewBuilder(&world, posID).NewBatch(nPos)
	ecs.NewBuilder(&world, posID, velID).NewBatch(nPosVel)

	var filter ecs.Filter = ecs.All(posID, velID)
	b.ResetTimer()

	for b.Loop() {
		query := world.Query(filter)
		for query.Next() {
			pos := (*Position)(query.Get(posID))
			vel := (*Velocity)(query.Get(velID))
			pos.X += vel.X
			pos.Y += vel.Y
		}
	}
}
