// chunkbench drives independent worlds through a create, update and destroy
// workload and reports timings and memory use.
//
// Profiling:
// go build ./cmd/chunkbench
// ./chunkbench -profile mem
// go tool pprof -http=":8000" ./chunkbench mem.pprof
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/profile"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/TheBitDrifter/chunkhouse"
)

type position struct {
	X, Y float64
}

type velocity struct {
	X, Y float64
}

type health struct {
	Current, Max int32
}

type region struct {
	ID uint32
}

type components struct {
	pos chunkhouse.AccessibleComponent[position]
	vel chunkhouse.AccessibleComponent[velocity]
	hp  chunkhouse.AccessibleComponent[health]
	reg chunkhouse.SharedComponent[region]
}

type params struct {
	worlds   int
	entities int
	rounds   int
	regions  int
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "world options file (.toml, .yaml or .yml)")
	profileMode := flag.String("profile", "", "profile to record: cpu or mem")
	var p params
	flag.IntVar(&p.worlds, "worlds", 4, "number of independent worlds")
	flag.IntVar(&p.entities, "entities", 10000, "entities created per world and round")
	flag.IntVar(&p.rounds, "rounds", 20, "rounds per world")
	flag.IntVar(&p.regions, "regions", 8, "distinct shared region values per world")
	flag.Parse()

	opts := chunkhouse.DefaultOptions()
	if *configPath != "" {
		loaded, err := chunkhouse.LoadOptions(*configPath)
		if err != nil {
			return err
		}
		opts = loaded
	}

	log, err := opts.Logging.NewLogger()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()
	chunkhouse.Config.SetLogger(log)
	chunkhouse.Config.SetExpectedChunkGroups(opts.ExpectedChunkGroups)

	switch *profileMode {
	case "":
	case "cpu":
		defer profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	case "mem":
		defer profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook).Stop()
	default:
		return fmt.Errorf("unknown profile mode %q", *profileMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("chunkbench starting",
		zap.Int("worlds", p.worlds),
		zap.Int("entities", p.entities),
		zap.Int("rounds", p.rounds),
		zap.Int("entities_per_chunk", opts.EntitiesPerChunk),
	)

	// Component handles are created once and shared by every world
	comps := components{
		pos: chunkhouse.FactoryNewComponent[position](),
		vel: chunkhouse.FactoryNewComponent[velocity](),
		hp:  chunkhouse.FactoryNewComponent[health](),
		reg: chunkhouse.FactoryNewSharedComponent[region](),
	}

	start := time.Now()
	g, ctx := errgroup.WithContext(ctx)
	for i := range p.worlds {
		g.Go(func() error {
			return runWorld(ctx, log.With(zap.Int("world", i)), opts, p, comps, uint64(i))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("chunkbench finished", zap.Duration("elapsed", time.Since(start)))
	return nil
}

// runWorld owns one world for its whole life; worlds are never shared between
// goroutines.
func runWorld(ctx context.Context, log *zap.Logger, opts chunkhouse.Options, p params, c components, seed uint64) error {
	world, err := chunkhouse.Factory.NewWorld(opts)
	if err != nil {
		return err
	}
	defer world.Release()

	pos, vel, hp, reg := c.pos, c.vel, c.hp, c.reg

	keys := make([]chunkhouse.SharedKey, p.regions)
	for i := range keys {
		if keys[i], err = chunkhouse.CreateSharedComponent(world, reg, region{ID: uint32(i)}); err != nil {
			return fmt.Errorf("register region %d: %w", i, err)
		}
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	moving := chunkhouse.Factory.NewSignature(pos, vel)
	regional := chunkhouse.Factory.NewSignature(pos, vel).WithShared(reg)
	update := chunkhouse.Factory.NewQuery().And(pos, vel)

	for round := range p.rounds {
		if err := ctx.Err(); err != nil {
			return err
		}
		roundStart := time.Now()

		entities := make([]chunkhouse.Entity, 0, p.entities)
		for i := range p.entities {
			v := vel.Value(velocity{X: rng.Float64(), Y: rng.Float64()})
			var e chunkhouse.Entity
			if i%2 == 0 {
				e, err = world.CreateEntity(moving, v)
			} else {
				e, err = world.CreateSharedEntity(regional, keys[rng.IntN(len(keys))], v)
			}
			if err != nil {
				return fmt.Errorf("round %d: create: %w", round, err)
			}
			entities = append(entities, e)
		}
		created := time.Since(roundStart)

		cursor := chunkhouse.Factory.NewCursor(update, world)
		for cursor.Next() {
			positions := pos.Column(cursor)
			velocities := vel.Column(cursor)
			for row := range cursor.Len() {
				at, v := positions.Get(row), velocities.Get(row)
				at.X += v.X
				at.Y += v.Y
				positions.Set(row, at)
			}
			// Structural changes wait until the cursor is done
			ids := cursor.Chunk().Entities()
			for row := 0; row < cursor.Len(); row += 16 {
				if err := world.EnqueueAddComponent(ids.Get(row), hp.Value(health{Current: 100, Max: 100})); err != nil {
					return err
				}
			}
		}
		if err := cursor.Err(); err != nil {
			return fmt.Errorf("round %d: queued operations: %w", round, err)
		}
		updated := time.Since(roundStart) - created

		for _, e := range entities {
			if err := world.DestroyEntity(e); err != nil {
				return fmt.Errorf("round %d: destroy: %w", round, err)
			}
		}

		chunks, bookkeeping := chunkhouse.MemoryUsage(world)
		log.Debug("round complete",
			zap.Int("round", round),
			zap.Duration("create", created),
			zap.Duration("update", updated),
			zap.Duration("total", time.Since(roundStart)),
			zap.Int("chunk_bytes", chunks),
			zap.Int("bookkeeping_bytes", bookkeeping),
		)
	}

	archetypes := 0
	for range world.Archetypes() {
		archetypes++
	}
	chunks, bookkeeping := chunkhouse.MemoryUsage(world)
	log.Info("world complete",
		zap.Int("archetypes", archetypes),
		zap.Int("live_entities", world.EntityCount()),
		zap.Int("chunk_bytes", chunks),
		zap.Int("bookkeeping_bytes", bookkeeping),
	)
	return nil
}
