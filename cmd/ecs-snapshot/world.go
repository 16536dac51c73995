package main

import (
	"math/rand"

	"github.com/plus3/arena/ecs"
)

type Position struct {
	X, Y float64
}

type Velocity struct {
	DX, DY float64
}

type Health struct {
	Current int
	Max     int
}

// Lifetime counts down; entities are deleted when it reaches zero.
type Lifetime struct {
	Remaining float64
}

type Tag string

// SimClock is the simulation's singleton clock.
type SimClock struct {
	Frame   uint64
	Elapsed float64
}

// newRegistry registers the simulation components under stable names so
// snapshots survive renames of the Go types.
func newRegistry() *ecs.ComponentRegistry {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterNamedComponent[Position](registry, "position")
	ecs.RegisterNamedComponent[Velocity](registry, "velocity")
	ecs.RegisterNamedComponent[Health](registry, "health")
	ecs.RegisterNamedComponent[Lifetime](registry, "lifetime")
	ecs.RegisterNamedComponent[Tag](registry, "tag")
	ecs.RegisterNamedComponent[SimClock](registry, "clock")
	return registry
}

// spawnRandomEntity spawns an entity with up to n of the simulation components.
func spawnRandomEntity(storage *ecs.Storage, rng *rand.Rand, n int) ecs.EntityId {
	candidates := []func() any{
		func() any { return Position{X: rng.Float64() * 100, Y: rng.Float64() * 100} },
		func() any { return Velocity{DX: rng.Float64()*2 - 1, DY: rng.Float64()*2 - 1} },
		func() any { return Health{Current: 50 + rng.Intn(50), Max: 100} },
		func() any { return Lifetime{Remaining: 1 + rng.Float64()*10} },
		func() any { return Tag([]string{"red", "green", "blue"}[rng.Intn(3)]) },
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})

	if n < 1 {
		n = 1
	}
	if n > len(candidates) {
		n = len(candidates)
	}
	components := make([]any, 0, n)
	for _, c := range candidates[:n] {
		components = append(components, c())
	}
	return storage.Spawn(components...)
}

type MovementSystem struct {
	Movers ecs.Query[struct {
		*Position
		*Velocity
	}]
}

func (s *MovementSystem) Execute(frame *ecs.UpdateFrame) {
	s.Movers.Execute()
	for mover := range s.Movers.Values() {
		mover.Position.X += mover.Velocity.DX * frame.DeltaTime
		mover.Position.Y += mover.Velocity.DY * frame.DeltaTime
	}
}

type LifetimeSystem struct {
	Mortals ecs.Query[struct{ *Lifetime }]
}

func (s *LifetimeSystem) Execute(frame *ecs.UpdateFrame) {
	s.Mortals.Execute()
	for id, mortal := range s.Mortals.Iter() {
		mortal.Lifetime.Remaining -= frame.DeltaTime
		if mortal.Lifetime.Remaining <= 0 {
			frame.Commands.Delete(id)
		}
	}
}

// RespawnSystem keeps the population at Target entities.
type RespawnSystem struct {
	Target int
	Rand   *rand.Rand
}

func (s *RespawnSystem) Execute(frame *ecs.UpdateFrame) {
	alive := frame.Storage.CollectStats().TotalEntityCount
	storage := frame.Storage
	for i := alive; i < s.Target; i++ {
		n := s.Rand.Intn(5) + 1
		frame.Commands.Defer(func() {
			spawnRandomEntity(storage, s.Rand, n)
		})
	}
}

type ClockSystem struct {
	Clock ecs.Singleton[SimClock]
}

func (s *ClockSystem) Execute(frame *ecs.UpdateFrame) {
	clock := s.Clock.Get()
	clock.Frame++
	clock.Elapsed += frame.DeltaTime
}
