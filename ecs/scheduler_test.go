package ecs_test

import (
	"context"
	"testing"
	"time"

	"github.com/plus3/arena/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type MovementSystem struct {
	Entities ecs.Query[struct {
		*Position
		*Velocity
	}]
	ExecuteCount int
}

func (s *MovementSystem) Execute(frame *ecs.UpdateFrame) {
	s.ExecuteCount++
	for item := range s.Entities.Iter() {
		item.Position.X += item.Velocity.DX * float32(frame.DeltaTime)
		item.Position.Y += item.Velocity.DY * float32(frame.DeltaTime)
	}
}

type HealthSystem struct {
	Entities ecs.Query[struct {
		*Health
	}]
	ExecuteCount int
	TotalHealth  float64
}

func (s *HealthSystem) Execute(frame *ecs.UpdateFrame) {
	s.ExecuteCount++
	s.TotalHealth = 0
	for item := range s.Entities.Iter() {
		s.TotalHealth += float64(item.Health.Current)
	}
}

func TestScheduler(t *testing.T) {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterComponent[Velocity](registry)
	ecs.RegisterComponent[Health](registry)

	t.Run("system execution order and query initialization", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		movement := &MovementSystem{}
		health := &HealthSystem{}

		scheduler.Register(movement)
		scheduler.Register(health)

		storage.Spawn(Position{X: 0, Y: 0}, Velocity{DX: 1, DY: 2})
		storage.Spawn(Health{Current: 100, Max: 100})

		scheduler.Once(1.0)

		if movement.ExecuteCount != 1 {
			t.Errorf("expected MovementSystem to execute once, got %d", movement.ExecuteCount)
		}

		if health.ExecuteCount != 1 {
			t.Errorf("expected HealthSystem to execute once, got %d", health.ExecuteCount)
		}

		scheduler.Once(1.0)

		if movement.ExecuteCount != 2 {
			t.Errorf("expected MovementSystem to execute twice, got %d", movement.ExecuteCount)
		}

		if health.ExecuteCount != 2 {
			t.Errorf("expected HealthSystem to execute twice, got %d", health.ExecuteCount)
		}
	})

	t.Run("custom state persistence", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		storage.Spawn(Health{Current: 50, Max: 100})
		storage.Spawn(Health{Current: 75, Max: 100})

		health := &HealthSystem{}
		scheduler.Register(health)

		scheduler.Once(1.0)

		if health.TotalHealth != 125.0 {
			t.Errorf("expected TotalHealth=125.0, got %f", health.TotalHealth)
		}

		storage.Spawn(Health{Current: 25, Max: 100})

		scheduler.Once(1.0)

		if health.TotalHealth != 150.0 {
			t.Errorf("expected TotalHealth=150.0, got %f", health.TotalHealth)
		}
	})

	t.Run("context cancellation in run", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		movement := &MovementSystem{}
		scheduler.Register(movement)

		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan bool)
		go func() {
			scheduler.Run(ctx, 1*time.Millisecond)
			done <- true
		}()

		time.Sleep(10 * time.Millisecond)
		cancel()

		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
			t.Fatal("scheduler did not stop after context cancellation")
		}

		if movement.ExecuteCount == 0 {
			t.Error("expected system to execute at least once")
		}
	})

	t.Run("delta time calculation", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		storage.Spawn(Position{X: 0, Y: 0}, Velocity{DX: 10, DY: 20})

		movement := &MovementSystem{}
		scheduler.Register(movement)

		scheduler.Once(0.5)

		found := false
		for item := range movement.Entities.Iter() {
			if item.Position.X == 5.0 && item.Position.Y == 10.0 {
				found = true
			}
		}

		if !found {
			t.Error("expected position to be updated with delta time")
		}
	})

	t.Run("commands integration", func(t *testing.T) {
		storage := ecs.NewStorage(registry)
		scheduler := ecs.NewScheduler(storage)

		spawnSystem := &testSpawnSystem{}
		scheduler.Register(spawnSystem)

		scheduler.Once(1.0)

		if !spawnSystem.executed {
			t.Error("expected spawn system to execute")
		}

		movement := &MovementSystem{}
		scheduler.Register(movement)
		scheduler.Once(1.0)

		count := 0
		for range movement.Entities.Iter() {
			count++
		}

		if count == 0 {
			t.Error("expected spawned entity to be visible after command flush")
		}
	})
}

func TestSchedulerFrameHooks(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	scheduler := ecs.NewScheduler(storage)

	var seen []uint64
	scheduler.Register(funcSystem(func(frame *ecs.UpdateFrame) {
		seen = append(seen, frame.Frame)
		frame.Commands.Spawn(Position{X: float32(frame.Frame)})
	}))

	var hooked []string
	var entitiesAtHook int
	scheduler.AfterFrame(func(frame uint64) {
		hooked = append(hooked, "first")
		entitiesAtHook = countEntities(storage)
	})
	scheduler.AfterFrame(func(frame uint64) {
		hooked = append(hooked, "second")
	})

	scheduler.Once(0.1)
	scheduler.Once(0.1)

	assert.Equal(t, []uint64{1, 2}, seen)
	assert.Equal(t, uint64(2), scheduler.Frame())
	assert.Equal(t, []string{"first", "second", "first", "second"}, hooked)
	assert.Equal(t, 2, entitiesAtHook, "hooks run after commands are flushed")

	stats := scheduler.GetStats()
	assert.Equal(t, uint64(2), stats.Frames)
	assert.Equal(t, int64(2), stats.Commands)
}

func TestSchedulerRestoreFromHook(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	storage.Spawn(Position{X: 0}, Velocity{DX: 1})
	scheduler := ecs.NewScheduler(storage)
	movement := &MovementSystem{}
	scheduler.Register(movement)

	checkpoint, err := storage.ExportState()
	require.NoError(t, err)

	scheduler.AfterFrame(func(frame uint64) {
		if frame == 3 {
			require.NoError(t, storage.ImportState(checkpoint))
		}
	})
	for range 4 {
		scheduler.Once(1.0)
	}

	positions := 0
	for item := range movement.Entities.Values() {
		assert.Equal(t, float32(1), item.Position.X, "one frame ran after the restore")
		positions++
	}
	assert.Equal(t, 1, positions)
}
