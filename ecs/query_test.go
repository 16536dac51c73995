package ecs_test

import (
	"testing"

	"github.com/plus3/arena/ecs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queryCount[T any](q *ecs.Query[T]) int {
	count := 0
	for range q.Iter() {
		count++
	}
	return count
}

func TestQuery(t *testing.T) {
	storage := ecs.NewStorage(newTestRegistry())
	storage.Spawn(Position{X: 1, Y: 2}, Velocity{DX: 0.5, DY: 0.5})
	storage.Spawn(Position{X: 3, Y: 4}, Velocity{DX: 1.0, DY: 1.0})
	storage.Spawn(Position{X: 5, Y: 6}, Velocity{DX: 1.5, DY: 1.5}, Health{Current: 100, Max: 100})
	storage.Spawn(Position{X: 7, Y: 8})

	query := ecs.NewQuery[movable](storage)

	t.Run("panics without execute", func(t *testing.T) {
		fresh := ecs.NewQuery[movable](storage)
		assert.Panics(t, func() {
			for range fresh.Iter() {
			}
		})
		assert.Panics(t, func() {
			for range fresh.Values() {
			}
		})
	})

	t.Run("execute builds cache", func(t *testing.T) {
		query.Execute()
		assert.Equal(t, 3, queryCount(query))
		assert.Equal(t, 3, queryCount(query), "repeated iteration uses the same cache")
	})

	t.Run("re-execute sees spawns into existing and new archetypes", func(t *testing.T) {
		storage.Spawn(Position{X: 10, Y: 10}, Velocity{DX: 2.0, DY: 2.0})
		storage.Spawn(Position{}, Velocity{}, Name{Value: "new archetype"})
		query.Execute()
		assert.Equal(t, 5, queryCount(query))

		for item := range query.Values() {
			require.NotNil(t, item.Position)
			require.NotNil(t, item.Velocity)
		}
	})

	t.Run("re-execute after import drops stale archetypes", func(t *testing.T) {
		source := ecs.NewStorage(newTestRegistry())
		source.Spawn(Position{X: 1}, Velocity{DX: 1})
		state, err := source.ExportState()
		require.NoError(t, err)

		require.NoError(t, storage.ImportState(state))
		query.Execute()
		assert.Equal(t, 1, queryCount(query))
	})
}
