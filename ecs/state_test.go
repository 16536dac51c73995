package ecs_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plus3/arena/ecs"
	"github.com/plus3/arena/snapshot"
)

type Ledger struct {
	Balance int64
	Owner   string
}

type WorldClock struct {
	Tick uint64
}

type Transient struct {
	Frames int
}

type Attributes map[string]int

type Armor struct {
	Rating int
}

type Signal chan int

type Sheet struct {
	Attributes Attributes
	Armor      *Armor
}

func newStateRegistry() *ecs.ComponentRegistry {
	registry := newTestRegistry()
	ecs.RegisterNamedComponent[Ledger](registry, "ledger")
	ecs.RegisterNamedComponent[WorldClock](registry, "clock")
	return registry
}

func populate(storage *ecs.Storage) {
	storage.Spawn(Position{X: 1, Y: 2}, Velocity{DX: 0.5, DY: -1})
	storage.Spawn(Position{X: 3, Y: 4}, Velocity{DX: 0, DY: 0})
	storage.Spawn(Position{X: 5, Y: 6})
	storage.Spawn(Health{Current: 10, Max: 20}, Name{Value: "orc"}, Inventory{Items: []string{"axe", "bread"}})
	storage.Spawn(Ledger{Balance: math.MaxInt64, Owner: "bank"})
	ecs.NewSingleton[WorldClock](storage, WorldClock{Tick: 99})
}

func mustExport(t *testing.T, storage *ecs.Storage) string {
	t.Helper()
	state, err := storage.ExportState()
	require.NoError(t, err)
	data, err := json.Marshal(state)
	require.NoError(t, err)
	return string(data)
}

func TestExportImportRoundTrip(t *testing.T) {
	source := ecs.NewStorage(newStateRegistry())
	populate(source)

	state, err := source.ExportState()
	require.NoError(t, err)

	target := ecs.NewStorage(newStateRegistry())
	target.Spawn(Tag("leftover"))
	require.NoError(t, target.ImportState(state))

	assert.Equal(t, mustExport(t, source), mustExport(t, target))

	stats := target.CollectStats()
	assert.Equal(t, 5, stats.TotalEntityCount)
	assert.Equal(t, 1, stats.SingletonCount)

	view := ecs.NewView[struct{ *Ledger }](target)
	var ledgers []Ledger
	for v := range view.Values() {
		ledgers = append(ledgers, *v.Ledger)
	}
	require.Len(t, ledgers, 1)
	assert.Equal(t, int64(math.MaxInt64), ledgers[0].Balance)
}

func TestExportIsDeterministic(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	populate(storage)

	first := mustExport(t, storage)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, mustExport(t, storage))
	}
}

func TestExportLayout(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	storage.Spawn(Ledger{Balance: 7, Owner: "a"})
	ecs.NewSingleton[WorldClock](storage, WorldClock{Tick: 3})

	assert.JSONEq(t,
		`{"entities":[{"components":{"ledger":{"Balance":7,"Owner":"a"}}}],"singletons":{"clock":{"Tick":3}}}`,
		mustExport(t, storage))
}

func TestImportInvalidatesRefsAndRebuildsQueries(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	populate(storage)
	state, err := storage.ExportState()
	require.NoError(t, err)

	query := ecs.NewQuery[struct{ *Position }](storage)
	query.Execute()
	count := 0
	for range query.Values() {
		count++
	}
	assert.Equal(t, 3, count)

	id := storage.Spawn(Position{X: 100, Y: 100})
	ref := storage.CreateEntityRef(id)

	require.NoError(t, storage.ImportState(state))

	_, ok := storage.ResolveEntityRef(ref)
	assert.False(t, ok)

	query.Execute()
	var xs []float32
	for v := range query.Values() {
		xs = append(xs, v.Position.X)
	}
	assert.ElementsMatch(t, []float32{1, 3, 5}, xs)
}

func TestImportKeepsSingletonAccessors(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	clock := ecs.NewSingleton[WorldClock](storage, WorldClock{Tick: 1})
	state, err := storage.ExportState()
	require.NoError(t, err)

	clock.Get().Tick = 500
	require.NoError(t, storage.ImportState(state))
	assert.Equal(t, uint64(1), clock.Get().Tick)

	empty := ecs.NewStorage(newStateRegistry())
	emptyState, err := empty.ExportState()
	require.NoError(t, err)

	require.NoError(t, storage.ImportState(emptyState))
	assert.Nil(t, clock.Get())
	assert.False(t, clock.Exists())
}

func TestImportLeavesTransientSingletons(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	ecs.NewSingleton[Transient](storage, Transient{Frames: 12})
	populate(storage)

	state, err := storage.ExportState()
	require.NoError(t, err)
	assert.NotContains(t, mustExport(t, storage), "Frames")

	require.NoError(t, storage.ImportState(state))

	var transient *Transient
	require.True(t, storage.ReadSingleton(&transient))
	assert.Equal(t, 12, transient.Frames)
}

func TestImportRejectsBadStateWithoutChanges(t *testing.T) {
	tests := []struct {
		name  string
		state string
		match error
	}{
		{"unknown component", `{"entities":[{"components":{"nope":{}}}],"singletons":{}}`, ecs.ErrUnknownComponent},
		{"unknown singleton", `{"entities":[],"singletons":{"nope":{}}}`, ecs.ErrUnknownComponent},
		{"empty entity", `{"entities":[{"components":{}}],"singletons":{}}`, nil},
		{"bad value", `{"entities":[{"components":{"ledger":{"Balance":"lots"}}}],"singletons":{}}`, nil},
		{"unknown field", `{"entities":[],"singletons":{},"extra":1}`, nil},
		{"not an object", `[1,2,3]`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storage := ecs.NewStorage(newStateRegistry())
			populate(storage)
			before := mustExport(t, storage)

			var state any
			require.NoError(t, json.Unmarshal([]byte(tt.state), &state))

			err := storage.ImportState(state)
			require.Error(t, err)
			if tt.match != nil {
				assert.True(t, errors.Is(err, tt.match), "got %v", err)
			}
			assert.Equal(t, before, mustExport(t, storage))
		})
	}
}

func TestClear(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	populate(storage)
	clock := ecs.NewSingleton[WorldClock](storage)

	storage.Clear()

	stats := storage.CollectStats()
	assert.Equal(t, 0, stats.TotalEntityCount)
	assert.Equal(t, 0, stats.ArchetypeCount)
	assert.Equal(t, 0, stats.SingletonCount)
	assert.Nil(t, clock.Get())
}

func TestRegisterNamedComponent(t *testing.T) {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterComponent[Position](registry)
	ecs.RegisterNamedComponent[Velocity](registry, "vel")

	name, ok := registry.NameOf(reflect.TypeOf(Position{}))
	assert.True(t, ok)
	assert.Equal(t, "ecs_test.Position", name)

	typ, ok := registry.TypeOf("vel")
	assert.True(t, ok)
	assert.Equal(t, reflect.TypeOf(Velocity{}), typ)

	// Renaming a type frees its old name.
	ecs.RegisterNamedComponent[Velocity](registry, "velocity")
	_, ok = registry.TypeOf("vel")
	assert.False(t, ok)
	assert.ElementsMatch(t, []string{"ecs_test.Position", "velocity"}, registry.Names())

	assert.Panics(t, func() {
		ecs.RegisterNamedComponent[Health](registry, "velocity")
	})
}

func TestManagerWithStorage(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	populate(storage)
	mgr := snapshot.New(storage)

	snap, err := mgr.Snapshot(snapshot.Full)
	require.NoError(t, err)
	want := mustExport(t, storage)

	storage.Spawn(Position{X: -1, Y: -1})
	ecs.NewSingleton[WorldClock](storage).Get().Tick = 0

	require.NoError(t, mgr.Restore(snap))
	assert.Equal(t, want, mustExport(t, storage))

	mgr.UpgradeVersion(2)
	storage.Spawn(Position{X: -2, Y: -2})
	before := mustExport(t, storage)

	err = mgr.Restore(snap)
	assert.ErrorIs(t, err, snapshot.ErrVersionMismatch)
	assert.Equal(t, before, mustExport(t, storage))
}

func TestRegisterRejectsReferenceKinds(t *testing.T) {
	registry := ecs.NewComponentRegistry()

	assert.Panics(t, func() { ecs.RegisterNamedComponent[Attributes](registry, "attributes") })
	assert.Panics(t, func() { ecs.RegisterNamedComponent[*Armor](registry, "armor") })
	assert.Panics(t, func() { ecs.RegisterNamedComponent[Signal](registry, "signal") })
	assert.Panics(t, func() { ecs.RegisterNamedComponent[fmt.Stringer](registry, "stringer") })
	assert.Empty(t, registry.Names())

	assert.NotPanics(t, func() { ecs.RegisterNamedComponent[Sheet](registry, "sheet") })
}

func TestRoundTripNestedReferenceFields(t *testing.T) {
	newRegistry := func() *ecs.ComponentRegistry {
		registry := newStateRegistry()
		ecs.RegisterNamedComponent[Sheet](registry, "sheet")
		return registry
	}

	source := ecs.NewStorage(newRegistry())
	source.Spawn(Sheet{Attributes: Attributes{"str": 12, "dex": 9}, Armor: &Armor{Rating: 3}})
	source.Spawn(Sheet{}, Position{X: 1, Y: 1})

	state, err := source.ExportState()
	require.NoError(t, err)

	target := ecs.NewStorage(newRegistry())
	require.NoError(t, target.ImportState(state))
	assert.Equal(t, mustExport(t, source), mustExport(t, target))

	view := ecs.NewView[struct{ *Sheet }](target)
	var sheets []Sheet
	for v := range view.Values() {
		sheets = append(sheets, *v.Sheet)
	}
	assert.ElementsMatch(t, []Sheet{
		{Attributes: Attributes{"str": 12, "dex": 9}, Armor: &Armor{Rating: 3}},
		{},
	}, sheets)
}

func TestRestoreRejectsTrailingInput(t *testing.T) {
	storage := ecs.NewStorage(newStateRegistry())
	populate(storage)
	mgr := snapshot.New(storage)

	snap, err := mgr.Snapshot(snapshot.Full)
	require.NoError(t, err)

	storage.Spawn(Position{X: -1, Y: -1})
	before := mustExport(t, storage)

	for _, junk := range []string{"}", "]", " x", ` {"entities":[]}`} {
		bad := snap
		bad.State += junk
		assert.Error(t, mgr.Restore(bad), "state followed by %q", junk)
		assert.Equal(t, before, mustExport(t, storage))
	}

	require.NoError(t, mgr.Restore(snap))
	assert.NotEqual(t, before, mustExport(t, storage))
}
