package ebiten_test

import (
	"github.com/plus3/arena/ecs"
	debugui_ebiten "github.com/plus3/arena/ecs/debugui/ebiten"
	"github.com/plus3/arena/snapshot"
)

type Counter struct {
	Ticks int
}

type CountSystem struct {
	Counter ecs.Singleton[Counter]
}

func (s *CountSystem) Execute(frame *ecs.UpdateFrame) {
	s.Counter.Get().Ticks++
}

func Example() {
	registry := ecs.NewComponentRegistry()
	ecs.RegisterNamedComponent[Counter](registry, "counter")
	world := ecs.NewStorage(registry)
	ecs.NewSingleton[Counter](world)

	scheduler := ecs.NewScheduler(world)
	scheduler.Register(&CountSystem{})

	// The panel's Take and Restore buttons operate on world between ticks.
	window := debugui_ebiten.NewWindow("Snapshots", 1280, 720, scheduler, snapshot.New(world))
	if err := window.Run(); err != nil {
		panic(err)
	}
}
