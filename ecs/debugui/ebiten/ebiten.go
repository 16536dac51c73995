// Package ebiten hosts the snapshot panel in an Ebiten window using the
// cimgui-go Ebiten backend.
package ebiten

import (
	ebitenbackend "github.com/AllenDang/cimgui-go/backend/ebiten-backend"
	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/hajimehoshi/ebiten/v2"

	"github.com/plus3/arena/ecs"
	"github.com/plus3/arena/ecs/debugui"
	"github.com/plus3/arena/snapshot"
)

// Window implements ebiten.Game. Each tick it steps the world scheduler and
// then the UI scheduler inside one ImGui frame, so snapshots taken from the
// panel always see a fully flushed world.
type Window struct {
	backend *ebitenbackend.EbitenBackend
	world   *ecs.Scheduler
	ui      *ecs.Scheduler
	panel   *debugui.SnapshotPanel
}

// NewWindow creates the backend window and a UI storage holding the snapshot
// panel for manager. world may be nil when the caller steps the simulation
// elsewhere.
func NewWindow(title string, width, height int, world *ecs.Scheduler, manager *snapshot.Manager) *Window {
	backend := ebitenbackend.NewEbitenBackend()
	backend.CreateWindow(title, width, height)
	imgui.CurrentIO().SetIniFilename("")

	registry := ecs.NewComponentRegistry()
	debugui.RegisterDebugUIComponents(registry)
	storage := ecs.NewStorage(registry)
	panel := debugui.SpawnDebugUI(storage, manager)

	ui := ecs.NewScheduler(storage)
	ui.Register(&debugui.ImguiSystem{})

	return &Window{
		backend: backend,
		world:   world,
		ui:      ui,
		panel:   panel,
	}
}

// Panel returns the snapshot panel drawn by the window.
func (w *Window) Panel() *debugui.SnapshotPanel {
	return w.panel
}

func (w *Window) Update() error {
	dt := 1.0 / float64(ebiten.TPS())

	w.backend.BeginFrame()
	if w.world != nil {
		w.world.Once(dt)
	}
	w.ui.Once(dt)
	w.backend.EndFrame()

	return nil
}

func (w *Window) Draw(screen *ebiten.Image) {
	w.backend.Draw(screen)
}

func (w *Window) Layout(outsideWidth, outsideHeight int) (int, int) {
	w.backend.Layout(outsideWidth, outsideHeight)
	return outsideWidth, outsideHeight
}

// Run blocks until the window is closed.
func (w *Window) Run() error {
	return ebiten.RunGame(w)
}
