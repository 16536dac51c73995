package debugui

import (
	"github.com/plus3/arena/ecs"
	"github.com/plus3/arena/snapshot"
)

// SpawnDebugUI spawns the snapshot panel into the UI storage and makes sure
// the ImguiInputState singleton exists. The panel operates on the world held
// by manager, which should be a separate storage: ImguiItem holds a func and
// cannot be exported.
func SpawnDebugUI(ui *ecs.Storage, manager *snapshot.Manager) *SnapshotPanel {
	panel := NewSnapshotPanel(manager, 16, 120)
	ecs.NewSingleton[ImguiInputState](ui)
	ui.Spawn(ImguiItem{Render: panel.Render})
	return panel
}

// RegisterDebugUIComponents registers the components ImguiSystem reads.
func RegisterDebugUIComponents(registry *ecs.ComponentRegistry) {
	ecs.RegisterComponent[ImguiItem](registry)
	ecs.RegisterComponent[ImguiInputState](registry)
}
