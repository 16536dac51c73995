// Package debugui draws the snapshot panel with Dear ImGui. UI entities live
// in their own storage, driven by ImguiSystem, next to the world being
// snapshotted.
package debugui

import (
	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/plus3/arena/ecs"
)

// ImguiItem is a component holding a function that draws ImGui widgets.
type ImguiItem struct {
	Render func()
}

// ImguiInputState is a singleton mirroring whether ImGui wants the mouse or
// keyboard this frame. World systems can read it to ignore captured input.
type ImguiInputState struct {
	WantCaptureMouse    bool
	WantCaptureKeyboard bool
}

// ImguiSystem defers every ImguiItem render function to the end of the
// frame, after commands from other UI systems have been applied. Requires a
// current ImGui context.
type ImguiSystem struct {
	Items      ecs.Query[struct{ *ImguiItem }]
	InputState ecs.Singleton[ImguiInputState]
}

func (i *ImguiSystem) Execute(frame *ecs.UpdateFrame) {
	if state := i.InputState.Get(); state != nil {
		io := imgui.CurrentIO()
		state.WantCaptureMouse = io.WantCaptureMouse()
		state.WantCaptureKeyboard = io.WantCaptureKeyboard()
	}

	for item := range i.Items.Iter() {
		if item.Render != nil {
			frame.Commands.Defer(item.Render)
		}
	}
}
