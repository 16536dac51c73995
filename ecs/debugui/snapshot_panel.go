package debugui

import (
	"fmt"
	"time"

	"github.com/AllenDang/cimgui-go/imgui"
	"github.com/plus3/arena/ecs"
	"github.com/plus3/arena/snapshot"
)

// statsSource is implemented by worlds that can describe their contents,
// such as *ecs.Storage.
type statsSource interface {
	CollectStats() ecs.StorageStats
}

// SnapshotPanel takes and restores snapshots of the world held by a
// snapshot.Manager and keeps the most recent ones in memory.
type SnapshotPanel struct {
	manager  *snapshot.Manager
	limit    int
	history  []snapshot.Snapshot
	selected int
	lastErr  error

	timer        frameTimer
	frameHistory []float32
	frameIndex   int
}

// NewSnapshotPanel creates a panel keeping at most limit snapshots and
// historyFrames frame times.
func NewSnapshotPanel(manager *snapshot.Manager, limit, historyFrames int) *SnapshotPanel {
	if limit < 1 {
		limit = 1
	}
	if historyFrames < 1 {
		historyFrames = 1
	}
	return &SnapshotPanel{
		manager:      manager,
		limit:        limit,
		selected:     -1,
		timer:        frameTimer{lastFrameTime: time.Now()},
		frameHistory: make([]float32, historyFrames),
	}
}

// Take snapshots the world and selects the new snapshot. The oldest
// snapshot is dropped once the limit is reached.
func (p *SnapshotPanel) Take(mode snapshot.Mode) error {
	snap, err := p.manager.Snapshot(mode)
	p.lastErr = err
	if err != nil {
		return err
	}

	p.history = append(p.history, snap)
	if len(p.history) > p.limit {
		p.history = p.history[len(p.history)-p.limit:]
	}
	p.selected = len(p.history) - 1
	return nil
}

// Restore restores the snapshot at index i of History.
func (p *SnapshotPanel) Restore(i int) error {
	if i < 0 || i >= len(p.history) {
		p.lastErr = fmt.Errorf("no snapshot at index %d", i)
		return p.lastErr
	}
	p.lastErr = p.manager.Restore(p.history[i])
	return p.lastErr
}

// History returns the kept snapshots, oldest first.
func (p *SnapshotPanel) History() []snapshot.Snapshot {
	return p.history
}

// Err returns the error of the last Take or Restore.
func (p *SnapshotPanel) Err() error {
	return p.lastErr
}

// Render draws the panel. It is meant to be called from an ImguiItem.
func (p *SnapshotPanel) Render() {
	p.recordFrame(p.timer.deltaTime())

	if !imgui.BeginV("Snapshots", nil, imgui.WindowFlagsNone) {
		imgui.End()
		return
	}

	imgui.Text(fmt.Sprintf("Version: %d", p.manager.Version()))
	imgui.SameLine()
	if imgui.Button("Upgrade") {
		p.manager.UpgradeVersion(p.manager.Version() + 1)
	}

	// Errors are kept in lastErr and shown below.
	if imgui.Button("Take Full") {
		_ = p.Take(snapshot.Full)
	}
	imgui.SameLine()
	if imgui.Button("Take Differential") {
		_ = p.Take(snapshot.Differential)
	}
	imgui.SameLine()
	if imgui.Button("Restore Selected") {
		_ = p.Restore(p.selected)
	}

	if p.lastErr != nil {
		imgui.Text(fmt.Sprintf("Error: %v", p.lastErr))
	}

	imgui.Separator()
	p.renderHistory()

	if source, ok := p.manager.World().(statsSource); ok {
		imgui.Separator()
		renderStats(source.CollectStats())
	}

	imgui.Separator()
	imgui.Text(fmt.Sprintf("Avg Frame Time: %.2f ms", p.averageFrameTime()))
	imgui.PlotLinesFloatPtr("##frametime", &p.frameHistory[0], int32(len(p.frameHistory)))

	imgui.End()
}

func (p *SnapshotPanel) renderHistory() {
	const tableFlags = imgui.TableFlagsBorders | imgui.TableFlagsRowBg
	if !imgui.BeginTableV("SnapshotTable", 3, tableFlags, imgui.NewVec2(0, 0), 0) {
		return
	}
	imgui.TableSetupColumn("Taken")
	imgui.TableSetupColumn("Version")
	imgui.TableSetupColumn("Size")
	imgui.TableHeadersRow()

	for i := len(p.history) - 1; i >= 0; i-- {
		snap := p.history[i]
		imgui.TableNextRow()
		imgui.TableNextColumn()
		label := fmt.Sprintf("%s##%d", snap.Time().Format("15:04:05.000"), i)
		if imgui.SelectableBoolV(label, p.selected == i, imgui.SelectableFlagsSpanAllColumns, imgui.NewVec2(0, 0)) {
			p.selected = i
		}
		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d", snap.Version))
		imgui.TableNextColumn()
		imgui.Text(fmt.Sprintf("%d B", len(snap.State)))
	}
	imgui.EndTable()
}

func renderStats(stats ecs.StorageStats) {
	imgui.Text(fmt.Sprintf("Total Entities: %d", stats.TotalEntityCount))
	imgui.Text(fmt.Sprintf("Archetypes: %d", stats.ArchetypeCount))
	imgui.Text(fmt.Sprintf("Singletons: %d", stats.SingletonCount))

	if imgui.TreeNodeStr("Archetype Details") {
		for _, arch := range stats.ArchetypeBreakdown {
			imgui.BulletText(fmt.Sprintf("0x%X: %d entities %v", arch.ID, arch.EntityCount, arch.ComponentTypes))
		}
		imgui.TreePop()
	}

	if imgui.TreeNodeStr("Singleton Details") {
		for _, singletonType := range stats.SingletonTypes {
			imgui.BulletText(singletonType)
		}
		imgui.TreePop()
	}
}

func (p *SnapshotPanel) recordFrame(deltaTime float32) {
	p.frameHistory[p.frameIndex] = deltaTime * 1000.0
	p.frameIndex = (p.frameIndex + 1) % len(p.frameHistory)
}

func (p *SnapshotPanel) averageFrameTime() float32 {
	var total float32
	for _, ft := range p.frameHistory {
		total += ft
	}
	return total / float32(len(p.frameHistory))
}

// frameTimer measures the time between successive calls to deltaTime.
type frameTimer struct {
	lastFrameTime time.Time
}

func (ft *frameTimer) deltaTime() float32 {
	now := time.Now()
	delta := float32(now.Sub(ft.lastFrameTime).Seconds())
	ft.lastFrameTime = now
	return delta
}
