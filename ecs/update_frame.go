package ecs

// UpdateFrame is passed to every system during a single Scheduler.Once.
type UpdateFrame struct {
	// Frame is the 1-based number of the frame being executed.
	Frame     uint64
	DeltaTime float64
	Commands  *Commands
	Storage   *Storage
}

func newUpdateFrame(number uint64, dt float64, storage *Storage) *UpdateFrame {
	return &UpdateFrame{
		Frame:     number,
		DeltaTime: dt,
		Commands:  newCommands(),
		Storage:   storage,
	}
}
