package main

import (
	"fmt"
	"io"
	"runtime"
	"text/template"
	"time"

	"github.com/plus3/arena/ecs"
)

type Report struct {
	// Configuration
	Duration       time.Duration
	Entities       int
	SnapshotEvery  int
	RestoreEvery   int
	Backend        string
	SnapshotFormat int

	// Results
	TotalUpdates   int64
	TotalTime      time.Duration
	UpdateTime     Stats
	SnapshotTime   Stats
	RestoreTime    Stats
	StoreTime      Stats
	StateBytes     int
	Pruned         int
	RoundTripFails int
	Scheduler      *ecs.SchedulerStats
	GCPauseMetrics bool
	MemStatsStart  runtime.MemStats
	MemStatsEnd    runtime.MemStats
}

type Stats struct {
	Min     time.Duration
	Max     time.Duration
	Avg     time.Duration
	Samples []time.Duration
}

func (s *Stats) Finalize() {
	if len(s.Samples) == 0 {
		return
	}

	var total time.Duration
	s.Min = s.Samples[0]
	s.Max = s.Samples[0]

	for _, sample := range s.Samples {
		s.Min = min(s.Min, sample)
		s.Max = max(s.Max, sample)
		total += sample
	}
	s.Avg = total / time.Duration(len(s.Samples))
}

func (s Stats) Count() int {
	return len(s.Samples)
}

const reportTemplate = `
# ECS Snapshot Stress Report

## Test Configuration
- **Run Duration:** {{.Duration}}
- **Target Entities:** {{.Entities}}
- **Snapshot Every:** {{.SnapshotEvery}} frames
- **Restore Every:** {{.RestoreEvery}} frames
- **Store Backend:** {{.Backend}}
- **Snapshot Version:** {{.SnapshotFormat}}

## Simulation
- **Total Updates:** {{.TotalUpdates}}
- **Total Test Time:** {{.TotalTime}}
- **Update Time (Frame):**
  - **Avg:** {{.UpdateTime.Avg}}
  - **Min:** {{.UpdateTime.Min}}
  - **Max:** {{.UpdateTime.Max}}

{{with .Scheduler}}
## Systems
- **Frames:** {{.Frames}}
- **Commands Flushed:** {{.Commands}}
{{range .Systems}}- **{{.Name}}:** {{.ExecutionCount}} runs, avg {{.AvgDuration}}, max {{.MaxDuration}}
{{end}}{{end}}
## Snapshots
- **Taken:** {{.SnapshotTime.Count}} (avg {{.SnapshotTime.Avg}}, max {{.SnapshotTime.Max}})
- **Stored:** {{.StoreTime.Count}} (avg {{.StoreTime.Avg}}, max {{.StoreTime.Max}})
- **Restored:** {{.RestoreTime.Count}} (avg {{.RestoreTime.Avg}}, max {{.RestoreTime.Max}})
- **Last State Size:** {{.StateBytes | kb}}
- **Pruned Records:** {{.Pruned}}
- **Round-trip Failures:** {{.RoundTripFails}}

## Memory Usage (Raw Bytes)
- Heap Alloc:     {{.MemStatsStart.HeapAlloc}} (start) -> {{.MemStatsEnd.HeapAlloc}} (end) -> delta: {{bsub .MemStatsEnd.HeapAlloc .MemStatsStart.HeapAlloc}}
- Total Alloc:    {{.MemStatsStart.TotalAlloc}} (start) -> {{.MemStatsEnd.TotalAlloc}} (end) -> delta: {{bsub .MemStatsEnd.TotalAlloc .MemStatsStart.TotalAlloc}}
- Num GC:         {{.MemStatsStart.NumGC}} (start) -> {{.MemStatsEnd.NumGC}} (end) -> delta: {{usub .MemStatsEnd.NumGC .MemStatsStart.NumGC}}
{{if .GCPauseMetrics}}
## GC Pause Durations
- **Total GC Pause:** {{.MemStatsEnd.PauseTotalNs | ns}}
{{end}}`

// kb formats a byte count in kilobytes.
func kb(n int) string {
	return fmt.Sprintf("%.1f KiB", float64(n)/1024)
}

func (r *Report) Generate(w io.Writer) error {
	fm := template.FuncMap{
		"kb": kb,
		"bsub": func(a, b uint64) int64 {
			return int64(a) - int64(b)
		},
		"usub": func(a, b uint32) uint32 {
			return a - b
		},
		"ns": func(ns uint64) string {
			return time.Duration(ns).String()
		},
	}

	tmpl, err := template.New("report").Funcs(fm).Parse(reportTemplate)
	if err != nil {
		return err
	}

	return tmpl.Execute(w, r)
}
