package field

import "time"

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

// Metrics is a point-in-time snapshot published after every tick.
type Metrics struct {
	Tick       uint64      `json:"tick"`
	Agents     int         `json:"agents"`
	Formations int         `json:"formations"`
	Targeted   int         `json:"targeted"`
	Sessions   int         `json:"sessions"`
	Dispatches int         `json:"dispatches"`
	Queues     QueueDepths `json:"queues"`
	StepMS     float64     `json:"step_ms"`
}

func (f *Field) storeMetrics(tick uint64, dispatches int, elapsed time.Duration) {
	targeted := 0
	for _, id := range f.coord.IDs() {
		if info, err := f.coord.Info(id); err == nil && info.HasTarget {
			targeted++
		}
	}
	f.metrics.Store(Metrics{
		Tick:       tick,
		Agents:     f.herd.Count(),
		Formations: f.coord.Count(),
		Targeted:   targeted,
		Sessions:   len(f.sessions),
		Dispatches: dispatches,
		Queues: QueueDepths{
			Inbox: len(f.inbox),
			Join:  len(f.join),
			Leave: len(f.leave),
		},
		StepMS: float64(elapsed.Microseconds()) / 1000.0,
	})
}

// Metrics returns the latest snapshot; safe to call from any goroutine.
func (f *Field) Metrics() Metrics {
	v := f.metrics.Load()
	if v == nil {
		return Metrics{}
	}
	return v.(Metrics)
}
