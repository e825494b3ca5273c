package world

import "voxelfall.ai/internal/sim/race"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players       int            `json:"players"`
	Phases        map[string]int `json:"phases"`
	LedgerSize    int            `json:"ledger_size"`
	PendingTimers int            `json:"pending_timers"`
	MusicPlaying  bool           `json:"music_playing"`

	JoinsTotal      uint64 `json:"joins_total"`
	SupersedesTotal uint64 `json:"supersedes_total"`
	FallsTotal      uint64 `json:"falls_total"`
	FinishesTotal   uint64 `json:"finishes_total"`
	RestartsTotal   uint64 `json:"restarts_total"`
	DroppedTotal    uint64 `json:"dropped_total"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(stepMS float64) {
	phases := map[string]int{}
	for _, ph := range []race.Phase{race.WaitingToStart, race.Countdown, race.Running, race.Finished} {
		phases[ph.String()] = 0
	}
	for ph, n := range w.tracker.PhaseCounts() {
		phases[ph.String()] = n
	}
	w.metrics.Store(WorldMetrics{
		Tick:            w.tick.Load(),
		Players:         len(w.players),
		Phases:          phases,
		LedgerSize:      w.tracker.Ledger().Len(),
		PendingTimers:   w.timers.Pending(),
		MusicPlaying:    w.musicPlaying,
		JoinsTotal:      w.counters.joins,
		SupersedesTotal: w.counters.supersedes,
		FallsTotal:      w.counters.falls,
		FinishesTotal:   w.counters.finishes,
		RestartsTotal:   w.counters.restarts,
		DroppedTotal:    w.counters.dropped,
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS: stepMS,
	})
}
