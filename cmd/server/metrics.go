package main

import (
	"fmt"
	"io"
	"net/http"
	"sort"

	"voxelfall.ai/internal/sim/world"
)

type metricsSource interface {
	CurrentTick() uint64
	Metrics() world.WorldMetrics
}

func metricsHandler(worldID string, w metricsSource, idx runtimeIndex) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, worldID, w)
		if idx != nil {
			writeIndexMetrics(rw, worldID, idx)
		}
	}
}

// writeWorldMetrics renders the world metrics in Prometheus text format.
func writeWorldMetrics(out io.Writer, worldID string, w metricsSource) {
	m := w.Metrics()
	tick := w.CurrentTick()
	if m.Tick != 0 {
		tick = m.Tick
	}

	fmt.Fprintf(out, "# HELP voxelfall_world_tick Current world tick.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_world_tick gauge\n")
	fmt.Fprintf(out, "voxelfall_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(out, "# HELP voxelfall_world_players Connected players.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_world_players gauge\n")
	fmt.Fprintf(out, "voxelfall_world_players{world=%q} %d\n", worldID, m.Players)

	fmt.Fprintf(out, "# HELP voxelfall_race_sessions Race sessions by phase.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_race_sessions gauge\n")
	phases := make([]string, 0, len(m.Phases))
	for ph := range m.Phases {
		phases = append(phases, ph)
	}
	sort.Strings(phases)
	for _, ph := range phases {
		fmt.Fprintf(out, "voxelfall_race_sessions{world=%q,phase=%q} %d\n", worldID, ph, m.Phases[ph])
	}

	fmt.Fprintf(out, "# HELP voxelfall_ledger_players Players with a recorded best time.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_ledger_players gauge\n")
	fmt.Fprintf(out, "voxelfall_ledger_players{world=%q} %d\n", worldID, m.LedgerSize)

	fmt.Fprintf(out, "# HELP voxelfall_pending_timers Armed countdown and fall check timers.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_pending_timers gauge\n")
	fmt.Fprintf(out, "voxelfall_pending_timers{world=%q} %d\n", worldID, m.PendingTimers)

	music := 0
	if m.MusicPlaying {
		music = 1
	}
	fmt.Fprintf(out, "# HELP voxelfall_music_playing Whether background music is playing.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_music_playing gauge\n")
	fmt.Fprintf(out, "voxelfall_music_playing{world=%q} %d\n", worldID, music)

	fmt.Fprintf(out, "# HELP voxelfall_race_events_total Race events since start.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_race_events_total counter\n")
	fmt.Fprintf(out, "voxelfall_race_events_total{world=%q,kind=%q} %d\n", worldID, "join", m.JoinsTotal)
	fmt.Fprintf(out, "voxelfall_race_events_total{world=%q,kind=%q} %d\n", worldID, "supersede", m.SupersedesTotal)
	fmt.Fprintf(out, "voxelfall_race_events_total{world=%q,kind=%q} %d\n", worldID, "fall", m.FallsTotal)
	fmt.Fprintf(out, "voxelfall_race_events_total{world=%q,kind=%q} %d\n", worldID, "finish", m.FinishesTotal)
	fmt.Fprintf(out, "voxelfall_race_events_total{world=%q,kind=%q} %d\n", worldID, "restart", m.RestartsTotal)

	fmt.Fprintf(out, "# HELP voxelfall_dropped_messages_total Outbound messages dropped on full client queues.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_dropped_messages_total counter\n")
	fmt.Fprintf(out, "voxelfall_dropped_messages_total{world=%q} %d\n", worldID, m.DroppedTotal)

	fmt.Fprintf(out, "# HELP voxelfall_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_world_queue_depth gauge\n")
	fmt.Fprintf(out, "voxelfall_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(out, "voxelfall_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(out, "voxelfall_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(out, "# HELP voxelfall_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_world_step_ms gauge\n")
	fmt.Fprintf(out, "voxelfall_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)
}

func writeIndexMetrics(out io.Writer, worldID string, idx runtimeIndex) {
	s := idx.Stats()
	fmt.Fprintf(out, "# HELP voxelfall_index_queue_depth Results index write queue depth.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_index_queue_depth gauge\n")
	fmt.Fprintf(out, "voxelfall_index_queue_depth{world=%q} %d\n", worldID, s.QueueDepth)

	fmt.Fprintf(out, "# HELP voxelfall_index_written_total Race events written to the results index.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_index_written_total counter\n")
	fmt.Fprintf(out, "voxelfall_index_written_total{world=%q} %d\n", worldID, s.WrittenTotal)

	fmt.Fprintf(out, "# HELP voxelfall_index_dropped_total Race events dropped because the index queue was full.\n")
	fmt.Fprintf(out, "# TYPE voxelfall_index_dropped_total counter\n")
	fmt.Fprintf(out, "voxelfall_index_dropped_total{world=%q} %d\n", worldID, s.DropTotal)
}
