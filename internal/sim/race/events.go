package race

import "time"

type EventKind string

const (
	EventJoin      EventKind = "JOIN"
	EventSupersede EventKind = "SUPERSEDE"
	EventStart     EventKind = "START"
	EventFall      EventKind = "FALL"
	EventFinish    EventKind = "FINISH"
	EventRestart   EventKind = "RESTART"
	EventLeave     EventKind = "LEAVE"
)

// Event is one race lifecycle record, emitted after the transition it describes.
type Event struct {
	Kind       EventKind   `json:"kind"`
	PlayerID   string      `json:"player_id"`
	Generation uint64      `json:"generation"`
	At         time.Time   `json:"at"`
	Elapsed    float64     `json:"elapsed,omitempty"`
	Best       float64     `json:"best,omitempty"`
	NewBest    bool        `json:"new_best,omitempty"`
	Pos        *[3]float64 `json:"pos,omitempty"`
}

// EventSink receives race events on the world loop goroutine. Implementations must not block.
type EventSink interface {
	RecordRaceEvent(ev Event)
}
