package race

import (
	"fmt"
	"math"
	"sort"
)

// Ledger maps player identity to best finishing time in seconds.
// It is owned by the world loop; entries are never removed.
type Ledger struct {
	best map[string]float64
}

type Entry struct {
	PlayerID string  `json:"player_id"`
	Best     float64 `json:"best"`
}

func NewLedger() *Ledger {
	return &Ledger{best: map[string]float64{}}
}

func (l *Ledger) Get(playerID string) (float64, bool) {
	v, ok := l.best[playerID]
	return v, ok
}

// RecordIfBetter stores t when the player has no entry yet or t is strictly
// smaller than the current best. It reports whether t was stored.
func (l *Ledger) RecordIfBetter(playerID string, t float64) bool {
	if math.IsNaN(t) || math.IsInf(t, 0) || t <= 0 {
		panic(fmt.Sprintf("race: invalid finish time %v for %q", t, playerID))
	}
	if prev, ok := l.best[playerID]; ok && t >= prev {
		return false
	}
	l.best[playerID] = t
	return true
}

func (l *Ledger) Len() int { return len(l.best) }

// Snapshot copies the ledger for handing to other goroutines or the UI.
func (l *Ledger) Snapshot() map[string]float64 {
	out := make(map[string]float64, len(l.best))
	for k, v := range l.best {
		out[k] = v
	}
	return out
}

// Entries returns the leaderboard: fastest first, ties by identity.
func (l *Ledger) Entries() []Entry {
	out := make([]Entry, 0, len(l.best))
	for id, v := range l.best {
		out = append(out, Entry{PlayerID: id, Best: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Best != out[j].Best {
			return out[i].Best < out[j].Best
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}
