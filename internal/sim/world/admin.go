package world

import (
	"context"

	"voxelfall.ai/internal/sim/race"
)

// Leaderboard is a point-in-time copy of the ledger and the live sessions.
type Leaderboard struct {
	Tick     uint64       `json:"tick"`
	Entries  []race.Entry `json:"entries"`
	Sessions []race.View  `json:"sessions"`
}

type leaderboardReq struct {
	Resp chan Leaderboard
}

// RequestLeaderboard asks the world loop for a leaderboard copy.
func (w *World) RequestLeaderboard(ctx context.Context) (Leaderboard, error) {
	req := leaderboardReq{Resp: make(chan Leaderboard, 1)}
	select {
	case w.leaderboard <- req:
	case <-ctx.Done():
		return Leaderboard{}, ctx.Err()
	}
	select {
	case lb := <-req.Resp:
		return lb, nil
	case <-ctx.Done():
		return Leaderboard{}, ctx.Err()
	}
}

func (w *World) handleLeaderboardReq(req leaderboardReq) {
	req.Resp <- w.leaderboardSnapshot()
}

func (w *World) leaderboardSnapshot() Leaderboard {
	return Leaderboard{
		Tick:     w.tick.Load(),
		Entries:  w.tracker.Ledger().Entries(),
		Sessions: w.tracker.Sessions(),
	}
}
