package race

import (
	"time"

	"voxelfall.ai/internal/sim/sched"
)

// Session is the per-player race state. It lives from join to leave.
type Session struct {
	PlayerID   string
	Phase      Phase
	StartedAt  time.Time // set iff Phase.Timed()
	Generation uint64

	// AvatarID is the entity currently representing the player, "" when despawned.
	AvatarID string

	// Finishes counts completed attempts in this session.
	Finishes int

	countdownLeft int
	countdown     sched.Handle
	timers        *sched.Group
}

// View is a read-only copy of a session.
type View struct {
	PlayerID   string    `json:"player_id"`
	Phase      string    `json:"phase"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Generation uint64    `json:"generation"`
	AvatarID   string    `json:"avatar_id,omitempty"`
	Finishes   int       `json:"finishes"`
}

func (s *Session) view() View {
	return View{
		PlayerID:   s.PlayerID,
		Phase:      s.Phase.String(),
		StartedAt:  s.StartedAt,
		Generation: s.Generation,
		AvatarID:   s.AvatarID,
		Finishes:   s.Finishes,
	}
}

func (s *Session) release() {
	s.timers.Release()
	s.countdown = 0
}
