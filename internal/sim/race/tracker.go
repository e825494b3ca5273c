package race

import (
	"fmt"
	"sort"
	"time"

	"voxelfall.ai/internal/sim/sched"
)

type Config struct {
	TicksPerSecond   int
	CountdownSeconds int
	FallCheckSeconds int
	FallThresholdY   float64

	FallCue    Cue
	RestartCue Cue
}

func DefaultConfig() Config {
	return Config{
		TicksPerSecond:   20,
		CountdownSeconds: 5,
		FallCheckSeconds: 1,
		FallThresholdY:   -10,
		FallCue:          Cue{URI: "audio/sfx/damage/fall-small.mp3", Volume: 0.1, CutoffDistance: 50},
		RestartCue:       Cue{URI: "audio/sfx/entity/portal/portal-travel-woosh.mp3", Volume: 0.1, CutoffDistance: 50},
	}
}

func (c *Config) applyDefaults() {
	if c.TicksPerSecond <= 0 {
		c.TicksPerSecond = 20
	}
	if c.CountdownSeconds < 0 {
		c.CountdownSeconds = 0
	}
	if c.FallCheckSeconds <= 0 {
		c.FallCheckSeconds = 1
	}
}

// Tracker runs one race state machine per connected player and owns the
// process-wide ledger. Like the world that drives it, it is single-threaded:
// every method and every timer callback runs on the world loop goroutine.
type Tracker struct {
	cfg    Config
	host   Host
	timers *sched.Scheduler
	spawn  *SpawnGenerator
	ledger *Ledger
	now    func() time.Time
	sink   EventSink

	sessions map[string]*Session
	avatars  map[string]string // avatar entity id -> player id
	nextGen  uint64
}

func NewTracker(cfg Config, host Host, timers *sched.Scheduler, spawn *SpawnGenerator) *Tracker {
	cfg.applyDefaults()
	if spawn == nil {
		spawn = NewSpawnGenerator(DefaultSpawnBox, nil)
	}
	return &Tracker{
		cfg:      cfg,
		host:     host,
		timers:   timers,
		spawn:    spawn,
		ledger:   NewLedger(),
		now:      time.Now,
		sessions: map[string]*Session{},
		avatars:  map[string]string{},
	}
}

// SetClock replaces the wall clock (tests).
func (t *Tracker) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

func (t *Tracker) SetEventSink(sink EventSink) { t.sink = sink }

func (t *Tracker) Ledger() *Ledger { return t.ledger }

func (t *Tracker) Config() Config { return t.cfg }

// Join creates the player's session, spawns the avatar and arms the countdown
// and fall monitor. An existing session for the same identity is superseded:
// its timers are released before anything new is armed.
func (t *Tracker) Join(playerID string) uint64 {
	if prev := t.sessions[playerID]; prev != nil {
		t.drop(prev)
		t.emit(Event{Kind: EventSupersede, PlayerID: playerID, Generation: prev.Generation})
	}
	t.nextGen++
	s := &Session{
		PlayerID:   playerID,
		Phase:      WaitingToStart,
		Generation: t.nextGen,
		timers:     t.timers.NewGroup(),
	}
	t.sessions[playerID] = s
	t.spawnAvatar(s)
	t.emit(Event{Kind: EventJoin, PlayerID: playerID, Generation: s.Generation})

	gen := s.Generation
	t.beginCountdown(s)
	s.timers.Every(t.ticks(t.cfg.FallCheckSeconds), func() {
		if t.live(playerID, gen) != nil {
			t.CheckFall(playerID)
		}
	})
	return gen
}

// Leave discards the player's session and its timers.
func (t *Tracker) Leave(playerID string) bool {
	s := t.sessions[playerID]
	if s == nil {
		return false
	}
	t.drop(s)
	t.emit(Event{Kind: EventLeave, PlayerID: playerID, Generation: s.Generation})
	return true
}

func (t *Tracker) drop(s *Session) {
	s.release()
	t.despawnAvatar(s)
	delete(t.sessions, s.PlayerID)
}

func (t *Tracker) beginCountdown(s *Session) {
	if t.cfg.CountdownSeconds == 0 {
		t.startRunning(s)
		return
	}
	s.Phase = Countdown
	s.countdownLeft = t.cfg.CountdownSeconds
	t.host.SendUI(s.PlayerID, UIPayload{"type": "countdown", "remaining": s.countdownLeft})

	id, gen := s.PlayerID, s.Generation
	s.countdown = s.timers.Every(t.ticks(1), func() { t.countdownTick(id, gen) })
}

func (t *Tracker) countdownTick(playerID string, gen uint64) {
	s := t.live(playerID, gen)
	if s == nil || s.Phase != Countdown {
		return
	}
	s.countdownLeft--
	if s.countdownLeft > 0 {
		t.host.SendUI(playerID, UIPayload{"type": "countdown", "remaining": s.countdownLeft})
		return
	}
	s.timers.Cancel(s.countdown)
	s.countdown = 0
	t.startRunning(s)
	t.host.SendUI(playerID, UIPayload{"type": "countdown", "remaining": 0})
}

func (t *Tracker) startRunning(s *Session) {
	s.Phase = Running
	s.StartedAt = t.now()
	t.emit(Event{Kind: EventStart, PlayerID: s.PlayerID, Generation: s.Generation})
}

// CheckFall respawns the avatar when it is at or below the fall threshold
// while the race is running. It reports whether a recovery happened.
func (t *Tracker) CheckFall(playerID string) bool {
	s := t.sessions[playerID]
	if s == nil || s.Phase != Running || s.AvatarID == "" {
		return false
	}
	pos, ok := t.host.AvatarPosition(playerID)
	if !ok || pos.Y > t.cfg.FallThresholdY {
		return false
	}
	t.host.PlayCue(playerID, t.cfg.FallCue)
	t.host.BroadcastChat(fmt.Sprintf("Player %s fell off the platform", playerID), ColorRed)
	t.host.TeleportAvatar(playerID, t.spawn.Next())

	at := pos.ToArray()
	t.emit(Event{Kind: EventFall, PlayerID: playerID, Generation: s.Generation, Pos: &at})
	return true
}

// FinishCollision handles a collision between the finish volume and entityID.
// Only a begin transition of a running player's own avatar finalizes a race;
// everything else, including repeats after the finish, is ignored.
func (t *Tracker) FinishCollision(entityID string, started bool) bool {
	if !started || entityID == "" {
		return false
	}
	playerID, ok := t.avatars[entityID]
	if !ok {
		return false
	}
	s := t.sessions[playerID]
	if s == nil || s.AvatarID != entityID || s.Phase != Running {
		return false
	}
	// Must precede every side effect below.
	s.Phase = Finished
	s.Finishes++

	t.despawnAvatar(s)
	t.host.SendChat(playerID, fmt.Sprintf("🏁 %s reached the finish line! 🏁", playerID), ColorGreen)

	elapsed := t.elapsed(s)
	prev, hasPrev := t.ledger.Get(playerID)
	// Best times are strictly positive; a zero span is reported but not recorded.
	newBest := elapsed > 0 && t.ledger.RecordIfBetter(playerID, elapsed)
	switch {
	case newBest:
		t.host.SendChat(playerID, fmt.Sprintf("New best time! %.2f seconds", elapsed), ColorGreen)
	case hasPrev:
		t.host.SendChat(playerID, fmt.Sprintf("Time: %.2f seconds (Best: %.2f)", elapsed, prev), ColorYellow)
	default:
		t.host.SendChat(playerID, fmt.Sprintf("Time: %.2f seconds", elapsed), ColorYellow)
	}

	t.host.SendUI(playerID, UIPayload{"type": "time", "time": elapsed})
	t.host.SendUI(playerID, UIPayload{"type": "leaderboard", "list": t.ledger.Snapshot()})

	best, _ := t.ledger.Get(playerID)
	t.emit(Event{
		Kind:       EventFinish,
		PlayerID:   playerID,
		Generation: s.Generation,
		Elapsed:    elapsed,
		Best:       best,
		NewBest:    newBest,
	})
	return true
}

// Restart starts a new attempt for a finished player without a countdown.
// It is a no-op in any other phase.
func (t *Tracker) Restart(playerID string) bool {
	s := t.sessions[playerID]
	if s == nil || s.Phase != Finished {
		return false
	}
	s.StartedAt = t.now()
	t.host.SendChat(playerID, "Game restarted! Beat your score!", ColorGreen)
	t.spawnAvatar(s)
	t.host.ResetCamera(playerID)
	t.host.SetGravityScale(playerID, 1)
	t.host.SendUI(playerID, UIPayload{"type": "restart", "time": 0})
	t.host.PlayCue(playerID, t.cfg.RestartCue)
	s.Phase = Running

	t.emit(Event{Kind: EventRestart, PlayerID: playerID, Generation: s.Generation})
	return true
}

// Session returns a copy of the player's session.
func (t *Tracker) Session(playerID string) (View, bool) {
	s := t.sessions[playerID]
	if s == nil {
		return View{}, false
	}
	return s.view(), true
}

// Sessions returns copies of all sessions ordered by player id.
func (t *Tracker) Sessions() []View {
	out := make([]View, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s.view())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// PhaseCounts tallies sessions per phase.
func (t *Tracker) PhaseCounts() map[Phase]int {
	out := map[Phase]int{}
	for _, s := range t.sessions {
		out[s.Phase]++
	}
	return out
}

// live returns the session only if it is still the generation a timer was armed for.
func (t *Tracker) live(playerID string, gen uint64) *Session {
	s := t.sessions[playerID]
	if s == nil || s.Generation != gen {
		return nil
	}
	return s
}

func (t *Tracker) spawnAvatar(s *Session) {
	if s.AvatarID != "" {
		delete(t.avatars, s.AvatarID)
	}
	s.AvatarID = t.host.SpawnAvatar(s.PlayerID, t.spawn.Next())
	if s.AvatarID != "" {
		t.avatars[s.AvatarID] = s.PlayerID
	}
}

func (t *Tracker) despawnAvatar(s *Session) {
	if s.AvatarID == "" {
		return
	}
	t.host.DespawnAvatar(s.PlayerID)
	delete(t.avatars, s.AvatarID)
	s.AvatarID = ""
}

// elapsed is in seconds at millisecond resolution, never negative. time.Now
// carries a monotonic reading, so a negative span only comes from an injected
// clock.
func (t *Tracker) elapsed(s *Session) float64 {
	d := t.now().Sub(s.StartedAt)
	if d < 0 {
		d = 0
	}
	return float64(d.Milliseconds()) / 1000
}

func (t *Tracker) ticks(seconds int) uint64 {
	n := seconds * t.cfg.TicksPerSecond
	if n <= 0 {
		n = 1
	}
	return uint64(n)
}

func (t *Tracker) emit(ev Event) {
	if t.sink == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = t.now()
	}
	t.sink.RecordRaceEvent(ev)
}
