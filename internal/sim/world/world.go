package world

import (
	"fmt"
	"log"
	"math/rand"
	"os"
	"sync/atomic"
	"time"

	"voxelfall.ai/internal/protocol"
	"voxelfall.ai/internal/sim/course"
	"voxelfall.ai/internal/sim/race"
	"voxelfall.ai/internal/sim/sched"
	"voxelfall.ai/internal/sim/tuning"
)

type WorldConfig struct {
	ID     string
	Seed   int64
	Tuning tuning.Tuning
	Course course.Config
}

type JoinRequest struct {
	Name      string
	SessionID string
	Out       chan []byte
	Resp      chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

type LeaveRequest struct {
	PlayerID  string
	SessionID string
}

// Envelope carries one decoded client message. Exactly one payload is set.
type Envelope struct {
	PlayerID  string
	SessionID string

	Pos       *protocol.PosMsg
	Collision *protocol.CollisionMsg
	Chat      *protocol.ChatMsg
}

// RaceLogger persists race lifecycle events. Called from the world loop; must not block.
type RaceLogger interface {
	WriteRace(entry RaceLogEntry) error
}

type RaceLogEntry struct {
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
	race.Event
}

type player struct {
	ID        string
	SessionID string
	Out       chan []byte

	AvatarID string
	Pos      [3]float64
	HasPos   bool
	InFinish bool
}

// World is a single-threaded authoritative race server.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg    WorldConfig
	logger *log.Logger

	tick atomic.Uint64
	now  func() time.Time

	timers    *sched.Scheduler
	tracker   *race.Tracker
	platforms []*course.Platform
	commands  map[string]commandFunc

	players      map[string]*player
	nextEntity   uint64
	musicPlaying bool

	inbox       chan Envelope
	join        chan JoinRequest
	leave       chan LeaveRequest
	leaderboard chan leaderboardReq
	stop        chan struct{}

	raceLogger RaceLogger

	counters counters
	metrics  atomic.Value
}

type counters struct {
	joins      uint64
	supersedes uint64
	falls      uint64
	finishes   uint64
	restarts   uint64
	dropped    uint64
}

func New(cfg WorldConfig) (*World, error) {
	cfg.Tuning.Normalize()
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("tuning: %w", err)
	}
	cfg.Course.Normalize()
	if err := cfg.Course.Validate(); err != nil {
		return nil, fmt.Errorf("course: %w", err)
	}
	if cfg.ID == "" {
		cfg.ID = "world_1"
	}

	w := &World{
		cfg:         cfg,
		logger:      log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds),
		now:         time.Now,
		timers:      sched.New(),
		platforms:   course.NewPlatforms(cfg.Course.Platforms),
		players:     map[string]*player{},
		inbox:       make(chan Envelope, 1024),
		join:        make(chan JoinRequest, 64),
		leave:       make(chan LeaveRequest, 64),
		leaderboard: make(chan leaderboardReq, 16),
		stop:        make(chan struct{}),
	}
	spawn := race.NewSpawnGenerator(cfg.Course.SpawnBox(), rand.New(rand.NewSource(cfg.Seed)))
	w.tracker = race.NewTracker(cfg.Tuning.RaceConfig(), engineHost{w: w}, w.timers, spawn)
	w.tracker.SetClock(func() time.Time { return w.now() })
	w.tracker.SetEventSink(w)
	w.commands = defaultCommands()
	w.publishMetrics(0)
	return w, nil
}

func (w *World) SetLogger(l *log.Logger) {
	if l != nil {
		w.logger = l
	}
}

func (w *World) SetRaceLogger(l RaceLogger) { w.raceLogger = l }

// SetClock replaces the wall clock used for race timing (tests).
func (w *World) SetClock(now func() time.Time) {
	if now != nil {
		w.now = now
	}
}

func (w *World) Inbox() chan<- Envelope     { return w.inbox }
func (w *World) Join() chan<- JoinRequest   { return w.join }
func (w *World) Leave() chan<- LeaveRequest { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int {
	if w == nil {
		return 0
	}
	return w.cfg.Tuning.TickRateHz
}

// RecordRaceEvent receives tracker events on the world loop.
func (w *World) RecordRaceEvent(ev race.Event) {
	switch ev.Kind {
	case race.EventFall:
		w.counters.falls++
	case race.EventFinish:
		w.counters.finishes++
		w.logger.Printf("finish player=%s elapsed=%.3f best=%.3f new_best=%v", ev.PlayerID, ev.Elapsed, ev.Best, ev.NewBest)
	case race.EventRestart:
		w.counters.restarts++
	}
	if w.raceLogger == nil {
		return
	}
	if err := w.raceLogger.WriteRace(RaceLogEntry{WorldID: w.cfg.ID, Tick: w.tick.Load(), Event: ev}); err != nil {
		w.logger.Printf("race log: %v", err)
	}
}

func (w *World) newEntityID() string {
	w.nextEntity++
	return fmt.Sprintf("E%d", w.nextEntity)
}
