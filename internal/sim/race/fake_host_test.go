package race

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"voxelfall.ai/internal/sim/geom"
	"voxelfall.ai/internal/sim/sched"
)

type chatLine struct {
	To    string // "*" for broadcast
	Text  string
	Color string
}

type fakeHost struct {
	nextEntity int
	avatars    map[string]string
	pos        map[string]geom.Vec3

	chats     []chatLine
	ui        map[string][]UIPayload
	cues      []string
	spawns    []string
	teleports []string
	despawns  []string
	cameras   int
	gravity   []float64
}

func newFakeHost() *fakeHost {
	return &fakeHost{
		avatars: map[string]string{},
		pos:     map[string]geom.Vec3{},
		ui:      map[string][]UIPayload{},
	}
}

func (h *fakeHost) AvatarPosition(playerID string) (geom.Vec3, bool) {
	if h.avatars[playerID] == "" {
		return geom.Vec3{}, false
	}
	return h.pos[playerID], true
}

func (h *fakeHost) SpawnAvatar(playerID string, pos geom.Vec3) string {
	h.nextEntity++
	id := fmt.Sprintf("E%d", h.nextEntity)
	h.avatars[playerID] = id
	h.pos[playerID] = pos
	h.spawns = append(h.spawns, playerID)
	return id
}

func (h *fakeHost) TeleportAvatar(playerID string, pos geom.Vec3) {
	h.pos[playerID] = pos
	h.teleports = append(h.teleports, playerID)
}

func (h *fakeHost) DespawnAvatar(playerID string) {
	delete(h.avatars, playerID)
	h.despawns = append(h.despawns, playerID)
}

func (h *fakeHost) ResetCamera(string)                  { h.cameras++ }
func (h *fakeHost) SetGravityScale(_ string, s float64) { h.gravity = append(h.gravity, s) }

func (h *fakeHost) SendChat(playerID, text, color string) {
	h.chats = append(h.chats, chatLine{To: playerID, Text: text, Color: color})
}

func (h *fakeHost) BroadcastChat(text, color string) {
	h.chats = append(h.chats, chatLine{To: "*", Text: text, Color: color})
}

func (h *fakeHost) SendUI(playerID string, p UIPayload) {
	h.ui[playerID] = append(h.ui[playerID], p)
}

func (h *fakeHost) PlayCue(playerID string, cue Cue) {
	h.cues = append(h.cues, playerID+":"+cue.URI)
}

func (h *fakeHost) uiOfType(playerID, typ string) []UIPayload {
	var out []UIPayload
	for _, p := range h.ui[playerID] {
		if p.Type() == typ {
			out = append(out, p)
		}
	}
	return out
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

type recordingSink struct{ events []Event }

func (r *recordingSink) RecordRaceEvent(ev Event) { r.events = append(r.events, ev) }

func (r *recordingSink) kinds() []EventKind {
	out := make([]EventKind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

// harness wires a tracker to a fake host, a manual scheduler and a fake
// clock that move together one second at a time.
type harness struct {
	t      *testing.T
	host   *fakeHost
	timers *sched.Scheduler
	clock  *fakeClock
	sink   *recordingSink
	tr     *Tracker
	tick   uint64
}

const testTPS = 4

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := DefaultConfig()
	cfg.TicksPerSecond = testTPS
	h := &harness{
		t:      t,
		host:   newFakeHost(),
		timers: sched.New(),
		clock:  &fakeClock{t: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)},
		sink:   &recordingSink{},
	}
	h.tr = NewTracker(cfg, h.host, h.timers, NewSpawnGenerator(DefaultSpawnBox, rand.New(rand.NewSource(7))))
	h.tr.SetClock(h.clock.now)
	h.tr.SetEventSink(h.sink)
	return h
}

// seconds advances the clock and scheduler by n whole seconds.
func (h *harness) seconds(n int) {
	for i := 0; i < n*testTPS; i++ {
		h.tick++
		h.clock.advance(time.Second / testTPS)
		h.timers.Advance(h.tick)
	}
}

// elapse moves only the wall clock; no timers fire.
func (h *harness) elapse(d time.Duration) { h.clock.advance(d) }

func (h *harness) phase(playerID string) Phase {
	h.t.Helper()
	v, ok := h.tr.Session(playerID)
	if !ok {
		h.t.Fatalf("no session for %s", playerID)
	}
	for p := WaitingToStart; p <= Finished; p++ {
		if p.String() == v.Phase {
			return p
		}
	}
	h.t.Fatalf("bad phase %q", v.Phase)
	return 0
}

// joinAndRun joins a player and waits out the countdown.
func (h *harness) joinAndRun(playerID string) {
	h.t.Helper()
	h.tr.Join(playerID)
	h.seconds(h.tr.Config().CountdownSeconds)
	if got := h.phase(playerID); got != Running {
		h.t.Fatalf("phase after countdown = %s, want RUNNING", got)
	}
}

func (h *harness) finish(playerID string) bool {
	return h.tr.FinishCollision(h.host.avatars[playerID], true)
}
