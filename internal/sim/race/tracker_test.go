package race

import (
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"voxelfall.ai/internal/sim/geom"
	"voxelfall.ai/internal/sim/sched"
)

func TestCountdownGatesTiming(t *testing.T) {
	h := newHarness(t)
	h.tr.Join("alice")

	if got := h.phase("alice"); got != Countdown {
		t.Fatalf("phase after join = %s, want COUNTDOWN", got)
	}
	v, _ := h.tr.Session("alice")
	if !v.StartedAt.IsZero() {
		t.Fatalf("StartedAt set during countdown: %v", v.StartedAt)
	}

	h.seconds(4)
	if h.finish("alice") {
		t.Fatalf("finish accepted before countdown completed")
	}
	if got := h.phase("alice"); got != Countdown {
		t.Fatalf("phase at 4s = %s, want COUNTDOWN", got)
	}

	h.seconds(1)
	v, _ = h.tr.Session("alice")
	if v.Phase != "RUNNING" {
		t.Fatalf("phase at 5s = %s, want RUNNING", v.Phase)
	}
	if !v.StartedAt.Equal(h.clock.now()) {
		t.Fatalf("StartedAt=%v want %v", v.StartedAt, h.clock.now())
	}

	var remaining []any
	for _, p := range h.host.uiOfType("alice", "countdown") {
		remaining = append(remaining, p["remaining"])
	}
	if diff := cmp.Diff([]any{5, 4, 3, 2, 1, 0}, remaining); diff != "" {
		t.Fatalf("countdown payloads (-want +got):\n%s", diff)
	}
}

func TestFirstFinishRecordsBest(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	h.elapse(12340 * time.Millisecond)

	if !h.finish("alice") {
		t.Fatalf("finish rejected")
	}
	if got := h.phase("alice"); got != Finished {
		t.Fatalf("phase=%s want FINISHED", got)
	}
	best, ok := h.tr.Ledger().Get("alice")
	if !ok || best != 12.34 {
		t.Fatalf("ledger=%v,%v want 12.34", best, ok)
	}

	times := h.host.uiOfType("alice", "time")
	if len(times) != 1 || times[0]["time"] != 12.34 {
		t.Fatalf("time payloads=%v", times)
	}
	boards := h.host.uiOfType("alice", "leaderboard")
	if len(boards) != 1 {
		t.Fatalf("leaderboard payloads=%d want 1", len(boards))
	}
	if diff := cmp.Diff(map[string]float64{"alice": 12.34}, boards[0]["list"]); diff != "" {
		t.Fatalf("leaderboard (-want +got):\n%s", diff)
	}

	if len(h.host.despawns) != 1 {
		t.Fatalf("despawns=%v want one", h.host.despawns)
	}
	wantChats := []chatLine{
		{To: "alice", Text: "🏁 alice reached the finish line! 🏁", Color: ColorGreen},
		{To: "alice", Text: "New best time! 12.34 seconds", Color: ColorGreen},
	}
	if diff := cmp.Diff(wantChats, h.host.chats); diff != "" {
		t.Fatalf("chats (-want +got):\n%s", diff)
	}
}

func finishRun(t *testing.T, h *harness, playerID string, d time.Duration) {
	t.Helper()
	v, _ := h.tr.Session(playerID)
	if v.Phase == "FINISHED" {
		if !h.tr.Restart(playerID) {
			t.Fatalf("restart rejected")
		}
	}
	h.elapse(d)
	if !h.finish(playerID) {
		t.Fatalf("finish rejected")
	}
}

func TestSlowerFinishKeepsBest(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	finishRun(t, h, "alice", 12340*time.Millisecond)
	finishRun(t, h, "alice", 15*time.Second)

	if best, _ := h.tr.Ledger().Get("alice"); best != 12.34 {
		t.Fatalf("best=%v want 12.34", best)
	}
	last := h.host.chats[len(h.host.chats)-1]
	if last.Text != "Time: 15.00 seconds (Best: 12.34)" || last.Color != ColorYellow {
		t.Fatalf("last chat=%+v", last)
	}
	times := h.host.uiOfType("alice", "time")
	if got := times[len(times)-1]["time"]; got != 15.0 {
		t.Fatalf("time payload=%v want 15", got)
	}
}

func TestFasterFinishReplacesBest(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	finishRun(t, h, "alice", 12340*time.Millisecond)
	finishRun(t, h, "alice", 10*time.Second)

	if best, _ := h.tr.Ledger().Get("alice"); best != 10 {
		t.Fatalf("best=%v want 10", best)
	}
	last := h.host.chats[len(h.host.chats)-1]
	if last.Text != "New best time! 10.00 seconds" {
		t.Fatalf("last chat=%q", last.Text)
	}
	ev := h.sink.events[len(h.sink.events)-1]
	if ev.Kind != EventFinish || !ev.NewBest || ev.Best != 10 || ev.Elapsed != 10 {
		t.Fatalf("finish event=%+v", ev)
	}
}

func TestBestIsMinimumOfAllFinishes(t *testing.T) {
	runs := []time.Duration{
		20 * time.Second,
		15500 * time.Millisecond,
		18 * time.Second,
		9250 * time.Millisecond,
		9250 * time.Millisecond,
		30 * time.Second,
	}
	h := newHarness(t)
	h.joinAndRun("alice")
	for _, d := range runs {
		finishRun(t, h, "alice", d)
	}
	if best, _ := h.tr.Ledger().Get("alice"); best != 9.25 {
		t.Fatalf("best=%v want 9.25", best)
	}
}

func TestFinishIsExactlyOnce(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	entity := h.host.avatars["alice"]
	h.elapse(3 * time.Second)

	accepted := 0
	for i := 0; i < 5; i++ {
		if h.tr.FinishCollision(entity, true) {
			accepted++
		}
	}
	if accepted != 1 {
		t.Fatalf("accepted=%d want 1", accepted)
	}
	if len(h.host.despawns) != 1 {
		t.Fatalf("despawns=%d want 1", len(h.host.despawns))
	}
	if n := len(h.host.uiOfType("alice", "time")); n != 1 {
		t.Fatalf("time payloads=%d want 1", n)
	}
	finishes := 0
	for _, k := range h.sink.kinds() {
		if k == EventFinish {
			finishes++
		}
	}
	if finishes != 1 {
		t.Fatalf("finish events=%d want 1", finishes)
	}
}

func TestFinishIgnoresEndAndForeignEntities(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	h.joinAndRun("bob")

	if h.tr.FinishCollision(h.host.avatars["alice"], false) {
		t.Fatalf("collision end finalized the race")
	}
	if h.tr.FinishCollision("E999", true) {
		t.Fatalf("unknown entity finalized a race")
	}
	if !h.finish("bob") {
		t.Fatalf("bob finish rejected")
	}
	if got := h.phase("alice"); got != Running {
		t.Fatalf("alice phase=%s want RUNNING", got)
	}
}

func TestStaleAvatarAfterRestartIsIgnored(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	old := h.host.avatars["alice"]
	h.elapse(time.Second)
	h.finish("alice")
	h.tr.Restart("alice")

	if h.tr.FinishCollision(old, true) {
		t.Fatalf("collision from despawned avatar finalized the race")
	}
	if !h.finish("alice") {
		t.Fatalf("current avatar rejected")
	}
}

func TestFallRecoveryWhileRunning(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	h.host.pos["alice"] = geom.V(3, -10, 0)

	h.seconds(1)
	if len(h.host.teleports) != 1 {
		t.Fatalf("teleports=%d want 1", len(h.host.teleports))
	}
	p := h.host.pos["alice"]
	box := DefaultSpawnBox
	if p.Y != box.Y || p.X < box.MinX || p.X >= box.MaxX || p.Z < box.MinZ || p.Z >= box.MaxZ {
		t.Fatalf("respawn position %+v outside spawn box", p)
	}
	want := chatLine{To: "*", Text: "Player alice fell off the platform", Color: ColorRed}
	if diff := cmp.Diff(want, h.host.chats[len(h.host.chats)-1]); diff != "" {
		t.Fatalf("fall notice (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"alice:audio/sfx/damage/fall-small.mp3"}, h.host.cues); diff != "" {
		t.Fatalf("cues (-want +got):\n%s", diff)
	}
	if got := h.phase("alice"); got != Running {
		t.Fatalf("fall changed phase to %s", got)
	}
}

func TestNoFallRecoveryDuringCountdown(t *testing.T) {
	h := newHarness(t)
	h.tr.Join("alice")
	h.host.pos["alice"] = geom.V(0, -40, 0)
	h.seconds(4)
	if len(h.host.teleports) != 0 {
		t.Fatalf("teleported during countdown")
	}
	h.seconds(2)
	if len(h.host.teleports) != 1 {
		t.Fatalf("teleports=%d want 1 once running", len(h.host.teleports))
	}
}

func TestNoFallRecoveryAfterFinish(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	h.elapse(time.Second)
	h.finish("alice")

	// A lingering avatar reported far below the track.
	h.host.avatars["alice"] = "ghost"
	h.host.pos["alice"] = geom.V(0, -50, 0)
	h.seconds(3)
	if len(h.host.teleports) != 0 {
		t.Fatalf("teleported after finish")
	}

	h.tr.Restart("alice")
	h.host.pos["alice"] = geom.V(0, -50, 0)
	h.seconds(1)
	if len(h.host.teleports) != 1 {
		t.Fatalf("teleports=%d want 1 after restart", len(h.host.teleports))
	}
}

func TestRestartRequiresFinished(t *testing.T) {
	h := newHarness(t)
	effects := func() int {
		return len(h.host.chats) + len(h.host.ui["alice"]) + len(h.host.spawns) + len(h.host.cues)
	}

	h.tr.Join("alice")
	n := effects()
	if h.tr.Restart("alice") {
		t.Fatalf("restart accepted during countdown")
	}
	if effects() != n {
		t.Fatalf("restart during countdown had side effects")
	}

	h.seconds(5)
	n = effects()
	if h.tr.Restart("alice") {
		t.Fatalf("restart accepted while running")
	}
	if h.tr.Restart("nobody") {
		t.Fatalf("restart accepted without a session")
	}
	if effects() != n {
		t.Fatalf("restart while running had side effects")
	}
	if got := h.phase("alice"); got != Running {
		t.Fatalf("phase=%s want RUNNING", got)
	}
}

func TestRestartAfterFinish(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	h.elapse(2 * time.Second)
	h.finish("alice")
	h.elapse(10 * time.Second)

	if !h.tr.Restart("alice") {
		t.Fatalf("restart rejected")
	}
	v, _ := h.tr.Session("alice")
	if v.Phase != "RUNNING" || !v.StartedAt.Equal(h.clock.now()) {
		t.Fatalf("session after restart=%+v", v)
	}
	if len(h.host.spawns) != 2 || h.host.cameras != 1 {
		t.Fatalf("spawns=%d cameras=%d", len(h.host.spawns), h.host.cameras)
	}
	if diff := cmp.Diff([]float64{1}, h.host.gravity); diff != "" {
		t.Fatalf("gravity (-want +got):\n%s", diff)
	}
	restarts := h.host.uiOfType("alice", "restart")
	if len(restarts) != 1 || restarts[0]["time"] != 0 {
		t.Fatalf("restart payloads=%v", restarts)
	}
	if !strings.HasSuffix(h.host.cues[len(h.host.cues)-1], "portal-travel-woosh.mp3") {
		t.Fatalf("cues=%v", h.host.cues)
	}
	if len(h.host.uiOfType("alice", "countdown")) != 6 {
		t.Fatalf("restart re-ran the countdown")
	}
}

func TestRejoinSupersedesCountdown(t *testing.T) {
	h := newHarness(t)
	first := h.tr.Join("alice")
	h.seconds(3)
	second := h.tr.Join("alice")
	if second == first {
		t.Fatalf("generation not advanced")
	}

	h.seconds(2)
	if got := h.phase("alice"); got != Countdown {
		t.Fatalf("superseded countdown fired: phase=%s", got)
	}
	h.seconds(3)
	if got := h.phase("alice"); got != Running {
		t.Fatalf("phase=%s want RUNNING", got)
	}

	want := []EventKind{EventJoin, EventSupersede, EventJoin, EventStart}
	if diff := cmp.Diff(want, h.sink.kinds()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
}

func TestLeaveReleasesTimers(t *testing.T) {
	h := newHarness(t)
	h.tr.Join("alice")
	if h.timers.Pending() != 2 {
		t.Fatalf("pending=%d want countdown+fall", h.timers.Pending())
	}
	if !h.tr.Leave("alice") {
		t.Fatalf("leave rejected")
	}
	if h.timers.Pending() != 0 {
		t.Fatalf("pending=%d after leave", h.timers.Pending())
	}
	h.seconds(10)
	if diff := cmp.Diff([]EventKind{EventJoin, EventLeave}, h.sink.kinds()); diff != "" {
		t.Fatalf("events (-want +got):\n%s", diff)
	}
	if h.tr.Leave("alice") {
		t.Fatalf("second leave accepted")
	}
}

func TestPlayersRaceIndependently(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	h.seconds(2)
	h.tr.Join("bob")
	if got := h.phase("alice"); got != Running {
		t.Fatalf("bob's join changed alice to %s", got)
	}
	h.seconds(5)
	h.elapse(5 * time.Second)
	h.finish("alice")
	h.finish("bob")

	a, _ := h.tr.Ledger().Get("alice")
	b, _ := h.tr.Ledger().Get("bob")
	if a != 12 || b != 5 {
		t.Fatalf("alice=%v bob=%v want 12 and 5", a, b)
	}
	if diff := cmp.Diff([]Entry{{"bob", 5}, {"alice", 12}}, h.tr.Ledger().Entries()); diff != "" {
		t.Fatalf("entries (-want +got):\n%s", diff)
	}
}

func TestZeroCountdownStartsImmediately(t *testing.T) {
	cfg := DefaultConfig()
	cfg.CountdownSeconds = 0
	host := newFakeHost()
	tr := NewTracker(cfg, host, sched.New(), NewSpawnGenerator(DefaultSpawnBox, rand.New(rand.NewSource(1))))
	tr.Join("alice")
	v, _ := tr.Session("alice")
	if v.Phase != "RUNNING" || v.StartedAt.IsZero() {
		t.Fatalf("session=%+v", v)
	}
}

func TestClockSkewFinishIsNotRecorded(t *testing.T) {
	h := newHarness(t)
	h.joinAndRun("alice")
	h.elapse(-3 * time.Second)

	if !h.finish("alice") {
		t.Fatalf("finish rejected")
	}
	if got := h.phase("alice"); got != Finished {
		t.Fatalf("phase=%s want FINISHED", got)
	}
	if _, ok := h.tr.Ledger().Get("alice"); ok {
		t.Fatalf("zero time recorded in ledger")
	}
	last := h.host.chats[len(h.host.chats)-1]
	if last.Text != "Time: 0.00 seconds" || last.Color != ColorYellow {
		t.Fatalf("last chat=%+v", last)
	}
	if times := h.host.uiOfType("alice", "time"); len(times) != 1 || times[0]["time"] != 0.0 {
		t.Fatalf("time payloads=%v", times)
	}
	ev := h.sink.events[len(h.sink.events)-1]
	if ev.Kind != EventFinish || ev.NewBest || ev.Best != 0 {
		t.Fatalf("finish event=%+v", ev)
	}

	finishRun(t, h, "alice", 8*time.Second)
	if best, _ := h.tr.Ledger().Get("alice"); best != 8 {
		t.Fatalf("best=%v want 8", best)
	}
	h.tr.Restart("alice")
	h.elapse(-time.Second)
	h.finish("alice")
	if last := h.host.chats[len(h.host.chats)-1]; last.Text != "Time: 0.00 seconds (Best: 8.00)" {
		t.Fatalf("last chat=%+v", last)
	}
}
