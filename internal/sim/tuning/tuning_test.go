package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_TuningYAML(t *testing.T) {
	tune, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load tuning.yaml: %v", err)
	}
	if tune.Race.CountdownSeconds != 5 || tune.Race.FallCheckSeconds != 1 || tune.Race.FallThresholdY != -10 {
		t.Fatalf("race tuning=%+v", tune.Race)
	}
	rc := tune.RaceConfig()
	if rc.TicksPerSecond != tune.TickRateHz {
		t.Fatalf("ticks per second=%d want %d", rc.TicksPerSecond, tune.TickRateHz)
	}
	if rc.FallCue.URI != "audio/sfx/damage/fall-small.mp3" || rc.FallCue.CutoffDistance != 50 {
		t.Fatalf("fall cue=%+v", rc.FallCue)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: 10\nrace:\n  countdown_seconds: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	tune, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tune.TickRateHz != 10 || tune.BroadcastHz != 10 {
		t.Fatalf("rates=%d/%d want 10/10", tune.TickRateHz, tune.BroadcastHz)
	}
	if tune.Race.CountdownSeconds != 3 || tune.Race.FallThresholdY != -10 {
		t.Fatalf("race=%+v", tune.Race)
	}
	if tune.Audio.Music.URI != "audio/music/bg.mp3" {
		t.Fatalf("music default lost: %+v", tune.Audio.Music)
	}
}

func TestLoad_RejectsBadBroadcastRate(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("tick_rate_hz: 20\nbroadcast_hz: 3\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(p)
	if err == nil || !strings.Contains(err.Error(), "tuning.yaml: broadcast_hz") {
		t.Fatalf("err=%v", err)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("err=%v want not-exist", err)
	}
}
