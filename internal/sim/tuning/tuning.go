package tuning

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelfall.ai/internal/sim/race"
)

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version" json:"protocol_version"`

	TickRateHz  int `yaml:"tick_rate_hz" json:"tick_rate_hz"`
	BroadcastHz int `yaml:"broadcast_hz" json:"broadcast_hz"`

	Race  RaceTuning  `yaml:"race" json:"race"`
	Audio AudioTuning `yaml:"audio" json:"audio"`

	// RocketImpulse is applied to the avatar by /rocket.
	RocketImpulse [3]float64 `yaml:"rocket_impulse" json:"rocket_impulse"`
	UIURI         string     `yaml:"ui_uri" json:"ui_uri"`
	Welcome       []string   `yaml:"welcome" json:"welcome"`
}

type RaceTuning struct {
	CountdownSeconds int     `yaml:"countdown_seconds" json:"countdown_seconds"`
	FallCheckSeconds int     `yaml:"fall_check_seconds" json:"fall_check_seconds"`
	FallThresholdY   float64 `yaml:"fall_threshold_y" json:"fall_threshold_y"`
}

type AudioTuning struct {
	Music   race.Cue `yaml:"music" json:"music"`
	Fall    race.Cue `yaml:"fall" json:"fall"`
	Restart race.Cue `yaml:"restart" json:"restart"`
}

func Defaults() Tuning {
	rc := race.DefaultConfig()
	return Tuning{
		ProtocolVersion: "1.0",
		TickRateHz:      20,
		BroadcastHz:     10,
		Race: RaceTuning{
			CountdownSeconds: rc.CountdownSeconds,
			FallCheckSeconds: rc.FallCheckSeconds,
			FallThresholdY:   rc.FallThresholdY,
		},
		Audio: AudioTuning{
			Music:   race.Cue{URI: "audio/music/bg.mp3", Volume: 0.05, Loop: true},
			Fall:    rc.FallCue,
			Restart: rc.RestartCue,
		},
		RocketImpulse: [3]float64{0, 20, 0},
		UIURI:         "ui/index.html",
		Welcome: []string{
			"Welcome to the Voxel Fall!",
			"Use WASD to move around.",
			"Press space to jump.",
			"type /togglemusic to toggle music.",
			"Hold shift to sprint.",
			"Reach the finish line to rank up!",
		},
	}
}

// Load reads path over the defaults. Missing keys keep their default value.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t *Tuning) Normalize() {
	t.ProtocolVersion = strings.TrimSpace(t.ProtocolVersion)
	if t.TickRateHz <= 0 {
		t.TickRateHz = 20
	}
	if t.BroadcastHz <= 0 || t.BroadcastHz > t.TickRateHz {
		t.BroadcastHz = t.TickRateHz
	}
	if t.Race.CountdownSeconds < 0 {
		t.Race.CountdownSeconds = 0
	}
	if t.Race.FallCheckSeconds <= 0 {
		t.Race.FallCheckSeconds = 1
	}
}

func (t Tuning) Validate() error {
	if t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz too high: %d", t.TickRateHz)
	}
	if t.TickRateHz%t.BroadcastHz != 0 {
		return fmt.Errorf("broadcast_hz %d must divide tick_rate_hz %d", t.BroadcastHz, t.TickRateHz)
	}
	for name, c := range map[string]race.Cue{"music": t.Audio.Music, "fall": t.Audio.Fall, "restart": t.Audio.Restart} {
		if strings.TrimSpace(c.URI) == "" {
			return fmt.Errorf("audio.%s: missing uri", name)
		}
		if c.Volume < 0 || c.Volume > 1 {
			return fmt.Errorf("audio.%s: volume %v out of [0,1]", name, c.Volume)
		}
	}
	return nil
}

// RaceConfig is the tracker configuration derived from the tuning.
func (t Tuning) RaceConfig() race.Config {
	return race.Config{
		TicksPerSecond:   t.TickRateHz,
		CountdownSeconds: t.Race.CountdownSeconds,
		FallCheckSeconds: t.Race.FallCheckSeconds,
		FallThresholdY:   t.Race.FallThresholdY,
		FallCue:          t.Audio.Fall,
		RestartCue:       t.Audio.Restart,
	}
}
