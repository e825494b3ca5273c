package race

import "voxelfall.ai/internal/sim/geom"

// Chat colors, as RGB hex without the leading '#'.
const (
	ColorDefault = ""
	ColorGreen   = "00FF00"
	ColorRed     = "FF0000"
	ColorYellow  = "FFFF00"
)

// Cue is a one-shot audio asset played by the engine.
type Cue struct {
	URI            string  `json:"uri" yaml:"uri"`
	Volume         float64 `json:"volume" yaml:"volume"`
	Loop           bool    `json:"loop,omitempty" yaml:"loop"`
	CutoffDistance float64 `json:"cutoff_distance,omitempty" yaml:"cutoff_distance"`
}

// UIPayload is a tagged structured message for the player's UI surface.
// Every payload carries a "type" key.
type UIPayload map[string]any

func (p UIPayload) Type() string {
	s, _ := p["type"].(string)
	return s
}

// Host is the engine side of the race: avatars, presentation and output sinks.
// Every method is called from the world loop goroutine.
type Host interface {
	// AvatarPosition reports the player's avatar position; ok is false when
	// the player has no spawned avatar.
	AvatarPosition(playerID string) (pos geom.Vec3, ok bool)
	// SpawnAvatar creates the player's avatar and returns its entity id.
	SpawnAvatar(playerID string, pos geom.Vec3) (entityID string)
	TeleportAvatar(playerID string, pos geom.Vec3)
	DespawnAvatar(playerID string)

	// ResetCamera puts the camera back in third person, attached to the avatar.
	ResetCamera(playerID string)
	SetGravityScale(playerID string, scale float64)

	SendChat(playerID, text, color string)
	BroadcastChat(text, color string)
	SendUI(playerID string, payload UIPayload)
	// PlayCue plays cue at the player's avatar.
	PlayCue(playerID string, cue Cue)
}
