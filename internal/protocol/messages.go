package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	SessionID       string     `json:"session_id"`
	PlayerID        string     `json:"player_id"`
	TickRateHz      int        `json:"tick_rate_hz"`
	BroadcastHz     int        `json:"broadcast_hz"`
	Course          CourseInfo `json:"course"`
}

type CourseInfo struct {
	Name              string     `json:"name"`
	FinishCenter      [3]float64 `json:"finish_center"`
	FinishHalfExtents [3]float64 `json:"finish_half_extents"`
}

// POS (client -> server): the avatar's current position.
type PosMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version,omitempty"`
	Pos             [3]float64 `json:"pos"`
}

// COLLISION (client -> server): a collider begin/end reported by an engine bridge.
type CollisionMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Other           string `json:"other"`
	Started         bool   `json:"started"`
}

// CHAT (both directions). Inbound text starting with '/' is a command.
type ChatMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	Text            string `json:"text"`
	Color           string `json:"color,omitempty"`
}

// UI (server -> client). Load asks the client to load a UI document; Data is
// a {type: ...} tagged payload for the loaded UI.
type UIMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	Load            string         `json:"load,omitempty"`
	Data            map[string]any `json:"data,omitempty"`
}

const (
	SoundPlay  = "play"
	SoundPause = "pause"
)

// SOUND (server -> client). An empty Anchor means a global sound.
type SoundMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	Action          string  `json:"action"`
	URI             string  `json:"uri"`
	Volume          float64 `json:"volume"`
	Loop            bool    `json:"loop,omitempty"`
	CutoffDistance  float64 `json:"cutoff_distance,omitempty"`
	Anchor          string  `json:"anchor,omitempty"`
}

// SPAWN, TELEPORT and DESPAWN (server -> client).
type EntityMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	EntityID        string      `json:"entity_id"`
	Pos             *[3]float64 `json:"pos,omitempty"`
}

const CameraThirdPerson = "THIRD_PERSON"

// CAMERA (server -> client)
type CameraMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Mode            string `json:"mode"`
	AttachedTo      string `json:"attached_to"`
}

// GRAVITY (server -> client)
type GravityMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	EntityID        string  `json:"entity_id"`
	Scale           float64 `json:"scale"`
}

// IMPULSE (server -> client)
type ImpulseMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	EntityID        string     `json:"entity_id"`
	Vec             [3]float64 `json:"vec"`
}

// STATE (server -> client): kinematic platforms and the last reported
// position of every spawned avatar.
type StateMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	Tick            uint64          `json:"tick"`
	Platforms       []PlatformState `json:"platforms"`
	Avatars         []AvatarState   `json:"avatars,omitempty"`
}

type AvatarState struct {
	EntityID string     `json:"entity_id"`
	PlayerID string     `json:"player_id"`
	Pos      [3]float64 `json:"pos"`
}

type PlatformState struct {
	ID    string     `json:"id"`
	Pos   [3]float64 `json:"pos"`
	Vel   [3]float64 `json:"vel"`
	Angle [3]float64 `json:"angle"`
}

// ERROR (server -> client)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}
