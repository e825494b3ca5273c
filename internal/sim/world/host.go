package world

import (
	"voxelfall.ai/internal/protocol"
	"voxelfall.ai/internal/sim/geom"
	"voxelfall.ai/internal/sim/race"
)

// engineHost renders tracker effects as protocol messages.
type engineHost struct {
	w *World
}

var _ race.Host = engineHost{}

func (h engineHost) AvatarPosition(playerID string) (geom.Vec3, bool) {
	p := h.w.players[playerID]
	if p == nil || p.AvatarID == "" || !p.HasPos {
		return geom.Vec3{}, false
	}
	return geom.FromArray(p.Pos), true
}

func (h engineHost) SpawnAvatar(playerID string, pos geom.Vec3) string {
	p := h.w.players[playerID]
	if p == nil {
		return ""
	}
	if p.AvatarID != "" {
		h.DespawnAvatar(playerID)
	}
	p.AvatarID = h.w.newEntityID()
	h.place(p, pos)
	a := pos.ToArray()
	h.w.broadcast(protocol.EntityMsg{Type: protocol.TypeSpawn, ProtocolVersion: protocol.Version, EntityID: p.AvatarID, Pos: &a})
	return p.AvatarID
}

func (h engineHost) TeleportAvatar(playerID string, pos geom.Vec3) {
	p := h.w.players[playerID]
	if p == nil || p.AvatarID == "" {
		return
	}
	h.place(p, pos)
	a := pos.ToArray()
	h.w.broadcast(protocol.EntityMsg{Type: protocol.TypeTeleport, ProtocolVersion: protocol.Version, EntityID: p.AvatarID, Pos: &a})
}

func (h engineHost) DespawnAvatar(playerID string) {
	p := h.w.players[playerID]
	if p == nil || p.AvatarID == "" {
		return
	}
	h.w.broadcast(protocol.EntityMsg{Type: protocol.TypeDespawn, ProtocolVersion: protocol.Version, EntityID: p.AvatarID})
	p.AvatarID = ""
	p.HasPos = false
	p.InFinish = false
}

// place moves the avatar server side so reads before the next POS report see the new position.
func (h engineHost) place(p *player, pos geom.Vec3) {
	p.Pos = pos.ToArray()
	p.HasPos = true
	p.InFinish = h.w.cfg.Course.FinishBox().Contains(pos)
}

func (h engineHost) ResetCamera(playerID string) {
	p := h.w.players[playerID]
	if p == nil {
		return
	}
	h.w.send(p, protocol.CameraMsg{Type: protocol.TypeCamera, ProtocolVersion: protocol.Version, Mode: protocol.CameraThirdPerson, AttachedTo: p.AvatarID})
}

func (h engineHost) SetGravityScale(playerID string, scale float64) {
	p := h.w.players[playerID]
	if p == nil || p.AvatarID == "" {
		return
	}
	h.w.send(p, protocol.GravityMsg{Type: protocol.TypeGravity, ProtocolVersion: protocol.Version, EntityID: p.AvatarID, Scale: scale})
}

func (h engineHost) SendChat(playerID, text, color string) {
	h.w.send(h.w.players[playerID], chatMsg(text, color))
}

func (h engineHost) BroadcastChat(text, color string) {
	h.w.broadcast(chatMsg(text, color))
}

func (h engineHost) SendUI(playerID string, payload race.UIPayload) {
	h.w.send(h.w.players[playerID], protocol.UIMsg{Type: protocol.TypeUI, ProtocolVersion: protocol.Version, Data: payload})
}

func (h engineHost) PlayCue(playerID string, cue race.Cue) {
	p := h.w.players[playerID]
	if p == nil {
		return
	}
	h.w.broadcast(soundMsg(protocol.SoundPlay, cue, p.AvatarID))
}

func chatMsg(text, color string) protocol.ChatMsg {
	return protocol.ChatMsg{Type: protocol.TypeChat, ProtocolVersion: protocol.Version, Text: text, Color: color}
}

func soundMsg(action string, cue race.Cue, anchor string) protocol.SoundMsg {
	return protocol.SoundMsg{
		Type:            protocol.TypeSound,
		ProtocolVersion: protocol.Version,
		Action:          action,
		URI:             cue.URI,
		Volume:          cue.Volume,
		Loop:            cue.Loop,
		CutoffDistance:  cue.CutoffDistance,
		Anchor:          anchor,
	}
}
