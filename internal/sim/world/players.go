package world

import (
	"fmt"
	"sort"
	"strings"

	"voxelfall.ai/internal/protocol"
	"voxelfall.ai/internal/sim/geom"
	"voxelfall.ai/internal/sim/race"
)

func (w *World) handleJoin(req JoinRequest) JoinResponse {
	id := strings.TrimSpace(req.Name)
	if prev := w.players[id]; prev != nil {
		// Same identity reconnected: the old connection loses the session.
		w.send(prev, protocol.ErrorMsg{
			Type:            protocol.TypeError,
			ProtocolVersion: protocol.Version,
			Code:            protocol.ErrSuperseded,
			Message:         "session superseded by a newer connection",
		})
		if prev.Out != nil && prev.Out != req.Out {
			close(prev.Out)
		}
		prev.Out = req.Out
		prev.SessionID = req.SessionID
		w.counters.supersedes++
		w.logger.Printf("supersede player=%s session=%s", id, req.SessionID)
	} else {
		w.players[id] = &player{ID: id, SessionID: req.SessionID, Out: req.Out}
	}
	w.counters.joins++
	p := w.players[id]

	tune := w.cfg.Tuning
	if tune.UIURI != "" {
		w.send(p, protocol.UIMsg{Type: protocol.TypeUI, ProtocolVersion: protocol.Version, Load: tune.UIURI})
	}
	for i, line := range tune.Welcome {
		color := race.ColorDefault
		if i == 0 {
			color = race.ColorGreen
		}
		w.send(p, chatMsg(line, color))
	}
	if w.musicPlaying {
		w.send(p, soundMsg(protocol.SoundPlay, tune.Audio.Music, ""))
	}

	w.tracker.Join(id)

	return JoinResponse{Welcome: protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       req.SessionID,
		PlayerID:        id,
		TickRateHz:      tune.TickRateHz,
		BroadcastHz:     tune.BroadcastHz,
		Course: protocol.CourseInfo{
			Name:              w.cfg.Course.Name,
			FinishCenter:      w.cfg.Course.Finish.Center,
			FinishHalfExtents: w.cfg.Course.Finish.HalfExtents,
		},
	}}
}

// handleLeave ignores requests from a connection that was already superseded.
func (w *World) handleLeave(req LeaveRequest) {
	p := w.players[req.PlayerID]
	if p == nil || p.SessionID != req.SessionID {
		return
	}
	w.tracker.Leave(p.ID)
	delete(w.players, p.ID)
}

func (w *World) handleEnvelope(env Envelope) {
	p := w.players[env.PlayerID]
	if p == nil || p.SessionID != env.SessionID {
		return
	}
	switch {
	case env.Pos != nil:
		w.handlePos(p, env.Pos.Pos)
	case env.Collision != nil:
		w.handleCollision(p, *env.Collision)
	case env.Chat != nil:
		w.handleChat(p, env.Chat.Text)
	}
}

// handlePos records the avatar position and turns finish volume entry and
// exit into collision begin and end events.
func (w *World) handlePos(p *player, pos [3]float64) {
	if p.AvatarID == "" {
		return
	}
	v := geom.FromArray(pos)
	if !v.Finite() {
		w.sendError(p, protocol.ErrBadRequest, "non-finite position")
		return
	}
	p.Pos = pos
	p.HasPos = true
	inside := w.cfg.Course.FinishBox().Contains(v)
	if inside == p.InFinish {
		return
	}
	p.InFinish = inside
	w.tracker.FinishCollision(p.AvatarID, inside)
}

// handleCollision accepts finish collider reports from an engine bridge. A
// client may only report its own avatar.
func (w *World) handleCollision(p *player, msg protocol.CollisionMsg) {
	if msg.Other != p.AvatarID {
		w.sendError(p, protocol.ErrBadRequest, fmt.Sprintf("collision for foreign entity %q", msg.Other))
		return
	}
	w.tracker.FinishCollision(msg.Other, msg.Started)
}

func (w *World) handleChat(p *player, text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if strings.HasPrefix(text, "/") {
		w.dispatchCommand(p, text)
		return
	}
	w.broadcast(chatMsg(fmt.Sprintf("[%s]: %s", p.ID, text), race.ColorDefault))
}

func (w *World) sendError(p *player, code, message string) {
	w.send(p, protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: code, Message: message})
}

func (w *World) sortedPlayerIDs() []string {
	ids := make([]string, 0, len(w.players))
	for id := range w.players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
