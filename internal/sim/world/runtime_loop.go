package world

import (
	"context"
	"encoding/json"
	"time"

	"voxelfall.ai/internal/protocol"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingEnvelopes []Envelope
	var pendingJoins []JoinRequest
	var pendingLeaves []LeaveRequest

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case req := <-w.leave:
			pendingLeaves = append(pendingLeaves, req)
		case req := <-w.leaderboard:
			w.handleLeaderboardReq(req)
		case env := <-w.inbox:
			pendingEnvelopes = append(pendingEnvelopes, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingEnvelopes)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingEnvelopes = pendingEnvelopes[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering semantics as the server.
func (w *World) StepOnce(joins []JoinRequest, leaves []LeaveRequest, envs []Envelope) uint64 {
	tick := w.tick.Load()
	w.step(joins, leaves, envs)
	return tick
}

// step applies joins, then client messages in receive order, then leaves.
// Timers and platforms advance after the inputs of the tick are applied.
func (w *World) step(joins []JoinRequest, leaves []LeaveRequest, envs []Envelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	for _, req := range joins {
		resp := w.handleJoin(req)
		if req.Resp != nil {
			req.Resp <- resp
		}
	}
	for _, env := range envs {
		w.handleEnvelope(env)
	}
	for _, req := range leaves {
		w.handleLeave(req)
	}

	w.timers.Advance(w.timers.Now() + 1)

	dt := 1 / float64(w.cfg.Tuning.TickRateHz)
	for _, p := range w.platforms {
		p.Step(dt)
	}
	every := uint64(w.cfg.Tuning.TickRateHz / w.cfg.Tuning.BroadcastHz)
	if every == 0 || nowTick%every == 0 {
		w.broadcastState(nowTick)
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	w.tick.Add(1)
	w.publishMetrics(stepMS)
}

func (w *World) broadcastState(tick uint64) {
	if len(w.players) == 0 {
		return
	}
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Platforms:       make([]protocol.PlatformState, 0, len(w.platforms)),
	}
	for _, p := range w.platforms {
		msg.Platforms = append(msg.Platforms, p.State())
	}
	for _, id := range w.sortedPlayerIDs() {
		p := w.players[id]
		if p.AvatarID == "" || !p.HasPos {
			continue
		}
		msg.Avatars = append(msg.Avatars, protocol.AvatarState{EntityID: p.AvatarID, PlayerID: p.ID, Pos: p.Pos})
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return
	}
	for _, p := range w.players {
		sendLatest(p.Out, b)
	}
}

// sendLatest never blocks the world loop: a full queue loses its oldest frame.
func sendLatest(ch chan []byte, b []byte) {
	if ch == nil {
		return
	}
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}

// send queues a discrete message. Unlike STATE frames these are not
// superseded by later ones, so a full queue drops the new message.
func (w *World) send(p *player, msg any) {
	if b, ok := w.marshal(msg); ok {
		w.sendRaw(p, b)
	}
}

func (w *World) broadcast(msg any) {
	b, ok := w.marshal(msg)
	if !ok {
		return
	}
	for _, id := range w.sortedPlayerIDs() {
		w.sendRaw(w.players[id], b)
	}
}

func (w *World) sendRaw(p *player, b []byte) {
	if p == nil || p.Out == nil {
		return
	}
	select {
	case p.Out <- b:
	default:
		w.counters.dropped++
	}
}

func (w *World) marshal(msg any) ([]byte, bool) {
	b, err := json.Marshal(msg)
	if err != nil {
		w.logger.Printf("marshal %T: %v", msg, err)
		return nil, false
	}
	return b, true
}
