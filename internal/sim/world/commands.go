package world

import (
	"fmt"
	"strings"

	"voxelfall.ai/internal/protocol"
	"voxelfall.ai/internal/sim/race"
)

type commandFunc func(w *World, p *player, args []string)

func defaultCommands() map[string]commandFunc {
	return map[string]commandFunc{
		"/restart":     cmdRestart,
		"/togglemusic": cmdToggleMusic,
		"/rocket":      cmdRocket,
	}
}

func (w *World) dispatchCommand(p *player, text string) {
	fields := strings.Fields(text)
	name := strings.ToLower(fields[0])
	fn, ok := w.commands[name]
	if !ok {
		w.send(p, chatMsg(fmt.Sprintf("Unknown command %s", fields[0]), race.ColorRed))
		return
	}
	fn(w, p, fields[1:])
}

// cmdRestart is a no-op unless the player's race is finished.
func cmdRestart(w *World, p *player, _ []string) {
	w.tracker.Restart(p.ID)
}

func cmdToggleMusic(w *World, p *player, _ []string) {
	music := w.cfg.Tuning.Audio.Music
	if w.musicPlaying {
		w.musicPlaying = false
		w.broadcast(soundMsg(protocol.SoundPause, music, ""))
		w.send(p, chatMsg("Background music paused", race.ColorGreen))
		return
	}
	w.musicPlaying = true
	w.broadcast(soundMsg(protocol.SoundPlay, music, ""))
	w.send(p, chatMsg("Background music resumed", race.ColorGreen))
}

func cmdRocket(w *World, p *player, _ []string) {
	if p.AvatarID == "" {
		return
	}
	w.broadcast(protocol.ImpulseMsg{
		Type:            protocol.TypeImpulse,
		ProtocolVersion: protocol.Version,
		EntityID:        p.AvatarID,
		Vec:             w.cfg.Tuning.RocketImpulse,
	})
}
