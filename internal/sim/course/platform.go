package course

import (
	"voxelfall.ai/internal/protocol"
	"voxelfall.ai/internal/sim/geom"
)

// Platform is a kinematic course element. Gravity and collisions never move it;
// only its own velocities and bounds do.
type Platform struct {
	ID          string
	Texture     string
	HalfExtents geom.Vec3

	Pos    geom.Vec3
	Vel    geom.Vec3
	Angle  geom.Vec3
	AngVel geom.Vec3

	bounded bool
	axis    geom.Axis
	min     float64
	max     float64
	speed   float64
}

func NewPlatforms(specs []PlatformSpec) []*Platform {
	out := make([]*Platform, 0, len(specs))
	for _, s := range specs {
		p := &Platform{
			ID:          s.ID,
			Texture:     s.Texture,
			HalfExtents: geom.FromArray(s.HalfExtents),
			Pos:         geom.FromArray(s.Start),
			Vel:         geom.FromArray(s.LinearVelocity),
			AngVel:      geom.FromArray(s.AngularVelocity),
		}
		if s.Bounds != nil {
			p.bounded = true
			p.axis = geom.Axis(s.Bounds.Axis)
			p.min = s.Bounds.Min
			p.max = s.Bounds.Max
			p.speed = s.Bounds.Speed
		}
		out = append(out, p)
	}
	return out
}

// Step integrates dt seconds of motion. A bounded platform that has passed a
// bound is sent back toward the range at its bound speed.
func (p *Platform) Step(dt float64) {
	if dt <= 0 {
		return
	}
	p.Pos = p.Pos.Add(p.Vel.Scale(dt))
	p.Angle = p.Angle.Add(p.AngVel.Scale(dt))
	if !p.bounded {
		return
	}
	c := p.Pos.Get(p.axis)
	switch {
	case c < p.min:
		p.Vel = p.Vel.With(p.axis, p.speed)
	case c > p.max:
		p.Vel = p.Vel.With(p.axis, -p.speed)
	}
}

func (p *Platform) State() protocol.PlatformState {
	return protocol.PlatformState{ID: p.ID, Pos: p.Pos.ToArray(), Vel: p.Vel.ToArray(), Angle: p.Angle.ToArray()}
}
