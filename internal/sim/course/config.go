package course

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"voxelfall.ai/internal/sim/geom"
	"voxelfall.ai/internal/sim/race"
)

type Config struct {
	Name      string         `yaml:"name"`
	Spawn     SpawnSpec      `yaml:"spawn"`
	Finish    FinishSpec     `yaml:"finish"`
	Platforms []PlatformSpec `yaml:"platforms,omitempty"`
}

type SpawnSpec struct {
	MinX float64 `yaml:"min_x"`
	MaxX float64 `yaml:"max_x"`
	Y    float64 `yaml:"y"`
	MinZ float64 `yaml:"min_z"`
	MaxZ float64 `yaml:"max_z"`
}

type FinishSpec struct {
	Center      [3]float64 `yaml:"center"`
	HalfExtents [3]float64 `yaml:"half_extents"`
}

type PlatformSpec struct {
	ID              string      `yaml:"id"`
	Texture         string      `yaml:"texture"`
	HalfExtents     [3]float64  `yaml:"half_extents"`
	Start           [3]float64  `yaml:"start"`
	LinearVelocity  [3]float64  `yaml:"linear_velocity,omitempty"`
	AngularVelocity [3]float64  `yaml:"angular_velocity,omitempty"`
	Bounds          *BoundsSpec `yaml:"bounds,omitempty"`
}

// BoundsSpec confines a moving platform on one axis. Past Min the axis
// velocity becomes +Speed, past Max it becomes -Speed.
type BoundsSpec struct {
	Axis  string  `yaml:"axis"`
	Min   float64 `yaml:"min"`
	Max   float64 `yaml:"max"`
	Speed float64 `yaml:"speed"`
}

func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	// A file that lists platforms replaces the built-in set.
	cfg.Platforms = nil
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("course.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("course.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	lift := func(id string, x float64) PlatformSpec {
		return PlatformSpec{
			ID: id, Texture: "blocks/grass",
			HalfExtents:    [3]float64{1, 0.5, 1},
			Start:          [3]float64{x, 0, 4},
			LinearVelocity: [3]float64{0, 3, 0},
			Bounds:         &BoundsSpec{Axis: "y", Min: 0, Max: 5, Speed: 3},
		}
	}
	slider := func(id string, x, z, vz float64) PlatformSpec {
		return PlatformSpec{
			ID: id, Texture: "blocks/grass",
			HalfExtents:    [3]float64{2, 0.5, 2},
			Start:          [3]float64{x, 0, z},
			LinearVelocity: [3]float64{0, 0, vz},
			Bounds:         &BoundsSpec{Axis: "z", Min: -26, Max: -12, Speed: 3},
		}
	}
	return Config{
		Name: "voxel_fall",
		Spawn: SpawnSpec{
			MinX: race.DefaultSpawnBox.MinX, MaxX: race.DefaultSpawnBox.MaxX,
			Y:    race.DefaultSpawnBox.Y,
			MinZ: race.DefaultSpawnBox.MinZ, MaxZ: race.DefaultSpawnBox.MaxZ,
		},
		Finish: FinishSpec{
			Center:      [3]float64{29, 2, 42},
			HalfExtents: [3]float64{2, 1, 2},
		},
		Platforms: []PlatformSpec{
			lift("lift_1", 4),
			lift("lift_2", -2),
			slider("slider_1", -1, -15, 3),
			slider("slider_2", 3.5, -22, 3.2),
			{ID: "roller_1", Texture: "blocks/log", HalfExtents: [3]float64{4, 0.5, 3}, Start: [3]float64{11.5, 0, -33.5}, AngularVelocity: [3]float64{0.2, 0, 0}},
			{ID: "roller_2", Texture: "blocks/log", HalfExtents: [3]float64{4, 0.5, 3}, Start: [3]float64{20.5, 0, -33.5}, AngularVelocity: [3]float64{-0.2, 0, 0}},
			{ID: "spinner", Texture: "blocks/log", HalfExtents: [3]float64{4, 1, 0.5}, Start: [3]float64{30, 3, -15}, AngularVelocity: [3]float64{0, 1.6, 0}},
		},
	}
}

func (c *Config) Normalize() {
	if c == nil {
		return
	}
	c.Name = strings.TrimSpace(c.Name)
	for i := range c.Platforms {
		p := &c.Platforms[i]
		p.ID = strings.TrimSpace(p.ID)
		if p.ID == "" {
			p.ID = fmt.Sprintf("platform_%d", i+1)
		}
		if p.Bounds != nil {
			p.Bounds.Axis = strings.ToLower(strings.TrimSpace(p.Bounds.Axis))
			if p.Bounds.Speed < 0 {
				p.Bounds.Speed = -p.Bounds.Speed
			}
		}
	}
}

func (c Config) Validate() error {
	s := c.Spawn
	if s.MaxX < s.MinX || s.MaxZ < s.MinZ {
		return fmt.Errorf("spawn: empty box x=[%v,%v] z=[%v,%v]", s.MinX, s.MaxX, s.MinZ, s.MaxZ)
	}
	for i, h := range c.Finish.HalfExtents {
		if h <= 0 {
			return fmt.Errorf("finish: half_extents[%d] must be > 0", i)
		}
	}
	seen := map[string]bool{}
	for _, p := range c.Platforms {
		if seen[p.ID] {
			return fmt.Errorf("duplicate platform id: %s", p.ID)
		}
		seen[p.ID] = true
		for i, h := range p.HalfExtents {
			if h <= 0 {
				return fmt.Errorf("platform %s: half_extents[%d] must be > 0", p.ID, i)
			}
		}
		if p.Bounds != nil {
			if !geom.Axis(p.Bounds.Axis).Valid() {
				return fmt.Errorf("platform %s: bad bounds axis %q", p.ID, p.Bounds.Axis)
			}
			if p.Bounds.Max <= p.Bounds.Min {
				return fmt.Errorf("platform %s: bounds max must exceed min", p.ID)
			}
		}
	}
	return nil
}

func (c Config) SpawnBox() race.SpawnBox {
	return race.SpawnBox{MinX: c.Spawn.MinX, MaxX: c.Spawn.MaxX, Y: c.Spawn.Y, MinZ: c.Spawn.MinZ, MaxZ: c.Spawn.MaxZ}
}

func (c Config) FinishBox() geom.Box {
	return geom.Box{Center: geom.FromArray(c.Finish.Center), HalfExtents: geom.FromArray(c.Finish.HalfExtents)}
}
