package race

import (
	"math/rand"

	"voxelfall.ai/internal/sim/geom"
)

// SpawnBox is the region new avatars are dropped into: x and z are drawn
// uniformly from [Min, Max), y is fixed above the track.
type SpawnBox struct {
	MinX, MaxX float64
	Y          float64
	MinZ, MaxZ float64
}

// DefaultSpawnBox is the start pad of the Voxel Fall course.
var DefaultSpawnBox = SpawnBox{MinX: -2, MaxX: 3.5, Y: 10, MinZ: 40, MaxZ: 43}

type SpawnGenerator struct {
	box SpawnBox
	rng *rand.Rand
}

// NewSpawnGenerator draws from rng, which callers share with nothing that
// runs off the world loop goroutine.
func NewSpawnGenerator(box SpawnBox, rng *rand.Rand) *SpawnGenerator {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &SpawnGenerator{box: box, rng: rng}
}

func (g *SpawnGenerator) Box() SpawnBox { return g.box }

func (g *SpawnGenerator) Next() geom.Vec3 {
	b := g.box
	return geom.Vec3{
		X: b.MinX + g.rng.Float64()*(b.MaxX-b.MinX),
		Y: b.Y,
		Z: b.MinZ + g.rng.Float64()*(b.MaxZ-b.MinZ),
	}
}
