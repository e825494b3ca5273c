package geom

import "math"

// Vec3 is a world-space position or velocity in blocks.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func V(x, y, z float64) Vec3 { return Vec3{X: x, Y: y, Z: z} }

func FromArray(a [3]float64) Vec3 { return Vec3{X: a[0], Y: a[1], Z: a[2]} }

func (v Vec3) ToArray() [3]float64 { return [3]float64{v.X, v.Y, v.Z} }

func (v Vec3) Add(o Vec3) Vec3 { return Vec3{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func (v Vec3) Scale(k float64) Vec3 { return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k} }

func (v Vec3) IsZero() bool { return v.X == 0 && v.Y == 0 && v.Z == 0 }

// Finite reports whether every component is a real number.
func (v Vec3) Finite() bool {
	for _, c := range [3]float64{v.X, v.Y, v.Z} {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// Axis selects one component of a Vec3.
type Axis string

const (
	AxisX Axis = "x"
	AxisY Axis = "y"
	AxisZ Axis = "z"
)

func (a Axis) Valid() bool { return a == AxisX || a == AxisY || a == AxisZ }

func (v Vec3) Get(a Axis) float64 {
	switch a {
	case AxisX:
		return v.X
	case AxisY:
		return v.Y
	case AxisZ:
		return v.Z
	}
	return 0
}

func (v Vec3) With(a Axis, c float64) Vec3 {
	switch a {
	case AxisX:
		v.X = c
	case AxisY:
		v.Y = c
	case AxisZ:
		v.Z = c
	}
	return v
}

// Box is an axis-aligned volume given by its center and half extents.
type Box struct {
	Center      Vec3 `json:"center"`
	HalfExtents Vec3 `json:"half_extents"`
}

// Contains is inclusive on every face.
func (b Box) Contains(p Vec3) bool {
	return math.Abs(p.X-b.Center.X) <= b.HalfExtents.X &&
		math.Abs(p.Y-b.Center.Y) <= b.HalfExtents.Y &&
		math.Abs(p.Z-b.Center.Z) <= b.HalfExtents.Z
}
