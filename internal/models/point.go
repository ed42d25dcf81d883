package models

import "lifuplan/pkg/frames"

// Point is a single labeled 3-D point, typically a sonication target. Its
// position is interpreted in the frame described by Dims and Units; world
// anatomical points use dims (R,A,S) and unit "mm", while points in a
// transducer's local space use dims (x,y,z) by convention of the planning
// boundary and carry the transducer's native units.
type Point struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Position [3]float64     `json:"position"`
	Dims     [3]frames.Axis `json:"dims"`
	Units    string         `json:"units"`
	Color    [3]float64     `json:"color"`
}

// LocalDims marks a point as expressed in transducer-local coordinates
// rather than an anatomical frame.
var LocalDims = [3]frames.Axis{"x", "y", "z"}

// InLocalDims reports whether the point is expressed in transducer-local
// coordinates.
func (p *Point) InLocalDims() bool {
	return p.Dims == LocalDims
}
