package models

import (
	"fmt"
	"math"
)

// FocalPattern describes how a single sonication target expands into the
// sequence of focus points the beamformer steers to. Positions are expanded
// in transducer-local coordinates.
type FocalPattern struct {
	// Kind is "single" or "wheel".
	Kind string `json:"kind"`

	// Radius is the spoke radius for the wheel pattern, in the units of
	// the target point being expanded. Ignored for "single".
	Radius float64 `json:"radius,omitempty"`

	// Spokes is the number of off-center points for the wheel pattern.
	Spokes int `json:"spokes,omitempty"`
}

// Expand returns the focus points for the given target. The target itself is
// always the first point. The wheel pattern adds Spokes points on a circle
// of the configured radius in the lateral/elevation plane around the target.
func (p *FocalPattern) Expand(target Point) ([]Point, error) {
	switch p.Kind {
	case "", "single":
		return []Point{target}, nil
	case "wheel":
		points := []Point{target}
		for s := 0; s < p.Spokes; s++ {
			angle := 2 * math.Pi * float64(s) / float64(p.Spokes)
			spoke := target
			spoke.ID = fmt.Sprintf("%s-spoke-%d", target.ID, s)
			spoke.Name = fmt.Sprintf("%s spoke %d", target.Name, s)
			spoke.Position[0] += p.Radius * math.Cos(angle)
			spoke.Position[1] += p.Radius * math.Sin(angle)
			points = append(points, spoke)
		}
		return points, nil
	default:
		return nil, fmt.Errorf("unrecognized focal pattern kind %q", p.Kind)
	}
}

// SimGrid describes the regular simulation grid in transducer-local
// coordinates on which the physics boundary produces its fields.
type SimGrid struct {
	Shape   [3]int     `json:"shape"`
	Origin  [3]float64 `json:"origin"`
	Spacing [3]float64 `json:"spacing"`
	Units   string     `json:"units"`
}

// Pulse is the excitation description handed to the physics boundary.
type Pulse struct {
	Frequency float64 `json:"frequency"`
	Duration  float64 `json:"duration"`
}

// Protocol is the persisted definition of a treatment protocol.
type Protocol struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Pulse        Pulse        `json:"pulse"`
	FocalPattern FocalPattern `json:"focal_pattern"`
	SimGrid      SimGrid      `json:"sim_grid"`

	// SoundSpeed is the assumed propagation speed in mm/s, consumed by
	// the beamforming boundary.
	SoundSpeed float64 `json:"sound_speed"`
}
