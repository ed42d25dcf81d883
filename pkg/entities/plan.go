package entities

import (
	"lifuplan/internal/models"
	"lifuplan/pkg/scene"
)

// PlanFocus is the planning result for one focus point: the beamforming
// vectors plus the raw simulated field for that point.
type PlanFocus struct {
	Point       models.Point
	Delays      []float64
	Apodization []float64
	RawField    *models.ScalarField
}

// Plan is the in-scene output of a planning computation: the per-focus
// results plus two aggregated volume artifacts, peak negative pressure
// (per-voxel max across foci) and time-averaged intensity (per-voxel mean).
// The aggregate nodes are parented under the transducer placement so they
// ride along with later transducer moves.
type Plan struct {
	Foci          []PlanFocus
	PNPNode       *scene.VolumeNode
	IntensityNode *scene.VolumeNode

	sc *scene.Scene
}

// NewPlan wraps planning outputs with the scene that owns their artifacts.
func NewPlan(sc *scene.Scene, foci []PlanFocus, pnp, intensity *scene.VolumeNode) *Plan {
	return &Plan{Foci: foci, PNPNode: pnp, IntensityNode: intensity, sc: sc}
}

// Release destroys the plan's aggregated volume artifacts. Call when the
// plan is replaced or explicitly cleared.
func (p *Plan) Release() {
	if p.PNPNode != nil {
		p.sc.Remove(p.PNPNode.Handle())
	}
	if p.IntensityNode != nil {
		p.sc.Remove(p.IntensityNode.Handle())
	}
}
