// Package planning runs the treatment-planning pipeline: expand a target
// into focus points, resample the subject volume onto the protocol's
// simulation grid, beamform and simulate each focus through pluggable
// physics boundaries, and aggregate the per-focus fields into the peak
// negative pressure and time-averaged intensity volumes.
//
// The physics itself lives behind the Beamformer and Simulator interfaces;
// this package owns the geometry plumbing around them, which is where the
// correctness risk is.
package planning

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"lifuplan/internal/models"
	"lifuplan/pkg/entities"
	"lifuplan/pkg/frames"
	"lifuplan/pkg/resample"
	"lifuplan/pkg/scene"
)

// Beamformer computes the per-element excitation for one focus point. The
// focus is expressed in transducer-local coordinates, in the transducer's
// native units.
type Beamformer interface {
	Beamform(protocol *models.Protocol, transducer *models.Transducer, focus models.Point) (delays, apodization []float64, err error)
}

// Simulator produces the simulated pressure field for one focus on the
// protocol's simulation grid. background is the subject volume already
// resampled onto that grid.
type Simulator interface {
	Simulate(protocol *models.Protocol, transducer *models.Transducer, focus models.Point,
		delays, apodization []float64, background *models.ScalarField) (*models.ScalarField, error)
}

// gridToLocal builds the affine mapping simulation-grid indices to
// transducer-local coordinates expressed in the transducer's native units.
func gridToLocal(grid models.SimGrid, nativeUnits string) (*mat.Dense, error) {
	gridScale, err := frames.UnitScaleFactor(grid.Units)
	if err != nil {
		return nil, err
	}
	nativeScale, err := frames.UnitScaleFactor(nativeUnits)
	if err != nil {
		return nil, err
	}
	u := gridScale / nativeScale
	linear := mat.NewDense(3, 3, []float64{
		grid.Spacing[0] * u, 0, 0,
		0, grid.Spacing[1] * u, 0,
		0, 0, grid.Spacing[2] * u,
	})
	return frames.ToAffine(linear, []float64{
		grid.Origin[0] * u, grid.Origin[1] * u, grid.Origin[2] * u,
	})
}

// GeneratePlan runs the full pipeline for one target and returns the plan
// holding the per-focus results and the two aggregate volume artifacts. The
// aggregates are parented under the transducer's placement node so they ride
// along with later repositioning.
func GeneratePlan(sc *scene.Scene, protocol *models.Protocol, transducer *entities.Transducer,
	target *scene.PointNode, volume *scene.VolumeNode, bf Beamformer, sim Simulator) (*entities.Plan, error) {

	localTarget, err := entities.NodeToPointInTransducerCoords(target, transducer, target.Label)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	foci, err := protocol.FocalPattern.Expand(localTarget)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}

	ijkToLocal, err := gridToLocal(protocol.SimGrid, transducer.Def.Units)
	if err != nil {
		return nil, fmt.Errorf("planning: sim grid: %w", err)
	}
	worldToIndex, err := volume.WorldToIndex()
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	// Grid index -> local -> world -> volume index, innermost first.
	outToSrc := frames.Mul(worldToIndex, frames.Mul(transducer.CurrentPlacement(), ijkToLocal))
	background, err := resample.Resample(volume.Field, outToSrc, protocol.SimGrid.Shape, resample.ClampToEdge)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}

	pnp := models.NewScalarField(protocol.SimGrid.Shape)
	intensity := models.NewScalarField(protocol.SimGrid.Shape)
	planFoci := make([]entities.PlanFocus, 0, len(foci))
	for _, focus := range foci {
		delays, apodization, err := bf.Beamform(protocol, transducer.Def, focus)
		if err != nil {
			return nil, fmt.Errorf("planning: focus %q: %w", focus.ID, err)
		}
		field, err := sim.Simulate(protocol, transducer.Def, focus, delays, apodization, background)
		if err != nil {
			return nil, fmt.Errorf("planning: focus %q: %w", focus.ID, err)
		}
		if field.Shape != protocol.SimGrid.Shape {
			return nil, fmt.Errorf("planning: focus %q: simulated field shape %v does not match grid %v",
				focus.ID, field.Shape, protocol.SimGrid.Shape)
		}
		// The first field seeds the maximum; pressure fields may be
		// entirely negative, so zero is not a valid floor.
		if len(planFoci) == 0 {
			copy(pnp.Data, field.Data)
		} else {
			for v := range field.Data {
				pnp.Data[v] = math.Max(pnp.Data[v], field.Data[v])
			}
		}
		for v := range field.Data {
			intensity.Data[v] += field.Data[v]
		}
		planFoci = append(planFoci, entities.PlanFocus{
			Point:       focus,
			Delays:      delays,
			Apodization: apodization,
			RawField:    field,
		})
	}
	floats.Scale(1/float64(len(planFoci)), intensity.Data)

	pnpNode := sc.AddVolume(target.Label+" pnp", "", pnp, ijkToLocal)
	pnpNode.SetParentTransform(transducer.PlacementNode)
	intensityNode := sc.AddVolume(target.Label+" intensity", "", intensity, ijkToLocal)
	intensityNode.SetParentTransform(transducer.PlacementNode)

	return entities.NewPlan(sc, planFoci, pnpNode, intensityNode), nil
}

// SolutionFromPlan extracts the persistable record from a plan: the
// beamforming vectors per focus, without the simulated fields.
func SolutionFromPlan(id, name string, plan *entities.Plan, protocol *models.Protocol,
	transducer *entities.Transducer, targetID string) *models.Solution {
	foci := make([]models.SolutionFocus, 0, len(plan.Foci))
	for _, f := range plan.Foci {
		foci = append(foci, models.SolutionFocus{
			Point:       f.Point,
			Delays:      f.Delays,
			Apodization: f.Apodization,
		})
	}
	return &models.Solution{
		ID:           id,
		Name:         name,
		ProtocolID:   protocol.ID,
		TransducerID: transducer.ID(),
		TargetID:     targetID,
		Foci:         foci,
	}
}

// GeometricBeamformer computes time-of-flight delays from straight-line
// element-to-focus distances at the protocol's sound speed, with uniform
// apodization. Distances are measured in millimeters.
type GeometricBeamformer struct{}

// Beamform returns one delay and one apodization weight per element. Delays
// are non-negative and the farthest element fires first.
func (GeometricBeamformer) Beamform(protocol *models.Protocol, transducer *models.Transducer, focus models.Point) ([]float64, []float64, error) {
	if len(transducer.Elements) == 0 {
		return nil, nil, fmt.Errorf("transducer %q has no elements", transducer.ID)
	}
	if protocol.SoundSpeed <= 0 {
		return nil, nil, fmt.Errorf("protocol %q: sound speed must be positive", protocol.ID)
	}
	scale, err := frames.UnitScaleFactor(transducer.Units)
	if err != nil {
		return nil, nil, err
	}
	distances := make([]float64, len(transducer.Elements))
	for i, element := range transducer.Elements {
		dx := (focus.Position[0] - element[0]) * scale
		dy := (focus.Position[1] - element[1]) * scale
		dz := (focus.Position[2] - element[2]) * scale
		distances[i] = math.Sqrt(dx*dx + dy*dy + dz*dz)
	}
	farthest := floats.Max(distances)
	delays := make([]float64, len(distances))
	apodization := make([]float64, len(distances))
	for i, d := range distances {
		delays[i] = (farthest - d) / protocol.SoundSpeed
		apodization[i] = 1
	}
	return delays, apodization, nil
}

// SyntheticSimulator is a stand-in physics boundary producing a smooth
// Gaussian pressure lobe centered on the focus, with width tied to the
// acoustic wavelength. It exists so the pipeline can run end to end without
// an external solver attached.
type SyntheticSimulator struct {
	// PeakPressure is the field value at the focus. Zero means 1.
	PeakPressure float64
}

// Simulate evaluates the lobe at every grid voxel. The background volume is
// ignored beyond shape validation; a real solver would use it as the medium.
func (s SyntheticSimulator) Simulate(protocol *models.Protocol, transducer *models.Transducer, focus models.Point,
	delays, apodization []float64, background *models.ScalarField) (*models.ScalarField, error) {
	if background.Shape != protocol.SimGrid.Shape {
		return nil, fmt.Errorf("background shape %v does not match grid %v", background.Shape, protocol.SimGrid.Shape)
	}
	if protocol.Pulse.Frequency <= 0 {
		return nil, fmt.Errorf("protocol %q: pulse frequency must be positive", protocol.ID)
	}
	peak := s.PeakPressure
	if peak == 0 {
		peak = 1
	}
	gridScale, err := frames.UnitScaleFactor(protocol.SimGrid.Units)
	if err != nil {
		return nil, err
	}
	focusScale, err := frames.UnitScaleFactor(focus.Units)
	if err != nil {
		return nil, err
	}
	// Lobe width of one wavelength, everything in millimeters.
	wavelength := protocol.SoundSpeed / protocol.Pulse.Frequency
	sigma2 := wavelength * wavelength

	grid := protocol.SimGrid
	field := models.NewScalarField(grid.Shape)
	for i := 0; i < grid.Shape[0]; i++ {
		for j := 0; j < grid.Shape[1]; j++ {
			for k := 0; k < grid.Shape[2]; k++ {
				x := (grid.Origin[0] + float64(i)*grid.Spacing[0]) * gridScale
				y := (grid.Origin[1] + float64(j)*grid.Spacing[1]) * gridScale
				z := (grid.Origin[2] + float64(k)*grid.Spacing[2]) * gridScale
				dx := x - focus.Position[0]*focusScale
				dy := y - focus.Position[1]*focusScale
				dz := z - focus.Position[2]*focusScale
				r2 := dx*dx + dy*dy + dz*dz
				field.Set(i, j, k, peak*math.Exp(-r2/(2*sigma2)))
			}
		}
	}
	return field, nil
}
