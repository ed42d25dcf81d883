package planning

import (
	"math"
	"testing"

	"lifuplan/internal/models"
	"lifuplan/pkg/entities"
	"lifuplan/pkg/frames"
	"lifuplan/pkg/scene"
)

func testProtocol() *models.Protocol {
	return &models.Protocol{
		ID:           "proto-1",
		Name:         "test protocol",
		Pulse:        models.Pulse{Frequency: 5e5, Duration: 0.02},
		FocalPattern: models.FocalPattern{Kind: "single"},
		SimGrid: models.SimGrid{
			Shape:   [3]int{3, 3, 3},
			Origin:  [3]float64{-1, -1, -1},
			Spacing: [3]float64{1, 1, 1},
			Units:   "mm",
		},
		SoundSpeed: 1.5e6,
	}
}

func testTransducerDef() *models.Transducer {
	return &models.Transducer{
		ID:    "tx-1",
		Units: "mm",
		Mesh:  &models.Mesh{},
		Elements: [][3]float64{
			{-10, 0, 0}, {0, 0, 0}, {10, 0, 0},
		},
	}
}

// planFixture loads a transducer at identity, a unit volume, and one target
// at the world position of transducer-local (0,0,0).
func planFixture(t *testing.T) (*scene.Scene, *entities.Transducer, *scene.PointNode, *scene.VolumeNode) {
	t.Helper()
	sc := scene.New()
	tx, err := entities.LoadTransducer(sc, testTransducerDef(), nil, "")
	if err != nil {
		t.Fatalf("LoadTransducer failed: %v", err)
	}
	field := models.NewScalarField([3]int{8, 8, 8})
	for i := range field.Data {
		field.Data[i] = 1
	}
	vol := sc.AddVolume("vol", "vol-1", field, frames.Identity4())
	target := sc.AddPoint("tgt-1", [3]float64{0, 0, 0}, "target", [3]float64{})
	return sc, tx, target, vol
}

// fixedSimulator returns one canned field per call, in order
type fixedSimulator struct {
	fields []*models.ScalarField
	calls  int
}

func (s *fixedSimulator) Simulate(protocol *models.Protocol, transducer *models.Transducer, focus models.Point,
	delays, apodization []float64, background *models.ScalarField) (*models.ScalarField, error) {
	f := s.fields[s.calls]
	s.calls++
	return f, nil
}

// constField builds a grid-shaped field holding a single value
func constField(shape [3]int, v float64) *models.ScalarField {
	f := models.NewScalarField(shape)
	for i := range f.Data {
		f.Data[i] = v
	}
	return f
}

// TestGeneratePlanAggregation verifies per-voxel max and mean across foci
func TestGeneratePlanAggregation(t *testing.T) {
	sc, tx, target, vol := planFixture(t)
	protocol := testProtocol()
	protocol.FocalPattern = models.FocalPattern{Kind: "wheel", Radius: 1, Spokes: 2}

	shape := protocol.SimGrid.Shape
	sim := &fixedSimulator{fields: []*models.ScalarField{
		constField(shape, 1),
		constField(shape, 5),
		constField(shape, 3),
	}}

	plan, err := GeneratePlan(sc, protocol, tx, target, vol, GeometricBeamformer{}, sim)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	if len(plan.Foci) != 3 {
		t.Fatalf("Expected 3 foci (target + 2 spokes), got %d", len(plan.Foci))
	}
	if sim.calls != 3 {
		t.Errorf("Simulator called %d times, want 3", sim.calls)
	}
	for i, v := range plan.PNPNode.Field.Data {
		if v != 5 {
			t.Fatalf("PNP sample %d = %f, want per-voxel max 5", i, v)
		}
	}
	for i, v := range plan.IntensityNode.Field.Data {
		if v != 3 {
			t.Fatalf("Intensity sample %d = %f, want per-voxel mean 3", i, v)
		}
	}
	if plan.PNPNode.ParentTransform() != tx.PlacementNode {
		t.Error("PNP volume is not parented under the transducer placement")
	}
	if plan.IntensityNode.ParentTransform() != tx.PlacementNode {
		t.Error("Intensity volume is not parented under the transducer placement")
	}
}

// TestGeneratePlanNegativePressureAggregation verifies the per-voxel maximum
// over fields that are negative everywhere, as peak-negative-pressure fields
// are. A zero-seeded maximum would wrongly report 0 here.
func TestGeneratePlanNegativePressureAggregation(t *testing.T) {
	sc, tx, target, vol := planFixture(t)
	protocol := testProtocol()
	protocol.FocalPattern = models.FocalPattern{Kind: "wheel", Radius: 1, Spokes: 2}

	shape := protocol.SimGrid.Shape
	sim := &fixedSimulator{fields: []*models.ScalarField{
		constField(shape, -5),
		constField(shape, -1),
		constField(shape, -3),
	}}

	plan, err := GeneratePlan(sc, protocol, tx, target, vol, GeometricBeamformer{}, sim)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	for i, v := range plan.PNPNode.Field.Data {
		if v != -1 {
			t.Fatalf("PNP sample %d = %f, want per-voxel max -1", i, v)
		}
	}
	for i, v := range plan.IntensityNode.Field.Data {
		if v != -3 {
			t.Fatalf("Intensity sample %d = %f, want per-voxel mean -3", i, v)
		}
	}
}

// TestGeneratePlanFocusOrder verifies the target is the first focus and is
// expressed in transducer-local coordinates.
func TestGeneratePlanFocusOrder(t *testing.T) {
	sc, tx, _, vol := planFixture(t)
	// World (-2, -3, 4) is local LPS-mm (2, 3, 4)
	target := sc.AddPoint("tgt-off", [3]float64{-2, -3, 4}, "offset target", [3]float64{})
	protocol := testProtocol()

	sim := &fixedSimulator{fields: []*models.ScalarField{constField(protocol.SimGrid.Shape, 1)}}
	plan, err := GeneratePlan(sc, protocol, tx, target, vol, GeometricBeamformer{}, sim)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}
	focus := plan.Foci[0].Point
	want := [3]float64{2, 3, 4}
	for i := 0; i < 3; i++ {
		if math.Abs(focus.Position[i]-want[i]) > 1e-12 {
			t.Errorf("Focus position %d = %f, want %f", i, focus.Position[i], want[i])
		}
	}
	if !focus.InLocalDims() {
		t.Error("Focus is not in transducer-local dims")
	}
}

// TestGeneratePlanRejectsShapeMismatch verifies validation of simulator output
func TestGeneratePlanRejectsShapeMismatch(t *testing.T) {
	sc, tx, target, vol := planFixture(t)
	sim := &fixedSimulator{fields: []*models.ScalarField{constField([3]int{2, 2, 2}, 1)}}
	if _, err := GeneratePlan(sc, testProtocol(), tx, target, vol, GeometricBeamformer{}, sim); err == nil {
		t.Error("Expected error for mismatched simulator output shape, got nil")
	}
}

// TestGeometricBeamformer verifies the time-of-flight delay law
func TestGeometricBeamformer(t *testing.T) {
	protocol := testProtocol()
	transducer := testTransducerDef()
	focus := models.Point{ID: "f", Position: [3]float64{0, 0, 30}, Dims: models.LocalDims, Units: "mm"}

	delays, apodization, err := GeometricBeamformer{}.Beamform(protocol, transducer, focus)
	if err != nil {
		t.Fatalf("Beamform failed: %v", err)
	}
	if len(delays) != 3 || len(apodization) != 3 {
		t.Fatalf("Expected 3 delays and weights, got %d and %d", len(delays), len(apodization))
	}
	// Outer elements are equidistant and farthest; the center element is
	// closest and fires last.
	if delays[0] != 0 || delays[2] != 0 {
		t.Errorf("Farthest elements should have zero delay, got %f and %f", delays[0], delays[2])
	}
	wantCenter := (math.Hypot(10, 30) - 30) / protocol.SoundSpeed
	if math.Abs(delays[1]-wantCenter) > 1e-15 {
		t.Errorf("Center delay = %g, want %g", delays[1], wantCenter)
	}
	for i, w := range apodization {
		if w != 1 {
			t.Errorf("Apodization %d = %f, want 1", i, w)
		}
	}

	t.Run("no elements", func(t *testing.T) {
		empty := &models.Transducer{ID: "empty", Units: "mm"}
		if _, _, err := (GeometricBeamformer{}).Beamform(protocol, empty, focus); err == nil {
			t.Error("Expected error for transducer with no elements, got nil")
		}
	})

	t.Run("bad sound speed", func(t *testing.T) {
		bad := testProtocol()
		bad.SoundSpeed = 0
		if _, _, err := (GeometricBeamformer{}).Beamform(bad, transducer, focus); err == nil {
			t.Error("Expected error for zero sound speed, got nil")
		}
	})
}

// TestSyntheticSimulator verifies the lobe peaks at the focus and decays
func TestSyntheticSimulator(t *testing.T) {
	protocol := testProtocol()
	transducer := testTransducerDef()
	// Focus at the grid center, which is local (0,0,0)
	focus := models.Point{ID: "f", Position: [3]float64{0, 0, 0}, Dims: models.LocalDims, Units: "mm"}
	background := constField(protocol.SimGrid.Shape, 1)

	field, err := SyntheticSimulator{}.Simulate(protocol, transducer, focus, nil, nil, background)
	if err != nil {
		t.Fatalf("Simulate failed: %v", err)
	}
	center := field.At(1, 1, 1)
	if math.Abs(center-1) > 1e-12 {
		t.Errorf("Field at focus = %f, want peak 1", center)
	}
	if corner := field.At(0, 0, 0); corner >= center {
		t.Errorf("Field does not decay away from the focus: corner %f, center %f", corner, center)
	}

	t.Run("shape mismatch", func(t *testing.T) {
		if _, err := (SyntheticSimulator{}).Simulate(protocol, transducer, focus, nil, nil, constField([3]int{2, 2, 2}, 1)); err == nil {
			t.Error("Expected error for mismatched background shape, got nil")
		}
	})
}

// TestSolutionFromPlan verifies the persistable extraction
func TestSolutionFromPlan(t *testing.T) {
	sc, tx, target, vol := planFixture(t)
	protocol := testProtocol()
	sim := &fixedSimulator{fields: []*models.ScalarField{constField(protocol.SimGrid.Shape, 2)}}
	plan, err := GeneratePlan(sc, protocol, tx, target, vol, GeometricBeamformer{}, sim)
	if err != nil {
		t.Fatalf("GeneratePlan failed: %v", err)
	}

	solution := SolutionFromPlan("sol-1", "solution", plan, protocol, tx, target.Name())
	if solution.ID != "sol-1" || solution.ProtocolID != "proto-1" || solution.TransducerID != "tx-1" {
		t.Error("Solution identity fields not captured")
	}
	if solution.TargetID != "tgt-1" {
		t.Errorf("Solution target = %q, want tgt-1", solution.TargetID)
	}
	if len(solution.Foci) != 1 {
		t.Fatalf("Expected 1 focus, got %d", len(solution.Foci))
	}
	if len(solution.Foci[0].Delays) != 3 {
		t.Error("Beamforming vectors not carried into the solution")
	}
	if solution.Approved {
		t.Error("New solution must not be pre-approved")
	}
}
