package frames

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

// allAxisTriples enumerates every ordered triple of distinct-axis labels.
// There are 48: 6 choices for the first axis, 4 for the second, 2 for the
// third.
func allAxisTriples() [][3]Axis {
	labels := []Axis{Right, Left, Anterior, Posterior, Superior, Inferior}
	axisOf := func(a Axis) int {
		switch a {
		case Right, Left:
			return 0
		case Anterior, Posterior:
			return 1
		default:
			return 2
		}
	}
	var triples [][3]Axis
	for _, a := range labels {
		for _, b := range labels {
			if axisOf(b) == axisOf(a) {
				continue
			}
			for _, c := range labels {
				if axisOf(c) == axisOf(a) || axisOf(c) == axisOf(b) {
					continue
				}
				triples = append(triples, [3]Axis{a, b, c})
			}
		}
	}
	return triples
}

// TestAxisFrameToAnatomicalOrthonormal verifies that every legal axis triple
// produces an orthonormal matrix with determinant +1 or -1.
func TestAxisFrameToAnatomicalOrthonormal(t *testing.T) {
	triples := allAxisTriples()
	if len(triples) != 48 {
		t.Fatalf("Expected 48 legal axis triples, got %d", len(triples))
	}
	for _, triple := range triples {
		m, err := AxisFrameToAnatomical(triple)
		if err != nil {
			t.Fatalf("AxisFrameToAnatomical(%v) failed: %v", triple, err)
		}
		det := mat.Det(m)
		if math.Abs(math.Abs(det)-1) > 1e-12 {
			t.Errorf("Matrix for %v has determinant %f, expected +1 or -1", triple, det)
		}
		// Columns must be orthonormal
		var mtm mat.Dense
		mtm.Mul(m.T(), m)
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				want := 0.0
				if i == j {
					want = 1.0
				}
				if math.Abs(mtm.At(i, j)-want) > 1e-12 {
					t.Errorf("Matrix for %v is not orthonormal at (%d,%d): %f", triple, i, j, mtm.At(i, j))
				}
			}
		}
		if !ValidAxes(triple) {
			t.Errorf("ValidAxes rejected legal triple %v", triple)
		}
	}
}

// TestInvalidAxisLabels verifies rejection of unknown labels and repeated axes
func TestInvalidAxisLabels(t *testing.T) {
	bad := [][3]Axis{
		{"X", Anterior, Superior},
		{Right, Left, Superior},
		{Right, Anterior, Anterior},
		{"", Anterior, Superior},
	}
	for _, triple := range bad {
		if ValidAxes(triple) {
			t.Errorf("ValidAxes accepted illegal triple %v", triple)
		}
	}
	if _, err := AxisFrameToAnatomical([3]Axis{"X", Anterior, Superior}); err == nil {
		t.Error("Expected error for unknown axis label, got nil")
	}
}

// TestUnitScaleFactor verifies the unit table, including aliases
func TestUnitScaleFactor(t *testing.T) {
	cases := []struct {
		unit string
		want float64
	}{
		{"mm", 1},
		{"m", 1000},
		{"meter", 1000},
		{"cm", 10},
		{"um", 1e-3},
		{"micron", 1e-3},
		{"in", 25.4},
	}
	for _, c := range cases {
		got, err := UnitScaleFactor(c.unit)
		if err != nil {
			t.Errorf("UnitScaleFactor(%q) failed: %v", c.unit, err)
			continue
		}
		if got != c.want {
			t.Errorf("UnitScaleFactor(%q) = %f, want %f", c.unit, got, c.want)
		}
	}
	if _, err := UnitScaleFactor("furlong"); err == nil {
		t.Error("Expected error for unknown unit, got nil")
	}
}

// TestToAffine verifies embedding and shape rejection
func TestToAffine(t *testing.T) {
	linear := mat.NewDense(3, 3, []float64{1, 2, 3, 4, 5, 6, 7, 8, 10})
	affine, err := ToAffine(linear, []float64{10, 20, 30})
	if err != nil {
		t.Fatalf("ToAffine failed: %v", err)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if affine.At(i, j) != linear.At(i, j) {
				t.Errorf("Linear part mismatch at (%d,%d)", i, j)
			}
		}
	}
	if affine.At(0, 3) != 10 || affine.At(1, 3) != 20 || affine.At(2, 3) != 30 {
		t.Error("Translation column mismatch")
	}
	for j, want := range []float64{0, 0, 0, 1} {
		if affine.At(3, j) != want {
			t.Errorf("Bottom row at %d = %f, want %f", j, affine.At(3, j), want)
		}
	}

	if _, err := ToAffine(mat.NewDense(2, 2, nil), nil); err == nil {
		t.Error("Expected shape error for 2x2 linear part, got nil")
	}
	if _, err := ToAffine(linear, []float64{1, 2}); err == nil {
		t.Error("Expected shape error for length-2 translation, got nil")
	}
}

// TestFrameToWorldRoundTrip verifies that mapping a point into world space
// and back through the inverse recovers it.
func TestFrameToWorldRoundTrip(t *testing.T) {
	fw, err := FrameToWorld(TransducerAxes, "cm")
	if err != nil {
		t.Fatalf("FrameToWorld failed: %v", err)
	}
	inv, err := Invert(fw)
	if err != nil {
		t.Fatalf("Invert failed: %v", err)
	}
	p := [3]float64{1.5, -2.25, 3.125}
	world := ApplyToPoint(fw, p)
	back := ApplyToPoint(inv, world)
	for i := 0; i < 3; i++ {
		if math.Abs(back[i]-p[i]) > 1e-12 {
			t.Errorf("Round trip mismatch at %d: got %f, want %f", i, back[i], p[i])
		}
	}

	// LPS frame in cm: local (1,0,0) is 10mm to the anatomical left
	world = ApplyToPoint(fw, [3]float64{1, 0, 0})
	if world[0] != -10 || world[1] != 0 || world[2] != 0 {
		t.Errorf("LPS cm point mapped to %v, want (-10,0,0)", world)
	}
}

// TestWorldToIndex verifies that the inverse accounts for a parent placement
func TestWorldToIndex(t *testing.T) {
	// Voxels 2mm on a side, origin offset by (1,2,3)
	linear := mat.NewDense(3, 3, []float64{2, 0, 0, 0, 2, 0, 0, 0, 2})
	indexToAnatomical, err := ToAffine(linear, []float64{1, 2, 3})
	if err != nil {
		t.Fatalf("ToAffine failed: %v", err)
	}

	t.Run("without placement", func(t *testing.T) {
		w2i, err := WorldToIndex(indexToAnatomical, nil)
		if err != nil {
			t.Fatalf("WorldToIndex failed: %v", err)
		}
		idx := ApplyToPoint(w2i, [3]float64{5, 2, 3})
		want := [3]float64{2, 0, 0}
		for i := 0; i < 3; i++ {
			if math.Abs(idx[i]-want[i]) > 1e-12 {
				t.Errorf("Index %d = %f, want %f", i, idx[i], want[i])
			}
		}
	})

	t.Run("with placement", func(t *testing.T) {
		placement, err := ToAffine(eye3(), []float64{10, 0, 0})
		if err != nil {
			t.Fatalf("ToAffine failed: %v", err)
		}
		w2i, err := WorldToIndex(indexToAnatomical, placement)
		if err != nil {
			t.Fatalf("WorldToIndex failed: %v", err)
		}
		// World point (15,2,3) is local (5,2,3) after removing the shift
		idx := ApplyToPoint(w2i, [3]float64{15, 2, 3})
		want := [3]float64{2, 0, 0}
		for i := 0; i < 3; i++ {
			if math.Abs(idx[i]-want[i]) > 1e-12 {
				t.Errorf("Index %d = %f, want %f", i, idx[i], want[i])
			}
		}
	})

	t.Run("singular", func(t *testing.T) {
		singular := mat.NewDense(4, 4, nil)
		if _, err := WorldToIndex(singular, nil); err == nil {
			t.Error("Expected error for singular matrix, got nil")
		}
	})
}

func eye3() *mat.Dense {
	return mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// TestComposition verifies that Mul composes innermost-first as documented
func TestComposition(t *testing.T) {
	scale, _ := ToAffine(mat.NewDense(3, 3, []float64{2, 0, 0, 0, 2, 0, 0, 0, 2}), nil)
	shift, _ := ToAffine(eye3(), []float64{1, 0, 0})

	// shift(scale(p)): p=(1,0,0) -> (2,0,0) -> (3,0,0)
	composed := Mul(shift, scale)
	out := ApplyToPoint(composed, [3]float64{1, 0, 0})
	if out[0] != 3 {
		t.Errorf("Composed transform gave %f, want 3", out[0])
	}
}
