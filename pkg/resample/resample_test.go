package resample

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"lifuplan/internal/models"
	"lifuplan/pkg/frames"
)

// rampField fills a field with a distinct value per voxel
func rampField(shape [3]int) *models.ScalarField {
	f := models.NewScalarField(shape)
	for i := range f.Data {
		f.Data[i] = float64(i)
	}
	return f
}

// TestResampleIdentity verifies that an identity affine reproduces the source
func TestResampleIdentity(t *testing.T) {
	src := rampField([3]int{3, 4, 5})
	out, err := Resample(src, frames.Identity4(), src.Shape, ClampToEdge)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	for i, v := range out.Data {
		if math.Abs(v-src.Data[i]) > 1e-12 {
			t.Errorf("Sample %d = %f, want %f", i, v, src.Data[i])
		}
	}
}

// TestResampleHalfVoxelShift verifies trilinear interpolation at fractional
// source positions.
func TestResampleHalfVoxelShift(t *testing.T) {
	src := models.NewScalarField([3]int{1, 1, 4})
	copy(src.Data, []float64{0, 2, 4, 6})

	// Output k maps to source k+0.5
	shift, err := frames.ToAffine(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), []float64{0, 0, 0.5})
	if err != nil {
		t.Fatalf("ToAffine failed: %v", err)
	}
	out, err := Resample(src, shift, [3]int{1, 1, 3}, ClampToEdge)
	if err != nil {
		t.Fatalf("Resample failed: %v", err)
	}
	want := []float64{1, 3, 5}
	for k, w := range want {
		if math.Abs(out.At(0, 0, k)-w) > 1e-12 {
			t.Errorf("Sample k=%d = %f, want %f", k, out.At(0, 0, k), w)
		}
	}
}

// TestResampleBoundary verifies the two out-of-bounds policies
func TestResampleBoundary(t *testing.T) {
	src := models.NewScalarField([3]int{1, 1, 2})
	copy(src.Data, []float64{5, 7})

	// Output k maps to source k-2, entirely out of bounds for k in 0..1
	shift, err := frames.ToAffine(mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1}), []float64{0, 0, -2})
	if err != nil {
		t.Fatalf("ToAffine failed: %v", err)
	}

	t.Run("clamp to edge", func(t *testing.T) {
		out, err := Resample(src, shift, [3]int{1, 1, 2}, ClampToEdge)
		if err != nil {
			t.Fatalf("Resample failed: %v", err)
		}
		for k := 0; k < 2; k++ {
			if out.At(0, 0, k) != 5 {
				t.Errorf("Clamped sample k=%d = %f, want 5", k, out.At(0, 0, k))
			}
		}
	})

	t.Run("zero fill", func(t *testing.T) {
		out, err := Resample(src, shift, [3]int{1, 1, 2}, ZeroFill)
		if err != nil {
			t.Fatalf("Resample failed: %v", err)
		}
		for k := 0; k < 2; k++ {
			if out.At(0, 0, k) != 0 {
				t.Errorf("Zero-filled sample k=%d = %f, want 0", k, out.At(0, 0, k))
			}
		}
	})
}

// TestResampleRejectsBadInputs verifies validation of affine shape and field
// consistency.
func TestResampleRejectsBadInputs(t *testing.T) {
	src := rampField([3]int{2, 2, 2})
	if _, err := Resample(src, mat.NewDense(3, 3, nil), [3]int{2, 2, 2}, ClampToEdge); err == nil {
		t.Error("Expected error for non-4x4 affine, got nil")
	}

	broken := &models.ScalarField{Data: make([]float64, 3), Shape: [3]int{2, 2, 2}}
	if _, err := Resample(broken, frames.Identity4(), [3]int{2, 2, 2}, ClampToEdge); err == nil {
		t.Error("Expected error for inconsistent source field, got nil")
	}
}
