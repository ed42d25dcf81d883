// Package resample converts sampled scalar fields from one coordinate frame
// to another by trilinear interpolation over an affine composition.
//
// The caller supplies a single 4x4 affine mapping output indices to source
// indices; building that composition out of frame matrices is the business
// of pkg/frames and the planning layer. Array order follows the fixed
// (i,j,k) convention of models.ScalarField in both directions.
package resample

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"lifuplan/internal/models"
)

// Boundary selects how source positions outside the field are sampled.
type Boundary int

const (
	// ClampToEdge samples out-of-bounds positions at the nearest edge
	// voxel. This is the default policy across the pipeline: aggregated
	// simulation fields never wrap and are not silently zeroed.
	ClampToEdge Boundary = iota

	// ZeroFill treats everything outside the field as zero. Only used
	// when a caller explicitly requests padding semantics.
	ZeroFill
)

// Resample evaluates src at the positions obtained by mapping every output
// index through outToSrc, interpolating trilinearly between source samples.
// outToSrc must be a 4x4 affine taking output (i,j,k,1) to source index
// coordinates.
func Resample(src *models.ScalarField, outToSrc *mat.Dense, outShape [3]int, boundary Boundary) (*models.ScalarField, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	r, c := outToSrc.Dims()
	if r != 4 || c != 4 {
		return nil, fmt.Errorf("resample: affine must be 4x4, got %dx%d", r, c)
	}
	out := models.NewScalarField(outShape)
	for i := 0; i < outShape[0]; i++ {
		for j := 0; j < outShape[1]; j++ {
			for k := 0; k < outShape[2]; k++ {
				x := apply(outToSrc, float64(i), float64(j), float64(k))
				out.Set(i, j, k, sampleTrilinear(src, x, boundary))
			}
		}
	}
	return out, nil
}

// apply maps homogeneous index coordinates through the affine.
func apply(m *mat.Dense, i, j, k float64) [3]float64 {
	var out [3]float64
	for row := 0; row < 3; row++ {
		out[row] = m.At(row, 0)*i + m.At(row, 1)*j + m.At(row, 2)*k + m.At(row, 3)
	}
	return out
}

// sampleTrilinear interpolates src at a fractional index position.
func sampleTrilinear(src *models.ScalarField, pos [3]float64, boundary Boundary) float64 {
	i0 := int(math.Floor(pos[0]))
	j0 := int(math.Floor(pos[1]))
	k0 := int(math.Floor(pos[2]))
	fi := pos[0] - float64(i0)
	fj := pos[1] - float64(j0)
	fk := pos[2] - float64(k0)

	var acc float64
	for di := 0; di <= 1; di++ {
		for dj := 0; dj <= 1; dj++ {
			for dk := 0; dk <= 1; dk++ {
				w := weight(fi, di) * weight(fj, dj) * weight(fk, dk)
				if w == 0 {
					continue
				}
				acc += w * sampleAt(src, i0+di, j0+dj, k0+dk, boundary)
			}
		}
	}
	return acc
}

func weight(frac float64, side int) float64 {
	if side == 0 {
		return 1 - frac
	}
	return frac
}

// sampleAt reads a single voxel, applying the boundary policy for indices
// outside the field.
func sampleAt(src *models.ScalarField, i, j, k int, boundary Boundary) float64 {
	if i < 0 || j < 0 || k < 0 || i >= src.Shape[0] || j >= src.Shape[1] || k >= src.Shape[2] {
		switch boundary {
		case ZeroFill:
			return 0
		default:
			i = clamp(i, src.Shape[0])
			j = clamp(j, src.Shape[1])
			k = clamp(k, src.Shape[2])
		}
	}
	return src.At(i, j, k)
}

func clamp(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
