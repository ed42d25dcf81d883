// Package frames converts between the coordinate frames used throughout the
// planning pipeline: world anatomical space, transducer-local space, and
// volume/grid index spaces.
//
// World anatomical space is RAS (Right, Anterior, Superior) expressed in
// millimeters. Every other frame is described by an axis-label convention
// plus a physical length unit, and this package is the only place where
// those labels and units are decoded into matrices. Higher layers compose
// the affines produced here rather than reasoning about signs and axis
// orders themselves.
package frames

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Axis is one of the six recognized anatomical axis labels.
type Axis string

// The recognized axis labels. Each anatomical axis has two opposite labels.
const (
	Right     Axis = "R"
	Left      Axis = "L"
	Anterior  Axis = "A"
	Posterior Axis = "P"
	Superior  Axis = "S"
	Inferior  Axis = "I"
)

// TransducerAxes is the axis convention of transducer-local space.
// The transducer definitions in use describe their geometry in LPS.
var TransducerAxes = [3]Axis{Left, Posterior, Superior}

// RASAxes is the axis convention of world anatomical space itself.
var RASAxes = [3]Axis{Right, Anterior, Superior}

var (
	// ErrInvalidAxisLabel is returned when an axis label is not one of the
	// six recognized symbols.
	ErrInvalidAxisLabel = errors.New("invalid axis label")

	// ErrUnknownUnit is returned when a length unit name is not present in
	// the unit table.
	ErrUnknownUnit = errors.New("unknown length unit")

	// ErrShapeMismatch is returned when a matrix argument does not have the
	// required dimensions.
	ErrShapeMismatch = errors.New("matrix shape mismatch")

	// ErrSingular is returned when an affine that must be invertible is not.
	ErrSingular = errors.New("singular transform")
)

// directionsInRAS maps each axis label to its unit vector in RAS coordinates.
var directionsInRAS = map[Axis][3]float64{
	Right:     {1, 0, 0},
	Anterior:  {0, 1, 0},
	Superior:  {0, 0, 1},
	Left:      {-1, 0, 0},
	Posterior: {0, -1, 0},
	Inferior:  {0, 0, -1},
}

// unitsToMM is the length-unit table, resolved once at package init. Values
// are the factor converting one of the named unit to millimeters.
var unitsToMM = map[string]float64{
	"m":      1000,
	"meter":  1000,
	"cm":     10,
	"mm":     1,
	"um":     1e-3,
	"µm":     1e-3,
	"micron": 1e-3,
	"in":     25.4,
	"inches": 25.4,
}

// AxisFrameToAnatomical builds the 3x3 rotation/reflection matrix whose
// columns are the RAS unit vectors corresponding to each of the given axis
// labels. Column i of the result is the anatomical direction of axis i of
// the labeled frame.
func AxisFrameToAnatomical(labels [3]Axis) (*mat.Dense, error) {
	m := mat.NewDense(3, 3, nil)
	for col, label := range labels {
		dir, ok := directionsInRAS[label]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidAxisLabel, label)
		}
		for row := 0; row < 3; row++ {
			m.Set(row, col, dir[row])
		}
	}
	return m, nil
}

// UnitScaleFactor returns the ratio converting a length in the named unit to
// millimeters.
func UnitScaleFactor(unit string) (float64, error) {
	scale, ok := unitsToMM[unit]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
	return scale, nil
}

// ToAffine embeds a 3x3 linear map into a 4x4 homogeneous affine with the
// given translation. A nil translation means zero translation. The bottom
// row of the result is always (0,0,0,1).
func ToAffine(linear *mat.Dense, translation []float64) (*mat.Dense, error) {
	r, c := linear.Dims()
	if r != 3 || c != 3 {
		return nil, fmt.Errorf("%w: linear part must be 3x3, got %dx%d", ErrShapeMismatch, r, c)
	}
	if translation == nil {
		translation = []float64{0, 0, 0}
	}
	if len(translation) != 3 {
		return nil, fmt.Errorf("%w: translation must have length 3, got %d", ErrShapeMismatch, len(translation))
	}
	affine := mat.NewDense(4, 4, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			affine.Set(i, j, linear.At(i, j))
		}
		affine.Set(i, 3, translation[i])
	}
	affine.Set(3, 3, 1)
	return affine, nil
}

// FrameToWorld builds the affine mapping coordinates in the frame described
// by (labels, unit) into world anatomical millimeter space. This is the
// fundamental building block used whenever a labeled frame needs to be
// expressed in world space.
func FrameToWorld(labels [3]Axis, unit string) (*mat.Dense, error) {
	rot, err := AxisFrameToAnatomical(labels)
	if err != nil {
		return nil, err
	}
	scale, err := UnitScaleFactor(unit)
	if err != nil {
		return nil, err
	}
	rot.Scale(scale, rot)
	return ToAffine(rot, nil)
}

// WorldToIndex computes the affine mapping world anatomical coordinates to a
// volume's index space. indexToAnatomical is the volume's own index-to-
// anatomical matrix; parentPlacement, when non-nil, is an external placement
// transform the volume is subject to and is applied on top of it. The result
// reflects the live placement; nothing is cached.
func WorldToIndex(indexToAnatomical, parentPlacement *mat.Dense) (*mat.Dense, error) {
	indexToWorld := indexToAnatomical
	if parentPlacement != nil {
		indexToWorld = Mul(parentPlacement, indexToAnatomical)
	}
	return Invert(indexToWorld)
}

// Identity4 returns a new 4x4 identity affine.
func Identity4() *mat.Dense {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// Mul returns the matrix product a*b as a new matrix.
func Mul(a, b *mat.Dense) *mat.Dense {
	var out mat.Dense
	out.Mul(a, b)
	return &out
}

// Invert returns the inverse of a 4x4 affine.
func Invert(affine *mat.Dense) (*mat.Dense, error) {
	var inv mat.Dense
	if err := inv.Inverse(affine); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSingular, err)
	}
	return &inv, nil
}

// ApplyToPoint applies a 4x4 affine to a 3-D point, treating it as a
// homogeneous point with fourth coordinate 1.
func ApplyToPoint(affine *mat.Dense, p [3]float64) [3]float64 {
	var out [3]float64
	for i := 0; i < 3; i++ {
		out[i] = affine.At(i, 0)*p[0] + affine.At(i, 1)*p[1] + affine.At(i, 2)*p[2] + affine.At(i, 3)
	}
	return out
}

// ValidAxes reports whether labels form a legal frame: each label recognized
// and exactly one label per anatomical axis.
func ValidAxes(labels [3]Axis) bool {
	var seen [3]bool
	for _, label := range labels {
		dir, ok := directionsInRAS[label]
		if !ok {
			return false
		}
		for i, v := range dir {
			if v != 0 {
				if seen[i] {
					return false
				}
				seen[i] = true
			}
		}
	}
	return seen[0] && seen[1] && seen[2]
}
