package models

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"lifuplan/pkg/frames"
)

// Transducer is the persisted definition of an ultrasound transducer: its
// identity, native geometry, and the unit convention that geometry is
// expressed in. The definition is immutable once loaded; the mutable
// placement lives on the loaded entity, not here.
type Transducer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Units string `json:"units"`

	// Mesh is the surface geometry in the transducer's local frame,
	// expressed in Units.
	Mesh *Mesh `json:"mesh,omitempty"`

	// Elements are the centers of the radiating elements in the local
	// frame, expressed in Units. Consumed by the beamforming boundary.
	Elements [][3]float64 `json:"elements,omitempty"`
}

// ConvertTransform reinterprets a placement matrix expressed with
// translations in fromUnits into the transducer's native unit convention.
// Placement matrices recovered from persisted sessions may be expressed in
// different units than the definition, so this runs before the frame
// embedding is applied. The linear part is unit-free and passes through;
// only the translation column is rescaled.
func (t *Transducer) ConvertTransform(matrix *mat.Dense, fromUnits string) (*mat.Dense, error) {
	if matrix == nil {
		matrix = frames.Identity4()
	}
	r, c := matrix.Dims()
	if r != 4 || c != 4 {
		return nil, fmt.Errorf("%w: placement must be 4x4, got %dx%d", frames.ErrShapeMismatch, r, c)
	}
	if fromUnits == "" {
		fromUnits = t.Units
	}
	from, err := frames.UnitScaleFactor(fromUnits)
	if err != nil {
		return nil, err
	}
	native, err := frames.UnitScaleFactor(t.Units)
	if err != nil {
		return nil, err
	}
	out := mat.DenseCopyOf(matrix)
	ratio := from / native
	for i := 0; i < 3; i++ {
		out.Set(i, 3, out.At(i, 3)*ratio)
	}
	return out, nil
}
