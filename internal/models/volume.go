package models

import (
	"gonum.org/v1/gonum/mat"
)

// Volume is the on-disk form of a scalar volume: the sampled field plus its
// index-to-anatomical affine. The ID is the logical volume identity used by
// sessions, which is distinct from whatever storage handle the scene host
// assigns when the volume is loaded, so a volume can be reloaded under the
// same logical id while the underlying handle changes.
type Volume struct {
	ID    string      `json:"id"`
	Name  string      `json:"name"`
	Field ScalarField `json:"field"`

	// IndexToAnatomical is the row-major 4x4 affine mapping volume indices
	// to anatomical millimeter coordinates.
	IndexToAnatomical [16]float64 `json:"index_to_anatomical"`
}

// IndexToAnatomicalDense returns the index-to-anatomical affine as a dense
// matrix.
func (v *Volume) IndexToAnatomicalDense() *mat.Dense {
	return mat.NewDense(4, 4, v.IndexToAnatomical[:])
}
