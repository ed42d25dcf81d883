// Package models holds the plain value types shared across the planning
// pipeline, together with their hand-written JSON forms used at the
// persistence boundary. The field set of every persisted type is fixed and
// known at compile time, so serialization is ordinary struct tags with no
// reflection framework beyond encoding/json.
package models

import "fmt"

// ScalarField is a sampled scalar 3-D field stored as a flat array.
//
// The array order is fixed across the whole pipeline: index (i,j,k) lives at
// Data[(i*Shape[1]+j)*Shape[2]+k], i.e. row-major with k varying fastest.
// Both the forward (field to array) and inverse (array to field) conversions
// use this order; mixing orders silently produces transposed results.
type ScalarField struct {
	Data  []float64 `json:"data"`
	Shape [3]int    `json:"shape"`
}

// NewScalarField allocates a zero-filled field with the given shape.
func NewScalarField(shape [3]int) *ScalarField {
	return &ScalarField{
		Data:  make([]float64, shape[0]*shape[1]*shape[2]),
		Shape: shape,
	}
}

// At returns the sample at index (i,j,k). Indices must be in range.
func (f *ScalarField) At(i, j, k int) float64 {
	return f.Data[(i*f.Shape[1]+j)*f.Shape[2]+k]
}

// Set stores a sample at index (i,j,k). Indices must be in range.
func (f *ScalarField) Set(i, j, k int, v float64) {
	f.Data[(i*f.Shape[1]+j)*f.Shape[2]+k] = v
}

// Len returns the total number of samples.
func (f *ScalarField) Len() int {
	return len(f.Data)
}

// Validate checks that the data length matches the shape.
func (f *ScalarField) Validate() error {
	want := f.Shape[0] * f.Shape[1] * f.Shape[2]
	if len(f.Data) != want {
		return fmt.Errorf("scalar field has %d samples, shape %v wants %d", len(f.Data), f.Shape, want)
	}
	return nil
}

// Clone returns a deep copy of the field.
func (f *ScalarField) Clone() *ScalarField {
	out := NewScalarField(f.Shape)
	copy(out.Data, f.Data)
	return out
}

// Mesh is a triangulated surface, used for transducer geometry. Vertices are
// expressed in the owning object's local frame and units; the scene host is
// responsible for rendering.
type Mesh struct {
	Vertices  [][3]float64 `json:"vertices"`
	Triangles [][3]int     `json:"triangles"`
}
