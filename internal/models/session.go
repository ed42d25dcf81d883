package models

import (
	"gonum.org/v1/gonum/mat"

	"lifuplan/pkg/frames"
)

// ArrayTransform is a transducer placement as persisted in a session: a
// row-major 4x4 matrix together with the units its translations are
// expressed in.
type ArrayTransform struct {
	Matrix [16]float64 `json:"matrix"`
	Units  string      `json:"units"`
}

// Dense returns the matrix as a 4x4 dense matrix.
func (a *ArrayTransform) Dense() *mat.Dense {
	return mat.NewDense(4, 4, a.Matrix[:])
}

// ArrayTransformFromDense captures a 4x4 dense matrix into the persisted
// form. The matrix must be 4x4.
func ArrayTransformFromDense(m *mat.Dense, units string) ArrayTransform {
	var out ArrayTransform
	out.Units = units
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out.Matrix[i*4+j] = m.At(i, j)
		}
	}
	return out
}

// IdentityArrayTransform returns an identity placement in the given units.
func IdentityArrayTransform(units string) ArrayTransform {
	return ArrayTransformFromDense(frames.Identity4(), units)
}

// Subject is a persisted study subject.
type Subject struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Session is the persisted definition of a treatment session. All
// cross-references are by string id, resolved through the registry; the
// session does not own the referenced objects.
type Session struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	SubjectID    string  `json:"subject_id"`
	ProtocolID   string  `json:"protocol_id"`
	TransducerID string  `json:"transducer_id"`
	VolumeID     string  `json:"volume_id"`
	Targets      []Point `json:"targets"`

	// ArrayTransform is the transducer placement recorded with the
	// session, expressed in the transducer's native frame and the stated
	// units (not in world anatomical space).
	ArrayTransform ArrayTransform `json:"array_transform"`

	// VirtualFitApprovalForTargetID marks the single target, if any, whose
	// virtual fit has been approved. At most one target may be approved.
	VirtualFitApprovalForTargetID *string `json:"virtual_fit_approval_for_target_id"`

	// TransducerTrackingApproved records whether the transducer's physical
	// pose has been confirmed to match its recorded placement.
	TransducerTrackingApproved bool `json:"transducer_tracking_approved"`
}
