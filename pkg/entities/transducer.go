// Package entities holds the loaded domain objects: definitions from the
// database joined with the scene artifacts that represent them. Entities
// reference each other by string id resolved through the registry; the only
// mutable geometric state in the model is a transducer's placement.
package entities

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"lifuplan/internal/models"
	"lifuplan/pkg/frames"
	"lifuplan/pkg/scene"
)

// Transducer is a transducer definition that has been loaded into the scene:
// it owns a mesh artifact and a placement artifact. The definition is
// immutable; the placement may be changed at any time by interactive
// repositioning.
type Transducer struct {
	Def           *models.Transducer
	MeshNode      *scene.MeshNode
	PlacementNode *scene.TransformNode

	sc *scene.Scene
}

// LoadTransducer creates the scene artifacts for a definition and places
// them.
//
// The placement pipeline, innermost frame first: matrix (expressed in
// matrixUnits, defaulting to the definition's native units) is reinterpreted
// into native units by the definition, then embedded into world anatomical
// space by the transducer frame-to-world affine. A nil matrix means identity
// placement.
func LoadTransducer(sc *scene.Scene, def *models.Transducer, matrix *mat.Dense, matrixUnits string) (*Transducer, error) {
	frameToWorld, err := frames.FrameToWorld(frames.TransducerAxes, def.Units)
	if err != nil {
		return nil, fmt.Errorf("transducer %q: %w", def.ID, err)
	}
	native, err := def.ConvertTransform(matrix, matrixUnits)
	if err != nil {
		return nil, fmt.Errorf("transducer %q: %w", def.ID, err)
	}
	placement := frames.Mul(frameToWorld, native)

	meshNode := sc.AddMesh(def.ID, def.Mesh)
	placementNode := sc.AddTransform(def.ID+"-matrix", placement)
	meshNode.ObserveTransform(placementNode)

	return &Transducer{
		Def:           def,
		MeshNode:      meshNode,
		PlacementNode: placementNode,
		sc:            sc,
	}, nil
}

// ID returns the transducer's identity.
func (t *Transducer) ID() string { return t.Def.ID }

// CurrentPlacement returns the live placement affine into world anatomical
// space.
func (t *Transducer) CurrentPlacement() *mat.Dense {
	return t.PlacementNode.Matrix()
}

// SetPlacement replaces the placement affine. The scene raises
// PlacementChanged, which drives the approval-revocation cascade.
func (t *Transducer) SetPlacement(m *mat.Dense) {
	t.PlacementNode.SetMatrix(m)
}

// NativePlacement is the save-path inverse of LoadTransducer's frame
// embedding: the current placement expressed back in the transducer's native
// frame and units, suitable for persisting in a session's array_transform.
func (t *Transducer) NativePlacement() (*mat.Dense, error) {
	frameToWorld, err := frames.FrameToWorld(frames.TransducerAxes, t.Def.Units)
	if err != nil {
		return nil, err
	}
	worldToFrame, err := frames.Invert(frameToWorld)
	if err != nil {
		return nil, err
	}
	return frames.Mul(worldToFrame, t.CurrentPlacement()), nil
}

// OwnsArtifact reports whether the given scene handle is one of this
// transducer's artifacts, and which one.
func (t *Transducer) OwnsArtifact(h scene.Handle) (scene.Kind, bool) {
	switch h {
	case t.MeshNode.Handle():
		return scene.MeshKind, true
	case t.PlacementNode.Handle():
		return scene.PlacementKind, true
	default:
		return 0, false
	}
}

// Release signals the scene host to destroy the owned artifacts. Call
// exactly once, when unloading or replacing the transducer.
func (t *Transducer) Release() {
	t.sc.Remove(t.MeshNode.Handle())
	t.sc.Remove(t.PlacementNode.Handle())
}
