package entities

import (
	"fmt"

	"lifuplan/internal/models"
	"lifuplan/pkg/frames"
	"lifuplan/pkg/scene"
)

// PointToNode creates a scene point node from a persisted point, converting
// its position into world anatomical millimeters. The node's name carries
// the point's identity and the node is locked against interactive edits, as
// loaded targets are repositioned through explicit operations only.
func PointToNode(sc *scene.Scene, point models.Point) (*scene.PointNode, error) {
	toRAS, err := frames.AxisFrameToAnatomical(point.Dims)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", point.ID, err)
	}
	scale, err := frames.UnitScaleFactor(point.Units)
	if err != nil {
		return nil, fmt.Errorf("target %q: %w", point.ID, err)
	}
	var pos [3]float64
	for i := 0; i < 3; i++ {
		pos[i] = scale * (toRAS.At(i, 0)*point.Position[0] +
			toRAS.At(i, 1)*point.Position[1] +
			toRAS.At(i, 2)*point.Position[2])
	}
	node := sc.AddPoint(point.ID, pos, point.Name, point.Color)
	node.Locked = true
	return node, nil
}

// NodeToPoint reads a scene point node back as a persisted point in world
// anatomical coordinates. This is roughly the inverse of PointToNode, except
// that the result is always expressed in (R,A,S) millimeters regardless of
// the frame the point was originally loaded from.
func NodeToPoint(node *scene.PointNode) models.Point {
	return models.Point{
		ID:       node.Name(),
		Name:     node.Label,
		Position: node.Position(),
		Dims:     frames.RASAxes,
		Units:    "mm",
		Color:    node.Color,
	}
}

// NodeToPointInTransducerCoords expresses a scene point in the local
// coordinates of the given transducer by applying the inverse of its
// placement. The result carries local dims and the transducer's native
// units, which is the form the planning boundary consumes.
func NodeToPointInTransducerCoords(node *scene.PointNode, t *Transducer, name string) (models.Point, error) {
	inv, err := frames.Invert(t.CurrentPlacement())
	if err != nil {
		return models.Point{}, fmt.Errorf("target %q: %w", node.Name(), err)
	}
	return models.Point{
		ID:       node.Name(),
		Name:     name,
		Position: frames.ApplyToPoint(inv, node.Position()),
		Dims:     models.LocalDims,
		Units:    t.Def.Units,
	}, nil
}
