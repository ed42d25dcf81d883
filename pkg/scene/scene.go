// Package scene is the boundary to the scene-graph host. It provides the
// artifact node types the planning core creates (meshes, placements,
// volumes, points) and an in-memory host implementation that dispatches
// change notifications synchronously, in the order raised, to registered
// handlers.
//
// The core never assumes exclusive control over artifact lifetime: any actor
// may remove a node, and the resulting event is how the rest of the system
// finds out. All mutation happens on a single control thread, so there is no
// locking here; correctness rests on the strict event ordering.
package scene

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"lifuplan/internal/models"
	"lifuplan/pkg/frames"
)

// Handle is the opaque storage identity of a scene node. It is distinct
// from any logical identity (such as a volume id) carried as a node
// attribute.
type Handle string

// Kind classifies scene nodes.
type Kind int

const (
	MeshKind Kind = iota
	PlacementKind
	VolumeKind
	PointKind
)

func (k Kind) String() string {
	switch k {
	case MeshKind:
		return "mesh"
	case PlacementKind:
		return "placement"
	case VolumeKind:
		return "volume"
	case PointKind:
		return "point"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// EventKind enumerates the domain events the host raises.
type EventKind int

const (
	// ArtifactRemoved fires when a mesh, placement, or volume node is
	// removed by any actor.
	ArtifactRemoved EventKind = iota
	PointAdded
	PointRemoved
	PointModified
	PlacementChanged
)

// Event is a single change notification.
type Event struct {
	Kind     EventKind
	NodeKind Kind
	Handle   Handle
	Name     string
}

// Handler receives events synchronously as they are raised.
type Handler func(Event)

// Node is the common interface of all scene nodes.
type Node interface {
	Handle() Handle
	Name() string
	Kind() Kind
}

type nodeBase struct {
	handle Handle
	name   string
	scene  *Scene
}

func (n *nodeBase) Handle() Handle { return n.handle }
func (n *nodeBase) Name() string   { return n.name }

// MeshNode is a rendered surface artifact.
type MeshNode struct {
	nodeBase
	Mesh      *models.Mesh
	transform *TransformNode
}

func (n *MeshNode) Kind() Kind { return MeshKind }

// ObserveTransform parents the mesh under a placement node so that it moves
// with it.
func (n *MeshNode) ObserveTransform(t *TransformNode) {
	n.transform = t
}

// Transform returns the placement node the mesh observes, or nil.
func (n *MeshNode) Transform() *TransformNode { return n.transform }

// TransformNode is a placement artifact holding a 4x4 affine.
type TransformNode struct {
	nodeBase
	matrix *mat.Dense
}

func (n *TransformNode) Kind() Kind { return PlacementKind }

// Matrix returns a copy of the placement matrix.
func (n *TransformNode) Matrix() *mat.Dense {
	return mat.DenseCopyOf(n.matrix)
}

// SetMatrix replaces the placement matrix and raises PlacementChanged.
func (n *TransformNode) SetMatrix(m *mat.Dense) {
	n.matrix = mat.DenseCopyOf(m)
	n.scene.dispatch(Event{Kind: PlacementChanged, NodeKind: PlacementKind, Handle: n.handle, Name: n.name})
}

// VolumeNode is a scalar volume artifact. VolumeID is the logical identity
// used by sessions; the node handle is the scene's storage identity.
type VolumeNode struct {
	nodeBase
	VolumeID          string
	Field             *models.ScalarField
	indexToAnatomical *mat.Dense
	parent            *TransformNode
}

func (n *VolumeNode) Kind() Kind { return VolumeKind }

// IndexToAnatomical returns a copy of the volume's own index-to-anatomical
// affine, not including any parent placement.
func (n *VolumeNode) IndexToAnatomical() *mat.Dense {
	return mat.DenseCopyOf(n.indexToAnatomical)
}

// SetParentTransform subjects the volume to an external placement.
func (n *VolumeNode) SetParentTransform(t *TransformNode) {
	n.parent = t
}

// ParentTransform returns the placement the volume is subject to, or nil.
func (n *VolumeNode) ParentTransform() *TransformNode { return n.parent }

// WorldToIndex returns the live affine mapping world anatomical coordinates
// into this volume's index space, accounting for any parent placement.
func (n *VolumeNode) WorldToIndex() (*mat.Dense, error) {
	var placement *mat.Dense
	if n.parent != nil {
		placement = n.parent.Matrix()
	}
	return frames.WorldToIndex(n.indexToAnatomical, placement)
}

// PointNode is a single labeled, colored point artifact. Its Name doubles as
// the point's identity within a session.
type PointNode struct {
	nodeBase
	position [3]float64
	Label    string
	Color    [3]float64
	Locked   bool
}

func (n *PointNode) Kind() Kind { return PointKind }

// Position returns the point position in world anatomical millimeters.
func (n *PointNode) Position() [3]float64 { return n.position }

// SetPosition moves the point and raises PointModified.
func (n *PointNode) SetPosition(p [3]float64) {
	n.position = p
	n.scene.dispatch(Event{Kind: PointModified, NodeKind: PointKind, Handle: n.handle, Name: n.name})
}

// Scene is the in-memory scene-graph host.
type Scene struct {
	nodes    map[Handle]Node
	order    []Handle
	names    map[string]int
	handlers []Handler
	seq      int
}

// New creates an empty scene.
func New() *Scene {
	return &Scene{
		nodes: make(map[Handle]Node),
		names: make(map[string]int),
	}
}

// Subscribe registers a handler for all subsequently raised events.
func (s *Scene) Subscribe(h Handler) {
	s.handlers = append(s.handlers, h)
}

func (s *Scene) dispatch(ev Event) {
	for _, h := range s.handlers {
		h(ev)
	}
}

func (s *Scene) nextHandle() Handle {
	s.seq++
	return Handle(fmt.Sprintf("node_%04d", s.seq))
}

// GenerateUniqueName returns base, or base_N for the smallest N making the
// name unused.
func (s *Scene) GenerateUniqueName(base string) string {
	n, taken := s.names[base]
	if !taken {
		s.names[base] = 1
		return base
	}
	name := fmt.Sprintf("%s_%d", base, n)
	s.names[base] = n + 1
	return name
}

func (s *Scene) add(n Node) {
	s.nodes[n.Handle()] = n
	s.order = append(s.order, n.Handle())
}

// AddMesh creates a mesh node.
func (s *Scene) AddMesh(name string, mesh *models.Mesh) *MeshNode {
	n := &MeshNode{nodeBase: nodeBase{handle: s.nextHandle(), name: s.GenerateUniqueName(name), scene: s}, Mesh: mesh}
	s.add(n)
	return n
}

// AddTransform creates a placement node. A nil matrix means identity.
func (s *Scene) AddTransform(name string, matrix *mat.Dense) *TransformNode {
	if matrix == nil {
		matrix = frames.Identity4()
	}
	n := &TransformNode{nodeBase: nodeBase{handle: s.nextHandle(), name: s.GenerateUniqueName(name), scene: s}, matrix: mat.DenseCopyOf(matrix)}
	s.add(n)
	return n
}

// AddVolume creates a volume node with the given logical id and
// index-to-anatomical affine.
func (s *Scene) AddVolume(name, volumeID string, field *models.ScalarField, indexToAnatomical *mat.Dense) *VolumeNode {
	n := &VolumeNode{
		nodeBase:          nodeBase{handle: s.nextHandle(), name: s.GenerateUniqueName(name), scene: s},
		VolumeID:          volumeID,
		Field:             field,
		indexToAnatomical: mat.DenseCopyOf(indexToAnatomical),
	}
	s.add(n)
	return n
}

// AddPoint creates a point node and raises PointAdded. The name is the
// point's identity.
func (s *Scene) AddPoint(name string, position [3]float64, label string, color [3]float64) *PointNode {
	n := &PointNode{
		nodeBase: nodeBase{handle: s.nextHandle(), name: s.GenerateUniqueName(name), scene: s},
		position: position,
		Label:    label,
		Color:    color,
	}
	s.add(n)
	s.dispatch(Event{Kind: PointAdded, NodeKind: PointKind, Handle: n.Handle(), Name: n.Name()})
	return n
}

// Node looks up a node by handle.
func (s *Scene) Node(h Handle) (Node, bool) {
	n, ok := s.nodes[h]
	return n, ok
}

// Has reports whether a node with the given handle is present.
func (s *Scene) Has(h Handle) bool {
	_, ok := s.nodes[h]
	return ok
}

// Remove deletes a node and raises the corresponding removal event. The node
// is gone from the scene before handlers observe the event. Removing an
// unknown handle is a no-op returning false.
func (s *Scene) Remove(h Handle) bool {
	n, ok := s.nodes[h]
	if !ok {
		return false
	}
	delete(s.nodes, h)
	for i, other := range s.order {
		if other == h {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	kind := ArtifactRemoved
	if n.Kind() == PointKind {
		kind = PointRemoved
	}
	s.dispatch(Event{Kind: kind, NodeKind: n.Kind(), Handle: h, Name: n.Name()})
	return true
}

// Len returns the number of nodes in the scene.
func (s *Scene) Len() int { return len(s.nodes) }
