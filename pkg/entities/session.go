package entities

import (
	"fmt"

	"lifuplan/internal/models"
	"lifuplan/pkg/scene"
)

// SessionState tracks where a session is in its lifecycle.
type SessionState int

const (
	SessionUnloaded SessionState = iota
	SessionLoading
	SessionActive
	SessionInvalidated
)

// Lookup answers whether objects a session depends on are currently loaded.
// The registry implements it; sessions never hold direct references to other
// loaded entities.
type Lookup interface {
	HasTransducer(id string) bool
	HasProtocol(id string) bool
}

// Session is a persisted session that has been loaded: it owns the volume
// node and target point nodes created when it was loaded. Ownership here
// means the session decides when they are cleared; other actors may still
// remove them externally, which invalidates the session.
type Session struct {
	Def         *models.Session
	VolumeNode  *scene.VolumeNode
	TargetNodes []*scene.PointNode
	State       SessionState

	// LastSolutionID remembers the most recent solution generated for
	// this session so it can be cleaned up when the session unloads.
	LastSolutionID string

	sc *scene.Scene
}

// NewSession assembles a loaded session from its definition and an already
// loaded volume node, creating the target point nodes. On any failure the
// partially created targets are removed, leaving the scene as it was.
func NewSession(sc *scene.Scene, def *models.Session, volumeNode *scene.VolumeNode) (*Session, error) {
	s := &Session{Def: def, VolumeNode: volumeNode, State: SessionLoading, sc: sc}
	for _, target := range def.Targets {
		node, err := PointToNode(sc, target)
		if err != nil {
			for _, created := range s.TargetNodes {
				sc.Remove(created.Handle())
			}
			return nil, fmt.Errorf("session %q: %w", def.ID, err)
		}
		s.TargetNodes = append(s.TargetNodes, node)
	}
	s.State = SessionActive
	return s, nil
}

// ID returns the session identity.
func (s *Session) ID() string { return s.Def.ID }

// SubjectID returns the subject this session belongs to.
func (s *Session) SubjectID() string { return s.Def.SubjectID }

// TransducerID returns the id of the transducer the session references.
func (s *Session) TransducerID() string { return s.Def.TransducerID }

// ProtocolID returns the id of the protocol the session references.
func (s *Session) ProtocolID() string { return s.Def.ProtocolID }

// VolumeID returns the logical volume identity the session references.
func (s *Session) VolumeID() string { return s.Def.VolumeID }

// TransducerIsValid reports whether the referenced transducer is loaded.
func (s *Session) TransducerIsValid(lookup Lookup) bool {
	return lookup.HasTransducer(s.TransducerID())
}

// ProtocolIsValid reports whether the referenced protocol is loaded.
func (s *Session) ProtocolIsValid(lookup Lookup) bool {
	return lookup.HasProtocol(s.ProtocolID())
}

// VolumeIsValid reports whether the session's volume artifact is still
// present in the scene.
func (s *Session) VolumeIsValid() bool {
	return s.VolumeNode != nil && s.sc.Has(s.VolumeNode.Handle())
}

// IsValid reports whether all of the session's dependencies are present:
// transducer, protocol, and volume. Pure query; mutates nothing.
func (s *Session) IsValid(lookup Lookup) bool {
	return s.State == SessionActive &&
		s.TransducerIsValid(lookup) &&
		s.ProtocolIsValid(lookup) &&
		s.VolumeIsValid()
}

// ApproveVirtualFit sets the single virtual-fit approval marker to the given
// target id, or clears any existing approval when targetID is nil. Approvals
// are orthogonal to validity; revocation on geometry changes is driven by
// the registry's cascade.
func (s *Session) ApproveVirtualFit(targetID *string) {
	s.Def.VirtualFitApprovalForTargetID = targetID
}

// VirtualFitApprovedFor reports whether the virtual fit is approved for the
// given target id.
func (s *Session) VirtualFitApprovedFor(targetID string) bool {
	return s.Def.VirtualFitApprovalForTargetID != nil &&
		*s.Def.VirtualFitApprovalForTargetID == targetID
}

// ToggleTrackingApproval flips the transducer-tracking approval flag.
func (s *Session) ToggleTrackingApproval() {
	s.Def.TransducerTrackingApproved = !s.Def.TransducerTrackingApproved
}

// TrackingApproved reports the transducer-tracking approval flag.
func (s *Session) TrackingApproved() bool {
	return s.Def.TransducerTrackingApproved
}

// SyncFromScene updates the underlying definition from live scene state
// before persistence: the target list is replaced with the given nodes read
// back as world points, and the transducer placement is re-expressed in the
// transducer's native frame and units. This is the save-path inverse of the
// load-time transform.
func (s *Session) SyncFromScene(targets []*scene.PointNode, transducer *Transducer) (*models.Session, error) {
	s.TargetNodes = targets
	s.Def.Targets = s.Def.Targets[:0]
	for _, node := range targets {
		s.Def.Targets = append(s.Def.Targets, NodeToPoint(node))
	}
	native, err := transducer.NativePlacement()
	if err != nil {
		return nil, fmt.Errorf("session %q: %w", s.Def.ID, err)
	}
	s.Def.ArrayTransform = models.ArrayTransformFromDense(native, transducer.Def.Units)
	return s.Def, nil
}

// OwnsTarget returns the owned target node with the given scene handle.
func (s *Session) OwnsTarget(h scene.Handle) (*scene.PointNode, bool) {
	for _, node := range s.TargetNodes {
		if node.Handle() == h {
			return node, true
		}
	}
	return nil, false
}

// ClearNodes removes the session's owned volume and target artifacts from
// the scene. Callers that instead want to orphan the artifacts, leaving them
// present but unmanaged, simply skip this call.
func (s *Session) ClearNodes() {
	if s.VolumeNode != nil {
		s.sc.Remove(s.VolumeNode.Handle())
	}
	for _, node := range s.TargetNodes {
		s.sc.Remove(node.Handle())
	}
}
