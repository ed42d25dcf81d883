// Package registry is the single authoritative mapping from logical id to
// loaded entity: transducers, protocols, and the at-most-one active session,
// plan, solution, and run.
//
// All mutation happens on one control thread in response to discrete events,
// so there is no locking. The load-bearing discipline is detach-then-release:
// an entity leaves the registry before its scene artifacts are destroyed, so
// the removal notifications that re-enter the registry never observe
// half-updated state. Detachment is a separate step structurally, not a
// call-order convention.
package registry

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"

	"lifuplan/internal/models"
	"lifuplan/pkg/database"
	"lifuplan/pkg/entities"
	"lifuplan/pkg/frames"
	"lifuplan/pkg/scene"
)

var (
	// ErrConfirmationRequired signals an id collision that needs an
	// explicit yes/no decision from the caller. It is a condition, not a
	// failure: retry with the confirmation flag set to proceed.
	ErrConfirmationRequired = errors.New("confirmation required to replace loaded object")

	// ErrInUseBySession is returned when a load would replace the
	// transducer owned by the active session. The refusal is
	// unconditional; no confirmation can override it.
	ErrInUseBySession = errors.New("transducer is in use by the active session")

	// ErrNotLoaded is returned when removing an object that is not
	// loaded. No state is mutated.
	ErrNotLoaded = errors.New("object is not loaded")

	// ErrDuplicateArtifact indicates two transducers claimed the same
	// scene artifact, which must never happen.
	ErrDuplicateArtifact = errors.New("artifact handle owned by multiple transducers")

	// ErrNoSolution is returned when recording a run without an active
	// approved solution.
	ErrNoSolution = errors.New("no approved active solution")

	// ErrNoDatabase is returned by operations that need the persistence
	// boundary when the registry was built without one.
	ErrNoDatabase = errors.New("no database attached")
)

// Notifier receives the mandatory user-visible notifications raised by
// invalidation and approval-revocation events.
type Notifier interface {
	Notify(title, message string)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(title, message string)

// Notify calls the wrapped function.
func (f NotifierFunc) Notify(title, message string) { f(title, message) }

// Registry holds everything currently loaded. It owns the loaded entities;
// every other reference in the system is a non-owning lookup by id.
type Registry struct {
	sc       *scene.Scene
	db       *database.Database
	notifier Notifier

	protocols   map[string]*models.Protocol
	transducers map[string]*entities.Transducer

	session  *entities.Session
	plan     *entities.Plan
	solution *models.Solution
	lastRun  *models.Run

	// OrphanArtifactsOnInvalidate selects the cleanup scope when a
	// session is invalidated: orphan the session's scene artifacts
	// (leave them present but unmanaged) instead of releasing them.
	OrphanArtifactsOnInvalidate bool
}

// New builds a registry bound to a scene and an optional database, and
// subscribes it to the scene's event stream. db may be nil for callers that
// do not persist; notifier may be nil to drop notifications.
func New(sc *scene.Scene, db *database.Database, notifier Notifier) *Registry {
	r := &Registry{
		sc:          sc,
		db:          db,
		notifier:    notifier,
		protocols:   make(map[string]*models.Protocol),
		transducers: make(map[string]*entities.Transducer),
	}
	sc.Subscribe(func(ev scene.Event) {
		if err := r.HandleEvent(ev); err != nil {
			r.notify("Scene event error", err.Error())
		}
	})
	return r
}

func (r *Registry) notify(title, message string) {
	if r.notifier != nil {
		r.notifier.Notify(title, message)
	}
}

// HasTransducer reports whether a transducer with the given id is loaded.
func (r *Registry) HasTransducer(id string) bool {
	_, ok := r.transducers[id]
	return ok
}

// HasProtocol reports whether a protocol with the given id is loaded.
func (r *Registry) HasProtocol(id string) bool {
	_, ok := r.protocols[id]
	return ok
}

// Transducer returns a loaded transducer by id.
func (r *Registry) Transducer(id string) (*entities.Transducer, bool) {
	t, ok := r.transducers[id]
	return t, ok
}

// Protocol returns a loaded protocol by id.
func (r *Registry) Protocol(id string) (*models.Protocol, bool) {
	p, ok := r.protocols[id]
	return p, ok
}

// ActiveSession returns the active session, or nil.
func (r *Registry) ActiveSession() *entities.Session { return r.session }

// ActivePlan returns the active plan, or nil.
func (r *Registry) ActivePlan() *entities.Plan { return r.plan }

// ActiveSolution returns the active solution, or nil.
func (r *Registry) ActiveSolution() *models.Solution { return r.solution }

// LastRun returns the most recently recorded run, or nil.
func (r *Registry) LastRun() *models.Run { return r.lastRun }

// LoadProtocol registers a protocol definition. An id collision requires
// explicit confirmation before the loaded protocol is replaced.
func (r *Registry) LoadProtocol(p *models.Protocol, replaceConfirmed bool) error {
	if _, exists := r.protocols[p.ID]; exists && !replaceConfirmed {
		return fmt.Errorf("%w: protocol %q", ErrConfirmationRequired, p.ID)
	}
	r.protocols[p.ID] = p
	return nil
}

// RemoveProtocol unregisters a protocol and re-validates the active session,
// which is invalidated if it referenced the protocol.
func (r *Registry) RemoveProtocol(id string) error {
	if _, ok := r.protocols[id]; !ok {
		return fmt.Errorf("%w: protocol %q", ErrNotLoaded, id)
	}
	delete(r.protocols, id)
	r.ValidateActiveSession()
	return nil
}

// LoadTransducer loads a transducer definition with an optional initial
// placement, interpreted in matrixUnits (the definition's native units when
// empty). A nil matrix means identity placement.
//
// If the id collides with the transducer owned by the active session the
// load is refused outright. Any other collision requires confirmation; on
// replace, the old entity is detached and its artifacts released before the
// new ones are constructed.
func (r *Registry) LoadTransducer(def *models.Transducer, matrix *mat.Dense, matrixUnits string, replaceConfirmed bool) (*entities.Transducer, error) {
	if r.session != nil && r.session.TransducerID() == def.ID {
		return nil, fmt.Errorf("%w: %q", ErrInUseBySession, def.ID)
	}
	if _, exists := r.transducers[def.ID]; exists {
		if !replaceConfirmed {
			return nil, fmt.Errorf("%w: transducer %q", ErrConfirmationRequired, def.ID)
		}
		old, _ := r.detachTransducer(def.ID)
		old.Release()
	}
	t, err := entities.LoadTransducer(r.sc, def, matrix, matrixUnits)
	if err != nil {
		return nil, err
	}
	r.transducers[def.ID] = t
	return t, nil
}

// detachTransducer removes the id from the registry and hands the entity
// back. Artifact release, if any, happens only on the returned value, after
// the registry has already forgotten the id.
func (r *Registry) detachTransducer(id string) (*entities.Transducer, bool) {
	t, ok := r.transducers[id]
	if !ok {
		return nil, false
	}
	delete(r.transducers, id)
	return t, true
}

// RemoveTransducer unloads a transducer. With releaseArtifacts the owned
// scene artifacts are destroyed; otherwise they are orphaned. The active
// session is re-validated afterwards.
func (r *Registry) RemoveTransducer(id string, releaseArtifacts bool) error {
	t, ok := r.detachTransducer(id)
	if !ok {
		return fmt.Errorf("%w: transducer %q", ErrNotLoaded, id)
	}
	if releaseArtifacts {
		t.Release()
	}
	r.ValidateActiveSession()
	return nil
}

// LoadSession loads a persisted session: its volume, its target points, and
// its transducer, replacing any previously active session. Loading fails
// atomically, before any scene mutation, if the session's volume file cannot
// be uniquely resolved or any referenced definition is missing. A collision
// with an already loaded transducer id requires confirmation.
func (r *Registry) LoadSession(subjectID, sessionID string, replaceConfirmed bool) (*entities.Session, error) {
	if r.db == nil {
		return nil, ErrNoDatabase
	}
	def, err := r.db.LoadSession(subjectID, sessionID)
	if err != nil {
		return nil, err
	}
	if _, exists := r.transducers[def.TransducerID]; exists && !replaceConfirmed {
		return nil, fmt.Errorf("%w: transducer %q", ErrConfirmationRequired, def.TransducerID)
	}
	tdef, err := r.db.LoadTransducer(def.TransducerID)
	if err != nil {
		return nil, err
	}
	volPath, err := r.db.ResolveVolumeFile(subjectID, def.VolumeID)
	if err != nil {
		return nil, err
	}
	volume, err := r.db.LoadVolume(volPath)
	if err != nil {
		return nil, err
	}
	if err := validateSessionDef(def, tdef); err != nil {
		return nil, err
	}

	// Fallible resolution is done; from here the previous session goes
	// away and the new artifacts are constructed.
	r.ClearSession(true)

	if _, exists := r.transducers[tdef.ID]; exists {
		old, _ := r.detachTransducer(tdef.ID)
		old.Release()
	}

	name := volume.Name
	if name == "" {
		name = volume.ID
	}
	volumeNode := r.sc.AddVolume(name, volume.ID, &volume.Field, volume.IndexToAnatomicalDense())

	placement := def.ArrayTransform.Dense()
	transducer, err := entities.LoadTransducer(r.sc, tdef, placement, def.ArrayTransform.Units)
	if err != nil {
		r.sc.Remove(volumeNode.Handle())
		return nil, err
	}

	session, err := entities.NewSession(r.sc, def, volumeNode)
	if err != nil {
		r.sc.Remove(volumeNode.Handle())
		transducer.Release()
		return nil, err
	}
	r.transducers[tdef.ID] = transducer
	r.session = session
	return session, nil
}

// validateSessionDef checks every unit and axis convention a session load
// will decode, so that construction cannot fail after the previous session
// has already been cleared.
func validateSessionDef(def *models.Session, tdef *models.Transducer) error {
	if _, err := frames.UnitScaleFactor(tdef.Units); err != nil {
		return fmt.Errorf("session %q: transducer %q: %w", def.ID, tdef.ID, err)
	}
	if def.ArrayTransform.Units != "" {
		if _, err := frames.UnitScaleFactor(def.ArrayTransform.Units); err != nil {
			return fmt.Errorf("session %q: placement: %w", def.ID, err)
		}
	}
	for _, target := range def.Targets {
		if _, err := frames.AxisFrameToAnatomical(target.Dims); err != nil {
			return fmt.Errorf("session %q: target %q: %w", def.ID, target.ID, err)
		}
		if _, err := frames.UnitScaleFactor(target.Units); err != nil {
			return fmt.Errorf("session %q: target %q: %w", def.ID, target.ID, err)
		}
	}
	return nil
}

// ClearSession unloads the active session, if any. With releaseArtifacts the
// session's volume and target artifacts are destroyed along with its
// transducer's; otherwise everything is detached from session ownership and
// left in the scene unmanaged. A solution generated for the session stops
// being active either way.
func (r *Registry) ClearSession(releaseArtifacts bool) {
	s := r.session
	if s == nil {
		return
	}
	r.session = nil

	if r.plan != nil {
		r.plan.Release()
		r.plan = nil
	}
	if r.solution != nil && s.LastSolutionID == r.solution.ID {
		r.solution = nil
	}
	if releaseArtifacts {
		s.ClearNodes()
	}
	if s.State != entities.SessionInvalidated {
		s.State = entities.SessionUnloaded
	}
	if _, ok := r.transducers[s.TransducerID()]; ok {
		// Error impossible: presence was just checked.
		_ = r.RemoveTransducer(s.TransducerID(), releaseArtifacts)
	}
}

// ValidateActiveSession invalidates and clears the active session when any
// of its dependencies (transducer, protocol, volume) is gone. Invalidation
// is a recoverable state transition, not an error, but it always surfaces a
// notification. The cleanup scope follows OrphanArtifactsOnInvalidate.
func (r *Registry) ValidateActiveSession() {
	if r.session == nil || r.session.IsValid(r) {
		return
	}
	s := r.session
	s.State = entities.SessionInvalidated
	r.notify("Session invalidated",
		fmt.Sprintf("session %q lost a required transducer, protocol, or volume and has been unloaded", s.ID()))
	r.ClearSession(!r.OrphanArtifactsOnInvalidate)
}

// SaveSession syncs the active session from the scene and persists it.
func (r *Registry) SaveSession() error {
	if r.db == nil {
		return ErrNoDatabase
	}
	s := r.session
	if s == nil {
		return fmt.Errorf("%w: no active session", ErrNotLoaded)
	}
	transducer, ok := r.transducers[s.TransducerID()]
	if !ok {
		return fmt.Errorf("%w: transducer %q", ErrNotLoaded, s.TransducerID())
	}
	def, err := s.SyncFromScene(s.TargetNodes, transducer)
	if err != nil {
		return err
	}
	return r.db.WriteSession(def)
}

// SetActivePlan replaces the active plan, releasing the artifacts of the one
// it replaces.
func (r *Registry) SetActivePlan(plan *entities.Plan) {
	if r.plan != nil {
		r.plan.Release()
	}
	r.plan = plan
}

// SetActiveSolution replaces the active solution. When a valid active
// session exists the solution is also persisted keyed by that session, as a
// write-through side effect of the assignment.
func (r *Registry) SetActiveSolution(solution *models.Solution) error {
	r.solution = solution
	if solution == nil || r.session == nil || !r.session.IsValid(r) {
		return nil
	}
	r.session.LastSolutionID = solution.ID
	if r.db == nil {
		return nil
	}
	return r.db.WriteSolution(r.session.SubjectID(), r.session.ID(), solution)
}

// RecordRun creates the immutable record of a completed sonication. It
// requires an approved active solution, and persists the run when a valid
// session is active.
func (r *Registry) RecordRun(success bool, note string) (*models.Run, error) {
	if r.solution == nil || !r.solution.Approved {
		return nil, ErrNoSolution
	}
	sessionID := ""
	if r.session != nil {
		sessionID = r.session.ID()
	}
	run := models.NewRun(success, note, sessionID, r.solution.ID)
	if r.db != nil && r.session != nil && r.session.IsValid(r) {
		if err := r.db.WriteRun(r.session.SubjectID(), sessionID, run); err != nil {
			return nil, err
		}
	}
	r.lastRun = run
	return run, nil
}

// HandleEvent reacts to one scene notification. Events are processed
// synchronously in the order the host raises them.
func (r *Registry) HandleEvent(ev scene.Event) error {
	switch ev.Kind {
	case scene.ArtifactRemoved:
		return r.onArtifactRemoved(ev)
	case scene.PointRemoved, scene.PointModified:
		r.revokeVirtualFitIfApproved(ev.Name)
	case scene.PlacementChanged:
		r.onPlacementChanged(ev)
	case scene.PointAdded:
		// A newly added point cannot be the already-approved target.
	}
	return nil
}

// onArtifactRemoved handles external destruction of a mesh, placement, or
// volume artifact. At most one transducer may own the handle; duplicate
// ownership is a fatal ambiguity. The owning transducer is detached without
// destroying its surviving artifact, and the session is re-validated.
func (r *Registry) onArtifactRemoved(ev scene.Event) error {
	if ev.NodeKind == scene.VolumeKind {
		r.ValidateActiveSession()
		return nil
	}
	var owner string
	for id, t := range r.transducers {
		if _, ok := t.OwnsArtifact(ev.Handle); ok {
			if owner != "" {
				return fmt.Errorf("%w: %s claimed by %q and %q", ErrDuplicateArtifact, ev.Handle, owner, id)
			}
			owner = id
		}
	}
	if owner == "" {
		return nil
	}
	r.detachTransducer(owner)
	r.ValidateActiveSession()
	return nil
}

// revokeVirtualFitIfApproved clears the virtual-fit approval when the
// affected target is the approved one. Approvals must never silently remain
// valid after their preconditions change, so revocation always notifies.
func (r *Registry) revokeVirtualFitIfApproved(targetID string) {
	if r.session == nil || !r.session.VirtualFitApprovedFor(targetID) {
		return
	}
	r.session.ApproveVirtualFit(nil)
	r.notify("Virtual fit approval revoked",
		fmt.Sprintf("target %q changed after its virtual fit was approved", targetID))
}

// onPlacementChanged revokes approvals that depend on the session
// transducer's pose when that pose changes.
func (r *Registry) onPlacementChanged(ev scene.Event) {
	s := r.session
	if s == nil {
		return
	}
	t, ok := r.transducers[s.TransducerID()]
	if !ok || t.PlacementNode.Handle() != ev.Handle {
		return
	}
	if s.Def.VirtualFitApprovalForTargetID != nil {
		target := *s.Def.VirtualFitApprovalForTargetID
		s.ApproveVirtualFit(nil)
		r.notify("Virtual fit approval revoked",
			fmt.Sprintf("transducer %q moved after the virtual fit for target %q was approved", s.TransducerID(), target))
	}
	if s.TrackingApproved() {
		s.ToggleTrackingApproval()
		r.notify("Transducer tracking approval revoked",
			fmt.Sprintf("transducer %q moved after tracking was approved", s.TransducerID()))
	}
}
