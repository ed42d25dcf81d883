package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SolutionFocus is the beamforming result for a single focus point.
type SolutionFocus struct {
	Point       Point     `json:"point"`
	Delays      []float64 `json:"delays"`
	Apodization []float64 `json:"apodization"`
}

// Solution is the persistable output of a planning computation: per-focus
// beamforming parameters plus an approval flag. The raw per-point fields and
// the aggregated pressure/intensity volumes are scene artifacts owned by the
// in-memory plan, not persisted here.
type Solution struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	ProtocolID   string          `json:"protocol_id"`
	TransducerID string          `json:"transducer_id"`
	TargetID     string          `json:"target_id"`
	Foci         []SolutionFocus `json:"foci"`
	Approved     bool            `json:"approved"`
}

// Run is an immutable record of one sonication execution. It is created only
// after a run completes and the user opts to save it.
type Run struct {
	ID         string `json:"id"`
	Success    bool   `json:"success_flag"`
	Note       string `json:"note"`
	SessionID  string `json:"session_id"`
	SolutionID string `json:"solution_id"`
}

// NewRun builds a run record with a timestamp-derived identity.
func NewRun(success bool, note, sessionID, solutionID string) *Run {
	return &Run{
		ID:         fmt.Sprintf("run_%s_%s", time.Now().UTC().Format("20060102T150405"), uuid.NewString()[:8]),
		Success:    success,
		Note:       note,
		SessionID:  sessionID,
		SolutionID: solutionID,
	}
}
