package domain

import (
	"fmt"
	"time"
)

// CycleState is a step of one apply cycle:
// Idle → Loading → Composing → Generating → Submitting → Idle, with Failed
// reachable from Loading and Submitting.
type CycleState uint8

const (
	CycleIdle CycleState = iota
	CycleLoading
	CycleComposing
	CycleGenerating
	CycleSubmitting
	CycleFailed
)

func (s CycleState) String() string {
	switch s {
	case CycleIdle:
		return "idle"
	case CycleLoading:
		return "loading"
	case CycleComposing:
		return "composing"
	case CycleGenerating:
		return "generating"
	case CycleSubmitting:
		return "submitting"
	case CycleFailed:
		return "failed"
	default:
		return fmt.Sprintf("CycleState(%d)", s)
	}
}

// CycleResult summarises the outcome of the most recent apply cycle.
type CycleResult struct {
	StartedAt  time.Time
	FinishedAt time.Time
	Domains    int
	// Degraded is set when the registry could not be refreshed and the
	// cycle continued with the cached (or empty) snapshot.
	Degraded bool
	Err      error
}

// OK reports whether the cycle submitted its configuration.
func (r CycleResult) OK() bool { return r.Err == nil && !r.FinishedAt.IsZero() }
