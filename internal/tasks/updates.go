package tasks

import (
	"fmt"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	WarmStart Phase = iota
	WarmBatches
	WarmComplete
)

func (p Phase) String() string {
	switch p {
	case WarmStart:
		return "warm_start"
	case WarmBatches:
		return "warm_batches"
	case WarmComplete:
		return "warm_complete"
	default:
		return ""
	}
}

func warmStartUpdate(ids, batches int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WarmStart,
		Step:    0,
		Total:   batches,
		Message: fmt.Sprintf("Resolving %d tracks in %d batches...", ids, batches),
	}
}

func batchDoneUpdate(step, total int, res BatchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WarmBatches,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ batch %d: %d resolved, %d missing", step, total, res.Index+1, res.Resolved, len(res.Missing)),
		Data:    res,
	}
}

func batchFailedUpdate(step, total int, res BatchResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WarmBatches,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ batch %d: %v", step, total, res.Index+1, res.Error),
		Data:    res,
	}
}

func warmCompleteUpdate(result *WarmResult) ProgressUpdate {
	return ProgressUpdate{
		Phase:   WarmComplete,
		Step:    result.Batches,
		Total:   result.Batches,
		Message: fmt.Sprintf("Resolved %d of %d tracks (%d missing, %d failed batches)", result.Resolved, result.TotalIDs, result.Missing, result.FailedBatches),
		Data:    result,
	}
}
