package core

import "fmt"

// rowTransitions lists the statuses each row status may advance to.
// A row never returns to pending.
var rowTransitions = map[RowStatus][]RowStatus{
	RowPending: {RowValid, RowWarning, RowError},
	RowValid:   {RowSkipped, RowCommitted, RowError},
	RowWarning: {RowSkipped, RowCommitted, RowError},
	RowError:   {RowSkipped, RowCommitted, RowError},
}

// CanAdvance reports whether a row may move from one status to another.
// Staying in the same status is always allowed.
func CanAdvance(from, to RowStatus) bool {
	if from == to {
		return true
	}
	for _, next := range rowTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// CheckAdvance returns ErrStatusRegression when a transition is not allowed.
func CheckAdvance(rowIndex int, from, to RowStatus) error {
	if CanAdvance(from, to) {
		return nil
	}
	return fmt.Errorf("row %d: %s -> %s: %w", rowIndex, from, to, ErrStatusRegression)
}

// FinalizationError returns the error for a commit attempt against a job
// that is no longer awaiting commit, or nil if the job can be committed.
func FinalizationError(status JobStatus) error {
	switch status {
	case JobCommitted:
		return ErrJobAlreadyFinalized
	case JobFailed:
		return ErrJobInFailedState
	}
	return nil
}
