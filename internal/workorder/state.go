// Package workorder runs the production work-order lifecycle:
//
//	pending -> in_progress -> completed
//	pending | in_progress -> cancelled
//
// Completion reconciles planned against actual consumption and writes the
// resulting out movements to the ledger. Stock shortfalls never block a
// transition; they are returned as warnings.
package workorder

import (
	"stockwright/internal/errs"
	"stockwright/models"
)

var transitions = map[models.Status][]models.Status{
	models.StatusPending:    {models.StatusInProgress, models.StatusCancelled},
	models.StatusInProgress: {models.StatusCompleted, models.StatusCancelled},
}

// CanTransition reports whether a work order may move from one status to
// another.
func CanTransition(from, to models.Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses lists the statuses reachable from s.
func NextStatuses(s models.Status) []models.Status {
	return append([]models.Status(nil), transitions[s]...)
}

func checkTransition(from, to models.Status) error {
	if !CanTransition(from, to) {
		return errs.TransitionError{From: string(from), To: string(to)}
	}
	return nil
}
