package domain

import (
	"fmt"

	"github.com/romariotrain/vod-platform/internal/media/models"
)

func CanTransition(from, to models.Status) bool {
	switch from {
	case models.CreatedStatus:
		// A recovery re-dispatch may be consumed before the dispatcher marks it queued.
		return to == models.QueuedStatus || to == models.ProcessingStatus
	case models.QueuedStatus:
		return to == models.ProcessingStatus
	case models.ProcessingStatus:
		return to == models.ReadyStatus
	case models.ReadyStatus:
		return false
	default:
		return false
	}
}

// ValidateTransition rejects every move CanTransition does not allow, including
// staying in place.
func ValidateTransition(from, to models.Status) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// Predecessors lists the statuses a record may be in for an update to `to` to apply.
func Predecessors(to models.Status) []models.Status {
	all := []models.Status{
		models.CreatedStatus,
		models.QueuedStatus,
		models.ProcessingStatus,
		models.ReadyStatus,
	}
	var out []models.Status
	for _, from := range all {
		if CanTransition(from, to) {
			out = append(out, from)
		}
	}
	return out
}

// IsTerminal reports whether no further transition exists.
func IsTerminal(s models.Status) bool {
	return s == models.ReadyStatus
}
