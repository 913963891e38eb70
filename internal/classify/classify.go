// Package classify assigns a semantic slot (before / display / after) to an
// incoming photo. The canonical chronological workflow is
// before -> display -> after: the station screen is photographed while the
// charge is still running, the meter is read before and after it.
package classify

import (
	"time"

	"evcharge/internal/models"
)

// chronologicalOrder maps a photo's position in capture order to its slot.
var chronologicalOrder = []models.Slot{models.SlotBefore, models.SlotDisplay, models.SlotAfter}

// Photo picks the best available strategy: capture timestamps when the new
// photo carries one, session state otherwise.
func Photo(session *models.ChargingSession, takenAt *time.Time) models.Slot {
	if takenAt != nil {
		return ByTimestamp(session.Photos, *takenAt)
	}
	return ByState(session)
}

// ByTimestamp sorts the already-attached timestamped photos together with the
// new one and maps the new photo's chronological position onto the canonical
// workflow. The first photo of an empty session is always the before shot.
func ByTimestamp(existing []models.Photo, takenAt time.Time) models.Slot {
	timed := make([]time.Time, 0, len(existing))
	for _, p := range existing {
		if p.TakenAt != nil {
			timed = append(timed, *p.TakenAt)
		}
	}
	if len(timed) == 0 {
		return models.SlotBefore
	}

	position := 0
	for _, t := range timed {
		if !takenAt.Before(t) {
			position++
		}
	}
	if position >= len(chronologicalOrder) {
		return models.SlotExtra
	}
	return chronologicalOrder[position]
}

// ByState is the fallback when no capture time is available. It follows the
// same canonical sequence: while the session has not been finished the charge
// is still running, so a mid-session photo can only show the station display;
// after finishing, the missing meter reading is the after shot.
func ByState(session *models.ChargingSession) models.Slot {
	switch {
	case session.State == models.StateStarted:
		return models.SlotBefore
	case session.State == models.StateBeforeRecorded:
		return models.SlotDisplay
	case session.MeterAfter == nil:
		return models.SlotAfter
	default:
		return models.SlotDisplay
	}
}
