package classify

import (
	"testing"
	"time"

	"evcharge/internal/models"
)

func timePtr(t time.Time) *time.Time { return &t }

func TestByTimestampFirstPhotoIsBefore(t *testing.T) {
	got := ByTimestamp(nil, time.Now())
	if got != models.SlotBefore {
		t.Errorf("first photo = %s, want before", got)
	}
}

func TestByTimestampChronologicalOrder(t *testing.T) {
	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	photos := []models.Photo{
		{Slot: models.SlotBefore, TakenAt: timePtr(base)},
	}

	// Taken after the before shot: the display photo.
	if got := ByTimestamp(photos, base.Add(30*time.Minute)); got != models.SlotDisplay {
		t.Errorf("second photo = %s, want display", got)
	}

	photos = append(photos, models.Photo{Slot: models.SlotDisplay, TakenAt: timePtr(base.Add(30 * time.Minute))})

	// Latest of three: the after shot.
	if got := ByTimestamp(photos, base.Add(2*time.Hour)); got != models.SlotAfter {
		t.Errorf("third photo = %s, want after", got)
	}

	// A photo older than everything attached so far goes to the front.
	if got := ByTimestamp(photos, base.Add(-time.Hour)); got != models.SlotBefore {
		t.Errorf("out-of-order photo = %s, want before", got)
	}
}

func TestByTimestampFourthPhotoIsExtra(t *testing.T) {
	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	photos := []models.Photo{
		{TakenAt: timePtr(base)},
		{TakenAt: timePtr(base.Add(time.Hour))},
		{TakenAt: timePtr(base.Add(2 * time.Hour))},
	}
	if got := ByTimestamp(photos, base.Add(3*time.Hour)); got != models.SlotExtra {
		t.Errorf("fourth photo = %s, want extra", got)
	}
}

func TestByStateFallback(t *testing.T) {
	after := 510.0
	tests := []struct {
		name    string
		session *models.ChargingSession
		want    models.Slot
	}{
		{
			name:    "started session gets before shot",
			session: &models.ChargingSession{State: models.StateStarted},
			want:    models.SlotBefore,
		},
		{
			name:    "mid-charge photo is the display",
			session: &models.ChargingSession{State: models.StateBeforeRecorded},
			want:    models.SlotDisplay,
		},
		{
			name:    "finished session is missing the after shot",
			session: &models.ChargingSession{State: models.StateFinished},
			want:    models.SlotAfter,
		},
		{
			name: "after already recorded, photo is the display",
			session: &models.ChargingSession{
				State:      models.StateAfterRecorded,
				MeterAfter: &after,
			},
			want: models.SlotDisplay,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ByState(tt.session); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestPhotoPrefersTimestamp(t *testing.T) {
	session := &models.ChargingSession{State: models.StateStarted}
	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	session.Photos = []models.Photo{{TakenAt: timePtr(base)}}

	// With a timestamp the position decides, even though state says before.
	if got := Photo(session, timePtr(base.Add(time.Hour))); got != models.SlotDisplay {
		t.Errorf("timestamped photo = %s, want display", got)
	}
	// Without one the state machine decides.
	if got := Photo(session, nil); got != models.SlotBefore {
		t.Errorf("untimestamped photo = %s, want before", got)
	}
}
