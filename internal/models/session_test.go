package models

import (
	"testing"
	"time"
)

func TestOpen(t *testing.T) {
	for _, state := range []SessionState{StateStarted, StateBeforeRecorded, StateFinished, StateAfterRecorded} {
		s := &ChargingSession{State: state}
		if !s.Open() {
			t.Errorf("state %s reported closed", state)
		}
	}
	s := &ChargingSession{State: StateCompleted}
	if s.Open() {
		t.Error("completed session reported open")
	}
}

func TestPhotosByTime(t *testing.T) {
	base := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)
	later := base.Add(time.Hour)

	s := &ChargingSession{Photos: []Photo{
		{FileID: "untimed"},
		{FileID: "second", TakenAt: &later},
		{FileID: "first", TakenAt: &base},
	}}

	timed := s.PhotosByTime()
	if len(timed) != 2 {
		t.Fatalf("got %d timed photos, want 2", len(timed))
	}
	if timed[0].FileID != "first" || timed[1].FileID != "second" {
		t.Errorf("wrong order: %s, %s", timed[0].FileID, timed[1].FileID)
	}
	// Insertion order in Photos is untouched.
	if s.Photos[0].FileID != "untimed" {
		t.Errorf("photos reordered: %s", s.Photos[0].FileID)
	}
}

func TestCloneIsDeep(t *testing.T) {
	before := 500.0
	reading := 508.5
	taken := time.Date(2026, 8, 15, 10, 0, 0, 0, time.UTC)

	orig := &ChargingSession{
		ID:          1,
		State:       StateBeforeRecorded,
		MeterBefore: &before,
		Photos: []Photo{{
			FileID:      "f1",
			TakenAt:     &taken,
			Recognition: &RecognitionResult{Success: true, Reading: &reading},
		}},
	}

	clone := orig.Clone()
	*clone.MeterBefore = 999
	*clone.Photos[0].Recognition.Reading = 999
	clone.Photos[0].TakenAt = nil
	clone.Photos = append(clone.Photos, Photo{FileID: "f2"})

	if *orig.MeterBefore != 500.0 {
		t.Errorf("meter before mutated through clone: %v", *orig.MeterBefore)
	}
	if *orig.Photos[0].Recognition.Reading != 508.5 {
		t.Errorf("recognition mutated through clone: %v", *orig.Photos[0].Recognition.Reading)
	}
	if orig.Photos[0].TakenAt == nil || len(orig.Photos) != 1 {
		t.Errorf("photos mutated through clone")
	}
}
