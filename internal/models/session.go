package models

import (
	"sort"
	"time"
)

// SessionState is the lifecycle state of a charging session.
// Progression is forward-only: started -> before_recorded -> finished ->
// after_recorded -> completed.
type SessionState string

const (
	StateStarted        SessionState = "started"
	StateBeforeRecorded SessionState = "before_recorded"
	StateFinished       SessionState = "finished"
	StateAfterRecorded  SessionState = "after_recorded"
	StateCompleted      SessionState = "completed"
)

// Slot is the semantic role of a photo or reading within a session.
type Slot string

const (
	SlotBefore  Slot = "before"
	SlotAfter   Slot = "after"
	SlotDisplay Slot = "display"
	// SlotExtra marks a fourth or later photo that has no role in billing.
	SlotExtra Slot = "extra"
)

// TimestampSource records where a photo capture time came from.
type TimestampSource string

const (
	SourceMetadata TimestampSource = "metadata"
	SourceFilename TimestampSource = "filename"
	SourceNone     TimestampSource = "none"
)

// RecognitionResult is the outcome of running text recognition plus reading
// extraction over one photo. Reading is nil when no valid candidate was found.
type RecognitionResult struct {
	Success    bool     `json:"success"`
	RawText    string   `json:"raw_text"`
	Confidence int      `json:"confidence"`
	Reading    *float64 `json:"reading"`
	Method     string   `json:"method"`
}

// Photo is one uploaded image evidence artifact. It is owned by its session
// and immutable once attached; corrections land on the session, not here.
type Photo struct {
	Slot            Slot               `json:"slot"`
	FileID          string             `json:"file_id"`
	FileName        string             `json:"file_name"`
	TakenAt         *time.Time         `json:"taken_at,omitempty"`
	TimestampSource TimestampSource    `json:"timestamp_source"`
	Recognition     *RecognitionResult `json:"recognition,omitempty"`
	UploadedAt      time.Time          `json:"uploaded_at"`
}

// ChargingSession is one charging event for one owner.
type ChargingSession struct {
	ID            int64        `json:"id"`
	OwnerID       int64        `json:"owner_id"`
	State         SessionState `json:"state"`
	MeterBefore   *float64     `json:"meter_before,omitempty"`
	MeterAfter    *float64     `json:"meter_after,omitempty"`
	KwhDisplay    *float64     `json:"kwh_display,omitempty"`
	KwhCalculated *float64     `json:"kwh_calculated,omitempty"`
	KwhAgreed     *float64     `json:"kwh_agreed,omitempty"`
	TariffValue   *float64     `json:"tariff_value,omitempty"`
	AmountUAH     *float64     `json:"amount_uah,omitempty"`
	Photos        []Photo      `json:"photos"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    *time.Time   `json:"finished_at,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Open reports whether the session still accepts mutations.
func (s *ChargingSession) Open() bool {
	return s.State != StateCompleted
}

// PhotosByTime returns the photos that carry a capture timestamp, ordered
// chronologically. Insertion order in Photos itself is preserved.
func (s *ChargingSession) PhotosByTime() []Photo {
	timed := make([]Photo, 0, len(s.Photos))
	for _, p := range s.Photos {
		if p.TakenAt != nil {
			timed = append(timed, p)
		}
	}
	sort.SliceStable(timed, func(i, j int) bool {
		return timed[i].TakenAt.Before(*timed[j].TakenAt)
	})
	return timed
}

// Clone returns a deep copy so stores can hand out sessions without sharing
// mutable state with callers.
func (s *ChargingSession) Clone() *ChargingSession {
	out := *s
	out.MeterBefore = copyFloat(s.MeterBefore)
	out.MeterAfter = copyFloat(s.MeterAfter)
	out.KwhDisplay = copyFloat(s.KwhDisplay)
	out.KwhCalculated = copyFloat(s.KwhCalculated)
	out.KwhAgreed = copyFloat(s.KwhAgreed)
	out.TariffValue = copyFloat(s.TariffValue)
	out.AmountUAH = copyFloat(s.AmountUAH)
	out.FinishedAt = copyTime(s.FinishedAt)
	out.Photos = make([]Photo, len(s.Photos))
	for i, p := range s.Photos {
		cp := p
		cp.TakenAt = copyTime(p.TakenAt)
		if p.Recognition != nil {
			rec := *p.Recognition
			rec.Reading = copyFloat(p.Recognition.Reading)
			cp.Recognition = &rec
		}
		out.Photos[i] = cp
	}
	return &out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}

func copyTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
