package session

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"evcharge/internal/billing"
	"evcharge/internal/models"
	"evcharge/internal/storage"
)

func newTestService(t *testing.T) (*Service, *billing.TariffService) {
	t.Helper()
	logger := zap.NewNop()
	tariffs := billing.NewTariffService(storage.NewMemoryTariffs(), logger)
	svc := NewService(storage.NewMemory(), tariffs, nil, logger)
	return svc, tariffs
}

func TestStartRejectsSecondOpenSession(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Start(ctx, 42)
	if err != nil {
		t.Fatalf("first start: %v", err)
	}

	second, err := svc.Start(ctx, 42)
	if !errors.Is(err, ErrSessionOpen) {
		t.Fatalf("expected ErrSessionOpen, got %v", err)
	}
	if second == nil || second.ID != first.ID {
		t.Errorf("expected the open session back, got %+v", second)
	}

	// A different owner is unaffected.
	if _, err := svc.Start(ctx, 43); err != nil {
		t.Errorf("other owner start: %v", err)
	}
}

func TestForceStartFinishesPrevious(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	old, err := svc.Start(ctx, 42)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	fresh, err := svc.ForceStart(ctx, 42)
	if err != nil {
		t.Fatalf("force start: %v", err)
	}
	if fresh.ID == old.ID {
		t.Fatalf("expected a new session, got the old one")
	}

	previous, err := svc.Get(ctx, old.ID)
	if err != nil {
		t.Fatalf("get old: %v", err)
	}
	if previous.State != models.StateFinished {
		t.Errorf("previous session state = %s, want finished", previous.State)
	}
	if previous.FinishedAt == nil {
		t.Errorf("previous session has no finish time")
	}
}

func TestRecordReadingDerivesConsumption(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	s, err := svc.Start(ctx, 42)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	s, err = svc.RecordReading(ctx, s.ID, models.SlotBefore, 500.0, SourceOCR)
	if err != nil {
		t.Fatalf("record before: %v", err)
	}
	if s.State != models.StateBeforeRecorded {
		t.Errorf("state = %s, want before_recorded", s.State)
	}

	s, err = svc.RecordReading(ctx, s.ID, models.SlotDisplay, 8.4, SourceManual)
	if err != nil {
		t.Fatalf("record display: %v", err)
	}
	if s.State != models.StateBeforeRecorded {
		t.Errorf("display reading changed state to %s", s.State)
	}

	s, err = svc.RecordReading(ctx, s.ID, models.SlotAfter, 508.5, SourceOCR)
	if err != nil {
		t.Fatalf("record after: %v", err)
	}
	if s.State != models.StateAfterRecorded {
		t.Errorf("state = %s, want after_recorded", s.State)
	}
	if s.KwhCalculated == nil || *s.KwhCalculated != 8.5 {
		t.Errorf("kwh calculated = %v, want 8.5", s.KwhCalculated)
	}
}

func TestRecordReadingClampsNegativeConsumption(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	s, _ := svc.Start(ctx, 42)
	if _, err := svc.RecordReading(ctx, s.ID, models.SlotBefore, 510.0, SourceManual); err != nil {
		t.Fatalf("record before: %v", err)
	}
	s, err := svc.RecordReading(ctx, s.ID, models.SlotAfter, 505.0, SourceManual)
	if err != nil {
		t.Fatalf("record after: %v", err)
	}
	if s.KwhCalculated == nil || *s.KwhCalculated != 0 {
		t.Errorf("kwh calculated = %v, want 0", s.KwhCalculated)
	}
}

func TestCompleteWithoutTariffIsRetryable(t *testing.T) {
	svc, tariffs := newTestService(t)
	ctx := context.Background()

	s, _ := svc.Start(ctx, 42)
	svc.RecordReading(ctx, s.ID, models.SlotBefore, 500.0, SourceOCR)
	svc.RecordReading(ctx, s.ID, models.SlotAfter, 508.5, SourceOCR)

	if _, err := svc.Complete(ctx, s.ID); !errors.Is(err, ErrNoTariff) {
		t.Fatalf("expected ErrNoTariff, got %v", err)
	}

	// The session must stay open and billable.
	current, err := svc.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if current.State != models.StateAfterRecorded {
		t.Errorf("state after failed completion = %s, want after_recorded", current.State)
	}

	if _, err := tariffs.Set(ctx, billing.CurrentYearMonth(), 7.5, "test"); err != nil {
		t.Fatalf("set tariff: %v", err)
	}
	completed, err := svc.Complete(ctx, s.ID)
	if err != nil {
		t.Fatalf("retry complete: %v", err)
	}
	if completed.State != models.StateCompleted {
		t.Errorf("state = %s, want completed", completed.State)
	}
	if completed.AmountUAH == nil || *completed.AmountUAH != 63.75 {
		t.Errorf("amount = %v, want 63.75", completed.AmountUAH)
	}
}

func TestCompletedSessionIsImmutable(t *testing.T) {
	svc, tariffs := newTestService(t)
	ctx := context.Background()

	tariffs.Set(ctx, billing.CurrentYearMonth(), 7.5, "test")
	s, _ := svc.Start(ctx, 42)
	svc.RecordReading(ctx, s.ID, models.SlotBefore, 500.0, SourceOCR)
	svc.RecordReading(ctx, s.ID, models.SlotAfter, 508.5, SourceOCR)

	completed, err := svc.Complete(ctx, s.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := svc.Complete(ctx, s.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("second complete: expected ErrAlreadyCompleted, got %v", err)
	}
	if _, err := svc.RecordReading(ctx, s.ID, models.SlotAfter, 600.0, SourceManual); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("record on completed: expected ErrAlreadyCompleted, got %v", err)
	}
	if _, err := svc.Finish(ctx, s.ID); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("finish on completed: expected ErrAlreadyCompleted, got %v", err)
	}

	// A later tariff change does not touch frozen billing values.
	tariffs.Set(ctx, billing.CurrentYearMonth(), 9.0, "test")
	stored, _ := svc.Get(ctx, s.ID)
	if *stored.TariffValue != *completed.TariffValue || *stored.AmountUAH != *completed.AmountUAH {
		t.Errorf("billing values changed after completion: %+v", stored)
	}
}

func TestCompleteRequiresBothReadings(t *testing.T) {
	svc, tariffs := newTestService(t)
	ctx := context.Background()

	tariffs.Set(ctx, billing.CurrentYearMonth(), 7.5, "test")
	s, _ := svc.Start(ctx, 42)
	svc.RecordReading(ctx, s.ID, models.SlotBefore, 500.0, SourceOCR)

	if _, err := svc.Complete(ctx, s.ID); !errors.Is(err, ErrReadingsMissing) {
		t.Errorf("expected ErrReadingsMissing, got %v", err)
	}
}

func TestClassifyManualValue(t *testing.T) {
	svc, _ := newTestService(t)
	before := 500.0

	tests := []struct {
		name    string
		session *models.ChargingSession
		value   float64
		want    models.Slot
		wantErr error
	}{
		{
			name:    "started session takes the before reading",
			session: &models.ChargingSession{State: models.StateStarted},
			value:   500.0,
			want:    models.SlotBefore,
		},
		{
			name:    "small value is the station display",
			session: &models.ChargingSession{State: models.StateBeforeRecorded, MeterBefore: &before},
			value:   8.4,
			want:    models.SlotDisplay,
		},
		{
			name:    "value above the before reading is the after reading",
			session: &models.ChargingSession{State: models.StateFinished, MeterBefore: &before},
			value:   508.5,
			want:    models.SlotAfter,
		},
		{
			name:    "large value below the before reading is ambiguous",
			session: &models.ChargingSession{State: models.StateFinished, MeterBefore: &before},
			value:   400.0,
			wantErr: ErrAmbiguousReading,
		},
		{
			name:    "large value without a before reading is ambiguous",
			session: &models.ChargingSession{State: models.StateFinished},
			value:   400.0,
			wantErr: ErrAmbiguousReading,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.ClassifyManualValue(tt.session, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("slot = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestActiveReturnsErrNoOpenSession(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.Active(context.Background(), 42); !errors.Is(err, ErrNoOpenSession) {
		t.Errorf("expected ErrNoOpenSession, got %v", err)
	}
}
