// Package session models the lifecycle of one charging session: creation,
// photo ingestion, meter-reading assignment, finish, and billing completion.
// State only moves forward; nothing recorded is ever removed.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"evcharge/internal/billing"
	"evcharge/internal/cache"
	"evcharge/internal/models"
	"evcharge/internal/storage"
)

var (
	// ErrSessionOpen means the owner must continue or discard the open
	// session before starting another one.
	ErrSessionOpen = errors.New("session: owner already has an open session")
	// ErrNoOpenSession means there is nothing to act on.
	ErrNoOpenSession = errors.New("session: no open session")
	// ErrAlreadyCompleted guards the terminal state.
	ErrAlreadyCompleted = errors.New("session: already completed")
	// ErrNoTariff refuses completion until a tariff exists for the month.
	ErrNoTariff = errors.New("session: no tariff for completion month")
	// ErrReadingsMissing refuses completion without both meter readings.
	ErrReadingsMissing = errors.New("session: both meter readings required")
	// ErrAmbiguousReading means a manual number cannot be classified as
	// after vs display without asking the user.
	ErrAmbiguousReading = errors.New("session: reading type is ambiguous")
)

// ReadingSource records how a reading entered the session.
type ReadingSource string

const (
	SourceOCR    ReadingSource = "ocr"
	SourceManual ReadingSource = "manual"
)

// displayMax is the upper bound of a single-session energy figure. A manual
// number at or below it is a station display reading.
const displayMax = 50.0

// Service drives the state machine against the storage port.
type Service struct {
	store   storage.SessionStore
	tariffs *billing.TariffService
	active  *cache.Store
	logger  *zap.Logger
}

// NewService builds the service. The active-session cache may be nil.
func NewService(store storage.SessionStore, tariffs *billing.TariffService, active *cache.Store, logger *zap.Logger) *Service {
	return &Service{store: store, tariffs: tariffs, active: active, logger: logger}
}

// Start creates a new session for the owner. Fails with ErrSessionOpen while
// a previous one is still open; the caller must then offer continue/discard.
func (s *Service) Start(ctx context.Context, ownerID int64) (*models.ChargingSession, error) {
	existing, err := s.store.GetOpenByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		return nil, err
	}
	if existing != nil {
		return existing, ErrSessionOpen
	}

	session, err := s.store.Create(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s.cacheSave(ctx, session)
	s.logger.Info("session started",
		zap.Int64("session_id", session.ID),
		zap.Int64("owner_id", ownerID),
	)
	return session, nil
}

// ForceStart finishes the open session (if any) and creates a fresh one. Used
// when the owner explicitly discards the previous session.
func (s *Service) ForceStart(ctx context.Context, ownerID int64) (*models.ChargingSession, error) {
	existing, err := s.store.GetOpenByOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, storage.ErrSessionNotFound) {
		return nil, err
	}
	if existing != nil {
		if _, err := s.Finish(ctx, existing.ID); err != nil {
			return nil, fmt.Errorf("finish previous session: %w", err)
		}
	}

	session, err := s.store.Create(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	s.cacheSave(ctx, session)
	s.logger.Info("session force-started",
		zap.Int64("session_id", session.ID),
		zap.Int64("owner_id", ownerID),
	)
	return session, nil
}

// Active returns the owner's open session or ErrNoOpenSession.
func (s *Service) Active(ctx context.Context, ownerID int64) (*models.ChargingSession, error) {
	session, err := s.store.GetOpenByOwner(ctx, ownerID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil, ErrNoOpenSession
	}
	return session, err
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id int64) (*models.ChargingSession, error) {
	return s.store.Get(ctx, id)
}

// History returns the owner's latest sessions, newest first.
func (s *Service) History(ctx context.Context, ownerID int64, limit int) ([]models.ChargingSession, error) {
	return s.store.ListByOwner(ctx, ownerID, limit)
}

// AttachPhoto appends a photo record to an open session. Photos are evidence;
// they never change state by themselves.
func (s *Service) AttachPhoto(ctx context.Context, sessionID int64, photo models.Photo) (*models.ChargingSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, ErrAlreadyCompleted
	}

	if photo.UploadedAt.IsZero() {
		photo.UploadedAt = time.Now().UTC()
	}
	session.Photos = append(session.Photos, photo)

	if err := s.store.Update(ctx, session); err != nil {
		return nil, err
	}
	s.cacheSave(ctx, session)
	s.logger.Info("photo attached",
		zap.Int64("session_id", sessionID),
		zap.String("slot", string(photo.Slot)),
		zap.String("timestamp_source", string(photo.TimestampSource)),
	)
	return session, nil
}

// RecordReading assigns a confirmed numeric reading to a slot and advances
// state: before -> BEFORE_RECORDED, after -> AFTER_RECORDED (deriving the
// consumed kWh), display -> no state change.
func (s *Service) RecordReading(ctx context.Context, sessionID int64, slot models.Slot, value float64, source ReadingSource) (*models.ChargingSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, ErrAlreadyCompleted
	}

	switch slot {
	case models.SlotBefore:
		session.MeterBefore = &value
		if session.State == models.StateStarted {
			session.State = models.StateBeforeRecorded
		}
		if session.MeterAfter != nil {
			kwh := billing.ConsumedKwh(value, *session.MeterAfter)
			session.KwhCalculated = &kwh
		}
	case models.SlotAfter:
		session.MeterAfter = &value
		if session.MeterBefore != nil {
			kwh := billing.ConsumedKwh(*session.MeterBefore, value)
			session.KwhCalculated = &kwh
		}
		session.State = models.StateAfterRecorded
	case models.SlotDisplay:
		session.KwhDisplay = &value
	default:
		return nil, fmt.Errorf("session: cannot record reading for slot %q", slot)
	}

	if err := s.store.Update(ctx, session); err != nil {
		return nil, err
	}
	s.cacheSave(ctx, session)
	s.logger.Info("reading recorded",
		zap.Int64("session_id", sessionID),
		zap.String("slot", string(slot)),
		zap.Float64("value", value),
		zap.String("source", string(source)),
	)
	return session, nil
}

// Finish marks the end of the active charging period. No reading is required
// at this step; a later after-reading moves the session on.
func (s *Service) Finish(ctx context.Context, sessionID int64) (*models.ChargingSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, ErrAlreadyCompleted
	}

	if session.State == models.StateStarted || session.State == models.StateBeforeRecorded {
		session.State = models.StateFinished
	}
	if session.FinishedAt == nil {
		now := time.Now().UTC()
		session.FinishedAt = &now
	}

	if err := s.store.Update(ctx, session); err != nil {
		return nil, err
	}
	s.cacheSave(ctx, session)
	s.logger.Info("session finished", zap.Int64("session_id", sessionID))
	return session, nil
}

// Complete bills the session and moves it to the terminal state. Requires
// both meter readings and a tariff for the completion month; on ErrNoTariff
// the session stays where it was and the call is retryable.
func (s *Service) Complete(ctx context.Context, sessionID int64) (*models.ChargingSession, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !session.Open() {
		return nil, ErrAlreadyCompleted
	}
	if session.MeterBefore == nil || session.MeterAfter == nil {
		return nil, ErrReadingsMissing
	}

	tariff, err := s.tariffs.Current(ctx)
	if errors.Is(err, storage.ErrTariffNotFound) {
		return nil, ErrNoTariff
	}
	if err != nil {
		return nil, err
	}

	kwh, amount, err := billing.Amount(session.MeterBefore, session.MeterAfter, tariff)
	if err != nil {
		return nil, err
	}

	session.KwhCalculated = &kwh
	session.KwhAgreed = &kwh
	session.TariffValue = &tariff.PriceUAHPerKwh
	session.AmountUAH = &amount
	session.State = models.StateCompleted
	if session.FinishedAt == nil {
		now := time.Now().UTC()
		session.FinishedAt = &now
	}

	if err := s.store.Update(ctx, session); err != nil {
		return nil, err
	}
	s.cacheDelete(ctx, session.OwnerID)
	s.logger.Info("session completed",
		zap.Int64("session_id", sessionID),
		zap.Float64("kwh_agreed", kwh),
		zap.Float64("amount_uah", amount),
		zap.Float64("tariff", tariff.PriceUAHPerKwh),
	)
	return session, nil
}

// ClassifyManualValue decides which slot a manually entered number belongs
// to. It never guesses: a number that is neither display-scale nor clearly
// above the recorded before-reading is ErrAmbiguousReading, and the caller
// must ask the user.
func (s *Service) ClassifyManualValue(session *models.ChargingSession, value float64) (models.Slot, error) {
	if session.State == models.StateStarted {
		return models.SlotBefore, nil
	}
	if value <= displayMax {
		return models.SlotDisplay, nil
	}
	if session.MeterBefore != nil && value > *session.MeterBefore {
		return models.SlotAfter, nil
	}
	return "", ErrAmbiguousReading
}

func (s *Service) cacheSave(ctx context.Context, session *models.ChargingSession) {
	if s.active == nil {
		return
	}
	if err := s.active.Save(ctx, session); err != nil {
		s.logger.Warn("failed to cache active session", zap.Error(err))
	}
}

func (s *Service) cacheDelete(ctx context.Context, ownerID int64) {
	if s.active == nil {
		return
	}
	if err := s.active.Delete(ctx, ownerID); err != nil {
		s.logger.Warn("failed to drop active session cache", zap.Error(err))
	}
}
