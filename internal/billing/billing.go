// Package billing computes the amount due for a session and manages monthly
// tariffs. The calculator is a pure function of its frozen inputs.
package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"regexp"
	"time"

	"go.uber.org/zap"

	"evcharge/internal/models"
	"evcharge/internal/storage"
)

var (
	ErrReadingsMissing = errors.New("billing: both meter readings required")
	ErrTariffMissing   = errors.New("billing: tariff required")
	ErrBadYearMonth    = errors.New("billing: year-month must be formatted YYYY-MM")
	ErrBadPrice        = errors.New("billing: price must be between 0.01 and 100.00 UAH/kWh")
)

var yearMonthPattern = regexp.MustCompile(`^\d{4}-(0[1-9]|1[0-2])$`)

// Round2 rounds to 2 decimal places, the stored precision for money and
// energy totals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ConsumedKwh derives session energy from the two meter readings, clamped at
// zero: a reading regression never produces a negative figure.
func ConsumedKwh(meterBefore, meterAfter float64) float64 {
	return Round2(math.Max(0, meterAfter-meterBefore))
}

// Amount computes what a session costs. Refuses to compute with missing
// inputs; deterministic given the same frozen values.
func Amount(meterBefore, meterAfter *float64, tariff *models.Tariff) (kwh, amount float64, err error) {
	if meterBefore == nil || meterAfter == nil {
		return 0, 0, ErrReadingsMissing
	}
	if tariff == nil || tariff.PriceUAHPerKwh <= 0 {
		return 0, 0, ErrTariffMissing
	}
	kwh = ConsumedKwh(*meterBefore, *meterAfter)
	return kwh, Round2(kwh * tariff.PriceUAHPerKwh), nil
}

// ValidateYearMonth checks the YYYY-MM key format.
func ValidateYearMonth(yearMonth string) error {
	if !yearMonthPattern.MatchString(yearMonth) {
		return ErrBadYearMonth
	}
	return nil
}

// CurrentYearMonth is the YYYY-MM key for now.
func CurrentYearMonth() string {
	return time.Now().Format("2006-01")
}

// TariffService wraps the tariff store with validation.
type TariffService struct {
	store  storage.TariffStore
	logger *zap.Logger
}

// NewTariffService builds the service.
func NewTariffService(store storage.TariffStore, logger *zap.Logger) *TariffService {
	return &TariffService{store: store, logger: logger}
}

// Set upserts the tariff for a month after validating key and price.
func (s *TariffService) Set(ctx context.Context, yearMonth string, price float64, sourceNote string) (*models.Tariff, error) {
	if err := ValidateYearMonth(yearMonth); err != nil {
		return nil, err
	}
	if price <= 0 || price > 100 {
		return nil, ErrBadPrice
	}
	if sourceNote == "" {
		sourceNote = "set by owner"
	}

	tariff := &models.Tariff{
		YearMonth:      yearMonth,
		PriceUAHPerKwh: Round2(price),
		SourceNote:     sourceNote,
	}
	if err := s.store.Upsert(ctx, tariff); err != nil {
		return nil, fmt.Errorf("upsert tariff: %w", err)
	}

	s.logger.Info("tariff set",
		zap.String("year_month", yearMonth),
		zap.Float64("price_uah_per_kwh", tariff.PriceUAHPerKwh),
	)
	return tariff, nil
}

// ForMonth looks up the tariff for a month.
func (s *TariffService) ForMonth(ctx context.Context, yearMonth string) (*models.Tariff, error) {
	if err := ValidateYearMonth(yearMonth); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, yearMonth)
}

// Current returns the tariff for the running month.
func (s *TariffService) Current(ctx context.Context) (*models.Tariff, error) {
	return s.store.Get(ctx, CurrentYearMonth())
}

// All returns every stored tariff, newest month first.
func (s *TariffService) All(ctx context.Context) ([]models.Tariff, error) {
	return s.store.List(ctx)
}
