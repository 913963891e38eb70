package billing

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"evcharge/internal/models"
	"evcharge/internal/storage"
)

func floatPtr(v float64) *float64 { return &v }

func TestRound2(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{8.505, 8.51},
		{8.504, 8.5},
		{63.75, 63.75},
		{0.005, 0.01},
	}
	for _, tt := range tests {
		if got := Round2(tt.in); got != tt.want {
			t.Errorf("Round2(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConsumedKwhClampsRegression(t *testing.T) {
	if got := ConsumedKwh(508.5, 500.0); got != 0 {
		t.Errorf("regressed reading gives %v, want 0", got)
	}
	if got := ConsumedKwh(500.0, 508.5); got != 8.5 {
		t.Errorf("ConsumedKwh = %v, want 8.5", got)
	}
}

func TestAmountRefusesIncompleteInputs(t *testing.T) {
	tariff := &models.Tariff{YearMonth: "2026-08", PriceUAHPerKwh: 7.5}

	if _, _, err := Amount(nil, floatPtr(508.5), tariff); !errors.Is(err, ErrReadingsMissing) {
		t.Errorf("missing before: got %v", err)
	}
	if _, _, err := Amount(floatPtr(500), nil, tariff); !errors.Is(err, ErrReadingsMissing) {
		t.Errorf("missing after: got %v", err)
	}
	if _, _, err := Amount(floatPtr(500), floatPtr(508.5), nil); !errors.Is(err, ErrTariffMissing) {
		t.Errorf("missing tariff: got %v", err)
	}
}

func TestAmountIsDeterministic(t *testing.T) {
	tariff := &models.Tariff{YearMonth: "2026-08", PriceUAHPerKwh: 7.5}

	for i := 0; i < 3; i++ {
		kwh, amount, err := Amount(floatPtr(500), floatPtr(508.5), tariff)
		if err != nil {
			t.Fatalf("amount: %v", err)
		}
		if kwh != 8.5 || amount != 63.75 {
			t.Errorf("run %d: kwh=%v amount=%v, want 8.5 / 63.75", i, kwh, amount)
		}
	}
}

func TestValidateYearMonth(t *testing.T) {
	valid := []string{"2026-01", "2026-12", "1999-06"}
	for _, ym := range valid {
		if err := ValidateYearMonth(ym); err != nil {
			t.Errorf("ValidateYearMonth(%q) = %v, want nil", ym, err)
		}
	}
	invalid := []string{"2026-13", "2026-00", "2026-1", "26-01", "2026/01", "august"}
	for _, ym := range invalid {
		if err := ValidateYearMonth(ym); !errors.Is(err, ErrBadYearMonth) {
			t.Errorf("ValidateYearMonth(%q) = %v, want ErrBadYearMonth", ym, err)
		}
	}
}

func TestTariffServiceSetValidation(t *testing.T) {
	svc := NewTariffService(storage.NewMemoryTariffs(), zap.NewNop())
	ctx := context.Background()

	if _, err := svc.Set(ctx, "2026-8", 7.5, ""); !errors.Is(err, ErrBadYearMonth) {
		t.Errorf("bad month: got %v", err)
	}
	if _, err := svc.Set(ctx, "2026-08", 0, ""); !errors.Is(err, ErrBadPrice) {
		t.Errorf("zero price: got %v", err)
	}
	if _, err := svc.Set(ctx, "2026-08", 100.01, ""); !errors.Is(err, ErrBadPrice) {
		t.Errorf("price over limit: got %v", err)
	}

	tariff, err := svc.Set(ctx, "2026-08", 7.505, "")
	if err != nil {
		t.Fatalf("set: %v", err)
	}
	if tariff.PriceUAHPerKwh != 7.51 {
		t.Errorf("price not rounded: %v", tariff.PriceUAHPerKwh)
	}
	if tariff.SourceNote != "set by owner" {
		t.Errorf("default source note missing: %q", tariff.SourceNote)
	}
}

func TestTariffServiceUpsertReplaces(t *testing.T) {
	svc := NewTariffService(storage.NewMemoryTariffs(), zap.NewNop())
	ctx := context.Background()

	svc.Set(ctx, "2026-08", 7.5, "")
	svc.Set(ctx, "2026-08", 8.0, "corrected")

	tariff, err := svc.ForMonth(ctx, "2026-08")
	if err != nil {
		t.Fatalf("for month: %v", err)
	}
	if tariff.PriceUAHPerKwh != 8.0 {
		t.Errorf("price = %v, want 8.0", tariff.PriceUAHPerKwh)
	}

	if _, err := svc.ForMonth(ctx, "2026-07"); !errors.Is(err, storage.ErrTariffNotFound) {
		t.Errorf("missing month: got %v", err)
	}
}
