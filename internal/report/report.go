// Package report builds monthly summaries and file exports over stored
// charging sessions.
package report

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"evcharge/internal/billing"
	"evcharge/internal/models"
	"evcharge/internal/storage"
)

// MonthlyStats aggregates completed billing figures for one month. Only
// completed sessions contribute energy and money; open sessions are counted
// but never estimated.
type MonthlyStats struct {
	YearMonth         string
	TotalSessions     int
	CompletedSessions int
	TotalKwh          float64
	TotalAmount       float64
	AverageTariff     float64
}

// Generator produces reports from the session store.
type Generator struct {
	store  storage.SessionStore
	logger *zap.Logger
}

func NewGenerator(store storage.SessionStore, logger *zap.Logger) *Generator {
	return &Generator{store: store, logger: logger}
}

// Stats computes the aggregate for one YYYY-MM month.
func (g *Generator) Stats(ctx context.Context, ownerID int64, yearMonth string) (*MonthlyStats, []models.ChargingSession, error) {
	if err := billing.ValidateYearMonth(yearMonth); err != nil {
		return nil, nil, err
	}
	sessions, err := g.store.ListByMonth(ctx, ownerID, yearMonth)
	if err != nil {
		return nil, nil, err
	}

	stats := &MonthlyStats{YearMonth: yearMonth, TotalSessions: len(sessions)}
	tariffSum := 0.0
	for _, s := range sessions {
		if s.State != models.StateCompleted {
			continue
		}
		stats.CompletedSessions++
		if s.KwhAgreed != nil {
			stats.TotalKwh += *s.KwhAgreed
		}
		if s.AmountUAH != nil {
			stats.TotalAmount += *s.AmountUAH
		}
		if s.TariffValue != nil {
			tariffSum += *s.TariffValue
		}
	}
	stats.TotalKwh = billing.Round2(stats.TotalKwh)
	stats.TotalAmount = billing.Round2(stats.TotalAmount)
	if stats.CompletedSessions > 0 {
		stats.AverageTariff = billing.Round2(tariffSum / float64(stats.CompletedSessions))
	}
	return stats, sessions, nil
}

// Summary renders a Telegram-HTML month summary.
func (g *Generator) Summary(ctx context.Context, ownerID int64, yearMonth string) (string, error) {
	stats, sessions, err := g.Stats(ctx, ownerID, yearMonth)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<b>Charging report for %s</b>\n\n", stats.YearMonth)
	fmt.Fprintf(&b, "Sessions: %d (%d completed)\n", stats.TotalSessions, stats.CompletedSessions)
	fmt.Fprintf(&b, "Energy: %.2f kWh\n", stats.TotalKwh)
	fmt.Fprintf(&b, "Amount: %.2f UAH\n", stats.TotalAmount)
	if stats.AverageTariff > 0 {
		fmt.Fprintf(&b, "Average tariff: %.2f UAH/kWh\n", stats.AverageTariff)
	}

	if stats.TotalSessions > 0 {
		b.WriteString("\n<b>Sessions</b>\n")
		for _, s := range sessions {
			fmt.Fprintf(&b, "#%d %s", s.ID, s.StartedAt.Format("02.01 15:04"))
			if s.State == models.StateCompleted && s.KwhAgreed != nil && s.AmountUAH != nil {
				fmt.Fprintf(&b, " — %.2f kWh, %.2f UAH\n", *s.KwhAgreed, *s.AmountUAH)
			} else {
				fmt.Fprintf(&b, " — %s\n", s.State)
			}
		}
	}
	return b.String(), nil
}

var exportHeaders = []string{
	"Session ID",
	"Started",
	"Finished",
	"State",
	"Meter Before",
	"Meter After",
	"Display kWh",
	"Agreed kWh",
	"Tariff UAH/kWh",
	"Amount UAH",
}

// CSV renders the month's sessions as a CSV file body.
func (g *Generator) CSV(ctx context.Context, ownerID int64, yearMonth string) ([]byte, error) {
	_, sessions, err := g.Stats(ctx, ownerID, yearMonth)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeaders); err != nil {
		return nil, err
	}
	for _, s := range sessions {
		if err := w.Write(exportRow(s)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	g.logger.Info("csv report generated",
		zap.String("year_month", yearMonth),
		zap.Int("rows", len(sessions)),
	)
	return buf.Bytes(), nil
}

// XLSX renders the month's sessions as an Excel workbook.
func (g *Generator) XLSX(ctx context.Context, ownerID int64, yearMonth string) ([]byte, error) {
	stats, sessions, err := g.Stats(ctx, ownerID, yearMonth)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Sessions"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, s := range sessions {
		for col, v := range exportRow(s) {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		row++
	}

	// Totals row below the data.
	row++
	totalCell, _ := excelize.CoordinatesToCellName(1, row)
	_ = f.SetCellValue(sheet, totalCell, "Total")
	kwhCell, _ := excelize.CoordinatesToCellName(8, row)
	_ = f.SetCellValue(sheet, kwhCell, stats.TotalKwh)
	amountCell, _ := excelize.CoordinatesToCellName(10, row)
	_ = f.SetCellValue(sheet, amountCell, stats.TotalAmount)

	_ = f.SetColWidth(sheet, "B", "C", 18)
	_ = f.SetColWidth(sheet, "E", "J", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	g.logger.Info("xlsx report generated",
		zap.String("year_month", yearMonth),
		zap.Int("rows", len(sessions)),
	)
	return buf.Bytes(), nil
}

func exportRow(s models.ChargingSession) []string {
	finished := ""
	if s.FinishedAt != nil {
		finished = s.FinishedAt.Format(time.DateTime)
	}
	return []string{
		fmt.Sprintf("%d", s.ID),
		s.StartedAt.Format(time.DateTime),
		finished,
		string(s.State),
		formatOpt(s.MeterBefore, 1),
		formatOpt(s.MeterAfter, 1),
		formatOpt(s.KwhDisplay, 2),
		formatOpt(s.KwhAgreed, 2),
		formatOpt(s.TariffValue, 2),
		formatOpt(s.AmountUAH, 2),
	}
}

func formatOpt(v *float64, decimals int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.*f", decimals, *v)
}
