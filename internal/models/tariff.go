package models

import "time"

// Tariff describes the price per kWh for one calendar month.
// YearMonth is always formatted YYYY-MM and unique per store.
type Tariff struct {
	YearMonth      string    `json:"year_month"`
	PriceUAHPerKwh float64   `json:"price_uah_per_kwh"`
	SourceNote     string    `json:"source_note"`
	UpdatedAt      time.Time `json:"updated_at"`
}
