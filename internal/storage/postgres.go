package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"evcharge/internal/models"
)

// Postgres persists sessions in a sessions table with photos as a JSONB
// column. One canonical schema; no field renaming between backends.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the tables when missing.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS charging_sessions (
			id             BIGSERIAL PRIMARY KEY,
			owner_id       BIGINT NOT NULL,
			state          TEXT NOT NULL,
			meter_before   NUMERIC(10,2),
			meter_after    NUMERIC(10,2),
			kwh_display    NUMERIC(10,2),
			kwh_calculated NUMERIC(10,2),
			kwh_agreed     NUMERIC(10,2),
			tariff_value   NUMERIC(10,2),
			amount_uah     NUMERIC(10,2),
			photos         JSONB NOT NULL DEFAULT '[]',
			started_at     TIMESTAMPTZ NOT NULL,
			finished_at    TIMESTAMPTZ,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_owner_open
			ON charging_sessions (owner_id) WHERE state <> 'completed';
		CREATE TABLE IF NOT EXISTS tariffs (
			year_month        TEXT PRIMARY KEY,
			price_uah_per_kwh NUMERIC(6,2) NOT NULL,
			source_note       TEXT NOT NULL DEFAULT '',
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := p.db.ExecContext(ctx, schema)
	return err
}

const sessionColumns = `id, owner_id, state, meter_before, meter_after, kwh_display,
	kwh_calculated, kwh_agreed, tariff_value, amount_uah, photos,
	started_at, finished_at, created_at, updated_at`

func (p *Postgres) Create(ctx context.Context, ownerID int64) (*models.ChargingSession, error) {
	const query = `
		INSERT INTO charging_sessions (owner_id, state, started_at)
		VALUES ($1, $2, NOW())
		RETURNING ` + sessionColumns
	row := p.db.QueryRowContext(ctx, query, ownerID, models.StateStarted)
	return scanSession(row)
}

func (p *Postgres) Get(ctx context.Context, id int64) (*models.ChargingSession, error) {
	const query = `SELECT ` + sessionColumns + ` FROM charging_sessions WHERE id = $1`
	session, err := scanSession(p.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func (p *Postgres) GetOpenByOwner(ctx context.Context, ownerID int64) (*models.ChargingSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE owner_id = $1 AND state <> 'completed'
		ORDER BY id DESC
		LIMIT 1`
	session, err := scanSession(p.db.QueryRowContext(ctx, query, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	return session, err
}

func (p *Postgres) Update(ctx context.Context, session *models.ChargingSession) error {
	photos, err := json.Marshal(session.Photos)
	if err != nil {
		return fmt.Errorf("encode photos: %w", err)
	}

	const query = `
		UPDATE charging_sessions
		SET state = $2,
		    meter_before = $3,
		    meter_after = $4,
		    kwh_display = $5,
		    kwh_calculated = $6,
		    kwh_agreed = $7,
		    tariff_value = $8,
		    amount_uah = $9,
		    photos = $10,
		    finished_at = $11,
		    updated_at = NOW()
		WHERE id = $1`
	result, err := p.db.ExecContext(ctx, query,
		session.ID,
		session.State,
		nullFloat(session.MeterBefore),
		nullFloat(session.MeterAfter),
		nullFloat(session.KwhDisplay),
		nullFloat(session.KwhCalculated),
		nullFloat(session.KwhAgreed),
		nullFloat(session.TariffValue),
		nullFloat(session.AmountUAH),
		photos,
		nullTime(session.FinishedAt),
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *Postgres) ListByMonth(ctx context.Context, ownerID int64, yearMonth string) ([]models.ChargingSession, error) {
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE owner_id = $1 AND to_char(started_at, 'YYYY-MM') = $2
		ORDER BY started_at ASC`
	return p.querySessions(ctx, query, ownerID, yearMonth)
}

func (p *Postgres) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]models.ChargingSession, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT ` + sessionColumns + `
		FROM charging_sessions
		WHERE owner_id = $1
		ORDER BY id DESC
		LIMIT $2`
	return p.querySessions(ctx, query, ownerID, limit)
}

func (p *Postgres) querySessions(ctx context.Context, query string, args ...any) ([]models.ChargingSession, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []models.ChargingSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sessions, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*models.ChargingSession, error) {
	var (
		s             models.ChargingSession
		meterBefore   sql.NullFloat64
		meterAfter    sql.NullFloat64
		kwhDisplay    sql.NullFloat64
		kwhCalculated sql.NullFloat64
		kwhAgreed     sql.NullFloat64
		tariffValue   sql.NullFloat64
		amountUAH     sql.NullFloat64
		photos        []byte
		finishedAt    sql.NullTime
	)
	if err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.State,
		&meterBefore,
		&meterAfter,
		&kwhDisplay,
		&kwhCalculated,
		&kwhAgreed,
		&tariffValue,
		&amountUAH,
		&photos,
		&s.StartedAt,
		&finishedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}

	s.MeterBefore = floatPtr(meterBefore)
	s.MeterAfter = floatPtr(meterAfter)
	s.KwhDisplay = floatPtr(kwhDisplay)
	s.KwhCalculated = floatPtr(kwhCalculated)
	s.KwhAgreed = floatPtr(kwhAgreed)
	s.TariffValue = floatPtr(tariffValue)
	s.AmountUAH = floatPtr(amountUAH)
	if finishedAt.Valid {
		t := finishedAt.Time
		s.FinishedAt = &t
	}
	if len(photos) > 0 {
		if err := json.Unmarshal(photos, &s.Photos); err != nil {
			return nil, fmt.Errorf("decode photos: %w", err)
		}
	}
	if s.Photos == nil {
		s.Photos = []models.Photo{}
	}
	return &s, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// PostgresTariffs implements TariffStore over the tariffs table.
type PostgresTariffs struct {
	db *sql.DB
}

// NewPostgresTariffs wraps an open pool.
func NewPostgresTariffs(db *sql.DB) *PostgresTariffs {
	return &PostgresTariffs{db: db}
}

func (p *PostgresTariffs) Upsert(ctx context.Context, tariff *models.Tariff) error {
	const query = `
		INSERT INTO tariffs (year_month, price_uah_per_kwh, source_note, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (year_month) DO UPDATE SET
			price_uah_per_kwh = EXCLUDED.price_uah_per_kwh,
			source_note = EXCLUDED.source_note,
			updated_at = NOW()
		RETURNING updated_at`
	return p.db.QueryRowContext(ctx, query,
		tariff.YearMonth, tariff.PriceUAHPerKwh, tariff.SourceNote,
	).Scan(&tariff.UpdatedAt)
}

func (p *PostgresTariffs) Get(ctx context.Context, yearMonth string) (*models.Tariff, error) {
	const query = `
		SELECT year_month, price_uah_per_kwh, source_note, updated_at
		FROM tariffs
		WHERE year_month = $1`
	var t models.Tariff
	err := p.db.QueryRowContext(ctx, query, yearMonth).Scan(
		&t.YearMonth, &t.PriceUAHPerKwh, &t.SourceNote, &t.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTariffNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (p *PostgresTariffs) List(ctx context.Context) ([]models.Tariff, error) {
	const query = `
		SELECT year_month, price_uah_per_kwh, source_note, updated_at
		FROM tariffs
		ORDER BY year_month DESC`
	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tariffs []models.Tariff
	for rows.Next() {
		var t models.Tariff
		if err := rows.Scan(&t.YearMonth, &t.PriceUAHPerKwh, &t.SourceNote, &t.UpdatedAt); err != nil {
			return nil, err
		}
		tariffs = append(tariffs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return tariffs, nil
}
