// Package storage defines the persistence port for sessions and tariffs.
// Core logic depends only on these interfaces; the backend (Postgres, bbolt,
// in-memory) is selected once at startup.
package storage

import (
	"context"
	"errors"

	"evcharge/internal/models"
)

var (
	ErrSessionNotFound = errors.New("storage: session not found")
	ErrTariffNotFound  = errors.New("storage: tariff not found")
)

// SessionStore persists charging sessions. Ids are assigned by the store and
// increase monotonically. GetOpenByOwner returns ErrSessionNotFound when the
// owner has no open (non-completed) session.
type SessionStore interface {
	Create(ctx context.Context, ownerID int64) (*models.ChargingSession, error)
	Get(ctx context.Context, id int64) (*models.ChargingSession, error)
	GetOpenByOwner(ctx context.Context, ownerID int64) (*models.ChargingSession, error)
	Update(ctx context.Context, session *models.ChargingSession) error
	// ListByMonth returns the owner's sessions started in the given YYYY-MM
	// month, oldest first.
	ListByMonth(ctx context.Context, ownerID int64, yearMonth string) ([]models.ChargingSession, error)
	// ListByOwner returns the owner's latest sessions, newest first.
	ListByOwner(ctx context.Context, ownerID int64, limit int) ([]models.ChargingSession, error)
}

// TariffStore persists monthly tariffs keyed by YYYY-MM.
type TariffStore interface {
	Upsert(ctx context.Context, tariff *models.Tariff) error
	Get(ctx context.Context, yearMonth string) (*models.Tariff, error)
	// List returns all tariffs, newest month first.
	List(ctx context.Context) ([]models.Tariff, error)
}
