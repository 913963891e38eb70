package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"evcharge/internal/models"
)

// Memory is the in-process fallback store for environments without a durable
// backend. It honors the same contract as the Postgres and bbolt stores.
type Memory struct {
	mu       sync.Mutex
	sessions map[int64]*models.ChargingSession
	nextID   int64
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{sessions: make(map[int64]*models.ChargingSession)}
}

func (m *Memory) Create(ctx context.Context, ownerID int64) (*models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	now := time.Now().UTC()
	session := &models.ChargingSession{
		ID:        m.nextID,
		OwnerID:   ownerID,
		State:     models.StateStarted,
		Photos:    []models.Photo{},
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.sessions[session.ID] = session
	return session.Clone(), nil
}

func (m *Memory) Get(ctx context.Context, id int64) (*models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return session.Clone(), nil
}

func (m *Memory) GetOpenByOwner(ctx context.Context, ownerID int64) (*models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var latest *models.ChargingSession
	for _, s := range m.sessions {
		if s.OwnerID != ownerID || !s.Open() {
			continue
		}
		if latest == nil || s.ID > latest.ID {
			latest = s
		}
	}
	if latest == nil {
		return nil, ErrSessionNotFound
	}
	return latest.Clone(), nil
}

func (m *Memory) Update(ctx context.Context, session *models.ChargingSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[session.ID]; !ok {
		return ErrSessionNotFound
	}
	updated := session.Clone()
	updated.UpdatedAt = time.Now().UTC()
	m.sessions[session.ID] = updated
	return nil
}

func (m *Memory) ListByMonth(ctx context.Context, ownerID int64, yearMonth string) ([]models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChargingSession
	for _, s := range m.sessions {
		if s.OwnerID == ownerID && s.StartedAt.Format("2006-01") == yearMonth {
			out = append(out, *s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *Memory) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]models.ChargingSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []models.ChargingSession
	for _, s := range m.sessions {
		if s.OwnerID == ownerID {
			out = append(out, *s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MemoryTariffs is the in-process TariffStore counterpart of Memory.
type MemoryTariffs struct {
	mu      sync.Mutex
	tariffs map[string]models.Tariff
}

// NewMemoryTariffs returns an empty tariff store.
func NewMemoryTariffs() *MemoryTariffs {
	return &MemoryTariffs{tariffs: make(map[string]models.Tariff)}
}

func (m *MemoryTariffs) Upsert(ctx context.Context, tariff *models.Tariff) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := *tariff
	t.UpdatedAt = time.Now().UTC()
	m.tariffs[t.YearMonth] = t
	return nil
}

func (m *MemoryTariffs) Get(ctx context.Context, yearMonth string) (*models.Tariff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tariffs[yearMonth]
	if !ok {
		return nil, ErrTariffNotFound
	}
	return &t, nil
}

func (m *MemoryTariffs) List(ctx context.Context) ([]models.Tariff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]models.Tariff, 0, len(m.tariffs))
	for _, t := range m.tariffs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth > out[j].YearMonth })
	return out, nil
}
