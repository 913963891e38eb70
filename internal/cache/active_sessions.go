// Package cache keeps a redis snapshot of each owner's open session for quick
// status answers without a store round trip. Optional: the session service
// works with a nil cache.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"evcharge/internal/models"
)

// ActiveSession is the redis payload, a slim view of the open session.
type ActiveSession struct {
	SessionID int64               `json:"session_id"`
	OwnerID   int64               `json:"owner_id"`
	State     models.SessionState `json:"state"`
	StartedAt time.Time           `json:"started_at"`
	Photos    int                 `json:"photos"`
}

// Store manages the active-session cache.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

// NewStore returns a redis-backed store.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	return &Store{client: client, ttl: ttl}
}

func (s *Store) key(ownerID int64) string {
	return fmt.Sprintf("evcharge:active:%d", ownerID)
}

// Save caches the owner's open session.
func (s *Store) Save(ctx context.Context, session *models.ChargingSession) error {
	data, err := json.Marshal(ActiveSession{
		SessionID: session.ID,
		OwnerID:   session.OwnerID,
		State:     session.State,
		StartedAt: session.StartedAt,
		Photos:    len(session.Photos),
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.OwnerID), data, s.ttl).Err()
}

// Get returns the cached snapshot, redis.Nil when absent.
func (s *Store) Get(ctx context.Context, ownerID int64) (*ActiveSession, error) {
	result, err := s.client.Get(ctx, s.key(ownerID)).Result()
	if err != nil {
		return nil, err
	}
	var session ActiveSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete drops the snapshot once the session completes.
func (s *Store) Delete(ctx context.Context, ownerID int64) error {
	return s.client.Del(ctx, s.key(ownerID)).Err()
}
