package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"evcharge/internal/models"
)

const (
	sessionsBucket = "sessions"
	tariffsBucket  = "tariffs"
)

// Bolt is a single-file store for deployments without Postgres. Sessions are
// stored as JSON keyed by big-endian id so bucket order equals id order.
type Bolt struct {
	db *bbolt.DB
}

// NewBolt opens (or creates) the database file.
func NewBolt(path string) (*Bolt, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(sessionsBucket)); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists([]byte(tariffsBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Bolt{db: db}, nil
}

// Close closes the underlying file.
func (b *Bolt) Close() error {
	return b.db.Close()
}

func sessionKey(id int64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, uint64(id))
	return key
}

func (b *Bolt) Create(ctx context.Context, ownerID int64) (*models.ChargingSession, error) {
	var session *models.ChargingSession
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionsBucket))
		seq, err := bucket.NextSequence()
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		session = &models.ChargingSession{
			ID:        int64(seq),
			OwnerID:   ownerID,
			State:     models.StateStarted,
			Photos:    []models.Photo{},
			StartedAt: now,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return putSession(bucket, session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (b *Bolt) Get(ctx context.Context, id int64) (*models.ChargingSession, error) {
	var session *models.ChargingSession
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(sessionsBucket)).Get(sessionKey(id))
		if data == nil {
			return ErrSessionNotFound
		}
		return json.Unmarshal(data, &session)
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (b *Bolt) GetOpenByOwner(ctx context.Context, ownerID int64) (*models.ChargingSession, error) {
	var latest *models.ChargingSession
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).ForEach(func(k, v []byte) error {
			var s models.ChargingSession
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			if s.OwnerID == ownerID && s.Open() {
				latest = &s
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if latest == nil {
		return nil, ErrSessionNotFound
	}
	return latest, nil
}

func (b *Bolt) Update(ctx context.Context, session *models.ChargingSession) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionsBucket))
		if bucket.Get(sessionKey(session.ID)) == nil {
			return ErrSessionNotFound
		}
		updated := session.Clone()
		updated.UpdatedAt = time.Now().UTC()
		return putSession(bucket, updated)
	})
}

func (b *Bolt) ListByMonth(ctx context.Context, ownerID int64, yearMonth string) ([]models.ChargingSession, error) {
	var out []models.ChargingSession
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).ForEach(func(k, v []byte) error {
			var s models.ChargingSession
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			if s.OwnerID == ownerID && s.StartedAt.Format("2006-01") == yearMonth {
				out = append(out, s)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (b *Bolt) ListByOwner(ctx context.Context, ownerID int64, limit int) ([]models.ChargingSession, error) {
	var out []models.ChargingSession
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(sessionsBucket)).ForEach(func(k, v []byte) error {
			var s models.ChargingSession
			if err := json.Unmarshal(v, &s); err != nil {
				return fmt.Errorf("decode session: %w", err)
			}
			if s.OwnerID == ownerID {
				out = append(out, s)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func putSession(bucket *bbolt.Bucket, session *models.ChargingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return bucket.Put(sessionKey(session.ID), data)
}

// BoltTariffs implements TariffStore over the same bolt file.
type BoltTariffs struct {
	db *bbolt.DB
}

// NewBoltTariffs shares the session store's file.
func NewBoltTariffs(b *Bolt) *BoltTariffs {
	return &BoltTariffs{db: b.db}
}

func (b *BoltTariffs) Upsert(ctx context.Context, tariff *models.Tariff) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		tariff.UpdatedAt = time.Now().UTC()
		data, err := json.Marshal(tariff)
		if err != nil {
			return fmt.Errorf("encode tariff: %w", err)
		}
		return tx.Bucket([]byte(tariffsBucket)).Put([]byte(tariff.YearMonth), data)
	})
}

func (b *BoltTariffs) Get(ctx context.Context, yearMonth string) (*models.Tariff, error) {
	var tariff *models.Tariff
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(tariffsBucket)).Get([]byte(yearMonth))
		if data == nil {
			return ErrTariffNotFound
		}
		return json.Unmarshal(data, &tariff)
	})
	if err != nil {
		return nil, err
	}
	return tariff, nil
}

func (b *BoltTariffs) List(ctx context.Context) ([]models.Tariff, error) {
	var out []models.Tariff
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(tariffsBucket)).ForEach(func(k, v []byte) error {
			var t models.Tariff
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("decode tariff: %w", err)
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].YearMonth > out[j].YearMonth })
	return out, nil
}
