package duplicate

import (
	"context"
	"fmt"
	"time"

	"go.etcd.io/bbolt"
)

const bucketName = "fingerprints"

// BoltStore persists fingerprints in a BoltDB file so duplicates are caught
// across restarts
type BoltStore struct {
	db  *bbolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewBoltStore opens (or creates) the database at path
func NewBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating bucket: %w", err)
	}

	return &BoltStore{db: db, ttl: ttl, now: time.Now}, nil
}

// CheckAndAdd runs inside a single read-write transaction; bbolt serializes writers
func (b *BoltStore) CheckAndAdd(_ context.Context, fingerprint string) (bool, error) {
	seen := false
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		key := []byte(fingerprint)
		now := b.now()

		if data := bucket.Get(key); data != nil {
			var firstSeen time.Time
			if err := firstSeen.UnmarshalBinary(data); err != nil {
				return fmt.Errorf("decoding entry for %s: %w", fingerprint, err)
			}
			if !b.expired(firstSeen, now) {
				seen = true
				return nil
			}
		}

		data, err := now.MarshalBinary()
		if err != nil {
			return fmt.Errorf("encoding entry: %w", err)
		}
		return bucket.Put(key, data)
	})
	if err != nil {
		return false, err
	}
	return seen, nil
}

// Prune deletes expired fingerprints and returns how many were removed
func (b *BoltStore) Prune(ctx context.Context) (int, error) {
	if b.ttl <= 0 {
		return 0, nil
	}
	removed := 0
	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		now := b.now()

		var stale [][]byte
		err := bucket.ForEach(func(k, v []byte) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var firstSeen time.Time
			if err := firstSeen.UnmarshalBinary(v); err != nil || b.expired(firstSeen, now) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range stale {
			if err := bucket.Delete(k); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("pruning fingerprints: %w", err)
	}
	return removed, nil
}

func (b *BoltStore) expired(firstSeen, now time.Time) bool {
	return b.ttl > 0 && now.Sub(firstSeen) >= b.ttl
}

// Close closes the database connection
func (b *BoltStore) Close() error {
	return b.db.Close()
}
