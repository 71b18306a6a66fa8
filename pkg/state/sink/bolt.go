package sink

import (
	"context"
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"
)

// Bolt persists snapshots in a bbolt bucket, one key per dot path with a
// JSON-encoded value. Each save replaces the bucket wholesale.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
}

// NewBolt creates a bolt sink on an open database.
func NewBolt(db *bolt.DB, bucket string) *Bolt {
	return &Bolt{db: db, bucket: []byte(bucket)}
}

// Save replaces the bucket with the snapshot.
func (b *Bolt) Save(_ context.Context, snapshot map[string]any) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(b.bucket) != nil {
			if err := tx.DeleteBucket(b.bucket); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket(b.bucket)
		if err != nil {
			return err
		}
		for path, value := range snapshot {
			data, err := json.Marshal(value)
			if err != nil {
				return fmt.Errorf("encode %q: %w", path, err)
			}
			if err := bucket.Put([]byte(path), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load reads the last snapshot. A missing bucket is an empty snapshot.
func (b *Bolt) Load(_ context.Context) (map[string]any, error) {
	snapshot := make(map[string]any)
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(b.bucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var value any
			if err := json.Unmarshal(v, &value); err != nil {
				return fmt.Errorf("decode %q: %w", k, err)
			}
			snapshot[string(k)] = value
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}
