// Package journal records blob placements which are owed to the object
// store. An entry is written before the transaction registering an object
// commits, and cleared once the blob has been placed; any entry surviving a
// crash therefore describes a committed (or rolled back) object whose blob
// may still be sat at its source path.
package journal

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketPlacements = []byte("placements")

type (
	Kind string

	Entry struct {
		ID         string    `json:"id"`
		Source     string    `json:"source"`
		Kind       Kind      `json:"kind"`
		RecordedAt time.Time `json:"recorded_at"`
	}

	Journal struct {
		db *bolt.DB
	}
)

const (
	KindVideo Kind = "video"
	KindCover Kind = "cover"
)

// Open opens (or creates) the journal database at the path given.
func Open(path string) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create journal directory: %w", err)
		}
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketPlacements)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal bucket: %w", err)
	}

	return &Journal{db: db}, nil
}

func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}

	return j.db.Close()
}

// Record persists all of the entries provided in a single bbolt transaction.
// Recording an entry for an ID already present replaces it.
func (j *Journal) Record(entries ...Entry) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketPlacements)
		for _, entry := range entries {
			if entry.RecordedAt.IsZero() {
				entry.RecordedAt = time.Now().UTC()
			}

			data, err := json.Marshal(entry)
			if err != nil {
				return fmt.Errorf("marshal journal entry %s: %w", entry.ID, err)
			}
			if err := bucket.Put([]byte(entry.ID), data); err != nil {
				return fmt.Errorf("store journal entry %s: %w", entry.ID, err)
			}
		}

		return nil
	})
}

// Clear removes the entries for the IDs given. Clearing an ID which
// has no entry is not an error.
func (j *Journal) Clear(ids ...string) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketPlacements)
		for _, id := range ids {
			if err := bucket.Delete([]byte(id)); err != nil {
				return fmt.Errorf("clear journal entry %s: %w", id, err)
			}
		}

		return nil
	})
}

// List returns all outstanding entries, oldest first.
func (j *Journal) List() ([]Entry, error) {
	entries := make([]Entry, 0)
	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPlacements).ForEach(func(_, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshal journal entry: %w", err)
			}

			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(entries, func(a, b int) bool { return entries[a].RecordedAt.Before(entries[b].RecordedAt) })
	return entries, nil
}

// Has returns true if an entry exists for the ID given.
func (j *Journal) Has(id string) (bool, error) {
	var exists bool
	err := j.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(bucketPlacements).Get([]byte(id)) != nil
		return nil
	})

	return exists, err
}
