// Package index maintains the in-memory deduplication index: a
// projection of the object rows which have been durably committed.
package index

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hbomb79/Stash/internal/database"
	"github.com/hbomb79/Stash/pkg/logger"
)

var (
	log = logger.Get("Index")

	ErrNotLoaded = errors.New("deduplication index has not been loaded")
)

type (
	// Source provides the full set of object IDs (and their filenames)
	// currently committed to the store.
	Source interface {
		AllObjectNames(db database.Queryable) (map[string]string, error)
	}

	// Index maps object IDs to the filename they were ingested as. Entries
	// are only ever added after the object has been committed, and so the
	// index never contains content which could later be rolled back.
	Index struct {
		mu      sync.RWMutex
		entries map[string]string
		loaded  bool
	}
)

func New() *Index {
	return &Index{entries: make(map[string]string)}
}

// Load performs a full scan of the object records to populate the index. It
// must be called before Lookup. Calling Load again discards the existing
// entries; see Refresh.
func (idx *Index) Load(ctx context.Context, db database.Beginner, source Source) (err error) {
	conn, err := db.Begin(ctx, database.Manual)
	if err != nil {
		return fmt.Errorf("failed to open connection for index load: %w", err)
	}
	// Read-only, so leaving the scope without a commit is harmless
	defer func() {
		if closeErr := conn.Close(err); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	names, err := source.AllObjectNames(conn)
	if err != nil {
		return fmt.Errorf("failed to load deduplication index: %w", err)
	}

	idx.mu.Lock()
	idx.entries = names
	idx.loaded = true
	idx.mu.Unlock()

	log.Emit(logger.DEBUG, "Loaded %d object(s) in to deduplication index\n", len(names))
	return nil
}

// Refresh wholesale reloads the index from the source. It is used whenever
// the index is suspected to have drifted from the database, for example after
// an insert is rejected because the object already exists.
func (idx *Index) Refresh(ctx context.Context, db database.Beginner, source Source) error {
	log.Emit(logger.INFO, "Refreshing deduplication index\n")
	return idx.Load(ctx, db, source)
}

// Lookup returns the filename the object was ingested as, and whether the
// object is present in the index at all.
func (idx *Index) Lookup(id string) (string, bool, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.loaded {
		return "", false, ErrNotLoaded
	}

	name, ok := idx.entries[id]
	return name, ok, nil
}

// Record adds an entry to the index. Callers must only record an object
// once the transaction which inserted it has been committed.
func (idx *Index) Record(id string, filename string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries[id] = filename
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return len(idx.entries)
}
