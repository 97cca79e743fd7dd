// Package repair completes the placements that ingestion committed to the
// database but could not move in to the object store.
package repair

import (
	"context"
	"fmt"
	"sort"

	"github.com/hbomb79/Stash/internal/database"
	"github.com/hbomb79/Stash/internal/journal"
	"github.com/hbomb79/Stash/pkg/logger"
)

var log = logger.Get("Repair")

type (
	Catalog interface {
		ObjectExists(db database.Queryable, id string) (bool, error)
		AllObjectNames(db database.Queryable) (map[string]string, error)
	}

	ObjectStore interface {
		Place(src string, id string) error
		Has(id string) (bool, error)
	}

	Journal interface {
		List() ([]journal.Entry, error)
		Clear(ids ...string) error
		Has(id string) (bool, error)
	}

	Service struct {
		db      database.Beginner
		catalog Catalog
		objects ObjectStore
		journal Journal
	}

	// Result contains the outcome of a repair run.
	Result struct {
		Scanned  int
		Placed   int
		Dropped  int
		Failures map[string]error
	}

	// Finding is an object which is registered in the database, but has no
	// blob in the store and no placement pending in the journal. These cannot
	// be repaired automatically.
	Finding struct {
		ID       string
		Filename string
	}
)

func New(db database.Beginner, catalog Catalog, objects ObjectStore, placements Journal) *Service {
	return &Service{db: db, catalog: catalog, objects: objects, journal: placements}
}

// Run retries every placement recorded in the journal. Entries whose object
// was committed are placed (re-deriving the destination from the id) and then
// cleared; entries whose object does not exist belong to a registration which
// never committed, and are dropped. Entries which fail to place again are
// kept, and reported in the result.
//
// Run must not be performed while an ingestion is in progress.
func (service *Service) Run(ctx context.Context) (*Result, error) {
	entries, err := service.journal.List()
	if err != nil {
		return nil, fmt.Errorf("list placement journal: %w", err)
	}

	result := &Result{Scanned: len(entries), Failures: make(map[string]error)}
	if len(entries) == 0 {
		log.Emit(logger.INFO, "Placement journal is empty, nothing to repair\n")
		return result, nil
	}

	committed := make(map[string]bool, len(entries))
	err = database.WithTransaction(ctx, service.db, database.Manual, func(conn *database.Conn) error {
		for _, entry := range entries {
			exists, err := service.catalog.ObjectExists(conn, entry.ID)
			if err != nil {
				return err
			}
			committed[entry.ID] = exists
		}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("check journaled objects: %w", err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if !committed[entry.ID] {
			log.Emit(logger.REMOVE, "Dropping placement of %s %s, as it was never committed\n", entry.Kind, entry.ID)
			if err := service.journal.Clear(entry.ID); err != nil {
				return result, err
			}
			result.Dropped++
			continue
		}

		if err := service.objects.Place(entry.Source, entry.ID); err != nil {
			log.Emit(logger.ERROR, "Failed to place %s %s from %s: %v\n", entry.Kind, entry.ID, entry.Source, err)
			result.Failures[entry.ID] = err
			continue
		}

		if err := service.journal.Clear(entry.ID); err != nil {
			return result, err
		}
		log.Emit(logger.SUCCESS, "Placed %s %s\n", entry.Kind, entry.ID)
		result.Placed++
	}

	log.Emit(logger.INFO, "Repair complete: scanned=%d placed=%d dropped=%d failed=%d\n",
		result.Scanned, result.Placed, result.Dropped, len(result.Failures))
	return result, nil
}

// Audit lists the objects registered in the database which have no blob in
// the store, and no pending placement in the journal. Findings are ordered by id.
func (service *Service) Audit(ctx context.Context) ([]Finding, error) {
	var names map[string]string
	err := database.WithTransaction(ctx, service.db, database.Manual, func(conn *database.Conn) (err error) {
		names, err = service.catalog.AllObjectNames(conn)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}

	findings := make([]Finding, 0)
	for id, filename := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if has, err := service.objects.Has(id); err != nil {
			return nil, err
		} else if has {
			continue
		}

		if pending, err := service.journal.Has(id); err != nil {
			return nil, err
		} else if pending {
			continue
		}

		log.Emit(logger.WARNING, "Object %s (%s) is missing from the store\n", id, filename)
		findings = append(findings, Finding{ID: id, Filename: filename})
	}

	sort.Slice(findings, func(i, j int) bool { return findings[i].ID < findings[j].ID })
	return findings, nil
}
