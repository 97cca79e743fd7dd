package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hbomb79/Stash/internal/catalog"
	"github.com/hbomb79/Stash/internal/database"
	"github.com/hbomb79/Stash/internal/journal"
	"github.com/hbomb79/Stash/pkg/logger"
)

// register records the item in the database and then places its blobs in
// the object store. Registration is serialised across all workers, such that
// the index check, transaction, placement and index update for one item can
// never interleave with another.
func (service *Service) register(ctx context.Context, item *Item) {
	service.registration.Lock()
	defer service.registration.Unlock()

	err := service.registerLocked(ctx, item)
	if err != nil && database.IsUniqueViolation(err) {
		// The index has drifted from the database (e.g. another process
		// ingested the same content). Refresh and try once more, which will
		// now either skip the item, or reuse the existing cover.
		log.Emit(logger.WARNING, "Registration of %s conflicted with an existing object, refreshing index and retrying\n", item.Path)
		if err = service.index.Refresh(ctx, service.db, service.catalog); err == nil {
			err = service.registerLocked(ctx, item)
		}
	}

	if err != nil {
		item.discardCover()
		item.setTrouble(newTrouble(REGISTRATION_FAILURE, err))
		log.Emit(logger.WARNING, "Registration of %s (item %s) rolled back: %v\n", item.Path, item.ID, err)
	}
}

// registerLocked performs the registration of a single item. Any error
// returned occurred before (or during) the commit of the transaction, and
// therefore nothing has been moved.
//
// Note: the caller must hold the registration mutex
func (service *Service) registerLocked(ctx context.Context, item *Item) error {
	videoID, coverID := item.Digest.ID, item.Cover.ID
	if name, ok, err := service.index.Lookup(videoID); err != nil {
		return err
	} else if ok {
		item.State = DUPLICATE_SKIPPED
		item.discardCover()
		log.Emit(logger.INFO, "[Skipped] %s already exists as %s (hash %s)\n", item.Path, name, videoID)
		return nil
	}

	_, coverReused, err := service.index.Lookup(coverID)
	if err != nil {
		return err
	}
	item.coverReused = coverReused
	if coverReused {
		log.Emit(logger.INFO, "[Reused] Cover %s for %s already exists\n", coverID, item.Path)
	}

	coverInfo, err := os.Stat(item.Cover.Path)
	if err != nil {
		return fmt.Errorf("failed to stat cover %s: %w", item.Cover.Path, err)
	}

	entries := []journal.Entry{{ID: videoID, Source: item.Path, Kind: journal.KindVideo}}
	if !coverReused {
		entries = append(entries, journal.Entry{ID: coverID, Source: item.Cover.Path, Kind: journal.KindCover})
	}

	item.State = REGISTERING
	err = database.WithTransaction(ctx, service.db, database.Manual, func(conn *database.Conn) error {
		if err := service.catalog.InsertObject(conn, &catalog.Object{
			ID:       videoID,
			Filename: item.Name,
			ModTime:  item.ModTime,
			Size:     item.Digest.Size,
		}); err != nil {
			return err
		}

		if !coverReused {
			if err := service.catalog.InsertObject(conn, &catalog.Object{
				ID:       coverID,
				Filename: item.coverName(),
				ModTime:  coverInfo.ModTime(),
				Size:     item.Cover.Size,
			}); err != nil {
				return err
			}
		}

		if err := service.catalog.InsertVideo(conn, &catalog.Video{
			ID:       videoID,
			CoverID:  coverID,
			Duration: item.Duration,
			Tags:     item.Tags,
		}); err != nil {
			return err
		}

		if err := service.placements.Record(entries...); err != nil {
			return fmt.Errorf("failed to journal placements: %w", err)
		}

		// Should the commit fail, the outcome is uncertain and so the journal
		// entries are left for the repair pass to reconcile.
		return conn.Commit(false)
	})
	if err != nil {
		return err
	}

	service.place(item, entries)
	return nil
}

// place moves the blobs of a committed item in to the object store. A failure
// here cannot be rolled back, and so is reported as a PLACEMENT_FAILURE; the
// journal entries for the failed blobs are kept for the repair pass.
func (service *Service) place(item *Item, entries []journal.Entry) {
	placed := make([]journal.Entry, 0, len(entries))
	var placementErr error
	for _, entry := range entries {
		if err := service.objects.Place(entry.Source, entry.ID); err != nil {
			placementErr = errors.Join(placementErr, fmt.Errorf("%s %s: %w", entry.Kind, entry.ID, err))
			continue
		}

		placed = append(placed, entry)
	}

	if item.coverReused {
		item.discardCover()
	}
	service.clearJournal(placed)

	service.index.Record(item.Digest.ID, item.Name)
	if !item.coverReused {
		service.index.Record(item.Cover.ID, item.coverName())
	}

	if placementErr != nil {
		item.Trouble = newTrouble(PLACEMENT_FAILURE, placementErr)
		item.State = TROUBLED
		log.Emit(logger.ERROR, "Committed %s but failed to move it in to the object store (run 'stash repair' to complete): %v\n", item.Path, placementErr)
		return
	}

	item.State = PLACED
	log.Emit(logger.SUCCESS, "Done. New video added: %s (hash %s, %ds)\n", item.Name, item.Digest.ID, item.Duration)
}

func (service *Service) clearJournal(entries []journal.Entry) {
	if len(entries) == 0 {
		return
	}

	ids := make([]string, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}

	if err := service.placements.Clear(ids...); err != nil {
		log.Emit(logger.WARNING, "Failed to clear placement journal for %v: %v\n", ids, err)
	}
}
