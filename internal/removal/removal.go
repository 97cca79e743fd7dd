// Package removal deletes a video from the catalog, optionally restoring
// its content to the pending directory so that it may be re-ingested.
package removal

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/hbomb79/Stash/internal/catalog"
	"github.com/hbomb79/Stash/internal/database"
	"github.com/hbomb79/Stash/pkg/logger"
)

var (
	log = logger.Get("Removal")

	ErrAborted = errors.New("removal aborted")
)

type (
	Catalog interface {
		GetObject(db database.Queryable, id string) (*catalog.Object, error)
		GetVideo(db database.Queryable, id string) (*catalog.Video, error)
		CoverReferences(db database.Queryable, coverID string) (int, error)
		DeleteVideo(db database.Queryable, id string) error
		DeleteObject(db database.Queryable, id string) error
	}

	ObjectStore interface {
		Place(src string, id string) error
		Relocate(id string, dest string) error
		Remove(id string) error
	}

	// Confirmer is asked to approve each removal before anything is changed.
	Confirmer interface {
		Confirm(prompt string) (bool, error)
	}

	Options struct {
		// Restore moves the content of the video back to the pending
		// directory instead of deleting it.
		Restore bool
	}

	Result struct {
		Object     *catalog.Object
		Video      *catalog.Video
		RestoredTo string

		// CoverShared is the number of other videos using the same cover
		CoverShared int
	}

	Service struct {
		db          database.Beginner
		catalog     Catalog
		objects     ObjectStore
		confirmer   Confirmer
		pendingPath string
	}
)

func New(db database.Beginner, store Catalog, objects ObjectStore, confirmer Confirmer, pendingPath string) *Service {
	return &Service{db: db, catalog: store, objects: objects, confirmer: confirmer, pendingPath: pendingPath}
}

// Remove deletes the video with the given id, and the object holding its
// content. The cover object is always kept, as it may be shared with other
// videos.
//
// When restoring, the blob is moved to '<pending>/<id>-<filename>' before the
// rows are deleted, and moved back in to the store if the deletion fails.
// Otherwise, the blob is deleted from the store once the deletion has
// been committed.
func (service *Service) Remove(ctx context.Context, id string, opts Options) (*Result, error) {
	result := &Result{}
	err := database.WithTransaction(ctx, service.db, database.Manual, func(conn *database.Conn) (err error) {
		if result.Object, err = service.catalog.GetObject(conn, id); err != nil {
			return err
		}
		log.Emit(logger.INFO, "Object found, name: %s\n", result.Object.Filename)

		if result.Video, err = service.catalog.GetVideo(conn, id); err != nil {
			return err
		}
		log.Emit(logger.INFO, "Video found, cover %s\n", result.Video.CoverID)

		refs, err := service.catalog.CoverReferences(conn, result.Video.CoverID)
		if err != nil {
			return err
		}
		result.CoverShared = refs - 1
		return nil
	})
	if err != nil {
		return nil, err
	}

	prompt := fmt.Sprintf("Remove video %s (%s)?", id, result.Object.Filename)
	if opts.Restore {
		prompt = fmt.Sprintf("Remove video %s (%s), restoring it to %s?", id, result.Object.Filename, service.pendingPath)
	}
	if ok, err := service.confirmer.Confirm(prompt); err != nil {
		return nil, fmt.Errorf("confirmation failed: %w", err)
	} else if !ok {
		return nil, ErrAborted
	}

	if opts.Restore {
		dest := filepath.Join(service.pendingPath, fmt.Sprintf("%s-%s", id, result.Object.Filename))
		log.Emit(logger.INFO, "Restoring %s -> %s\n", id, dest)
		if err := service.objects.Relocate(id, dest); err != nil {
			return nil, err
		}
		result.RestoredTo = dest
	}

	if err := service.delete(ctx, id); err != nil {
		if result.RestoredTo != "" {
			if placeErr := service.objects.Place(result.RestoredTo, id); placeErr != nil {
				log.Emit(logger.ERROR, "Failed to return %s to the store after failed removal: %v\n", result.RestoredTo, placeErr)
				return nil, errors.Join(err, placeErr)
			}
		}

		return nil, err
	}

	if !opts.Restore {
		if err := service.objects.Remove(id); err != nil {
			log.Emit(logger.WARNING, "Video %s removed from catalog, but its blob could not be deleted: %v\n", id, err)
			return result, err
		}
	}

	log.Emit(logger.REMOVE, "Removed video %s (%s)\n", id, result.Object.Filename)
	return result, nil
}

func (service *Service) delete(ctx context.Context, id string) error {
	return database.WithTransaction(ctx, service.db, database.Manual, func(conn *database.Conn) error {
		log.Emit(logger.DEBUG, "Deleting %s from database\n", id)
		if err := service.catalog.DeleteVideo(conn, id); err != nil {
			return err
		}

		if err := service.catalog.DeleteObject(conn, id); err != nil {
			return err
		}

		return conn.Commit(false)
	})
}
