// Package catalog holds the relational records describing the
// contents of the object store.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"github.com/hbomb79/Stash/internal/database"
)

var (
	ErrObjectNotFound = errors.New("object does not exist")
	ErrVideoNotFound  = errors.New("video does not exist")
)

type (
	// Object is a content-addressed record. A row exists if and only if
	// the blob it describes exists in the object store.
	Object struct {
		ID       string
		Filename string
		ModTime  time.Time
		Size     int64
	}

	// Video references the Object holding the video content, and the
	// Object holding its cover image.
	Video struct {
		ID       string
		CoverID  string
		Duration int
		Tags     []string
	}

	Store struct{}
)

func NewStore() *Store { return &Store{} }

func (store *Store) InsertObject(db database.Queryable, object *Object) error {
	_, err := db.Insert("objects", map[string]any{
		"id":       object.ID,
		"filename": object.Filename,
		"mtime":    object.ModTime.UTC().Truncate(time.Second),
		"fsize":    object.Size,
	})
	if err != nil {
		return fmt.Errorf("failed to insert object %s: %w", object.ID, err)
	}

	return nil
}

// InsertVideo inserts the video row. Both the video and cover objects are
// expected to already exist, as the foreign keys will otherwise reject the row.
func (store *Store) InsertVideo(db database.Queryable, video *Video) error {
	tags := video.Tags
	if tags == nil {
		tags = []string{}
	}

	_, err := db.Insert("videos", map[string]any{
		"id":        video.ID,
		"coverid":   video.CoverID,
		"videotime": video.Duration,
		"tags":      database.NewJsonColumn(tags),
	})
	if err != nil {
		return fmt.Errorf("failed to insert video %s: %w", video.ID, err)
	}

	return nil
}

// AllObjectNames performs a full scan of the objects table, returning
// a mapping of every object ID to its filename.
func (store *Store) AllObjectNames(db database.Queryable) (map[string]string, error) {
	rows, err := db.Query(`SELECT id, filename FROM objects`, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}

	names := make(map[string]string, len(rows))
	for _, row := range rows {
		names[row.String("id")] = row.String("filename")
	}

	return names, nil
}

func (store *Store) GetObject(db database.Queryable, id string) (*Object, error) {
	row, ok, err := db.QueryOne(`SELECT id, filename, mtime, fsize FROM objects WHERE id=?`, []any{id})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", id, err)
	} else if !ok {
		return nil, ErrObjectNotFound
	}

	return &Object{
		ID:       row.String("id"),
		Filename: row.String("filename"),
		ModTime:  row.Time("mtime"),
		Size:     row.Int64("fsize"),
	}, nil
}

func (store *Store) ObjectExists(db database.Queryable, id string) (bool, error) {
	_, ok, err := db.QueryOne(`SELECT id FROM objects WHERE id=?`, []any{id})
	if err != nil {
		return false, fmt.Errorf("failed to check object %s: %w", id, err)
	}

	return ok, nil
}

func (store *Store) GetVideo(db database.Queryable, id string) (*Video, error) {
	row, ok, err := db.QueryOne(`SELECT id, coverid, videotime, tags FROM videos WHERE id=?`, []any{id})
	if err != nil {
		return nil, fmt.Errorf("failed to get video %s: %w", id, err)
	} else if !ok {
		return nil, ErrVideoNotFound
	}

	var tags database.JsonColumn[[]string]
	if err := tags.Scan(row.String("tags")); err != nil {
		return nil, fmt.Errorf("video %s has malformed tags: %w", id, err)
	}

	return &Video{
		ID:       row.String("id"),
		CoverID:  row.String("coverid"),
		Duration: int(row.Int64("videotime")),
		Tags:     *tags.Get(),
	}, nil
}

// CoverReferences returns the number of videos which use the object
// provided as their cover.
func (store *Store) CoverReferences(db database.Queryable, coverID string) (int, error) {
	row, _, err := db.QueryOne(`SELECT COUNT(*) AS refs FROM videos WHERE coverid=?`, []any{coverID})
	if err != nil {
		return 0, fmt.Errorf("failed to count references to cover %s: %w", coverID, err)
	}

	return int(row.Int64("refs")), nil
}

// DeleteVideo removes the video row. This must happen before the object
// it references is removed.
func (store *Store) DeleteVideo(db database.Queryable, id string) error {
	if _, err := db.Execute(`DELETE FROM videos WHERE id=?`, []any{id}); err != nil {
		return fmt.Errorf("failed to delete video %s: %w", id, err)
	}

	return nil
}

func (store *Store) DeleteObject(db database.Queryable, id string) error {
	if _, err := db.Execute(`DELETE FROM objects WHERE id=?`, []any{id}); err != nil {
		return fmt.Errorf("failed to delete object %s: %w", id, err)
	}

	return nil
}
