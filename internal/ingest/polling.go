package ingest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/hbomb79/Stash/pkg/logger"
)

var DefaultExtensions = []string{".mp4"}

// Filter restricts which files discovered on the file system are
// considered for ingestion.
type Filter struct {
	Extensions []string
	VerifyMime bool
}

func (filter Filter) accepts(path string) bool {
	extensions := filter.Extensions
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	ext := filepath.Ext(path)
	matched := false
	for _, allowed := range extensions {
		if strings.EqualFold(ext, allowed) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}

	if !filter.VerifyMime {
		return true
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		log.Emit(logger.WARNING, "Unable to detect content type of %s, ignoring: %v\n", path, err)
		return false
	}
	if !strings.HasPrefix(mime.String(), "video/") {
		log.Emit(logger.DEBUG, "Ignoring %s as it's content type (%s) is not a video\n", path, mime)
		return false
	}

	return true
}

// Discover will walk the file system, starting at the root directory
// provided, and construct an item for every file inside (including those
// inside nested directories) which passes the filter. Items are returned in
// lexical path order.
func Discover(root string, filter Filter) ([]*Item, error) {
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("ingestion path '%s' could not be accessed: %w", root, err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("ingestion path '%s' is not a directory", root)
	}

	items := make([]*Item, 0)
	err := filepath.WalkDir(root, func(path string, dir fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if dir.IsDir() || !dir.Type().IsRegular() {
			return nil
		}

		if !filter.accepts(path) {
			return nil
		}

		info, err := dir.Info()
		if errors.Is(err, os.ErrNotExist) {
			return nil
		} else if err != nil {
			return err
		}

		items = append(items, &Item{
			ID:      uuid.New(),
			Path:    path,
			Name:    filepath.Base(path),
			ModTime: info.ModTime(),
			Size:    info.Size(),
			State:   DISCOVERED,
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk file system: %w", err)
	}

	return items, nil
}

// DeriveTags returns the tags for a file inside of the directory provided:
// the name of the first directory beneath the root which contains it. Files
// directly inside the root (or outside of it entirely) have no tags.
func DeriveTags(root string, dir string) []string {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(dir))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{}
	}

	segments := strings.Split(rel, string(filepath.Separator))
	return []string{segments[0]}
}
