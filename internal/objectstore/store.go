// Package objectstore implements the content-addressed blob store. Blobs
// are stored beneath a two character shard directory derived from their
// identifier: <root>/<id[:2]>/<id>.
package objectstore

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"syscall"

	"github.com/hbomb79/Stash/pkg/logger"
)

var (
	log = logger.Get("ObjectStore")

	validID = regexp.MustCompile(`^[0-9a-f]{64}$`)

	ErrInvalidID     = errors.New("object id must be 64 lowercase hex characters")
	ErrBlobNotFound  = errors.New("blob does not exist in object store")
	ErrSourceMissing = errors.New("source file does not exist and blob is not present in store")
	ErrDestExists    = errors.New("destination already exists")
)

type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create object store root: %w", err)
	}

	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// PathFor returns the path the blob with the given ID is (or would be) stored at.
func (s *Store) PathFor(id string) (string, error) {
	if !validID.MatchString(id) {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}

	return filepath.Join(s.root, id[:2], id), nil
}

func (s *Store) Has(id string) (bool, error) {
	path, err := s.PathFor(id)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, fmt.Errorf("failed to stat blob %s: %w", id, err)
	}

	return true, nil
}

// Place moves the source file in to the store under the ID given. A rename
// is used where possible; if the source resides on another filesystem, the
// content is copied to a temporary file beside the destination which is then
// renamed in to place, and the source removed.
//
// Placing is idempotent: if the blob is already present and the source no
// longer exists, Place succeeds without doing anything.
func (s *Store) Place(src string, id string) error {
	dest, err := s.PathFor(id)
	if err != nil {
		return err
	}

	if _, err := os.Stat(src); errors.Is(err, os.ErrNotExist) {
		if ok, _ := s.Has(id); ok {
			log.Emit(logger.DEBUG, "Blob %s already placed, nothing to do\n", id)
			return nil
		}

		return fmt.Errorf("cannot place %s from %s: %w", id, src, ErrSourceMissing)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create shard directory for %s: %w", id, err)
	}

	if err := move(src, dest); err != nil {
		return fmt.Errorf("failed to place %s: %w", id, err)
	}

	log.Emit(logger.VERBOSE, "Placed %s -> %s\n", src, dest)
	return nil
}

// Relocate moves a blob out of the store to the destination path provided.
// The destination must not already exist.
func (s *Store) Relocate(id string, dest string) error {
	src, err := s.PathFor(id)
	if err != nil {
		return err
	}

	if ok, err := s.Has(id); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("cannot relocate %s: %w", id, ErrBlobNotFound)
	}

	if _, err := os.Stat(dest); err == nil {
		return fmt.Errorf("cannot relocate %s to %s: %w", id, dest, ErrDestExists)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", dest, err)
	}

	if err := move(src, dest); err != nil {
		return fmt.Errorf("failed to relocate %s: %w", id, err)
	}

	return nil
}

// Remove deletes the blob from the store. Removing a blob which does
// not exist is not an error.
func (s *Store) Remove(id string) error {
	path, err := s.PathFor(id)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove blob %s: %w", id, err)
	}

	return nil
}

func move(src string, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || !errors.Is(linkErr.Err, syscall.EXDEV) {
		return err
	}

	log.Emit(logger.DEBUG, "Rename of %s crosses devices, falling back to copy\n", src)
	if err := copyInto(src, dest); err != nil {
		return err
	}

	return os.Remove(src)
}

// copyInto copies src to a temporary file in dest's directory, syncs it
// to disk and renames it over dest.
func copyInto(src string, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".place-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("copy data: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}
