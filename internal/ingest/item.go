package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Stash/internal/digest"
	"github.com/hbomb79/Stash/internal/ffmpeg"
	"github.com/hbomb79/Stash/pkg/logger"
)

type (
	IngestItemState int

	// Item is a single file being ingested. Items move through the states:
	//
	//	DISCOVERED -> HASHED -> DUPLICATE_SKIPPED
	//	DISCOVERED -> HASHED -> DERIVATIVE_GENERATED -> REGISTERING -> PLACED | ROLLED_BACK
	//
	// Any per-item failure moves the item to TROUBLED (or ROLLED_BACK if the
	// failure occurred while registering) with a Trouble describing it.
	Item struct {
		ID       uuid.UUID
		Path     string
		Name     string
		Tags     []string
		ModTime  time.Time
		Size     int64
		State    IngestItemState
		Trouble  *Trouble
		Digest   digest.Digest
		Cover    *ffmpeg.Cover
		Duration int

		coverReused bool
	}
)

const (
	DISCOVERED IngestItemState = iota
	HASHED
	DUPLICATE_SKIPPED
	DERIVATIVE_GENERATED
	REGISTERING
	PLACED
	ROLLED_BACK
	TROUBLED
)

// hash digests the item's source file.
func (item *Item) hash(ctx context.Context, opts ...digest.Option) error {
	log.Emit(logger.DEBUG, "Computing hash of file %s\n", item.Path)
	result, err := digest.File(ctx, item.Path, opts...)
	if err != nil {
		return newTrouble(HASH_FAILURE, err)
	}

	item.Digest = result
	item.State = HASHED
	return nil
}

// generateDerivatives produces the cover image and probes the duration
// of the item's source file.
func (item *Item) generateDerivatives(ctx context.Context, derivatives Derivatives) error {
	cover, err := derivatives.MakeCover(ctx, item.Path)
	if err != nil {
		return newTrouble(DERIVATIVE_FAILURE, err)
	}

	item.Cover = cover
	item.Duration = derivatives.ProbeDuration(ctx, item.Path)
	item.State = DERIVATIVE_GENERATED
	return nil
}

// coverName is the filename recorded against a newly created cover object.
func (item *Item) coverName() string {
	return fmt.Sprintf("%s.png", item.Name)
}

// discardCover removes the generated cover from the scratch directory, if
// one was generated and has not been placed in the store.
func (item *Item) discardCover() {
	if item.Cover == nil {
		return
	}

	if err := os.Remove(item.Cover.Path); err != nil && !os.IsNotExist(err) {
		log.Emit(logger.WARNING, "Failed to remove scratch cover %s: %v\n", item.Cover.Path, err)
	}
}

func (item *Item) setTrouble(err error) {
	var trouble *Trouble
	if !errors.As(err, &trouble) {
		trouble = newTrouble(REGISTRATION_FAILURE, err)
	}

	item.Trouble = trouble
	if trouble.Type() == REGISTRATION_FAILURE {
		item.State = ROLLED_BACK
	} else {
		item.State = TROUBLED
	}
}

func (item *Item) String() string {
	return fmt.Sprintf("Item{ID=%s path=%s state=%s}", item.ID, item.Path, item.State)
}

func (s IngestItemState) String() string {
	switch s {
	case DISCOVERED:
		return fmt.Sprintf("DISCOVERED[%d]", s)
	case HASHED:
		return fmt.Sprintf("HASHED[%d]", s)
	case DUPLICATE_SKIPPED:
		return fmt.Sprintf("DUPLICATE_SKIPPED[%d]", s)
	case DERIVATIVE_GENERATED:
		return fmt.Sprintf("DERIVATIVE_GENERATED[%d]", s)
	case REGISTERING:
		return fmt.Sprintf("REGISTERING[%d]", s)
	case PLACED:
		return fmt.Sprintf("PLACED[%d]", s)
	case ROLLED_BACK:
		return fmt.Sprintf("ROLLED_BACK[%d]", s)
	case TROUBLED:
		return fmt.Sprintf("TROUBLED[%d]", s)
	default:
		return fmt.Sprintf("UNKNOWN[%d]", s)
	}
}
