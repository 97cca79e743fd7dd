package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/hbomb79/Stash/internal/catalog"
	"github.com/hbomb79/Stash/internal/database"
	"github.com/hbomb79/Stash/internal/digest"
	"github.com/hbomb79/Stash/internal/ffmpeg"
	"github.com/hbomb79/Stash/internal/index"
	"github.com/hbomb79/Stash/internal/journal"
	"github.com/hbomb79/Stash/pkg/logger"
	"github.com/hbomb79/Stash/pkg/worker"
)

var log = logger.Get("IngestServ")

const DefaultForceSyncSeconds = 300

type (
	Derivatives interface {
		MakeCover(ctx context.Context, videoPath string) (*ffmpeg.Cover, error)
		ProbeDuration(ctx context.Context, videoPath string) int
	}

	Catalog interface {
		AllObjectNames(db database.Queryable) (map[string]string, error)
		InsertObject(db database.Queryable, object *catalog.Object) error
		InsertVideo(db database.Queryable, video *catalog.Video) error
	}

	ObjectStore interface {
		Place(src string, id string) error
	}

	PlacementJournal interface {
		Record(entries ...journal.Entry) error
		Clear(ids ...string) error
	}

	// Service is responsible for ingesting files from the file system
	// in to the object store. Each file is:
	// - Hashed, and skipped if the content is already stored
	// - Used to generate a cover image, and probed for its duration
	// - Registered in the database within a single transaction
	// - Moved in to the object store once the transaction has committed
	Service struct {
		*sync.Mutex
		registration *sync.Mutex

		config      Config
		db          database.Beginner
		catalog     Catalog
		derivatives Derivatives
		objects     ObjectStore
		placements  PlacementJournal
		index       *index.Index

		queue []*job
		seen  map[string]stamp
	}

	job struct {
		ctx  context.Context
		item *Item
		done func()
	}

	stamp struct {
		size    int64
		modTime time.Time
	}

	// Report summarises the outcome of a single ingestion pass.
	Report struct {
		Discovered int
		Ingested   int
		Skipped    int
		Troubled   int
		Unplaced   int
		Held       int
		Items      []*Item
	}
)

// New creates a new ingest Service, using the provided config for
// subsequent calls to Run and Watch.
func New(config Config, db database.Beginner, store Catalog, derivatives Derivatives, objects ObjectStore, placements PlacementJournal) (*Service, error) {
	if config.IngestionParallelism < 1 {
		config.IngestionParallelism = 1
	}
	if config.HashChunkSizeMB < 1 {
		config.HashChunkSizeMB = digest.DefaultChunkSize >> 20
	}
	if config.ProgressIntervalSeconds < 1 {
		config.ProgressIntervalSeconds = int(digest.DefaultInterval / time.Second)
	}
	if config.ForceSyncSeconds < 1 {
		config.ForceSyncSeconds = DefaultForceSyncSeconds
	}

	return &Service{
		Mutex:        &sync.Mutex{},
		registration: &sync.Mutex{},
		config:       config,
		db:           db,
		catalog:      store,
		derivatives:  derivatives,
		objects:      objects,
		placements:   placements,
		index:        index.New(),
		queue:        make([]*job, 0),
		seen:         make(map[string]stamp),
	}, nil
}

// Run performs a single ingestion pass over the configured ingest path,
// returning once every discovered file has been ingested, skipped, or
// has troubled. Per-file failures are reported rather than returned; an
// error is only returned if the pass could not be performed at all.
func (service *Service) Run(ctx context.Context) (*Report, error) {
	if err := service.index.Load(ctx, service.db, service.catalog); err != nil {
		return nil, err
	}

	pool, err := service.startWorkerPool()
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	report, _, err := service.pass(ctx, pool, false)
	return report, err
}

// Index returns the deduplication index used by the service.
func (service *Service) Index() *index.Index { return service.index }

// pass discovers the files at the ingest path and queues them for the
// workers, waiting for all of them to reach a terminal state. If any
// files were held back because they were modified too recently, the
// time until the earliest of them becomes eligible is also returned.
func (service *Service) pass(ctx context.Context, pool *worker.WorkerPool, skipSeen bool) (*Report, time.Duration, error) {
	root := service.config.IngestPath
	items, err := Discover(root, service.config.filter())
	if err != nil {
		return nil, 0, err
	}

	report := &Report{Items: make([]*Item, 0, len(items))}
	minAge := service.config.RequiredModTimeAgeDuration()
	var nextHold time.Duration
	ready := make([]*Item, 0, len(items))
	for _, item := range items {
		if skipSeen && service.hasSeen(item) {
			continue
		}

		if age := time.Since(item.ModTime); age < minAge {
			wait := minAge - age
			if nextHold == 0 || wait < nextHold {
				nextHold = wait
			}

			log.Emit(logger.DEBUG, "Holding %s as it was modified %s ago\n", item.Path, age.Round(time.Second))
			report.Held++
			continue
		}

		item.Tags = []string{}
		if service.config.DeriveTags {
			item.Tags = DeriveTags(root, filepath.Dir(item.Path))
		}
		ready = append(ready, item)
	}

	report.Discovered = len(ready)
	if len(ready) == 0 {
		return report, nextHold, nil
	}

	log.Emit(logger.INFO, "Discovered %d file(s) for ingestion in %s\n", len(ready), root)
	wg := &sync.WaitGroup{}
	wg.Add(len(ready))
	service.enqueue(ctx, ready, wg.Done)
	if err := pool.WakeupWorkers(); err != nil {
		return nil, 0, err
	}
	wg.Wait()

	for _, item := range ready {
		report.add(item)
		if item.State != PLACED {
			service.markSeen(item)
		}
	}

	log.Emit(logger.SUCCESS, "Ingestion pass complete: %s\n", report)
	return report, nextHold, nil
}

func (service *Service) startWorkerPool() (*worker.WorkerPool, error) {
	pool := worker.NewWorkerPool()
	for i := 0; i < service.config.IngestionParallelism; i++ {
		label := fmt.Sprintf("ingest-worker-%d", i)
		if err := pool.PushWorker(worker.NewWorker(label, service.PerformItemIngest)); err != nil {
			return nil, err
		}
	}

	if err := pool.Start(); err != nil {
		return nil, err
	}

	return pool, nil
}

func (service *Service) enqueue(ctx context.Context, items []*Item, done func()) {
	service.Lock()
	defer service.Unlock()

	for _, item := range items {
		service.queue = append(service.queue, &job{ctx: ctx, item: item, done: done})
	}
}

// claimJob pops the next job from the queue, returning nil if
// the queue is empty.
//
// Note: This function takes ownership of the mutex, and releases it when returning
func (service *Service) claimJob() *job {
	service.Lock()
	defer service.Unlock()

	if len(service.queue) == 0 {
		return nil
	}

	next := service.queue[0]
	service.queue = service.queue[1:]
	return next
}

func (service *Service) hasSeen(item *Item) bool {
	service.Lock()
	defer service.Unlock()

	s, ok := service.seen[item.Path]
	return ok && s.size == item.Size && s.modTime.Equal(item.ModTime)
}

// markSeen records that an item which is still present at its source
// path has already been processed, so that it is not re-processed by
// subsequent passes in watch mode unless the file changes.
func (service *Service) markSeen(item *Item) {
	service.Lock()
	defer service.Unlock()

	if _, err := os.Stat(item.Path); errors.Is(err, os.ErrNotExist) {
		delete(service.seen, item.Path)
		return
	}

	service.seen[item.Path] = stamp{size: item.Size, modTime: item.ModTime}
}

func (service *Service) digestOptions() []digest.Option {
	return []digest.Option{
		digest.WithChunkSize(service.config.HashChunkSizeMB << 20),
		digest.WithProgress(digest.LogProgress, time.Duration(service.config.ProgressIntervalSeconds)*time.Second),
	}
}

func (report *Report) add(item *Item) {
	report.Items = append(report.Items, item)
	switch {
	case item.State == PLACED:
		report.Ingested++
	case item.State == DUPLICATE_SKIPPED:
		report.Skipped++
	case item.Trouble != nil && item.Trouble.Type() == PLACEMENT_FAILURE:
		report.Unplaced++
	default:
		report.Troubled++
	}
}

func (report *Report) String() string {
	return fmt.Sprintf("discovered=%d ingested=%d skipped=%d troubled=%d unplaced=%d held=%d",
		report.Discovered, report.Ingested, report.Skipped, report.Troubled, report.Unplaced, report.Held)
}
