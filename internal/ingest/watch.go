package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/hbomb79/Stash/pkg/logger"
	"github.com/rjeczalik/notify"
)

const watchSettleDelay = 2 * time.Second

// Watch is the long-running form of Run. It performs an ingestion pass
// immediately, and then again whenever the file system watcher reports a
// change beneath the ingest path. A pass is also forced on a regular interval
// to protect against the watcher failing, and when a held file becomes old
// enough to ingest.
//
// The report of every pass is provided to onPass (if non-nil). To stop the
// service, the calling code should cancel the context provided.
func (service *Service) Watch(ctx context.Context, onPass func(*Report)) error {
	if err := service.index.Load(ctx, service.db, service.catalog); err != nil {
		return err
	}

	pool, err := service.startWorkerPool()
	if err != nil {
		return err
	}
	defer pool.Close()

	fsNotifyChannel := make(chan notify.EventInfo, 64)
	recursivePath := filepath.Join(service.config.IngestPath, "...")
	if err := notify.Watch(recursivePath, fsNotifyChannel, notify.Create, notify.Rename, notify.Write); err != nil {
		return fmt.Errorf("failed to watch ingest path %s: %w", service.config.IngestPath, err)
	}
	defer notify.Stop(fsNotifyChannel)

	forceIngestTicker := time.NewTicker(service.config.ForceSyncDuration())
	defer forceIngestTicker.Stop()

	// Events arrive in bursts while files are copied in; the settle timer
	// coalesces them in to a single pass.
	settleTimer := time.NewTimer(0)
	holdTimer := time.NewTimer(0)
	stopTimer(holdTimer)
	defer settleTimer.Stop()
	defer holdTimer.Stop()

	for {
		select {
		case ev := <-fsNotifyChannel:
			log.Emit(logger.VERBOSE, "File system event %s for %s\n", ev.Event(), ev.Path())
			resetTimer(settleTimer, watchSettleDelay)
			continue
		case <-forceIngestTicker.C:
			log.Emit(logger.DEBUG, "Forcing ingestion pass\n")
		case <-settleTimer.C:
		case <-holdTimer.C:
		case <-ctx.Done():
			return nil
		}

		report, nextHold, err := service.pass(ctx, pool, true)
		if err != nil {
			log.Emit(logger.ERROR, "Ingestion pass failed: %v\n", err)
			continue
		}

		if nextHold > 0 {
			resetTimer(holdTimer, nextHold)
		}
		if onPass != nil {
			onPass(report)
		}
	}
}

func stopTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	stopTimer(t)
	t.Reset(d)
}
