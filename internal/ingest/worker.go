package ingest

import (
	"github.com/hbomb79/Stash/pkg/logger"
	"github.com/hbomb79/Stash/pkg/worker"
)

// PerformItemIngest is the worker function for the Service, which is called
// by the services WorkerPool.
// This function will claim the next queued item and attempt to ingest it.
// If the ingestion fails, the trouble is set on the item and the worker
// moves on; a failed item never stops the run.
func (service *Service) PerformItemIngest(w worker.Worker) (bool, error) {
	job := service.claimJob()
	if job == nil {
		return false, nil
	}
	defer job.done()

	item := job.item
	log.Emit(logger.NEW, "Beginning ingestion of %s (item %s, worker %s)\n", item.Path, item.ID, w.Label())

	if err := item.hash(job.ctx, service.digestOptions()...); err != nil {
		item.setTrouble(err)
		log.Emit(logger.WARNING, "Failed to hash %s (item %s): %v\n", item.Path, item.ID, err)
		return true, nil
	}

	// Cheap check before the (expensive) derivative generation. The index is
	// checked again while registering, as another worker may be registering
	// the same content concurrently.
	if name, ok, err := service.index.Lookup(item.Digest.ID); err != nil {
		item.setTrouble(err)
		return true, nil
	} else if ok {
		item.State = DUPLICATE_SKIPPED
		log.Emit(logger.INFO, "[Skipped] %s (item %s) already exists as %s (hash %s)\n", item.Path, item.ID, name, item.Digest.ID)
		return true, nil
	}

	if err := item.generateDerivatives(job.ctx, service.derivatives); err != nil {
		item.setTrouble(err)
		log.Emit(logger.WARNING, "Failed to generate derivatives for %s (item %s): %v\n", item.Path, item.ID, err)
		return true, nil
	}

	service.register(job.ctx, item)
	return true, nil
}
