package registry

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/capstan-io/capstan/internal/storage"
	"github.com/rs/zerolog/log"
)

// Reaper sweeps orphaned tarballs out of blob storage after their metadata
// has been deleted. Sweeps run on a bounded worker pool shared across
// requests, decoupled from any request deadline; a failed sweep is logged
// and counted but never retried here and never reaches a caller.
type Reaper struct {
	storage storage.BlobStorage
	tasks   chan string
	wg      sync.WaitGroup

	swept  atomic.Uint64
	failed atomic.Uint64

	closeOnce sync.Once
}

// NewReaper starts a reaper with the given worker and queue sizes
func NewReaper(blobs storage.BlobStorage, workers, queue int) *Reaper {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 1
	}

	r := &Reaper{
		storage: blobs,
		tasks:   make(chan string, queue),
	}

	r.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go r.run()
	}

	log.Info().Int("workers", workers).Int("queue", queue).Msg("blob reaper started")
	return r
}

// Submit schedules one blob removal. Blocks when the queue is full rather
// than dropping the task: a dropped sweep would leak the blob permanently.
func (r *Reaper) Submit(storageKey string) {
	r.tasks <- storageKey
}

// Close stops accepting work and waits for in-flight sweeps to finish
func (r *Reaper) Close() {
	r.closeOnce.Do(func() {
		close(r.tasks)
	})
	r.wg.Wait()
}

// Swept returns the number of completed blob removals
func (r *Reaper) Swept() uint64 {
	return r.swept.Load()
}

// Failed returns the number of failed removal attempts
func (r *Reaper) Failed() uint64 {
	return r.failed.Load()
}

func (r *Reaper) run() {
	defer r.wg.Done()

	for key := range r.tasks {
		// No deadline: each removal runs to completion regardless of the
		// request that scheduled it.
		if err := r.storage.Delete(context.Background(), key); err != nil {
			r.failed.Add(1)
			log.Error().Err(err).Str("storage_key", key).Msg("blob sweep failed")
			continue
		}
		r.swept.Add(1)
		log.Debug().Str("storage_key", key).Msg("blob swept")
	}
}
