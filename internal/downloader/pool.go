package downloader

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"citystories/pkg/logger"
	"citystories/pkg/models"
)

// AssetFetcher downloads one asset
type AssetFetcher interface {
	Download(ctx context.Context, req models.AssetRequest) models.DownloadOutcome
}

// ItemJob is one timeline item: its primary asset and, for videos, a
// poster image. The thumbnail is requested only after the primary has
// been stored; a failed primary drops the whole item and its thumbnail is
// never fetched.
type ItemJob struct {
	Index     int
	Primary   models.AssetRequest
	Thumbnail *models.AssetRequest
}

// ItemResult carries the outcomes of one ItemJob. Thumbnail is nil when the
// job had none or its primary failed.
type ItemResult struct {
	Index     int
	Primary   models.DownloadOutcome
	Thumbnail *models.DownloadOutcome
}

// MaxWorkers caps per-account download concurrency
const MaxWorkers = 3

// WorkerPool runs item jobs on a bounded number of workers
type WorkerPool struct {
	numWorkers int
	fetcher    AssetFetcher
	logger     logger.Logger
}

// NewWorkerPool creates a pool of numWorkers workers, clamped to 1..MaxWorkers
func NewWorkerPool(numWorkers int, fetcher AssetFetcher, log logger.Logger) *WorkerPool {
	if numWorkers < 1 {
		numWorkers = 1
	}
	if numWorkers > MaxWorkers {
		numWorkers = MaxWorkers
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &WorkerPool{numWorkers: numWorkers, fetcher: fetcher, logger: log}
}

// Workers returns the number of workers
func (wp *WorkerPool) Workers() int {
	return wp.numWorkers
}

// Run processes jobs and returns their results in job order. onResult, if
// set, is called for every job a worker picked up, as it finishes and never
// concurrently. Within a job the primary is downloaded first and the
// thumbnail only if the primary succeeded. Jobs not started before ctx is
// done are reported as failed.
func (wp *WorkerPool) Run(ctx context.Context, jobs []ItemJob, onResult func(ItemResult)) []ItemResult {
	results := make([]ItemResult, len(jobs))
	if len(jobs) == 0 {
		return results
	}

	queue := make(chan int)
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	workers := wp.numWorkers
	if workers > len(jobs) {
		workers = len(jobs)
	}
	for w := 0; w < workers; w++ {
		workerID := w
		g.Go(func() error {
			for i := range queue {
				result := wp.process(ctx, jobs[i], workerID)
				results[i] = result
				if onResult != nil {
					mu.Lock()
					onResult(result)
					mu.Unlock()
				}
			}
			return nil
		})
	}

	g.Go(func() error {
		defer close(queue)
		for i := range jobs {
			select {
			case queue <- i:
			case <-gctx.Done():
				for j := i; j < len(jobs); j++ {
					results[j] = cancelled(jobs[j], ctx.Err())
				}
				return nil
			}
		}
		return nil
	})

	_ = g.Wait()
	return results
}

func (wp *WorkerPool) process(ctx context.Context, job ItemJob, workerID int) ItemResult {
	result := ItemResult{Index: job.Index}
	if err := ctx.Err(); err != nil {
		return cancelled(job, err)
	}

	wp.logger.DebugWithFields("worker processing item", map[string]interface{}{
		"worker_id": workerID,
		"post":      job.Primary.PostReference,
	})

	result.Primary = wp.fetcher.Download(ctx, job.Primary)
	// a poster image without its video is never stored
	if job.Thumbnail != nil && result.Primary.Succeeded {
		thumb := wp.fetcher.Download(ctx, *job.Thumbnail)
		result.Thumbnail = &thumb
	}
	return result
}

func cancelled(job ItemJob, err error) ItemResult {
	reason := "cancelled"
	if err != nil {
		reason = err.Error()
	}
	outcome := models.DownloadOutcome{PostReference: job.Primary.PostReference, Role: job.Primary.Role}
	outcome.Fail(reason)
	return ItemResult{Index: job.Index, Primary: outcome}
}
