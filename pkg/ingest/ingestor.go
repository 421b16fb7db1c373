package ingest

import (
	"context"
	"time"

	"citystories/internal/downloader"
	errs "citystories/pkg/errors"
	"citystories/pkg/logger"
	"citystories/pkg/models"
	"citystories/pkg/retry"
	"citystories/pkg/storage"
)

// MetadataFetcher returns an account's most recent posts, newest first
type MetadataFetcher interface {
	FetchRecentPosts(ctx context.Context, handle string, count int) ([]models.PostRecord, error)
}

// Options configures an Ingestor
type Options struct {
	PostsPerAccount  int
	PrimaryTimeout   time.Duration
	ThumbnailTimeout time.Duration
	// Retry wraps the metadata call; nil means a single attempt
	Retry    *retry.Config
	Observer Observer
	Logger   logger.Logger
	Clock    func() time.Time
}

// Ingestor produces one AccountResult per tracked account
type Ingestor struct {
	fetcher MetadataFetcher
	pool    *downloader.WorkerPool
	store   *storage.Manager
	opts    Options
	runID   string
}

// NewIngestor creates an Ingestor
func NewIngestor(fetcher MetadataFetcher, pool *downloader.WorkerPool, store *storage.Manager, opts Options) *Ingestor {
	if opts.PostsPerAccount <= 0 {
		opts.PostsPerAccount = 6
	}
	if opts.PrimaryTimeout <= 0 {
		opts.PrimaryTimeout = 60 * time.Second
	}
	if opts.ThumbnailTimeout <= 0 {
		opts.ThumbnailTimeout = 20 * time.Second
	}
	if opts.Retry == nil {
		opts.Retry = &retry.Config{MaxAttempts: 1}
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Ingestor{fetcher: fetcher, pool: pool, store: store, opts: opts}
}

// withRunID returns a copy of the ingestor that tags events with runID
func (in *Ingestor) withRunID(runID string) *Ingestor {
	cp := *in
	cp.runID = runID
	return &cp
}

func (in *Ingestor) emit(e Event) {
	e.Time = in.opts.Clock()
	e.RunID = in.runID
	in.opts.Observer.Observe(e)
}

// Ingest fetches the account's recent posts and downloads their assets.
// It never fails: a metadata failure is recorded in FetchError, and an
// item whose primary asset could not be stored is left out.
func (in *Ingestor) Ingest(ctx context.Context, account models.TrackedAccount) models.AccountResult {
	start := in.opts.Clock()
	result := models.AccountResult{Account: account, Entries: []models.ManifestEntry{}}
	log := in.opts.Logger.WithFields(map[string]interface{}{
		"account": account.Key,
		"handle":  account.Handle,
	})

	if _, err := in.store.EnsureAccountDir(account.Handle); err != nil {
		result.FetchError = errs.New(errs.ErrorTypeStorage, 0, "%v", err)
		log.WithError(err).Error("failed to prepare account directory")
		in.emit(Event{Stage: StageFetchFailed, Account: account, Err: result.FetchError})
		in.emit(Event{Stage: StageAccountCompleted, Account: account, Duration: in.opts.Clock().Sub(start)})
		return result
	}

	in.emit(Event{Stage: StageFetchStarted, Account: account})
	records, err := retry.DoWithResult(ctx, in.retryConfig(log), func(ctx context.Context) ([]models.PostRecord, error) {
		return in.fetcher.FetchRecentPosts(ctx, account.Handle, in.opts.PostsPerAccount)
	})
	if err != nil {
		if _, ok := err.(*errs.MetadataFetchError); !ok {
			err = &errs.MetadataFetchError{Handle: account.Handle, Err: err}
		}
		result.FetchError = err
		in.emit(Event{Stage: StageFetchFailed, Account: account, Err: err})
		in.emit(Event{Stage: StageAccountCompleted, Account: account, Duration: in.opts.Clock().Sub(start)})
		return result
	}
	in.emit(Event{Stage: StageFetchCompleted, Account: account, Count: len(records)})

	records = in.dedupe(records, log)
	jobs := in.buildJobs(account, records)

	results := in.pool.Run(ctx, jobs, func(r downloader.ItemResult) {
		in.emitItem(account, r)
	})

	for i, r := range results {
		if !r.Primary.Succeeded {
			result.Skipped++
			continue
		}
		result.Entries = append(result.Entries, models.NewManifestEntry(records[i], r.Primary, r.Thumbnail))
	}

	in.emit(Event{
		Stage:    StageAccountCompleted,
		Account:  account,
		Count:    len(result.Entries),
		Failed:   result.Skipped,
		Duration: in.opts.Clock().Sub(start),
	})
	return result
}

func (in *Ingestor) retryConfig(log logger.Logger) *retry.Config {
	cfg := *in.opts.Retry
	cfg.Logger = log
	return &cfg
}

// dedupe drops repeated short codes, which would otherwise race on the
// same file
func (in *Ingestor) dedupe(records []models.PostRecord, log logger.Logger) []models.PostRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0:0]
	for _, r := range records {
		if seen[r.ShortCode] {
			log.WithField("post", r.ShortCode).Warn("duplicate post in timeline, skipping")
			continue
		}
		seen[r.ShortCode] = true
		out = append(out, r)
	}
	return out
}

func (in *Ingestor) buildJobs(account models.TrackedAccount, records []models.PostRecord) []downloader.ItemJob {
	jobs := make([]downloader.ItemJob, 0, len(records))
	for i, rec := range records {
		primary := in.store.PrimaryPath(account.Handle, rec.ShortCode, rec.Kind)
		job := downloader.ItemJob{
			Index: i,
			Primary: models.AssetRequest{
				PostReference: rec.ShortCode,
				Role:          models.AssetRolePrimary,
				URL:           rec.PrimaryAssetURL,
				Destination:   primary.Local,
				RelativePath:  primary.Relative,
				Timeout:       in.opts.PrimaryTimeout,
			},
		}
		if rec.HasThumbnail() {
			thumb := in.store.ThumbnailPath(account.Handle, rec.ShortCode)
			job.Thumbnail = &models.AssetRequest{
				PostReference: rec.ShortCode,
				Role:          models.AssetRoleThumbnail,
				URL:           rec.SecondaryAssetURL,
				Destination:   thumb.Local,
				RelativePath:  thumb.Relative,
				Timeout:       in.opts.ThumbnailTimeout,
			}
		}
		jobs = append(jobs, job)
	}
	return jobs
}

func (in *Ingestor) emitItem(account models.TrackedAccount, r downloader.ItemResult) {
	p := r.Primary
	if !p.Succeeded {
		in.emit(Event{Stage: StageItemFailed, Account: account, Post: p.PostReference, Role: p.Role, Reason: p.FailureReason, Duration: p.Duration})
		return
	}
	in.emit(Event{Stage: StageItemDownloaded, Account: account, Post: p.PostReference, Role: p.Role, Bytes: p.Bytes, Path: p.RelativePath, Duration: p.Duration})

	if t := r.Thumbnail; t != nil {
		if t.Succeeded {
			in.emit(Event{Stage: StageItemDownloaded, Account: account, Post: t.PostReference, Role: t.Role, Bytes: t.Bytes, Path: t.RelativePath, Duration: t.Duration})
		} else {
			in.emit(Event{Stage: StageThumbnailFailed, Account: account, Post: t.PostReference, Role: t.Role, Reason: t.FailureReason, Duration: t.Duration})
		}
	}
}
