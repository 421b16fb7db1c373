package ingest

import (
	"context"
	"fmt"
	"time"

	errs "citystories/pkg/errors"
	"citystories/pkg/logger"
	"citystories/pkg/manifest"
	"citystories/pkg/models"
	"citystories/pkg/pacing"
	"citystories/pkg/storage"
)

// Preparer is implemented by fetchers that must complete a round trip,
// such as a login, before the first account is fetched
type Preparer interface {
	Prepare(ctx context.Context) error
}

// PipelineOptions configures a Pipeline
type PipelineOptions struct {
	ManifestFile string
	// MaxConsecutiveFailures stops network calls after that many accounts in
	// a row failed with an auth error. Zero disables the check.
	MaxConsecutiveFailures int
	Pacer                  pacing.Pacer
	Preparer               Preparer
	Logger                 logger.Logger
}

// Report summarises one run
type Report struct {
	RunID    string
	Manifest *manifest.Manifest
	Path     string
	// Failed counts accounts whose metadata could not be fetched
	Failed   int
	Stories  int
	Dropped  int
	Duration time.Duration
}

// Pipeline ingests every tracked account in order and writes the manifest
type Pipeline struct {
	ingestor *Ingestor
	store    *storage.Manager
	opts     PipelineOptions
}

// NewPipeline creates a Pipeline
func NewPipeline(ingestor *Ingestor, store *storage.Manager, opts PipelineOptions) *Pipeline {
	if opts.ManifestFile == "" {
		opts.ManifestFile = "manifest.json"
	}
	if opts.Pacer == nil {
		opts.Pacer = pacing.Nop()
	}
	if opts.Logger == nil {
		opts.Logger = logger.GetLogger()
	}
	return &Pipeline{ingestor: ingestor, store: store, opts: opts}
}

// Run processes accounts sequentially and persists the manifest. Account
// failures end up in the manifest, and so does a rejected up-front login:
// every account is then recorded with that error. Only a configuration
// problem or a manifest write failure is returned as an error.
func (p *Pipeline) Run(ctx context.Context, accounts []models.TrackedAccount) (*Report, error) {
	if len(accounts) == 0 {
		return nil, errs.NewConfigError("no accounts configured")
	}

	runID := logger.NewRunID()
	in := p.ingestor.withRunID(runID)
	log := logger.ForRun(p.opts.Logger, runID)
	start := in.opts.Clock()
	report := &Report{RunID: runID}

	in.emit(Event{Stage: StageRunStarted, Count: len(accounts)})

	builder := manifest.NewBuilder(start)
	consecutiveAuth := 0
	var abort error

	if p.opts.Preparer != nil {
		if err := p.opts.Preparer.Prepare(ctx); err != nil {
			log.WithError(err).Error("authentication failed, recording every account as failed")
			abort = fmt.Errorf("authentication failed: %w", err)
		}
	}

	for i, account := range accounts {
		var result models.AccountResult

		switch {
		case abort != nil:
			result = p.skip(in, account, abort)
		case ctx.Err() != nil:
			abort = fmt.Errorf("run cancelled: %w", ctx.Err())
			result = p.skip(in, account, abort)
		default:
			if i > 0 {
				if err := p.opts.Pacer.Wait(ctx, pacing.Account); err != nil {
					abort = fmt.Errorf("run cancelled: %w", err)
					result = p.skip(in, account, abort)
					break
				}
			}
			result = in.Ingest(ctx, account)
			p.opts.Pacer.Done(pacing.Account)
		}

		if result.Failed() {
			report.Failed++
			if errs.IsType(result.FetchError, errs.ErrorTypeAuth) {
				consecutiveAuth++
			} else if abort == nil {
				consecutiveAuth = 0
			}
			if abort == nil && p.opts.MaxConsecutiveFailures > 0 && consecutiveAuth >= p.opts.MaxConsecutiveFailures {
				abort = errs.New(errs.ErrorTypeAuth, 0,
					"skipped after %d consecutive authentication failures", consecutiveAuth)
				log.WithField("failures", consecutiveAuth).Error("stopping network calls for the remaining accounts")
			}
		} else {
			consecutiveAuth = 0
		}

		if err := builder.Add(result); err != nil {
			log.WithError(err).WithField("account", account.Key).Warn("result not added to manifest")
		}
	}

	m := builder.Build()
	report.Dropped = manifest.Verify(m, p.store)
	if report.Dropped > 0 {
		log.WithField("dropped", report.Dropped).Warn("removed stories whose files are missing")
	}

	path := p.store.ManifestPath(p.opts.ManifestFile)
	if err := manifest.Save(path, m); err != nil {
		log.WithError(err).Error("failed to persist manifest")
		return nil, errs.New(errs.ErrorTypeStorage, 0, "%v", err)
	}

	for _, key := range m.Accounts.Keys() {
		acc, _ := m.Accounts.Get(key)
		report.Stories += len(acc.Stories)
	}
	report.Manifest = m
	report.Path = path
	report.Duration = in.opts.Clock().Sub(start)

	in.emit(Event{Stage: StageManifestWritten, Path: path, Count: report.Stories})
	in.emit(Event{Stage: StageRunCompleted, Count: report.Stories, Failed: report.Failed, Duration: report.Duration})
	return report, nil
}

// skip records an account without touching the network
func (p *Pipeline) skip(in *Ingestor, account models.TrackedAccount, reason error) models.AccountResult {
	err := &errs.MetadataFetchError{Handle: account.Handle, Err: reason}
	in.emit(Event{Stage: StageAccountSkipped, Account: account, Err: err, Reason: reason.Error()})
	return models.AccountResult{Account: account, Entries: []models.ManifestEntry{}, FetchError: err}
}
