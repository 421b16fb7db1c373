package ingest

import (
	"time"

	"citystories/pkg/logger"
	"citystories/pkg/models"
)

// Stage names a point in the run that observers are told about
type Stage string

const (
	StageRunStarted       Stage = "run_started"
	StageFetchStarted     Stage = "fetch_started"
	StageFetchFailed      Stage = "fetch_failed"
	StageFetchCompleted   Stage = "fetch_completed"
	StageItemDownloaded   Stage = "item_downloaded"
	StageItemFailed       Stage = "item_failed"
	StageThumbnailFailed  Stage = "thumbnail_failed"
	StageAccountSkipped   Stage = "account_skipped"
	StageAccountCompleted Stage = "account_completed"
	StageManifestWritten  Stage = "manifest_written"
	StageRunCompleted     Stage = "run_completed"
)

// Event is one structured progress notification. Only the fields that make
// sense for the stage are set.
type Event struct {
	Stage   Stage
	Time    time.Time
	RunID   string
	Account models.TrackedAccount
	// Post is the short code of the item concerned
	Post     string
	Role     models.AssetRole
	Bytes    int64
	Count    int
	Failed   int
	Path     string
	Err      error
	Reason   string
	Duration time.Duration
}

// Observer receives events. Implementations must not block for long; the
// pipeline calls them inline.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Event)

func (f ObserverFunc) Observe(e Event) { f(e) }

// Observers fans an event out to each observer in turn
type Observers []Observer

func (o Observers) Observe(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(Event) {}

// LogObserver writes each event as a structured log line
type LogObserver struct {
	Logger logger.Logger
}

// NewLogObserver creates a LogObserver
func NewLogObserver(log logger.Logger) *LogObserver {
	return &LogObserver{Logger: log}
}

func (o *LogObserver) Observe(e Event) {
	fields := map[string]interface{}{
		"stage": string(e.Stage),
	}
	if e.RunID != "" {
		fields["run_id"] = e.RunID
	}
	if e.Account.Key != "" {
		fields["account"] = e.Account.Key
		fields["handle"] = e.Account.Handle
	}
	if e.Post != "" {
		fields["post"] = e.Post
		fields["role"] = string(e.Role)
	}
	if e.Bytes > 0 {
		fields["bytes"] = e.Bytes
	}
	if e.Path != "" {
		fields["path"] = e.Path
	}
	if e.Duration > 0 {
		fields["duration"] = e.Duration
	}

	switch e.Stage {
	case StageFetchFailed:
		fields["error"] = errString(e.Err)
		o.Logger.WarnWithFields("metadata fetch failed", fields)
	case StageItemFailed, StageThumbnailFailed:
		fields["reason"] = e.Reason
		o.Logger.WarnWithFields("asset download failed", fields)
	case StageAccountSkipped:
		fields["reason"] = e.Reason
		o.Logger.WarnWithFields("account skipped", fields)
	case StageFetchCompleted:
		fields["posts"] = e.Count
		o.Logger.InfoWithFields("metadata fetched", fields)
	case StageAccountCompleted:
		fields["stories"] = e.Count
		fields["failed"] = e.Failed
		o.Logger.InfoWithFields("account completed", fields)
	case StageRunStarted:
		fields["accounts"] = e.Count
		o.Logger.InfoWithFields("run started", fields)
	case StageManifestWritten:
		fields["stories"] = e.Count
		o.Logger.InfoWithFields("manifest written", fields)
	case StageRunCompleted:
		fields["failed_accounts"] = e.Failed
		o.Logger.InfoWithFields("run completed", fields)
	default:
		o.Logger.DebugWithFields(string(e.Stage), fields)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
