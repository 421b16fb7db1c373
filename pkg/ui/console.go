package ui

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"citystories/pkg/ingest"
	"citystories/pkg/models"
)

// ConsoleObserver prints a short human-readable line per notable event.
// Verbose adds one line per stored asset.
type ConsoleObserver struct {
	mu      sync.Mutex
	p       *Printer
	verbose bool
}

// NewConsoleObserver creates a ConsoleObserver writing to w
func NewConsoleObserver(w io.Writer, verbose bool) *ConsoleObserver {
	return &ConsoleObserver{p: NewPrinter(w), verbose: verbose}
}

func (c *ConsoleObserver) Observe(e ingest.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Stage {
	case ingest.StageRunStarted:
		c.p.Info("Run", fmt.Sprintf("%s (%d accounts)", shortID(e.RunID), e.Count))
	case ingest.StageFetchStarted:
		c.p.Dim(fmt.Sprintf("→ %s @%s", e.Account.Key, e.Account.Handle))
	case ingest.StageFetchFailed:
		c.p.Error(fmt.Sprintf("%s: metadata unavailable", e.Account.Key), e.Err)
	case ingest.StageItemDownloaded:
		if c.verbose {
			c.p.Dim(fmt.Sprintf("  %s %s (%s)", roleMark(e.Role), e.Path, humanize.Bytes(uint64(e.Bytes))))
		}
	case ingest.StageItemFailed:
		c.p.Warning(fmt.Sprintf("  %s skipped: %s", e.Post, e.Reason))
	case ingest.StageThumbnailFailed:
		c.p.Warning(fmt.Sprintf("  %s thumbnail missing: %s", e.Post, e.Reason))
	case ingest.StageAccountSkipped:
		c.p.Warning(fmt.Sprintf("%s skipped: %s", e.Account.Key, e.Reason))
	case ingest.StageAccountCompleted:
		if e.Count > 0 || e.Failed > 0 {
			c.p.Success(fmt.Sprintf("%s: %d stories in %s", e.Account.Key, e.Count, e.Duration.Round(time.Millisecond)))
		}
	case ingest.StageManifestWritten:
		c.p.Info("Manifest", e.Path)
	case ingest.StageRunCompleted:
		summary := fmt.Sprintf("%d stories, %d failed accounts, %s", e.Count, e.Failed, e.Duration.Round(time.Second))
		if e.Failed > 0 {
			c.p.Warning("Finished with errors: " + summary)
		} else {
			c.p.Success("Finished: " + summary)
		}
	}
}

func roleMark(r models.AssetRole) string {
	if r == models.AssetRoleThumbnail {
		return "◦"
	}
	return "•"
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
