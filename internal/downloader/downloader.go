package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"citystories/pkg/logger"
	"citystories/pkg/models"
	"citystories/pkg/pacing"
	"citystories/pkg/storage"
)

// errTooLarge is returned by the size-limited body reader
var errTooLarge = errors.New("file exceeds size limit")

// Options configures a Downloader
type Options struct {
	HTTPClient *http.Client
	UserAgent  string
	Pacer      pacing.Pacer
	// MaxFileSize rejects larger bodies; 0 means no limit
	MaxFileSize int64
	Logger      logger.Logger
}

// Downloader fetches single assets into the output tree
type Downloader struct {
	httpClient  *http.Client
	userAgent   string
	pacer       pacing.Pacer
	maxFileSize int64
	logger      logger.Logger
}

// New creates a Downloader
func New(opts Options) *Downloader {
	d := &Downloader{
		httpClient:  opts.HTTPClient,
		userAgent:   opts.UserAgent,
		pacer:       opts.Pacer,
		maxFileSize: opts.MaxFileSize,
		logger:      opts.Logger,
	}
	if d.httpClient == nil {
		d.httpClient = &http.Client{}
	}
	if d.pacer == nil {
		d.pacer = pacing.Nop()
	}
	if d.logger == nil {
		d.logger = logger.GetLogger()
	}
	return d
}

// Download fetches req.URL into req.Destination. It never returns an
// error: failures are reported in the outcome, and the destination is
// either complete or untouched.
func (d *Downloader) Download(ctx context.Context, req models.AssetRequest) models.DownloadOutcome {
	start := time.Now()
	outcome := models.DownloadOutcome{PostReference: req.PostReference, Role: req.Role}

	n, err := d.fetch(ctx, req)
	outcome.Duration = time.Since(start)

	fields := map[string]interface{}{
		"post":     req.PostReference,
		"role":     string(req.Role),
		"duration": outcome.Duration,
	}
	if err != nil {
		outcome.Fail(err.Error())
		fields["error"] = err.Error()
		d.logger.WarnWithFields("asset download failed", fields)
		return outcome
	}

	outcome.Succeed(req.Destination, req.RelativePath, n)
	fields["bytes"] = n
	d.logger.DebugWithFields("asset downloaded", fields)
	return outcome
}

func (d *Downloader) fetch(ctx context.Context, req models.AssetRequest) (int64, error) {
	if req.Destination == "" {
		return 0, errors.New("no destination")
	}
	u, err := url.Parse(req.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return 0, fmt.Errorf("invalid url %q", req.URL)
	}

	if err := d.pacer.Wait(ctx, pacing.Asset); err != nil {
		return 0, err
	}
	defer d.pacer.Done(pacing.Asset)

	reqCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	if d.userAgent != "" {
		httpReq.Header.Set("User-Agent", d.userAgent)
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("timed out after %s", req.Timeout)
		}
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if d.maxFileSize > 0 {
		if resp.ContentLength > d.maxFileSize {
			return 0, fmt.Errorf("%w: %d > %d bytes", errTooLarge, resp.ContentLength, d.maxFileSize)
		}
		body = &limitedReader{r: resp.Body, remaining: d.maxFileSize}
	}

	n, err := storage.WriteFileAtomic(req.Destination, body, 0644)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return 0, fmt.Errorf("timed out after %s", req.Timeout)
		}
		return 0, err
	}
	return n, nil
}

// limitedReader fails instead of silently truncating
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	if l.remaining < 0 {
		return 0, errTooLarge
	}
	if int64(len(p)) > l.remaining+1 {
		p = p[:l.remaining+1]
	}
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, errTooLarge
	}
	return n, err
}
