package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citystories/internal/downloader"
	errs "citystories/pkg/errors"
	"citystories/pkg/logger"
	"citystories/pkg/models"
	"citystories/pkg/pacing"
	"citystories/pkg/retry"
	"citystories/pkg/storage"
)

type fakeFetcher struct {
	mu      sync.Mutex
	records map[string][]models.PostRecord
	errs    map[string][]error
	calls   map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		records: map[string][]models.PostRecord{},
		errs:    map[string][]error{},
		calls:   map[string]int{},
	}
}

// FetchRecentPosts returns the queued errors for handle first, then its records
func (f *fakeFetcher) FetchRecentPosts(_ context.Context, handle string, count int) ([]models.PostRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[handle]++
	if queued := f.errs[handle]; len(queued) > 0 {
		err := queued[0]
		f.errs[handle] = queued[1:]
		return nil, &errs.MetadataFetchError{Handle: handle, Err: err}
	}
	recs := f.records[handle]
	if len(recs) > count {
		recs = recs[:count]
	}
	return recs, nil
}

func (f *fakeFetcher) callCount(handle string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[handle]
}

// cdn serves /<name> with the name as body, and 404 for paths in missing
func newCDN(t *testing.T, missing ...string) *httptest.Server {
	t.Helper()
	gone := map[string]bool{}
	for _, m := range missing {
		gone["/"+m] = true
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gone[r.URL.Path] {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("content of " + strings.TrimPrefix(r.URL.Path, "/")))
	}))
	t.Cleanup(server.Close)
	return server
}

func image(cdn, id, code string) models.PostRecord {
	return models.PostRecord{
		ExternalID:      id,
		ShortCode:       code,
		Kind:            models.MediaKindImage,
		PrimaryAssetURL: cdn + "/" + code + ".jpg",
		CapturedAt:      time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		CaptionExcerpt:  "caption " + code,
		Permalink:       models.Permalink(code),
	}
}

func video(cdn, id, code string) models.PostRecord {
	return models.PostRecord{
		ExternalID:        id,
		ShortCode:         code,
		Kind:              models.MediaKindVideo,
		PrimaryAssetURL:   cdn + "/" + code + ".mp4",
		SecondaryAssetURL: cdn + "/" + code + "_poster.jpg",
		Permalink:         models.Permalink(code),
	}
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) Observe(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) stages() []Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stage, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Stage)
	}
	return out
}

func (r *recorder) count(stage Stage) int {
	n := 0
	for _, s := range r.stages() {
		if s == stage {
			n++
		}
	}
	return n
}

type fixture struct {
	fetcher *fakeFetcher
	store   *storage.Manager
	events  *recorder
	log     *logger.TestLogger
	ing     *Ingestor
}

func newFixture(t *testing.T, workers int) *fixture {
	t.Helper()
	return newPacedFixture(t, workers, nil)
}

// newPacedFixture shares pacer between the downloader and the caller
func newPacedFixture(t *testing.T, workers int, pacer pacing.Pacer) *fixture {
	t.Helper()
	store, err := storage.NewManager(t.TempDir(), "")
	require.NoError(t, err)

	log := logger.NewTestLogger()
	events := &recorder{}
	fetcher := newFakeFetcher()
	dl := downloader.New(downloader.Options{Logger: log, Pacer: pacer})
	pool := downloader.NewWorkerPool(workers, dl, log)

	ing := NewIngestor(fetcher, pool, store, Options{
		PostsPerAccount: 6,
		Retry: &retry.Config{
			MaxAttempts: 2,
			Backoff:     retry.ConstantBackoff{Delay: time.Millisecond},
		},
		Observer: events,
		Logger:   log,
	})
	return &fixture{fetcher: fetcher, store: store, events: events, log: log, ing: ing}
}

var alpha = models.TrackedAccount{Key: "alpha", RegionID: "1", DisplayName: "Alpha", Handle: "alpha_city"}

func TestIngestImagesAndVideo(t *testing.T) {
	cdn := newCDN(t)
	f := newFixture(t, 1)
	f.fetcher.records[alpha.Handle] = []models.PostRecord{
		image(cdn.URL, "1", "A1"),
		video(cdn.URL, "2", "XYZ123"),
		image(cdn.URL, "3", "C3"),
	}

	result := f.ing.Ingest(context.Background(), alpha)

	require.NoError(t, result.FetchError)
	require.Len(t, result.Entries, 3)
	assert.Equal(t, 0, result.Skipped)

	assert.Equal(t, "alpha_city/A1.jpg", result.Entries[0].FilePath)
	assert.Nil(t, result.Entries[0].ThumbnailPath)
	assert.Equal(t, models.MediaKindImage, result.Entries[0].Kind)
	require.NotNil(t, result.Entries[0].CapturedAt)

	vid := result.Entries[1]
	assert.Equal(t, "alpha_city/XYZ123.mp4", vid.FilePath)
	assert.Equal(t, models.MediaKindVideo, vid.Kind)
	require.NotNil(t, vid.ThumbnailPath)
	assert.Equal(t, "alpha_city/XYZ123_thumb.jpg", *vid.ThumbnailPath)
	assert.Nil(t, vid.CapturedAt)

	assert.Equal(t, "alpha_city/C3.jpg", result.Entries[2].FilePath)

	content, err := os.ReadFile(filepath.Join(f.store.Root(), "alpha_city", "XYZ123.mp4"))
	require.NoError(t, err)
	assert.Equal(t, "content of XYZ123.mp4", string(content))
	assert.FileExists(t, filepath.Join(f.store.Root(), "alpha_city", "XYZ123_thumb.jpg"))

	assert.Equal(t, 1, f.events.count(StageFetchStarted))
	assert.Equal(t, 1, f.events.count(StageFetchCompleted))
	assert.Equal(t, 4, f.events.count(StageItemDownloaded))
	assert.Equal(t, 1, f.events.count(StageAccountCompleted))
}

func TestIngestKeepsTimelineOrderWithWorkers(t *testing.T) {
	cdn := newCDN(t)
	f := newFixture(t, 3)
	var recs []models.PostRecord
	for _, code := range []string{"P1", "P2", "P3", "P4", "P5", "P6"} {
		recs = append(recs, image(cdn.URL, code, code))
	}
	f.fetcher.records[alpha.Handle] = recs

	result := f.ing.Ingest(context.Background(), alpha)
	require.Len(t, result.Entries, 6)
	for i, e := range result.Entries {
		assert.Equal(t, "alpha_city/"+recs[i].ShortCode+".jpg", e.FilePath)
	}
}

func TestIngestFetchFailure(t *testing.T) {
	f := newFixture(t, 1)
	f.fetcher.errs[alpha.Handle] = []error{errs.New(errs.ErrorTypeParsing, 0, "unexpected body")}

	result := f.ing.Ingest(context.Background(), alpha)

	require.Error(t, result.FetchError)
	assert.True(t, result.Failed())
	assert.NotNil(t, result.Entries)
	assert.Empty(t, result.Entries)
	assert.True(t, errs.IsType(result.FetchError, errs.ErrorTypeParsing))
	assert.Equal(t, 1, f.fetcher.callCount(alpha.Handle), "parsing errors are not retried")
	assert.Equal(t, 1, f.events.count(StageFetchFailed))
}

func TestIngestRetriesNetworkErrors(t *testing.T) {
	cdn := newCDN(t)
	f := newFixture(t, 1)
	f.fetcher.errs[alpha.Handle] = []error{errs.New(errs.ErrorTypeNetwork, 0, "connection reset")}
	f.fetcher.records[alpha.Handle] = []models.PostRecord{image(cdn.URL, "1", "A1")}

	result := f.ing.Ingest(context.Background(), alpha)

	require.NoError(t, result.FetchError)
	assert.Len(t, result.Entries, 1)
	assert.Equal(t, 2, f.fetcher.callCount(alpha.Handle))
}

func TestIngestDoesNotRetryAuth(t *testing.T) {
	f := newFixture(t, 1)
	f.fetcher.errs[alpha.Handle] = []error{
		errs.New(errs.ErrorTypeAuth, 401, "login required"),
		errs.New(errs.ErrorTypeAuth, 401, "login required"),
	}

	result := f.ing.Ingest(context.Background(), alpha)

	assert.True(t, errs.IsType(result.FetchError, errs.ErrorTypeAuth))
	assert.Equal(t, 1, f.fetcher.callCount(alpha.Handle))
}

func TestIngestThumbnailFailureKeepsItem(t *testing.T) {
	cdn := newCDN(t, "XYZ123_poster.jpg")
	f := newFixture(t, 1)
	f.fetcher.records[alpha.Handle] = []models.PostRecord{video(cdn.URL, "2", "XYZ123")}

	result := f.ing.Ingest(context.Background(), alpha)

	require.Len(t, result.Entries, 1)
	assert.Equal(t, "alpha_city/XYZ123.mp4", result.Entries[0].FilePath)
	assert.Nil(t, result.Entries[0].ThumbnailPath)
	assert.Equal(t, 1, f.events.count(StageThumbnailFailed))
	assert.NoFileExists(t, filepath.Join(f.store.Root(), "alpha_city", "XYZ123_thumb.jpg"))
}

func TestIngestPrimaryFailureOmitsItem(t *testing.T) {
	cdn := newCDN(t, "B2.jpg")
	f := newFixture(t, 1)
	f.fetcher.records[alpha.Handle] = []models.PostRecord{
		image(cdn.URL, "1", "A1"),
		image(cdn.URL, "2", "B2"),
		image(cdn.URL, "3", "C3"),
	}

	result := f.ing.Ingest(context.Background(), alpha)

	require.Len(t, result.Entries, 2)
	assert.Equal(t, "alpha_city/A1.jpg", result.Entries[0].FilePath)
	assert.Equal(t, "alpha_city/C3.jpg", result.Entries[1].FilePath)
	assert.Equal(t, 1, result.Skipped)
	assert.Equal(t, 1, f.events.count(StageItemFailed))
	assert.NoFileExists(t, filepath.Join(f.store.Root(), "alpha_city", "B2.jpg"))
}

func TestIngestSkipsDuplicateShortCodes(t *testing.T) {
	cdn := newCDN(t)
	f := newFixture(t, 2)
	f.fetcher.records[alpha.Handle] = []models.PostRecord{
		image(cdn.URL, "1", "A1"),
		image(cdn.URL, "1", "A1"),
	}

	result := f.ing.Ingest(context.Background(), alpha)

	assert.Len(t, result.Entries, 1)
	assert.True(t, f.log.HasMessage("duplicate post in timeline, skipping"))
}

func TestIngestEmptyTimeline(t *testing.T) {
	f := newFixture(t, 1)

	result := f.ing.Ingest(context.Background(), alpha)

	require.NoError(t, result.FetchError)
	assert.NotNil(t, result.Entries)
	assert.Empty(t, result.Entries)
	assert.DirExists(t, filepath.Join(f.store.Root(), "alpha_city"))
}

func TestIngestInvalidDirectory(t *testing.T) {
	f := newFixture(t, 1)
	bad := models.TrackedAccount{Key: "bad", Handle: "../escape"}

	result := f.ing.Ingest(context.Background(), bad)

	require.Error(t, result.FetchError)
	assert.True(t, errs.IsType(result.FetchError, errs.ErrorTypeStorage))
	assert.Equal(t, 0, f.fetcher.callCount(bad.Handle))
}
