package instagram

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "citystories/pkg/errors"
	"citystories/pkg/logger"
	"citystories/pkg/models"
)

func imageNode(id, code string, ts int64, caption string, likes int) map[string]interface{} {
	return map[string]interface{}{
		"id":                 id,
		"shortcode":          code,
		"is_video":           false,
		"display_url":        "https://cdn.example.test/" + code + ".jpg",
		"taken_at_timestamp": ts,
		"edge_media_to_caption": map[string]interface{}{
			"edges": []interface{}{map[string]interface{}{"node": map[string]interface{}{"text": caption}}},
		},
		"edge_liked_by": map[string]interface{}{"count": likes},
	}
}

func videoNode(id, code string, ts int64) map[string]interface{} {
	return map[string]interface{}{
		"id":                    id,
		"shortcode":             code,
		"is_video":              true,
		"display_url":           "https://cdn.example.test/" + code + "_poster.jpg",
		"video_url":             "https://cdn.example.test/" + code + ".mp4",
		"taken_at_timestamp":    ts,
		"edge_media_to_caption": map[string]interface{}{"edges": []interface{}{}},
	}
}

func profileBody(t *testing.T, nodes ...interface{}) string {
	t.Helper()
	edges := make([]interface{}, 0, len(nodes))
	for _, n := range nodes {
		edges = append(edges, map[string]interface{}{"node": n})
	}
	doc := map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"id": "42",
				"edge_owner_to_timeline_media": map[string]interface{}{
					"count": len(edges),
					"edges": edges,
				},
			},
		},
		"status": "ok",
	}
	b, err := json.Marshal(doc)
	require.NoError(t, err)
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, auth Authenticator) (*Client, *logger.TestLogger) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	log := logger.NewTestLogger()
	client := NewClient(Options{
		BaseURL:   server.URL,
		UserAgent: "citystories-test",
		Timeout:   2 * time.Second,
		Auth:      auth,
		Logger:    log,
	})
	return client, log
}

func TestFetchRecentPostsSendsHeadersAndCookie(t *testing.T) {
	var got *http.Request
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		got = r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(profileBody(t)))
	}, NewSessionTokenAuth("sess-123", "csrf-9"))

	_, err := client.FetchRecentPosts(context.Background(), "istanbulanlik", 6)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, ProfileEndpoint, got.URL.Path)
	assert.Equal(t, "istanbulanlik", got.URL.Query().Get("username"))
	assert.Equal(t, DefaultAppID, got.Header.Get("X-IG-App-ID"))
	assert.Equal(t, "XMLHttpRequest", got.Header.Get("X-Requested-With"))
	assert.Equal(t, "citystories-test", got.Header.Get("User-Agent"))
	assert.Equal(t, "csrf-9", got.Header.Get("X-CSRFToken"))

	cookie, err := got.Cookie("sessionid")
	require.NoError(t, err)
	assert.Equal(t, "sess-123", cookie.Value)
}

func TestFetchRecentPostsParsesTimeline(t *testing.T) {
	longCaption := strings.Repeat("ğ", 250)
	body := profileBody(t,
		imageNode("1", "A1", 1714564800, "first", 10),
		videoNode("2", "XYZ123", 1714478400),
		imageNode("3", "C3", 1714392000, longCaption, 0),
	)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}, NewSessionTokenAuth("s", ""))

	posts, err := client.FetchRecentPosts(context.Background(), "alpha", 6)
	require.NoError(t, err)
	require.Len(t, posts, 3)

	assert.Equal(t, "A1", posts[0].ShortCode)
	assert.Equal(t, models.MediaKindImage, posts[0].Kind)
	assert.Equal(t, "https://cdn.example.test/A1.jpg", posts[0].PrimaryAssetURL)
	assert.Equal(t, "first", posts[0].CaptionExcerpt)
	require.NotNil(t, posts[0].LikeCount)
	assert.Equal(t, 10, *posts[0].LikeCount)
	assert.Equal(t, time.Unix(1714564800, 0).UTC(), posts[0].CapturedAt)
	assert.Equal(t, "https://www.instagram.com/p/A1/", posts[0].Permalink)

	video := posts[1]
	assert.Equal(t, models.MediaKindVideo, video.Kind)
	assert.Equal(t, "https://cdn.example.test/XYZ123.mp4", video.PrimaryAssetURL)
	assert.Equal(t, "https://cdn.example.test/XYZ123_poster.jpg", video.SecondaryAssetURL)
	assert.Equal(t, "", video.CaptionExcerpt)
	assert.Nil(t, video.LikeCount)
	assert.True(t, video.HasThumbnail())

	assert.Equal(t, models.MaxCaptionRunes, len([]rune(posts[2].CaptionExcerpt)))
	require.NotNil(t, posts[2].LikeCount)
	assert.Equal(t, 0, *posts[2].LikeCount)
}

func TestFetchRecentPostsHonoursCount(t *testing.T) {
	var nodes []interface{}
	for i := 0; i < 12; i++ {
		code := string(rune('A' + i))
		nodes = append(nodes, imageNode(code, code, int64(1714564800-i), "", 1))
	}
	body := profileBody(t, nodes...)
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}, NewSessionTokenAuth("s", ""))

	posts, err := client.FetchRecentPosts(context.Background(), "alpha", 6)
	require.NoError(t, err)
	require.Len(t, posts, 6)
	assert.Equal(t, "A", posts[0].ShortCode)
	assert.Equal(t, "F", posts[5].ShortCode)

	posts, err = client.FetchRecentPosts(context.Background(), "alpha", 100)
	require.NoError(t, err)
	assert.Len(t, posts, MaxPostsPerPage)
}

func TestFetchRecentPostsSkipsMalformedItems(t *testing.T) {
	noURL := imageNode("2", "B2", 1, "", 1)
	delete(noURL, "display_url")
	badTypes := map[string]interface{}{"id": 7, "shortcode": []int{1}}
	drifted := imageNode("6", "F6", 1, "", 1)
	drifted["edge_liked_by"] = map[string]interface{}{"count": "12"}
	drifted["taken_at_timestamp"] = 1700000000.5
	drifted["edge_media_to_caption"] = "gone"
	drifted["is_video"] = "yes"

	body := profileBody(t,
		imageNode("1", "A1", 1, "", 1),
		noURL,
		badTypes,
		"not an object",
		drifted,
		imageNode("5", "E5", 1, "", 1),
	)
	client, log := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}, NewSessionTokenAuth("s", ""))

	posts, err := client.FetchRecentPosts(context.Background(), "alpha", 6)
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "A1", posts[0].ShortCode)
	assert.Equal(t, "E5", posts[2].ShortCode)
	assert.Len(t, log.GetMessagesByLevel("WARN"), 3)

	// drifted optional fields only lose themselves
	kept := posts[1]
	assert.Equal(t, "F6", kept.ShortCode)
	assert.Equal(t, models.MediaKindImage, kept.Kind)
	assert.Equal(t, "https://cdn.example.test/F6.jpg", kept.PrimaryAssetURL)
	assert.Nil(t, kept.LikeCount)
	assert.Empty(t, kept.CaptionExcerpt)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), kept.CapturedAt)
}

func TestFetchRecentPostsFallsBackToPreviewLikes(t *testing.T) {
	node := imageNode("3", "C3", 1, "hi", 1)
	node["edge_liked_by"] = map[string]interface{}{"count": nil}
	node["edge_media_preview_like"] = map[string]interface{}{"count": 9}
	node["taken_at_timestamp"] = "yesterday"
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(profileBody(t, node)))
	}, NewSessionTokenAuth("s", ""))

	posts, err := client.FetchRecentPosts(context.Background(), "alpha", 6)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.NotNil(t, posts[0].LikeCount)
	assert.Equal(t, 9, *posts[0].LikeCount)
	assert.True(t, posts[0].CapturedAt.IsZero())
	assert.Equal(t, "hi", posts[0].CaptionExcerpt)
}

func TestFetchRecentPostsVideoWithoutURLDegradesToImage(t *testing.T) {
	node := videoNode("9", "V9", 1)
	delete(node, "video_url")
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(profileBody(t, node)))
	}, NewSessionTokenAuth("s", ""))

	posts, err := client.FetchRecentPosts(context.Background(), "alpha", 6)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, models.MediaKindImage, posts[0].Kind)
	assert.Equal(t, "https://cdn.example.test/V9_poster.jpg", posts[0].PrimaryAssetURL)
	assert.Empty(t, posts[0].SecondaryAssetURL)
}

func TestFetchRecentPostsDegradesOnShapeDrift(t *testing.T) {
	bodies := map[string]string{
		"no data":         `{"status":"ok"}`,
		"null user":       `{"data":{"user":null}}`,
		"user is string":  `{"data":{"user":"gone"}}`,
		"no timeline":     `{"data":{"user":{"id":"1"}}}`,
		"timeline array":  `{"data":{"user":{"edge_owner_to_timeline_media":[]}}}`,
		"edges is object": `{"data":{"user":{"edge_owner_to_timeline_media":{"edges":{}}}}}`,
	}
	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}, NewSessionTokenAuth("s", ""))

			posts, err := client.FetchRecentPosts(context.Background(), "alpha", 6)
			require.NoError(t, err)
			assert.Empty(t, posts)
		})
	}
}

func TestFetchRecentPostsErrors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType errs.ErrorType
	}{
		{name: "html body", status: 200, body: "<html>login</html>", wantType: errs.ErrorTypeParsing},
		{name: "json array", status: 200, body: "[]", wantType: errs.ErrorTypeParsing},
		{name: "truncated json", status: 200, body: `{"data":`, wantType: errs.ErrorTypeParsing},
		{name: "login demanded", status: 200, body: `{"requires_to_login":true}`, wantType: errs.ErrorTypeAuth},
		{name: "unauthorized", status: 401, body: `{"require_login":true}`, wantType: errs.ErrorTypeAuth},
		{name: "not found", status: 404, body: "", wantType: errs.ErrorTypeNotFound},
		{name: "rate limited", status: 429, body: "", wantType: errs.ErrorTypeRateLimit},
		{name: "server error", status: 503, body: "", wantType: errs.ErrorTypeServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}, NewSessionTokenAuth("s", ""))

			posts, err := client.FetchRecentPosts(context.Background(), "beta", 6)
			require.Error(t, err)
			assert.Nil(t, posts)

			var fetchErr *errs.MetadataFetchError
			require.ErrorAs(t, err, &fetchErr)
			assert.Equal(t, "beta", fetchErr.Handle)
			assert.Equal(t, tt.wantType, errs.TypeOf(err))
		})
	}
}

func TestFetchRecentPostsTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Options{
		BaseURL: server.URL,
		Timeout: 50 * time.Millisecond,
		Auth:    NewSessionTokenAuth("s", ""),
		Logger:  logger.NewNopLogger(),
	})

	_, err := client.FetchRecentPosts(context.Background(), "alpha", 6)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeNetwork, errs.TypeOf(err))
	assert.Contains(t, err.Error(), "timed out")
}

func TestFetchRecentPostsRejectsInvalidHandle(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, NewSessionTokenAuth("s", ""))

	for _, handle := range []string{"", "../x", "a b"} {
		_, err := client.FetchRecentPosts(context.Background(), handle, 6)
		assert.Error(t, err)
	}
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestFetchRecentPostsMissingSession(t *testing.T) {
	var calls int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, NewSessionTokenAuth("", ""))

	_, err := client.FetchRecentPosts(context.Background(), "alpha", 6)
	require.Error(t, err)
	assert.Equal(t, errs.ErrorTypeAuth, errs.TypeOf(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestUsernameHelpers(t *testing.T) {
	assert.True(t, IsValidUsername("trabzonanliktr"))
	assert.True(t, IsValidUsername("a.b_c"))
	assert.False(t, IsValidUsername(".."))
	assert.False(t, IsValidUsername(strings.Repeat("a", 31)))
	assert.Equal(t, "ankaraanlikcom", SanitizeUsername(" @ankaraanlikcom/ "))
	assert.Equal(t, "https://www.instagram.com/api/v1/users/web_profile_info/?username=x", ProfileURL(BaseURL+"/", "x"))
	assert.Equal(t, 1, clampCount(0))
}
