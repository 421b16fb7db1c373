package instagram

import (
	"bytes"
	"encoding/json"
	"time"

	errs "citystories/pkg/errors"
	"citystories/pkg/logger"
	"citystories/pkg/models"
)

// extractPosts turns a profile response body into at most count records.
// Only a body that is not a JSON object, or one that demands a login, is an
// error; a missing user or timeline yields zero records, and each
// malformed item is skipped on its own.
func extractPosts(body []byte, handle string, count int, log logger.Logger) ([]models.PostRecord, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "response is not a JSON object")
	}

	var top map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &top); err != nil {
		return nil, errs.New(errs.ErrorTypeParsing, 0, "failed to parse JSON: %v", err)
	}

	if loginRequired(top) {
		return nil, errs.New(errs.ErrorTypeAuth, 0, "session was rejected, login required")
	}

	log = log.WithField("handle", handle)

	var data dataDoc
	if !decodeBranch(top["data"], &data) {
		log.Warn("response has no data object, treating as empty timeline")
		return nil, nil
	}
	var user userDoc
	if !decodeBranch(data.User, &user) {
		log.Warn("response has no user object, treating as empty timeline")
		return nil, nil
	}
	var timeline timelineDoc
	if !decodeBranch(user.Timeline, &timeline) {
		log.Warn("user has no timeline, treating as empty timeline")
		return nil, nil
	}

	edges := timeline.Edges
	if len(edges) > count {
		edges = edges[:count]
	}

	records := make([]models.PostRecord, 0, len(edges))
	for i, raw := range edges {
		record, err := recordFromEdge(raw)
		if err != nil {
			log.WarnWithFields("skipping malformed timeline item", map[string]interface{}{
				"index": i,
				"error": err.Error(),
			})
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func loginRequired(top map[string]json.RawMessage) bool {
	for _, key := range []string{"requires_to_login", "require_login"} {
		var v bool
		if raw, ok := top[key]; ok && json.Unmarshal(raw, &v) == nil && v {
			return true
		}
	}
	return false
}

// decodeBranch reports whether raw held a JSON object that decoded into v
func decodeBranch(raw json.RawMessage, v interface{}) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return false
	}
	return json.Unmarshal(raw, v) == nil
}

func recordFromEdge(raw json.RawMessage) (models.PostRecord, error) {
	var edge edgeDoc
	if !decodeBranch(raw, &edge) {
		return models.PostRecord{}, errs.New(errs.ErrorTypeParsing, 0, "edge is not an object")
	}
	var node nodeDoc
	if !decodeBranch(edge.Node, &node) {
		return models.PostRecord{}, errs.New(errs.ErrorTypeParsing, 0, "node is missing or malformed")
	}

	record := recordFromNode(node)
	if err := record.Validate(); err != nil {
		return models.PostRecord{}, err
	}
	return record, nil
}

func recordFromNode(node nodeDoc) models.PostRecord {
	record := models.PostRecord{
		ExternalID:      node.ID,
		ShortCode:       node.Shortcode,
		Kind:            models.MediaKindImage,
		PrimaryAssetURL: node.DisplayURL,
		Permalink:       models.Permalink(node.Shortcode),
	}

	// a video without a playable url is kept as its poster image
	var isVideo bool
	var videoURL string
	if json.Unmarshal(node.IsVideo, &isVideo) == nil && isVideo &&
		json.Unmarshal(node.VideoURL, &videoURL) == nil && videoURL != "" {
		record.Kind = models.MediaKindVideo
		record.PrimaryAssetURL = videoURL
		record.SecondaryAssetURL = node.DisplayURL
	}

	record.CapturedAt = capturedAt(node.TakenAtTimestamp)

	var caption captionDoc
	if decodeBranch(node.Caption, &caption) && len(caption.Edges) > 0 {
		record.CaptionExcerpt = models.Excerpt(caption.Edges[0].Node.Text)
	}

	record.LikeCount = likeCount(node.LikedBy, node.PreviewLike)
	return record
}

// capturedAt accepts whole or fractional unix seconds; anything else is the
// zero time.
func capturedAt(raw json.RawMessage) time.Time {
	var secs float64
	if json.Unmarshal(raw, &secs) != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(int64(secs), 0).UTC()
}

// likeCount returns the first non-negative integer count, or nil
func likeCount(docs ...json.RawMessage) *int {
	for _, raw := range docs {
		var c countDoc
		if decodeBranch(raw, &c) && c.Count != nil && *c.Count >= 0 {
			n := *c.Count
			return &n
		}
	}
	return nil
}
