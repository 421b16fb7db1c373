package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// MaxCaptionRunes bounds the caption excerpt stored in the manifest
const MaxCaptionRunes = 200

// PermalinkBase is the public post URL prefix
const PermalinkBase = "https://www.instagram.com/p/"

// TrackedAccount is one configured city account
type TrackedAccount struct {
	Key         string `yaml:"key" toml:"key" json:"key"`
	RegionID    string `yaml:"region_id" toml:"region_id" json:"region_id"`
	DisplayName string `yaml:"name" toml:"name" json:"name"`
	Handle      string `yaml:"handle" toml:"handle" json:"handle"`
}

// MediaKind distinguishes image and video posts
type MediaKind string

const (
	MediaKindImage MediaKind = "image"
	MediaKindVideo MediaKind = "video"
)

// AssetRole tells which asset of a post a download refers to
type AssetRole string

const (
	AssetRolePrimary   AssetRole = "primary"
	AssetRoleThumbnail AssetRole = "thumbnail"
)

// PostRecord is the normalized metadata of one timeline item
type PostRecord struct {
	ExternalID        string
	ShortCode         string
	Kind              MediaKind
	PrimaryAssetURL   string
	SecondaryAssetURL string
	CapturedAt        time.Time
	CaptionExcerpt    string
	LikeCount         *int
	Permalink         string
}

// ErrIncompleteRecord is returned by Validate for records missing a mandatory field
var ErrIncompleteRecord = errors.New("incomplete post record")

// Validate rejects records that must never reach the manifest
func (p PostRecord) Validate() error {
	var missing []string
	if p.ExternalID == "" {
		missing = append(missing, "id")
	}
	if p.ShortCode == "" {
		missing = append(missing, "shortcode")
	}
	if p.PrimaryAssetURL == "" {
		missing = append(missing, "asset url")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrIncompleteRecord, strings.Join(missing, ", "))
	}
	return nil
}

// HasThumbnail reports whether a separate poster image should be fetched
func (p PostRecord) HasThumbnail() bool {
	return p.Kind == MediaKindVideo && p.SecondaryAssetURL != ""
}

// AssetRequest describes one asset to fetch into a local path
type AssetRequest struct {
	PostReference string
	Role          AssetRole
	URL           string
	Destination   string
	RelativePath  string
	Timeout       time.Duration
}

// DownloadOutcome is the result of one asset attempt
type DownloadOutcome struct {
	PostReference string
	Role          AssetRole
	LocalPath     string
	RelativePath  string
	Succeeded     bool
	FailureReason string
	Bytes         int64
	Duration      time.Duration
}

// Succeed marks the outcome successful
func (o *DownloadOutcome) Succeed(localPath, relativePath string, bytes int64) {
	o.Succeeded = true
	o.LocalPath = localPath
	o.RelativePath = relativePath
	o.Bytes = bytes
	o.FailureReason = ""
}

// Fail marks the outcome failed with the given reason
func (o *DownloadOutcome) Fail(reason string) {
	o.Succeeded = false
	o.LocalPath = ""
	o.RelativePath = ""
	o.FailureReason = reason
}

// ManifestEntry is the public shape of one downloaded item
type ManifestEntry struct {
	FilePath       string
	ThumbnailPath  *string
	Kind           MediaKind
	CapturedAt     *time.Time
	CaptionExcerpt string
	Permalink      string
	LikeCount      *int
}

// NewManifestEntry builds the entry for a post whose primary asset was stored
func NewManifestEntry(post PostRecord, primary DownloadOutcome, thumbnail *DownloadOutcome) ManifestEntry {
	entry := ManifestEntry{
		FilePath:       primary.RelativePath,
		Kind:           post.Kind,
		CaptionExcerpt: post.CaptionExcerpt,
		Permalink:      post.Permalink,
		LikeCount:      post.LikeCount,
	}
	if !post.CapturedAt.IsZero() {
		capturedAt := post.CapturedAt.UTC()
		entry.CapturedAt = &capturedAt
	}
	if thumbnail != nil && thumbnail.Succeeded {
		thumbPath := thumbnail.RelativePath
		entry.ThumbnailPath = &thumbPath
	}
	return entry
}

// AccountResult is one account's contribution to the manifest
type AccountResult struct {
	Account    TrackedAccount
	Entries    []ManifestEntry
	FetchError error
	// Skipped counts posts that were fetched but produced no entry
	Skipped int
}

// Failed reports whether metadata retrieval failed for the account
func (r AccountResult) Failed() bool {
	return r.FetchError != nil
}

// Excerpt normalizes a caption and bounds it to MaxCaptionRunes runes
func Excerpt(caption string) string {
	caption = strings.TrimSpace(norm.NFC.String(caption))
	if caption == "" {
		return ""
	}
	if !utf8.ValidString(caption) {
		caption = strings.ToValidUTF8(caption, "�")
	}
	if utf8.RuneCountInString(caption) <= MaxCaptionRunes {
		return caption
	}
	runes := []rune(caption)
	return string(runes[:MaxCaptionRunes])
}

// Permalink derives the public post URL from a short code
func Permalink(shortCode string) string {
	if shortCode == "" {
		return ""
	}
	return PermalinkBase + shortCode + "/"
}
