// Package storage lays out downloaded assets on disk and provides the
// atomic write primitive used for both assets and the manifest.
//
// Layout under the output root:
//
//	<root>/<handle>/<shortcode>.jpg        image posts
//	<root>/<handle>/<shortcode>.mp4        video posts
//	<root>/<handle>/<shortcode>_thumb.jpg  video poster images
//	<root>/manifest.json
//
// WriteFileAtomic never exposes a partially written file at its target
// path; readers see either the previous content or the complete new one.
package storage
