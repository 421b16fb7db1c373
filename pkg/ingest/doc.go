// Package ingest turns tracked accounts into manifest entries.
//
// An Ingestor handles one account: it fetches the recent timeline, builds
// item jobs and hands them to the download worker pool. A Pipeline runs
// the ingestor over every configured account in order, separated by the
// account pacing delay, and writes the manifest once at the end.
//
// Progress is reported as Events to an Observer. LogObserver turns them
// into structured log lines; the CLI adds a console observer on top.
package ingest
