// Package sqlite persists track-finder results in a SQLite database.
//
// A Store holds runs; each run holds the per-event statistics, the
// surviving tracks and their hits. The schema is managed by embedded
// golang-migrate migrations. Store.Exporter adapts a run to the
// pipeline.Exporter contract so the tracking core stays free of SQL.
package sqlite
