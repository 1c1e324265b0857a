// Package database provides SQLite-based storage for treecrawl.
//
// This package implements the CrawlDB, which stores:
//   - One row per crawl run with the full report as JSON
//   - The manifest entries produced by each run
//   - The directories each run failed to list
//
// Stored runs are what the compare command diffs.
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
