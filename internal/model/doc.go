// Package model defines the core data structures used throughout treecrawl.
//
// This package contains the following main types:
//   - Entry: A single manifest record, either a FileEntry or a DirEntry
//   - CrawlResult: The outcome of listing one directory
//   - FailedPath: A directory whose listing failed permanently
//   - CrawlReport: The summary of a whole crawl of one root
//
// Design decision: We separate models into their own package to avoid circular
// dependencies. The crawler, hierarchy, database and report packages all need
// these types, so centralizing them prevents import cycles.
//
// The models are designed to be serializable to JSON for report output and
// database storage.
package model
