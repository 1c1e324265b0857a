// Package hierarchy accumulates crawl events into a flat path-to-entry map
// that forms a well-formed rooted tree.
//
// # Invariants
//
// A finished Hierarchy satisfies two rules, checked by Validate:
//   - "/" is present and is a directory
//   - for every other key, the nearest ancestor path that is also a key
//     is a directory, so files never have children
//
// Keys are clean absolute slash paths without a trailing slash.
//
// # Building
//
// A Builder owns the Hierarchy while a crawl runs. Its Include method has the
// shape of crawler.IncludeFunc, so the crawler's inclusion decision and the
// insertion into the map happen in one call:
//
//	b := hierarchy.NewBuilder(
//	    hierarchy.WithPolicy(filter.Allow),
//	    hierarchy.WithDriver("ftp"),
//	)
//	walker := crawler.NewWalker(lister, b.Include)
//	outcome, err := walker.Crawl(ctx, "/pub/data", sessions)
//	b.AddAncestorPrefixes("/pub/data")
//	if err := b.Hierarchy().Validate(); err != nil { ... }
//
// Design decision: The Builder is not safe for concurrent use. The crawler
// calls the inclusion callback from its coordinator goroutine only, so a lock
// would never be contended.
package hierarchy
