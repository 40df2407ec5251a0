// Package model defines the core data structures used throughout pagefetch.
//
// This package contains the following main types:
//   - Outcome: The terminal result of fetching one URL (success or failure)
//   - Reason: The closed set of failure reasons an Outcome can carry
//   - RunSummary: Aggregated counts for one batch run
//
// It also holds the small pure helpers that derive values from a URL or a
// proxy address (NormalizeURL, PagePaths, ParseProxy), so every package that
// needs them agrees on the same rules.
//
// Multiple packages (fetch, output, database, report) use these types;
// keeping them here prevents import cycles.
package model
