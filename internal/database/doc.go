// Package database provides SQLite-based run history for pagefetch.
//
// The HistoryDB stores:
//   - One row per run with its inputs and final totals
//   - One row per URL outcome with reason, status, proxy and duration
//   - For saved pages, a SHA3-256 content hash and the detected language
//
// Page bodies stay on disk in the destination folder; the database only
// answers "what happened in run N" for the history command.
//
// SQLite is used via modernc.org/sqlite, which is CGO-free, so the binary
// cross-compiles without a C toolchain. The database lives under the XDG
// data directory by default.
package database
