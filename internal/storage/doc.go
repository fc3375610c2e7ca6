// Package storage persists job run history.
//
// Drivers:
//   - "file": JSON Lines, one record per run, compacted in place
//   - "sqlite": SQLite database file (modernc.org/sqlite, pure Go)
//   - "none" or "": disabled, Open returns (nil, nil)
//
// Fetched payloads are never stored; only the outcome of each run.
package storage
