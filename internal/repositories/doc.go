// Package repositories implements SQLite persistence for run history.
//
// [RunRepository] stores every reconciliation report with one row per month outcome and one row per
// skipped track, so past runs can be listed and inspected after the fact.
//
// Sequence numbers provide stable, human-readable ordering (e.g., run #42) independent of UUIDs and timestamps.
// [NextSequence] bumps a per-table counter row inside the caller's transaction.
package repositories
