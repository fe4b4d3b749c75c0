// Package models defines the domain entities for the monthlies playlist organizer.
//
// The package contains two categories of types:
//
// 1. Catalog records: values fetched from the music catalog and never modified locally
//   - [TrackRecord] : A saved track with the raw timestamp it was saved at
//   - [PlaylistSummary] : Basic metadata for one of the user's playlists
//
// 2. Run results: values produced by a reconciliation run
//   - [PeriodKey] : The YYYYMM bucket a track belongs to
//   - [Anomaly] : A saved track excluded from planning
//   - [RunReport] : The per-run summary persisted to the run history
//   - [PeriodOutcome] : What happened to one monthly playlist during a run
package models
