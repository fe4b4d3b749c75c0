// Package tasks reconciles a user's saved tracks with one playlist per calendar month.
//
// # Core Operations
//
// The [Engine] interface defines two operations:
//
//  1. [Engine.Plan] : Dry run
//     - Fetches saved tracks and the playlist listing once
//     - Buckets tracks by the month they were saved ([ComputeGroups])
//     - Reports the playlists to create and the tracks each playlist is missing
//
//  2. [Engine.Run] : Reconciliation
//     - Creates every missing monthly playlist before any track is appended
//     - Fetches the listing again so new playlists resolve to their ids
//     - Appends only tracks a playlist does not already hold, in batches of 100
//     - Returns a [models.RunReport] with one outcome per month
//
// Running twice against an unchanged library makes no changes the second time.
//
// # Failures
//
// A failed create, fetch or append marks only that month as failed. Authorization failures and
// cancellation abort the run and mark the remaining months as skipped.
//
// # Progress Reporting
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and optional data for advanced UI rendering.
// Updates use select with default to prevent blocking.
package tasks
