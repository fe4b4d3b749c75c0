package repositories

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
)

// RunRepository persists reconciliation reports with their per-period outcomes and anomalies.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository creates a new RunRepository with the given database connection
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create stores report and assigns its sequence number. A missing id is generated.
func (r *RunRepository) Create(report *models.RunReport) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	sequence, err := NextSequence(tx, "runs")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	if report.ID == "" {
		report.ID = shared.GenerateID()
	}
	report.Seq = int64(sequence)

	query := `
		INSERT INTO runs (
			id, seq, dry_run, tracks_scanned, anomalies, created, appended,
			failed, error, started_at, finished_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.Exec(query,
		report.ID,
		report.Seq,
		report.DryRun,
		report.TracksScanned,
		len(report.Anomalies),
		report.Created(),
		report.Appended(),
		len(report.Failures()),
		report.Error,
		report.StartedAt.UTC(),
		report.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, p := range report.Periods {
		_, err := tx.Exec(`
			INSERT INTO run_periods (
				run_id, period, playlist, playlist_id, status, added, already_present, op, error, retryable
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, report.ID, string(p.Period), p.Playlist, p.PlaylistID, string(p.Status), p.Added, p.AlreadyPresent, p.Op, p.Error, p.Retryable)
		if err != nil {
			return fmt.Errorf("failed to insert outcome for %s: %w", p.Period, err)
		}
	}

	for i, a := range report.Anomalies {
		_, err := tx.Exec(`
			INSERT INTO run_anomalies (run_id, position, track_id, title, added_at, reason)
			VALUES (?, ?, ?, ?, ?, ?)
		`, report.ID, i, a.TrackID, a.Title, a.AddedAt, a.Reason)
		if err != nil {
			return fmt.Errorf("failed to insert anomaly: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	return nil
}

const selectRuns = `
	SELECT id, seq, dry_run, tracks_scanned, error, started_at, finished_at
	FROM runs
`

// Get retrieves a run by id, including its outcomes and anomalies.
func (r *RunRepository) Get(id string) (*models.RunReport, error) {
	report, err := r.scanOne(r.db.QueryRow(selectRuns+" WHERE id = ?", id))
	if err != nil {
		return nil, err
	}
	if err := r.loadDetails(report); err != nil {
		return nil, err
	}
	return report, nil
}

// Latest retrieves the most recent run.
func (r *RunRepository) Latest() (*models.RunReport, error) {
	report, err := r.scanOne(r.db.QueryRow(selectRuns + " ORDER BY seq DESC LIMIT 1"))
	if err != nil {
		return nil, err
	}
	if err := r.loadDetails(report); err != nil {
		return nil, err
	}
	return report, nil
}

// List retrieves the most recent runs first. A limit of zero returns every run.
func (r *RunRepository) List(limit int) ([]*models.RunReport, error) {
	query := selectRuns + " ORDER BY seq DESC"
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var reports []*models.RunReport
	for rows.Next() {
		report, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, report)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	for _, report := range reports {
		if err := r.loadDetails(report); err != nil {
			return nil, err
		}
	}

	return reports, nil
}

// Delete removes a run with its outcomes and anomalies.
func (r *RunRepository) Delete(id string) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"run_periods", "run_anomalies"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	result, err := tx.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrRunNotFound, id)
	}

	return tx.Commit()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*models.RunReport, error) {
	var (
		report     models.RunReport
		startedAt  time.Time
		finishedAt time.Time
	)

	err := row.Scan(&report.ID, &report.Seq, &report.DryRun, &report.TracksScanned, &report.Error, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	report.StartedAt = startedAt.UTC()
	report.FinishedAt = finishedAt.UTC()
	return &report, nil
}

// scanOne scans a single [sql.Row] into a [models.RunReport]
func (r *RunRepository) scanOne(row *sql.Row) (*models.RunReport, error) {
	report, err := scanReport(row)
	if err == sql.ErrNoRows {
		return nil, shared.ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return report, nil
}

// scanRow scans a row from [sql.Rows] into a [models.RunReport]
func (r *RunRepository) scanRow(rows *sql.Rows) (*models.RunReport, error) {
	report, err := scanReport(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to scan run: %w", err)
	}
	return report, nil
}

func (r *RunRepository) loadDetails(report *models.RunReport) error {
	rows, err := r.db.Query(`
		SELECT period, playlist, playlist_id, status, added, already_present, op, error, retryable
		FROM run_periods
		WHERE run_id = ?
		ORDER BY period
	`, report.ID)
	if err != nil {
		return fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	report.Periods = []models.PeriodOutcome{}
	for rows.Next() {
		var (
			o      models.PeriodOutcome
			period string
			status string
		)
		if err := rows.Scan(&period, &o.Playlist, &o.PlaylistID, &status, &o.Added, &o.AlreadyPresent, &o.Op, &o.Error, &o.Retryable); err != nil {
			return fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Period = models.PeriodKey(period)
		o.Status = models.OutcomeStatus(status)
		report.Periods = append(report.Periods, o)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("row iteration error: %w", err)
	}

	return r.loadAnomalies(report)
}

func (r *RunRepository) loadAnomalies(report *models.RunReport) error {
	rows, err := r.db.Query(`
		SELECT track_id, title, added_at, reason
		FROM run_anomalies
		WHERE run_id = ?
		ORDER BY position
	`, report.ID)
	if err != nil {
		return fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	report.Anomalies = nil
	for rows.Next() {
		var a models.Anomaly
		if err := rows.Scan(&a.TrackID, &a.Title, &a.AddedAt, &a.Reason); err != nil {
			return fmt.Errorf("failed to scan anomaly: %w", err)
		}
		report.Anomalies = append(report.Anomalies, a)
	}
	return rows.Err()
}
