package main

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/monthlies/internal/formatter"
	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/urfave/cli/v3"
)

// HistoryList prints recorded runs, newest first.
func (r *Runner) HistoryList(ctx context.Context, cmd *cli.Command) error {
	limit := int(cmd.Int("limit"))

	db, runs, err := r.openRuns()
	if err != nil {
		return err
	}
	defer db.Close()

	reports, err := runs.List(limit)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if reports == nil {
			reports = []*models.RunReport{}
		}
		return r.writeJSON(reports, cmd.Bool("pretty"))
	}

	if len(reports) == 0 {
		return r.writePlain("No runs recorded\n")
	}

	for _, report := range reports {
		status := "ok"
		switch {
		case report.Error != "":
			status = "aborted"
		case report.HasFailures():
			status = fmt.Sprintf("%d failed", len(report.Failures()))
		}
		r.writePlain("#%-4d %s  %s  created %d, added %d  %s\n",
			report.Seq,
			report.StartedAt.Local().Format(time.DateTime),
			report.ID,
			report.Created(),
			report.Appended(),
			status,
		)
	}
	return nil
}

// HistoryShow prints one run in full. Without --id the latest run is shown.
// --period narrows the report to a single month.
func (r *Runner) HistoryShow(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")
	period := models.PeriodKey(cmd.String("period"))
	if period != "" && !period.Valid() {
		return fmt.Errorf("%w: period %q must be YYYYMM", shared.ErrInvalidArgument, period)
	}

	db, runs, err := r.openRuns()
	if err != nil {
		return err
	}
	defer db.Close()

	var report *models.RunReport
	if id == "" {
		report, err = runs.Latest()
	} else {
		report, err = runs.Get(id)
	}
	if err != nil {
		return err
	}

	if period != "" {
		outcome := report.Outcome(period)
		if outcome == nil {
			return fmt.Errorf("%w: run %s has no outcome for %s", shared.ErrInvalidArgument, report.ID, period)
		}
		report.Periods = []models.PeriodOutcome{*outcome}
	}

	if path := cmd.String("report"); path != "" {
		written, err := formatter.WriteReport(report, path)
		if err != nil {
			return err
		}
		return r.writePlain("✓ Report written to %s\n", written)
	}

	if cmd.Bool("json") {
		return r.writeJSON(report, true)
	}

	data, err := formatter.ReportToText(report)
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// HistoryDelete removes a recorded run.
func (r *Runner) HistoryDelete(ctx context.Context, cmd *cli.Command) error {
	id := cmd.String("id")

	db, runs, err := r.openRuns()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := runs.Delete(id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted run %s\n", id)
}
