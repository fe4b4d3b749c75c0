package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/desertthunder/monthlies/internal/formatter"
	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
	"github.com/desertthunder/monthlies/internal/tasks"
	"github.com/desertthunder/monthlies/internal/ui"
	"github.com/urfave/cli/v3"
)

const tuiLogPath = "./tmp/monthlies-tui.log"

// printProgress writes progress updates until the channel closes, then closes done.
func (r *Runner) printProgress(progress <-chan tasks.ProgressUpdate, done chan<- struct{}) {
	defer close(done)
	for update := range progress {
		switch {
		case update.Failed:
			r.writePlain("✗ %s\n", update.Message)
		case update.Phase == tasks.Done:
		case update.Phase == tasks.CreatePlaylists || update.Phase == tasks.AppendTracks:
			r.writePlain("   %s\n", update.Message)
		default:
			r.writePlain("📥 %s\n", update.Message)
		}
	}
}

// OrganizePlan computes and prints the changes a run would make without modifying the library.
func (r *Runner) OrganizePlan(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")
	reportPath := cmd.String("report")

	engine, err := r.engine()
	if err != nil {
		return err
	}

	plan, err := withReauth(ctx, r, func() (*tasks.Plan, error) {
		return engine.Plan(ctx, nil)
	})
	if err != nil {
		return fmt.Errorf("failed to compute plan: %w", err)
	}

	report := plan.Report()

	if reportPath != "" {
		path, err := formatter.WriteReport(report, reportPath)
		if err != nil {
			return err
		}
		r.logger.Info("wrote plan", "path", path)
	}

	if useJSON {
		return r.writeJSON(report, true)
	}

	r.writePlainHeader("Plan")
	r.writePlain("Tracks scanned: %d\n", plan.TracksScanned)
	r.writePlain("Playlists to create: %d\n", len(plan.ToCreate))
	r.writePlain("Tracks to add: %d\n\n", plan.TotalAppends())

	for _, o := range report.Periods {
		switch o.Status {
		case models.StatusPlanned:
			if o.Op == "create" {
				r.writePlain("%s  %-24s +%d (new playlist)\n", o.Period, o.Playlist, o.Added)
			} else {
				r.writePlain("%s  %-24s +%d\n", o.Period, o.Playlist, o.Added)
			}
		case models.StatusFailed:
			r.writePlain("%s  %-24s ✗ [%s] %s\n", o.Period, o.Playlist, o.Op, o.Error)
		default:
			r.writePlain("%s  %-24s up to date\n", o.Period, o.Playlist)
		}
	}

	if n := len(plan.Anomalies); n > 0 {
		r.writePlainln("⚠ %d %s skipped:", n, shared.Pluralize(n, "track", "tracks"))
		for _, a := range plan.Anomalies {
			r.writePlain("  - %s (%s): %s\n", a.Title, a.TrackID, a.Reason)
		}
	}
	return nil
}

// OrganizeRun reconciles the library with its monthly playlists and records the run.
//
// Returns [shared.ErrRunFailures] when any month failed so the process exits non-zero.
func (r *Runner) OrganizeRun(ctx context.Context, cmd *cli.Command) error {
	if cmd.Bool("ui") {
		return r.organizeTUI(ctx, cmd)
	}

	engine, err := r.engine()
	if err != nil {
		return err
	}

	r.writePlain("Organizing saved tracks...\n")

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go r.printProgress(progress, done)

	report, runErr := engine.Run(ctx, progress)
	close(progress)
	<-done

	return r.finishRun(cmd, report, runErr)
}

// organizeTUI runs the reconciler behind the interactive plan/confirm/run screens.
func (r *Runner) organizeTUI(ctx context.Context, cmd *cli.Command) error {
	fileLogger, err := shared.NewFileLogger(tuiLogPath)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	engine, err := r.engine()
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, engine, cmd.Bool("yes"))
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	if model.Report() == nil {
		return model.Err()
	}
	return r.finishRun(cmd, model.Report(), model.Err())
}

// finishRun persists the report, writes the optional report file and prints the summary.
func (r *Runner) finishRun(cmd *cli.Command, report *models.RunReport, runErr error) error {
	if report == nil {
		return runErr
	}

	if err := r.saveRun(report); err != nil {
		r.logger.Error("failed to save run", "error", err)
	}

	if path := cmd.String("report"); path != "" {
		written, err := formatter.WriteReport(report, path)
		if err != nil {
			return err
		}
		r.logger.Info("wrote report", "path", written)
	}

	summary, err := formatter.ReportToText(report)
	if err != nil {
		return err
	}
	r.writePlain("\n")
	if _, err := r.output.Write(summary); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if runErr != nil {
		if shared.IsAuthorizationFailure(runErr) {
			r.writePlainln("⚠ Authorization failed. Run: monthlies auth login")
		}
		return fmt.Errorf("%w: %w", shared.ErrRunFailures, runErr)
	}
	if report.HasFailures() {
		return fmt.Errorf("%w: %d failed %s", shared.ErrRunFailures,
			len(report.Failures()), shared.Pluralize(len(report.Failures()), "month", "months"))
	}
	return nil
}

func (r *Runner) saveRun(report *models.RunReport) error {
	db, runs, err := r.openRuns()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := runs.Create(report); err != nil {
		return err
	}
	r.logger.Info("saved run", "id", report.ID, "seq", report.Seq)
	return nil
}
