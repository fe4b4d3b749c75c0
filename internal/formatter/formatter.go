// package formatter renders run reports and library listings as CSV, Markdown, JSON and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/monthlies/internal/models"
	"github.com/desertthunder/monthlies/internal/shared"
)

var reportHeaders = []string{"Period", "Playlist", "Playlist ID", "Status", "Added", "Already Present", "Op", "Error"}

// ReportToCSV writes one row per period with the columns in reportHeaders.
func ReportToCSV(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write(reportHeaders); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, o := range report.Periods {
		record := []string{
			string(o.Period),
			o.Playlist,
			o.PlaylistID,
			string(o.Status),
			strconv.Itoa(o.Added),
			strconv.Itoa(o.AlreadyPresent),
			o.Op,
			o.Error,
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// TracksToCSV converts saved tracks to CSV with columns: ID, Title, Artist, Added At, Period.
// Tracks with an unreadable timestamp have an empty period.
func TracksToCSV(tracks []models.TrackRecord, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	if err := writer.Write([]string{"ID", "Title", "Artist", "Added At", "Period"}); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, track := range tracks {
		period, _ := track.PeriodKey(loc)
		record := []string{track.ID, track.Title, track.Artist, track.AddedAt, string(period)}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

func title(report *models.RunReport) string {
	if report.DryRun {
		return "Plan"
	}
	if report.Seq > 0 {
		return fmt.Sprintf("Run #%d", report.Seq)
	}
	return "Run"
}

func duration(report *models.RunReport) string {
	return report.Duration().Round(time.Millisecond).String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

// ReportToMarkdown renders a report as a Markdown document with a period table and skipped tracks.
func ReportToMarkdown(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# %s\n\n", title(report)))
	buf.WriteString(fmt.Sprintf("**ID**: %s\n", report.ID))
	buf.WriteString(fmt.Sprintf("**Started**: %s\n", report.StartedAt.Format(time.RFC3339)))
	if !report.DryRun {
		buf.WriteString(fmt.Sprintf("**Duration**: %s\n", duration(report)))
	}
	buf.WriteString(fmt.Sprintf("**Tracks scanned**: %d\n", report.TracksScanned))
	buf.WriteString(fmt.Sprintf("**Playlists created**: %d\n", report.Created()))
	buf.WriteString(fmt.Sprintf("**Tracks added**: %d\n", report.Appended()))
	buf.WriteString(fmt.Sprintf("**Failures**: %d\n\n", len(report.Failures())))

	if report.Error != "" {
		buf.WriteString(fmt.Sprintf("> Aborted: %s\n\n", report.Error))
	}

	buf.WriteString("## Months\n\n")
	if len(report.Periods) == 0 {
		buf.WriteString("No saved tracks.\n")
	} else {
		buf.WriteString("| Month | Playlist | Status | Added | Already Present | Error |\n")
		buf.WriteString("| --- | --- | --- | ---: | ---: | --- |\n")
		for _, o := range report.Periods {
			status := string(o.Status)
			if o.Op != "" && (o.Failed() || o.Status == models.StatusPlanned) {
				status += " (" + o.Op + ")"
			}
			buf.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %d | %s |\n",
				o.Period.Label(), escapeCell(o.Playlist), status, o.Added, o.AlreadyPresent, escapeCell(o.Error)))
		}
	}

	if len(report.Anomalies) > 0 {
		buf.WriteString("\n## Skipped Tracks\n\n")
		for i, a := range report.Anomalies {
			buf.WriteString(fmt.Sprintf("%d. %s (%s): %s\n", i+1, a.Title, a.TrackID, a.Reason))
		}
	}

	return buf.Bytes(), nil
}

// ReportToText renders a report as plain text.
func ReportToText(report *models.RunReport) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("%s: %s\n", title(report), report.ID))
	buf.WriteString(fmt.Sprintf("Tracks scanned: %d\n", report.TracksScanned))
	buf.WriteString(fmt.Sprintf("Playlists created: %d\n", report.Created()))
	buf.WriteString(fmt.Sprintf("Tracks added: %d\n", report.Appended()))
	if n := len(report.Failures()); n > 0 {
		buf.WriteString(fmt.Sprintf("Failures: %d\n", n))
	}
	if report.Error != "" {
		buf.WriteString(fmt.Sprintf("Aborted: %s\n", report.Error))
	}
	if n := report.Retryable(); n > 0 {
		buf.WriteString(fmt.Sprintf("%d %s failed temporarily; running again may finish %s\n", n,
			shared.Pluralize(n, "month", "months"), shared.Pluralize(n, "it", "them")))
	}
	buf.WriteString("\n")

	for _, o := range report.Periods {
		line := fmt.Sprintf("%s  %-24s %-9s +%d", o.Period, o.Playlist, o.Status, o.Added)
		if o.AlreadyPresent > 0 {
			line += fmt.Sprintf(" (%d already present)", o.AlreadyPresent)
		}
		if o.Failed() {
			line += fmt.Sprintf(" [%s] %s", o.Op, o.Error)
			if o.Retryable {
				line += " (retry later)"
			}
		}
		buf.WriteString(line + "\n")
	}

	if len(report.Anomalies) > 0 {
		buf.WriteString(fmt.Sprintf("\nSkipped %d %s:\n", len(report.Anomalies), shared.Pluralize(len(report.Anomalies), "track", "tracks")))
		for _, a := range report.Anomalies {
			buf.WriteString(fmt.Sprintf("  %s - %s: %s\n", a.TrackID, a.Title, a.Reason))
		}
	}

	return buf.Bytes(), nil
}

// ReportToJSON renders a report as indented JSON.
func ReportToJSON(report *models.RunReport) ([]byte, error) {
	return shared.MarshalJSON(report, true)
}

// Format selects a report renderer.
type Format string

const (
	FormatText     Format = "text"
	FormatCSV      Format = "csv"
	FormatMarkdown Format = "markdown"
	FormatJSON     Format = "json"
)

// FormatForPath infers a format from a file extension.
func FormatForPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", "":
		return FormatText, nil
	case ".csv":
		return FormatCSV, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("%w: unsupported report extension %q", shared.ErrInvalidArgument, filepath.Ext(path))
	}
}

// Render renders report in format.
func Render(report *models.RunReport, format Format) ([]byte, error) {
	switch format {
	case FormatText:
		return ReportToText(report)
	case FormatCSV:
		return ReportToCSV(report)
	case FormatMarkdown:
		return ReportToMarkdown(report)
	case FormatJSON:
		return ReportToJSON(report)
	default:
		return nil, fmt.Errorf("%w: unknown format %q", shared.ErrInvalidArgument, format)
	}
}

// WriteReport writes report to path in the format implied by its extension.
//
// Defaults to {report.ID}.txt as the filename.
func WriteReport(report *models.RunReport, path string) (string, error) {
	if path == "" {
		path = report.ID + ".txt"
	}

	format, err := FormatForPath(path)
	if err != nil {
		return "", err
	}

	data, err := Render(report, format)
	if err != nil {
		return "", fmt.Errorf("failed to generate %s: %w", format, err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write report file: %w", err)
	}

	return path, nil
}

// WriteTracksCSV exports saved tracks to path.
func WriteTracksCSV(tracks []models.TrackRecord, loc *time.Location, path string) (string, error) {
	if path == "" {
		path = "saved_tracks.csv"
	}

	data, err := TracksToCSV(tracks, loc)
	if err != nil {
		return "", fmt.Errorf("failed to generate CSV: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write CSV file: %w", err)
	}

	return path, nil
}
