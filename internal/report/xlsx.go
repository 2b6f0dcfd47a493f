// Package report writes a batch report as a spreadsheet for listening sessions.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/maauso/infill-eval/internal/eval"
)

const (
	trialsSheet  = "Trials"
	summarySheet = "Summary"
)

// ErrNilReport is returned when there is nothing to write.
var ErrNilReport = errors.New("report: nil report")

type column struct {
	title string
	width float64
	value func(eval.TrialResult) interface{}
}

var columns = []column{
	{"Trial", 7, func(r eval.TrialResult) interface{} { return r.Trial.Index }},
	{"Start index", 11, func(r eval.TrialResult) interface{} { return r.Trial.StartIndex }},
	{"Status", 11, func(r eval.TrialResult) interface{} { return string(r.Status) }},
	{"Left", 40, func(r eval.TrialResult) interface{} { return strings.TrimSpace(r.Boundaries.Left.Text) }},
	{"Middle", 30, func(r eval.TrialResult) interface{} { return strings.TrimSpace(r.Boundaries.Middle.Text) }},
	{"Right", 40, func(r eval.TrialResult) interface{} { return strings.TrimSpace(r.Boundaries.Right.Text) }},
	{"Middle start", 12, func(r eval.TrialResult) interface{} { return r.Boundaries.Middle.Start }},
	{"Middle end", 12, func(r eval.TrialResult) interface{} { return r.Boundaries.Middle.End }},
	{"Generated sec", 14, func(r eval.TrialResult) interface{} { return r.GeneratedSec }},
	{"Artifact", 50, func(r eval.TrialResult) interface{} { return r.ArtifactPath }},
	{"URL", 50, func(r eval.TrialResult) interface{} { return r.URL }},
	{"Rating", 8, func(eval.TrialResult) interface{} { return "" }},
	{"Error", 60, func(r eval.TrialResult) interface{} { return r.Error() }},
}

// WriteXLSX writes rep to path with one row per trial and a summary sheet.
// The empty Rating column is left for the listener.
func WriteXLSX(path string, rep *eval.Report) (err error) {
	if rep == nil {
		return ErrNilReport
	}

	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close workbook: %w", cerr)
		}
	}()

	if err := f.SetSheetName("Sheet1", trialsSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := writeTrials(f, rep); err != nil {
		return err
	}
	if err := writeSummary(f, rep); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeTrials(f *excelize.File, rep *eval.Report) error {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#DDDDDD"}},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	titles := make([]interface{}, len(columns))
	for i, c := range columns {
		titles[i] = c.title
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(trialsSheet, name, name, c.width); err != nil {
			return fmt.Errorf("set column width: %w", err)
		}
	}
	if err := f.SetSheetRow(trialsSheet, "A1", &titles); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(columns), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(trialsSheet, "A1", last, header); err != nil {
		return fmt.Errorf("style header: %w", err)
	}

	for i, res := range rep.Results {
		row := make([]interface{}, len(columns))
		for j, c := range columns {
			row[j] = c.value(res)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(trialsSheet, cell, &row); err != nil {
			return fmt.Errorf("write trial %d: %w", res.Trial.Index, err)
		}
	}
	return nil
}

func writeSummary(f *excelize.File, rep *eval.Report) error {
	if _, err := f.NewSheet(summarySheet); err != nil {
		return fmt.Errorf("create summary sheet: %w", err)
	}

	rows := [][]interface{}{
		{"Run ID", rep.RunID},
		{"Voice ID", rep.VoiceID},
		{"Started", rep.StartedAt.Format("2006-01-02 15:04:05")},
		{"Duration (s)", rep.Duration().Seconds()},
		{"Trials", len(rep.Results)},
		{"Completed", rep.Count(eval.StatusCompleted)},
		{"Skipped", rep.Count(eval.StatusSkipped)},
		{"Failed", rep.Count(eval.StatusFailed)},
	}
	for i := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(summarySheet, cell, &rows[i]); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	if err := f.SetColWidth(summarySheet, "A", "A", 14); err != nil {
		return fmt.Errorf("set column width: %w", err)
	}
	return f.SetColWidth(summarySheet, "B", "B", 40)
}
