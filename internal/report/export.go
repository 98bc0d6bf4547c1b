package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"voice-analysis-go/internal/aggregator"
	"voice-analysis-go/internal/analysis"
	"voice-analysis-go/internal/types"
)

const (
	SheetResults = "Results"
	SheetSummary = "Summary"
)

var resultHeader = []string{
	"Filename", "Status", "Chunks", "Privacy", "Privacy Types", "Category Code", "Category",
	"Confidence", "Detected Elements", "Element Source", "Degraded Stages", "Final Text", "Error",
}

// Write renders the job's tasks and summary as an xlsx workbook into w.
func Write(w io.Writer, job types.AnalysisJob, tasks []types.FileTask, sum aggregator.Summary) error {
	f, err := build(job, tasks, sum)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Export saves the workbook to path.
func Export(path string, job types.AnalysisJob, tasks []types.FileTask, sum aggregator.Summary) error {
	f, err := build(job, tasks, sum)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func build(job types.AnalysisJob, tasks []types.FileTask, sum aggregator.Summary) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetSummary); err != nil {
		return nil, fmt.Errorf("add summary sheet: %w", err)
	}

	if err := writeRow(f, SheetResults, 1, toAny(resultHeader)); err != nil {
		return nil, err
	}
	for i, t := range tasks {
		if err := writeRow(f, SheetResults, i+2, taskRow(t)); err != nil {
			return nil, err
		}
	}

	rows := [][]any{
		{"Job ID", job.JobID},
		{"Scope", job.Scope},
		{"Status", string(job.Status)},
		{"Files", sum.Total},
		{"Progress %", sum.ProgressPercent},
		{"Completed", sum.ByStatus[types.StatusCompleted]},
		{"Failed", sum.ByStatus[types.StatusFailed]},
		{"Chunks", sum.ChunksTotal},
		{"Chunks Failed", sum.ChunksFailed},
		{"Privacy Hits", sum.PrivacyHits},
	}
	for _, k := range sortedKeys(sum.CategoryCounts) {
		rows = append(rows, []any{"Category " + k, sum.CategoryCounts[k]})
	}
	for _, name := range analysis.ElementNames {
		rows = append(rows, []any{"Element " + name, sum.ElementCounts[name]})
	}
	for _, k := range sortedKeys(sum.DegradedStages) {
		rows = append(rows, []any{"Degraded " + k, sum.DegradedStages[k]})
	}
	for i, r := range rows {
		if err := writeRow(f, SheetSummary, i+1, r); err != nil {
			return nil, err
		}
	}
	return f, nil
}

func taskRow(t types.FileTask) []any {
	row := make([]any, len(resultHeader))
	row[0] = t.Filename
	row[1] = string(t.Status)
	if t.Transcript != nil {
		row[2] = fmt.Sprintf("%d/%d", t.Transcript.ChunksSucceeded, t.Transcript.ChunksTotal)
	}

	var degraded []string
	for _, o := range t.StageOutcomes {
		if o.Degraded {
			degraded = append(degraded, o.Stage)
		}
		if !o.Result.Success {
			continue
		}
		switch p := o.Result.Payload.(type) {
		case analysis.PrivacyResult:
			row[3] = p.PrivacyExist
			row[4] = strings.Join(p.Types, ",")
		case analysis.ClassificationResult:
			row[5] = p.Code
			row[6] = p.Category
			row[7] = p.Confidence
		case analysis.ElementDetectionResult:
			row[8] = strings.Join(p.DetectedElements(), ",")
			row[9] = p.AgentType
		}
	}
	row[10] = strings.Join(degraded, ",")
	row[11] = t.FinalText
	row[12] = t.Error
	return row
}

func writeRow(f *excelize.File, sheet string, n int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, n, err)
	}
	return nil
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
