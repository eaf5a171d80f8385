package correlate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"pmeye/internal/stats"
)

// Reporter serializes correlation results: one CSV row per sensor plus a
// summary CSV of the strength distribution, optionally mirrored into an XLSX
// workbook. Filenames carry a timestamp so repeated runs never overwrite.
type Reporter struct {
	OutputDir string
	Prefix    string
	Names     map[int]string // original sensor index -> display name, optional
	XLSX      bool
}

// Write renders the report files for the given cells and returns their paths.
func (r *Reporter) Write(cells []stats.CellStats, stamp time.Time) (paths []string, err error) {
	if len(cells) == 0 {
		err = fmt.Errorf("no correlation results to save")
		return
	}
	prefix := r.Prefix
	if prefix == "" {
		prefix = "correlation"
	}
	stampStr := stamp.Format("20060102_150405")
	tablePath := filepath.Join(r.OutputDir, fmt.Sprintf("%s_table_%s.csv", prefix, stampStr))
	summaryPath := filepath.Join(r.OutputDir, fmt.Sprintf("%s_summary_%s.csv", prefix, stampStr))

	strengths := r.writeTable(tablePath, cells)
	if err = r.writeSummary(summaryPath, strengths); err != nil {
		return
	}
	paths = []string{tablePath, summaryPath}
	slog.Info("correlation table saved", slog.String("path", tablePath))
	slog.Info("correlation summary saved", slog.String("path", summaryPath))

	if r.XLSX {
		xlsxPath := filepath.Join(r.OutputDir, fmt.Sprintf("%s_%s.xlsx", prefix, stampStr))
		if err = r.writeWorkbook(xlsxPath, cells, strengths); err != nil {
			return
		}
		paths = append(paths, xlsxPath)
		slog.Info("correlation workbook saved", slog.String("path", xlsxPath))
	}
	return
}

func (r *Reporter) name(index int) string {
	if name, ok := r.Names[index]; ok {
		return name
	}
	return ""
}

// csvField quotes a name only when it could break the row format.
func csvField(name string) string {
	if strings.ContainsAny(name, ",\"") {
		return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
	}
	return name
}

func tableHeader() string {
	var sb strings.Builder
	sb.WriteString("Index,Name,Live Value,Min Value,Max Value,Mean Value,StdDev Value")
	for i := 1; i <= stats.MaxTopCorrelations; i++ {
		fmt.Fprintf(&sb, ",Top%d Core ID,Top%d Strength,Top%d Quality", i, i, i)
	}
	sb.WriteString("\n")
	return sb.String()
}

func (r *Reporter) writeTable(path string, cells []stats.CellStats) (strengths []float64) {
	var sb strings.Builder
	sb.WriteString(tableHeader())

	for i, cell := range cells {
		fmt.Fprintf(&sb, "%d,%s,%.3f,%.3f,%.3f,%.3f,%.3f",
			i, csvField(r.name(i)),
			cell.Current, cell.Min, cell.Max, cell.Agg.Mean(), cell.Agg.StdDev())
		for j := 0; j < stats.MaxTopCorrelations; j++ {
			if j < len(cell.TopCorrelations) {
				corr := cell.TopCorrelations[j]
				fmt.Fprintf(&sb, ",%d,%.3f,%.3f", corr.CoreID, corr.Strength, corr.Quality)
				strengths = append(strengths, corr.Strength)
			} else {
				sb.WriteString(",N/A,N/A,N/A")
			}
		}
		sb.WriteString("\n")
	}
	if err := os.WriteFile(path, []byte(sb.String()), 0o644); err != nil {
		slog.Error("failed to write correlation table", slog.String("path", path), slog.String("error", err.Error()))
	}
	return
}

func (r *Reporter) writeSummary(path string, strengths []float64) error {
	var sb strings.Builder
	if len(strengths) == 0 {
		sb.WriteString("No correlation strengths recorded.\n")
		return os.WriteFile(path, []byte(sb.String()), 0o644)
	}

	slices.Sort(strengths)
	minStrength := strengths[0]
	maxStrength := strengths[len(strengths)-1]
	var sum float64
	for _, s := range strengths {
		sum += s
	}
	mean := sum / float64(len(strengths))
	var median float64
	mid := len(strengths) / 2
	if len(strengths)%2 == 0 {
		median = (strengths[mid-1] + strengths[mid]) / 2
	} else {
		median = strengths[mid]
	}

	sb.WriteString("Statistic,Value\n")
	fmt.Fprintf(&sb, "Min Strength,%.3f\n", minStrength)
	fmt.Fprintf(&sb, "Max Strength,%.3f\n", maxStrength)
	fmt.Fprintf(&sb, "Mean Strength,%.3f\n", mean)
	fmt.Fprintf(&sb, "Median Strength,%.3f\n", median)
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}

func (r *Reporter) writeWorkbook(path string, cells []stats.CellStats, strengths []float64) error {
	wb := excelize.NewFile()
	defer wb.Close()

	const tableSheet = "Correlation Table"
	if err := wb.SetSheetName("Sheet1", tableSheet); err != nil {
		return err
	}

	header := []interface{}{"Index", "Name", "Live Value", "Min Value", "Max Value", "Mean Value", "StdDev Value"}
	for i := 1; i <= stats.MaxTopCorrelations; i++ {
		header = append(header,
			fmt.Sprintf("Top%d Core ID", i),
			fmt.Sprintf("Top%d Strength", i),
			fmt.Sprintf("Top%d Quality", i))
	}
	if err := wb.SetSheetRow(tableSheet, "A1", &header); err != nil {
		return err
	}
	for i, cell := range cells {
		row := []interface{}{i, r.name(i), cell.Current, cell.Min, cell.Max, cell.Agg.Mean(), cell.Agg.StdDev()}
		for j := 0; j < stats.MaxTopCorrelations; j++ {
			if j < len(cell.TopCorrelations) {
				corr := cell.TopCorrelations[j]
				row = append(row, corr.CoreID, corr.Strength, corr.Quality)
			} else {
				row = append(row, "N/A", "N/A", "N/A")
			}
		}
		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := wb.SetSheetRow(tableSheet, axis, &row); err != nil {
			return err
		}
	}

	const summarySheet = "Summary"
	if _, err := wb.NewSheet(summarySheet); err != nil {
		return err
	}
	summaryRows := [][]interface{}{{"Statistic", "Value"}}
	if len(strengths) > 0 {
		sorted := slices.Clone(strengths)
		slices.Sort(sorted)
		var sum float64
		for _, s := range sorted {
			sum += s
		}
		mid := len(sorted) / 2
		median := sorted[mid]
		if len(sorted)%2 == 0 {
			median = (sorted[mid-1] + sorted[mid]) / 2
		}
		summaryRows = append(summaryRows,
			[]interface{}{"Min Strength", sorted[0]},
			[]interface{}{"Max Strength", sorted[len(sorted)-1]},
			[]interface{}{"Mean Strength", sum / float64(len(sorted))},
			[]interface{}{"Median Strength", median})
	}
	for i, row := range summaryRows {
		axis, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := wb.SetSheetRow(summarySheet, axis, &row); err != nil {
			return err
		}
	}
	return wb.SaveAs(path)
}
