package correlate

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pmeye/internal/stats"
)

func buildCells() []stats.CellStats {
	c0 := stats.NewCellStats()
	c0.AddSample(1, 0)
	c0.AddSample(3, 1)
	c0.UpdateOrInsertCorrelation(5, 0.9, 1.0)
	c0.UpdateOrInsertCorrelation(2, 0.4, 0.5)

	c1 := stats.NewCellStats()
	c1.AddSample(7, 0)
	return []stats.CellStats{*c0, *c1}
}

func TestReporterWritesTableAndSummary(t *testing.T) {
	dir := t.TempDir()
	r := &Reporter{
		OutputDir: dir,
		Prefix:    "corr",
		Names:     map[int]string{0: "Core0 Power (W)", 1: "VSoC, filtered"},
	}

	stamp := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	paths, err := r.Write(buildCells(), stamp)
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, filepath.Join(dir, "corr_table_20250601_123045.csv"), paths[0])
	assert.Equal(t, filepath.Join(dir, "corr_summary_20250601_123045.csv"), paths[1])

	table, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(table)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "Index,Name,Live Value"))
	assert.Contains(t, lines[0], "Top4 Quality")

	// ranked entries then N/A padding to four
	assert.True(t, strings.HasPrefix(lines[1], "0,Core0 Power (W),"))
	assert.Contains(t, lines[1], ",5,0.900,1.000,")
	assert.Contains(t, lines[1], ",2,0.400,0.500,")
	assert.Contains(t, lines[1], "N/A,N/A,N/A")

	// names containing commas are quoted, plain names are not
	assert.Contains(t, lines[2], `"VSoC, filtered"`)
	assert.NotContains(t, lines[1], `"Core0 Power (W)"`)

	summary, err := os.ReadFile(paths[1])
	require.NoError(t, err)
	assert.Equal(t,
		"Statistic,Value\nMin Strength,0.400\nMax Strength,0.900\nMean Strength,0.650\nMedian Strength,0.650\n",
		string(summary))
}

func TestReporterXLSX(t *testing.T) {
	dir := t.TempDir()
	r := &Reporter{OutputDir: dir, Prefix: "corr", XLSX: true}

	paths, err := r.Write(buildCells(), time.Now())
	require.NoError(t, err)
	require.Len(t, paths, 3)
	info, err := os.Stat(paths[2])
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
	assert.True(t, strings.HasSuffix(paths[2], ".xlsx"))
}

func TestReporterNoResults(t *testing.T) {
	r := &Reporter{OutputDir: t.TempDir()}
	_, err := r.Write(nil, time.Now())
	assert.Error(t, err)
}
