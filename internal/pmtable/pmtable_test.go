package pmtable

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFixture creates a fake ryzen_smu sysfs directory holding a pm_table of
// the given float values.
func writeFixture(t *testing.T, values []float32) string {
	t.Helper()
	dir := t.TempDir()

	blob := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, tableFileName), blob, 0o644))

	sizeRaw := make([]byte, 8)
	binary.LittleEndian.PutUint64(sizeRaw, uint64(len(blob)))
	require.NoError(t, os.WriteFile(filepath.Join(dir, sizeFileName), sizeRaw, 0o644))
	return dir
}

func TestOpenAndRead(t *testing.T) {
	values := []float32{0.0, 1.5, -3.25, 42.0}
	dir := writeFixture(t, values)

	rdr, err := Open(dir)
	require.NoError(t, err)
	defer rdr.Close()

	assert.Equal(t, 16, rdr.Size())
	assert.Equal(t, 4, rdr.FloatCount())

	buf := make([]byte, rdr.Size())
	decoded := make([]float32, rdr.FloatCount())
	// repeated reads must return the full snapshot every time
	for range 3 {
		require.NoError(t, rdr.Read(buf))
		n := DecodeFloats(decoded, buf)
		require.Equal(t, len(values), n)
		assert.Equal(t, values, decoded)
	}
}

func TestOpenSizeSanity(t *testing.T) {
	tests := []struct {
		name string
		size uint64
	}{
		{"zero", 0},
		{"too large", MaxTableBytes + 4},
		{"not a multiple of four", 10},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			dir := t.TempDir()
			sizeRaw := make([]byte, 8)
			binary.LittleEndian.PutUint64(sizeRaw, test.size)
			require.NoError(t, os.WriteFile(filepath.Join(dir, sizeFileName), sizeRaw, 0o644))
			require.NoError(t, os.WriteFile(filepath.Join(dir, tableFileName), make([]byte, 16), 0o644))

			_, err := Open(dir)
			assert.Error(t, err)
		})
	}
}

func TestOpenMissingDriver(t *testing.T) {
	_, err := Open(t.TempDir())
	assert.Error(t, err)
}

func TestReadShort(t *testing.T) {
	dir := writeFixture(t, []float32{1, 2, 3, 4})
	// truncate the blob after size discovery wrote 16 bytes
	require.NoError(t, os.WriteFile(filepath.Join(dir, tableFileName), make([]byte, 8), 0o644))

	rdr, err := Open(dir)
	require.NoError(t, err)
	defer rdr.Close()

	err = rdr.Read(make([]byte, rdr.Size()))
	assert.ErrorContains(t, err, "short pm_table read")
}
