// Package pmtable reads the binary sensor blob exported by the ryzen_smu
// kernel driver. The blob is a fixed-size little-endian array of IEEE-754
// 32-bit floats; a sibling sysfs file reports its size in bytes.
package pmtable

// Copyright (C) 2021-2025 Intel Corporation
// SPDX-License-Identifier: BSD-3-Clause

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

const (
	// DefaultDir is the sysfs directory exported by the ryzen_smu driver.
	DefaultDir = "/sys/kernel/ryzen_smu_drv"

	tableFileName = "pm_table"
	sizeFileName  = "pm_table_size"

	// MaxTableBytes bounds the size reported by the driver. Larger values
	// indicate a corrupt or incompatible driver.
	MaxTableBytes = 16384
)

// Reader reads full snapshots of the pm_table blob. Size discovery happens
// once at Open; Read performs no allocation and is safe to call from the
// real-time sampler thread.
type Reader struct {
	file *os.File
	size int
}

// Open discovers the pm_table size and opens the blob for reading. dir is the
// driver's sysfs directory, normally DefaultDir.
func Open(dir string) (*Reader, error) {
	size, err := readSizeFile(filepath.Join(dir, sizeFileName))
	if err != nil {
		return nil, err
	}
	if size == 0 || size > MaxTableBytes {
		return nil, fmt.Errorf("invalid pm_table size reported: %d bytes", size)
	}
	if size%4 != 0 {
		return nil, fmt.Errorf("pm_table size %d is not a multiple of 4", size)
	}
	file, err := os.Open(filepath.Join(dir, tableFileName))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open pm_table")
	}
	return &Reader{file: file, size: int(size)}, nil
}

// Size returns the pm_table size in bytes.
func (r *Reader) Size() int {
	return r.size
}

// FloatCount returns the number of 32-bit float sensor values in the table.
func (r *Reader) FloatCount() int {
	return r.size / 4
}

// Read fills dst[0:Size()] with the current snapshot of the blob. The read is
// issued at offset 0 so no explicit rewind is needed between calls. A short
// read is reported to the caller; the file position is unaffected either way.
func (r *Reader) Read(dst []byte) error {
	n, err := r.file.ReadAt(dst[:r.size], 0)
	if n != r.size {
		return fmt.Errorf("short pm_table read: got %d of %d bytes: %v", n, r.size, err)
	}
	return nil
}

// DecodeFloats decodes the little-endian float32 values in src into dst and
// returns the number of values written. Both slices are caller-provided; no
// allocation happens here.
func DecodeFloats(dst []float32, src []byte) int {
	n := min(len(src)/4, len(dst))
	for i := range n {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return n
}

// Close releases the underlying file.
func (r *Reader) Close() error {
	return r.file.Close()
}

// readSizeFile reads a little-endian uint64 from the pm_table_size sysfs file.
func readSizeFile(path string) (size uint64, err error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		err = errors.Wrap(err, "failed to read pm_table_size")
		return
	}
	if len(raw) < 8 {
		err = fmt.Errorf("pm_table_size too small: %d bytes", len(raw))
		return
	}
	size = binary.LittleEndian.Uint64(raw)
	return
}
