// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package dataset

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// FileFingerprint derives a stable fingerprint for a file from its
// absolute path, size, and modification time.
//
// Two invocations against a byte-identical, untouched file produce the
// same fingerprint; rewriting the file produces a different one. This is
// cheaper than content hashing and sufficient for cache invalidation of
// multi-gigabyte grids.
//
// # Inputs
//
//   - path: The file to fingerprint. Must exist.
//
// # Outputs
//
//   - string: Hex digest, stable across runs.
//   - error: Non-nil if the file cannot be resolved or stat'd.
func FileFingerprint(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", abs, err)
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CombineFingerprints derives one fingerprint from several member
// fingerprints, order-independent. Used by Collection.
func CombineFingerprints(fingerprints []string) string {
	sorted := make([]string, len(fingerprints))
	copy(sorted, fingerprints)
	sort.Strings(sorted)

	h := sha256.New()
	for _, fp := range sorted {
		fmt.Fprintf(h, "%s\n", fp)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// FullFormat identifies the on-disk format and version of a file from
// its magic bytes, independent of the configured format or the file
// extension.
//
// # Outputs
//
//   - string: The full format, e.g. "NETCDF4", "NETCDF3_CLASSIC",
//     "NETCDF3_64BIT_OFFSET", "NETCDF3_64BIT_DATA", "GRIB1", "GRIB2".
//   - error: Non-nil when the file cannot be read or the header matches
//     no known encoding.
func FullFormat(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("read format of %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, 8)
	if _, err := io.ReadFull(f, header); err != nil {
		return "", fmt.Errorf("read format of %s: header too short: %w", path, err)
	}

	switch {
	case bytes.Equal(header[:4], []byte("GRIB")):
		// Octet 8 of a GRIB indicator section is the edition number.
		return fmt.Sprintf("GRIB%d", header[7]), nil
	case bytes.Equal(header[:4], []byte{0x89, 'H', 'D', 'F'}):
		// netCDF-4 files are HDF5 containers.
		return "NETCDF4", nil
	case bytes.Equal(header[:3], []byte("CDF")):
		switch header[3] {
		case 1:
			return "NETCDF3_CLASSIC", nil
		case 2:
			return "NETCDF3_64BIT_OFFSET", nil
		case 5:
			return "NETCDF3_64BIT_DATA", nil
		}
	}
	return "", fmt.Errorf("read format of %s: unrecognized header", path)
}

// ExpandPattern resolves a doublestar glob pattern to a sorted list of
// matching file paths.
//
// # Outputs
//
//   - []string: Matching paths in sorted order.
//   - error: Non-nil on a malformed pattern or when nothing matches; a
//     rule set aimed at zero files is a configuration mistake, not a
//     vacuous pass.
func ExpandPattern(pattern string) ([]string, error) {
	paths, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, fmt.Errorf("bad files pattern %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no files match pattern %q", pattern)
	}
	sort.Strings(paths)
	return paths, nil
}
