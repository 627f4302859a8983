// Copyright 2012 Jeremy Kerr <jeremy.kerr@canonical.com>
// Use of this source code is governed by a GPLv3 license
// that can be found in the LICENSE file.

// Package fileio implements the load/write collaborators used by
// cmd/sbsign: a fast, mmap-backed read path and an atomic,
// temp-file-and-rename write path, so a failed or interrupted sign
// never leaves a partially-written file visible under its final name.
package fileio

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/edsrzf/mmap-go"
)

// Load reads the file at path into an owned, growable byte slice.
//
// The file is mapped read-only and copied out immediately, following
// the teacher's file.New mmap fast-path: the returned slice never
// aliases the mapping, since callers (sbsign.LoadBytes) need to grow
// the buffer in place during header re-parsing.
func Load(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("fileio: open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("fileio: stat %s: %w", path, err)
	}
	if info.Size() == 0 {
		return []byte{}, nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("fileio: mmap %s: %w", path, err)
	}
	defer m.Unmap()

	out := make([]byte, len(m))
	copy(out, m)
	return out, nil
}

// Write concatenates chunks and writes them to path, via a temp file
// in the same directory followed by a rename, so a reader never
// observes a partially-written file at path.
func Write(path string, chunks ...[]byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".sbsign-*.tmp")
	if err != nil {
		return fmt.Errorf("fileio: create temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpName)
		}
	}()

	for _, c := range chunks {
		if _, err := tmp.Write(c); err != nil {
			tmp.Close()
			return fmt.Errorf("fileio: write %s: %w", tmpName, err)
		}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("fileio: sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("fileio: close %s: %w", tmpName, err)
	}

	info, err := os.Stat(path)
	mode := os.FileMode(0644)
	if err == nil {
		mode = info.Mode()
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("fileio: chmod %s: %w", tmpName, err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("fileio: rename %s to %s: %w", tmpName, path, err)
	}
	success = true
	return nil
}
