// Package atomicfile provides the create-temp-then-rename write pattern
// used everywhere the core must guarantee readers never observe a
// half-written file: plan registration, governance-state updates, and the
// G8 filesystem commit step of the admission pipeline. Adapted from the
// teacher's internal/storage FileStorage.atomicWrite.
package atomicfile

import (
	"io"
	"os"
	"path/filepath"
)

// Write creates path atomically: content is written to a sibling temp
// file, fsynced, closed, then renamed over path. A crash or error at any
// point before the rename leaves the previous content of path (if any)
// untouched.
func Write(path string, writeFunc func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := writeFunc(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}
	success = true
	return nil
}

// WriteBytes is a convenience wrapper around Write for a fixed byte slice.
func WriteBytes(path string, data []byte) error {
	return Write(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}
