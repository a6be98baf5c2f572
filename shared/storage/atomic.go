package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// DefaultFileMode is applied to a committed file that replaces nothing.
const DefaultFileMode fs.FileMode = 0644

// AtomicWriter stages content in a temp file beside the target. Commit
// renames it over the target with the target's permissions; until then the
// target keeps its previous contents.
type AtomicWriter struct {
	path    string
	tmpPath string
	file    *os.File
	written int64
	done    bool
}

// NewAtomicWriter stages a replacement for path. pattern names the temp file
// as in os.CreateTemp, so callers can tell their leftovers apart.
func NewAtomicWriter(path, pattern string) (*AtomicWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create directory for %s: %w", filepath.Base(path), err)
	}

	tmpFile, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return nil, fmt.Errorf("stage %s: %w", filepath.Base(path), err)
	}

	return &AtomicWriter{path: path, tmpPath: tmpFile.Name(), file: tmpFile}, nil
}

func (w *AtomicWriter) Write(p []byte) (int, error) {
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Written returns the bytes staged so far.
func (w *AtomicWriter) Written() int64 {
	return w.written
}

// Commit flushes the staged file to disk and moves it over the target.
// Any failure discards the staged file.
func (w *AtomicWriter) Commit() error {
	if w.done {
		return errors.New("atomic writer already finished")
	}
	w.done = true

	mode := DefaultFileMode
	if info, err := os.Stat(w.path); err == nil {
		mode = info.Mode().Perm()
	}

	err := w.file.Chmod(mode)
	if err == nil {
		err = w.file.Sync()
	}
	if closeErr := w.file.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(w.tmpPath, w.path)
	}
	if err != nil {
		os.Remove(w.tmpPath)
		return fmt.Errorf("replace %s: %w", filepath.Base(w.path), err)
	}
	return nil
}

// Abort discards the staged file. The target is left as it was. Abort after
// Commit is a no-op.
func (w *AtomicWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.file.Close()
	if err := os.Remove(w.tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// ReplaceFile stages the output of fill and commits it over path only when
// fill succeeds. It returns the bytes written.
func ReplaceFile(path, pattern string, fill func(io.Writer) error) (int64, error) {
	w, err := NewAtomicWriter(path, pattern)
	if err != nil {
		return 0, err
	}
	if err := fill(w); err != nil {
		w.Abort()
		return w.Written(), err
	}
	return w.Written(), w.Commit()
}

// FileExists reports whether path names an existing regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
