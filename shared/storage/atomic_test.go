package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testPattern = ".scout-test-*.tmp"

func TestAtomicWriterCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.db")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	w, err := NewAtomicWriter(path, testPattern)
	require.NoError(t, err)
	_, err = w.Write([]byte("new contents"))
	require.NoError(t, err)
	assert.Equal(t, int64(len("new contents")), w.Written())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data), "target untouched before commit")

	require.NoError(t, w.Commit())
	require.NoError(t, w.Abort(), "abort after commit is a no-op")

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new contents", string(data))
	assertNoTempFiles(t, filepath.Dir(path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm(), "replaced file keeps its permissions")
}

func TestAtomicWriterNewFileMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.txt")

	w, err := NewAtomicWriter(path, testPattern)
	require.NoError(t, err)
	_, err = w.Write([]byte("report"))
	require.NoError(t, err)
	require.NoError(t, w.Commit())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultFileMode, info.Mode().Perm())
	assert.Error(t, w.Commit(), "a writer commits once")
}

func TestAtomicWriterAbort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scout.db")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	w, err := NewAtomicWriter(path, testPattern)
	require.NoError(t, err)
	_, err = w.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, w.Abort())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))
	assertNoTempFiles(t, filepath.Dir(path))
}

func TestReplaceFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0644))

	n, err := ReplaceFile(path, testPattern, func(w io.Writer) error {
		_, err := io.WriteString(w, "fresh")
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))

	_, err = ReplaceFile(path, testPattern, func(w io.Writer) error {
		io.WriteString(w, "half")
		return errors.New("render failed")
	})
	require.EqualError(t, err, "render failed")

	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
	assertNoTempFiles(t, filepath.Dir(path))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "present")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	assert.True(t, FileExists(path))
	assert.False(t, FileExists(filepath.Join(dir, "absent")))
	assert.False(t, FileExists(dir), "directories are not files")
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, ".scout-test-*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}
