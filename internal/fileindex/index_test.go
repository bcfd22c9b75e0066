package fileindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestTree(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "a"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "b"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a", "test_report_2024.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "old_report.txt"), []byte("y"), 0o644))
	return dir
}

func TestSearchANDOfTerms(t *testing.T) {
	dir := buildTestTree(t)
	idx := New(filepath.Join(dir, "files.idx"), dir, 0)
	require.NoError(t, idx.Rebuild())

	results, ok := idx.Search("test rep")
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "test_report_2024.pdf", results[0].Name)
}

func TestSearchTooShortRejected(t *testing.T) {
	dir := buildTestTree(t)
	idx := New(filepath.Join(dir, "files.idx"), dir, 0)
	require.NoError(t, idx.Rebuild())

	_, ok := idx.Search("ab")
	assert.False(t, ok)
}

func TestSearchLiteralPhraseWhenNoLongTerm(t *testing.T) {
	dir := buildTestTree(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b", "to do.txt"), []byte("z"), 0o644))
	idx := New(filepath.Join(dir, "files.idx"), dir, 0)
	require.NoError(t, idx.Rebuild())

	// Both terms are under 3 bytes, so the whole query is one literal phrase;
	// as separate terms "o" and "d" would also match the other two files.
	results, ok := idx.Search("o d")
	require.True(t, ok)
	require.Len(t, results, 1)
	assert.Equal(t, "to do.txt", results[0].Name)
}

func TestSearchDirectoriesRankFirst(t *testing.T) {
	dir := buildTestTree(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "reports"), 0o755))
	idx := New(filepath.Join(dir, "files.idx"), dir, 0)
	require.NoError(t, idx.Rebuild())

	results, ok := idx.Search("report")
	require.True(t, ok)
	require.Len(t, results, 3)
	assert.True(t, results[0].IsDirectory)
	assert.Equal(t, "reports", results[0].Name)
}

func TestPersistAndLoadRoundTrip(t *testing.T) {
	dir := buildTestTree(t)
	idxPath := filepath.Join(dir, "files.idx")
	idx := New(idxPath, dir, 0)
	require.NoError(t, idx.Rebuild())

	idx2 := New(idxPath, dir, 0)
	require.NoError(t, idx2.Load())
	results, ok := idx2.Search("report")
	require.True(t, ok)
	assert.Len(t, results, 2)
}
