package transfer

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sha256Hex(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}

func TestResumeOffsetMatchingPrefix(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 1048576)
	for i := range data {
		data[i] = byte(i % 251)
	}
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	prefixHash := sha256Hex(data[:524288])
	offset, err := ResumeOffset(path, int64(len(data)), 524288, prefixHash)
	require.NoError(t, err)
	assert.EqualValues(t, 524288, offset)
}

func TestResumeOffsetMismatchRestartsFromZero(t *testing.T) {
	dir := t.TempDir()
	data := []byte("hello world, this is file content")
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	offset, err := ResumeOffset(path, int64(len(data)), 5, "not-a-real-hash")
	require.NoError(t, err)
	assert.EqualValues(t, 0, offset)
}

func TestResumeOffsetZeroClientSize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	offset, err := ResumeOffset(path, 4, 0, "")
	require.NoError(t, err)
	assert.EqualValues(t, 0, offset)
}

func TestHashFileMatchesWholeFile(t *testing.T) {
	dir := t.TempDir()
	data := []byte("the quick brown fox")
	path := filepath.Join(dir, "file.bin")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	got, err := HashFile(path, nil)
	require.NoError(t, err)
	assert.Equal(t, sha256Hex(data), got)
}

func TestFinalizeUploadRenamesOnMatch(t *testing.T) {
	dir := t.TempDir()
	data := []byte("uploaded content")
	partPath := filepath.Join(dir, "upload.bin.part")
	require.NoError(t, os.WriteFile(partPath, data, 0o644))

	finalPath := filepath.Join(dir, "final", "upload.bin")
	require.NoError(t, FinalizeUpload(partPath, finalPath, sha256Hex(data)))

	_, err := os.Stat(finalPath)
	require.NoError(t, err)
	_, err = os.Stat(partPath)
	assert.True(t, os.IsNotExist(err))
}

func TestFinalizeUploadRejectsMismatch(t *testing.T) {
	dir := t.TempDir()
	partPath := filepath.Join(dir, "upload.bin.part")
	require.NoError(t, os.WriteFile(partPath, []byte("data"), 0o644))

	err := FinalizeUpload(partPath, filepath.Join(dir, "final.bin"), "wrong-hash")
	assert.ErrorIs(t, err, ErrHashMismatch)
}

func TestTransferRegistryAbortByIP(t *testing.T) {
	r := NewRegistry()
	tr := New(Download, "a.txt", "192.0.2.1", 100)
	r.Add(tr)

	n := r.AbortByIP("192.0.2.1")
	assert.Equal(t, 1, n)
	assert.True(t, tr.Aborted())
}
