package fileio

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveUsesUserDirWhenPresent(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "users", "alice"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shared"), 0o755))

	a, err := Resolve(dir, "Alice")
	require.NoError(t, err)
	assert.False(t, a.IsShared)
	assert.Equal(t, filepath.Join(dir, "users", "alice"), a.Root)
}

func TestResolveFallsBackToShared(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "shared"), 0o755))

	a, err := Resolve(dir, "bob")
	require.NoError(t, err)
	assert.True(t, a.IsShared)
	assert.Equal(t, filepath.Join(dir, "shared"), a.Root)
}

func TestValidRelPathRejectsDotDot(t *testing.T) {
	assert.False(t, ValidRelPath("../etc/passwd"))
	assert.False(t, ValidRelPath("a/../../b"))
	assert.True(t, ValidRelPath("a/b/c.txt"))
}

func TestValidRelPathRejectsControlBytes(t *testing.T) {
	assert.False(t, ValidRelPath("a\x00b"))
	assert.False(t, ValidRelPath("a\nb"))
}

func TestResolvedPathRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "shared")
	require.NoError(t, os.MkdirAll(root, 0o755))
	a := Area{DataRoot: dir, Root: root}

	_, err := a.ResolvedPath("../users/alice/secret", false)
	assert.Error(t, err)
}

func TestResolvedPathAllowsNested(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "shared")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "docs"), 0o755))
	a := Area{DataRoot: dir, Root: root}

	p, err := a.ResolvedPath("docs/readme.txt", false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "docs", "readme.txt"), p)
}

func TestDirSuffixCapability(t *testing.T) {
	assert.True(t, DirSuffixCapability("Incoming [NEXUS-UL]").Upload)
	dbCap := DirSuffixCapability("Drop [NEXUS-DB]")
	assert.True(t, dbCap.Dropbox)
	assert.True(t, dbCap.Upload)
	capUser := DirSuffixCapability("Mine [NEXUS-DB-user]")
	assert.True(t, capUser.DropboxPerUser)
	assert.False(t, DirSuffixCapability("Plain").Upload)
}
