package session

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T, id, nickname string) *Session {
	t.Helper()
	c1, c2 := net.Pipe()
	t.Cleanup(func() { c1.Close(); c2.Close() })
	s := New(id, c1, "192.0.2.1")
	s.nickname = nickname
	return s
}

func TestRegistryNicknameLookupCaseInsensitive(t *testing.T) {
	r := NewRegistry()
	s := newTestSession(t, "s1", "Alice")
	r.Add(s)

	got, ok := r.ByNickname("alice")
	require.True(t, ok)
	assert.Equal(t, "s1", got.ID)

	assert.True(t, r.NicknameTaken("ALICE"))
	assert.False(t, r.NicknameTaken("bob"))
}

func TestRegistrySortedByNickname(t *testing.T) {
	r := NewRegistry()
	r.Add(newTestSession(t, "1", "zeta"))
	r.Add(newTestSession(t, "2", "Alpha"))
	r.Add(newTestSession(t, "3", "beta"))

	sorted := r.SortedByNickname()
	require.Len(t, sorted, 3)
	assert.Equal(t, "Alpha", sorted[0].Nickname())
	assert.Equal(t, "beta", sorted[1].Nickname())
	assert.Equal(t, "zeta", sorted[2].Nickname())
}

func TestVersionCompatible(t *testing.T) {
	server := Version{Major: 1, Minor: 3, Patch: 0}

	ok, _ := ParseVersion("1.2.9")
	assert.True(t, Compatible(server, ok))

	tooNew, _ := ParseVersion("1.4.0")
	assert.False(t, Compatible(server, tooNew))

	wrongMajor, _ := ParseVersion("2.0.0")
	assert.False(t, Compatible(server, wrongMajor))
}

func TestRemoveSession(t *testing.T) {
	r := NewRegistry()
	s := newTestSession(t, "x", "nick")
	r.Add(s)
	assert.Equal(t, 1, r.Len())
	r.Remove("x")
	assert.Equal(t, 0, r.Len())
}
