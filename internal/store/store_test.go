package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusbbs/nexusd/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAccountCRUD(t *testing.T) {
	s := newTestStore(t)

	a := model.Account{
		Username:     "Alice",
		PasswordHash: "hash",
		Enabled:      true,
		Permissions:  model.PermissionSetFromSlice([]model.Permission{model.PermChatSend}),
		Locale:       "en",
	}
	require.NoError(t, s.CreateAccount(a))

	got, err := s.GetAccount("ALICE")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Username)
	assert.True(t, got.Permissions.Has(model.PermChatSend))

	got.IsAdmin = true
	require.NoError(t, s.UpdateAccount(got))

	got2, err := s.GetAccount("alice")
	require.NoError(t, err)
	assert.True(t, got2.IsAdmin)

	require.NoError(t, s.RenameAccount("alice", "alice2"))
	_, err = s.GetAccount("alice")
	assert.Error(t, err)
	renamed, err := s.GetAccount("alice2")
	require.NoError(t, err)
	assert.Equal(t, "alice2", renamed.Username)

	require.NoError(t, s.DeleteAccount("alice2"))
	_, err = s.GetAccount("alice2")
	assert.Error(t, err)
}

func TestAccountDuplicateRejected(t *testing.T) {
	s := newTestStore(t)
	a := model.Account{Username: "bob", PasswordHash: "h", Enabled: true}
	require.NoError(t, s.CreateAccount(a))
	err := s.CreateAccount(a)
	assert.Error(t, err)
}

func TestNewsCRUD(t *testing.T) {
	s := newTestStore(t)

	id, err := s.CreateNews(model.NewsItem{Body: "hello", Author: "admin", AuthorIsAdmin: true})
	require.NoError(t, err)
	assert.NotZero(t, id)

	got, err := s.GetNews(id)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)

	got.Body = "updated"
	require.NoError(t, s.UpdateNews(got))

	list, err := s.ListNews()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "updated", list[0].Body)

	require.NoError(t, s.DeleteNews(id))
	list, err = s.ListNews()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestBanTrustUpsertAndPurge(t *testing.T) {
	s := newTestStore(t)

	past := time.Now().Add(-time.Hour)
	require.NoError(t, s.UpsertListEntry("ban", model.ListEntry{IPOrCIDR: "10.0.0.5/32", Reason: "spam", ExpiresAt: &past}))
	require.NoError(t, s.UpsertListEntry("ban", model.ListEntry{IPOrCIDR: "10.0.0.6/32", Reason: "abuse"}))

	entries, err := s.ListEntries("ban")
	require.NoError(t, err)
	require.Len(t, entries, 2)

	n, err := s.PurgeExpired("ban")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	entries, err = s.ListEntries("ban")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "10.0.0.6/32", entries[0].IPOrCIDR)

	require.NoError(t, s.DeleteListEntry("ban", "10.0.0.6/32"))
	entries, err = s.ListEntries("ban")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestChannelTopicPersistence(t *testing.T) {
	s := newTestStore(t)

	_, _, ok, err := s.GetChannelTopic("#lobby")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetChannelTopic("#lobby", "welcome", "admin"))
	topic, setBy, ok, err := s.GetChannelTopic("#lobby")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "welcome", topic)
	assert.Equal(t, "admin", setBy)
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)

	_, ok, err := s.GetSetting("server_name")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetSetting("server_name", "Nexus"))
	val, ok, err := s.GetSetting("server_name")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Nexus", val)

	require.NoError(t, s.SetSetting("server_name", "Nexus2"))
	val, _, err = s.GetSetting("server_name")
	require.NoError(t, err)
	assert.Equal(t, "Nexus2", val)
}

func TestAuditLog(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.InsertAudit("admin", "ban", "10.0.0.1", "spam"))
}
