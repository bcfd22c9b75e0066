package access

import (
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusbbs/nexusd/internal/model"
)

func TestTrustOverridesBan(t *testing.T) {
	g := New()
	_, err := g.Upsert("ban", model.ListEntry{IPOrCIDR: "192.168.1.0/24", CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = g.Upsert("trust", model.ListEntry{IPOrCIDR: "192.168.1.5/32", CreatedAt: time.Now()})
	require.NoError(t, err)

	addr := netip.MustParseAddr("192.168.1.5")
	assert.Equal(t, Allow, g.Lookup(addr))

	other := netip.MustParseAddr("192.168.1.6")
	assert.Equal(t, Deny, g.Lookup(other))
}

func TestBanUpsertIdempotent(t *testing.T) {
	g := New()
	_, err := g.Upsert("ban", model.ListEntry{IPOrCIDR: "10.0.0.1", Reason: "first", CreatedAt: time.Now()})
	require.NoError(t, err)
	_, err = g.Upsert("ban", model.ListEntry{IPOrCIDR: "10.0.0.1", Reason: "second", CreatedAt: time.Now()})
	require.NoError(t, err)

	list := g.List("ban")
	require.Len(t, list, 1)
	assert.Equal(t, "second", list[0].Reason)
}

func TestExpiredBanAllowsAfterLazyEviction(t *testing.T) {
	g := New()
	past := time.Now().Add(-time.Minute)
	_, err := g.Upsert("ban", model.ListEntry{IPOrCIDR: "10.0.0.2", ExpiresAt: &past, CreatedAt: time.Now()})
	require.NoError(t, err)

	addr := netip.MustParseAddr("10.0.0.2")
	assert.Equal(t, Allow, g.Lookup(addr))
	assert.Empty(t, g.List("ban"))
}

func TestDeleteByCIDRRemovesContainedRanges(t *testing.T) {
	g := New()
	_, err := g.Upsert("ban", model.ListEntry{IPOrCIDR: "192.168.1.5/32", CreatedAt: time.Now()})
	require.NoError(t, err)
	n, err := g.DeleteByCIDR("ban", "192.168.1.0/24")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, g.List("ban"))
}

func TestIPv4MappedIPv6Canonicalized(t *testing.T) {
	g := New()
	_, err := g.Upsert("ban", model.ListEntry{IPOrCIDR: "203.0.113.9", CreatedAt: time.Now()})
	require.NoError(t, err)

	mapped := netip.MustParseAddr("::ffff:203.0.113.9")
	assert.Equal(t, Deny, g.Lookup(mapped))
}
