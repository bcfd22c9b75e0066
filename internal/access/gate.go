// Package access implements the AccessGate pre-TLS IP filter (§4.2): a
// trust/ban cache consulted before a TCP connection is handed to the TLS
// accept loop, plus the write path (Ban/TrustCreate/Delete) that keeps the
// cache coherent with the persistent store under a single writer lock.
package access

import (
	"net/netip"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go4.org/netipx"

	"github.com/nexusbbs/nexusd/internal/model"
)

// Decision is the outcome of a Lookup.
type Decision int

const (
	Allow Decision = iota
	Deny
)

// entry pairs a parsed prefix with its persisted record for longest-match
// evaluation and lazy expiry.
type entry struct {
	prefix netip.Prefix
	rec    model.ListEntry
}

// Gate holds the in-memory trust/ban caches. Trust always wins over ban
// (§3 BanEntry/TrustEntry invariant; §8 "Trust-over-ban").
//
// Membership is evaluated with go4.org/netipx's IPSet for the coarse "is
// this address covered by any entry at all" fast path, then resolved to the
// specific longest-matching, non-expired entry by scanning entries sorted by
// prefix length (descending) — the BBS-scale cache this server holds (at
// most a few thousand rows) makes a linear scan cheaper than a real radix
// tree while preserving the longest-match semantics §4.2 requires.
type Gate struct {
	mu sync.Mutex // serializes writes; see §4.2 "Writes ... are serialized"

	trust    []entry
	ban      []entry
	trustSet *netipx.IPSet
	banSet   *netipx.IPSet

	version atomic.Uint64

	// onBan fires after a ban is committed to both the store and the cache,
	// letting the server enumerate and kick/abort affected sessions and
	// transfers (§4.2 "Post-ban termination"). Wired the same way the
	// teacher wires Room.SetOnBan: a callback set once at startup, invoked
	// outside the write lock.
	onBan func(model.ListEntry)
}

// New constructs an empty Gate.
func New() *Gate {
	g := &Gate{}
	g.rebuildSets()
	return g
}

// SetOnBan registers the post-ban termination callback.
func (g *Gate) SetOnBan(fn func(model.ListEntry)) {
	g.mu.Lock()
	g.onBan = fn
	g.mu.Unlock()
}

// Version returns the monotonic counter bumped on every write, letting
// callers detect whether the cache changed since they last looked.
func (g *Gate) Version() uint64 {
	return g.version.Load()
}

// Seed loads persisted ban/trust rows at startup, before the gate begins
// serving lookups.
func (g *Gate) Seed(trust, ban []model.ListEntry) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.trust = g.trust[:0]
	g.ban = g.ban[:0]
	for _, t := range trust {
		if p, err := model.CanonicalizePrefix(t.IPOrCIDR); err == nil {
			g.trust = append(g.trust, entry{prefix: p, rec: t})
		}
	}
	for _, b := range ban {
		if p, err := model.CanonicalizePrefix(b.IPOrCIDR); err == nil {
			g.ban = append(g.ban, entry{prefix: p, rec: b})
		}
	}
	g.rebuildSets()
	g.version.Add(1)
}

// rebuildSets recomputes the fast-path IPSets from the current entry
// slices. Must be called with mu held.
func (g *Gate) rebuildSets() {
	var tb, bb netipx.IPSetBuilder
	for _, e := range g.trust {
		tb.AddPrefix(e.prefix)
	}
	for _, e := range g.ban {
		bb.AddPrefix(e.prefix)
	}
	if s, err := tb.IPSet(); err == nil {
		g.trustSet = s
	}
	if s, err := bb.IPSet(); err == nil {
		g.banSet = s
	}
}

// Lookup canonicalizes addr and returns the access decision (§4.2 steps
// 1-4). Expired ban entries touched during the scan are lazily evicted.
func (g *Gate) Lookup(addr netip.Addr) Decision {
	addr = model.CanonicalizeIP(addr)

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.trustSet != nil && g.trustSet.Contains(addr) {
		if match := longestMatch(g.trust, addr, time.Now()); match != nil {
			return Allow
		}
	}

	now := time.Now()
	if g.banSet != nil && g.banSet.Contains(addr) {
		match, expiredIdx := longestMatchWithExpiry(g.ban, addr, now)
		denied := match != nil
		if expiredIdx >= 0 {
			kept := g.ban[:0]
			for _, e := range g.ban {
				if e.prefix.Contains(addr) && e.rec.Expired(now) {
					continue
				}
				kept = append(kept, e)
			}
			g.ban = kept
			g.rebuildSets()
		}
		if denied {
			return Deny
		}
	}
	return Allow
}

// longestMatch returns the longest-prefix non-expired entry covering addr,
// or nil.
func longestMatch(entries []entry, addr netip.Addr, now time.Time) *entry {
	var best *entry
	for i := range entries {
		e := &entries[i]
		if e.rec.Expired(now) {
			continue
		}
		if !e.prefix.Contains(addr) {
			continue
		}
		if best == nil || e.prefix.Bits() > best.prefix.Bits() {
			best = e
		}
	}
	return best
}

// longestMatchWithExpiry behaves like longestMatch but also reports the
// index of the first *expired* entry encountered that covers addr, so the
// caller can lazily evict it (§4.2 "eviction of expired entries is lazy (on
// the next lookup that touches the entry)").
func longestMatchWithExpiry(entries []entry, addr netip.Addr, now time.Time) (*entry, int) {
	var best *entry
	expiredIdx := -1
	for i := range entries {
		e := &entries[i]
		if !e.prefix.Contains(addr) {
			continue
		}
		if e.rec.Expired(now) {
			if expiredIdx < 0 {
				expiredIdx = i
			}
			continue
		}
		if best == nil || e.prefix.Bits() > best.prefix.Bits() {
			best = e
		}
	}
	return best, expiredIdx
}

// Upsert inserts or replaces the entry keyed on rec.IPOrCIDR in the given
// list ("ban" or "trust"), per §3's upsert semantics. Returns the canonical
// prefix string used as the key.
func (g *Gate) Upsert(list string, rec model.ListEntry) (string, error) {
	prefix, err := model.CanonicalizePrefix(rec.IPOrCIDR)
	if err != nil {
		return "", err
	}
	rec.IPOrCIDR = prefix.String()

	g.mu.Lock()

	entries := g.listFor(list)
	replaced := false
	for i := range *entries {
		if (*entries)[i].prefix == prefix {
			(*entries)[i].rec = rec
			replaced = true
			break
		}
	}
	if !replaced {
		*entries = append(*entries, entry{prefix: prefix, rec: rec})
	}
	g.rebuildSets()
	g.version.Add(1)
	cb := g.onBan

	g.mu.Unlock()

	if list == "ban" && cb != nil {
		cb(rec)
	}
	return rec.IPOrCIDR, nil
}

// DeleteByCIDR removes the entry for the exact CIDR plus any narrower
// contained ranges or singletons (§4.4 "Ban/TrustDelete").
func (g *Gate) DeleteByCIDR(list, ipOrCIDR string) (int, error) {
	prefix, err := model.CanonicalizePrefix(ipOrCIDR)
	if err != nil {
		return 0, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	entries := g.listFor(list)
	kept := (*entries)[:0]
	removed := 0
	for _, e := range *entries {
		if prefix.Bits() <= e.prefix.Bits() && prefix.Contains(e.prefix.Addr()) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	*entries = kept
	g.rebuildSets()
	if removed > 0 {
		g.version.Add(1)
	}
	return removed, nil
}

// DeleteByNickname removes every entry annotated with nickname (case
// insensitive) from list.
func (g *Gate) DeleteByNickname(list, nickname string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	entries := g.listFor(list)
	kept := (*entries)[:0]
	removed := 0
	for _, e := range *entries {
		if equalFold(e.rec.Nickname, nickname) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	*entries = kept
	g.rebuildSets()
	if removed > 0 {
		g.version.Add(1)
	}
	return removed
}

// List returns a snapshot of all entries in "ban" or "trust", sorted by
// CreatedAt descending.
func (g *Gate) List(list string) []model.ListEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	entries := g.listFor(list)
	out := make([]model.ListEntry, 0, len(*entries))
	for _, e := range *entries {
		out = append(out, e.rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (g *Gate) listFor(list string) *[]entry {
	if list == "trust" {
		return &g.trust
	}
	return &g.ban
}

func equalFold(a, b string) bool {
	return len(a) > 0 && len(b) > 0 && model.CanonicalUsername(a) == model.CanonicalUsername(b)
}
