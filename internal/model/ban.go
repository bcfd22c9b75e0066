package model

import (
	"net/netip"
	"strings"
	"time"
)

// MaxBanReasonLen is the §3 BanEntry/TrustEntry reason length ceiling.
const MaxBanReasonLen = 2048

// BanEntry / TrustEntry share the same shape (§3). Kind distinguishes them
// only for persistence; access decisions treat them as independent tables.
type ListEntry struct {
	IPOrCIDR  string // canonical; IPv4-mapped-IPv6 normalized to IPv4
	Nickname  string // optional annotation
	Reason    string
	CreatedBy string
	CreatedAt time.Time
	ExpiresAt *time.Time // nil = permanent
}

// Expired reports whether the entry's expiry has passed as of now.
func (e *ListEntry) Expired(now time.Time) bool {
	return e.ExpiresAt != nil && now.After(*e.ExpiresAt)
}

// CanonicalizeIP normalizes an IPv4-mapped-IPv6 address to plain IPv4
// (§4.2 step 1), leaving everything else untouched.
func CanonicalizeIP(addr netip.Addr) netip.Addr {
	if addr.Is4In6() {
		return addr.Unmap()
	}
	return addr
}

// CanonicalizePrefix canonicalizes the address part of a CIDR/host entry,
// accepting either a bare IP or a CIDR and always returning a prefix (host
// entries become /32 or /128).
func CanonicalizePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return netip.Prefix{}, err
		}
		addr := CanonicalizeIP(p.Addr())
		bits := p.Bits()
		if addr != p.Addr() && addr.Is4() && p.Addr().Is4In6() {
			bits -= 96 // mapped ::ffff:a.b.c.d/N -> a.b.c.d/(N-96)
			if bits < 0 {
				bits = 0
			}
		}
		return netip.PrefixFrom(addr, bits), nil
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = CanonicalizeIP(addr)
	bits := 32
	if addr.Is6() {
		bits = 128
	}
	return netip.PrefixFrom(addr, bits), nil
}
