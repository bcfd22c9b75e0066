package session

import (
	"sort"
	"strconv"
	"strings"

	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/registry"
)

// Registry holds every live session, indexed by id; nickname and username
// lookups scan the sessions (§5 "Session registry: a single reader-writer
// lock").
type Registry struct {
	byID *registry.Registry[string, *Session]
}

func NewRegistry() *Registry {
	return &Registry{byID: registry.New[string, *Session]()}
}

func (r *Registry) Add(s *Session) {
	r.byID.Set(s.ID, s)
}

func (r *Registry) Remove(id string) {
	r.byID.Delete(id)
}

func (r *Registry) Get(id string) (*Session, bool) {
	return r.byID.Get(id)
}

// ByNickname scans live sessions for an exact case-insensitive nickname
// match. The registry is small enough (BBS-scale) that this avoids
// maintaining a second index that could drift from renames.
func (r *Registry) ByNickname(nickname string) (*Session, bool) {
	for _, s := range r.byID.Snapshot() {
		if strings.EqualFold(s.Nickname(), nickname) {
			return s, true
		}
	}
	return nil, false
}

// ByUsername returns every live session whose authenticated account matches
// username (regular accounts may have multiple concurrent sessions).
func (r *Registry) ByUsername(username string) []*Session {
	var out []*Session
	key := model.CanonicalUsername(username)
	for _, s := range r.byID.Snapshot() {
		if model.CanonicalUsername(s.Username()) == key {
			out = append(out, s)
		}
	}
	return out
}

// NicknameTaken reports whether nickname collides with any live session
// nickname (case-insensitive), implementing the uniqueness invariant (§8
// "Nickname uniqueness").
func (r *Registry) NicknameTaken(nickname string) bool {
	_, ok := r.ByNickname(nickname)
	return ok
}

// Snapshot returns every live session (broadcast-as-snapshot pattern).
func (r *Registry) Snapshot() []*Session {
	return r.byID.Snapshot()
}

// WithPermission filters Snapshot to sessions holding perm.
func (r *Registry) WithPermission(perm model.Permission) []*Session {
	var out []*Session
	for _, s := range r.Snapshot() {
		if s.Permissions().Has(perm) {
			out = append(out, s)
		}
	}
	return out
}

// SortedByNickname returns Snapshot sorted case-insensitively by nickname
// (§4.4 "UserList{all=false}").
func (r *Registry) SortedByNickname() []*Session {
	out := r.Snapshot()
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Nickname()) < strings.ToLower(out[j].Nickname())
	})
	return out
}

func (r *Registry) Len() int { return r.byID.Len() }

// Version parses a dotted "major.minor.patch" protocol version string.
type Version struct {
	Major, Minor, Patch int
}

// ParseVersion parses a version string, defaulting missing components to 0.
func ParseVersion(s string) (Version, bool) {
	parts := strings.SplitN(s, ".", 3)
	var v Version
	nums := make([]int, 3)
	for i := 0; i < len(parts) && i < 3; i++ {
		n, err := strconv.Atoi(parts[i])
		if err != nil {
			return Version{}, false
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]
	return v, true
}

// Compatible reports whether a client's version may talk to this server
// (§4.3 "Version compatibility": major must match; client minor ≤ server
// minor; patch ignored).
func Compatible(server, client Version) bool {
	return server.Major == client.Major && client.Minor <= server.Minor
}
