// Package chat implements the multi-channel chat registry (§4.4 "Chat"):
// persistent/ephemeral/secret channels, membership, topics, and the
// broadcast-as-snapshot delivery pattern used throughout the server,
// directly adapted from the teacher's Room broadcast design.
package chat

import (
	"fmt"
	"sort"
	"sync"
)

// MaxJoinedChannels is the per-session join cap (§4.4 "enforce join cap (100)").
const MaxJoinedChannels = 100

// Channel is a chat room. Membership is a set of nicknames; message
// delivery and presence broadcasts are resolved by the caller through the
// session registry, keeping Channel itself transport-agnostic.
type Channel struct {
	mu sync.RWMutex

	name       string // canonical, lowercase, leading '#'
	persistent bool
	secret     bool
	topic      string
	topicSetBy string
	members    map[string]bool // nickname -> true
}

func newChannel(canonicalName string, persistent bool) *Channel {
	return &Channel{
		name:       canonicalName,
		persistent: persistent,
		members:    make(map[string]bool),
	}
}

func (c *Channel) Name() string { return c.name }

func (c *Channel) IsPersistent() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.persistent
}

func (c *Channel) IsSecret() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secret
}

func (c *Channel) SetSecret(secret bool) {
	c.mu.Lock()
	c.secret = secret
	c.mu.Unlock()
}

func (c *Channel) Topic() (topic, setBy string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topic, c.topicSetBy
}

func (c *Channel) SetTopic(topic, setBy string) {
	c.mu.Lock()
	c.topic = topic
	c.topicSetBy = setBy
	c.mu.Unlock()
}

// Join adds nickname to the membership set. Returns false if already a
// member.
func (c *Channel) Join(nickname string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.members[nickname] {
		return false
	}
	c.members[nickname] = true
	return true
}

// Leave removes nickname. Returns (removed, empty-after).
func (c *Channel) Leave(nickname string) (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.members[nickname] {
		return false, len(c.members) == 0
	}
	delete(c.members, nickname)
	return true, len(c.members) == 0
}

func (c *Channel) HasMember(nickname string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.members[nickname]
}

// Members returns a snapshot of member nicknames (broadcast-as-snapshot
// pattern: callers enumerate this slice after releasing the channel lock).
func (c *Channel) Members() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.members))
	for n := range c.members {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func (c *Channel) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// State renders the public ChannelState view. Members is always filled in;
// callers decide whether to pass it on (a ChatList entry leaves it out).
type State struct {
	Name    string
	Topic   string
	Secret  bool
	Members []string
}

func (c *Channel) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	members := make([]string, 0, len(c.members))
	for n := range c.members {
		members = append(members, n)
	}
	sort.Strings(members)
	return State{Name: c.name, Topic: c.topic, Secret: c.secret, Members: members}
}

// Registry holds all channels, keyed by canonical name. Cross-channel
// operations (none currently require multi-lock ordering beyond the
// registry's own lock) acquire names in sorted order per §5 to avoid
// deadlock if that ever changes.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

func NewRegistry() *Registry {
	return &Registry{channels: make(map[string]*Channel)}
}

// Get returns the channel for canonicalName, or nil.
func (r *Registry) Get(canonicalName string) *Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.channels[canonicalName]
}

// GetOrCreate returns the existing channel or creates a new ephemeral one,
// reporting whether it was created.
func (r *Registry) GetOrCreate(canonicalName string) (*Channel, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[canonicalName]; ok {
		return ch, false
	}
	ch := newChannel(canonicalName, false)
	r.channels[canonicalName] = ch
	return ch, true
}

// EnsurePersistent installs canonicalName as a persistent channel if absent.
func (r *Registry) EnsurePersistent(canonicalName string) *Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[canonicalName]; ok {
		ch.mu.Lock()
		ch.persistent = true
		ch.mu.Unlock()
		return ch
	}
	ch := newChannel(canonicalName, true)
	r.channels[canonicalName] = ch
	return ch
}

// RemoveIfEmptyEphemeral deletes canonicalName if it exists, is not
// persistent, and currently has no members (§8 "Channel lifecycle").
func (r *Registry) RemoveIfEmptyEphemeral(canonicalName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[canonicalName]
	if !ok {
		return
	}
	if ch.IsPersistent() {
		return
	}
	if ch.MemberCount() == 0 {
		delete(r.channels, canonicalName)
	}
}

// Snapshot returns every channel (broadcast-as-snapshot: release the
// registry lock before any I/O against the returned channels).
func (r *Registry) Snapshot() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	return out
}

// Visible filters Snapshot() to the channels a requester may see in
// ChatList (§4.4 "all for admins; members' channels plus non-secret
// channels otherwise").
func (r *Registry) Visible(requesterNickname string, isAdmin bool) []*Channel {
	all := r.Snapshot()
	if isAdmin {
		sortByName(all)
		return all
	}
	out := make([]*Channel, 0, len(all))
	for _, ch := range all {
		if !ch.IsSecret() || ch.HasMember(requesterNickname) {
			out = append(out, ch)
		}
	}
	sortByName(out)
	return out
}

func sortByName(chs []*Channel) {
	sort.Slice(chs, func(i, j int) bool { return chs[i].name < chs[j].name })
}

// MemberOf returns the canonical names of every channel nickname belongs
// to, used during session teardown (§5 "leave all channels").
func (r *Registry) MemberOf(nickname string) []string {
	all := r.Snapshot()
	var out []string
	for _, ch := range all {
		if ch.HasMember(nickname) {
			out = append(out, ch.name)
		}
	}
	return out
}

func errNotFound(name string) error {
	return fmt.Errorf("channel %q not found", name)
}
