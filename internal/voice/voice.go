// Package voice implements VoiceCore (§4.6): TCP signaling for join/leave
// and the UDP/DTLS audio relay keyed by a per-session 16-byte token. The
// server never decodes or mixes audio; it only validates access and copies
// payloads between participants of the same session key.
package voice

import (
	"crypto/rand"
	"net"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexusbbs/nexusd/internal/logging"
	"github.com/nexusbbs/nexusd/internal/registry"
)

var log = logging.For("voice")

// KeepaliveInterval is the client-side send cadence (§4.6).
const KeepaliveInterval = 15 * time.Second

// IdleExpiry tears a session down after this much silence (§4.6).
const IdleExpiry = 60 * time.Second

// Packet types on the UDP wire (§4.6).
const (
	PacketVoiceData       byte = 0
	PacketKeepalive       byte = 1
	PacketSpeakingStarted byte = 2
	PacketSpeakingStopped byte = 3
)

// Participant is one session's membership in a voice session: its token and
// the DTLS connection it has last been observed sending from. Each UDP/DTLS
// peer is its own pion/dtls connection (one handshake per source address),
// so relaying writes through Conn rather than a shared socket.
type Participant struct {
	Nickname string
	Token    [16]byte
	Addr     string   // "ip:port", for ConnectionMonitor/debugging
	Conn     net.Conn // last-known DTLS connection for this participant, or nil
}

// Session is a live voice relay session keyed by Key (§4.6: for channels,
// the channel name; for user-to-user, the two nicknames sorted and joined).
type Session struct {
	mu sync.RWMutex

	Key       string
	IsChannel bool
	Channel   string // set when IsChannel

	participants map[string]*Participant // nickname -> participant
	lastActivity time.Time
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) Idle(now time.Time) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return now.Sub(s.lastActivity) > IdleExpiry
}

func (s *Session) Participants() []Participant {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Participant, 0, len(s.participants))
	for _, p := range s.participants {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Nickname < out[j].Nickname })
	return out
}

func (s *Session) ParticipantNicknames() []string {
	parts := s.Participants()
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = p.Nickname
	}
	return out
}

func (s *Session) Add(nickname string, token [16]byte) {
	s.mu.Lock()
	s.participants[nickname] = &Participant{Nickname: nickname, Token: token}
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

func (s *Session) Remove(nickname string) {
	s.mu.Lock()
	delete(s.participants, nickname)
	s.mu.Unlock()
}

func (s *Session) Empty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.participants) == 0
}

// FindByToken returns the participant owning tokenPrefix (the first 16
// bytes of an inbound packet), used to authorize UDP traffic (§4.6 step 3).
func (s *Session) FindByToken(token [16]byte) (*Participant, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.participants {
		if p.Token == token {
			return p, true
		}
	}
	return nil, false
}

// UpdateConn records the DTLS connection last seen carrying a participant's
// token, so relayed packets know which peer connection to write to.
func (s *Session) UpdateConn(token [16]byte, conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.Token == token {
			p.Conn = conn
			p.Addr = conn.RemoteAddr().String()
			break
		}
	}
	s.lastActivity = time.Now()
}

// Registry holds every live voice session, keyed by canonicalized key
// (§4.6 "canonicalizes the session key by sorting nicknames").
type Registry struct {
	byKey       *registry.Registry[string, *Session]
	tokenToKey  *registry.Registry[[16]byte, string]
}

func NewRegistry() *Registry {
	return &Registry{
		byKey:      registry.New[string, *Session](),
		tokenToKey: registry.New[[16]byte, string](),
	}
}

// UserKey canonicalizes a user-to-user voice session key by sorting the two
// nicknames (§4.6).
func UserKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return "user:" + strings.Join(pair, "\x00")
}

// ChannelKey builds the session key for a channel voice session.
func ChannelKey(canonicalChannel string) string {
	return "channel:" + canonicalChannel
}

// GetOrCreate returns the existing session for key or creates one.
func (r *Registry) GetOrCreate(key string, isChannel bool, channel string) (*Session, bool) {
	if s, ok := r.byKey.Get(key); ok {
		return s, false
	}
	s := &Session{
		Key:          key,
		IsChannel:    isChannel,
		Channel:      channel,
		participants: make(map[string]*Participant),
		lastActivity: time.Now(),
	}
	r.byKey.Set(key, s)
	return s, true
}

func (r *Registry) Get(key string) (*Session, bool) {
	return r.byKey.Get(key)
}

func (r *Registry) Remove(key string) {
	if s, ok := r.byKey.Get(key); ok {
		for _, p := range s.Participants() {
			r.tokenToKey.Delete(p.Token)
		}
	}
	r.byKey.Delete(key)
}

// BindToken associates a participant token with the session key, for O(1)
// lookup from an inbound UDP packet.
func (r *Registry) BindToken(token [16]byte, key string) {
	r.tokenToKey.Set(token, key)
}

func (r *Registry) UnbindToken(token [16]byte) {
	r.tokenToKey.Delete(token)
}

// SessionForToken resolves a token prefix to its voice session, implementing
// access-control step 3 of §4.6.
func (r *Registry) SessionForToken(token [16]byte) (*Session, bool) {
	key, ok := r.tokenToKey.Get(token)
	if !ok {
		return nil, false
	}
	return r.byKey.Get(key)
}

// Snapshot returns every live session.
func (r *Registry) Snapshot() []*Session {
	return r.byKey.Snapshot()
}

// NewToken generates a fresh 16-byte session token. Backed by a UUID (not
// truncated: v4 UUIDs are already 16 bytes) so the relay's access-control
// comparison is a plain byte-array equality check.
func NewToken() [16]byte {
	id := uuid.New()
	var out [16]byte
	copy(out[:], id[:])
	return out
}

// TokenFromBytes parses the first 16 bytes of an inbound UDP packet.
func TokenFromBytes(b []byte) ([16]byte, bool) {
	var out [16]byte
	if len(b) < 16 {
		return out, false
	}
	copy(out[:], b[:16])
	return out, true
}

func init() {
	// Ensure crypto/rand is linked even if uuid's default generator changes;
	// token generation must never silently fall back to a weak source.
	var probe [1]byte
	if _, err := rand.Read(probe[:]); err != nil {
		log.WithError(err).Fatal("crypto/rand unavailable")
	}
}
