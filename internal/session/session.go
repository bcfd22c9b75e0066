// Package session implements SessionCore (§4.3): the per-connection state
// machine, the session registry, and the presence/nickname bookkeeping that
// the dispatcher and domain handlers consult on every frame.
package session

import (
	"net"
	"sync"
	"time"

	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/model"
)

// State is a SessionCore state (§4.3 table).
type State int

const (
	AwaitHandshake State = iota
	AwaitLogin
	AuthenticatedBBS
	AuthenticatedTransfer
)

func (s State) String() string {
	switch s {
	case AwaitHandshake:
		return "AwaitHandshake"
	case AwaitLogin:
		return "AwaitLogin"
	case AuthenticatedBBS:
		return "AuthenticatedBBS"
	case AuthenticatedTransfer:
		return "AuthenticatedTransfer"
	default:
		return "Unknown"
	}
}

// Session is one authenticated (or authenticating) connection. All mutable
// fields are guarded by mu; Writer is independently safe for concurrent use
// (frame.Writer serializes at the socket level).
type Session struct {
	ID       string
	Conn     net.Conn
	Writer   *frame.Writer
	RemoteIP string // canonical string form, set at accept time

	mu sync.RWMutex

	state    State
	account  model.Account
	nickname string
	isShared bool
	isGuest  bool
	locale   string

	away       bool
	status     string
	loginTime  time.Time
	lastFrame  time.Time

	// voiceTarget is the canonicalized voice session key this session
	// currently belongs to, or "" if not in a voice session.
	voiceTarget string
	voiceToken  [16]byte

	closed bool
}

// New constructs a session in AwaitHandshake state.
func New(id string, conn net.Conn, remoteIP string) *Session {
	return &Session{
		ID:        id,
		Conn:      conn,
		Writer:    frame.NewWriter(conn),
		RemoteIP:  remoteIP,
		state:     AwaitHandshake,
		locale:    "en",
		lastFrame: time.Now(),
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Session) TouchFrame() {
	s.mu.Lock()
	s.lastFrame = time.Now()
	s.mu.Unlock()
}

func (s *Session) LastFrame() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFrame
}

// Authenticate transitions the session into AuthenticatedBBS, recording the
// account, nickname, and login metadata established by Login.
func (s *Session) Authenticate(acc model.Account, nickname string, isShared, isGuest bool, locale string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = acc
	s.nickname = nickname
	s.isShared = isShared
	s.isGuest = isGuest
	s.locale = locale
	s.loginTime = time.Now()
	s.state = AuthenticatedBBS
}

func (s *Session) Account() model.Account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

func (s *Session) Nickname() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nickname
}

func (s *Session) Username() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account.Username
}

func (s *Session) IsAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account.IsAdmin
}

func (s *Session) IsShared() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isShared
}

func (s *Session) Permissions() model.PermissionSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account.EffectivePermissions()
}

// SetPermissions overwrites the session's cached account permissions after
// an admin PermissionsUpdated (§4.4 "Admin").
func (s *Session) SetPermissions(perms model.PermissionSet) {
	s.mu.Lock()
	s.account.Permissions = perms
	s.mu.Unlock()
}

func (s *Session) Locale() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locale
}

func (s *Session) Away() (away bool, status string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.away, s.status
}

func (s *Session) SetAway(away bool) {
	s.mu.Lock()
	s.away = away
	s.mu.Unlock()
}

func (s *Session) SetStatus(status string) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

func (s *Session) LoginTime() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loginTime
}

func (s *Session) VoiceTarget() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceTarget
}

func (s *Session) SetVoice(target string, token [16]byte) {
	s.mu.Lock()
	s.voiceTarget = target
	s.voiceToken = token
	s.mu.Unlock()
}

func (s *Session) ClearVoice() {
	s.mu.Lock()
	s.voiceTarget = ""
	s.voiceToken = [16]byte{}
	s.mu.Unlock()
}

func (s *Session) VoiceToken() [16]byte {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceToken
}

// Close marks the session closed and closes the underlying connection. Safe
// to call multiple times.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Conn.Close()
}

func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
