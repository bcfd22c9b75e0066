package server

import (
	"encoding/json"

	"github.com/nexusbbs/nexusd/internal/auth"
	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/i18n"
	"github.com/nexusbbs/nexusd/internal/metrics"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

func (s *Server) handleLoginFrame(sess *session.Session, f *frame.Frame) bool {
	if f.Type != "Login" {
		return false
	}
	var req proto.Login
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		s.replyLoginFailure(sess, f.MsgID, i18n.T("en", i18n.KeyInvalidCredentials))
		return false
	}
	locale := i18n.NormalizeLocale(req.Locale)

	acc, nickname, isShared, isGuest, loginErr := s.authenticate(req)
	if loginErr != nil {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		s.replyLoginFailure(sess, f.MsgID, loginFailureMessage(locale, loginErr))
		return false
	}

	if s.sessions.NicknameTaken(nickname) {
		metrics.LoginAttempts.WithLabelValues("failure").Inc()
		s.replyLoginFailure(sess, f.MsgID, i18n.T(locale, i18n.KeyNicknameInUse))
		return false
	}

	sess.Authenticate(*acc, nickname, isShared, isGuest, locale)
	s.inheritPresence(sess)
	s.sessions.Add(sess)
	metrics.LoginAttempts.WithLabelValues("success").Inc()
	metrics.SessionsActive.Set(float64(s.sessions.Len()))

	channels := s.autoJoinSession(sess)

	resp := proto.LoginResponse{
		Success:     true,
		SessionID:   sess.ID,
		Nickname:    nickname,
		IsAdmin:     acc.IsAdmin,
		Permissions: permSlice(acc.EffectivePermissions()),
		Locale:      locale,
		ServerInfo:  s.publicServerInfo(),
		ChatInfo:    s.chatInfoSummary(),
		Channels:    channels,
	}
	_ = sess.Writer.WriteFrame("LoginResponse", f.MsgID, marshalPayload(resp))

	s.broadcastUserConnected(sess)
	return true
}

func (s *Server) replyLoginFailure(sess *session.Session, msgid, errMsg string) {
	_ = sess.Writer.WriteFrame("LoginResponse", msgid, marshalPayload(proto.LoginResponse{Success: false, Error: errMsg}))
}

// authenticate resolves req against the account store, implementing
// regular/shared/guest login rules and first-user bootstrap (§4.3).
func (s *Server) authenticate(req proto.Login) (acc *model.Account, nickname string, isShared, isGuest bool, err error) {
	count, cerr := s.store.AccountCount()
	if cerr != nil {
		return nil, "", false, false, cerr
	}

	if req.Username == "" && req.Password == "" {
		return s.authenticateGuest(req)
	}

	if count == 0 {
		return s.bootstrapFirstAdmin(req)
	}

	got, gerr := s.store.GetAccount(req.Username)
	if gerr != nil {
		return nil, "", false, false, gerr
	}
	if !got.Enabled || !auth.VerifyPassword(got.PasswordHash, req.Password) {
		return nil, "", false, false, errInvalidCredentials
	}

	if got.IsShared {
		if req.Nickname == "" || !model.ValidUsername(req.Nickname) {
			return nil, "", false, false, errInvalidCredentials
		}
		if _, taken := s.sessions.ByNickname(req.Nickname); taken {
			return nil, "", false, false, errNicknameInUse
		}
		return &got, req.Nickname, true, false, nil
	}

	return &got, got.Username, false, false, nil
}

func (s *Server) authenticateGuest(req proto.Login) (*model.Account, string, bool, bool, error) {
	if !s.cfg.GuestEnabled {
		return nil, "", false, false, errGuestDisabled
	}
	got, err := s.store.GetAccount(model.GuestUsername)
	if err != nil || !got.Enabled {
		return nil, "", false, false, errGuestDisabled
	}
	if req.Nickname == "" || !model.ValidUsername(req.Nickname) {
		return nil, "", false, false, errInvalidCredentials
	}
	if _, taken := s.sessions.ByNickname(req.Nickname); taken {
		return nil, "", false, false, errNicknameInUse
	}
	return &got, req.Nickname, true, true, nil
}

// bootstrapFirstAdmin implements §4.3 "First-user bootstrap": when there
// are zero accounts, the first successful Login creates an admin account.
func (s *Server) bootstrapFirstAdmin(req proto.Login) (*model.Account, string, bool, bool, error) {
	if !model.ValidUsername(req.Username) || req.Password == "" {
		return nil, "", false, false, errInvalidCredentials
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, "", false, false, err
	}
	acc := model.Account{
		Username:     req.Username,
		PasswordHash: hash,
		IsAdmin:      true,
		Enabled:      true,
		Locale:       i18n.NormalizeLocale(req.Locale),
	}
	if err := s.store.CreateAccount(acc); err != nil {
		return nil, "", false, false, err
	}
	return &acc, acc.Username, false, false, nil
}

// inheritPresence implements §4.4 "New sessions of regular accounts
// inherit the latest existing session's away/status (no inheritance for
// shared)".
func (s *Server) inheritPresence(sess *session.Session) {
	if sess.IsShared() {
		return
	}
	for _, other := range s.sessions.ByUsername(sess.Username()) {
		away, status := other.Away()
		sess.SetAway(away)
		sess.SetStatus(status)
		return
	}
}

// autoJoinSession joins sess to the configured auto-join channels without
// emitting ChatUserJoined broadcasts (§4.3 "auto-join configured channels
// (without emitting ChatUserJoined broadcasts during login)").
func (s *Server) autoJoinSession(sess *session.Session) []proto.ChannelState {
	var out []proto.ChannelState
	for _, name := range s.autoJoinChannelNames() {
		canonical := model.CanonicalChannelName(name)
		ch, _ := s.channels.GetOrCreate(canonical)
		ch.Join(sess.Nickname())
		st := ch.State()
		out = append(out, proto.ChannelState{Name: st.Name, Topic: st.Topic, Secret: st.Secret, Members: st.Members})
	}
	return out
}

func permSlice(set model.PermissionSet) []string {
	ps := set.Slice()
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = string(p)
	}
	return out
}

func (s *Server) broadcastUserConnected(sess *session.Session) {
	payload := marshalPayload(proto.UserConnected{Nickname: sess.Nickname()})
	fanOutFrame(s.sessions.WithPermission(model.PermUserList), "UserConnected", payload)
}

var (
	errInvalidCredentials = &model.Error{Kind: model.KindAuth, Message: "invalid credentials"}
	errNicknameInUse       = &model.Error{Kind: model.KindAuth, Message: "nickname in use"}
	errGuestDisabled       = &model.Error{Kind: model.KindAuth, Message: "guest disabled"}
)

// loginFailureMessage maps one of the sentinel authenticate errors to its
// locale-specific catalog message, falling back to the generic invalid-
// credentials message for anything else (e.g. a store I/O error).
func loginFailureMessage(locale string, err error) string {
	switch err {
	case errNicknameInUse:
		return i18n.T(locale, i18n.KeyNicknameInUse)
	case errGuestDisabled:
		return i18n.T(locale, i18n.KeyGuestDisabled)
	default:
		return i18n.T(locale, i18n.KeyInvalidCredentials)
	}
}
