package server

import (
	"fmt"
	"strconv"
	"time"

	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/i18n"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

// resolveTarget accepts either a bare IP/CIDR or a live nickname and returns
// the IP-or-CIDR string to operate on (§4.4 "Bans/Trusts: target may be a
// nickname, resolved to that session's current IP").
func (s *Server) resolveTarget(target string) (string, bool) {
	if _, err := model.CanonicalizePrefix(target); err == nil {
		return target, true
	}
	if sess, ok := s.sessions.ByNickname(target); ok {
		return sess.RemoteIP, true
	}
	return "", false
}

// parseListDuration parses the §4.4 ban/trust duration grammar: `N{m|h|d}`,
// or `0`, or omitted (empty string) for a permanent entry. A permanent
// entry returns a nil expiry, never a zero-length one — `time.Now().Add(0)`
// would make the entry expire on the very next AccessGate.Lookup.
func parseListDuration(d string) (*time.Time, error) {
	if d == "" || d == "0" {
		return nil, nil
	}
	if len(d) < 2 {
		return nil, fmt.Errorf("invalid duration %q", d)
	}
	unit := d[len(d)-1]
	n, err := strconv.Atoi(d[:len(d)-1])
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid duration %q", d)
	}

	var dur time.Duration
	switch unit {
	case 'm':
		dur = time.Duration(n) * time.Minute
	case 'h':
		dur = time.Duration(n) * time.Hour
	case 'd':
		dur = time.Duration(n) * 24 * time.Hour
	default:
		return nil, fmt.Errorf("invalid duration %q", d)
	}

	exp := time.Now().Add(dur)
	return &exp, nil
}

func listEntryView(e model.ListEntry) proto.ListEntryView {
	return proto.ListEntryView{
		IPOrCIDR: e.IPOrCIDR, Nickname: e.Nickname, Reason: e.Reason,
		CreatedBy: e.CreatedBy, CreatedAt: e.CreatedAt, ExpiresAt: e.ExpiresAt,
	}
}

func (s *Server) handleBanCreate(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.BanCreate](payload)
	if err != nil {
		return protocolErr("malformed BanCreate")
	}
	if !sess.IsAdmin() {
		return result{respType: "BanCreateResponse", err: permDenied()}
	}
	ipOrCIDR, ok := s.resolveTarget(req.Target)
	if !ok {
		return result{respType: "BanCreateResponse", err: notFound(sess.Locale())}
	}
	expires, err := parseListDuration(req.Duration)
	if err != nil {
		return result{respType: "BanCreateResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid duration"}}
	}
	if len(req.Reason) > model.MaxBanReasonLen {
		return result{respType: "BanCreateResponse", err: &model.Error{Kind: model.KindValidation, Message: "reason too long"}}
	}

	rec := model.ListEntry{IPOrCIDR: ipOrCIDR, Nickname: req.Target, Reason: req.Reason, CreatedBy: sess.Username(), CreatedAt: time.Now(), ExpiresAt: expires}
	canonical, err := s.gate.Upsert("ban", rec)
	if err != nil {
		return result{respType: "BanCreateResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid target"}}
	}
	rec.IPOrCIDR = canonical
	if err := s.store.UpsertListEntry("ban", rec); err != nil {
		return result{respType: "BanCreateResponse", err: &model.Error{Kind: model.KindResource, Message: "persist ban failed"}}
	}
	_ = s.store.InsertAudit(sess.Username(), "ban_create", canonical, req.Reason)
	return result{respType: "BanCreateResponse", payload: proto.BanCreateResponse{Success: true}}
}

func (s *Server) handleBanDelete(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.BanDelete](payload)
	if err != nil {
		return protocolErr("malformed BanDelete")
	}
	if !sess.IsAdmin() {
		return result{respType: "BanDeleteResponse", err: permDenied()}
	}
	ipOrCIDR, ok := s.resolveTarget(req.Target)
	if !ok {
		s.gate.DeleteByNickname("ban", req.Target)
		_ = s.store.DeleteListEntriesByNickname("ban", req.Target)
		return result{respType: "BanDeleteResponse", payload: proto.BanDeleteResponse{Success: true}}
	}
	if _, err := s.gate.DeleteByCIDR("ban", ipOrCIDR); err != nil {
		return result{respType: "BanDeleteResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid target"}}
	}
	_ = s.store.DeleteListEntry("ban", ipOrCIDR)
	_ = s.store.InsertAudit(sess.Username(), "ban_delete", ipOrCIDR, "")
	return result{respType: "BanDeleteResponse", payload: proto.BanDeleteResponse{Success: true}}
}

func (s *Server) handleBanList(sess *session.Session, payload []byte) result {
	if !sess.IsAdmin() {
		return result{respType: "BanListResponse", err: permDenied()}
	}
	entries := s.gate.List("ban")
	out := make([]proto.ListEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, listEntryView(e))
	}
	return result{respType: "BanListResponse", payload: proto.BanListResponse{Success: true, Entries: out}}
}

func (s *Server) handleTrustCreate(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.TrustCreate](payload)
	if err != nil {
		return protocolErr("malformed TrustCreate")
	}
	if !sess.IsAdmin() {
		return result{respType: "TrustCreateResponse", err: permDenied()}
	}
	ipOrCIDR, ok := s.resolveTarget(req.Target)
	if !ok {
		return result{respType: "TrustCreateResponse", err: notFound(sess.Locale())}
	}
	expires, err := parseListDuration(req.Duration)
	if err != nil {
		return result{respType: "TrustCreateResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid duration"}}
	}

	rec := model.ListEntry{IPOrCIDR: ipOrCIDR, Nickname: req.Target, Reason: req.Reason, CreatedBy: sess.Username(), CreatedAt: time.Now(), ExpiresAt: expires}
	canonical, err := s.gate.Upsert("trust", rec)
	if err != nil {
		return result{respType: "TrustCreateResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid target"}}
	}
	rec.IPOrCIDR = canonical
	if err := s.store.UpsertListEntry("trust", rec); err != nil {
		return result{respType: "TrustCreateResponse", err: &model.Error{Kind: model.KindResource, Message: "persist trust failed"}}
	}
	_ = s.store.InsertAudit(sess.Username(), "trust_create", canonical, req.Reason)
	return result{respType: "TrustCreateResponse", payload: proto.TrustCreateResponse{Success: true}}
}

func (s *Server) handleTrustDelete(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.TrustDelete](payload)
	if err != nil {
		return protocolErr("malformed TrustDelete")
	}
	if !sess.IsAdmin() {
		return result{respType: "TrustDeleteResponse", err: permDenied()}
	}
	ipOrCIDR, ok := s.resolveTarget(req.Target)
	if !ok {
		s.gate.DeleteByNickname("trust", req.Target)
		_ = s.store.DeleteListEntriesByNickname("trust", req.Target)
		return result{respType: "TrustDeleteResponse", payload: proto.TrustDeleteResponse{Success: true}}
	}
	if _, err := s.gate.DeleteByCIDR("trust", ipOrCIDR); err != nil {
		return result{respType: "TrustDeleteResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid target"}}
	}
	_ = s.store.DeleteListEntry("trust", ipOrCIDR)
	_ = s.store.InsertAudit(sess.Username(), "trust_delete", ipOrCIDR, "")
	return result{respType: "TrustDeleteResponse", payload: proto.TrustDeleteResponse{Success: true}}
}

func (s *Server) handleTrustList(sess *session.Session, payload []byte) result {
	if !sess.IsAdmin() {
		return result{respType: "TrustListResponse", err: permDenied()}
	}
	entries := s.gate.List("trust")
	out := make([]proto.ListEntryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, listEntryView(e))
	}
	return result{respType: "TrustListResponse", payload: proto.TrustListResponse{Success: true, Entries: out}}
}

func (s *Server) handleUserKick(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserKick](payload)
	if err != nil {
		return protocolErr("malformed UserKick")
	}
	if !sess.Permissions().Has(model.PermUserKick) {
		return result{respType: "UserKickResponse", err: permDenied()}
	}
	if req.Nickname == sess.Nickname() {
		return result{respType: "UserKickResponse", err: &model.Error{Kind: model.KindSelfOp, Message: i18n.T(sess.Locale(), i18n.KeySelfKick)}}
	}
	target, ok := s.sessions.ByNickname(req.Nickname)
	if !ok {
		return result{respType: "UserKickResponse", err: notFound(sess.Locale())}
	}
	if target.IsAdmin() && !sess.IsAdmin() {
		return result{respType: "UserKickResponse", err: permDenied()}
	}

	msg := req.Reason
	if msg == "" {
		msg = i18n.T(target.Locale(), i18n.KeyKickedFromServer)
	}
	s.kickWithReason(target, msg)
	_ = s.store.InsertAudit(sess.Username(), "user_kick", req.Nickname, req.Reason)
	return result{respType: "UserKickResponse", payload: proto.UserKickResponse{Success: true}}
}

func (s *Server) kickWithReason(target *session.Session, message string) {
	_ = target.Writer.WriteFrame("Error", frame.NewMsgID(), marshalPayload(proto.Error{Command: "UserKick", Message: message}))
	_ = target.Close()
}
