package server

import (
	"github.com/nexusbbs/nexusd/internal/i18n"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

func (s *Server) handleUserList(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserList](payload)
	if err != nil {
		return protocolErr("malformed UserList")
	}

	if req.All {
		if !sess.Permissions().HasAll(model.PermUserEdit) && !sess.Permissions().HasAll(model.PermUserDelete) && !sess.IsAdmin() {
			return result{respType: "UserListResponse", err: permDenied()}
		}
		accounts, err := s.store.ListAccounts()
		if err != nil {
			return result{respType: "UserListResponse", err: &model.Error{Kind: model.KindResource, Message: "list accounts failed"}}
		}
		out := make([]proto.UserSummary, 0, len(accounts))
		for _, a := range accounts {
			out = append(out, proto.UserSummary{Nickname: a.Username, Username: a.Username, IsAdmin: a.IsAdmin, Enabled: a.Enabled})
		}
		return result{respType: "UserListResponse", payload: proto.UserListResponse{Success: true, Users: out}}
	}

	live := s.sessions.SortedByNickname()
	out := make([]proto.UserSummary, 0, len(live))
	for _, other := range live {
		away, status := other.Away()
		out = append(out, proto.UserSummary{Nickname: other.Nickname(), Away: away, Status: status})
	}
	return result{respType: "UserListResponse", payload: proto.UserListResponse{Success: true, Users: out}}
}

func (s *Server) handleUserInfo(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserInfo](payload)
	if err != nil {
		return protocolErr("malformed UserInfo")
	}
	target, ok := s.sessions.ByNickname(req.Nickname)
	if !ok {
		return result{respType: "UserInfoResponse", err: notFound(sess.Locale())}
	}
	away, status := target.Away()
	view := proto.UserSummary{Nickname: target.Nickname(), Away: away, Status: status}
	if sess.IsAdmin() {
		view.IsAdmin = target.IsAdmin()
		view.Addresses = []string{target.RemoteIP}
	}
	return result{respType: "UserInfoResponse", payload: proto.UserInfoResponse{Success: true, User: &view}}
}

func (s *Server) handleUserAway(sess *session.Session, payload []byte) result {
	sess.SetAway(true)
	s.broadcastUserUpdated(sess)
	return result{respType: "UserAwayResponse", payload: proto.UserAwayResponse{Success: true}}
}

func (s *Server) handleUserBack(sess *session.Session, payload []byte) result {
	sess.SetAway(false)
	s.broadcastUserUpdated(sess)
	return result{respType: "UserBackResponse", payload: proto.UserBackResponse{Success: true}}
}

func (s *Server) handleUserStatus(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserStatus](payload)
	if err != nil {
		return protocolErr("malformed UserStatus")
	}
	if !model.ValidStatus(req.Status) {
		return result{respType: "UserStatusResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid status"}}
	}
	sess.SetStatus(req.Status)
	s.broadcastUserUpdated(sess)
	return result{respType: "UserStatusResponse", payload: proto.UserStatusResponse{Success: true}}
}

func (s *Server) broadcastUserUpdated(sess *session.Session) {
	away, status := sess.Away()
	payload := marshalPayload(proto.UserUpdated{Nickname: sess.Nickname(), Away: away, Status: status})
	fanOutFrame(s.sessions.WithPermission(model.PermUserList), "UserUpdated", payload)
}

func permDenied() *model.Error {
	return &model.Error{Kind: model.KindPermission, Message: "permission denied"}
}

func notFound(locale string) *model.Error {
	return &model.Error{Kind: model.KindNotFound, Message: i18n.T(locale, i18n.KeyUserNotFound)}
}
