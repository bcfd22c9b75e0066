package server

import (
	"strings"

	"github.com/nexusbbs/nexusd/internal/auth"
	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/i18n"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

func permSetFromStrings(ss []string) model.PermissionSet {
	perms := make([]model.Permission, len(ss))
	for i, p := range ss {
		perms[i] = model.Permission(p)
	}
	return model.PermissionSetFromSlice(perms)
}

// grantablePermissions implements the §8 "permission-merge" invariant: a
// non-admin actor may only grant permissions it itself holds; admins may
// grant anything. A shared target's grant is additionally filtered to
// ShareableSet (§8 "shared-filter").
func grantablePermissions(actor *session.Session, requested model.PermissionSet, targetShared bool) model.PermissionSet {
	out := requested
	if !actor.IsAdmin() {
		out = out.Intersect(actor.Permissions())
	}
	if targetShared {
		out = out.FilterShareable()
	}
	return out
}

func (s *Server) handleUserCreate(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserCreate](payload)
	if err != nil {
		return protocolErr("malformed UserCreate")
	}
	if !sess.Permissions().Has(model.PermUserEdit) && !sess.IsAdmin() {
		return result{respType: "UserCreateResponse", err: permDenied()}
	}
	if !model.ValidUsername(req.Username) {
		return result{respType: "UserCreateResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid username"}}
	}
	if req.IsAdmin && !sess.IsAdmin() {
		return result{respType: "UserCreateResponse", err: permDenied()}
	}
	if strings.EqualFold(req.Username, model.GuestUsername) && !sess.IsAdmin() {
		return result{respType: "UserCreateResponse", err: permDenied()}
	}

	if _, err := s.store.GetAccount(req.Username); err == nil {
		return result{respType: "UserCreateResponse", err: &model.Error{Kind: model.KindConflict, Message: "username already exists"}}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return result{respType: "UserCreateResponse", err: &model.Error{Kind: model.KindResource, Message: "password hash failed"}}
	}

	perms := grantablePermissions(sess, permSetFromStrings(req.Permissions), req.IsShared)
	acc := model.Account{
		Username: req.Username, PasswordHash: hash, IsAdmin: req.IsAdmin, IsShared: req.IsShared,
		Enabled: req.Enabled, Permissions: perms, Locale: i18n.DefaultLocale,
	}
	if err := s.store.CreateAccount(acc); err != nil {
		return result{respType: "UserCreateResponse", err: &model.Error{Kind: model.KindResource, Message: "create account failed"}}
	}
	_ = s.store.InsertAudit(sess.Username(), "user_create", acc.Username, "")
	return result{respType: "UserCreateResponse", payload: proto.UserCreateResponse{Success: true}}
}

func (s *Server) handleUserEdit(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserEdit](payload)
	if err != nil {
		return protocolErr("malformed UserEdit")
	}
	if !sess.Permissions().Has(model.PermUserEdit) && !sess.IsAdmin() {
		return result{respType: "UserEditResponse", err: permDenied()}
	}
	acc, err := s.store.GetAccount(req.Username)
	if err != nil {
		return result{respType: "UserEditResponse", err: notFound(sess.Locale())}
	}
	return result{respType: "UserEditResponse", payload: proto.UserEditResponse{
		Success: true, IsAdmin: acc.IsAdmin, IsShared: acc.IsShared, Enabled: acc.Enabled,
		Permissions: permSlice(acc.EffectivePermissions()),
	}}
}

// handleUserUpdate applies a partial update to an existing account,
// enforcing admin-protection (non-admins cannot edit admin accounts), the
// self-demotion rule (an admin cannot remove their own admin status), and
// the last-admin guard (§8 invariants).
func (s *Server) handleUserUpdate(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserUpdate](payload)
	if err != nil {
		return protocolErr("malformed UserUpdate")
	}
	if !sess.Permissions().Has(model.PermUserEdit) && !sess.IsAdmin() {
		return result{respType: "UserUpdateResponse", err: permDenied()}
	}
	acc, err := s.store.GetAccount(req.Username)
	if err != nil {
		return result{respType: "UserUpdateResponse", err: notFound(sess.Locale())}
	}

	actingOnSelf := strings.EqualFold(acc.Username, sess.Username())
	if acc.IsAdmin && !sess.IsAdmin() {
		return result{respType: "UserUpdateResponse", err: &model.Error{Kind: model.KindAdminProtect, Message: i18n.T(sess.Locale(), i18n.KeyCannotEditAdmin)}}
	}
	if acc.IsGuest() && !sess.IsAdmin() {
		return result{respType: "UserUpdateResponse", err: permDenied()}
	}

	if req.IsAdmin != nil && !*req.IsAdmin && acc.IsAdmin {
		if actingOnSelf {
			return result{respType: "UserUpdateResponse", err: &model.Error{Kind: model.KindSelfOp, Message: i18n.T(sess.Locale(), i18n.KeySelfDemote)}}
		}
		if n, err := s.store.EnabledAdminCount(); err == nil && n <= 1 {
			return result{respType: "UserUpdateResponse", err: &model.Error{Kind: model.KindAdminProtect, Message: i18n.T(sess.Locale(), i18n.KeyLastAdminGuard)}}
		}
	}
	if req.Enabled != nil && !*req.Enabled && acc.IsAdmin {
		if n, err := s.store.EnabledAdminCount(); err == nil && n <= 1 {
			return result{respType: "UserUpdateResponse", err: &model.Error{Kind: model.KindAdminProtect, Message: i18n.T(sess.Locale(), i18n.KeyLastAdminGuard)}}
		}
	}

	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			return result{respType: "UserUpdateResponse", err: &model.Error{Kind: model.KindResource, Message: "password hash failed"}}
		}
		acc.PasswordHash = hash
	}
	if req.IsAdmin != nil {
		acc.IsAdmin = *req.IsAdmin
	}
	if req.Enabled != nil {
		acc.Enabled = *req.Enabled
	}
	if req.Permissions != nil {
		acc.Permissions = grantablePermissions(sess, permSetFromStrings(req.Permissions), acc.IsShared)
	}

	renaming := req.NewUsername != "" && !strings.EqualFold(req.NewUsername, acc.Username)
	if renaming {
		if !model.ValidUsername(req.NewUsername) {
			return result{respType: "UserUpdateResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid new username"}}
		}
		if _, err := s.store.GetAccount(req.NewUsername); err == nil {
			return result{respType: "UserUpdateResponse", err: &model.Error{Kind: model.KindConflict, Message: "username already exists"}}
		}
	}

	if err := s.store.UpdateAccount(acc); err != nil {
		return result{respType: "UserUpdateResponse", err: &model.Error{Kind: model.KindResource, Message: "update account failed"}}
	}
	if renaming {
		if err := s.store.RenameAccount(acc.Username, req.NewUsername); err != nil {
			return result{respType: "UserUpdateResponse", err: &model.Error{Kind: model.KindResource, Message: "rename account failed"}}
		}
		acc.Username = req.NewUsername
	}

	for _, live := range s.sessions.ByUsername(req.Username) {
		live.SetPermissions(acc.EffectivePermissions())
		_ = live.Writer.WriteFrame("PermissionsUpdated", frame.NewMsgID(), marshalPayload(proto.PermissionsUpdated{
			Permissions: permSlice(acc.EffectivePermissions()), IsAdmin: acc.IsAdmin,
		}))
	}
	_ = s.store.InsertAudit(sess.Username(), "user_update", acc.Username, "")
	return result{respType: "UserUpdateResponse", payload: proto.UserUpdateResponse{Success: true}}
}

func (s *Server) handleUserDelete(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserDelete](payload)
	if err != nil {
		return protocolErr("malformed UserDelete")
	}
	if !sess.Permissions().Has(model.PermUserDelete) && !sess.IsAdmin() {
		return result{respType: "UserDeleteResponse", err: permDenied()}
	}
	if strings.EqualFold(req.Username, sess.Username()) {
		return result{respType: "UserDeleteResponse", err: &model.Error{Kind: model.KindSelfOp, Message: i18n.T(sess.Locale(), i18n.KeySelfDelete)}}
	}
	acc, err := s.store.GetAccount(req.Username)
	if err != nil {
		return result{respType: "UserDeleteResponse", err: notFound(sess.Locale())}
	}
	if acc.IsAdmin {
		if !sess.IsAdmin() {
			return result{respType: "UserDeleteResponse", err: &model.Error{Kind: model.KindAdminProtect, Message: i18n.T(sess.Locale(), i18n.KeyCannotDeleteAdmin)}}
		}
		if n, err := s.store.EnabledAdminCount(); err == nil && n <= 1 {
			return result{respType: "UserDeleteResponse", err: &model.Error{Kind: model.KindAdminProtect, Message: i18n.T(sess.Locale(), i18n.KeyLastAdminGuard)}}
		}
	}

	if err := s.store.DeleteAccount(req.Username); err != nil {
		return result{respType: "UserDeleteResponse", err: &model.Error{Kind: model.KindResource, Message: "delete account failed"}}
	}
	_ = s.store.InsertAudit(sess.Username(), "user_delete", req.Username, "")
	for _, live := range s.sessions.ByUsername(req.Username) {
		s.kickWithReason(live, i18n.T(live.Locale(), i18n.KeyKickedFromServer))
	}
	return result{respType: "UserDeleteResponse", payload: proto.UserDeleteResponse{Success: true}}
}

func (s *Server) handleServerInfoUpdate(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.ServerInfoUpdate](payload)
	if err != nil {
		return protocolErr("malformed ServerInfoUpdate")
	}
	if !sess.IsAdmin() {
		return result{respType: "ServerInfoUpdateResponse", err: permDenied()}
	}

	s.infoMu.Lock()
	s.info.Name = req.Name
	s.info.Description = req.Description
	s.info.Image = req.Image
	s.info.MaxConnections = req.MaxConnections
	s.info.ReindexIntervalMins = req.ReindexIntervalMins
	if req.PersistentChannels != "" {
		s.info.PersistentChannels = splitCommaList(req.PersistentChannels)
	}
	if req.AutoJoinChannels != "" {
		s.info.AutoJoinChannels = splitCommaList(req.AutoJoinChannels)
	}
	s.infoMu.Unlock()

	_ = s.store.SetSetting("server_name", req.Name)

	for _, name := range s.persistentChannelNames() {
		s.channels.EnsurePersistent(model.CanonicalChannelName(name))
	}

	info := s.publicServerInfo()
	payloadBytes := marshalPayload(proto.ServerInfoUpdated{ServerInfo: *info})
	for _, other := range s.sessions.Snapshot() {
		_ = other.Writer.WriteFrame("ServerInfoUpdated", frame.NewMsgID(), payloadBytes)
	}
	return result{respType: "ServerInfoUpdateResponse", payload: proto.ServerInfoUpdateResponse{Success: true}}
}

func splitCommaList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
