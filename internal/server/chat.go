package server

import (
	"github.com/nexusbbs/nexusd/internal/chat"
	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/i18n"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

func (s *Server) handleChatJoin(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.ChatJoin](payload)
	if err != nil {
		return protocolErr("malformed ChatJoin")
	}
	if !model.ValidChannelName(req.Channel) {
		return result{respType: "ChatJoinResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid channel name"}}
	}
	if !sess.Permissions().Has(model.PermChatJoin) {
		return result{respType: "ChatJoinResponse", err: permDenied()}
	}
	if len(s.channels.MemberOf(sess.Nickname())) >= chat.MaxJoinedChannels {
		return result{respType: "ChatJoinResponse", err: &model.Error{Kind: model.KindValidation, Message: i18n.T(sess.Locale(), i18n.KeyJoinCapExceeded)}}
	}

	canonical := model.CanonicalChannelName(req.Channel)
	ch, created := s.channels.GetOrCreate(canonical)
	if created && !sess.Permissions().Has(model.PermChatCreate) {
		s.channels.RemoveIfEmptyEphemeral(canonical)
		return result{respType: "ChatJoinResponse", err: permDenied()}
	}

	ch.Join(sess.Nickname())
	st := ch.State()

	s.broadcastToChannel(ch, "ChatUserJoined", proto.ChatUserJoined{Channel: canonical, Nickname: sess.Nickname()}, sess.Nickname())

	return result{respType: "ChatJoinResponse", payload: proto.ChatJoinResponse{
		Success: true,
		Channel: &proto.ChannelState{Name: st.Name, Topic: st.Topic, Secret: st.Secret, Members: st.Members},
	}}
}

func (s *Server) handleChatLeave(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.ChatLeave](payload)
	if err != nil {
		return protocolErr("malformed ChatLeave")
	}
	canonical := model.CanonicalChannelName(req.Channel)
	ch := s.channels.Get(canonical)
	if ch == nil || !ch.HasMember(sess.Nickname()) {
		return result{respType: "ChatLeaveResponse", err: channelNotFound(sess.Locale())}
	}
	if ch.IsPersistent() {
		return result{respType: "ChatLeaveResponse", err: &model.Error{Kind: model.KindValidation, Message: i18n.T(sess.Locale(), i18n.KeyPersistentNoLeave)}}
	}

	s.leaveChannel(sess, ch)
	return result{respType: "ChatLeaveResponse", payload: proto.ChatLeaveResponse{Success: true}}
}

// leaveChannel removes nickname from ch, broadcasts ChatUserLeft, tears
// down any owning voice session, and deletes the channel if it is now an
// empty ephemeral channel (§8 "Channel lifecycle").
func (s *Server) leaveChannel(sess *session.Session, ch *chat.Channel) {
	removed, empty := ch.Leave(sess.Nickname())
	if !removed {
		return
	}
	s.broadcastToChannel(ch, "ChatUserLeft", proto.ChatUserLeft{Channel: ch.Name(), Nickname: sess.Nickname()}, "")
	s.teardownVoiceIfOwning(sess, ch.Name())
	if empty {
		s.channels.RemoveIfEmptyEphemeral(ch.Name())
	}
}

func (s *Server) handleChatList(sess *session.Session, payload []byte) result {
	visible := s.channels.Visible(sess.Nickname(), sess.IsAdmin())
	out := make([]proto.ChannelState, 0, len(visible))
	for _, ch := range visible {
		st := ch.State()
		out = append(out, proto.ChannelState{Name: st.Name, Topic: st.Topic, Secret: st.Secret})
	}
	return result{respType: "ChatListResponse", payload: proto.ChatListResponse{Success: true, Channels: out}}
}

func (s *Server) handleChatSecret(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.ChatSecret](payload)
	if err != nil {
		return protocolErr("malformed ChatSecret")
	}
	canonical := model.CanonicalChannelName(req.Channel)
	ch := s.channels.Get(canonical)
	if ch == nil || !ch.HasMember(sess.Nickname()) {
		return result{respType: "ChatSecretResponse", err: channelNotFound(sess.Locale())}
	}
	ch.SetSecret(req.Secret)
	return result{respType: "ChatSecretResponse", payload: proto.ChatSecretResponse{Success: true}}
}

func (s *Server) handleChatSend(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.ChatSend](payload)
	if err != nil {
		return protocolErr("malformed ChatSend")
	}
	if !model.ValidChatMessage(req.Message) {
		return result{err: &model.Error{Kind: model.KindValidation, Message: "invalid chat message"}}
	}
	action := req.Action
	if action == "" {
		action = proto.ChatActionNormal
	}
	canonical := model.CanonicalChannelName(req.Channel)
	ch := s.channels.Get(canonical)
	if ch == nil || !ch.HasMember(sess.Nickname()) {
		return result{err: channelNotFound(sess.Locale())}
	}

	msg := proto.ChatMessage{Channel: canonical, Nickname: sess.Nickname(), Message: req.Message, Action: action}
	payloadBytes := marshalPayload(msg)
	for _, nickname := range ch.Members() {
		other, ok := s.sessions.ByNickname(nickname)
		if !ok || !other.Permissions().Has(model.PermChatReceive) {
			continue
		}
		_ = other.Writer.WriteFrame("ChatMessage", frame.NewMsgID(), payloadBytes)
	}
	return result{} // echo already delivered above since sender is a member
}

func (s *Server) handleChatTopicUpdate(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.ChatTopicUpdate](payload)
	if err != nil {
		return protocolErr("malformed ChatTopicUpdate")
	}
	if !model.ValidTopic(req.Topic) {
		return result{respType: "ChatTopicUpdateResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid topic"}}
	}
	canonical := model.CanonicalChannelName(req.Channel)
	ch := s.channels.Get(canonical)
	if ch == nil || !ch.HasMember(sess.Nickname()) {
		return result{respType: "ChatTopicUpdateResponse", err: channelNotFound(sess.Locale())}
	}
	if !sess.Permissions().Has(model.PermChatTopicEdit) {
		return result{respType: "ChatTopicUpdateResponse", err: permDenied()}
	}

	ch.SetTopic(req.Topic, sess.Nickname())
	if ch.IsPersistent() {
		_ = s.store.SetChannelTopic(canonical, req.Topic, sess.Nickname())
	}
	s.broadcastToChannel(ch, "ChatTopicUpdated", proto.ChatTopicUpdated{Channel: canonical, Topic: req.Topic, SetBy: sess.Nickname()}, "")
	return result{respType: "ChatTopicUpdateResponse", payload: proto.ChatTopicUpdateResponse{Success: true}}
}

// broadcastToChannel enumerates ch's members (a snapshot, §9 "Broadcasts as
// snapshots") and writes msgType to every member except excludeNickname.
func (s *Server) broadcastToChannel(ch *chat.Channel, msgType string, payload any, excludeNickname string) {
	data := marshalPayload(payload)
	recipients := make([]*session.Session, 0, len(ch.Members()))
	for _, nickname := range ch.Members() {
		if nickname == excludeNickname {
			continue
		}
		if other, ok := s.sessions.ByNickname(nickname); ok {
			recipients = append(recipients, other)
		}
	}
	fanOutFrame(recipients, msgType, data)
}

func channelNotFound(locale string) *model.Error {
	return &model.Error{Kind: model.KindNotFound, Message: i18n.T(locale, i18n.KeyChannelNotFound)}
}
