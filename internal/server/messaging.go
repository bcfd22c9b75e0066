package server

import (
	"strings"

	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/i18n"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

func (s *Server) handleUserMessage(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserMessage](payload)
	if err != nil {
		return protocolErr("malformed UserMessage")
	}
	if !model.ValidChatMessage(req.Message) {
		return result{respType: "UserMessageResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid message"}}
	}
	if strings.EqualFold(req.Nickname, sess.Nickname()) {
		return result{respType: "UserMessageResponse", err: &model.Error{Kind: model.KindSelfOp, Message: i18n.T(sess.Locale(), i18n.KeySelfMessage)}}
	}

	target, ok := s.sessions.ByNickname(req.Nickname)
	if !ok {
		return result{respType: "UserMessageResponse", err: notFound(sess.Locale())}
	}

	delivery := marshalPayload(proto.UserMessage{Nickname: sess.Nickname(), Message: req.Message})
	if target.IsShared() {
		_ = target.Writer.WriteFrame("UserMessage", frame.NewMsgID(), delivery)
	} else {
		for _, recipientSess := range s.sessions.ByUsername(target.Username()) {
			_ = recipientSess.Writer.WriteFrame("UserMessage", frame.NewMsgID(), delivery)
		}
	}

	away, status := target.Away()
	return result{respType: "UserMessageResponse", payload: proto.UserMessageResponse{Success: true, Away: away, Status: status}}
}

func (s *Server) handleUserBroadcast(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.UserBroadcast](payload)
	if err != nil {
		return protocolErr("malformed UserBroadcast")
	}
	if !sess.Permissions().Has(model.PermUserBroadcast) {
		return result{respType: "UserBroadcastResponse", err: permDenied()}
	}
	if !model.ValidChatMessage(req.Message) {
		// §7 "validation ... for broadcast ... disconnect (stricter, anti-spam / anti-probe)"
		return result{respType: "UserBroadcastResponse", err: &model.Error{Kind: model.KindValidation, Message: "invalid broadcast message"}, forceDisconnect: forceDisconnect(true)}
	}

	delivery := marshalPayload(proto.ServerBroadcast{Nickname: sess.Nickname(), Message: req.Message})
	fanOutFrame(s.sessions.Snapshot(), "ServerBroadcast", delivery)
	return result{respType: "UserBroadcastResponse", payload: proto.UserBroadcastResponse{Success: true}}
}
