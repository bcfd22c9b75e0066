package server

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

// structValidate enforces the bound/shape constraints expressed as struct
// tags on request payloads (§7 "validation"). It composes with, rather than
// replaces, the semantic checks in internal/model (length/charset/uniqueness
// rules a struct tag can't express, like nickname charset or channel name
// case-folding).
var structValidate = validator.New()

// result is what a domain handler returns: the JSON-encodable response
// payload (sent under respType, echoing the request msgid) plus an error to
// report (its Message is sent as is) and whether the dispatcher should close the connection
// afterward (§7 "Propagation").
type result struct {
	respType string
	payload  any
	err      *model.Error
	// disconnect overrides the default Disconnect(strict) decision when set.
	forceDisconnect *bool
}

// dispatchDomainFrame routes an authenticated-BBS frame to its handler,
// or replies Error for an unknown type. State is already satisfied by the
// caller; this function makes no feature or permission check of its own —
// each handler performs those checks and any finer-grained validation.
func (s *Server) dispatchDomainFrame(sess *session.Session, f *frame.Frame) bool {
	h, ok := domainHandlers[f.Type]
	if !ok {
		_ = sess.Writer.WriteFrame("Error", f.MsgID, marshalPayload(proto.Error{
			Command: f.Type,
			Message: "unknown message type",
		}))
		return true // §4.1 "unknown type -> Error reply (no disconnect unless pre-login)"
	}

	r := h(s, sess, f.Payload)
	return s.sendResult(sess, f.MsgID, r)
}

func (s *Server) sendResult(sess *session.Session, msgid string, r result) bool {
	if r.err != nil {
		_ = sess.Writer.WriteFrame("Error", msgid, marshalPayload(proto.Error{
			Command:   r.respType,
			Message:   r.err.Message,
			ErrorKind: r.err.ErrorKind,
		}))
		disconnect := r.err.Disconnect(false)
		if r.forceDisconnect != nil {
			disconnect = *r.forceDisconnect
		}
		return !disconnect
	}
	if r.payload != nil {
		_ = sess.Writer.WriteFrame(r.respType, msgid, marshalPayload(r.payload))
	}
	return true
}

func forceDisconnect(b bool) *bool { return &b }

// domainHandlers is the exhaustive dispatch table for authenticated-BBS
// frame types (§4.4, §6 "Message set"). Each handler does its own feature/
// permission checks; the table only fixes the registration (closed union,
// §9 "Tagged variants, not inheritance").
var domainHandlers = map[string]func(*Server, *session.Session, []byte) result{
	"UserList":          (*Server).handleUserList,
	"UserInfo":          (*Server).handleUserInfo,
	"UserAway":          (*Server).handleUserAway,
	"UserBack":          (*Server).handleUserBack,
	"UserStatus":        (*Server).handleUserStatus,
	"ChatJoin":          (*Server).handleChatJoin,
	"ChatLeave":         (*Server).handleChatLeave,
	"ChatList":          (*Server).handleChatList,
	"ChatSecret":        (*Server).handleChatSecret,
	"ChatSend":          (*Server).handleChatSend,
	"ChatTopicUpdate":   (*Server).handleChatTopicUpdate,
	"UserMessage":       (*Server).handleUserMessage,
	"UserBroadcast":     (*Server).handleUserBroadcast,
	"NewsList":          (*Server).handleNewsList,
	"NewsShow":          (*Server).handleNewsShow,
	"NewsCreate":        (*Server).handleNewsCreate,
	"NewsEdit":          (*Server).handleNewsEdit,
	"NewsUpdate":        (*Server).handleNewsEdit,
	"NewsDelete":        (*Server).handleNewsDelete,
	"FileList":          (*Server).handleFileList,
	"FileInfo":          (*Server).handleFileInfo,
	"FileSearch":        (*Server).handleFileSearch,
	"FileReindex":       (*Server).handleFileReindex,
	"FileCreateDir":     (*Server).handleFileCreateDir,
	"FileRename":        (*Server).handleFileRename,
	"FileMove":          (*Server).handleFileMove,
	"FileCopy":          (*Server).handleFileCopy,
	"FileDelete":        (*Server).handleFileDelete,
	"UserCreate":        (*Server).handleUserCreate,
	"UserEdit":          (*Server).handleUserEdit,
	"UserUpdate":        (*Server).handleUserUpdate,
	"UserDelete":        (*Server).handleUserDelete,
	"ServerInfoUpdate":  (*Server).handleServerInfoUpdate,
	"UserKick":          (*Server).handleUserKick,
	"BanCreate":         (*Server).handleBanCreate,
	"BanDelete":         (*Server).handleBanDelete,
	"BanList":           (*Server).handleBanList,
	"TrustCreate":       (*Server).handleTrustCreate,
	"TrustDelete":       (*Server).handleTrustDelete,
	"TrustList":         (*Server).handleTrustList,
	"ConnectionMonitor": (*Server).handleConnectionMonitor,
	"VoiceJoin":         (*Server).handleVoiceJoin,
	"VoiceLeave":        (*Server).handleVoiceLeave,
}

func unmarshalInto[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, err
	}
	if err := structValidate.Struct(&v); err != nil {
		return v, err
	}
	return v, nil
}

func protocolErr(msg string) result {
	return result{err: &model.Error{Kind: model.KindProtocol, Message: msg}}
}
