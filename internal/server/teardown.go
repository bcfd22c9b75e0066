package server

import (
	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/i18n"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

// teardown runs whenever a BBS connection's read loop exits, for any reason
// (client disconnect, protocol error, kick, ban). It leaves every channel the
// session belonged to, tears down any voice participation, removes the
// session from the registry, and announces the departure (§5 "Cancellation").
func (s *Server) teardown(sess *session.Session) {
	defer sess.Close()

	if sess.State() != session.AuthenticatedBBS {
		s.sessions.Remove(sess.ID)
		return
	}

	for _, name := range s.channels.MemberOf(sess.Nickname()) {
		ch := s.channels.Get(name)
		if ch == nil {
			continue
		}
		s.leaveChannel(sess, ch)
	}

	if sess.VoiceTarget() != "" {
		s.teardownVoice(sess, sess.VoiceTarget())
	}

	s.sessions.Remove(sess.ID)

	payload := marshalPayload(proto.UserDisconnected{Nickname: sess.Nickname()})
	fanOutFrame(s.sessions.WithPermission(model.PermUserList), "UserDisconnected", payload)
}

// kickForBan sends the session a translated ban notice then closes its
// connection (§4.2 "Post-ban termination"). The read loop's own deferred
// teardown performs the rest of the cleanup once Close unblocks it.
func (s *Server) kickForBan(sess *session.Session) {
	_ = sess.Writer.WriteFrame("Error", frame.NewMsgID(), marshalPayload(proto.Error{
		Command: "ServerBroadcast",
		Message: i18n.T(sess.Locale(), i18n.KeyBannedFromServer),
	}))
	_ = sess.Close()
}

// teardownVoiceIfOwning tears down sess's voice participation if it is
// joined to the voice session keyed for channelName (§4.6: leaving a channel
// also leaves any voice session tied to it).
func (s *Server) teardownVoiceIfOwning(sess *session.Session, channelName string) {
	target := sess.VoiceTarget()
	if target == "" || target != voiceChannelKey(channelName) {
		return
	}
	s.teardownVoice(sess, target)
}

