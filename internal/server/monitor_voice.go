package server

import (
	"net"
	"strings"

	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
	"github.com/nexusbbs/nexusd/internal/voice"
)

func (s *Server) handleConnectionMonitor(sess *session.Session, payload []byte) result {
	if !sess.Permissions().Has(model.PermConnectionMonitor) {
		return result{respType: "ConnectionMonitorResponse", err: permDenied()}
	}

	live := s.sessions.Snapshot()
	conns := make([]proto.ConnectionView, 0, len(live))
	for _, other := range live {
		var flags []string
		if other.IsAdmin() {
			flags = append(flags, "admin")
		}
		if other.IsShared() {
			flags = append(flags, "shared")
		}
		conns = append(conns, proto.ConnectionView{
			Nickname:  other.Nickname(),
			Username:  other.Username(),
			IP:        other.RemoteIP,
			Port:      remotePort(other.Conn),
			LoginTime: other.LoginTime(),
			Flags:     flags,
		})
	}

	live2 := s.transfers.Snapshot()
	xfers := make([]proto.TransferView, 0, len(live2))
	for _, t := range live2 {
		xfers = append(xfers, proto.TransferView{
			Direction:        string(t.Direction),
			Path:             t.Path,
			TotalSize:        t.TotalSize,
			BytesTransferred: t.BytesTransferred(),
			StartedAt:        t.StartedAt,
		})
	}

	return result{respType: "ConnectionMonitorResponse", payload: proto.ConnectionMonitorResponse{Success: true, Connections: conns, Transfers: xfers}}
}

func remotePort(conn net.Conn) int {
	if tcpAddr, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		return tcpAddr.Port
	}
	return 0
}

// voiceChannelKey builds the registry key for a channel voice session,
// reusing voice.ChannelKey so both VoiceJoin and channel-leave teardown
// agree on the key (§4.6).
func voiceChannelKey(canonicalChannel string) string {
	return voice.ChannelKey(canonicalChannel)
}

func (s *Server) handleVoiceJoin(sess *session.Session, payload []byte) result {
	req, err := unmarshalInto[proto.VoiceJoin](payload)
	if err != nil {
		return protocolErr("malformed VoiceJoin")
	}
	if !sess.Permissions().Has(model.PermVoiceTalk) && !sess.Permissions().Has(model.PermVoiceListen) {
		return result{respType: "VoiceJoinResponse", err: permDenied()}
	}

	var key string
	var isChannel bool
	var channelName string
	if strings.HasPrefix(req.Target, "#") {
		channelName = model.CanonicalChannelName(req.Target)
		ch := s.channels.Get(channelName)
		if ch == nil || !ch.HasMember(sess.Nickname()) {
			return result{respType: "VoiceJoinResponse", err: channelNotFound(sess.Locale())}
		}
		key = voiceChannelKey(channelName)
		isChannel = true
	} else {
		target, ok := s.sessions.ByNickname(req.Target)
		if !ok {
			return result{respType: "VoiceJoinResponse", err: notFound(sess.Locale())}
		}
		key = voice.UserKey(sess.Nickname(), target.Nickname())
	}

	if existing := sess.VoiceTarget(); existing != "" && existing != key {
		s.teardownVoice(sess, existing)
	}

	vs, _ := s.voiceReg.GetOrCreate(key, isChannel, channelName)
	token := voice.NewToken()
	vs.Add(sess.Nickname(), token)
	s.voiceReg.BindToken(token, key)
	sess.SetVoice(key, token)

	for _, nickname := range vs.ParticipantNicknames() {
		if nickname == sess.Nickname() {
			continue
		}
		if other, ok := s.sessions.ByNickname(nickname); ok {
			_ = other.Writer.WriteFrame("VoiceUserJoined", frame.NewMsgID(), marshalPayload(proto.VoiceUserJoined{Target: req.Target, Nickname: sess.Nickname()}))
		}
	}

	return result{respType: "VoiceJoinResponse", payload: proto.VoiceJoinResponse{
		Success:      true,
		Token:        tokenHex(token),
		Target:       req.Target,
		Participants: vs.ParticipantNicknames(),
	}}
}

func (s *Server) handleVoiceLeave(sess *session.Session, payload []byte) result {
	target := sess.VoiceTarget()
	if target == "" {
		return result{respType: "VoiceLeaveResponse", err: &model.Error{Kind: model.KindNotFound, Message: "not in a voice session"}}
	}
	s.teardownVoice(sess, target)
	return result{respType: "VoiceLeaveResponse", payload: proto.VoiceLeaveResponse{Success: true}}
}

// teardownVoice removes sess from the voice session keyed by key, unbinds
// its token, announces VoiceUserLeft to the remaining participants, and
// removes the session entirely once empty (§4.6, §9 Open Question: emitted
// before the TCP teardown notification so listeners never see a stale
// participant).
func (s *Server) teardownVoice(sess *session.Session, key string) {
	vs, ok := s.voiceReg.Get(key)
	if !ok {
		sess.ClearVoice()
		return
	}
	token := sess.VoiceToken()
	vs.Remove(sess.Nickname())
	s.voiceReg.UnbindToken(token)
	sess.ClearVoice()

	displayTarget := key
	if vs.IsChannel {
		displayTarget = vs.Channel
	}
	for _, nickname := range vs.ParticipantNicknames() {
		if other, ok := s.sessions.ByNickname(nickname); ok {
			_ = other.Writer.WriteFrame("VoiceUserLeft", frame.NewMsgID(), marshalPayload(proto.VoiceUserLeft{Target: displayTarget, Nickname: sess.Nickname()}))
		}
	}
	if vs.Empty() {
		s.voiceReg.Remove(key)
	}
}

func tokenHex(token [16]byte) string {
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 32)
	for i, b := range token {
		out[i*2] = hexDigits[b>>4]
		out[i*2+1] = hexDigits[b&0x0f]
	}
	return string(out)
}
