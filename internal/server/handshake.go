package server

import (
	"encoding/json"
	"time"

	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/proto"
	"github.com/nexusbbs/nexusd/internal/session"
)

// handleBBSConn runs the per-connection read loop implementing SessionCore's
// state machine (§4.3) on the BBS port.
func (s *Server) handleBBSConn(sess *session.Session) {
	defer s.teardown(sess)

	reader := frame.NewReader(sess.Conn, frame.MaxFrameSize)

	for {
		deadline := preAuthFrameTimeout
		if sess.State() == session.AuthenticatedBBS {
			deadline = bbsFrameTimeout
		}
		_ = sess.Conn.SetReadDeadline(time.Now().Add(deadline))

		f, err := reader.ReadFrame()
		if err != nil {
			return
		}
		sess.TouchFrame()

		if !s.dispatchBBSFrame(sess, f) {
			return
		}
	}
}

// dispatchBBSFrame handles one frame and returns false if the connection
// should be closed.
func (s *Server) dispatchBBSFrame(sess *session.Session, f *frame.Frame) bool {
	if f.Type == "Ping" {
		_ = sess.Writer.WriteFrame("Pong", f.MsgID, marshalPayload(proto.Pong{}))
		return true
	}

	switch sess.State() {
	case session.AwaitHandshake:
		return s.handleHandshakeFrame(sess, f)
	case session.AwaitLogin:
		return s.handleLoginFrame(sess, f)
	case session.AuthenticatedBBS:
		return s.dispatchDomainFrame(sess, f)
	default:
		return false
	}
}

func (s *Server) handleHandshakeFrame(sess *session.Session, f *frame.Frame) bool {
	if f.Type != "Handshake" {
		return false // §4.3: any other frame before handshake yields disconnect
	}
	var req proto.Handshake
	if err := json.Unmarshal(f.Payload, &req); err != nil {
		_ = sess.Writer.WriteFrame("HandshakeResponse", f.MsgID, marshalPayload(proto.HandshakeResponse{Success: false, Error: "malformed handshake"}))
		return false
	}

	clientVersion, ok := session.ParseVersion(req.ProtocolVersion)
	if !ok || !session.Compatible(ProtocolVersion, clientVersion) {
		_ = sess.Writer.WriteFrame("HandshakeResponse", f.MsgID, marshalPayload(proto.HandshakeResponse{Success: false, Error: "unsupported protocol version"}))
		return false
	}

	_ = sess.Writer.WriteFrame("HandshakeResponse", f.MsgID, marshalPayload(proto.HandshakeResponse{Success: true}))
	sess.SetState(session.AwaitLogin)
	return true
}
