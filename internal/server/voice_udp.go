package server

import (
	"context"
	"net"
	"time"

	"github.com/pion/dtls/v3"

	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/voice"
)

// voiceReapInterval is how often the idle-session sweep runs (§4.6: "server
// expires sessions after 60 s of no packets").
const voiceReapInterval = 15 * time.Second

// ServeVoice runs the DTLS-over-UDP accept loop for VoiceCore's audio relay
// (§4.6), reusing the same certificate as the BBS/transfer TLS listeners.
// One dtls.Conn is accepted per distinct peer address; each runs its own
// read loop feeding packets to the shared Relay.
func (s *Server) ServeVoice(addr string) error {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}

	dtlsCfg := &dtls.Config{
		Certificates: s.tlsConfig.Certificates,
		// The server does not verify voice clients (§4.5 "Server does not
		// need to verify clients" applies equally to the DTLS relay).
		ClientAuthType: dtls.NoClientCert,
		ConnectContextMaker: func() (context.Context, func()) {
			return context.WithTimeout(context.Background(), preAuthFirstByteTimeout)
		},
	}

	ln, err := dtls.Listen("udp", laddr, dtlsCfg)
	if err != nil {
		return err
	}
	defer ln.Close()

	s.voiceRelay = voice.NewRelay(s.gate, s.voiceReg)
	s.voiceRelay.RequireVoiceTalk = s.sessionHasVoiceTalk

	go s.reapIdleVoiceSessions()

	s.log.WithField("addr", addr).Info("voice relay listener started")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleVoiceConn(conn)
	}
}

func (s *Server) handleVoiceConn(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 2048)
	for {
		_ = conn.SetReadDeadline(time.Now().Add(voice.IdleExpiry))
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		s.voiceRelay.HandlePacket(buf[:n], conn)
	}
}

// sessionHasVoiceTalk is wired as Relay.RequireVoiceTalk: it keeps the
// relay decoupled from account state by resolving permission through the
// live session registry on every VoiceData packet.
func (s *Server) sessionHasVoiceTalk(nickname string) bool {
	sess, ok := s.sessions.ByNickname(nickname)
	if !ok {
		return false
	}
	return sess.Permissions().Has(model.PermVoiceTalk)
}

// reapIdleVoiceSessions periodically tears down voice sessions that have
// seen no packets for voice.IdleExpiry, driving each participant through
// the same teardownVoice path as an explicit VoiceLeave so listeners
// observe a normal VoiceUserLeft rather than a silent disappearance.
func (s *Server) reapIdleVoiceSessions() {
	ticker := time.NewTicker(voiceReapInterval)
	defer ticker.Stop()
	for range ticker.C {
		now := time.Now()
		for _, vs := range s.voiceReg.Snapshot() {
			if !vs.Idle(now) {
				continue
			}
			for _, nickname := range vs.ParticipantNicknames() {
				if sess, ok := s.sessions.ByNickname(nickname); ok {
					s.teardownVoice(sess, vs.Key)
				}
			}
		}
	}
}
