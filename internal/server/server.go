// Package server wires together AccessGate, SessionCore, the chat/news/file
// domain handlers, and TransferEngine/VoiceCore into the running Nexus
// service (§2 SYSTEM OVERVIEW, §4.4 Dispatch & Domain).
package server

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nexusbbs/nexusd/internal/access"
	"github.com/nexusbbs/nexusd/internal/chat"
	"github.com/nexusbbs/nexusd/internal/config"
	"github.com/nexusbbs/nexusd/internal/fileindex"
	"github.com/nexusbbs/nexusd/internal/frame"
	"github.com/nexusbbs/nexusd/internal/logging"
	"github.com/nexusbbs/nexusd/internal/metrics"
	"github.com/nexusbbs/nexusd/internal/model"
	"github.com/nexusbbs/nexusd/internal/session"
	"github.com/nexusbbs/nexusd/internal/store"
	"github.com/nexusbbs/nexusd/internal/transfer"
	"github.com/nexusbbs/nexusd/internal/voice"
)

// ProtocolVersion is this server's negotiated version (§4.3).
var ProtocolVersion = session.Version{Major: 1, Minor: 0, Patch: 0}

const (
	preAuthFirstByteTimeout = 30 * time.Second
	preAuthFrameTimeout     = 60 * time.Second
	bbsFrameTimeout         = 60 * time.Second
)

// ServerInfo mirrors proto.ServerInfo plus the admin-managed settings that
// are not broadcast verbatim (§4.4 "ServerInfoUpdate").
type ServerInfo struct {
	Name                string
	Description         string
	Image               string
	MaxConnections      int
	ReindexIntervalMins int
	PersistentChannels  []string
	AutoJoinChannels    []string
}

// Server owns every long-lived subsystem and the TCP accept loops.
type Server struct {
	cfg   *config.Config
	store *store.Store
	gate  *access.Gate

	sessions   *session.Registry
	channels   *chat.Registry
	transfers  *transfer.Registry
	voiceReg   *voice.Registry
	voiceRelay *voice.Relay

	fileIndex *fileindex.Index

	infoMu sync.RWMutex
	info   ServerInfo

	tlsConfig *tls.Config

	closersMu sync.Mutex
	closers   []io.Closer

	log *logrus.Entry
}

// trackCloser remembers a listener so Shutdown can close it on demand.
func (s *Server) trackCloser(c io.Closer) {
	s.closersMu.Lock()
	s.closers = append(s.closers, c)
	s.closersMu.Unlock()
}

// Shutdown closes every listener the server has opened (BBS, transfer,
// voice), causing their accept loops to return. It does not wait for
// in-flight sessions to finish; callers that want a grace period should
// race this against their own timeout.
func (s *Server) Shutdown() {
	s.closersMu.Lock()
	defer s.closersMu.Unlock()
	for _, c := range s.closers {
		_ = c.Close()
	}
}

// New constructs a Server from its dependencies. Call Bootstrap before Serve to
// load persisted bans/trusts/settings.
func New(cfg *config.Config, st *store.Store, gate *access.Gate, idx *fileindex.Index, tlsConfig *tls.Config) *Server {
	return &Server{
		cfg:       cfg,
		store:     st,
		gate:      gate,
		sessions:  session.NewRegistry(),
		channels:  chat.NewRegistry(),
		transfers: transfer.NewRegistry(),
		voiceReg:  voice.NewRegistry(),
		fileIndex: idx,
		tlsConfig: tlsConfig,
		log:       logging.For("server"),
		info:      ServerInfo{Name: "Nexus", MaxConnections: 0},
	}
}

// Bootstrap loads persisted settings/bans/trusts and seeds runtime state.
func (s *Server) Bootstrap() error {
	trust, err := s.store.ListEntries("trust")
	if err != nil {
		return fmt.Errorf("load trusts: %w", err)
	}
	ban, err := s.store.ListEntries("ban")
	if err != nil {
		return fmt.Errorf("load bans: %w", err)
	}
	s.gate.Seed(trust, ban)
	s.gate.SetOnBan(s.onBan)

	if name, ok, _ := s.store.GetSetting("server_name"); ok {
		s.infoMu.Lock()
		s.info.Name = name
		s.infoMu.Unlock()
	}
	for _, name := range s.persistentChannelNames() {
		ch := s.channels.EnsurePersistent(name)
		if topic, setBy, ok, _ := s.store.GetChannelTopic(name); ok {
			ch.SetTopic(topic, setBy)
		}
	}
	return nil
}

func (s *Server) persistentChannelNames() []string {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return append([]string(nil), s.info.PersistentChannels...)
}

func (s *Server) autoJoinChannelNames() []string {
	s.infoMu.RLock()
	defer s.infoMu.RUnlock()
	return append([]string(nil), s.info.AutoJoinChannels...)
}

// onBan is wired as access.Gate's post-ban termination hook (§4.2).
func (s *Server) onBan(rec model.ListEntry) {
	prefix, err := model.CanonicalizePrefix(rec.IPOrCIDR)
	if err != nil {
		return
	}

	n := 0
	for _, sess := range s.sessions.Snapshot() {
		ip, err := netipAddrFromString(sess.RemoteIP)
		if err != nil || !prefix.Contains(ip) {
			continue
		}
		if s.gate.Lookup(ip) != access.Deny {
			continue // a trust entry still covers this IP
		}
		n++
		s.kickForBan(sess)
	}
	for _, t := range s.transfers.Snapshot() {
		ip, err := netipAddrFromString(t.RemoteIP)
		if err != nil || !prefix.Contains(ip) {
			continue
		}
		if s.gate.Lookup(ip) == access.Deny {
			t.Abort()
		}
	}
	if n > 0 {
		s.log.WithField("cidr", rec.IPOrCIDR).Infof("ban terminated %d sessions", n)
	}
}

// Serve runs the BBS TLS accept loop on addr until the listener errors or
// is closed. The AccessGate check happens before TLS handshake (§4.2).
func (s *Server) Serve(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	defer ln.Close()
	s.trackCloser(ln)

	s.log.WithField("addr", addr).Info("BBS listener started")
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.acceptBBS(conn)
	}
}

func (s *Server) acceptBBS(raw net.Conn) {
	remoteAddr, ok := raw.RemoteAddr().(*net.TCPAddr)
	if !ok {
		raw.Close()
		return
	}
	ip, ok := netipAddrFromIP(remoteAddr.IP)
	if !ok {
		raw.Close()
		return
	}

	decision := s.gate.Lookup(ip)
	metrics.AccessGateDecisions.WithLabelValues(decisionLabel(decision)).Inc()
	if decision == access.Deny {
		// §4.2 / §8 "Pre-TLS silence": zero bytes of application data.
		raw.Close()
		return
	}

	tlsConn := tls.Server(raw, s.tlsConfig)
	if err := tlsConn.SetDeadline(time.Now().Add(preAuthFirstByteTimeout)); err != nil {
		tlsConn.Close()
		return
	}
	if err := tlsConn.Handshake(); err != nil {
		tlsConn.Close()
		return
	}

	id := frame.NewMsgID()
	sess := session.New(id, tlsConn, ip.String())
	s.handleBBSConn(sess)
}

func decisionLabel(d access.Decision) string {
	if d == access.Deny {
		return "deny"
	}
	return "allow"
}

func netipAddrFromIP(ip net.IP) (netip.Addr, bool) {
	a, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}, false
	}
	return model.CanonicalizeIP(a), true
}

func netipAddrFromString(s string) (netip.Addr, error) {
	a, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, err
	}
	return model.CanonicalizeIP(a), nil
}

// MarshalJSON helper shared by all handlers to encode a response payload.
func marshalPayload(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return b
}
