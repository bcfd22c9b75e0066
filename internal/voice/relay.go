package voice

import (
	"encoding/binary"
	"errors"
	"net"
	"net/netip"

	"github.com/nexusbbs/nexusd/internal/access"
	"github.com/nexusbbs/nexusd/internal/model"
)

// ErrPacketTooShort is returned when an inbound UDP datagram is shorter than
// the fixed client->server header (§4.6 packet format).
var ErrPacketTooShort = errors.New("voice: packet too short")

// ClientPacket is a parsed client->server relay packet: token(16) | type(1)
// | seq(4 BE) | ts(4 BE) | payload (§4.6).
type ClientPacket struct {
	Token   [16]byte
	Type    byte
	Seq     uint32
	Ts      uint32
	Payload []byte
}

// ParseClientPacket decodes raw into a ClientPacket.
func ParseClientPacket(raw []byte) (ClientPacket, error) {
	const headerLen = 16 + 1 + 4 + 4
	if len(raw) < headerLen {
		return ClientPacket{}, ErrPacketTooShort
	}
	var p ClientPacket
	copy(p.Token[:], raw[0:16])
	p.Type = raw[16]
	p.Seq = binary.BigEndian.Uint32(raw[17:21])
	p.Ts = binary.BigEndian.Uint32(raw[21:25])
	p.Payload = raw[25:]
	return p, nil
}

// EncodeRelayPacket builds the server->peer packet: sender_len(1) |
// sender_utf8 | type(1) | seq(4) | ts(4) | payload (§4.6).
func EncodeRelayPacket(sender string, p ClientPacket) []byte {
	senderBytes := []byte(sender)
	out := make([]byte, 0, 1+len(senderBytes)+1+4+4+len(p.Payload))
	out = append(out, byte(len(senderBytes)))
	out = append(out, senderBytes...)
	out = append(out, p.Type)
	var seqTs [8]byte
	binary.BigEndian.PutUint32(seqTs[0:4], p.Seq)
	binary.BigEndian.PutUint32(seqTs[4:8], p.Ts)
	out = append(out, seqTs[:]...)
	out = append(out, p.Payload...)
	return out
}

// Relay owns the access-control pipeline for inbound packets (§4.6
// "Access-control order per packet"). Each peer's traffic arrives over its
// own DTLS connection (one handshake per source address), so the relay
// writes back through the participant's last-known Conn rather than a
// single shared socket.
type Relay struct {
	gate     *access.Gate
	sessions *Registry

	// RequireVoiceTalk reports whether the participant holding nickname may
	// send VoiceData (permission checked by the caller, who owns the
	// session registry; the relay stays decoupled from account state).
	RequireVoiceTalk func(nickname string) bool
}

// NewRelay constructs a Relay.
func NewRelay(gate *access.Gate, sessions *Registry) *Relay {
	return &Relay{gate: gate, sessions: sessions}
}

// HandlePacket implements §4.6's four-step access-control order and, on
// success, relays the payload to every other participant of the session.
// peerConn is the DTLS connection the packet arrived on. Returns false if
// the packet was dropped (any of the four checks failed).
func (r *Relay) HandlePacket(raw []byte, peerConn net.Conn) bool {
	if peerConn == nil {
		return false
	}
	udpAddr, ok := peerConn.RemoteAddr().(*net.UDPAddr)
	if !ok {
		return false
	}
	ip, ok := netip.AddrFromSlice(udpAddr.IP)
	if !ok {
		return false
	}
	ip = model.CanonicalizeIP(ip.Unmap())
	// Step 1: IP ban check.
	if r.gate.Lookup(ip) == access.Deny {
		return false
	}

	pkt, err := ParseClientPacket(raw)
	if err != nil {
		return false
	}

	// Step 2+3: an active voice session must exist and own this token.
	sess, ok := r.sessions.SessionForToken(pkt.Token)
	if !ok {
		return false
	}
	participant, ok := sess.FindByToken(pkt.Token)
	if !ok {
		return false
	}

	// Step 4: voice_talk required for VoiceData specifically.
	if pkt.Type == PacketVoiceData && r.RequireVoiceTalk != nil && !r.RequireVoiceTalk(participant.Nickname) {
		return false
	}

	sess.UpdateConn(pkt.Token, peerConn)

	if pkt.Type == PacketKeepalive {
		return true
	}

	r.broadcast(sess, participant.Nickname, pkt)
	return true
}

// broadcast copies payload to every other participant's last-known DTLS
// connection. The server never decodes or mixes the payload (§4.6).
func (r *Relay) broadcast(sess *Session, senderNickname string, pkt ClientPacket) {
	out := EncodeRelayPacket(senderNickname, pkt)
	for _, p := range sess.Participants() {
		if p.Nickname == senderNickname || p.Conn == nil {
			continue
		}
		_, _ = p.Conn.Write(out)
	}
}
