package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserKeyCanonicalizesOrder(t *testing.T) {
	assert.Equal(t, UserKey("alice", "bob"), UserKey("bob", "alice"))
}

func TestRegistryGetOrCreate(t *testing.T) {
	r := NewRegistry()
	s1, created1 := r.GetOrCreate(UserKey("a", "b"), false, "")
	require.True(t, created1)
	s2, created2 := r.GetOrCreate(UserKey("b", "a"), false, "")
	require.False(t, created2)
	assert.Same(t, s1, s2)
}

func TestSessionAddRemoveEmpty(t *testing.T) {
	r := NewRegistry()
	s, _ := r.GetOrCreate(ChannelKey("#general"), true, "#general")
	tokA := NewToken()
	tokB := NewToken()
	s.Add("alice", tokA)
	s.Add("bob", tokB)
	assert.False(t, s.Empty())
	assert.ElementsMatch(t, []string{"alice", "bob"}, s.ParticipantNicknames())

	p, ok := s.FindByToken(tokA)
	require.True(t, ok)
	assert.Equal(t, "alice", p.Nickname)

	s.Remove("alice")
	s.Remove("bob")
	assert.True(t, s.Empty())
}

func TestParseAndEncodeRelayPacketRoundTrip(t *testing.T) {
	var tok [16]byte
	copy(tok[:], NewToken()[:])
	raw := make([]byte, 0, 25+4)
	raw = append(raw, tok[:]...)
	raw = append(raw, PacketVoiceData)
	raw = append(raw, 0, 0, 0, 1) // seq
	raw = append(raw, 0, 0, 0, 0) // ts
	raw = append(raw, []byte("abcd")...)

	pkt, err := ParseClientPacket(raw)
	require.NoError(t, err)
	assert.Equal(t, tok, pkt.Token)
	assert.Equal(t, uint32(1), pkt.Seq)
	assert.Equal(t, []byte("abcd"), pkt.Payload)

	out := EncodeRelayPacket("alice", pkt)
	assert.Equal(t, byte(len("alice")), out[0])
	assert.Equal(t, "alice", string(out[1:6]))
}

func TestParseClientPacketTooShort(t *testing.T) {
	_, err := ParseClientPacket([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrPacketTooShort)
}
