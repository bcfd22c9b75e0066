package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	cases := []struct {
		typ     string
		msgid   string
		payload []byte
	}{
		{"Ping", "000000000001", nil},
		{"ChatSend", "0123456789ab", []byte(`{"message":"hi\nthere"}`)},
		{TypeFileData, "deadbeefcafe", []byte{0x00, 0x01, 0x0a, 0xff}},
	}

	for _, c := range cases {
		encoded := Encode(c.typ, c.msgid, c.payload)
		r := NewReader(bytes.NewReader(encoded), 0)
		got, err := r.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, c.typ, got.Type)
		assert.Equal(t, c.msgid, got.MsgID)
		assert.Equal(t, c.payload, got.Payload)
	}
}

func TestReadFrameRejectsCorruptLength(t *testing.T) {
	raw := []byte("NX|4|Ping|000000000001|999999999999999|x\n")
	r := NewReader(bytes.NewReader(raw), 0)
	_, err := r.ReadFrame()
	assert.Error(t, err)
}

func TestReadFrameEnforcesMaxSize(t *testing.T) {
	payload := bytes.Repeat([]byte{'a'}, 100)
	raw := Encode("ChatSend", "000000000001", payload)
	r := NewReader(bytes.NewReader(raw), 10)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrTooLarge)
}

func TestReadFrameNewlineInsidePayloadIsLegal(t *testing.T) {
	payload := []byte("line1\nline2\n")
	raw := Encode("ChatSend", "000000000001", payload)
	r := NewReader(bytes.NewReader(raw), 0)
	got, err := r.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, payload, got.Payload)
}

func TestReadFrameBadMagic(t *testing.T) {
	r := NewReader(bytes.NewReader([]byte("XX|4|Ping|000000000001|0|\n")), 0)
	_, err := r.ReadFrame()
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestNewMsgIDLength(t *testing.T) {
	id := NewMsgID()
	assert.Len(t, id, MsgIDLen)
}
