package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nexusbbs/nexusd/internal/proto"
)

func TestUnmarshalIntoRunsStructValidation(t *testing.T) {
	_, err := unmarshalInto[proto.ChatJoin]([]byte(`{"channel":"a"}`))
	assert.Error(t, err, "channel below MinChannelNameLen should fail struct validation")

	v, err := unmarshalInto[proto.ChatJoin]([]byte(`{"channel":"general"}`))
	require.NoError(t, err)
	assert.Equal(t, "general", v.Channel)
}

func TestUnmarshalIntoAllowsGuestLoginEmptyCredentials(t *testing.T) {
	// §4.3: guest login submits an empty username and password; Login must
	// not carry a `required` tag on either field.
	v, err := unmarshalInto[proto.Login]([]byte(`{"username":"","password":"","nickname":"Guest123"}`))
	require.NoError(t, err)
	assert.Empty(t, v.Username)
	assert.Empty(t, v.Password)
}

func TestUnmarshalIntoRejectsOversizedFields(t *testing.T) {
	longMsg := make([]byte, 1025)
	for i := range longMsg {
		longMsg[i] = 'a'
	}
	payload := []byte(`{"channel":"general","message":"` + string(longMsg) + `"}`)
	_, err := unmarshalInto[proto.ChatSend](payload)
	assert.Error(t, err)
}

func TestUnmarshalIntoPropagatesMalformedJSON(t *testing.T) {
	_, err := unmarshalInto[proto.ChatJoin]([]byte(`not json`))
	assert.Error(t, err)
}
