package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListDurationPermanent(t *testing.T) {
	for _, d := range []string{"", "0"} {
		exp, err := parseListDuration(d)
		require.NoError(t, err)
		assert.Nil(t, exp, "duration %q must produce a permanent (nil) expiry", d)
	}
}

func TestParseListDurationUnits(t *testing.T) {
	cases := []struct {
		in  string
		min time.Duration
	}{
		{"30m", 30 * time.Minute},
		{"2h", 2 * time.Hour},
		{"7d", 7 * 24 * time.Hour},
		{"30d", 30 * 24 * time.Hour},
	}
	for _, c := range cases {
		before := time.Now()
		exp, err := parseListDuration(c.in)
		require.NoError(t, err, c.in)
		require.NotNil(t, exp, c.in)
		assert.WithinDuration(t, before.Add(c.min), *exp, 2*time.Second, c.in)
	}
}

func TestParseListDurationRejectsMalformed(t *testing.T) {
	for _, d := range []string{"x", "5", "5w", "-3h", "0h"} {
		_, err := parseListDuration(d)
		assert.Error(t, err, d)
	}
}
