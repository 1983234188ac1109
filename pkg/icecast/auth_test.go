package icecast

import (
	"encoding/base64"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for n := 0; n <= 96; n++ {
		raw := make([]byte, n)
		_, _ = rng.Read(raw)

		got, err := Encode(raw)
		require.NoError(t, err)

		assert.Len(t, got, (n+2)/3*4, "length for %d bytes", n)
		assert.Equal(t, base64.StdEncoding.EncodeToString(raw), got)

		decoded, err := base64.StdEncoding.DecodeString(got)
		require.NoError(t, err)
		assert.Equal(t, raw, decoded)

		body := strings.TrimRight(got, "=")
		assert.LessOrEqual(t, len(got)-len(body), 2)
		for _, r := range body {
			assert.True(t, strings.ContainsRune("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/", r), "unexpected symbol %q", r)
		}
	}
}

func TestEncode(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"f", "Zg=="},
		{"fo", "Zm8="},
		{"foo", "Zm9v"},
		{"foob", "Zm9vYg=="},
		{"source:hackme", "c291cmNlOmhhY2ttZQ=="},
	}

	for _, tc := range tests {
		got, err := Encode([]byte(tc.in))
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "Encode(%q)", tc.in)
	}
}

func TestEncodeHighBits(t *testing.T) {
	raw := []byte{0xFF, 0xFE, 0xFD, 0x00, 0x80}
	got, err := Encode(raw)
	require.NoError(t, err)
	assert.Equal(t, base64.StdEncoding.EncodeToString(raw), got)
}

func TestEncodeNil(t *testing.T) {
	got, err := Encode(nil)
	require.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, got)
}

func TestBasicAuth(t *testing.T) {
	assert.Equal(t, "c291cmNlOmhhY2ttZQ==", BasicAuth("hackme"))
	assert.Equal(t, "c291cmNlOg==", BasicAuth(""))
}
