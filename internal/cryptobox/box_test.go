package cryptobox

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	rcerr "relaychat/internal/errors"
)

func pair(t *testing.T) (*Box, *Box) {
	t.Helper()
	alice, err := New()
	require.NoError(t, err)
	bob, err := New()
	require.NoError(t, err)
	require.NoError(t, alice.SetPeerPublicKey(bob.OwnPublicKey()))
	require.NoError(t, bob.SetPeerPublicKey(alice.OwnPublicKey()))
	return alice, bob
}

func TestBox_RoundTrip(t *testing.T) {
	alice, bob := pair(t)

	ct, err := alice.Encrypt("hi bob")
	require.NoError(t, err)
	require.NotContains(t, string(ct), "hi bob")
	require.False(t, bytes.ContainsAny(ct, "\n:"), "ciphertext must be plain base64")

	pt, err := bob.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, "hi bob", pt)

	back, err := bob.Encrypt("hi alice")
	require.NoError(t, err)
	pt, err = alice.Decrypt(back)
	require.NoError(t, err)
	require.Equal(t, "hi alice", pt)
}

func TestBox_FreshNoncePerMessage(t *testing.T) {
	alice, _ := pair(t)
	a, err := alice.Encrypt("same")
	require.NoError(t, err)
	b, err := alice.Encrypt("same")
	require.NoError(t, err)
	require.NotEqual(t, a, b)
}

func TestBox_EncryptWithoutPeer(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	_, err = b.Encrypt("x")
	require.ErrorIs(t, err, rcerr.ErrNoPeerKey)
	require.False(t, b.HasPeer())
}

func TestBox_DecryptFailures(t *testing.T) {
	alice, bob := pair(t)
	eve, err := New()
	require.NoError(t, err)
	require.NoError(t, eve.SetPeerPublicKey(alice.OwnPublicKey()))

	fromEve, err := eve.Encrypt("not for you")
	require.NoError(t, err)

	good, err := alice.Encrypt("ok")
	require.NoError(t, err)
	raw, _ := base64.StdEncoding.DecodeString(string(good))
	raw[len(raw)-1] ^= 0xFF
	tampered := []byte(base64.StdEncoding.EncodeToString(raw))

	tests := []struct {
		name  string
		input []byte
	}{
		{"not base64", []byte("!!!not-base64!!!")},
		{"too short", []byte(base64.StdEncoding.EncodeToString([]byte("short")))},
		{"tampered", tampered},
		{"wrong sender", fromEve},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bob.Decrypt(tt.input)
			var de *rcerr.DecryptError
			require.True(t, errors.As(err, &de), "got %v", err)
		})
	}
}

func TestBox_SetPeerPublicKey_Invalid(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	require.Error(t, b.SetPeerPublicKey([]byte("xyz789")))
	require.Error(t, b.SetPeerPublicKey([]byte(base64.StdEncoding.EncodeToString([]byte("too short")))))
	require.Error(t, b.SetPeerPublicKey(nil))
	require.False(t, b.HasPeer())
}

func TestBox_Fingerprints(t *testing.T) {
	alice, bob := pair(t)

	require.Len(t, alice.Fingerprint(), 20)
	require.Equal(t, bob.Fingerprint(), alice.PeerFingerprint())

	fp, err := Fingerprint(bob.OwnPublicKey())
	require.NoError(t, err)
	require.Equal(t, bob.Fingerprint(), fp)

	fresh, err := New()
	require.NoError(t, err)
	require.Empty(t, fresh.PeerFingerprint())
}

func TestBox_Close(t *testing.T) {
	alice, _ := pair(t)
	require.NoError(t, alice.Close())
	require.False(t, alice.HasPeer())
	_, err := alice.Encrypt("x")
	require.ErrorIs(t, err, rcerr.ErrNoPeerKey)
}
