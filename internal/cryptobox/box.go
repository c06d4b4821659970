// Package cryptobox is the boundary between the session engine and the
// cryptographic primitives.  The engine only sequences calls on a
// Gateway; it never looks inside keys or ciphertexts.
//
// Box is the bundled Gateway: an ephemeral Curve25519 keypair per
// process with NaCl box (XSalsa20-Poly1305) sealing.  Keys and
// ciphertexts are base64 text so they survive the relay's textual
// protocol and never contain a newline.
package cryptobox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/nacl/box"

	rcerr "relaychat/internal/errors"
)

const (
	keySize   = 32
	nonceSize = 24
)

// Gateway is the crypto collaborator consumed by the session engine.
type Gateway interface {
	// OwnPublicKey returns this client's public key as sent on the wire.
	OwnPublicKey() []byte
	// SetPeerPublicKey registers the peer's key; invalid key material is
	// rejected.
	SetPeerPublicKey(key []byte) error
	// Encrypt seals plaintext for the registered peer.
	Encrypt(plaintext string) ([]byte, error)
	// Decrypt opens a peer payload.  Failures are *errors.DecryptError.
	Decrypt(ciphertext []byte) (string, error)
}

// Box implements Gateway with golang.org/x/crypto/nacl/box.
type Box struct {
	pub  *[keySize]byte
	priv *[keySize]byte
	rand io.Reader

	mu     sync.RWMutex
	peer   *[keySize]byte
	shared *[keySize]byte
}

var _ Gateway = (*Box)(nil)

// New generates a fresh keypair.
func New() (*Box, error) {
	return NewWithRand(rand.Reader)
}

// NewWithRand is New with an explicit entropy source.
func NewWithRand(r io.Reader) (*Box, error) {
	pub, priv, err := box.GenerateKey(r)
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &Box{pub: pub, priv: priv, rand: r}, nil
}

// OwnPublicKey returns the base64 form of the public key.
func (b *Box) OwnPublicKey() []byte {
	return encode(b.pub[:])
}

// SetPeerPublicKey decodes a base64 Curve25519 key and precomputes the
// shared key.  A later call replaces the peer.
func (b *Box) SetPeerPublicKey(key []byte) error {
	raw, err := decode(key)
	if err != nil {
		return fmt.Errorf("peer public key: %w", err)
	}
	if len(raw) != keySize {
		return fmt.Errorf("peer public key: got %d bytes, want %d", len(raw), keySize)
	}

	var peer, shared [keySize]byte
	copy(peer[:], raw)
	box.Precompute(&shared, &peer, b.priv)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.peer, b.shared = &peer, &shared
	return nil
}

// HasPeer reports whether a peer key is registered.
func (b *Box) HasPeer() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.shared != nil
}

// Encrypt seals plaintext under a random nonce and returns
// base64(nonce || box).
func (b *Box) Encrypt(plaintext string) ([]byte, error) {
	b.mu.RLock()
	shared := b.shared
	b.mu.RUnlock()
	if shared == nil {
		return nil, rcerr.ErrNoPeerKey
	}

	var nonce [nonceSize]byte
	if _, err := io.ReadFull(b.rand, nonce[:]); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	sealed := box.SealAfterPrecomputation(nonce[:], []byte(plaintext), &nonce, shared)
	return encode(sealed), nil
}

// Decrypt reverses Encrypt.
func (b *Box) Decrypt(ciphertext []byte) (string, error) {
	b.mu.RLock()
	shared := b.shared
	b.mu.RUnlock()
	if shared == nil {
		return "", &rcerr.DecryptError{Reason: "no peer key", Err: rcerr.ErrNoPeerKey}
	}

	raw, err := decode(ciphertext)
	if err != nil {
		return "", &rcerr.DecryptError{Reason: "malformed payload", Err: err}
	}
	if len(raw) < nonceSize+box.Overhead {
		return "", &rcerr.DecryptError{Reason: fmt.Sprintf("payload too short (%d bytes)", len(raw))}
	}

	var nonce [nonceSize]byte
	copy(nonce[:], raw[:nonceSize])
	pt, ok := box.OpenAfterPrecomputation(nil, raw[nonceSize:], &nonce, shared)
	if !ok {
		return "", &rcerr.DecryptError{Reason: "authentication failed"}
	}
	return string(pt), nil
}

// PeerFingerprint returns the fingerprint of the registered peer key, or
// "" when none is set.
func (b *Box) PeerFingerprint() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.peer == nil {
		return ""
	}
	return fingerprint(b.peer[:])
}

// Fingerprint returns a short fingerprint of the own public key.
func (b *Box) Fingerprint() string { return fingerprint(b.pub[:]) }

// Close wipes secret key material.  The Box is unusable afterwards.
func (b *Box) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	wipe(b.priv[:])
	if b.shared != nil {
		wipe(b.shared[:])
	}
	b.shared, b.peer = nil, nil
	return nil
}

// Fingerprint formats a short SHA-256 fingerprint of a wire-form key.
func Fingerprint(wireKey []byte) (string, error) {
	raw, err := decode(wireKey)
	if err != nil {
		return "", err
	}
	return fingerprint(raw), nil
}

func fingerprint(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:10])
}

func encode(raw []byte) []byte {
	out := make([]byte, base64.StdEncoding.EncodedLen(len(raw)))
	base64.StdEncoding.Encode(out, raw)
	return out
}

func decode(text []byte) ([]byte, error) {
	out := make([]byte, base64.StdEncoding.DecodedLen(len(text)))
	n, err := base64.StdEncoding.Decode(out, text)
	if err != nil {
		return nil, err
	}
	return out[:n], nil
}

func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
