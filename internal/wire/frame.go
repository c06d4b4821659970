// Package wire maps the relay's textual control vocabulary to frames and
// back, and cuts a byte stream into frames.
//
// The relay contract is one frame per read/write call.  Over TCP that is
// not guaranteed, so a newline-delimited framing is offered alongside the
// raw one; both share the same command vocabulary.
package wire

import (
	"bytes"
)

// Literal command forms understood by the relay.
const (
	CmdRequestPublicKey = "REQUEST_PUBLIC_KEY"
	CmdPublicKey        = "PUBLIC_KEY:"
	CmdPeerPublicKey    = "PEER_PUBLIC_KEY"
	CmdDisconnect       = "DISCONNECT"
)

// Kind tags a Frame.
type Kind int

const (
	KindChatPayload Kind = iota
	KindRequestPublicKey
	KindPublicKey
	KindPeerPublicKey
	KindDisconnect
)

func (k Kind) String() string {
	switch k {
	case KindChatPayload:
		return "chat-payload"
	case KindRequestPublicKey:
		return "request-public-key"
	case KindPublicKey:
		return "public-key"
	case KindPeerPublicKey:
		return "peer-public-key"
	case KindDisconnect:
		return "disconnect"
	default:
		return "unknown"
	}
}

// Frame is one decoded protocol unit.  Data carries the key material for
// the key frames and the opaque ciphertext for chat payloads.
type Frame struct {
	Kind Kind
	Data []byte
}

// RequestPublicKey, Disconnect, PublicKey, PeerPublicKey and ChatPayload
// build frames of the matching kind.
func RequestPublicKey() Frame { return Frame{Kind: KindRequestPublicKey} }
func Disconnect() Frame { return Frame{Kind: KindDisconnect} }
func PublicKey(k []byte) Frame { return Frame{Kind: KindPublicKey, Data: k} }
func PeerPublicKey(k []byte) Frame { return Frame{Kind: KindPeerPublicKey, Data: k} }
func ChatPayload(c []byte) Frame { return Frame{Kind: KindChatPayload, Data: c} }

// Decode classifies raw bytes by prefix.  Unknown or unprefixed text is a
// chat payload.  For the key frames Data is everything after the first
// ':'; a key frame without ':' decodes with empty Data.
func Decode(b []byte) Frame {
	switch {
	case bytes.HasPrefix(b, []byte(CmdRequestPublicKey)):
		return RequestPublicKey()
	case bytes.HasPrefix(b, []byte(CmdPeerPublicKey)):
		return PeerPublicKey(afterColon(b))
	case bytes.HasPrefix(b, []byte(CmdPublicKey)):
		return PublicKey(afterColon(b))
	case bytes.HasPrefix(b, []byte(CmdDisconnect)):
		return Disconnect()
	default:
		return ChatPayload(clone(b))
	}
}

// Encode renders f in the exact textual form the relay expects.  Chat
// payloads carry no prefix.
func Encode(f Frame) []byte {
	switch f.Kind {
	case KindRequestPublicKey:
		return []byte(CmdRequestPublicKey)
	case KindPublicKey:
		return append([]byte(CmdPublicKey), f.Data...)
	case KindPeerPublicKey:
		return append([]byte(CmdPeerPublicKey+":"), f.Data...)
	case KindDisconnect:
		return []byte(CmdDisconnect)
	default:
		return clone(f.Data)
	}
}

func afterColon(b []byte) []byte {
	i := bytes.IndexByte(b, ':')
	if i < 0 {
		return nil
	}
	return clone(b[i+1:])
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
