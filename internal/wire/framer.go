package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	"relaychat/util"
)

// Framing selects how frames are cut from the byte stream.
type Framing string

const (
	// FramingRaw treats every read as exactly one frame, which is what the
	// reference relay does.  Coalesced or split TCP segments are not
	// repaired.
	FramingRaw Framing = "raw"
	// FramingLine terminates every frame with '\n'.  Keys and ciphertexts
	// are base64 text, so they never contain the delimiter.
	FramingLine Framing = "line"
)

// MaxLineFrame bounds a single newline-delimited frame.
const MaxLineFrame = 64 * 1024

// ErrFrameTooLarge is returned by the line framer for oversized frames.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Framer reads frames from a stream and renders frames for writing.
type Framer interface {
	// ReadFrame blocks until one frame is available.  An orderly remote
	// close is reported as io.EOF.
	ReadFrame() ([]byte, error)

	// Marshal encodes f with whatever delimiter the framing needs.
	Marshal(f Frame) []byte
}

// ParseFraming validates a framing name from configuration.
func ParseFraming(s string) (Framing, error) {
	switch Framing(s) {
	case FramingRaw, "":
		return FramingRaw, nil
	case FramingLine:
		return FramingLine, nil
	}
	return "", fmt.Errorf("unknown framing %q (want %q or %q)", s, FramingRaw, FramingLine)
}

// NewFramer returns the framer for mode reading from r.
func NewFramer(mode Framing, r io.Reader) Framer {
	if mode == FramingLine {
		return &lineFramer{r: bufio.NewReaderSize(r, MaxLineFrame)}
	}
	return &rawFramer{r: r}
}

// ── raw ──────────────────────────────────────────────────────────────

type rawFramer struct {
	r       io.Reader
	pending error
}

func (f *rawFramer) ReadFrame() ([]byte, error) {
	if f.pending != nil {
		return nil, f.pending
	}
	buf := util.GetBuf()
	defer util.PutBuf(buf)

	n, err := f.r.Read(*buf)
	if n > 0 {
		// Deliver the data now; surface err on the next call.
		f.pending = err
		return append([]byte(nil), (*buf)[:n]...), nil
	}
	if err == nil {
		// A live stream never yields an empty read; treat it as close
		// rather than spinning on it.
		err = io.EOF
	}
	return nil, err
}

func (f *rawFramer) Marshal(fr Frame) []byte { return Encode(fr) }

// ── line ─────────────────────────────────────────────────────────────

type lineFramer struct {
	r *bufio.Reader
}

func (f *lineFramer) ReadFrame() ([]byte, error) {
	for {
		line, err := f.r.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			return nil, ErrFrameTooLarge
		case errors.Is(err, io.EOF) && len(line) > 0:
			return nil, io.ErrUnexpectedEOF
		case err != nil:
			return nil, err
		}
		line = bytes.TrimRight(line, "\r\n")
		if len(line) == 0 {
			continue
		}
		return append([]byte(nil), line...), nil
	}
}

func (f *lineFramer) Marshal(fr Frame) []byte {
	return append(Encode(fr), '\n')
}
