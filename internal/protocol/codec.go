package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"adpazar/internal/apperr"
)

// Frames are a 4-byte big-endian unsigned length prefix followed by exactly
// that many bytes of UTF-8 JSON.

const (
	headerSize = 4

	// MaxFrameSize bounds a single frame; large enough for an ad image
	// payload, small enough that a corrupt prefix cannot balloon the buffer.
	MaxFrameSize = 4 << 20
)

// ErrFrameTooLarge is unrecoverable: the stream cannot be resynchronized, so
// the connection must be closed.
var ErrFrameTooLarge = fmt.Errorf("frame exceeds %d bytes", MaxFrameSize)

// EncodeFrame serializes an envelope into one length-prefixed frame.
func EncodeFrame(env *Envelope) ([]byte, error) {
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	if len(body) > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	frame := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint32(frame[:headerSize], uint32(len(body)))
	copy(frame[headerSize:], body)
	return frame, nil
}

// Decoder turns a byte stream into envelopes. It is resumable: partial
// frames are buffered across Feed calls, and every complete frame already
// buffered is yielded by successive Next calls before more bytes are needed.
type Decoder struct {
	buf bytes.Buffer
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends raw bytes read from the stream.
func (d *Decoder) Feed(p []byte) {
	d.buf.Write(p)
}

// Next yields the next complete envelope. It returns (nil, nil) when more
// bytes are needed. A malformed frame body yields an *apperr.Error with kind
// invalid_json or invalid_payload; the frame is consumed, so the stream stays
// in sync and the caller can answer with a protocol Error envelope instead of
// dropping the connection. ErrFrameTooLarge is the only unrecoverable error.
func (d *Decoder) Next() (*Envelope, error) {
	data := d.buf.Bytes()
	if len(data) < headerSize {
		return nil, nil
	}
	size := binary.BigEndian.Uint32(data[:headerSize])
	if size > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}
	if len(data) < headerSize+int(size) {
		return nil, nil
	}
	body := make([]byte, size)
	copy(body, data[headerSize:headerSize+int(size)])
	d.buf.Next(headerSize + int(size))

	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, apperr.Wrap(apperr.KindInvalidJSON, "frame body is not valid JSON", err)
	}
	if env.Command == "" {
		return nil, apperr.New(apperr.KindInvalidPayload, "envelope is missing the command field")
	}
	env.Command = env.Command.Canonical()
	return &env, nil
}

// Buffered reports how many undecoded bytes the decoder currently holds.
func (d *Decoder) Buffered() int {
	return d.buf.Len()
}
