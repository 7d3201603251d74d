// Package wire implements the fabric's framing and message protocol: every
// message is a 4-byte big-endian length followed by that many bytes of JSON.
// One request yields exactly one response on the same connection.
package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxFrame caps a single frame at 128 MiB.
const DefaultMaxFrame = 128 << 20

var (
	// ErrFrameTooLarge is returned when a length prefix exceeds the cap.
	ErrFrameTooLarge = errors.New("wire: frame exceeds maximum size")
	// ErrTruncated is returned when the connection closed mid-frame.
	ErrTruncated = errors.New("wire: truncated frame")
)

// WriteFrame marshals v as JSON and writes it length-prefixed.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("wire: marshal frame: %w", err)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("wire: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame, enforcing maxSize (0 means
// DefaultMaxFrame). The returned bytes are the raw JSON payload.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	if maxSize == 0 {
		maxSize = DefaultMaxFrame
	}
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrTruncated
		}
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, ErrTruncated
	}
	return payload, nil
}

// PeekType extracts the type tag from a raw frame without decoding the rest.
func PeekType(payload []byte) (string, error) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		return "", fmt.Errorf("wire: undecodable payload: %w", err)
	}
	if env.Type == "" {
		return "", errors.New("wire: message has no type tag")
	}
	return env.Type, nil
}

// Decode unmarshals a raw frame into the typed message T.
func Decode[T any](payload []byte) (T, error) {
	var msg T
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("wire: decode %T: %w", msg, err)
	}
	return msg, nil
}
