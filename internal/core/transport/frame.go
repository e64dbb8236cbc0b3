package transport

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"

	"github.com/zeusync/zombiebox/pkg/generic"
)

// MaxFrameSize bounds a single frame on a stream.
const MaxFrameSize = 1 << 20

var frameBuffers = generic.NewPool(func() *bytes.Buffer { return new(bytes.Buffer) }, (*bytes.Buffer).Reset)

// EncodeDatagram prefixes payload with its channel. Used for message-oriented carriers
// such as websocket messages and QUIC datagrams.
func EncodeDatagram(ch Channel, payload []byte) []byte {
	out := make([]byte, 1+len(payload))
	out[0] = byte(ch)
	copy(out[1:], payload)
	return out
}

// DecodeDatagram splits a frame produced by EncodeDatagram.
func DecodeDatagram(data []byte) (Channel, []byte, error) {
	if len(data) == 0 {
		return 0, nil, errors.New("transport: empty datagram")
	}
	ch := Channel(data[0])
	if ch != Reliable && ch != Unreliable {
		return 0, nil, errors.Errorf("transport: unknown channel %d", data[0])
	}
	return ch, data[1:], nil
}

// WriteFrame writes a length-prefixed frame to a byte stream.
func WriteFrame(w io.Writer, ch Channel, payload []byte) error {
	if len(payload)+1 > MaxFrameSize {
		return ErrFrameTooLarge
	}
	buf := frameBuffers.Get()
	defer frameBuffers.Put(buf)

	var hdr [5]byte
	binary.BigEndian.PutUint32(hdr[:4], uint32(1+len(payload)))
	hdr[4] = byte(ch)
	buf.Write(hdr[:])
	buf.Write(payload)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errors.Wrap(err, "write frame")
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(r io.Reader) (Channel, []byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n == 0 || n > MaxFrameSize {
		return 0, nil, ErrFrameTooLarge
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, nil, errors.Wrap(err, "read frame")
	}
	return DecodeDatagram(buf)
}
