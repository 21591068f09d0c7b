// Package tcp carries message streams over plain TCP connections: one stream
// per connection, length-prefixed binary frames, encoding negotiation through
// an initial control frame.
package tcp

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/compose-network/msgstream/x/transport"
)

// Frame layout on the wire:
//
//	uint32 length  (flags + encoding + payload)
//	uint8  flags
//	uint8  encoding name length
//	[]byte encoding name
//	[]byte payload
const (
	headerSize = 4

	flagCompressed = 1 << 0
	flagControl    = 1 << 1
)

// controlFrame marks the negotiation advertisement exchanged when a
// connection opens; its payload is a comma-separated list of accepted
// encoding names.
type controlFrame struct {
	Encodings []string
}

// FrameCodec encodes and decodes wire frames with pooled scratch buffers.
type FrameCodec struct {
	maxFrameSize int

	scratchPool sync.Pool
}

// NewFrameCodec creates a codec enforcing the given maximum frame size.
func NewFrameCodec(maxFrameSize int) *FrameCodec {
	return &FrameCodec{
		maxFrameSize: maxFrameSize,
		scratchPool: sync.Pool{
			New: func() any {
				buf := make([]byte, 4096)
				return &buf
			},
		},
	}
}

// WriteFrame writes one data frame.
func (c *FrameCodec) WriteFrame(w io.Writer, frame transport.Frame) error {
	var flags byte
	if frame.Compressed {
		flags |= flagCompressed
	}
	return c.write(w, flags, frame.Encoding, frame.Payload)
}

// WriteControl writes the negotiation advertisement.
func (c *FrameCodec) WriteControl(w io.Writer, ctrl controlFrame) error {
	return c.write(w, flagControl, "", []byte(strings.Join(ctrl.Encodings, ",")))
}

func (c *FrameCodec) write(w io.Writer, flags byte, encoding string, payload []byte) error {
	if len(encoding) > math.MaxUint8 {
		return fmt.Errorf("encoding name %q too long", encoding)
	}

	body := 2 + len(encoding) + len(payload)
	if body > c.maxFrameSize {
		return fmt.Errorf("frame size %d exceeds max %d", body, c.maxFrameSize)
	}

	var header [headerSize + 2]byte
	binary.BigEndian.PutUint32(header[:4], uint32(body))
	header[4] = flags
	header[5] = byte(len(encoding))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(encoding) > 0 {
		if _, err := io.WriteString(w, encoding); err != nil {
			return err
		}
	}
	_, err := w.Write(payload)
	return err
}

// ReadFrame reads one frame, reporting whether it was a control frame. For
// control frames the advertised encodings are returned in ctrl.
func (c *FrameCodec) ReadFrame(r io.Reader) (frame transport.Frame, ctrl controlFrame, isControl bool, err error) {
	var header [headerSize]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return frame, ctrl, false, err
	}

	length := binary.BigEndian.Uint32(header[:])
	if int(length) > c.maxFrameSize {
		return frame, ctrl, false, fmt.Errorf("frame size %d exceeds max %d", length, c.maxFrameSize)
	}
	if length < 2 {
		return frame, ctrl, false, fmt.Errorf("frame too short: %d bytes", length)
	}

	scratchPtr := c.scratchPool.Get().(*[]byte)
	defer c.scratchPool.Put(scratchPtr)

	scratch := *scratchPtr
	var body []byte
	if int(length) <= len(scratch) {
		body = scratch[:length]
	} else {
		body = make([]byte, length)
	}

	if _, err = io.ReadFull(r, body); err != nil {
		return frame, ctrl, false, err
	}

	flags := body[0]
	encLen := int(body[1])
	if 2+encLen > len(body) {
		return frame, ctrl, false, fmt.Errorf("encoding length %d exceeds frame body", encLen)
	}
	encoding := string(body[2 : 2+encLen])

	// Copy the payload out: body may be a pooled buffer.
	payload := make([]byte, len(body)-2-encLen)
	copy(payload, body[2+encLen:])

	if flags&flagControl != 0 {
		if len(payload) > 0 {
			ctrl.Encodings = strings.Split(string(payload), ",")
		}
		return frame, ctrl, true, nil
	}

	frame = transport.Frame{
		Encoding:   encoding,
		Compressed: flags&flagCompressed != 0,
		Payload:    payload,
	}
	return frame, ctrl, false, nil
}
