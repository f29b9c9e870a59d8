// Package protocol implements the binary frame layer carrying encoded
// envelopes over a byte stream.
//
// A frame is a fixed 9-byte header followed by a variable-length body. The
// receiver reads the header first to learn the body length, then reads
// exactly that many bytes, which gives clean frame boundaries on a TCP or
// unix-socket stream.
//
// Frame format:
//
//	0      3  4  5         9
//	┌──────┬──┬──┬─────────┬───────────────┐
//	│magic │v │k │ bodyLen │    body ...   │
//	│ plk  │01│  │ uint32  │ bodyLen bytes │
//	└──────┴──┴──┴─────────┴───────────────┘
//
// The body is a CBOR-encoded envelope; correlation lives in the envelope's
// msg_id, not in the header.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "plk". Rejects non-protocol connections early, before
// any attempt to parse a body.
const (
	MagicByte0 byte = 'p'
	MagicByte1 byte = 'l'
	MagicByte2 byte = 'k'
	Version    byte = 0x01
	HeaderSize int  = 9 // 3 (magic) + 1 (version) + 1 (kind) + 4 (bodyLen)
)

// MaxBodySize caps a single frame body. Larger frames indicate a corrupt
// stream or a misbehaving peer.
const MaxBodySize = 16 << 20

// FrameKind distinguishes request, reply, event, and heartbeat frames.
type FrameKind byte

const (
	FrameRequest   FrameKind = 0 // caller → worker, expects exactly one reply
	FrameReply     FrameKind = 1 // worker → caller, correlated by msg_id
	FrameEvent     FrameKind = 2 // worker → subscribers, best-effort broadcast
	FrameHeartbeat FrameKind = 3 // keepalive probe, no body
)

// String returns the frame kind name.
func (k FrameKind) String() string {
	switch k {
	case FrameRequest:
		return "REQUEST"
	case FrameReply:
		return "REPLY"
	case FrameEvent:
		return "EVENT"
	case FrameHeartbeat:
		return "HEARTBEAT"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(k))
	}
}

// Encode writes a complete frame (header + body) to w. The caller must make
// sure writes to w are serialized; interleaved frames corrupt the stream.
func Encode(w io.Writer, kind FrameKind, body []byte) error {
	buf := make([]byte, HeaderSize)
	buf[0] = MagicByte0
	buf[1] = MagicByte1
	buf[2] = MagicByte2
	buf[3] = Version
	buf[4] = byte(kind)
	binary.BigEndian.PutUint32(buf[5:9], uint32(len(body)))

	if _, err := w.Write(buf); err != nil {
		return err
	}
	// Body may be empty for heartbeat frames.
	if len(body) > 0 {
		if _, err := w.Write(body); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a complete frame from r. It validates the magic number,
// version, frame kind, and body length, and uses io.ReadFull so partial
// reads never split a frame.
func Decode(r io.Reader) (FrameKind, []byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, nil, err
	}

	if header[0] != MagicByte0 || header[1] != MagicByte1 || header[2] != MagicByte2 {
		return 0, nil, fmt.Errorf("protocol: invalid magic number: %x", header[0:3])
	}
	if header[3] != Version {
		return 0, nil, fmt.Errorf("protocol: unsupported version: %d", header[3])
	}
	kind := FrameKind(header[4])
	if kind > FrameHeartbeat {
		return 0, nil, fmt.Errorf("protocol: unsupported frame kind: %d", header[4])
	}

	bodyLen := binary.BigEndian.Uint32(header[5:9])
	if bodyLen > MaxBodySize {
		return 0, nil, fmt.Errorf("protocol: frame body too large: %d bytes", bodyLen)
	}
	if bodyLen == 0 {
		return kind, nil, nil
	}

	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return kind, body, nil
}
