package wire

import (
	"io"

	"github.com/fxamacker/cbor/v2"

	"duelserver/internal/apperr"
)

// Packet is a parsed, in-memory representation of a single framed message:
// header plus payload bytes.
type Packet struct {
	Header  Header
	Payload []byte
}

// New builds a packet with a freshly computed checksum for payload.
func New(t HeaderType, payload []byte) *Packet {
	if payload == nil {
		payload = []byte{}
	}
	return &Packet{
		Header: Header{
			Type:       t,
			PayloadLen: uint16(len(payload)),
			Checksum:   Checksum(payload),
		},
		Payload: payload,
	}
}

// NewCBOR builds a packet whose payload is the CBOR encoding of v.
func NewCBOR(t HeaderType, v any) (*Packet, error) {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return nil, err
	}
	return New(t, payload), nil
}

// Wrap serializes the packet to its exact wire representation: header bytes
// followed by the payload.
func (p *Packet) Wrap() []byte {
	out := make([]byte, 0, HeaderSize+len(p.Payload))
	out = append(out, p.Header.Encode()...)
	out = append(out, p.Payload...)
	return out
}

// Decode unmarshals the packet's CBOR payload into v.
func (p *Packet) Decode(v any) error {
	return cbor.Unmarshal(p.Payload, v)
}

// Parse reads exactly one packet from buf: a 6-byte header followed by
// header.PayloadLen payload bytes. If fewer payload bytes are available
// than the header declares, the packet is rejected as invalid (a "short
// packet") rather than partially accepted.
func Parse(buf []byte) (*Packet, error) {
	header, err := ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	rest := buf[HeaderSize:]
	if len(rest) < int(header.PayloadLen) {
		return nil, apperr.ErrInvalidPacket
	}
	payload := make([]byte, header.PayloadLen)
	copy(payload, rest[:header.PayloadLen])
	return &Packet{Header: header, Payload: payload}, nil
}

// ReadFrom reads a single packet from r using io.ReadFull for both the
// header and the payload, giving strict framing over a stream transport
// regardless of how the underlying reads are chunked. Used by the session
// read loop, by TemporaryClient during the handshake, by the pre-init
// server, and by tests.
func ReadFrom(r io.Reader) (*Packet, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, err
	}
	header, err := ParseHeader(headerBuf)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, header.PayloadLen)
	if header.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	return &Packet{Header: header, Payload: payload}, nil
}
