package wire

import (
	"encoding/binary"

	"duelserver/internal/apperr"
)

// Header is the fixed 6-byte frame preceding every packet's payload.
type Header struct {
	Type       HeaderType
	PayloadLen uint16
	Checksum   uint16
}

// ParseHeader reads the 6-byte framing header from the front of buf.
// It fails with ErrInvalidHeader if buf is too short, the sentinel byte is
// wrong, or the type byte is not recognized.
func ParseHeader(buf []byte) (Header, error) {
	if len(buf) < HeaderSize {
		return Header{}, apperr.ErrInvalidHeader
	}
	if buf[5] != Sentinel {
		return Header{}, apperr.ErrInvalidHeader
	}
	t := HeaderType(buf[0])
	if !t.Valid() {
		return Header{}, apperr.ErrInvalidHeader
	}
	return Header{
		Type:       t,
		PayloadLen: binary.BigEndian.Uint16(buf[1:3]),
		Checksum:   binary.BigEndian.Uint16(buf[3:5]),
	}, nil
}

// Encode serializes h into a fresh 6-byte slice.
func (h Header) Encode() []byte {
	out := make([]byte, HeaderSize)
	out[0] = byte(h.Type)
	binary.BigEndian.PutUint16(out[1:3], h.PayloadLen)
	binary.BigEndian.PutUint16(out[3:5], h.Checksum)
	out[5] = Sentinel
	return out
}
