package wire

import (
	"encoding/binary"
	"fmt"
)

// Reader decodes a protobuf-style payload body: varints plus
// length-delimited strings/bytes/submessages, fixed-size raw bytes and
// NUL-terminated strings. It has no little-endian integer reader; callers
// that need one decode the raw bytes with encoding/binary.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps data for sequential decoding. data is not copied; callers
// must not mutate it while the Reader is in use.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

// ReadByte reads a single byte.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= len(r.data) {
		return 0, fmt.Errorf("wire: ReadByte: short buffer (pos=%d, len=%d)", r.pos, len(r.data))
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// ReadUint16 reads a big-endian uint16, the byte order of the outer frame
// header's length field (ReadFrame decodes that header itself); payload
// bodies use varints, see ReadVarint.
func (r *Reader) ReadUint16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, fmt.Errorf("wire: ReadUint16: short buffer (pos=%d, len=%d)", r.pos, len(r.data))
	}
	v := binary.BigEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

// ReadVarint reads a protobuf-style base-128 varint (unsigned, little-endian
// group order, continuation bit = 0x80).
func (r *Reader) ReadVarint() (uint64, error) {
	var result uint64
	var shift uint
	for {
		if shift >= 64 {
			return 0, fmt.Errorf("wire: ReadVarint: overflow")
		}
		b, err := r.ReadByte()
		if err != nil {
			return 0, fmt.Errorf("wire: ReadVarint: %w", err)
		}
		result |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
	}
}

// ReadInt32 reads a varint-encoded int32.
func (r *Reader) ReadInt32() (int32, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return 0, err
	}
	return int32(v), nil
}

// ReadBool reads a varint-encoded boolean (0/1).
func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadVarint()
	if err != nil {
		return false, err
	}
	return v != 0, nil
}

// ReadBytes reads a length-delimited byte string: a varint length followed
// by that many bytes. Returns a copy so the caller may retain it safely.
func (r *Reader) ReadBytes() ([]byte, error) {
	n, err := r.ReadVarint()
	if err != nil {
		return nil, fmt.Errorf("wire: ReadBytes: length: %w", err)
	}
	if r.pos+int(n) > len(r.data) {
		return nil, fmt.Errorf("wire: ReadBytes: short buffer (need=%d, remaining=%d)", n, r.Remaining())
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+int(n)])
	r.pos += int(n)
	return out, nil
}

// ReadFixedBytes reads exactly n raw bytes with no length prefix (used for
// fixed-size fields such as a 20-byte SHA-1 or a 16-byte token).
func (r *Reader) ReadFixedBytes(n int) ([]byte, error) {
	if r.pos+n > len(r.data) {
		return nil, fmt.Errorf("wire: ReadFixedBytes(%d): short buffer (remaining=%d)", n, r.Remaining())
	}
	out := make([]byte, n)
	copy(out, r.data[r.pos:r.pos+n])
	r.pos += n
	return out, nil
}

// ReadString reads a length-delimited UTF-8 string (varint length prefix).
func (r *Reader) ReadString() (string, error) {
	b, err := r.ReadBytes()
	if err != nil {
		return "", fmt.Errorf("wire: ReadString: %w", err)
	}
	return string(b), nil
}

// ReadCString reads a NUL-terminated string (no length prefix). Used by the
// game-node codec's stat-string encoded fields.
func (r *Reader) ReadCString() (string, error) {
	start := r.pos
	for r.pos < len(r.data) && r.data[r.pos] != 0 {
		r.pos++
	}
	if r.pos >= len(r.data) {
		return "", fmt.Errorf("wire: ReadCString: missing NUL terminator")
	}
	s := string(r.data[start:r.pos])
	r.pos++ // consume NUL
	return s, nil
}

// ReadMessage reads a length-delimited submessage and hands its raw bytes to
// decode, matching protobuf nested-message framing.
func (r *Reader) ReadMessage(decode func(*Reader) error) error {
	b, err := r.ReadBytes()
	if err != nil {
		return fmt.Errorf("wire: ReadMessage: %w", err)
	}
	return decode(NewReader(b))
}
