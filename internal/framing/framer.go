// Package framing implements the length-prefixed wire framing shared by every
// transport: [u32 big-endian length][length bytes payload].
package framing

import "encoding/binary"

const lenBytes = 4

// Framer accumulates raw bytes and pops whole payloads off the front.
// Append is append-only; PopFrame leaves the buffer untouched when the next
// frame is not yet complete.
type Framer struct {
	buf []byte
}

// Append adds raw bytes to the internal buffer.
func (f *Framer) Append(b []byte) {
	f.buf = append(f.buf, b...)
}

// PopFrame returns the next complete payload, or ok=false if incomplete.
// On ok=false the buffer is unchanged.
func (f *Framer) PopFrame() (payload []byte, ok bool) {
	if len(f.buf) < lenBytes {
		return nil, false
	}
	n := binary.BigEndian.Uint32(f.buf[:lenBytes])
	total := lenBytes + int(n)
	if len(f.buf) < total {
		return nil, false
	}
	payload = make([]byte, n)
	copy(payload, f.buf[lenBytes:total])
	f.buf = f.buf[total:]
	return payload, true
}

// BufferedBytes reports how many bytes are currently buffered.
func (f *Framer) BufferedBytes() int {
	return len(f.buf)
}

// Clear discards any buffered bytes.
func (f *Framer) Clear() {
	f.buf = nil
}

// Encode produces the framed wire form of payload. A zero-length payload is
// a legal frame, encoded as 00 00 00 00.
func Encode(payload []byte) []byte {
	out := make([]byte, lenBytes+len(payload))
	binary.BigEndian.PutUint32(out[:lenBytes], uint32(len(payload)))
	copy(out[lenBytes:], payload)
	return out
}
