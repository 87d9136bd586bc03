// Package protocol implements the wire framing and message codec for the
// half-duplex addressable serial bus: a frame hunter that locates complete,
// CRC-validated frames in an arbitrary byte stream, and typed request/
// response payload encode/decode for every command in the catalog.
package protocol

import "encoding/binary"

// Magic is the two-byte frame header every valid frame begins with.
var Magic = [2]byte{'O', 'M'}

// HeaderSize is the size in bytes of the fixed frame header (magic,
// length, length_inverted, address, command).
const HeaderSize = 8

// WordSize is the size in bytes of one payload word; a frame's length
// field counts payload words, not bytes.
const WordSize = 4

// ChecksumSize is the size in bytes of the trailing CRC-16 checksum.
const ChecksumSize = 2

// MaxPayloadBytes is the largest payload a single-byte word count can
// address (255 words of 4 bytes each).
const MaxPayloadBytes = 255 * WordSize

// Header is the fixed portion of a frame, decoded from the wire.
type Header struct {
	Length  uint8 // payload length in 4-byte words
	Address uint16
	Command uint16
}

// Frame is one fully decoded, CRC-verified message: its header plus the
// raw payload bytes (Length*WordSize of them).
type Frame struct {
	Header  Header
	Payload []byte
}

// frameLen returns the total on-wire byte length of a frame whose header
// declares payloadWords words of payload.
func frameLen(payloadWords uint8) int {
	return HeaderSize + int(payloadWords)*WordSize + ChecksumSize
}

// Encode serialises a frame (header fields plus payload) into a complete,
// checksummed wire frame. len(payload) must be a multiple of WordSize and
// at most MaxPayloadBytes; Encode panics otherwise, since this is always a
// programming error on the encode side (the caller controls the payload).
func Encode(address, command uint16, payload []byte) []byte {
	if len(payload)%WordSize != 0 {
		panic("protocol: payload length is not a multiple of WordSize")
	}
	if len(payload) > MaxPayloadBytes {
		panic("protocol: payload exceeds MaxPayloadBytes")
	}
	words := uint8(len(payload) / WordSize)

	buf := make([]byte, frameLen(words))
	buf[0] = Magic[0]
	buf[1] = Magic[1]
	buf[2] = words
	buf[3] = ^words
	binary.LittleEndian.PutUint16(buf[4:6], address)
	binary.LittleEndian.PutUint16(buf[6:8], command)
	copy(buf[HeaderSize:], payload)

	crc := CRCKermit(buf[:HeaderSize+len(payload)])
	binary.LittleEndian.PutUint16(buf[HeaderSize+len(payload):], crc)
	return buf
}

// Next hunts for the next complete, CRC-valid frame at the start of buf.
// It returns the decoded frame (if any), the number of leading bytes of
// buf that have been consumed and may be dropped by the caller, and
// whether a frame was found.
//
// Semantics, matching pico_iox16_protocol::next_message exactly:
//   - Bytes that don't match the magic+length/~length header shape are
//     skipped one at a time while hunting for the next candidate header.
//   - A candidate header whose claimed frame length exceeds what's
//     buffered so far is left in place and Next reports processed=0 (wait
//     for more bytes; do not discard what might still become valid).
//   - A candidate header with a complete but CRC-mismatched frame is
//     skipped wholesale (its entire claimed length), not byte-at-a-time:
//     a coincidental magic+length match inside a CRC-valid-looking blob is
//     far less likely than a desynchronized but well-formed frame, so
//     resuming the scan just past it is the better heuristic.
func Next(buf []byte) (frame Frame, processed int, ok bool) {
	pos := 0
	for pos+HeaderSize <= len(buf) {
		if buf[pos] != Magic[0] || buf[pos+1] != Magic[1] {
			pos++
			continue
		}
		length := buf[pos+2]
		if buf[pos+3] != ^length {
			pos++
			continue
		}

		total := frameLen(length)
		if pos+total > len(buf) {
			// A plausible header, but the frame isn't fully buffered
			// yet. Report processed=0 and leave the whole buffer
			// intact, per spec: the caller keeps appending bytes and
			// re-scans from the start next time.
			return Frame{}, 0, false
		}

		candidate := buf[pos : pos+total]
		payload := candidate[HeaderSize : HeaderSize+int(length)*WordSize]
		wantCRC := binary.LittleEndian.Uint16(candidate[HeaderSize+int(length)*WordSize:])
		gotCRC := CRCKermit(candidate[:HeaderSize+int(length)*WordSize])

		if gotCRC != wantCRC {
			pos += total
			continue
		}

		h := Header{
			Length:  length,
			Address: binary.LittleEndian.Uint16(candidate[4:6]),
			Command: binary.LittleEndian.Uint16(candidate[6:8]),
		}
		out := make([]byte, len(payload))
		copy(out, payload)
		return Frame{Header: h, Payload: out}, pos + total, true
	}
	return Frame{}, pos, false
}
