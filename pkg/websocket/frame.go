package websocket

import (
	"crypto/rand"
	"encoding/binary"
	"io"
	"unicode/utf8"

	"github.com/ChiR24/Unreal-mcp-sub002/pkg/exception"
	"github.com/yanun0323/errors"
)

const (
	// maxHeaderLen is 2 fixed bytes, 8 extended length bytes and a 4 byte mask key.
	maxHeaderLen     = 14
	maxControlLen    = 125
	maxCloseReasonLn = maxControlLen - 2
)

type frameHeader struct {
	fin     bool
	rsv     byte
	opcode  byte
	masked  bool
	maskKey [4]byte
	length  int
}

func (h frameHeader) isControl() bool {
	return h.opcode&0x8 != 0
}

// validate applies the client-side rules for frames coming from a server.
func (h frameHeader) validate() error {
	if h.rsv != 0 {
		return exception.ErrWebSocketProtocol
	}
	if h.masked {
		return exception.ErrWebSocketMaskedFrame
	}
	switch h.opcode {
	case opContinuation, opText, opBinary:
		return nil
	case opClose, opPing, opPong:
		if !h.fin || h.length > maxControlLen {
			return exception.ErrWebSocketProtocol
		}
		return nil
	default:
		return exception.ErrWebSocketProtocol
	}
}

// readFrameHeader reads the fixed header, the extended length and the mask key.
// Lengths above maxPayload are rejected before any payload is read.
func readFrameHeader(r io.Reader, maxPayload int) (h frameHeader, err error) {
	var header [2]byte
	if _, err = io.ReadFull(r, header[:]); err != nil {
		return
	}
	h.fin = header[0]&0x80 != 0
	h.rsv = header[0] & 0x70
	h.opcode = header[0] & 0x0f
	h.masked = header[1]&0x80 != 0
	h.length = int(header[1] & 0x7f)

	switch h.length {
	case 126:
		var ext [2]byte
		if _, err = io.ReadFull(r, ext[:]); err != nil {
			return
		}
		h.length = int(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err = io.ReadFull(r, ext[:]); err != nil {
			return
		}
		if ext[0]&0x80 != 0 {
			err = exception.ErrWebSocketProtocol
			return
		}
		length64 := binary.BigEndian.Uint64(ext[:])
		if maxPayload > 0 && length64 > uint64(maxPayload) {
			err = exception.ErrWebSocketFrameTooLarge
			return
		}
		h.length = int(length64)
	}
	if maxPayload > 0 && h.length > maxPayload {
		err = exception.ErrWebSocketFrameTooLarge
		return
	}

	if h.masked {
		if _, err = io.ReadFull(r, h.maskKey[:]); err != nil {
			return
		}
	}
	return
}

// appendFrame appends one complete frame with FIN set. A zero mask key is a
// valid key, so masking is always applied for client frames.
func appendFrame(dst []byte, opcode byte, payload []byte, maskKey [4]byte) []byte {
	var header [maxHeaderLen]byte
	header[0] = 0x80 | opcode
	n := buildLengthHeader(header[:], len(payload), true, maskKey)
	dst = append(dst, header[:n]...)
	start := len(dst)
	dst = append(dst, payload...)
	maskBytes(dst[start:], maskKey)
	return dst
}

func buildLengthHeader(dst []byte, payloadLen int, masked bool, maskKey [4]byte) int {
	n := 2
	if payloadLen <= 125 {
		dst[1] = byte(payloadLen)
	} else if payloadLen <= 0xffff {
		dst[1] = 126
		binary.BigEndian.PutUint16(dst[2:4], uint16(payloadLen))
		n += 2
	} else {
		dst[1] = 127
		binary.BigEndian.PutUint64(dst[2:10], uint64(payloadLen))
		n += 8
	}
	if masked {
		dst[1] |= 0x80
		copy(dst[n:n+4], maskKey[:])
		n += 4
	}
	return n
}

// maskBytes XORs b with key in place. Applying it twice restores b.
func maskBytes(b []byte, key [4]byte) {
	for i := range b {
		b[i] ^= key[i&3]
	}
}

func newMaskKey() ([4]byte, error) {
	var key [4]byte
	_, err := rand.Read(key[:])
	return key, err
}

func makeClosePayload(code CloseCode, reason string) []byte {
	if code == 0 || code == CloseNoStatus || code == CloseAbnormal {
		return nil
	}
	reason = truncateReason(reason)
	payload := make([]byte, 2, 2+len(reason))
	binary.BigEndian.PutUint16(payload, uint16(code))
	return append(payload, reason...)
}

func parseClosePayload(payload []byte) (CloseCode, string, error) {
	switch {
	case len(payload) == 0:
		return CloseNoStatus, "", nil
	case len(payload) == 1:
		return 0, "", exception.ErrWebSocketProtocol
	}
	code := CloseCode(binary.BigEndian.Uint16(payload[:2]))
	if code < CloseNormal || code == CloseNoStatus || code == CloseAbnormal {
		return 0, "", exception.ErrWebSocketProtocol
	}
	reason := payload[2:]
	if !utf8.Valid(reason) {
		return 0, "", exception.ErrWebSocketInvalidUTF8
	}
	return code, string(reason), nil
}

// truncateReason keeps the reason inside a control frame without splitting a rune.
func truncateReason(reason string) string {
	if len(reason) <= maxCloseReasonLn {
		return reason
	}
	cut := maxCloseReasonLn
	for cut > 0 && !utf8.RuneStart(reason[cut]) {
		cut--
	}
	return reason[:cut]
}

// fragment accumulates a message split across continuation frames.
type fragment struct {
	active bool
	opcode byte
	buf    []byte
}

func (f *fragment) begin(opcode byte, payload []byte) {
	f.active = true
	f.opcode = opcode
	f.buf = append(f.buf[:0], payload...)
}

func (f *fragment) append(payload []byte) {
	f.buf = append(f.buf, payload...)
}

func (f *fragment) size() int {
	return len(f.buf)
}

// take returns the assembled payload and resets the accumulator.
func (f *fragment) take() (byte, []byte) {
	opcode, payload := f.opcode, f.buf
	f.active = false
	f.opcode = 0
	f.buf = nil
	return opcode, payload
}

func closeCodeFor(err error) CloseCode {
	switch {
	case errors.Is(err, exception.ErrWebSocketFrameTooLarge):
		return CloseTooBig
	case errors.Is(err, exception.ErrWebSocketInvalidUTF8):
		return CloseInvalidPayload
	case errors.Is(err, exception.ErrWebSocketProtocol),
		errors.Is(err, exception.ErrWebSocketMaskedFrame),
		errors.Is(err, exception.ErrWebSocketFragmentation):
		return CloseProtocolError
	default:
		return CloseAbnormal
	}
}
