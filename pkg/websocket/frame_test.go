package websocket

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/ChiR24/Unreal-mcp-sub002/pkg/exception"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestAppendFrameLengthEncoding(t *testing.T) {
	key := [4]byte{0x11, 0x22, 0x33, 0x44}
	cases := []struct {
		size      int
		headerLen int
		marker    byte
	}{
		{0, 6, 0},
		{1, 6, 1},
		{125, 6, 125},
		{126, 8, 126},
		{65535, 8, 126},
		{65536, 14, 127},
	}
	for _, tc := range cases {
		payload := bytes.Repeat([]byte{'a'}, tc.size)
		frame := appendFrame(nil, opText, payload, key)

		require.Len(t, frame, tc.headerLen+tc.size, "size %d", tc.size)
		assert.Equal(t, byte(0x81), frame[0], "size %d", tc.size)
		assert.Equal(t, byte(0x80)|tc.marker, frame[1], "size %d", tc.size)
		switch tc.marker {
		case 126:
			assert.Equal(t, uint16(tc.size), binary.BigEndian.Uint16(frame[2:4]))
		case 127:
			assert.Equal(t, uint64(tc.size), binary.BigEndian.Uint64(frame[2:10]))
		}
		assert.Equal(t, key[:], frame[tc.headerLen-4:tc.headerLen])

		h, err := readFrameHeader(bytes.NewReader(frame), 0)
		require.NoError(t, err)
		assert.True(t, h.fin)
		assert.True(t, h.masked)
		assert.Equal(t, byte(opText), h.opcode)
		assert.Equal(t, tc.size, h.length)
		assert.Equal(t, key, h.maskKey)

		body := make([]byte, len(frame)-tc.headerLen)
		copy(body, frame[tc.headerLen:])
		maskBytes(body, h.maskKey)
		assert.Equal(t, payload, body)
	}
}

func TestAppendFrameLeavesPayloadUntouched(t *testing.T) {
	payload := []byte("hello")
	frame := appendFrame(nil, opText, payload, [4]byte{1, 2, 3, 4})
	assert.Equal(t, "hello", string(payload))
	assert.NotEqual(t, payload, frame[6:])
}

func TestMaskBytesRoundTrip(t *testing.T) {
	key, err := newMaskKey()
	require.NoError(t, err)
	data := []byte("The quick brown fox jumps over the lazy dog")
	orig := append([]byte(nil), data...)
	maskBytes(data, key)
	maskBytes(data, key)
	assert.Equal(t, orig, data)
}

func TestReadFrameHeaderRejects(t *testing.T) {
	// 64-bit length with the most significant bit set.
	bad := []byte{0x82, 127, 0x80, 0, 0, 0, 0, 0, 0, 1}
	_, err := readFrameHeader(bytes.NewReader(bad), 0)
	assert.True(t, errors.Is(err, exception.ErrWebSocketProtocol))

	big := []byte{0x82, 126, 0x10, 0x00}
	_, err = readFrameHeader(bytes.NewReader(big), 1024)
	assert.True(t, errors.Is(err, exception.ErrWebSocketFrameTooLarge))
}

func TestFrameHeaderValidate(t *testing.T) {
	cases := []struct {
		name string
		h    frameHeader
		want error
	}{
		{"text", frameHeader{fin: true, opcode: opText}, nil},
		{"continuation", frameHeader{opcode: opContinuation}, nil},
		{"rsv", frameHeader{fin: true, rsv: 0x40, opcode: opText}, exception.ErrWebSocketProtocol},
		{"masked", frameHeader{fin: true, masked: true, opcode: opText}, exception.ErrWebSocketMaskedFrame},
		{"fragmented ping", frameHeader{opcode: opPing}, exception.ErrWebSocketProtocol},
		{"long close", frameHeader{fin: true, opcode: opClose, length: 126}, exception.ErrWebSocketProtocol},
		{"reserved opcode", frameHeader{fin: true, opcode: 0x3}, exception.ErrWebSocketProtocol},
	}
	for _, tc := range cases {
		err := tc.h.validate()
		if tc.want == nil {
			assert.NoError(t, err, tc.name)
			continue
		}
		assert.True(t, errors.Is(err, tc.want), tc.name)
	}
}

func TestClosePayload(t *testing.T) {
	payload := makeClosePayload(CloseNormal, "done")
	assert.Equal(t, []byte{0x03, 0xe8, 'd', 'o', 'n', 'e'}, payload)

	code, reason, err := parseClosePayload(payload)
	require.NoError(t, err)
	assert.Equal(t, CloseNormal, code)
	assert.Equal(t, "done", reason)

	assert.Nil(t, makeClosePayload(CloseNoStatus, "ignored"))
	assert.Nil(t, makeClosePayload(CloseAbnormal, "ignored"))

	code, _, err = parseClosePayload(nil)
	require.NoError(t, err)
	assert.Equal(t, CloseNoStatus, code)

	_, _, err = parseClosePayload([]byte{0x03})
	assert.True(t, errors.Is(err, exception.ErrWebSocketProtocol))

	_, _, err = parseClosePayload([]byte{0x03, 0xee})
	assert.True(t, errors.Is(err, exception.ErrWebSocketProtocol))

	_, _, err = parseClosePayload([]byte{0x03, 0xe8, 0xff, 0xfe})
	assert.True(t, errors.Is(err, exception.ErrWebSocketInvalidUTF8))
}

func TestTruncateReasonKeepsRunes(t *testing.T) {
	reason := strings.Repeat("é", 100)
	out := truncateReason(reason)
	assert.LessOrEqual(t, len(out), maxCloseReasonLn)
	assert.True(t, strings.HasPrefix(reason, out))
	assert.Equal(t, 0, len(out)%2)

	payload := makeClosePayload(CloseNormal, reason)
	assert.LessOrEqual(t, len(payload), maxControlLen)
}

func TestFragmentAccumulates(t *testing.T) {
	var f fragment
	f.begin(opText, []byte("ab"))
	f.append([]byte("cd"))
	assert.Equal(t, 4, f.size())
	op, data := f.take()
	assert.Equal(t, byte(opText), op)
	assert.Equal(t, "abcd", string(data))
	assert.False(t, f.active)
}

func TestCloseCodeFor(t *testing.T) {
	assert.Equal(t, CloseProtocolError, closeCodeFor(exception.ErrWebSocketProtocol))
	assert.Equal(t, CloseProtocolError, closeCodeFor(exception.ErrWebSocketMaskedFrame))
	assert.Equal(t, CloseProtocolError, closeCodeFor(exception.ErrWebSocketFragmentation))
	assert.Equal(t, CloseTooBig, closeCodeFor(exception.ErrWebSocketFrameTooLarge))
	assert.Equal(t, CloseInvalidPayload, closeCodeFor(exception.ErrWebSocketInvalidUTF8))
	assert.Equal(t, CloseAbnormal, closeCodeFor(assert.AnError))
	assert.Equal(t, CloseAbnormal, closeCodeFor(nil))
}

func TestCloseCodeForWrapped(t *testing.T) {
	assert.Equal(t, CloseTooBig, closeCodeFor(errors.Wrap(exception.ErrWebSocketFrameTooLarge, "read frame")))
	assert.Equal(t, CloseInvalidPayload, closeCodeFor(errors.Wrap(exception.ErrWebSocketInvalidUTF8, "text message")))
	assert.Equal(t, CloseProtocolError, closeCodeFor(errors.Wrap(exception.ErrWebSocketFragmentation, "continuation")))
	assert.Equal(t, CloseProtocolError, closeCodeFor(errors.Wrapf(errors.Wrap(exception.ErrWebSocketProtocol, "header"), "frame %d", 2)))
	assert.Equal(t, CloseAbnormal, closeCodeFor(errors.Wrap(assert.AnError, "read")))
}
