package websocket

import (
	"testing"

	"github.com/ChiR24/Unreal-mcp-sub002/pkg/exception"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yanun0323/errors"
)

func TestParseURL(t *testing.T) {
	cases := []struct {
		raw    string
		want   Endpoint
		host   string
		secure bool
	}{
		{
			raw:  "ws://127.0.0.1:8091",
			want: Endpoint{Scheme: "ws", Host: "127.0.0.1", Port: "8091", Path: "/"},
			host: "127.0.0.1:8091",
		},
		{
			raw:  "ws://example.com/bridge?token=a",
			want: Endpoint{Scheme: "ws", Host: "example.com", Port: "80", Path: "/bridge?token=a"},
			host: "example.com",
		},
		{
			raw:    "WSS://example.com",
			want:   Endpoint{Scheme: "wss", Host: "example.com", Port: "443", Path: "/"},
			host:   "example.com",
			secure: true,
		},
		{
			raw:  "ws://[::1]:9000/x",
			want: Endpoint{Scheme: "ws", Host: "::1", Port: "9000", Path: "/x"},
			host: "[::1]:9000",
		},
	}
	for _, tc := range cases {
		got, err := ParseURL(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
		assert.Equal(t, tc.host, got.HostHeader(), tc.raw)
		assert.Equal(t, tc.secure, got.Secure(), tc.raw)
	}
}

func TestParseURLRejects(t *testing.T) {
	_, err := ParseURL("http://example.com")
	assert.True(t, errors.Is(err, exception.ErrWebSocketUnsupported))

	_, err = ParseURL("ws:///path")
	assert.True(t, errors.Is(err, exception.ErrWebSocketInvalidURL))

	_, err = ParseURL("")
	assert.Error(t, err)
}
