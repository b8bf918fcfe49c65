package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	gorilla "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGorillaEcho(t *testing.T, protocols ...string) string {
	t.Helper()
	upgrader := gorilla.Upgrader{
		Subprotocols: protocols,
		CheckOrigin:  func(*http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			mt, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := conn.WriteMessage(mt, data); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestClientAgainstGorillaServer(t *testing.T) {
	url := newGorillaEcho(t, "mcp-automation")

	c, err := NewClient(url, Option{Protocols: []string{"mcp-automation"}})
	require.NoError(t, err)
	rec := record(c)
	require.NoError(t, c.Connect(context.Background()))
	waitFor(t, rec.connected)
	assert.Equal(t, "mcp-automation", c.Subprotocol())

	require.NoError(t, c.SendText(`{"type":"ping"}`))
	assert.Equal(t, `{"type":"ping"}`, waitFor(t, rec.msgs))

	large := strings.Repeat("x", 70000)
	require.NoError(t, c.SendText(large))
	assert.Equal(t, large, waitFor(t, rec.msgs))

	require.NoError(t, c.SendBinary([]byte{0, 1, 2}))
	assert.Equal(t, []byte{0, 1, 2}, waitFor(t, rec.binary))

	require.NoError(t, c.Close(CloseNormal, "done"))
	ev := waitFor(t, rec.closed)
	assert.Equal(t, CloseEvent{Code: CloseNormal, Reason: "done", WasClean: true}, ev)
	assert.Empty(t, rec.errs)
}

func TestClientGorillaRejectsUpgrade(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient("ws"+strings.TrimPrefix(srv.URL, "http"), Option{})
	require.NoError(t, err)
	rec := record(c)
	assert.Error(t, c.Connect(context.Background()))
	waitFor(t, rec.errs)
	assert.Empty(t, rec.connected)
}
