package websocket

import (
	"bufio"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"crypto/tls"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/ChiR24/Unreal-mcp-sub002/pkg/exception"
	"github.com/yanun0323/errors"
)

const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// dial resolves and connects to the endpoint, runs TLS when required and
// performs the opening handshake. Cancelling ctx aborts any step.
func (c *Client) dial(ctx context.Context) (net.Conn, *bufio.Reader, string, error) {
	d := net.Dialer{
		Timeout:   c.opt.DialTimeout,
		KeepAlive: c.opt.KeepAlive,
	}
	rawConn, err := d.DialContext(ctx, "tcp", c.endpoint.Addr())
	if err != nil {
		return nil, nil, "", errors.Wrap(err, "dial "+c.endpoint.Addr())
	}
	if tcpConn, ok := rawConn.(*net.TCPConn); ok {
		_ = tcpConn.SetNoDelay(true)
	}

	conn := rawConn
	if c.endpoint.Secure() {
		tlsConn := tls.Client(rawConn, c.tlsConfig())
		tlsCtx, cancel := context.WithTimeout(ctx, c.opt.HandshakeTimeout)
		err := tlsConn.HandshakeContext(tlsCtx)
		cancel()
		if err != nil {
			_ = rawConn.Close()
			return nil, nil, "", errors.Wrap(err, "tls handshake")
		}
		conn = tlsConn
	}

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})
	if c.opt.HandshakeTimeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(c.opt.HandshakeTimeout))
	}

	reader, subprotocol, err := c.handshake(conn)
	if !stop() {
		err = errors.Wrap(context.Cause(ctx), "handshake aborted")
	}
	if err != nil {
		_ = conn.Close()
		return nil, nil, "", err
	}
	_ = conn.SetDeadline(time.Time{})
	return conn, reader, subprotocol, nil
}

func (c *Client) tlsConfig() *tls.Config {
	if c.opt.TLSConfig != nil {
		cfg := c.opt.TLSConfig.Clone()
		if cfg.ServerName == "" {
			cfg.ServerName = c.endpoint.Host
		}
		return cfg
	}
	return &tls.Config{
		ServerName: c.endpoint.Host,
		MinVersion: tls.VersionTLS12,
	}
}

// handshake writes the upgrade request and validates the 101 response. The
// returned reader may already hold the first frames sent by the server.
func (c *Client) handshake(conn net.Conn) (*bufio.Reader, string, error) {
	req, err := http.NewRequest(http.MethodGet, "http://"+c.endpoint.HostHeader()+c.endpoint.Path, nil)
	if err != nil {
		return nil, "", errors.Wrap(exception.ErrWebSocketInvalidURL, err.Error())
	}
	for name, values := range c.opt.Header {
		for _, v := range values {
			req.Header.Add(name, v)
		}
	}
	req.Host = c.endpoint.HostHeader()
	req.Header.Set("Upgrade", "websocket")
	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Sec-WebSocket-Key", c.key)
	req.Header.Set("Sec-WebSocket-Version", "13")
	if len(c.opt.Protocols) != 0 {
		req.Header.Set("Sec-WebSocket-Protocol", strings.Join(c.opt.Protocols, ", "))
	}

	if err := req.Write(conn); err != nil {
		return nil, "", errors.Wrap(err, "write upgrade request")
	}

	reader := bufio.NewReaderSize(conn, 32<<10)
	resp, err := http.ReadResponse(reader, req)
	if err != nil {
		return nil, "", errors.Wrap(err, "read upgrade response")
	}
	if resp.StatusCode != http.StatusSwitchingProtocols {
		return nil, "", errors.Wrap(exception.ErrWebSocketHandshake, "unexpected status "+resp.Status)
	}
	if !headerContainsToken(resp.Header.Get("Upgrade"), "websocket") {
		return nil, "", errors.Wrap(exception.ErrWebSocketHandshake, "missing Upgrade: websocket")
	}
	if !headerContainsToken(resp.Header.Get("Connection"), "upgrade") {
		return nil, "", errors.Wrap(exception.ErrWebSocketHandshake, "missing Connection: Upgrade")
	}
	if !validateAcceptKey(c.key, resp.Header.Get("Sec-WebSocket-Accept")) {
		return nil, "", exception.ErrWebSocketBadAccept
	}

	subprotocol := strings.TrimSpace(resp.Header.Get("Sec-WebSocket-Protocol"))
	if subprotocol != "" && !containsProtocol(c.opt.Protocols, subprotocol) {
		return nil, "", errors.Wrap(exception.ErrWebSocketBadSubprotocol, subprotocol)
	}
	return reader, subprotocol, nil
}

func newWebSocketKey() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf[:]), nil
}

// computeAcceptKey returns base64(SHA-1(key + GUID)) as defined by RFC 6455 §4.2.2.
func computeAcceptKey(key string) string {
	h := sha1.New()
	_, _ = io.WriteString(h, key)
	_, _ = io.WriteString(h, acceptGUID)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func validateAcceptKey(key, accept string) bool {
	return accept != "" && strings.TrimSpace(accept) == computeAcceptKey(key)
}

func containsProtocol(offered []string, selected string) bool {
	for _, p := range offered {
		if strings.EqualFold(strings.TrimSpace(p), selected) {
			return true
		}
	}
	return false
}

// headerContainsToken
//
// token must be lower case
func headerContainsToken(headerValue, token string) bool {
	if headerValue == "" {
		return false
	}
	start := 0
	for i := 0; i <= len(headerValue); i++ {
		if i == len(headerValue) || headerValue[i] == ',' {
			part := headerValue[start:i]
			if trimLowerEqual(part, token) {
				return true
			}
			start = i + 1
		}
	}
	return false
}

func trimLowerEqual(value string, tokenLower string) bool {
	i := 0
	j := len(value) - 1
	for i <= j && isSpace(value[i]) {
		i++
	}
	for j >= i && isSpace(value[j]) {
		j--
	}
	if j < i {
		return false
	}
	if j-i+1 != len(tokenLower) {
		return false
	}
	for k := 0; k < len(tokenLower); k++ {
		if toLowerByte(value[i+k]) != tokenLower[k] {
			return false
		}
	}
	return true
}

func toLowerByte(b byte) byte {
	if b >= 'A' && b <= 'Z' {
		return b + ('a' - 'A')
	}
	return b
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
