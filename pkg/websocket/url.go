package websocket

import (
	"net"
	"net/url"
	"strings"

	"github.com/ChiR24/Unreal-mcp-sub002/pkg/exception"
	"github.com/yanun0323/errors"
)

// Endpoint is a parsed ws:// or wss:// target.
type Endpoint struct {
	Scheme string
	Host   string
	Port   string
	// Path is the request URI sent in the handshake, query included.
	Path string
}

// ParseURL splits a ws:// or wss:// url into its handshake parts.
// The port defaults to 80 for ws and 443 for wss.
func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Endpoint{}, errors.Wrap(exception.ErrWebSocketInvalidURL, err.Error())
	}

	scheme := strings.ToLower(u.Scheme)
	var defaultPort string
	switch scheme {
	case "ws":
		defaultPort = "80"
	case "wss":
		defaultPort = "443"
	default:
		return Endpoint{}, errors.Wrap(exception.ErrWebSocketUnsupported, "scheme "+u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Endpoint{}, errors.Wrap(exception.ErrWebSocketInvalidURL, "missing host in "+raw)
	}
	port := u.Port()
	if port == "" {
		port = defaultPort
	}

	path := u.RequestURI()
	if path == "" {
		path = "/"
	}

	return Endpoint{
		Scheme: scheme,
		Host:   host,
		Port:   port,
		Path:   path,
	}, nil
}

// Secure reports whether the endpoint requires TLS.
func (e Endpoint) Secure() bool {
	return e.Scheme == "wss"
}

// Addr returns the host:port to dial.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, e.Port)
}

// HostHeader returns the value of the handshake Host header. The port is
// omitted when it is the scheme default.
func (e Endpoint) HostHeader() string {
	if (e.Scheme == "ws" && e.Port == "80") || (e.Scheme == "wss" && e.Port == "443") {
		if strings.Contains(e.Host, ":") {
			return "[" + e.Host + "]"
		}
		return e.Host
	}
	return e.Addr()
}

func (e Endpoint) String() string {
	return e.Scheme + "://" + e.HostHeader() + e.Path
}
