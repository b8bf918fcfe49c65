package websocket

import "context"

// Conn is the connection surface a coordinator drives. *Client implements it.
type Conn interface {
	Connect(ctx context.Context) error
	SendText(text string) error
	Ping(payload []byte) error
	Close(code CloseCode, reason string) error
	IsConnected() bool

	OnConnected(fn func()) Subscription
	OnConnectionError(fn func(err error)) Subscription
	OnClosed(fn func(ev CloseEvent)) Subscription
	OnMessage(fn func(payload string)) Subscription
	OnBinaryMessage(fn func(payload []byte)) Subscription
	Unsubscribe(subs ...Subscription)
}

// Dialer builds a fresh, unconnected Conn for every connection attempt.
type Dialer func(rawURL string, opt Option) (Conn, error)

// DefaultDialer builds a *Client.
func DefaultDialer(rawURL string, opt Option) (Conn, error) {
	return NewClient(rawURL, opt)
}

var _ Conn = (*Client)(nil)
