package exception

import "github.com/yanun0323/errors"

// WS errors
var (
	ErrWebSocketConnectionClose = errors.New("websocket: connection closed")
	ErrWebSocketProtocol        = errors.New("websocket: protocol error")
	ErrWebSocketHandshake       = errors.New("websocket: handshake failed")
	ErrWebSocketBadAccept       = errors.New("websocket: invalid Sec-WebSocket-Accept")
	ErrWebSocketBadSubprotocol  = errors.New("websocket: server selected an unrequested subprotocol")
	ErrWebSocketInvalidURL      = errors.New("websocket: invalid url")
	ErrWebSocketUnsupported     = errors.New("websocket: unsupported url scheme")
	ErrWebSocketNotOpen         = errors.New("websocket: connection is not open")
	ErrWebSocketBusy            = errors.New("websocket: connect already called")
	ErrWebSocketFrameTooLarge   = errors.New("websocket: frame exceeds max payload size")
	ErrWebSocketMaskedFrame     = errors.New("websocket: server frame is masked")
	ErrWebSocketFragmentation   = errors.New("websocket: invalid fragmentation sequence")
	ErrWebSocketInvalidUTF8     = errors.New("websocket: invalid utf-8 in text message")
)
