package exception

import "github.com/yanun0323/errors"

// Bridge errors
var (
	ErrBridgeNotConnected = errors.New("bridge: not connected")
	ErrBridgeStopped      = errors.New("bridge: stopped")
	ErrBridgeQueueFull    = errors.New("bridge: pending queue full")
	ErrInvalidArgument    = errors.New("invalid argument")
)
