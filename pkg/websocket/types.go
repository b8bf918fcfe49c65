package websocket

import "time"

const (
	opContinuation = 0x0
	opText         = 0x1
	opBinary       = 0x2
	opClose        = 0x8
	opPing         = 0x9
	opPong         = 0xA
)

// CloseCode is a WebSocket close code.
type CloseCode uint16

const (
	CloseNormal         CloseCode = 1000
	CloseGoingAway      CloseCode = 1001
	CloseProtocolError  CloseCode = 1002
	CloseNoStatus       CloseCode = 1005
	CloseAbnormal       CloseCode = 1006
	CloseInvalidPayload CloseCode = 1007
	CloseTooBig         CloseCode = 1009
)

// State is the protocol state of a Client.
//
//	Idle -> Connecting -> Open -> Closing -> Closed
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// CloseEvent describes how a connection ended.
type CloseEvent struct {
	Code   CloseCode
	Reason string
	// WasClean is true only when the peer's close frame was observed before
	// teardown, or the client was closed before it ever connected.
	WasClean bool
}

const (
	DefaultDialTimeout      = 5 * time.Second
	DefaultHandshakeTimeout = 5 * time.Second
	DefaultWriteTimeout     = 5 * time.Second
	DefaultCloseTimeout     = 2 * time.Second
	DefaultKeepAlive        = 30 * time.Second
	DefaultMaxPayloadSize   = 16 << 20
)
