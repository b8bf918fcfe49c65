package exception

import "github.com/yanun0323/errors"

// Config errors
var (
	ErrConfigEndpoint     = errors.New("config: endpoint is empty")
	ErrConfigTickInterval = errors.New("config: tick interval must be > 0")
	ErrConfigPayloadSize  = errors.New("config: max payload size must be > 0")
	ErrConfigMaxPending   = errors.New("config: max pending must be > 0")
)
