package exception

import "github.com/yanun0323/errors"

// Dispatch errors
var (
	ErrDispatchBadEnvelope   = errors.New("dispatch: invalid envelope")
	ErrDispatchUnknownAction = errors.New("dispatch: unknown action")
	ErrDispatchNilHandler    = errors.New("dispatch: nil handler")
)
