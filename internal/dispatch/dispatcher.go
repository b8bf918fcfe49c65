package dispatch

import (
	"context"
	"sort"
	"sync"

	"github.com/ChiR24/Unreal-mcp-sub002/pkg/exception"
	"github.com/bytedance/sonic"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	TypeRequest  = "automation_request"
	TypeResponse = "automation_response"
	TypePing     = "ping"
	TypePong     = "pong"

	CodeUnknownAction = "UNKNOWN_ACTION"
	CodeActionFailed  = "ACTION_FAILED"
)

// Sender writes a text message to the peer and reports whether it was sent.
type Sender interface {
	SendRawMessage(text string) bool
}

// Request is a decoded automation request.
type Request struct {
	ID     string
	Action string
	Params map[string]any
}

// ActionHandler serves one automation action. The returned value becomes the
// response's result.
type ActionHandler func(ctx context.Context, req Request) (any, error)

// TypeHandler receives raw messages of a non-request type.
type TypeHandler func(ctx context.Context, payload string) error

type envelope struct {
	Type      string         `json:"type"`
	RequestID string         `json:"requestId,omitempty"`
	Action    string         `json:"action,omitempty"`
	Params    map[string]any `json:"params,omitempty"`
}

// Response is the reply written for every automation request.
type Response struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	Result    any    `json:"result,omitempty"`
}

// Dispatcher routes inbound bridge messages by type, and automation requests
// by action.
type Dispatcher struct {
	sender Sender

	mu      sync.RWMutex
	actions map[string]ActionHandler
	types   map[string]TypeHandler
}

func New(sender Sender) *Dispatcher {
	return &Dispatcher{
		sender:  sender,
		actions: make(map[string]ActionHandler),
		types:   make(map[string]TypeHandler),
	}
}

// HandleAction registers fn for action, replacing any previous handler.
func (d *Dispatcher) HandleAction(action string, fn ActionHandler) error {
	if fn == nil {
		return exception.ErrDispatchNilHandler
	}
	if action == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "empty action")
	}
	d.mu.Lock()
	d.actions[action] = fn
	d.mu.Unlock()
	return nil
}

// HandleType registers fn for messages whose type is msgType.
func (d *Dispatcher) HandleType(msgType string, fn TypeHandler) error {
	if fn == nil {
		return exception.ErrDispatchNilHandler
	}
	if msgType == "" || msgType == TypeRequest {
		return errors.Wrap(exception.ErrInvalidArgument, "reserved type "+msgType)
	}
	d.mu.Lock()
	d.types[msgType] = fn
	d.mu.Unlock()
	return nil
}

// Actions lists the registered action names in order.
func (d *Dispatcher) Actions() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.actions))
	for name := range d.actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Dispatch decodes payload and routes it.
func (d *Dispatcher) Dispatch(ctx context.Context, payload string) error {
	var env envelope
	if err := sonic.UnmarshalString(payload, &env); err != nil {
		return errors.Wrap(exception.ErrDispatchBadEnvelope, err.Error())
	}

	switch env.Type {
	case "":
		return errors.Wrap(exception.ErrDispatchBadEnvelope, "missing type")
	case TypeRequest:
		return d.dispatchRequest(ctx, env)
	case TypePing:
		return d.send(map[string]string{"type": TypePong})
	}

	d.mu.RLock()
	fn, ok := d.types[env.Type]
	d.mu.RUnlock()
	if !ok {
		logs.Infof("dispatch: ignore message type %s", env.Type)
		return nil
	}
	return fn(ctx, payload)
}

func (d *Dispatcher) dispatchRequest(ctx context.Context, env envelope) error {
	if env.RequestID == "" {
		return errors.Wrap(exception.ErrDispatchBadEnvelope, "missing requestId")
	}

	d.mu.RLock()
	fn, ok := d.actions[env.Action]
	d.mu.RUnlock()

	resp := Response{
		Type:      TypeResponse,
		RequestID: env.RequestID,
	}
	if !ok {
		resp.Error = CodeUnknownAction
		resp.Message = "unknown action: " + env.Action
		if err := d.send(resp); err != nil {
			return err
		}
		return errors.Wrap(exception.ErrDispatchUnknownAction, env.Action)
	}

	result, err := fn(ctx, Request{
		ID:     env.RequestID,
		Action: env.Action,
		Params: env.Params,
	})
	if err != nil {
		logs.Errorf("dispatch: action %s request %s, err: %+v", env.Action, env.RequestID, err)
		resp.Error = CodeActionFailed
		resp.Message = err.Error()
		return d.send(resp)
	}

	resp.Success = true
	resp.Result = result
	return d.send(resp)
}

func (d *Dispatcher) send(v any) error {
	text, err := sonic.ConfigFastest.MarshalToString(v)
	if err != nil {
		return errors.Wrap(err, "encode reply")
	}
	if d.sender == nil || !d.sender.SendRawMessage(text) {
		return exception.ErrBridgeNotConnected
	}
	return nil
}
