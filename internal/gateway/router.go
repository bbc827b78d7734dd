package gateway

import (
	"context"
	"log/slog"
	"sync"

	"github.com/waigayahq/waigaya/pkg/protocol"
)

// MethodHandler handles a single RPC method invocation.
type MethodHandler func(ctx context.Context, client *Client, req *protocol.RequestFrame)

// MethodRouter dispatches request frames to registered handlers by name.
type MethodRouter struct {
	mu       sync.RWMutex
	handlers map[string]MethodHandler
}

// NewMethodRouter creates an empty router.
func NewMethodRouter() *MethodRouter {
	return &MethodRouter{handlers: make(map[string]MethodHandler)}
}

// Register binds a handler to a method name, replacing any previous one.
func (r *MethodRouter) Register(method string, handler MethodHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = handler
}

// Dispatch invokes the handler for req.Method, answering unknown methods
// with an error response. A panicking handler is converted to an error
// response instead of tearing down the connection.
func (r *MethodRouter) Dispatch(ctx context.Context, client *Client, req *protocol.RequestFrame) {
	r.mu.RLock()
	handler, ok := r.handlers[req.Method]
	r.mu.RUnlock()

	if !ok {
		client.SendResponse(protocol.NewErrorResponse(req.ID, "unknown method: "+req.Method))
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("method handler panicked", "method", req.Method, "panic", rec)
			client.SendResponse(protocol.NewErrorResponse(req.ID, "internal error"))
		}
	}()

	handler(ctx, client, req)
}
