package sessions

import (
	"context"

	"github.com/glspkit/glsp-server-go/glsp"
)

// Client is the capability a transport-level client proxy exposes: accept one
// protocol message for delivery. A Client represents a single physical
// connection (e.g. one editor window); several may back the same logical
// session.
//
// Clients are compared by identity when disconnecting, never by value, so
// implementations must be comparable; a pointer receiver satisfies this.
// Errors returned from Process are the proxy's own and are propagated to the
// routing caller untouched.
type Client interface {
	Process(ctx context.Context, msg *glsp.ActionMessage) error
}

// ClientFunc adapts an ordinary function to the Client interface. Func
// values themselves are not comparable, so the adapter is a pointer: each
// NewClientFunc call yields a distinct registration identity, even for the
// same underlying function.
type ClientFunc struct {
	fn func(ctx context.Context, msg *glsp.ActionMessage) error
}

// NewClientFunc wraps fn as a Client.
func NewClientFunc(fn func(ctx context.Context, msg *glsp.ActionMessage) error) *ClientFunc {
	return &ClientFunc{fn: fn}
}

// Process calls the wrapped function.
func (c *ClientFunc) Process(ctx context.Context, msg *glsp.ActionMessage) error {
	return c.fn(ctx, msg)
}

var _ Client = (*ClientFunc)(nil)
