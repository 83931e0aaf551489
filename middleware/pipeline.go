package middleware

import "github.com/cdoenges/misclib/server/peer"

// Context is one pass of received bytes through a Pipeline. Middlewares
// fill Response; whatever is left there is written back to the peer.
type Context struct {
	Data     []byte
	Response []byte
	Fd       int32
	Metadata map[string]any
	Peer     peer.Endpoint
}

type NextFunc func(*Context) error
type MiddlewareFunc func(*Context, NextFunc) error

type Pipeline struct {
	middlewares []MiddlewareFunc
}

func NewPipeline() *Pipeline {
	return &Pipeline{
		middlewares: make([]MiddlewareFunc, 0),
	}
}

func (p *Pipeline) Use(middleware MiddlewareFunc) *Pipeline {
	p.middlewares = append(p.middlewares, middleware)
	return p
}

// Len is the number of registered middlewares.
func (p *Pipeline) Len() int {
	if p == nil {
		return 0
	}
	return len(p.middlewares)
}

// Execute runs the chain. A nil Pipeline does nothing.
func (p *Pipeline) Execute(ctx *Context) error {
	if p == nil {
		return nil
	}
	return p.executeMiddleware(0, ctx)
}

func (p *Pipeline) executeMiddleware(index int, ctx *Context) error {
	if index >= len(p.middlewares) {
		return nil
	}

	next := func(ctx *Context) error {
		return p.executeMiddleware(index+1, ctx)
	}

	return p.middlewares[index](ctx, next)
}

func NewContext(data []byte, p peer.Endpoint) *Context {
	return &Context{
		Data:     data,
		Fd:       p.Fd(),
		Peer:     p,
		Metadata: make(map[string]any),
	}
}
