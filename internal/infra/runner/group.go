package runner

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Group runs independent workers sharing one cancellation context. The first
// worker error cancels the others.
type Group struct {
	eg  *errgroup.Group
	ctx context.Context
}

func New(ctx context.Context) *Group {
	eg, gctx := errgroup.WithContext(ctx)
	return &Group{eg: eg, ctx: gctx}
}

// Context is cancelled when the parent is, or when any worker fails.
func (g *Group) Context() context.Context { return g.ctx }

func (g *Group) Go(fn func(ctx context.Context) error) {
	g.eg.Go(func() error { return fn(g.ctx) })
}

// Done returns a channel receiving Wait's result once every worker returned.
func (g *Group) Done() <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- g.eg.Wait()
		close(done)
	}()
	return done
}

func (g *Group) Wait() error { return g.eg.Wait() }
