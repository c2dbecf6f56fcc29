// Package taskgroup runs long-lived tasks that share one lifetime: the first
// failing task, or the parent context, terminates all of them.
package taskgroup

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrTerminated is returned by Go once the group is terminated.
var ErrTerminated = errors.New("taskgroup: terminated")

// Opt configures Group.
type Opt func(*Group)

// WithContext sets the parent context of the group.
func WithContext(ctx context.Context) Opt {
	return func(g *Group) {
		g.parent = ctx
	}
}

// Group is a set of tasks. Unlike errgroup, Wait blocks until the group is
// terminated, not merely until the current tasks return, and can be called
// concurrently from many goroutines.
type Group struct {
	parent context.Context

	mu  sync.Mutex
	eg  *errgroup.Group
	ctx context.Context

	once sync.Once
	err  error
}

func New(opts ...Opt) *Group {
	g := &Group{parent: context.Background()}
	for _, opt := range opts {
		opt(g)
	}
	g.eg, g.ctx = errgroup.WithContext(g.parent)
	return g
}

// Go starts f in the group. f must return once its context is done.
func (g *Group) Go(f func(ctx context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ctx.Err() != nil {
		return ErrTerminated
	}
	g.eg.Go(func() error {
		return f(g.ctx)
	})
	return nil
}

// Wait blocks until the group is terminated and all tasks returned. It
// returns the first task error, or the parent context error.
func (g *Group) Wait() error {
	<-g.ctx.Done()
	g.once.Do(func() {
		// Go checks the context under the lock, so once it is held no task
		// can be added past this point.
		g.mu.Lock()
		eg := g.eg
		g.mu.Unlock()
		g.err = eg.Wait()
		if g.err == nil {
			g.err = g.parent.Err()
		}
	})
	return g.err
}
