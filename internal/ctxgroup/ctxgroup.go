// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package ctxgroup provides a small context-aware goroutine group: the
// first goroutine to return an error cancels the shared context, and
// Wait blocks until every goroutine has stopped.
package ctxgroup

import (
	"context"
	"sync"
)

// Group runs a set of goroutines sharing one context.
type Group struct {
	ctx    context.Context
	cancel context.CancelFunc

	wg      sync.WaitGroup
	errOnce sync.Once
	err     error
}

// New returns a group bound to a child context of ctx.
func New(ctx context.Context) *Group {
	child, cancel := context.WithCancel(ctx)
	return &Group{ctx: child, cancel: cancel}
}

// Go runs fn in its own goroutine. The first non-nil error cancels the
// group context; later errors are discarded.
func (g *Group) Go(fn func(ctx context.Context) error) {
	g.wg.Add(1)

	go func() {
		defer g.wg.Done()

		if err := fn(g.ctx); err != nil {
			g.errOnce.Do(func() {
				g.err = err
			})
			g.cancel()
		}
	}()
}

// Wait blocks until all goroutines started with Go have returned, then
// returns the first error (if any). The group context is always
// cancelled before Wait returns.
func (g *Group) Wait() error {
	g.wg.Wait()
	g.cancel()

	return g.err
}
