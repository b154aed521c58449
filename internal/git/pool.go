// Package git bounds concurrent git CLI invocations. The git monitor polls
// with `git log` / `git diff-tree` subprocesses; a Pool keeps a burst of
// polls (or a future second watcher) from forking an unbounded number of
// git processes against the same working tree.
package git

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool is a weighted-semaphore gate over git subprocess launches. A nil
// Pool runs everything immediately, so callers can leave it unwired in
// tests.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool admitting at most limit concurrent git operations.
// Limits below one are raised to one.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run executes fn inside a pool slot, blocking until one frees up. If ctx
// is cancelled while waiting, fn never runs and ctx.Err() is returned.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
