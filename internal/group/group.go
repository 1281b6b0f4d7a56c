// package group runs a set of named long-lived tasks which live and die together.
package group

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// TaskError records which task stopped the group, and how.
type TaskError struct {
	Task  string
	Err   error
	Panic bool
	// Stack is set when the task panicked.
	Stack []byte
}

func (e *TaskError) Error() string {
	if e.Panic {
		return fmt.Sprintf("%s: panic: %s", e.Task, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Task, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

// G manages the lifetime of a set of tasks sharing one context. The first
// task to return cancels the context, which stops the rest; a panicking task
// counts as returning an error.
type G struct {
	ctx    context.Context
	cancel context.CancelFunc
	done   sync.WaitGroup

	initOnce sync.Once

	errOnce sync.Once
	err     error
}

type Option func(*G)

// WithContext uses the provided context as the parent of the group's context.
func WithContext(ctx context.Context) Option {
	return func(g *G) {
		g.ctx = ctx
	}
}

func New(opts ...Option) *G {
	g := new(G)
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *G) init() {
	if g.ctx == nil {
		g.ctx = context.Background()
	}
	g.ctx, g.cancel = context.WithCancel(g.ctx)
}

func (g *G) setErr(err error) {
	g.errOnce.Do(func() { g.err = err })
}

// Go starts fn as the task called name. Tasks are expected to run until their
// context is canceled; one returning nil is still reported as having stopped.
func (g *G) Go(name string, fn func(context.Context) error) {
	g.initOnce.Do(g.init)
	g.done.Add(1)
	go func() {
		defer g.done.Done()
		defer g.cancel()
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				g.setErr(&TaskError{Task: name, Err: err, Panic: true, Stack: debug.Stack()})
			}
		}()
		if err := fn(g.ctx); err != nil {
			g.setErr(&TaskError{Task: name, Err: err})
		} else {
			g.setErr(&TaskError{Task: name, Err: fmt.Errorf("stopped")})
		}
	}()
}

// Wait blocks until every task has returned, and returns the error of the
// task which stopped first. A group that was never given a task returns nil.
func (g *G) Wait() error {
	g.done.Wait()
	g.errOnce.Do(func() {})
	return g.err
}
