// Package enginetest provides a fake engine.Engine for testing jobs without
// a container runtime.
package enginetest

import (
	"context"
	"sync"

	"github.com/buildkite/dagger-pipelines/internal/engine"
)

// Call is one recorded call to the fake engine.
type Call struct {
	Method string
	Spec   engine.Spec
	Arg    string
}

// Engine records calls and answers them with the configured funcs. A nil
// func succeeds with a zero value. It is safe for concurrent use.
type Engine struct {
	SyncFunc        func(ctx context.Context, spec engine.Spec) error
	StdoutFunc      func(ctx context.Context, spec engine.Spec) (string, error)
	EnvVariableFunc func(ctx context.Context, spec engine.Spec, name string) (string, error)
	PublishFunc     func(ctx context.Context, spec engine.Spec, address string) (string, error)
	FileSizeFunc    func(ctx context.Context, file engine.FileSpec) (int64, error)

	mu            sync.Mutex
	calls         []Call
	running       int
	maxConcurrent int
	started       int
	finished      int
	closed        bool
}

var _ engine.Engine = (*Engine)(nil)

func (e *Engine) begin(method string, spec engine.Spec, arg string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.calls = append(e.calls, Call{Method: method, Spec: spec, Arg: arg})
	e.started++
	e.running++
	e.maxConcurrent = max(e.maxConcurrent, e.running)
}

func (e *Engine) end() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.running--
	e.finished++
}

func (e *Engine) Sync(ctx context.Context, c engine.Container) error {
	spec := c.Spec()
	e.begin("Sync", spec, "")
	defer e.end()

	if e.SyncFunc == nil {
		return nil
	}
	return e.SyncFunc(ctx, spec)
}

func (e *Engine) Stdout(ctx context.Context, c engine.Container) (string, error) {
	spec := c.Spec()
	e.begin("Stdout", spec, "")
	defer e.end()

	if e.StdoutFunc == nil {
		return "", nil
	}
	return e.StdoutFunc(ctx, spec)
}

func (e *Engine) EnvVariable(ctx context.Context, c engine.Container, name string) (string, error) {
	spec := c.Spec()
	e.begin("EnvVariable", spec, name)
	defer e.end()

	if e.EnvVariableFunc == nil {
		if v, ok := spec.EnvValue(name); ok {
			return v, nil
		}
		return "", nil
	}
	return e.EnvVariableFunc(ctx, spec, name)
}

func (e *Engine) Publish(ctx context.Context, c engine.Container, address string) (string, error) {
	spec := c.Spec()
	e.begin("Publish", spec, address)
	defer e.end()

	if e.PublishFunc == nil {
		return address, nil
	}
	return e.PublishFunc(ctx, spec, address)
}

func (e *Engine) FileSize(ctx context.Context, f engine.File) (int64, error) {
	spec := engine.FileSpec{Container: f.Container().Spec(), Path: f.Path()}
	e.begin("FileSize", spec.Container, f.Path())
	defer e.end()

	if e.FileSizeFunc == nil {
		return 0, nil
	}
	return e.FileSizeFunc(ctx, spec)
}

func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.closed = true
	return nil
}

// Calls returns a copy of the recorded calls in the order they started.
func (e *Engine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]Call(nil), e.calls...)
}

// Started is the number of calls that have begun.
func (e *Engine) Started() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.started
}

// Finished is the number of calls that have returned.
func (e *Engine) Finished() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.finished
}

// MaxConcurrent is the largest number of calls that were in flight at once.
func (e *Engine) MaxConcurrent() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.maxConcurrent
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.closed
}
