// Package jobs contains the pipelines dagger-pipelines knows how to run.
//
// Each job describes its containers with the engine package and hands them
// to an engine.Engine. Results meant for the user (test outcomes, pod
// listings, published references) are printed to Runner.Stdout, progress
// goes to Runner.Logger.
package jobs

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/buildkite/dagger-pipelines/env"
	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/buildkite/dagger-pipelines/tracetools"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Runner runs jobs against an engine.
type Runner struct {
	Engine engine.Engine
	Logger logger.Logger

	// Stdout receives job results. Defaults to os.Stdout.
	Stdout io.Writer

	// Env is read for build argument defaults and AWS credentials. Defaults
	// to the process environment.
	Env env.Store

	// Tracer starts a span for every job. Defaults to a tracer that records
	// nothing.
	Tracer trace.Tracer

	mu sync.Mutex
}

// NewRunner returns a Runner that writes results to os.Stdout and reads the
// process environment.
func NewRunner(e engine.Engine, l logger.Logger) *Runner {
	return &Runner{
		Engine: e,
		Logger: l,
		Stdout: os.Stdout,
		Env:    env.OS{},
	}
}

func (r *Runner) logger() logger.Logger {
	if r.Logger == nil {
		return logger.Discard
	}
	return r.Logger
}

func (r *Runner) env() env.Store {
	if r.Env == nil {
		return env.OS{}
	}
	return r.Env
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer == nil {
		return noop.NewTracerProvider().Tracer(tracetools.InstrumentationName)
	}
	return r.Tracer
}

// startSpan starts a span named "jobs.<name>". End it with
// tracetools.FinishWithError.
func (r *Runner) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return r.tracer().Start(ctx, "jobs."+name, trace.WithAttributes(attrs...))
}

// println writes one line of results. Concurrent jobs share the writer, so
// lines are serialised.
func (r *Runner) println(format string, v ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w := r.Stdout
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, format+"\n", v...)
}
