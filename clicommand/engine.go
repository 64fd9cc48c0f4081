package clicommand

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/buildkite/dagger-pipelines/env"
	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/internal/jobs"
	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/buildkite/dagger-pipelines/tracetools"
	"github.com/urfave/cli"
)

// connectEngine opens the engine session for a command. Tests replace it.
var connectEngine = func(ctx context.Context, opts engine.ConnectOpts) (engine.Engine, error) {
	e, err := engine.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// newTracer sets up tracing for a command. Tests replace it.
var newTracer = tracetools.NewTracer

// runJob sets up tracing, connects to the engine, runs job with a Runner printing to the
// app's writer, and closes the engine whatever happens.
func runJob(ctx context.Context, c *cli.Context, l logger.Logger, cfg EngineConfig, job func(context.Context, *jobs.Runner) error) (err error) {
	tracer, stopTracing, err := newTracer(ctx, tracetools.Config{
		Backend:     cfg.TracingBackend,
		ServiceName: cfg.TracingServiceName,
	})
	if err != nil {
		return err
	}
	defer stopTracing()
	ctx = tracetools.ContextWithTraceParent(ctx, cfg.TracingTraceParent)

	opts := engine.ConnectOpts{
		PublishAttempts: cfg.PublishAttempts,
		Logger:          l,
	}
	if !cfg.Quiet {
		opts.LogOutput = errWriter(c)
	}

	e, err := connectEngine(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := e.Close(); cerr != nil {
			l.Warn("Closing the dagger engine failed: %s", cerr)
			if err == nil {
				err = fmt.Errorf("closing the dagger engine: %w", cerr)
			}
		}
	}()

	r := &jobs.Runner{
		Engine: e,
		Logger: l,
		Stdout: writer(c),
		Env:    env.OS{},
		Tracer: tracer,
	}

	return execExitCode(job(ctx, r))
}

func writer(c *cli.Context) io.Writer {
	if c.App.Writer != nil {
		return c.App.Writer
	}
	return os.Stdout
}

func errWriter(c *cli.Context) io.Writer {
	if c.App.ErrWriter != nil {
		return c.App.ErrWriter
	}
	return os.Stderr
}
