package jobs

import (
	"context"
	"fmt"

	"github.com/buildkite/dagger-pipelines/env"
	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/buildkite/dagger-pipelines/tracetools"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DefaultBuildAddress = "ttl.sh/test_image:1h"

	// HelloBuildArg is always passed to the build. Its value comes from the
	// environment variable of the same name, or DefaultHello.
	HelloBuildArg = "HELLO"
	DefaultHello  = "hey mom!"
)

type BuildConfig struct {
	// Context is the build context. Defaults to the current directory.
	Context engine.HostDirectory

	// Dockerfile is relative to the context. Defaults to "Dockerfile".
	Dockerfile string

	// BuildArgs are extra KEY=VALUE build arguments. A HELLO here replaces
	// the default one.
	BuildArgs []string

	// Address is where the image is published. Defaults to
	// DefaultBuildAddress.
	Address string
}

// BuildArgs returns the build arguments for cfg, with HELLO first.
func (r *Runner) BuildArgs(cfg BuildConfig) ([]engine.BuildArg, error) {
	hello, ok := r.env().Get(HelloBuildArg)
	if !ok {
		hello = DefaultHello
	}

	args := []engine.BuildArg{{Name: HelloBuildArg, Value: hello}}

	for _, pair := range cfg.BuildArgs {
		name, value, ok := env.Split(pair)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid build argument %q, expected KEY=VALUE", pair)
		}

		if name == HelloBuildArg {
			args[0].Value = value
			continue
		}
		args = append(args, engine.BuildArg{Name: name, Value: value})
	}

	return args, nil
}

// Builder returns the container that builds the image.
func Builder(dir engine.HostDirectory, dockerfile string, args []engine.BuildArg) engine.Container {
	return engine.Container{}.
		Pipeline("Builder", "Build the image").
		Build(dir, engine.BuildOpts{
			Dockerfile: dockerfile,
			BuildArgs:  args,
		})
}

// BuildImage builds the Dockerfile in cfg.Context and publishes the result.
// It returns the published reference.
func (r *Runner) BuildImage(ctx context.Context, cfg BuildConfig) (_ string, err error) {
	if cfg.Context.Path == "" {
		cfg.Context.Path = "."
	}
	if cfg.Address == "" {
		cfg.Address = DefaultBuildAddress
	}

	ctx, span := r.startSpan(ctx, "build_image", attribute.String("image.address", cfg.Address))
	defer func() { tracetools.FinishWithError(span, err) }()

	args, err := r.BuildArgs(cfg)
	if err != nil {
		return "", err
	}

	r.logger().WithFields(
		logger.StringField("context", cfg.Context.Path),
		logger.StringField("address", cfg.Address),
	).Info("Building image")

	ref, err := r.Engine.Publish(ctx, Builder(cfg.Context, cfg.Dockerfile, args), cfg.Address)
	if err != nil {
		return "", fmt.Errorf("publishing %s: %w", cfg.Address, err)
	}

	r.println("%s", ref)
	return ref, nil
}
