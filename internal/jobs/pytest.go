package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/buildkite/dagger-pipelines/env"
	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/buildkite/dagger-pipelines/tracetools"
	"github.com/buildkite/interpolate"
	"github.com/buildkite/shellwords"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPythonImage         = "python:3.10.9-slim-buster"
	DefaultPythonImageTemplate = "python:${PYTHON_VERSION}-slim-buster"
	DefaultRequirements        = "requirements.txt"

	DefaultSimpleTestCommand     = "pytest tests/"
	DefaultConcurrentTestCommand = "pytest tests"

	// SourcePath is where the source tree is mounted in test containers.
	SourcePath = "/src"

	pythonVersionVar = "PYTHON_VERSION"
)

// DefaultPythonVersions are the versions the concurrent runner tests against.
var DefaultPythonVersions = []string{"3.7", "3.8", "3.9", "3.10", "3.11"}

var errEmptyTestCommand = errors.New("the test command is empty")

type TestConfig struct {
	// Source is the project mounted at /src. Defaults to the current
	// directory.
	Source engine.HostDirectory

	// Image is the base image of SimpleTest.
	Image string

	// ImageTemplate is the base image of every ConcurrentTests run.
	// ${PYTHON_VERSION} is replaced with the version under test.
	ImageTemplate string

	Versions []string

	// Requirements is the pip requirements file, relative to the source.
	Requirements string

	// TestCommand is split into arguments with shell quoting rules.
	TestCommand string
}

func (c TestConfig) withDefaults(testCommand string) TestConfig {
	if c.Source.Path == "" {
		c.Source.Path = "."
	}
	if c.Image == "" {
		c.Image = DefaultPythonImage
	}
	if c.ImageTemplate == "" {
		c.ImageTemplate = DefaultPythonImageTemplate
	}
	if len(c.Versions) == 0 {
		c.Versions = DefaultPythonVersions
	}
	if c.Requirements == "" {
		c.Requirements = DefaultRequirements
	}
	if c.TestCommand == "" {
		c.TestCommand = testCommand
	}
	return c
}

func (c TestConfig) command() ([]string, error) {
	// The command runs in a Linux container whatever the host is.
	args, err := shellwords.SplitPosix(c.TestCommand)
	if err != nil {
		return nil, fmt.Errorf("parsing test command %q: %w", c.TestCommand, err)
	}
	if len(args) == 0 {
		return nil, errEmptyTestCommand
	}
	return args, nil
}

// PythonTest returns a container that installs the project's requirements
// on image and runs command in the project directory.
func PythonTest(image string, src engine.HostDirectory, requirements string, command []string) engine.Container {
	return engine.Container{}.
		From(image).
		WithMountedDirectory(SourcePath, src).
		WithWorkdir(SourcePath).
		WithExec([]string{"pip", "install", "--upgrade", "pip"}).
		WithExec([]string{"pip", "install", "-r", requirements}).
		WithExec(command)
}

// PythonImage expands an image template for version.
func PythonImage(template, version string) (string, error) {
	vars := env.FromMap(map[string]string{pythonVersionVar: version})

	image, err := interpolate.Interpolate(vars, template)
	if err != nil {
		return "", fmt.Errorf("interpolating image %q: %w", template, err)
	}
	return image, nil
}

// SimpleTest runs the test suite once, on cfg.Image.
func (r *Runner) SimpleTest(ctx context.Context, cfg TestConfig) (err error) {
	cfg = cfg.withDefaults(DefaultSimpleTestCommand)

	ctx, span := r.startSpan(ctx, "simple_test", attribute.String("image", cfg.Image))
	defer func() { tracetools.FinishWithError(span, err) }()

	command, err := cfg.command()
	if err != nil {
		return err
	}

	r.logger().WithFields(
		logger.StringField("image", cfg.Image),
		logger.StringsField("command", command),
	).Info("Running tests")

	if err := r.Engine.Sync(ctx, PythonTest(cfg.Image, cfg.Source, cfg.Requirements, command)); err != nil {
		return fmt.Errorf("running tests: %w", err)
	}

	r.println("Test succeeded!!")
	return nil
}

// ConcurrentTests runs the test suite on every version in cfg.Versions at
// the same time and waits for all of them. A failing version doesn't stop
// the others; the first error is returned once every run has finished.
func (r *Runner) ConcurrentTests(ctx context.Context, cfg TestConfig) (err error) {
	cfg = cfg.withDefaults(DefaultConcurrentTestCommand)

	ctx, span := r.startSpan(ctx, "concurrent_tests", attribute.StringSlice("python.versions", cfg.Versions))
	defer func() { tracetools.FinishWithError(span, err) }()

	command, err := cfg.command()
	if err != nil {
		return err
	}

	// Resolve every image before starting anything, so a bad template
	// fails the job without leaving runs behind.
	images := make([]string, len(cfg.Versions))
	for i, version := range cfg.Versions {
		if images[i], err = PythonImage(cfg.ImageTemplate, version); err != nil {
			return err
		}
	}

	r.logger().WithFields(logger.StringsField("versions", cfg.Versions)).Info("Starting %d test runs", len(cfg.Versions))

	var g errgroup.Group
	for i, version := range cfg.Versions {
		ctr := PythonTest(images[i], cfg.Source, cfg.Requirements, command)

		g.Go(func() (err error) {
			ctx, span := r.startSpan(ctx, "python_tests",
				attribute.String("python.version", version),
				attribute.String("image", images[i]),
			)
			defer func() { tracetools.FinishWithError(span, err) }()

			r.println("Starting tests for Python %s", version)

			start := time.Now()
			err = r.Engine.Sync(ctx, ctr)

			fields := []logger.Field{logger.StringField("version", version)}
			if execErr := new(engine.ExecError); errors.As(err, &execErr) {
				fields = append(fields, logger.IntField("exit_status", execErr.ExitCode))
			}
			l := r.logger().WithFields(append(fields, logger.DurationField("duration", time.Since(start)))...)

			if err != nil {
				l.Error("Tests failed: %s", err)
				return fmt.Errorf("tests for Python %s: %w", version, err)
			}

			l.Info("Tests passed")
			r.println("Tests for Python %s succeeded!", version)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	r.println("All tasks have finished")
	return nil
}
