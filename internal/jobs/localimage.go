package jobs

import (
	"context"
	"fmt"

	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/buildkite/dagger-pipelines/tracetools"
	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
)

const (
	DockerCLIImage   = "docker:23.0.1-cli"
	DockerSocketPath = "/var/run/docker.sock"

	DefaultLocalImage  = "my-local-image"
	DefaultImportedVar = "HELLO"

	imageArchive = "image.tar"
)

// DockerExec runs a docker CLI command against the host daemon behind
// socket. args don't include "docker" itself.
func DockerExec(args []string, socket engine.HostSocket) engine.Step {
	return func(c engine.Container) engine.Container {
		return c.From(DockerCLIImage).
			WithUnixSocket(DockerSocketPath, socket).
			WithExec(args)
	}
}

// DockerImage replaces the container with the image name from the host
// daemon behind socket.
func DockerImage(name string, socket engine.HostSocket) engine.Step {
	return func(c engine.Container) engine.Container {
		return c.Import(imageArchiveOf(c, name, socket))
	}
}

func imageArchiveOf(c engine.Container, name string, socket engine.HostSocket) engine.File {
	return c.With(DockerExec([]string{"image", "save", "-o", imageArchive, name}, socket)).File(imageArchive)
}

type ImportConfig struct {
	// Image is the name of the image in the host daemon.
	Image string

	// Socket is the host path of the Docker daemon socket.
	Socket string

	// EnvVariable is read from the imported image and greeted.
	EnvVariable string
}

// ImportLocalImage loads an image from the host Docker daemon and prints a
// greeting with one of its environment variables. It returns the variable's
// value.
func (r *Runner) ImportLocalImage(ctx context.Context, cfg ImportConfig) (_ string, err error) {
	if cfg.Image == "" {
		cfg.Image = DefaultLocalImage
	}
	if cfg.Socket == "" {
		cfg.Socket = DockerSocketPath
	}
	if cfg.EnvVariable == "" {
		cfg.EnvVariable = DefaultImportedVar
	}

	ctx, span := r.startSpan(ctx, "import_local_image", attribute.String("image", cfg.Image))
	defer func() { tracetools.FinishWithError(span, err) }()

	socket := engine.HostSocket{Path: cfg.Socket}
	l := r.logger().WithFields(logger.StringField("image", cfg.Image))

	size, err := r.Engine.FileSize(ctx, imageArchiveOf(engine.Container{}, cfg.Image, socket))
	if err != nil {
		return "", fmt.Errorf("exporting %s from the docker daemon: %w", cfg.Image, err)
	}
	l.Info("Exported image archive (%s)", humanize.Bytes(uint64(size)))

	ctr := engine.Container{}.With(DockerImage(cfg.Image, socket))

	value, err := r.Engine.EnvVariable(ctx, ctr, cfg.EnvVariable)
	if err != nil {
		return "", fmt.Errorf("reading %s from %s: %w", cfg.EnvVariable, cfg.Image, err)
	}

	r.println("Hello from %s!", value)
	return value, nil
}
