package clicommand

import (
	"context"

	"github.com/buildkite/dagger-pipelines/internal/jobs"
	"github.com/urfave/cli"
)

const importImageHelpDescription = `Usage:

   dagger-pipelines import-image [options...] [image]

Description:
   Loads an image from the local Docker daemon into the pipeline engine and
   greets one of its environment variables.

   A docker CLI container bound to the daemon socket runs ′docker image
   save′, and the resulting archive is imported as a new container. The
   image defaults to "my-local-image".

Example:

   $ docker build -t my-local-image - <<EOF
   FROM alpine
   ENV HELLO=Docker
   EOF
   $ dagger-pipelines import-image my-local-image
   Hello from Docker!`

type ImportImageConfig struct {
	GlobalConfig
	EngineConfig

	Image        string `cli:"arg:0"`
	DockerSocket string `cli:"docker-socket" normalize:"filepath"`
	EnvVariable  string `cli:"env-variable"`
}

var ImportImageCommand = cli.Command{
	Name:        "import-image",
	Usage:       "Import an image from the local Docker daemon",
	Description: importImageHelpDescription,
	Flags: commandFlags(engineFlags(), []cli.Flag{
		cli.StringFlag{
			Name:   "docker-socket",
			Value:  jobs.DockerSocketPath,
			Usage:  "The Docker daemon socket on the host",
			EnvVar: "DAGGER_PIPELINES_DOCKER_SOCKET",
		},
		cli.StringFlag{
			Name:   "env-variable",
			Value:  jobs.DefaultImportedVar,
			Usage:  "The environment variable of the image to print",
			EnvVar: "DAGGER_PIPELINES_ENV_VARIABLE",
		},
	}),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, _, done, err := setupLoggerAndConfig[ImportImageConfig](ctx, c)
		if err != nil {
			return err
		}
		defer done()

		return runJob(ctx, c, l, cfg.EngineConfig, func(ctx context.Context, r *jobs.Runner) error {
			_, err := r.ImportLocalImage(ctx, jobs.ImportConfig{
				Image:       cfg.Image,
				Socket:      cfg.DockerSocket,
				EnvVariable: cfg.EnvVariable,
			})
			return err
		})
	},
}
