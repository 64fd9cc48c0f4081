package clicommand

import (
	"context"
	"strings"

	"github.com/buildkite/dagger-pipelines/env"
	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/internal/jobs"
	"github.com/urfave/cli"
)

const buildHelpDescription = `Usage:

   dagger-pipelines build [options...]

Description:
   Builds a Docker image from a build context and publishes it to a
   registry, printing the published reference.

   The HELLO build argument is always passed. It defaults to the HELLO
   environment variable, or "hey mom!" when that isn't set. More build
   arguments can be given with --build-arg, and a --build-arg HELLO=...
   replaces the default.

   Publishing is retried when the registry fails, a failing build is not.

Example:

   $ dagger-pipelines build
   $ HELLO=world dagger-pipelines build --build-arg VERSION=1.2.3 --address ttl.sh/my-image:1h
   $ DAGGER_PIPELINES_BUILD_ARGS=$'TAGS=a,b\nVERSION=1.2.3' dagger-pipelines build`

// BuildArgsEnv holds build arguments, one per line. It isn't the flag's
// EnvVar because cli splits those on commas, and build argument values can
// contain commas.
const BuildArgsEnv = "DAGGER_PIPELINES_BUILD_ARGS"

type BuildConfig struct {
	GlobalConfig
	EngineConfig

	Context    string   `cli:"context" normalize:"filepath" validate:"required"`
	Dockerfile string   `cli:"dockerfile"`
	BuildArgs  []string `cli:"build-arg"`
	Address    string   `cli:"address" validate:"required"`
}

var BuildCommand = cli.Command{
	Name:        "build",
	Usage:       "Build an image from a Dockerfile and publish it",
	Description: buildHelpDescription,
	Flags: commandFlags(engineFlags(), []cli.Flag{
		cli.StringFlag{
			Name:   "context",
			Value:  ".",
			Usage:  "The build context directory",
			EnvVar: "DAGGER_PIPELINES_BUILD_CONTEXT",
		},
		cli.StringFlag{
			Name:   "dockerfile",
			Value:  "Dockerfile",
			Usage:  "The Dockerfile to build, relative to the build context",
			EnvVar: "DAGGER_PIPELINES_DOCKERFILE",
		},
		cli.StringSliceFlag{
			Name:  "build-arg",
			Value: &cli.StringSlice{},
			Usage: "A KEY=VALUE build argument, can be repeated. Without it, build arguments are read one per line from $" + BuildArgsEnv,
		},
		cli.StringFlag{
			Name:   "address",
			Value:  jobs.DefaultBuildAddress,
			Usage:  "Where to publish the image",
			EnvVar: "DAGGER_PIPELINES_ADDRESS",
		},
	}),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, _, done, err := setupLoggerAndConfig[BuildConfig](ctx, c)
		if err != nil {
			return err
		}
		defer done()

		return runJob(ctx, c, l, cfg.EngineConfig, func(ctx context.Context, r *jobs.Runner) error {
			_, err := r.BuildImage(ctx, jobs.BuildConfig{
				Context:    engine.HostDirectory{Path: cfg.Context},
				Dockerfile: cfg.Dockerfile,
				BuildArgs:  buildArgs(cfg.BuildArgs, env.OS{}),
				Address:    cfg.Address,
			})
			return err
		})
	},
}

// buildArgs returns the --build-arg values, or the lines of BuildArgsEnv
// when there are none.
func buildArgs(flagArgs []string, e env.Store) []string {
	if len(flagArgs) > 0 {
		return flagArgs
	}

	v, ok := e.Get(BuildArgsEnv)
	if !ok {
		return nil
	}

	var args []string
	for _, line := range strings.Split(v, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		args = append(args, line)
	}
	return args
}
