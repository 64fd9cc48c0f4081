package clicommand

import (
	"context"
	"strings"

	"github.com/buildkite/dagger-pipelines/internal/jobs"
	"github.com/urfave/cli"
)

const concurrentHelpDescription = `Usage:

   dagger-pipelines concurrent [options...]

Description:
   Runs the project's tests against several Python versions at the same
   time, each in its own container.

   Every version starts straight away. The command waits for all of them to
   finish, and fails if any of them failed. A failing version doesn't stop
   the others.

   The image of each run comes from --image-template, where
   ${PYTHON_VERSION} is replaced with the version.

Example:

   $ dagger-pipelines concurrent
   $ dagger-pipelines concurrent --python-version 3.11 --python-version 3.12`

type ConcurrentConfig struct {
	GlobalConfig
	EngineConfig
	SourceConfig

	ImageTemplate  string   `cli:"image-template"`
	PythonVersions []string `cli:"python-version" normalize:"list"`
}

var ConcurrentCommand = cli.Command{
	Name:        "concurrent",
	Usage:       "Run our concurrent pipeline",
	Description: concurrentHelpDescription,
	Flags: commandFlags(engineFlags(), sourceFlags(jobs.DefaultConcurrentTestCommand), []cli.Flag{
		cli.StringFlag{
			Name:   "image-template",
			Value:  jobs.DefaultPythonImageTemplate,
			Usage:  "The image each version runs in, ${PYTHON_VERSION} is replaced with the version",
			EnvVar: "DAGGER_PIPELINES_IMAGE_TEMPLATE",
		},
		cli.StringSliceFlag{
			Name:   "python-version",
			Value:  &cli.StringSlice{},
			Usage:  "A Python version to test against, can be repeated (default: " + strings.Join(jobs.DefaultPythonVersions, ", ") + ")",
			EnvVar: "DAGGER_PIPELINES_PYTHON_VERSIONS",
		},
	}),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, _, done, err := setupLoggerAndConfig[ConcurrentConfig](ctx, c)
		if err != nil {
			return err
		}
		defer done()

		return runJob(ctx, c, l, cfg.EngineConfig, func(ctx context.Context, r *jobs.Runner) error {
			tc := cfg.testConfig()
			tc.ImageTemplate = cfg.ImageTemplate
			tc.Versions = cfg.PythonVersions
			return r.ConcurrentTests(ctx, tc)
		})
	},
}
