package clicommand

import (
	"context"

	"github.com/buildkite/dagger-pipelines/internal/jobs"
	"github.com/urfave/cli"
)

const simpleHelpDescription = `Usage:

   dagger-pipelines simple [options...]

Description:
   Runs the project's tests once, inside a Python container.

   The project directory is mounted at /src, pip is upgraded, the
   requirements are installed and then the test command is run. When the
   test command fails, dagger-pipelines exits with its exit code.

Example:

   $ dagger-pipelines simple
   $ dagger-pipelines simple --image python:3.12-slim --test-command "pytest -x tests/"`

type SimpleConfig struct {
	GlobalConfig
	EngineConfig
	SourceConfig

	Image string `cli:"image"`
}

var SimpleCommand = cli.Command{
	Name:        "simple",
	Usage:       "Run our simple pipeline",
	Description: simpleHelpDescription,
	Flags: commandFlags(engineFlags(), sourceFlags(jobs.DefaultSimpleTestCommand), []cli.Flag{
		cli.StringFlag{
			Name:   "image",
			Value:  jobs.DefaultPythonImage,
			Usage:  "The image the tests run in",
			EnvVar: "DAGGER_PIPELINES_IMAGE",
		},
	}),
	Action: func(c *cli.Context) error {
		ctx := context.Background()
		ctx, cfg, l, _, done, err := setupLoggerAndConfig[SimpleConfig](ctx, c)
		if err != nil {
			return err
		}
		defer done()

		return runJob(ctx, c, l, cfg.EngineConfig, func(ctx context.Context, r *jobs.Runner) error {
			tc := cfg.testConfig()
			tc.Image = cfg.Image
			return r.SimpleTest(ctx, tc)
		})
	},
}
