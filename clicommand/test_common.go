package clicommand

import (
	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/internal/jobs"
	"github.com/urfave/cli"
)

// SourceConfig is shared by the test runners.
type SourceConfig struct {
	Source       string   `cli:"source" normalize:"filepath" validate:"required"`
	Exclude      []string `cli:"exclude" normalize:"list"`
	Requirements string   `cli:"requirements"`
	TestCommand  string   `cli:"test-command"`
}

func (c SourceConfig) testConfig() jobs.TestConfig {
	return jobs.TestConfig{
		Source:       engine.HostDirectory{Path: c.Source, Exclude: c.Exclude},
		Requirements: c.Requirements,
		TestCommand:  c.TestCommand,
	}
}

func sourceFlags(defaultTestCommand string) []cli.Flag {
	return []cli.Flag{
		cli.StringFlag{
			Name:   "source",
			Value:  ".",
			Usage:  "The project directory to mount at /src",
			EnvVar: "DAGGER_PIPELINES_SOURCE",
		},
		cli.StringSliceFlag{
			Name:   "exclude",
			Value:  &cli.StringSlice{},
			Usage:  "Patterns of files in the project directory not to mount",
			EnvVar: "DAGGER_PIPELINES_EXCLUDE",
		},
		cli.StringFlag{
			Name:   "requirements",
			Value:  jobs.DefaultRequirements,
			Usage:  "The pip requirements file, relative to the project directory",
			EnvVar: "DAGGER_PIPELINES_REQUIREMENTS",
		},
		cli.StringFlag{
			Name:   "test-command",
			Value:  defaultTestCommand,
			Usage:  "The command that runs the tests, split with shell quoting rules",
			EnvVar: "DAGGER_PIPELINES_TEST_COMMAND",
		},
	}
}
