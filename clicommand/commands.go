package clicommand

import "github.com/urfave/cli"

// DaggerPipelinesCommands are the subcommands of dagger-pipelines, in the
// order they are listed by help.
var DaggerPipelinesCommands = []cli.Command{
	SimpleCommand,
	ConcurrentCommand,
	BuildCommand,
	ImportImageCommand,
	RolloutCommand,
}
