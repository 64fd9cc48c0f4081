// dagger-pipelines runs container pipelines on a Dagger engine: Python test
// suites, image builds and EKS rollouts.
package main

import (
	"fmt"
	"os"

	"github.com/buildkite/dagger-pipelines/clicommand"
	"github.com/buildkite/dagger-pipelines/version"
	"github.com/urfave/cli"
)

const appHelpTemplate = `{{.Usage}}

Usage:

  {{.Name}} <command> [options...]

Available commands are:

  {{range .VisibleCommands}}{{join .Names ", "}}{{ "\t" }}{{.Usage}}
  {{end}}
Use "{{.Name}} help <command>" for more information about a command.

`

const commandHelpTemplate = `{{.Description}}

Options:

   {{range .VisibleFlags}}{{.}}
   {{end}}
`

func init() {
	cli.AppHelpTemplate = appHelpTemplate
	cli.CommandHelpTemplate = commandHelpTemplate
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "dagger-pipelines"
	app.Usage = "A command line tool to run dagger pipelines."
	app.Version = version.FullVersion()
	app.ErrWriter = os.Stderr
	app.Commands = clicommand.DaggerPipelinesCommands

	// Only reached without a command, or with one that doesn't exist
	app.Action = func(c *cli.Context) error {
		if c.NArg() == 0 {
			return cli.ShowAppHelp(c)
		}
		return fmt.Errorf("the command %q is not implemented", c.Args().First())
	}

	return app
}

func main() {
	os.Exit(clicommand.PrintMessageAndReturnExitCode(newApp().Run(os.Args)))
}
