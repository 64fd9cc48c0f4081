package cliconfig_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/buildkite/dagger-pipelines/cliconfig"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

type testConfig struct {
	Command  string   `cli:"arg:0" env:"CLICONFIG_TEST_COMMAND"`
	Versions []string `cli:"python-version" normalize:"list"`
	Image    string   `cli:"image" validate:"required"`
	Source   string   `cli:"source" normalize:"filepath"`
	Debug    bool     `cli:"debug"`
	Config   string   `cli:"config"`
}

type loadResult struct {
	cfg      testConfig
	warnings []string
	err      error
}

func load(t *testing.T, args ...string) loadResult {
	t.Helper()

	var res loadResult

	app := cli.NewApp()
	app.Name = "dagger-pipelines"
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	app.Commands = []cli.Command{
		{
			Name: "concurrent",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "config"},
				cli.StringSliceFlag{Name: "python-version", Value: &cli.StringSlice{}},
				cli.StringFlag{Name: "image", EnvVar: "CLICONFIG_TEST_IMAGE"},
				cli.StringFlag{Name: "source", Value: "."},
				cli.BoolFlag{Name: "debug"},
			},
			Action: func(c *cli.Context) error {
				loader := cliconfig.Loader{CLI: c, Config: &res.cfg}
				res.warnings, res.err = loader.Load()
				return nil
			},
		},
	}

	require.NoError(t, app.Run(append([]string{"dagger-pipelines", "concurrent"}, args...)))
	return res
}

func TestLoaderReadsFlags(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)

	res := load(t,
		"--python-version", "3.8, 3.9",
		"--python-version", "3.10",
		"--image", "python:${PYTHON_VERSION}",
		"--source", "sub",
		"--debug",
		"pytest tests",
	)
	require.NoError(t, res.err)

	want := testConfig{
		Command:  "pytest tests",
		Versions: []string{"3.8", "3.9", "3.10"},
		Image:    "python:${PYTHON_VERSION}",
		Source:   filepath.Join(wd, "sub"),
		Debug:    true,
	}
	if diff := cmp.Diff(want, res.cfg); diff != "" {
		t.Errorf("loaded config diff (-want +got):\n%s", diff)
	}
	assert.Empty(t, res.warnings)
}

func TestLoaderRequiredField(t *testing.T) {
	res := load(t)
	assert.EqualError(t, res.err, "Missing image. See: `dagger-pipelines concurrent --help`")
}

func TestLoaderEnvVars(t *testing.T) {
	t.Setenv("CLICONFIG_TEST_IMAGE", "alpine")
	t.Setenv("CLICONFIG_TEST_COMMAND", "make test")

	res := load(t)
	require.NoError(t, res.err)
	assert.Equal(t, "alpine", res.cfg.Image)
	assert.Equal(t, "make test", res.cfg.Command)
}

func TestLoaderConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pipelines.cfg")
	contents := `# shared settings
image="from-file" # trailing comment
debug: true
python-version=3.11,3.12
bogus=1
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	t.Run("file values", func(t *testing.T) {
		res := load(t, "--config", path)
		require.NoError(t, res.err)
		assert.Equal(t, "from-file", res.cfg.Image)
		assert.True(t, res.cfg.Debug)
		assert.Equal(t, []string{"3.11", "3.12"}, res.cfg.Versions)
		assert.Equal(t, []string{
			"The config option `bogus` in " + path + " isn't used by `concurrent`",
		}, res.warnings)
	})

	t.Run("flags win over the file", func(t *testing.T) {
		res := load(t, "--config", path, "--image", "from-flag")
		require.NoError(t, res.err)
		assert.Equal(t, "from-flag", res.cfg.Image)
	})
}

func TestLoaderMissingConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope.cfg")

	res := load(t, "--config", path, "--image", "alpine")
	assert.ErrorContains(t, res.err, "a configuration file could not be found at")
}
