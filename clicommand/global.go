package clicommand

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"

	"github.com/buildkite/dagger-pipelines/cliconfig"
	"github.com/buildkite/dagger-pipelines/internal/osutil"
	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/buildkite/dagger-pipelines/signalwatcher"
	"github.com/buildkite/dagger-pipelines/tracetools"
	"github.com/oleiade/reflections"
	"github.com/urfave/cli"
)

const appName = "dagger-pipelines"

var DebugFlag = cli.BoolFlag{
	Name:   "debug",
	Usage:  "Enable debug mode. Synonym for ′--log-level debug′. Takes precedence over ′--log-level′",
	EnvVar: "DAGGER_PIPELINES_DEBUG",
}

var LogLevelFlag = cli.StringFlag{
	Name:   "log-level",
	Value:  "notice",
	Usage:  "Set the log level for dagger-pipelines. Possible values are: \"debug\", \"info\", \"notice\", \"warn\", \"error\", \"fatal\"",
	EnvVar: "DAGGER_PIPELINES_LOG_LEVEL",
}

var LogFormatFlag = cli.StringFlag{
	Name:   "log-format",
	Value:  "text",
	Usage:  "The format to use for log output, either \"text\" or \"json\"",
	EnvVar: "DAGGER_PIPELINES_LOG_FORMAT",
}

var NoColorFlag = cli.BoolFlag{
	Name:   "no-color",
	Usage:  "Don't show colors in logging",
	EnvVar: "DAGGER_PIPELINES_NO_COLOR",
}

var ConfigFlag = cli.StringFlag{
	Name:   "config",
	Value:  "",
	Usage:  "Path to a configuration file",
	EnvVar: "DAGGER_PIPELINES_CONFIG",
}

var QuietFlag = cli.BoolFlag{
	Name:   "quiet",
	Usage:  "Don't show the pipeline engine's progress output",
	EnvVar: "DAGGER_PIPELINES_QUIET",
}

var PublishAttemptsFlag = cli.IntFlag{
	Name:   "publish-attempts",
	Value:  3,
	Usage:  "How many times to try publishing an image before giving up",
	EnvVar: "DAGGER_PIPELINES_PUBLISH_ATTEMPTS",
}

var TracingBackendFlag = cli.StringFlag{
	Name:   "tracing-backend",
	Value:  tracetools.BackendNone,
	Usage:  "The name of the tracing backend to use, either \"opentelemetry\" or \"datadog\". Tracing is off by default",
	EnvVar: "DAGGER_PIPELINES_TRACING_BACKEND",
}

var TracingServiceNameFlag = cli.StringFlag{
	Name:   "tracing-service-name",
	Value:  appName,
	Usage:  "Service name to use when reporting traces",
	EnvVar: "DAGGER_PIPELINES_TRACING_SERVICE_NAME",
}

var TracingTraceParentFlag = cli.StringFlag{
	Name:   "tracing-traceparent",
	Usage:  "A W3C traceparent to parent the job's spans to",
	EnvVar: "TRACEPARENT",
}

type GlobalConfig struct {
	Debug     bool   `cli:"debug"`
	LogLevel  string `cli:"log-level"`
	LogFormat string `cli:"log-format"`
	NoColor   bool   `cli:"no-color"`
	Config    string `cli:"config" normalize:"filepath"`
}

func globalFlags() []cli.Flag {
	return []cli.Flag{
		DebugFlag,
		LogLevelFlag,
		LogFormatFlag,
		NoColorFlag,
		ConfigFlag,
	}
}

// EngineConfig is embedded by commands that run containers.
type EngineConfig struct {
	Quiet           bool `cli:"quiet"`
	PublishAttempts int  `cli:"publish-attempts"`

	TracingBackend     string `cli:"tracing-backend"`
	TracingServiceName string `cli:"tracing-service-name"`
	TracingTraceParent string `cli:"tracing-traceparent"`
}

func engineFlags() []cli.Flag {
	return []cli.Flag{
		QuietFlag,
		PublishAttemptsFlag,
		TracingBackendFlag,
		TracingServiceNameFlag,
		TracingTraceParentFlag,
	}
}

// DefaultConfigFilePaths are searched, in order, when --config isn't given.
func DefaultConfigFilePaths() []string {
	paths := []string{".dagger-pipelines.cfg"}

	if home, err := osutil.UserHomeDir(); err == nil {
		paths = append(paths,
			filepath.Join(home, ".dagger-pipelines.cfg"),
			filepath.Join(home, ".config", "dagger-pipelines", "dagger-pipelines.cfg"),
		)
	}

	return paths
}

// CreateLogger builds the logger described by the global flags in cfg.
func CreateLogger(cfg any) (logger.Logger, error) {
	format := "text"
	if v, err := reflections.GetField(cfg, "LogFormat"); err == nil {
		if s, ok := v.(string); ok && s != "" {
			format = s
		}
	}

	var printer logger.Printer
	switch format {
	case "text":
		p := logger.NewTextPrinter(os.Stderr)
		if noColor, err := reflections.GetField(cfg, "NoColor"); err == nil && noColor == true {
			p.Colors = false
		}
		printer = p

	case "json":
		printer = logger.NewJSONPrinter(os.Stderr)

	default:
		return nil, fmt.Errorf("invalid log format %q, must be one of: text, json", format)
	}

	l := logger.NewConsoleLogger(printer, os.Exit)

	if v, err := reflections.GetField(cfg, "LogLevel"); err == nil {
		if s, ok := v.(string); ok && s != "" {
			level, err := logger.LevelFromString(s)
			if err != nil {
				return nil, err
			}
			l.SetLevel(level)
		}
	}

	// --debug wins over --log-level
	if debug, err := reflections.GetField(cfg, "Debug"); err == nil && debug == true {
		l.SetLevel(logger.DEBUG)
	}

	return l, nil
}

// HandleGlobalFlags applies process-wide settings from cfg. The returned
// context is cancelled when the process is asked to stop, and done releases
// it and stops watching for signals.
func HandleGlobalFlags(ctx context.Context, l logger.Logger, cfg any) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)

	stopWatching := signalwatcher.Watch(signalHandler(l, cancel, os.Exit))

	if debug, err := reflections.GetField(cfg, "Debug"); err == nil && debug == true {
		l.Debug("Debug mode enabled")
	}

	return ctx, func() {
		stopWatching()
		cancel()
	}
}

// signalHandler cancels the running pipelines on the first signal and exits
// with exit on the next, for when the engine doesn't stop.
func signalHandler(l logger.Logger, cancel context.CancelFunc, exit func(int)) func(signalwatcher.Signal) {
	var received atomic.Int32

	return func(sig signalwatcher.Signal) {
		if received.Add(1) == 1 {
			l.Notice("Received %s, cancelling running pipelines. Send it again to exit immediately", sig)
			cancel()
			return
		}

		l.Error("Received %s again, exiting without waiting for running pipelines", sig)
		exit(1)
	}
}

// setupLoggerAndConfig loads the config for a command, creates its logger
// and applies the global flags. Callers must defer done.
func setupLoggerAndConfig[T any](ctx context.Context, c *cli.Context) (_ context.Context, cfg T, l logger.Logger, f *cliconfig.File, done func(), err error) {
	done = func() {}

	loader := cliconfig.Loader{
		CLI:                    c,
		Config:                 &cfg,
		DefaultConfigFilePaths: DefaultConfigFilePaths(),
	}

	warnings, err := loader.Load()
	if err != nil {
		return ctx, cfg, nil, nil, done, err
	}

	l, err = CreateLogger(&cfg)
	if err != nil {
		return ctx, cfg, nil, nil, done, err
	}

	// Now that we have a logger, log out the warnings that loading config generated
	for _, warning := range warnings {
		l.Warn("%s", warning)
	}

	if loader.File != nil {
		l.Debug("Loaded config file %s", loader.File.Path)
	}

	ctx, done = HandleGlobalFlags(ctx, l, &cfg)
	return ctx, cfg, l, loader.File, done, nil
}

// commandFlags joins the global flags with a command's own.
func commandFlags(flags ...[]cli.Flag) []cli.Flag {
	return slices.Concat(append([][]cli.Flag{globalFlags()}, flags...)...)
}
