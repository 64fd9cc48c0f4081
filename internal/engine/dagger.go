package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"dagger.io/dagger"
	"github.com/buildkite/dagger-pipelines/env"
	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/buildkite/roko"
	"github.com/google/uuid"
)

// RunIDLabel is attached to the root pipeline of every Dagger session so
// that all containers from one invocation can be found together.
const RunIDLabel = "dagger-pipelines.run-id"

type ConnectOpts struct {
	// LogOutput receives the engine's progress output.
	LogOutput io.Writer

	// Workdir is the host directory relative host paths resolve against.
	Workdir string

	// PublishAttempts is how many times a publish is tried. Defaults to 3.
	PublishAttempts int

	// Env is where secret values are read from. Defaults to the process
	// environment.
	Env env.Store

	Logger logger.Logger
}

// DaggerEngine is an Engine backed by a Dagger session.
type DaggerEngine struct {
	conn   *dagger.Client
	client *dagger.Client
	runID  string
	env    env.Store
	logger logger.Logger

	publishAttempts int
}

var _ Engine = (*DaggerEngine)(nil)

// Connect opens a Dagger session. It must be closed with Close.
func Connect(ctx context.Context, opts ConnectOpts) (*DaggerEngine, error) {
	if opts.Logger == nil {
		opts.Logger = logger.Discard
	}
	if opts.Env == nil {
		opts.Env = env.OS{}
	}
	if opts.PublishAttempts <= 0 {
		opts.PublishAttempts = 3
	}

	var clientOpts []dagger.ClientOpt
	if opts.LogOutput != nil {
		clientOpts = append(clientOpts, dagger.WithLogOutput(opts.LogOutput))
	}
	if opts.Workdir != "" {
		clientOpts = append(clientOpts, dagger.WithWorkdir(opts.Workdir))
	}

	conn, err := dagger.Connect(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to the dagger engine: %w", err)
	}

	runID := uuid.NewString()
	opts.Logger.Debug("Connected to the dagger engine (run %s)", runID)

	client := conn.Pipeline("dagger-pipelines", dagger.PipelineOpts{
		Labels: []dagger.PipelineLabel{{Name: RunIDLabel, Value: runID}},
	})

	return &DaggerEngine{
		conn:            conn,
		client:          client,
		runID:           runID,
		env:             opts.Env,
		logger:          opts.Logger.WithFields(logger.StringField("run", runID)),
		publishAttempts: opts.PublishAttempts,
	}, nil
}

// RunID returns the identifier labelling this session.
func (e *DaggerEngine) RunID() string {
	return e.runID
}

func (e *DaggerEngine) Close() error {
	return e.conn.Close()
}

func (e *DaggerEngine) Sync(ctx context.Context, c Container) error {
	ctr, err := e.container(c)
	if err != nil {
		return err
	}

	_, err = ctr.Sync(ctx)
	return convertError(err)
}

func (e *DaggerEngine) Stdout(ctx context.Context, c Container) (string, error) {
	ctr, err := e.container(c)
	if err != nil {
		return "", err
	}

	out, err := ctr.Stdout(ctx)
	return out, convertError(err)
}

func (e *DaggerEngine) EnvVariable(ctx context.Context, c Container, name string) (string, error) {
	ctr, err := e.container(c)
	if err != nil {
		return "", err
	}

	value, err := ctr.EnvVariable(ctx, name)
	return value, convertError(err)
}

// Publish builds the container once, then pushes it. Only the push talks to
// the registry, so only the push is retried: a broken build fails straight
// away.
func (e *DaggerEngine) Publish(ctx context.Context, c Container, address string) (string, error) {
	ctr, err := e.container(c)
	if err != nil {
		return "", err
	}

	if _, err := ctr.Sync(ctx); err != nil {
		return "", convertError(err)
	}

	return pushWithRetry(ctx, e.logger, e.publishRetrier(), address, func(ctx context.Context) (string, error) {
		return ctr.Publish(ctx, address)
	})
}

func (e *DaggerEngine) publishRetrier() *roko.Retrier {
	return roko.NewRetrier(
		roko.WithMaxAttempts(e.publishAttempts),
		roko.WithStrategy(roko.ExponentialSubsecond(2*time.Second)),
	)
}

// pushWithRetry calls push until it succeeds or r gives up.
func pushWithRetry(ctx context.Context, l logger.Logger, r *roko.Retrier, address string, push func(context.Context) (string, error)) (string, error) {
	return roko.DoFunc(ctx, r, func(r *roko.Retrier) (string, error) {
		ref, err := push(ctx)
		if err == nil {
			return ref, nil
		}

		err = convertError(err)
		if execErr := new(ExecError); errors.As(err, &execErr) {
			r.Break()
			return "", err
		}

		l.Warn("Publishing %s failed: %s (%s)", address, err, r)
		return "", err
	})
}

func (e *DaggerEngine) FileSize(ctx context.Context, f File) (int64, error) {
	file, err := e.file(f)
	if err != nil {
		return 0, err
	}

	size, err := file.Size(ctx)
	return int64(size), convertError(err)
}

// container replays the recorded calls onto a fresh *dagger.Container.
func (e *DaggerEngine) container(c Container) (*dagger.Container, error) {
	ctr := e.client.Container()

	for _, o := range c.ops {
		switch o.kind {
		case opFrom:
			ctr = ctr.From(o.name)

		case opPipeline:
			labels := make([]dagger.PipelineLabel, 0, len(o.labels))
			for _, l := range o.labels {
				labels = append(labels, dagger.PipelineLabel{Name: l.Name, Value: l.Value})
			}
			ctr = ctr.Pipeline(o.name, dagger.ContainerPipelineOpts{
				Description: o.value,
				Labels:      labels,
			})

		case opBuild:
			args := make([]dagger.BuildArg, 0, len(o.build.BuildArgs))
			for _, a := range o.build.BuildArgs {
				args = append(args, dagger.BuildArg{Name: a.Name, Value: a.Value})
			}
			ctr = ctr.Build(e.directory(o.dir), dagger.ContainerBuildOpts{
				Dockerfile: o.build.Dockerfile,
				BuildArgs:  args,
			})

		case opImport:
			file, err := e.file(*o.file)
			if err != nil {
				return nil, err
			}
			ctr = ctr.Import(file)

		case opMountDirectory:
			ctr = ctr.WithMountedDirectory(o.name, e.directory(o.dir))

		case opWorkdir:
			ctr = ctr.WithWorkdir(o.name)

		case opEnvVariable:
			ctr = ctr.WithEnvVariable(o.name, o.value)

		case opSecretVariable:
			secret, err := e.secret(o.secret)
			if err != nil {
				return nil, err
			}
			ctr = ctr.WithSecretVariable(o.name, secret)

		case opUnixSocket:
			ctr = ctr.WithUnixSocket(o.name, e.client.Host().UnixSocket(o.socket.Path))

		case opExec:
			ctr = ctr.WithExec(o.args)

		default:
			return nil, fmt.Errorf("unknown container operation %d", o.kind)
		}
	}

	return ctr, nil
}

func (e *DaggerEngine) directory(d HostDirectory) *dagger.Directory {
	return e.client.Host().Directory(d.Path, dagger.HostDirectoryOpts{
		Include: d.Include,
		Exclude: d.Exclude,
	})
}

func (e *DaggerEngine) file(f File) (*dagger.File, error) {
	ctr, err := e.container(f.container)
	if err != nil {
		return nil, err
	}
	return ctr.File(f.path), nil
}

// secret hands the value straight from the environment to the engine, which
// scrubs it from all output.
func (e *DaggerEngine) secret(s Secret) (*dagger.Secret, error) {
	value, ok := e.env.Get(s.EnvVar)
	if !ok {
		return nil, fmt.Errorf("secret %s: environment variable %s is not set", s.Name, s.EnvVar)
	}
	return e.client.SetSecret(s.Name, value), nil
}

func convertError(err error) error {
	if err == nil {
		return nil
	}

	var execErr *dagger.ExecError
	if errors.As(err, &execErr) {
		return &ExecError{
			Cmd:      execErr.Cmd,
			ExitCode: execErr.ExitCode,
			Stdout:   execErr.Stdout,
			Stderr:   execErr.Stderr,
			Err:      err,
		}
	}

	return err
}
