package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"dagger.io/dagger"
	"dagger.io/dagger/querybuilder"
	"github.com/buildkite/dagger-pipelines/env"
	"github.com/buildkite/dagger-pipelines/logger"
	"github.com/buildkite/roko"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// offlineEngine builds queries without a session. Nothing may be evaluated
// with it.
func offlineEngine(environ map[string]string) *DaggerEngine {
	return &DaggerEngine{
		client:          &dagger.Client{Query: querybuilder.Query()},
		env:             env.FromMap(environ),
		logger:          logger.Discard,
		publishAttempts: 3,
	}
}

func testRetrier(attempts int) *roko.Retrier {
	return roko.NewRetrier(
		roko.WithMaxAttempts(attempts),
		roko.WithStrategy(roko.Constant(time.Second)),
		roko.WithSleepFunc(func(time.Duration) {}),
	)
}

func TestPushWithRetry(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	const address = "registry.example.com/app:latest"

	t.Run("retries registry failures", func(t *testing.T) {
		t.Parallel()

		l := logger.NewBuffer()
		calls := 0
		ref, err := pushWithRetry(ctx, l, testRetrier(3), address, func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errors.New("502 Bad Gateway")
			}
			return address + "@sha256:abc", nil
		})
		require.NoError(t, err)
		assert.Equal(t, address+"@sha256:abc", ref)
		assert.Equal(t, 3, calls)

		warnings := 0
		for _, m := range l.Messages {
			if strings.HasPrefix(m, "[warn] Publishing "+address+" failed: 502 Bad Gateway") {
				warnings++
			}
		}
		assert.Equal(t, 2, warnings)
	})

	t.Run("gives up after the last attempt", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, err := pushWithRetry(ctx, logger.Discard, testRetrier(3), address, func(context.Context) (string, error) {
			calls++
			return "", errors.New("connection refused")
		})
		assert.EqualError(t, err, "connection refused")
		assert.Equal(t, 3, calls)
	})

	t.Run("exec failures are not retried", func(t *testing.T) {
		t.Parallel()

		calls := 0
		_, err := pushWithRetry(ctx, logger.Discard, testRetrier(3), address, func(context.Context) (string, error) {
			calls++
			return "", &ExecError{Cmd: []string{"sh", "-c", "exit 1"}, ExitCode: 1}
		})
		var execErr *ExecError
		require.ErrorAs(t, err, &execErr)
		assert.Equal(t, 1, calls)
	})
}

func TestDaggerEngineMissingSecret(t *testing.T) {
	t.Parallel()

	e := offlineEngine(map[string]string{"AWS_ACCESS_KEY_ID": "AKIA"})

	ctr := Container{}.
		From("alpine/k8s:1.27.1").
		WithSecretVariable("AWS_ACCESS_KEY_ID", EnvSecret("AWS_ACCESS_KEY_ID")).
		WithSecretVariable("AWS_SESSION_TOKEN", EnvSecret("AWS_SESSION_TOKEN")).
		WithExec([]string{"kubectl", "get", "pods", "-A"})

	const want = "secret AWS_SESSION_TOKEN: environment variable AWS_SESSION_TOKEN is not set"

	t.Run("container", func(t *testing.T) {
		t.Parallel()

		_, err := e.container(ctr)
		assert.EqualError(t, err, want)
	})

	t.Run("imported file", func(t *testing.T) {
		t.Parallel()

		_, err := e.container(Container{}.Import(ctr.File("image.tar")))
		assert.EqualError(t, err, want)
	})

	t.Run("publish", func(t *testing.T) {
		t.Parallel()

		_, err := e.Publish(context.Background(), ctr, "ttl.sh/test_image:1h")
		assert.EqualError(t, err, want)
	})

	t.Run("file size", func(t *testing.T) {
		t.Parallel()

		_, err := e.FileSize(context.Background(), ctr.File("image.tar"))
		assert.EqualError(t, err, want)
	})
}

func TestDaggerEngineContainerQuery(t *testing.T) {
	t.Parallel()

	e := offlineEngine(nil)

	ctr, err := e.container(Container{}.
		From("python:3.10.9-slim-buster").
		WithWorkdir("/src").
		WithEnvVariable("PYTHONDONTWRITEBYTECODE", "1").
		WithExec([]string{"pytest", "tests/"}))
	require.NoError(t, err)

	query, err := ctr.Query.Build(context.Background())
	require.NoError(t, err)

	for _, want := range []string{
		`{container{from(address:"python:3.10.9-slim-buster"){withWorkdir(path:"/src"){withEnvVariable(`,
		`name:"PYTHONDONTWRITEBYTECODE"`,
		`value:"1"`,
		`{withExec(args:["pytest","tests/"])}`,
	} {
		assert.Contains(t, query, want)
	}
}

func TestDaggerEngineUnknownOperation(t *testing.T) {
	t.Parallel()

	_, err := offlineEngine(nil).container(Container{}.with(op{kind: opKind(-1)}))
	assert.EqualError(t, err, "unknown container operation -1")
}
