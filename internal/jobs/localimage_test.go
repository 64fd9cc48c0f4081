package jobs_test

import (
	"context"
	"errors"
	"testing"

	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/buildkite/dagger-pipelines/internal/engine/enginetest"
	"github.com/buildkite/dagger-pipelines/internal/jobs"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dockerSaveSpec(image string) engine.Spec {
	return engine.Spec{
		From: "docker:23.0.1-cli",
		Sockets: []engine.SocketSpec{{
			Path:   "/var/run/docker.sock",
			Source: engine.HostSocket{Path: "/var/run/docker.sock"},
		}},
		Execs: [][]string{{"image", "save", "-o", "image.tar", image}},
	}
}

func TestDockerExec(t *testing.T) {
	t.Parallel()

	socket := engine.HostSocket{Path: "/run/user/1000/docker.sock"}
	got := engine.Container{}.With(jobs.DockerExec([]string{"version"}, socket)).Spec()

	want := engine.Spec{
		From:    "docker:23.0.1-cli",
		Sockets: []engine.SocketSpec{{Path: "/var/run/docker.sock", Source: socket}},
		Execs:   [][]string{{"version"}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DockerExec spec diff (-want +got):\n%s", diff)
	}
}

func TestDockerImage(t *testing.T) {
	t.Parallel()

	socket := engine.HostSocket{Path: "/var/run/docker.sock"}
	got := engine.Container{}.With(jobs.DockerImage("my-local-image", socket)).Spec()

	want := engine.Spec{
		Import: &engine.FileSpec{
			Container: dockerSaveSpec("my-local-image"),
			Path:      "image.tar",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DockerImage spec diff (-want +got):\n%s", diff)
	}
}

func TestImportLocalImage(t *testing.T) {
	t.Parallel()

	e := &enginetest.Engine{
		FileSizeFunc: func(context.Context, engine.FileSpec) (int64, error) {
			return 2_100_000, nil
		},
		EnvVariableFunc: func(_ context.Context, spec engine.Spec, name string) (string, error) {
			if spec.Import == nil || name != "HELLO" {
				return "", errors.New("unexpected lookup")
			}
			return "Docker", nil
		},
	}
	r, stdout, l := newRunner(e, nil)

	value, err := r.ImportLocalImage(context.Background(), jobs.ImportConfig{})
	require.NoError(t, err)
	assert.Equal(t, "Docker", value)
	assert.Equal(t, "Hello from Docker!\n", stdout.String())

	calls := e.Calls()
	require.Len(t, calls, 2)

	assert.Equal(t, "FileSize", calls[0].Method)
	assert.Equal(t, "image.tar", calls[0].Arg)
	if diff := cmp.Diff(dockerSaveSpec("my-local-image"), calls[0].Spec); diff != "" {
		t.Errorf("archive spec diff (-want +got):\n%s", diff)
	}

	assert.Equal(t, "EnvVariable", calls[1].Method)
	assert.Equal(t, "HELLO", calls[1].Arg)
	require.NotNil(t, calls[1].Spec.Import)
	assert.Equal(t, "image.tar", calls[1].Spec.Import.Path)

	assert.Contains(t, l.Messages, "[info] Exported image archive (2.1 MB) image=my-local-image")
}

func TestImportLocalImageSaveFails(t *testing.T) {
	t.Parallel()

	e := &enginetest.Engine{
		FileSizeFunc: func(context.Context, engine.FileSpec) (int64, error) {
			return 0, &engine.ExecError{Cmd: []string{"image", "save", "-o", "image.tar", "missing"}, ExitCode: 1}
		},
	}
	r, stdout, _ := newRunner(e, nil)

	_, err := r.ImportLocalImage(context.Background(), jobs.ImportConfig{Image: "missing"})
	require.Error(t, err)

	var execErr *engine.ExecError
	assert.ErrorAs(t, err, &execErr)
	assert.Equal(t, 1, e.Started(), "the image should not be imported when saving fails")
	assert.Empty(t, stdout.String())
}
