package engine_test

import (
	"testing"

	"github.com/buildkite/dagger-pipelines/internal/engine"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestContainerIsImmutable(t *testing.T) {
	t.Parallel()

	base := engine.Container{}.
		From("python:3.11-slim-buster").
		WithMountedDirectory("/src", engine.HostDirectory{Path: "."}).
		WithWorkdir("/src")

	lint := base.WithExec([]string{"ruff", "check"})
	test := base.WithExec([]string{"pytest", "tests"})

	assert.Empty(t, base.Spec().Execs, "base should not see execs added to derived containers")
	assert.Equal(t, [][]string{{"ruff", "check"}}, lint.Spec().Execs)
	assert.Equal(t, [][]string{{"pytest", "tests"}}, test.Spec().Execs)
}

func TestContainerCopiesArguments(t *testing.T) {
	t.Parallel()

	args := []string{"pytest", "tests"}
	exclude := []string{".git"}

	c := engine.Container{}.
		WithExec(args).
		WithMountedDirectory("/src", engine.HostDirectory{Path: ".", Exclude: exclude})

	args[0] = "rm"
	exclude[0] = "everything"

	spec := c.Spec()
	assert.Equal(t, [][]string{{"pytest", "tests"}}, spec.Execs)
	assert.Equal(t, []string{".git"}, spec.Mounts[0].Source.Exclude)
}

func TestContainerSpec(t *testing.T) {
	t.Parallel()

	c := engine.Container{}.
		From("alpine/k8s:1.27.1").
		Pipeline("Kubectl", "List pods", engine.PipelineLabel{Name: "cluster", Value: "prod"}).
		WithEnvVariable("A", "1").
		WithSecretVariable("AWS_SESSION_TOKEN", engine.EnvSecret("AWS_SESSION_TOKEN")).
		WithUnixSocket("/var/run/docker.sock", engine.HostSocket{Path: "/var/run/docker.sock"}).
		WithEnvVariable("A", "2").
		WithWorkdir("/tmp").
		WithWorkdir("/work").
		WithExec([]string{"kubectl", "get", "pods", "-A"})

	want := engine.Spec{
		From: "alpine/k8s:1.27.1",
		Pipeline: []engine.PipelineSpec{{
			Name:        "Kubectl",
			Description: "List pods",
			Labels:      []engine.PipelineLabel{{Name: "cluster", Value: "prod"}},
		}},
		Workdir: "/work",
		Env:     []engine.EnvSpec{{Name: "A", Value: "1"}, {Name: "A", Value: "2"}},
		Secrets: []engine.SecretSpec{{
			Name:   "AWS_SESSION_TOKEN",
			Secret: engine.Secret{Name: "AWS_SESSION_TOKEN", EnvVar: "AWS_SESSION_TOKEN"},
		}},
		Sockets: []engine.SocketSpec{{Path: "/var/run/docker.sock", Source: engine.HostSocket{Path: "/var/run/docker.sock"}}},
		Execs:   [][]string{{"kubectl", "get", "pods", "-A"}},
	}

	if diff := cmp.Diff(want, c.Spec()); diff != "" {
		t.Errorf("Spec() diff (-want +got):\n%s", diff)
	}

	v, ok := c.Spec().EnvValue("A")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
}

func TestContainerBuildDefaultsDockerfile(t *testing.T) {
	t.Parallel()

	c := engine.Container{}.Build(engine.HostDirectory{Path: "."}, engine.BuildOpts{
		BuildArgs: []engine.BuildArg{{Name: "HELLO", Value: "hey mom!"}},
	})

	want := &engine.BuildSpec{
		Context:    engine.HostDirectory{Path: "."},
		Dockerfile: "Dockerfile",
		BuildArgs:  []engine.BuildArg{{Name: "HELLO", Value: "hey mom!"}},
	}
	if diff := cmp.Diff(want, c.Spec().Build); diff != "" {
		t.Errorf("Spec().Build diff (-want +got):\n%s", diff)
	}
}

func TestContainerWithStepAndImport(t *testing.T) {
	t.Parallel()

	save := func(c engine.Container) engine.Container {
		return c.From("docker:23.0.1-cli").WithExec([]string{"docker", "image", "save", "-o", "image.tar", "app"})
	}

	saver := engine.Container{}.With(save)
	archive := saver.File("image.tar")
	imported := engine.Container{}.Import(archive)

	assert.Equal(t, "image.tar", archive.Path())

	spec := imported.Spec()
	assert.Empty(t, spec.From)
	if assert.NotNil(t, spec.Import) {
		assert.Equal(t, "image.tar", spec.Import.Path)
		assert.Equal(t, "docker:23.0.1-cli", spec.Import.Container.From)
		assert.Equal(t, saver.Spec(), spec.Import.Container)
	}
}

func TestContainerLastBaseWins(t *testing.T) {
	t.Parallel()

	c := engine.Container{}.
		Build(engine.HostDirectory{Path: "."}, engine.BuildOpts{}).
		From("alpine")

	spec := c.Spec()
	assert.Equal(t, "alpine", spec.From)
	assert.Nil(t, spec.Build)
}
