// Package engine describes containers as immutable values and runs them on
// a container pipeline engine.
//
// A Container is built up through a chain of With* calls. Each call returns
// a new Container and leaves the receiver untouched, so a partially built
// container can be shared between goroutines and extended independently:
//
//	base := engine.Container{}.
//		From("python:3.11-slim-buster").
//		WithMountedDirectory("/src", engine.HostDirectory{Path: "."}).
//		WithWorkdir("/src")
//
//	lint := base.WithExec([]string{"ruff", "check"})
//	test := base.WithExec([]string{"pytest", "tests"})
//
// Nothing runs until the description is handed to an Engine.
package engine

import "slices"

// HostDirectory is a directory on the host that the engine reads.
type HostDirectory struct {
	Path    string
	Include []string
	Exclude []string
}

// HostSocket is a unix socket on the host, such as the Docker daemon socket.
type HostSocket struct {
	Path string
}

// Secret is a handle to a sensitive value. The engine reads the value from
// the host environment variable EnvVar when the container runs, so the
// description never carries the plaintext.
type Secret struct {
	Name   string
	EnvVar string
}

// EnvSecret returns a Secret named after, and read from, the environment
// variable name.
func EnvSecret(name string) Secret {
	return Secret{Name: name, EnvVar: name}
}

// BuildArg is a Dockerfile build argument.
type BuildArg struct {
	Name  string
	Value string
}

type BuildOpts struct {
	// Dockerfile is relative to the build context. Defaults to "Dockerfile".
	Dockerfile string
	BuildArgs  []BuildArg
}

type PipelineLabel struct {
	Name  string
	Value string
}

// File is a file inside a container, for example an archive written by an
// exec.
type File struct {
	container Container
	path      string
}

// Container returns the container that produces the file.
func (f File) Container() Container { return f.container }

// Path returns the path of the file inside its container.
func (f File) Path() string { return f.path }

// Step transforms a container, see Container.With.
type Step func(Container) Container

type opKind int

const (
	opFrom opKind = iota
	opPipeline
	opBuild
	opImport
	opMountDirectory
	opWorkdir
	opEnvVariable
	opSecretVariable
	opUnixSocket
	opExec
)

// op is one recorded With* call. Only the fields relevant to kind are set.
type op struct {
	kind   opKind
	name   string
	value  string
	args   []string
	labels []PipelineLabel
	dir    HostDirectory
	build  BuildOpts
	secret Secret
	socket HostSocket
	file   *File
}

// Container is an immutable description of a container. The zero value is
// an empty (scratch) container.
type Container struct {
	ops []op
}

func (c Container) with(o op) Container {
	ops := make([]op, len(c.ops), len(c.ops)+1)
	copy(ops, c.ops)
	return Container{ops: append(ops, o)}
}

// From initializes the container from a base image reference.
func (c Container) From(address string) Container {
	return c.with(op{kind: opFrom, name: address})
}

// Pipeline groups everything that follows under a named pipeline in the
// engine's progress output.
func (c Container) Pipeline(name, description string, labels ...PipelineLabel) Container {
	return c.with(op{kind: opPipeline, name: name, value: description, labels: slices.Clone(labels)})
}

// Build initializes the container from a Dockerfile build of context.
func (c Container) Build(context HostDirectory, opts BuildOpts) Container {
	if opts.Dockerfile == "" {
		opts.Dockerfile = "Dockerfile"
	}
	opts.BuildArgs = slices.Clone(opts.BuildArgs)
	return c.with(op{kind: opBuild, dir: cloneDir(context), build: opts})
}

// Import initializes the container from an image archive (`docker save`
// format) produced by another container.
func (c Container) Import(source File) Container {
	return c.with(op{kind: opImport, file: &source})
}

// WithMountedDirectory mounts a host directory at path.
func (c Container) WithMountedDirectory(path string, source HostDirectory) Container {
	return c.with(op{kind: opMountDirectory, name: path, dir: cloneDir(source)})
}

// WithWorkdir sets the working directory for following execs.
func (c Container) WithWorkdir(path string) Container {
	return c.with(op{kind: opWorkdir, name: path})
}

// WithEnvVariable sets a plain environment variable.
func (c Container) WithEnvVariable(name, value string) Container {
	return c.with(op{kind: opEnvVariable, name: name, value: value})
}

// WithSecretVariable exposes a secret as an environment variable. The
// engine keeps its value out of logs.
func (c Container) WithSecretVariable(name string, secret Secret) Container {
	return c.with(op{kind: opSecretVariable, name: name, secret: secret})
}

// WithUnixSocket binds a host unix socket at path.
func (c Container) WithUnixSocket(path string, source HostSocket) Container {
	return c.with(op{kind: opUnixSocket, name: path, socket: source})
}

// WithExec appends a command. Commands run in order, and a non-zero exit
// stops the chain.
func (c Container) WithExec(args []string) Container {
	return c.with(op{kind: opExec, args: slices.Clone(args)})
}

// With applies step to the container.
func (c Container) With(step Step) Container {
	return step(c)
}

// File refers to the file at path once the container has run.
func (c Container) File(path string) File {
	return File{container: c, path: path}
}

func cloneDir(d HostDirectory) HostDirectory {
	d.Include = slices.Clone(d.Include)
	d.Exclude = slices.Clone(d.Exclude)
	return d
}
