package engine

import "slices"

// Spec is a flattened, exported copy of a Container description. Engines
// other than Dagger, and tests, read containers through it.
type Spec struct {
	From     string
	Pipeline []PipelineSpec
	Build    *BuildSpec
	Import   *FileSpec
	Mounts   []MountSpec
	Workdir  string
	Env      []EnvSpec
	Secrets  []SecretSpec
	Sockets  []SocketSpec
	Execs    [][]string
}

type PipelineSpec struct {
	Name        string
	Description string
	Labels      []PipelineLabel
}

type BuildSpec struct {
	Context    HostDirectory
	Dockerfile string
	BuildArgs  []BuildArg
}

type FileSpec struct {
	Container Spec
	Path      string
}

type MountSpec struct {
	Path   string
	Source HostDirectory
}

type EnvSpec struct {
	Name  string
	Value string
}

type SecretSpec struct {
	Name   string
	Secret Secret
}

type SocketSpec struct {
	Path   string
	Source HostSocket
}

// Spec flattens the recorded calls. The last From, Build or Import wins as
// the base, the last WithWorkdir wins, and everything else accumulates in
// call order.
func (c Container) Spec() Spec {
	var s Spec

	for _, o := range c.ops {
		switch o.kind {
		case opFrom:
			s.From, s.Build, s.Import = o.name, nil, nil
		case opPipeline:
			s.Pipeline = append(s.Pipeline, PipelineSpec{Name: o.name, Description: o.value, Labels: slices.Clone(o.labels)})
		case opBuild:
			s.From, s.Import = "", nil
			s.Build = &BuildSpec{
				Context:    cloneDir(o.dir),
				Dockerfile: o.build.Dockerfile,
				BuildArgs:  slices.Clone(o.build.BuildArgs),
			}
		case opImport:
			s.From, s.Build = "", nil
			s.Import = &FileSpec{Container: o.file.container.Spec(), Path: o.file.path}
		case opMountDirectory:
			s.Mounts = append(s.Mounts, MountSpec{Path: o.name, Source: cloneDir(o.dir)})
		case opWorkdir:
			s.Workdir = o.name
		case opEnvVariable:
			s.Env = append(s.Env, EnvSpec{Name: o.name, Value: o.value})
		case opSecretVariable:
			s.Secrets = append(s.Secrets, SecretSpec{Name: o.name, Secret: o.secret})
		case opUnixSocket:
			s.Sockets = append(s.Sockets, SocketSpec{Path: o.name, Source: o.socket})
		case opExec:
			s.Execs = append(s.Execs, slices.Clone(o.args))
		}
	}

	return s
}

// EnvValue returns the last value set for name with WithEnvVariable.
func (s Spec) EnvValue(name string) (string, bool) {
	for i := len(s.Env) - 1; i >= 0; i-- {
		if s.Env[i].Name == name {
			return s.Env[i].Value, true
		}
	}
	return "", false
}
