package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Engine runs container descriptions. Every method evaluates the container
// from scratch, leaving caching to the engine.
type Engine interface {
	// Sync runs every exec of c in order.
	Sync(ctx context.Context, c Container) error

	// Stdout runs c and returns the standard output of its last exec.
	Stdout(ctx context.Context, c Container) (string, error)

	// EnvVariable returns the value of an environment variable in c, which
	// includes variables baked into its image.
	EnvVariable(ctx context.Context, c Container, name string) (string, error)

	// Publish pushes c to a registry and returns the published reference.
	Publish(ctx context.Context, c Container, address string) (string, error)

	// FileSize returns the size of f in bytes.
	FileSize(ctx context.Context, f File) (int64, error)

	Close() error
}

// ExecError is returned when a command in a container exits non-zero.
type ExecError struct {
	Cmd      []string
	ExitCode int
	Stdout   string
	Stderr   string

	// Err is the error reported by the engine, if any.
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("command %q exited with status %d", strings.Join(e.Cmd, " "), e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ExitCode syncs c and returns the exit code of the failing exec, or 0 when
// every exec succeeded. Errors that aren't an ExecError are returned as is.
func ExitCode(ctx context.Context, e Engine, c Container) (int, error) {
	err := e.Sync(ctx, c)
	if err == nil {
		return 0, nil
	}

	var execErr *ExecError
	if errors.As(err, &execErr) {
		return execErr.ExitCode, nil
	}

	return -1, err
}
