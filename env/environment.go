// Package env provides utilities for dealing with environment variables.
//
// It is intended for internal use by dagger-pipelines only.
package env

import (
	"os"
	"runtime"
	"sort"
	"strings"

	"github.com/puzpuzpuz/xsync/v2"
)

// Store is somewhere environment variables can be read from and written to.
type Store interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// OS is the environment of the current process.
type OS struct{}

func (OS) Get(key string) (string, bool) {
	return os.LookupEnv(key)
}

func (OS) Set(key, value string) error {
	return os.Setenv(key, value)
}

// Environment is a map of environment variables, with the keys normalized
// for case-insensitive operating systems
type Environment struct {
	underlying *xsync.MapOf[string, string]
}

func New() *Environment {
	return &Environment{underlying: xsync.NewMapOf[string]()}
}

func FromMap(m map[string]string) *Environment {
	env := &Environment{underlying: xsync.NewMapOfPresized[string](len(m))}

	for k, v := range m {
		env.Set(k, v) //nolint:errcheck // never fails
	}

	return env
}

// Split splits an environment variable (in the form "name=value") into the name
// and value substrings. If there is no '=', or the first '=' is at the start,
// it returns `"", "", false`.
func Split(l string) (name, value string, ok bool) {
	// Windows creates variables beginning with '=' in some circumstances,
	// see https://github.com/golang/go/issues/49886. Those are dropped.
	i := strings.IndexRune(l, '=')
	if i <= 0 {
		return "", "", false
	}
	return l[:i], l[i+1:], true
}

// FromSlice creates a new environment from a string slice of KEY=VALUE
func FromSlice(s []string) *Environment {
	env := &Environment{underlying: xsync.NewMapOfPresized[string](len(s))}

	for _, l := range s {
		if k, v, ok := Split(l); ok {
			env.Set(k, v) //nolint:errcheck // never fails
		}
	}

	return env
}

// Get returns a key from the environment
func (e *Environment) Get(key string) (string, bool) {
	return e.underlying.Load(normalizeKeyName(key))
}

// Exists returns true/false depending on whether or not the key exists in the env
func (e *Environment) Exists(key string) bool {
	_, ok := e.underlying.Load(normalizeKeyName(key))
	return ok
}

// Set sets a key in the environment. It never fails, the error is there to
// satisfy Store.
func (e *Environment) Set(key, value string) error {
	e.underlying.Store(normalizeKeyName(key), value)
	return nil
}

// Remove a key from the Environment and return its value
func (e *Environment) Remove(key string) string {
	value, _ := e.underlying.LoadAndDelete(normalizeKeyName(key))
	return value
}

// Length returns the length of the environment
func (e *Environment) Length() int {
	return e.underlying.Size()
}

// Dump returns a copy of the environment with all keys normalized
func (e *Environment) Dump() map[string]string {
	d := make(map[string]string, e.underlying.Size())
	e.underlying.Range(func(k, v string) bool {
		d[k] = v
		return true
	})
	return d
}

// ToSlice returns a sorted slice representation of the environment
func (e *Environment) ToSlice() []string {
	s := []string{}
	e.underlying.Range(func(k, v string) bool {
		s = append(s, k+"="+v)
		return true
	})

	// Ensure they are in a consistent order (helpful for tests)
	sort.Strings(s)

	return s
}

// Variables on Windows are case-insensitive (PATH is the same as Path), so
// keys are upper cased there. Unix keys are left alone.
func normalizeKeyName(key string) string {
	if runtime.GOOS == "windows" {
		return strings.ToUpper(key)
	}
	return key
}
