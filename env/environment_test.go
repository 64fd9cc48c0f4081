package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvironmentExists(t *testing.T) {
	t.Parallel()

	env := FromSlice([]string{})

	require.NoError(t, env.Set("FOO", "bar"))
	require.NoError(t, env.Set("EMPTY", ""))

	assert.True(t, env.Exists("FOO"))
	assert.True(t, env.Exists("EMPTY"))
	assert.False(t, env.Exists("does not exist"))
}

func TestEnvironmentFromSliceSkipsMalformed(t *testing.T) {
	t.Parallel()

	env := FromSlice([]string{"AWS_PROFILE=dev", "=C:=C:\\", "NOEQUALS", "HELLO=a=b"})

	assert.Equal(t, []string{"AWS_PROFILE=dev", "HELLO=a=b"}, env.ToSlice())
}

func TestEnvironmentRemove(t *testing.T) {
	t.Parallel()

	env := FromMap(map[string]string{"FOO": "bar"})

	assert.Equal(t, "bar", env.Remove("FOO"))

	v, ok := env.Get("FOO")
	assert.Equal(t, "", v)
	assert.False(t, ok)
	assert.Equal(t, 0, env.Length())
}

func TestOSStore(t *testing.T) {
	t.Setenv("DAGGER_PIPELINES_ENV_TEST", "before")

	var s Store = OS{}

	v, ok := s.Get("DAGGER_PIPELINES_ENV_TEST")
	assert.True(t, ok)
	assert.Equal(t, "before", v)

	require.NoError(t, s.Set("DAGGER_PIPELINES_ENV_TEST", "after"))
	v, _ = s.Get("DAGGER_PIPELINES_ENV_TEST")
	assert.Equal(t, "after", v)
}
