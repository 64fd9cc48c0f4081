package cliconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		line, key, value string
	}{
		{"image=alpine", "image", "alpine"},
		{"export image = alpine ", "image", "alpine"},
		{"image: alpine", "image", "alpine"},
		{`build-arg="HELLO=hey # mom"`, "build-arg", "HELLO=hey # mom"},
		{`image='alpine' # comment`, "image", "alpine"},
		{`message="line\nbreak"`, "message", "line\nbreak"},
	} {
		key, value, err := parseLine(tc.line)
		require.NoError(t, err, "parseLine(%q)", tc.line)
		assert.Equal(t, tc.key, key, "parseLine(%q) key", tc.line)
		assert.Equal(t, tc.value, value, "parseLine(%q) value", tc.line)
	}
}

func TestParseLineWithoutSeparator(t *testing.T) {
	t.Parallel()

	_, _, err := parseLine("llamas")
	assert.ErrorContains(t, err, "no valid separators")
}
