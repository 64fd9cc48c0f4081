package osutil

import (
	"os"
	"path/filepath"
	"strings"
)

// NormalizeFilePath expands a leading ~ and any environment variables in
// path, then makes it absolute. An empty path stays empty.
func NormalizeFilePath(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		home, err := UserHomeDir()
		if err != nil {
			return "", err
		}
		path = filepath.Join(home, path[1:])
	}

	path = os.ExpandEnv(path)

	return filepath.Abs(path)
}

// FileExists returns whether or not a file exists on the filesystem. Any
// error from os.Stat counts as the file not being there.
func FileExists(filename string) bool {
	_, err := os.Stat(filename)
	return err == nil
}
