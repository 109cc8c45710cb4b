package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// EnsureDirectory creates path (and any missing parents) when it does not
// exist and verifies that it refers to a directory.
func EnsureDirectory(path string) error {
	if path == "" {
		return errors.New("directory path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return err
		}
		return os.MkdirAll(path, 0o700)
	}
	if !info.IsDir() {
		return errors.Errorf("%q is not a directory", path)
	}
	return nil
}

// SafeFileName converts a model or dataset name into a single path component.
// Hub-style names such as "org/model" become "org_model".
func SafeFileName(name string) string {
	return strings.ReplaceAll(name, "/", "_")
}

// SafeJoinDir performs a filepath.Join of 'parent' and 'subdir' but returns an error
// if the resulting path points outside of 'parent'.
func SafeJoinDir(parent, subdir string) (string, error) {
	res := filepath.Join(parent, subdir)
	if !strings.HasPrefix(filepath.Clean(res), filepath.Clean(parent)+string(os.PathSeparator)) {
		return res, errors.Errorf("unsafe path join: '%s' with '%s'", parent, subdir)
	}
	return res, nil
}
