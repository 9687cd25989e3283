package flags

import (
	"os"
	"path/filepath"
)

// FindScript looks for a script called name in dir and each of its parents,
// returning the first match. An absolute name is returned as is when it
// exists.
func FindScript(dir, name string) (string, bool) {
	if filepath.IsAbs(name) {
		return name, isFile(name)
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, name)
		if isFile(candidate) {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
