package commands

import (
	"path/filepath"
)

type Globals struct {
	Debug   bool
	Version string
}

// resolvePath anchors relative paths to dir.
func resolvePath(dir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
