package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExecutableDir returns the directory of the running binary, or the working
// directory when it cannot be resolved.
func ExecutableDir() string {
	if exe, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(exe); err == nil {
			exe = resolved
		}
		return filepath.Dir(exe)
	}
	if wd, err := os.Getwd(); err == nil {
		return wd
	}
	return "."
}

// ResolveRuntimePath makes raw absolute. Relative paths, and fallback when
// raw is empty, are taken from the executable directory.
func ResolveRuntimePath(raw, fallback string) string {
	target := firstNonEmpty(raw, fallback)
	switch {
	case target == "":
		return ExecutableDir()
	case filepath.IsAbs(target):
		return filepath.Clean(target)
	default:
		return filepath.Join(ExecutableDir(), target)
	}
}

func (c *AppConfig) LogDir() string {
	if c == nil {
		return ResolveRuntimePath("", "logs")
	}
	return ResolveRuntimePath(strings.TrimSpace(c.Paths.Logs), "logs")
}
