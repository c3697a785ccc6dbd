// Package packager builds deployment archives for functions and computes
// content fingerprints of their source directories.
package packager

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// IgnoredDirs are dependency-cache and tooling directories that are never
// hashed or packaged, at any depth.
var IgnoredDirs = []string{
	".git",
	"node_modules",
	"__pycache__",
	".venv",
	".pytest_cache",
	".serverless",
	".lambdasync",
}

func isIgnoredDir(name string) bool {
	for _, d := range IgnoredDirs {
		if name == d {
			return true
		}
	}
	return false
}

// ShouldExclude reports whether relPath (forward-slash, relative to the code
// directory) is skipped by the fixed ignore set or a user glob.
func ShouldExclude(relPath string, userExcludes []string) bool {
	rel := filepath.ToSlash(relPath)

	for _, part := range strings.Split(rel, "/") {
		if isIgnoredDir(part) {
			return true
		}
	}

	for _, pattern := range userExcludes {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" || strings.HasPrefix(pattern, "#") {
			continue
		}
		p := filepath.ToSlash(pattern)

		// "dir/" matches the directory and everything below it.
		if strings.HasSuffix(p, "/") {
			dir := strings.TrimSuffix(p, "/")
			if rel == dir || strings.HasPrefix(rel, dir+"/") {
				return true
			}
			continue
		}

		if matched, _ := doublestar.Match(p, rel); matched {
			return true
		}
		// Patterns without a separator also match the basename anywhere.
		if !strings.Contains(p, "/") {
			if matched, _ := doublestar.Match(p, filepath.Base(rel)); matched {
				return true
			}
		}
	}

	return false
}
