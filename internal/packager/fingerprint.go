package packager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

const hashPrefix = "sha256:"

// fileEntry is a file discovered under a code directory.
type fileEntry struct {
	RelPath string // forward-slash path relative to the directory
	AbsPath string
	Mode    fs.FileMode
}

// enumerate walks dir, applies the ignore rules and returns the regular files
// sorted by relative path.
func enumerate(dir string, userExcludes []string) ([]fileEntry, error) {
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, &Error{Op: "resolve", Path: dir, Err: err}
	}

	var entries []fileEntry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			return nil
		}

		if d.IsDir() {
			if ShouldExclude(rel, userExcludes) || ShouldExclude(rel+"/", userExcludes) {
				return fs.SkipDir
			}
			return nil
		}
		if ShouldExclude(rel, userExcludes) {
			return nil
		}

		info, err := os.Stat(path)
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		entries = append(entries, fileEntry{RelPath: rel, AbsPath: path, Mode: info.Mode()})
		return nil
	})
	if err != nil {
		return nil, &Error{Op: "walk", Path: dir, Err: err}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})
	return entries, nil
}

// Fingerprint returns a content hash of dir. It depends only on relative
// paths and file contents, never on timestamps or walk order.
func Fingerprint(dir string, userExcludes []string) (string, error) {
	entries, err := enumerate(dir, userExcludes)
	if err != nil {
		return "", err
	}
	return fingerprintEntries(entries)
}

func fingerprintEntries(entries []fileEntry) (string, error) {
	h := sha256.New()
	for _, e := range entries {
		fh, err := hashFile(e.AbsPath)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(h, "%s\x00%s\n", e.RelPath, fh)
	}
	return hashPrefix + hex.EncodeToString(h.Sum(nil)), nil
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", &Error{Op: "open", Path: path, Err: err}
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", &Error{Op: "read", Path: path, Err: err}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
