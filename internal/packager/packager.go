package packager

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/picklr-io/lambdasync/internal/ir"
	"github.com/picklr-io/lambdasync/internal/logging"
)

// ErrPackaging is matched by every error returned from this package.
var ErrPackaging = errors.New("packaging failed")

// Error describes an I/O failure while hashing or archiving.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("packager: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrPackaging }

// archiveEpoch is stamped on every zip entry so identical inputs produce
// identical archives.
var archiveEpoch = time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC)

// Artifact is a packaged deployment archive. It lives for one deploy.
type Artifact struct {
	Bytes       []byte
	Fingerprint string
	Path        string
}

// Packager writes archives into a temporary directory.
type Packager struct {
	TempDir string

	// BaseDir anchors relative code paths. Empty means the working directory.
	BaseDir string

	now   func() time.Time
	newID func() string
}

func New() *Packager {
	return &Packager{
		TempDir: os.TempDir(),
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
	}
}

// Fingerprint hashes the code directory of loc.
func (p *Packager) Fingerprint(loc ir.CodeLocation, excludes []string) (string, error) {
	if loc.Dir == "" {
		return "", &Error{Op: "fingerprint", Path: "", Err: errors.New("code directory is empty")}
	}
	return Fingerprint(p.resolve(loc.Dir), excludes)
}

func (p *Packager) resolve(path string) string {
	if p.BaseDir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(p.BaseDir, path)
}

// Pack archives loc.Dir plus its extra files and returns the archive bytes.
// Extra files are placed at the archive root by base name and replace any
// directory entry with the same path. The temporary archive is left on disk.
func (p *Packager) Pack(ctx context.Context, loc ir.CodeLocation, excludes []string) (*Artifact, error) {
	if loc.Dir == "" {
		return nil, &Error{Op: "pack", Path: "", Err: errors.New("code directory is empty")}
	}

	entries, err := enumerate(p.resolve(loc.Dir), excludes)
	if err != nil {
		return nil, err
	}
	fingerprint, err := fingerprintEntries(entries)
	if err != nil {
		return nil, err
	}

	members := make(map[string]fileEntry, len(entries)+len(loc.Extras))
	for _, e := range entries {
		members[e.RelPath] = e
	}
	for _, extra := range loc.Extras {
		extra = p.resolve(extra)
		info, err := os.Stat(extra)
		if err != nil {
			return nil, &Error{Op: "stat", Path: extra, Err: err}
		}
		if info.IsDir() {
			return nil, &Error{Op: "stat", Path: extra, Err: errors.New("extra file is a directory")}
		}
		name := filepath.Base(extra)
		members[name] = fileEntry{RelPath: name, AbsPath: extra, Mode: info.Mode()}
	}

	names := make([]string, 0, len(members))
	for n := range members {
		names = append(names, n)
	}
	sort.Strings(names)

	path := filepath.Join(p.TempDir, fmt.Sprintf("lambdasync-%s-%d.zip", p.newID(), p.now().UnixNano()))
	if err := p.writeArchive(ctx, path, names, members); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "read", Path: path, Err: err}
	}

	logging.Debug("packaged function code", "dir", loc.Dir, "files", len(names), "bytes", len(data), "fingerprint", fingerprint)
	return &Artifact{Bytes: data, Fingerprint: fingerprint, Path: path}, nil
}

func (p *Packager) writeArchive(ctx context.Context, path string, names []string, members map[string]fileEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return &Error{Op: "create", Path: path, Err: err}
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return &Error{Op: "write", Path: path, Err: err}
		}
		if err := addFile(zw, name, members[name]); err != nil {
			return err
		}
	}
	if err := zw.Close(); err != nil {
		return &Error{Op: "close", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		return &Error{Op: "close", Path: path, Err: err}
	}
	return nil
}

func addFile(zw *zip.Writer, name string, e fileEntry) error {
	hdr := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: archiveEpoch,
	}
	// Preserve the executable bit for bootstrap files.
	mode := os.FileMode(0o644)
	if e.Mode&0o111 != 0 {
		mode = 0o755
	}
	hdr.SetMode(mode)

	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return &Error{Op: "archive", Path: e.AbsPath, Err: err}
	}

	src, err := os.Open(e.AbsPath)
	if err != nil {
		return &Error{Op: "open", Path: e.AbsPath, Err: err}
	}
	defer src.Close()

	if _, err := io.Copy(w, src); err != nil {
		return &Error{Op: "archive", Path: e.AbsPath, Err: err}
	}
	return nil
}
