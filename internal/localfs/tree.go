// Package localfs is the filesystem collaborator of the sync engine: it
// enumerates snapshots of a container's local folder and applies the write,
// delete, and rename operations tasks need. It is built on go-billy so tests
// run against an in-memory filesystem.
package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"

	"github.com/MKhiriev/go-vault-sync/models"
)

// tempPrefix marks in-progress atomic writes so snapshots never pick up a
// half-written download.
const tempPrefix = ".vaultsync-tmp-"

// Tree gives path-relative access to one container's local folder.
type Tree struct {
	fs billy.Filesystem
}

// NewTree binds a Tree to a directory on the host filesystem.
func NewTree(root string) *Tree {
	return &Tree{fs: osfs.New(root)}
}

// NewTreeFS binds a Tree to an arbitrary billy filesystem. Tests use this
// with memfs.
func NewTreeFS(fs billy.Filesystem) *Tree {
	return &Tree{fs: fs}
}

// Snapshot walks the whole tree and returns path → file state with content
// hashes. Directories, symlinks, and in-progress temp files are skipped.
// ctx cancellation is honored between files.
func (t *Tree) Snapshot(ctx context.Context) (map[string]models.FileState, error) {
	states := make(map[string]models.FileState)

	err := util.Walk(t.fs, "/", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		if info.IsDir() || !info.Mode().IsRegular() {
			return nil
		}
		if strings.HasPrefix(info.Name(), tempPrefix) {
			return nil
		}

		rel := normalize(path)
		hash, err := t.hashFile(rel)
		if err != nil {
			return fmt.Errorf("hash %s: %w", rel, err)
		}

		states[rel] = models.FileState{
			Path:  rel,
			Size:  info.Size(),
			MTime: info.ModTime(),
			Hash:  hash,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk local tree: %w", err)
	}

	return states, nil
}

// Stat returns the current state of one file, hash included.
func (t *Tree) Stat(path string) (models.FileState, error) {
	info, err := t.fs.Stat(path)
	if err != nil {
		return models.FileState{}, fmt.Errorf("stat %s: %w", path, err)
	}

	hash, err := t.hashFile(path)
	if err != nil {
		return models.FileState{}, fmt.Errorf("hash %s: %w", path, err)
	}

	return models.FileState{
		Path:  normalize(path),
		Size:  info.Size(),
		MTime: info.ModTime(),
		Hash:  hash,
	}, nil
}

// Open returns the file content for reading.
func (t *Tree) Open(path string) (io.ReadCloser, error) {
	f, err := t.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// WriteAtomic writes data to path via a temp file in the same directory plus
// rename, so readers and snapshots never observe partial content.
func (t *Tree) WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		if err := t.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", path, err)
		}
	}

	tmp, err := t.fs.TempFile(dir, tempPrefix)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", path, err)
	}

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		_ = t.fs.Remove(tmp.Name())
		return fmt.Errorf("write temp file for %s: %w", path, err)
	}
	if err = tmp.Close(); err != nil {
		_ = t.fs.Remove(tmp.Name())
		return fmt.Errorf("close temp file for %s: %w", path, err)
	}

	if err = t.fs.Rename(tmp.Name(), path); err != nil {
		_ = t.fs.Remove(tmp.Name())
		return fmt.Errorf("replace %s: %w", path, err)
	}

	return nil
}

// Remove deletes the file at path. Removing a missing file is not an error.
func (t *Tree) Remove(path string) error {
	if err := t.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", path, err)
	}
	return nil
}

// Rename moves a file inside the tree, creating the destination's parent
// directory when needed.
func (t *Tree) Rename(fromPath, toPath string) error {
	dir := filepath.Dir(toPath)
	if dir != "." && dir != "/" {
		if err := t.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create parent dir for %s: %w", toPath, err)
		}
	}
	if err := t.fs.Rename(fromPath, toPath); err != nil {
		return fmt.Errorf("rename %s to %s: %w", fromPath, toPath, err)
	}
	return nil
}

// Exists reports whether a file or directory exists at path.
func (t *Tree) Exists(path string) (bool, error) {
	_, err := t.fs.Stat(path)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
}

// ConflictCopyName derives the name a conflicting local copy is preserved
// under, e.g. "report (conflict copy 2026-08-31).txt". When that name is
// already taken a numeric suffix is added.
func (t *Tree) ConflictCopyName(path string, now time.Time) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	stamp := now.Format("2006-01-02")

	name := fmt.Sprintf("%s (conflict copy %s)%s", base, stamp, ext)
	for n := 2; ; n++ {
		if ok, _ := t.Exists(name); !ok {
			return name
		}
		name = fmt.Sprintf("%s (conflict copy %s %d)%s", base, stamp, n, ext)
	}
}

func (t *Tree) hashFile(path string) (string, error) {
	f, err := t.fs.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes returns the content hash used across the engine for in-memory
// data, matching Tree hashing.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalize(path string) string {
	path = filepath.ToSlash(path)
	return strings.TrimPrefix(path, "/")
}
