// Package fsroot implements the named-root storage port on the local
// filesystem. Roots are configured directories; all paths handed to callers
// are relative with forward separators, and all writes are atomic
// (write-temporary-then-rename).
package fsroot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/intakehq/intake/pkg/canonical"
	"github.com/intakehq/intake/pkg/ports"
)

// Storage maps root names to local directories.
type Storage struct {
	roots map[string]string
}

// New creates a Storage over the given root name to directory mapping.
func New(roots map[string]string) *Storage {
	copied := make(map[string]string, len(roots))
	for name, dir := range roots {
		copied[name] = dir
	}
	return &Storage{roots: copied}
}

func (s *Storage) dir(root string) (string, error) {
	dir, ok := s.roots[root]
	if !ok {
		return "", fmt.Errorf("unknown storage root %q", root)
	}
	return dir, nil
}

func (s *Storage) resolve(root, path string) (string, error) {
	dir, err := s.dir(root)
	if err != nil {
		return "", err
	}
	if path == "" {
		return dir, nil
	}
	if err := canonical.ValidateRelPath(path); err != nil {
		return "", fmt.Errorf("root %q: %w", root, err)
	}
	return filepath.Join(dir, filepath.FromSlash(path)), nil
}

// List walks root under prefix and returns entries in byte-wise path order.
// Unreadable entries are reported in place, never aborting the walk.
func (s *Storage) List(ctx context.Context, root, prefix string) ([]ports.Entry, error) {
	base, err := s.resolve(root, prefix)
	if err != nil {
		return nil, err
	}
	rootDir, err := s.dir(root)
	if err != nil {
		return nil, err
	}

	var entries []ports.Entry
	walkErr := filepath.WalkDir(base, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		rel, relErr := filepath.Rel(rootDir, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)
		if rel == "." || path == base {
			return nil
		}

		if err != nil {
			entries = append(entries, ports.Entry{Path: rel, Unreadable: err.Error()})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		entry := ports.Entry{Path: rel, Dir: d.IsDir()}
		if !d.IsDir() {
			info, infoErr := d.Info()
			if infoErr != nil {
				entry.Unreadable = infoErr.Error()
			} else {
				entry.Size = info.Size()
			}
		}
		entries = append(entries, entry)
		return nil
	})
	if walkErr != nil {
		if os.IsNotExist(walkErr) {
			return nil, fmt.Errorf("root %q: path %q: %w", root, prefix, os.ErrNotExist)
		}
		return nil, fmt.Errorf("list %s/%s: %w", root, prefix, walkErr)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Read returns the content of a stored object.
func (s *Storage) Read(ctx context.Context, root, path string) ([]byte, error) {
	full, err := s.resolve(root, path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return nil, fmt.Errorf("read %s/%s: %w", root, path, err)
	}
	return data, nil
}

// Write atomically replaces the object at path. The temporary file lives in
// the target directory so the final rename stays on one filesystem.
func (s *Storage) Write(ctx context.Context, root, path string, data []byte) error {
	full, err := s.resolve(root, path)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure dir for %s/%s: %w", root, path, err)
	}

	tmp, err := os.CreateTemp(dir, ".intake-*")
	if err != nil {
		return fmt.Errorf("create temp for %s/%s: %w", root, path, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp for %s/%s: %w", root, path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp for %s/%s: %w", root, path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp for %s/%s: %w", root, path, err)
	}
	if err := os.Rename(tmpName, full); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename into %s/%s: %w", root, path, err)
	}
	return nil
}

// Append extends the object at path, keeping the atomic-replace guarantee by
// rewriting the whole object through a temporary file.
func (s *Storage) Append(ctx context.Context, root, path string, data []byte) error {
	existing, err := s.Read(ctx, root, path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return s.Write(ctx, root, path, append(existing, data...))
}

// Exists reports whether an object or directory is present at path.
func (s *Storage) Exists(ctx context.Context, root, path string) (bool, error) {
	full, err := s.resolve(root, path)
	if err != nil {
		return false, err
	}
	_, statErr := os.Stat(full)
	if statErr == nil {
		return true, nil
	}
	if os.IsNotExist(statErr) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s/%s: %w", root, path, statErr)
}

// Checksum returns the sha256 content checksum of the object at path.
func (s *Storage) Checksum(ctx context.Context, root, path string) (string, error) {
	data, err := s.Read(ctx, root, path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
