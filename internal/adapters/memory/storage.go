// Package memory provides in-memory implementations of the storage and job
// queue ports for tests and examples.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/intakehq/intake/pkg/canonical"
	"github.com/intakehq/intake/pkg/ports"
)

// Storage is a thread-safe in-memory named-root object store.
type Storage struct {
	mu    sync.RWMutex
	roots map[string]map[string][]byte
}

// NewStorage creates an empty Storage with the given root names.
func NewStorage(roots ...string) *Storage {
	s := &Storage{roots: make(map[string]map[string][]byte, len(roots))}
	for _, name := range roots {
		s.roots[name] = make(map[string][]byte)
	}
	return s
}

// Seed stores an object directly, creating the root if needed. Test helper.
func (s *Storage) Seed(root, path string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roots[root] == nil {
		s.roots[root] = make(map[string][]byte)
	}
	s.roots[root][path] = append([]byte(nil), data...)
}

// SeedDir records an empty directory marker. Test helper.
func (s *Storage) SeedDir(root, path string) {
	s.Seed(root, path+"/", nil)
}

func (s *Storage) objects(root string) (map[string][]byte, error) {
	objs, ok := s.roots[root]
	if !ok {
		return nil, fmt.Errorf("unknown storage root %q", root)
	}
	return objs, nil
}

// List returns entries under prefix in byte-wise path order. Directories are
// derived from object paths plus explicit empty-directory markers.
func (s *Storage) List(ctx context.Context, root, prefix string) ([]ports.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objs, err := s.objects(root)
	if err != nil {
		return nil, err
	}

	dirs := make(map[string]bool)
	files := make(map[string]int64)
	for path, data := range objs {
		if strings.HasSuffix(path, "/") {
			dirs[strings.TrimSuffix(path, "/")] = true
			continue
		}
		files[path] = int64(len(data))
		for d := parent(path); d != ""; d = parent(d) {
			dirs[d] = true
		}
	}

	var entries []ports.Entry
	for path, size := range files {
		if underPrefix(path, prefix) {
			entries = append(entries, ports.Entry{Path: path, Size: size})
		}
	}
	for path := range dirs {
		if underPrefix(path, prefix) {
			entries = append(entries, ports.Entry{Path: path, Dir: true})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

func parent(path string) string {
	if i := strings.LastIndex(path, "/"); i > 0 {
		return path[:i]
	}
	return ""
}

func underPrefix(path, prefix string) bool {
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

// Read returns the content of a stored object.
func (s *Storage) Read(ctx context.Context, root, path string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objs, err := s.objects(root)
	if err != nil {
		return nil, err
	}
	data, ok := objs[path]
	if !ok {
		return nil, fmt.Errorf("read %s/%s: %w", root, path, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// Write replaces the object at path.
func (s *Storage) Write(ctx context.Context, root, path string, data []byte) error {
	if err := canonical.ValidateRelPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	objs, err := s.objects(root)
	if err != nil {
		return err
	}
	objs[path] = append([]byte(nil), data...)
	return nil
}

// Append extends the object at path, creating it if absent.
func (s *Storage) Append(ctx context.Context, root, path string, data []byte) error {
	if err := canonical.ValidateRelPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	objs, err := s.objects(root)
	if err != nil {
		return err
	}
	objs[path] = append(objs[path], data...)
	return nil
}

// Exists reports whether an object or derived directory is present.
func (s *Storage) Exists(ctx context.Context, root, path string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objs, err := s.objects(root)
	if err != nil {
		return false, err
	}
	if _, ok := objs[path]; ok {
		return true, nil
	}
	for stored := range objs {
		if strings.HasPrefix(stored, path+"/") {
			return true, nil
		}
	}
	return false, nil
}

// Checksum returns the sha256 content checksum of a stored object.
func (s *Storage) Checksum(ctx context.Context, root, path string) (string, error) {
	data, err := s.Read(ctx, root, path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}
