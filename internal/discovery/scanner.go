// Package discovery enumerates candidate source items for a session. The
// scan is read-only and produces the canonically ordered, deduplicated
// discovery set that phase 0 freezes.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/intakehq/intake/pkg/canonical"
	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/ports"
)

// archiveExtensions is the fixed set classifying an item as a bundle,
// matched case-insensitively.
var archiveExtensions = map[string]bool{
	".zip": true,
	".rar": true,
	".7z":  true,
	".tar": true,
	".gz":  true,
	".tgz": true,
	".iso": true,
}

// Scanner produces discovery sets through the storage port. It never
// creates, modifies or deletes anything under the scanned path.
type Scanner struct {
	storage ports.Storage
	logger  *slog.Logger
}

// NewScanner creates a Scanner over the given storage.
func NewScanner(storage ports.Storage, logger *slog.Logger) *Scanner {
	return &Scanner{storage: storage, logger: logger}
}

// Scan enumerates root under prefix and returns the ordered item list.
// Items are sorted byte-wise by (root, relative path, kind) and deduplicated
// by stable identifier. Directories appear as items only when empty; a
// populated directory is represented by its contents. Unreadable entries
// become skip records instead of aborting the scan.
func (s *Scanner) Scan(ctx context.Context, root, prefix string) (*domain.DiscoverySet, error) {
	if prefix != "" {
		normalized, err := canonical.NormalizePath(prefix)
		if err != nil {
			return nil, domain.Validation("invalid scan path", domain.Detail{Path: prefix, Reason: err.Error()})
		}
		prefix = normalized
	}

	entries, err := s.storage.List(ctx, root, prefix)
	if err != nil {
		return nil, fmt.Errorf("scan %s/%s: %w", root, prefix, err)
	}

	set := &domain.DiscoverySet{Root: root, Path: prefix}
	seen := make(map[string]bool, len(entries))
	populated := make(map[string]bool)

	for _, entry := range entries {
		if dir := path.Dir(entry.Path); dir != "." {
			populated[dir] = true
		}
	}

	for _, entry := range entries {
		if entry.Unreadable != "" {
			set.Skipped = append(set.Skipped, domain.Skip{Path: entry.Path, Reason: entry.Unreadable})
			continue
		}
		if entry.Dir && populated[entry.Path] {
			continue
		}

		item := domain.Item{
			ID:   itemID(root, entry.Path),
			Root: root,
			Path: entry.Path,
			Kind: classify(entry),
			Size: entry.Size,
		}
		if seen[item.ID] {
			continue
		}
		seen[item.ID] = true

		// Identity from stable metadata only; content is never hashed here.
		item.Fingerprint = canonical.MustFingerprint(map[string]any{
			"kind": item.Kind,
			"path": item.Path,
			"size": item.Size,
		})
		set.Items = append(set.Items, item)
	}

	sort.Slice(set.Items, func(i, j int) bool {
		a, b := set.Items[i], set.Items[j]
		if a.Root != b.Root {
			return a.Root < b.Root
		}
		if a.Path != b.Path {
			return a.Path < b.Path
		}
		return a.Kind < b.Kind
	})
	sort.Slice(set.Skipped, func(i, j int) bool { return set.Skipped[i].Path < set.Skipped[j].Path })

	if s.logger != nil {
		s.logger.Debug("discovery scan complete",
			"root", root, "path", prefix,
			"items", len(set.Items), "skipped", len(set.Skipped))
	}
	return set, nil
}

func classify(entry ports.Entry) domain.ItemKind {
	if entry.Dir {
		return domain.ItemDir
	}
	ext := strings.ToLower(path.Ext(entry.Path))
	if archiveExtensions[ext] {
		return domain.ItemBundle
	}
	return domain.ItemFile
}

func itemID(root, rel string) string {
	return fmt.Sprintf("root:%s|path:%s", root, rel)
}
