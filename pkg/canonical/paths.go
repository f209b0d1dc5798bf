package canonical

import (
	"fmt"
	"strings"
)

// NormalizePath canonicalizes a path-like string: forward separators only,
// duplicate separators collapsed, no leading or trailing separator.
// Traversal segments are rejected, not resolved.
func NormalizePath(p string) (string, error) {
	p = strings.ReplaceAll(p, "\\", "/")
	segments := strings.Split(p, "/")
	cleaned := make([]string, 0, len(segments))
	for _, seg := range segments {
		switch seg {
		case "":
			// Collapses duplicate, leading and trailing separators.
			continue
		case ".", "..":
			return "", fmt.Errorf("path %q: traversal segment %q forbidden", p, seg)
		}
		cleaned = append(cleaned, seg)
	}
	return strings.Join(cleaned, "/"), nil
}

// ValidateRelPath checks that p is already a canonical relative path:
// non-empty segments, forward separators, no traversal, no leading
// separator.
func ValidateRelPath(p string) error {
	if p == "" {
		return fmt.Errorf("relative path is empty")
	}
	if strings.HasPrefix(p, "/") {
		return fmt.Errorf("path %q: leading separator forbidden", p)
	}
	normalized, err := NormalizePath(p)
	if err != nil {
		return err
	}
	if normalized != p {
		return fmt.Errorf("path %q: not in canonical form (want %q)", p, normalized)
	}
	return nil
}
