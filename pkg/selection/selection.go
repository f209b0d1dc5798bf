// Package selection parses the multi-item selection grammar used by
// selection steps: either the keyword "all" or a comma-separated list of
// 1-based integers and inclusive ranges, e.g. "1,3,5-8".
package selection

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/intakehq/intake/pkg/domain"
)

// Parse evaluates expr against a rendered list of n items and returns the
// selected indices, 1-based and ascending, so the result preserves the
// original item order. Whitespace is ignored and duplicates are removed.
// Out-of-range indices yield a VALIDATION_ERROR.
func Parse(expr string, n int) ([]int, error) {
	compact := strings.Join(strings.Fields(expr), "")
	if compact == "" {
		return nil, domain.Validation("selection expression is empty")
	}

	if strings.EqualFold(compact, "all") {
		indices := make([]int, n)
		for i := range indices {
			indices[i] = i + 1
		}
		return indices, nil
	}

	seen := make(map[int]bool)
	for _, part := range strings.Split(compact, ",") {
		lo, hi, err := parsePart(part)
		if err != nil {
			return nil, err
		}
		for i := lo; i <= hi; i++ {
			if i < 1 || i > n {
				return nil, domain.Validation(
					fmt.Sprintf("index %d out of range (list has %d items)", i, n),
					domain.Detail{Path: part, Reason: "out of range"},
				)
			}
			seen[i] = true
		}
	}

	indices := make([]int, 0, len(seen))
	for i := range seen {
		indices = append(indices, i)
	}
	sort.Ints(indices)
	return indices, nil
}

func parsePart(part string) (lo, hi int, err error) {
	if part == "" {
		return 0, 0, domain.Validation("empty selection segment",
			domain.Detail{Path: part, Reason: "expected an index or range"})
	}

	if before, after, found := strings.Cut(part, "-"); found {
		lo, err = parseIndex(before, part)
		if err != nil {
			return 0, 0, err
		}
		hi, err = parseIndex(after, part)
		if err != nil {
			return 0, 0, err
		}
		if hi < lo {
			return 0, 0, domain.Validation(
				fmt.Sprintf("range %q is descending", part),
				domain.Detail{Path: part, Reason: "range end before start"},
			)
		}
		return lo, hi, nil
	}

	lo, err = parseIndex(part, part)
	if err != nil {
		return 0, 0, err
	}
	return lo, lo, nil
}

func parseIndex(s, part string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, domain.Validation(
			fmt.Sprintf("%q is not a valid index", s),
			domain.Detail{Path: part, Reason: "expected a positive integer"},
		)
	}
	return v, nil
}

// Apply resolves expr against an ordered id list, returning the selected
// ids in their original order.
func Apply(expr string, ids []string) ([]string, error) {
	indices, err := Parse(expr, len(ids))
	if err != nil {
		return nil, err
	}
	selected := make([]string, 0, len(indices))
	for _, i := range indices {
		selected = append(selected, ids[i-1])
	}
	return selected, nil
}
