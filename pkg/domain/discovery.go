package domain

// ItemKind classifies a discovered source item.
type ItemKind string

const (
	ItemFile ItemKind = "file"
	ItemDir  ItemKind = "dir"
	// ItemBundle is an archive, classified by case-insensitive extension
	// match against a fixed set.
	ItemBundle ItemKind = "bundle"
)

// Item is one discovered candidate. ID is derived deterministically from its
// location (`root:<root>|path:<rel>`), never generated randomly. Fingerprint
// is based on stable metadata, not full-content hashing.
type Item struct {
	ID          string   `json:"id"`
	Root        string   `json:"root"`
	Path        string   `json:"path"` // relative, forward separators
	Kind        ItemKind `json:"kind"`
	Size        int64    `json:"size"`
	Fingerprint string   `json:"fingerprint"`
}

// Skip records an entry the scanner could not read. Unreadable entries never
// abort a scan.
type Skip struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// DiscoverySet is the canonically ordered, deduplicated item list for one
// session, created once at phase 0 and never mutated afterward. Items are
// ordered byte-wise lexicographically by (root, path, kind); byte-wise
// ordering is deliberate, locale collation would be nondeterministic across
// environments.
type DiscoverySet struct {
	Root    string `json:"root"`
	Path    string `json:"path"`
	Items   []Item `json:"items"`
	Skipped []Skip `json:"skipped,omitempty"`
}

// ItemByID returns the item with the given stable identifier.
func (d *DiscoverySet) ItemByID(id string) (Item, bool) {
	for _, item := range d.Items {
		if item.ID == id {
			return item, true
		}
	}
	return Item{}, false
}
