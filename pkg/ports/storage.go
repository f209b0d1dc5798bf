package ports

import "context"

// Entry is one listed storage object. Path is relative to the root, with
// forward separators. Entries the lister could not read carry the reason in
// Unreadable instead of aborting the whole listing.
type Entry struct {
	Path       string
	Dir        bool
	Size       int64
	Unreadable string
}

// Storage is the named-root file storage capability. All engine artifacts
// are addressed as (root, relativePath) pairs, never absolute filesystem
// paths. Implementations must list deterministically (byte-wise sorted by
// path) and write atomically (write-temporary-then-rename), so a crash
// mid-write never yields a partially-written artifact.
type Storage interface {
	// List enumerates entries under prefix within root, recursively, in
	// byte-wise lexicographic path order.
	List(ctx context.Context, root, prefix string) ([]Entry, error)

	// Read returns the full content of a stored object.
	Read(ctx context.Context, root, path string) ([]byte, error)

	// Write atomically replaces the object at path with data.
	Write(ctx context.Context, root, path string, data []byte) error

	// Append atomically extends the object at path with data, creating it
	// if absent. Used for the per-session decision log.
	Append(ctx context.Context, root, path string, data []byte) error

	// Exists reports whether an object or directory is present at path.
	Exists(ctx context.Context, root, path string) (bool, error)

	// Checksum returns a stable content checksum for the object at path.
	Checksum(ctx context.Context, root, path string) (string, error)
}
