package ports

import (
	"context"

	"github.com/intakehq/intake/pkg/domain"
)

// OperationRegistry is the consumed plugin capability. Callable operations
// are discovered only through this interface, never by scanning a
// filesystem.
type OperationRegistry interface {
	// List returns the manifests of all callable operations, sorted by name.
	List() []domain.OperationManifest

	// Manifest returns the manifest for a named operation. The interpreter
	// branches on its mode to run inline or compile a side job.
	Manifest(name string) (domain.OperationManifest, bool)

	// Execute runs an inline operation after input validation, bounded by
	// the manifest limits, and validates its result before returning it.
	Execute(ctx context.Context, name string, input map[string]any) (any, error)

	// Validate checks input against the operation's input schema without
	// executing anything. Used by the preview mode.
	Validate(name string, input map[string]any) error
}
