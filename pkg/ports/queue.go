package ports

import (
	"context"

	"github.com/intakehq/intake/pkg/domain"
)

// JobQueue is the consumed job-subsystem capability. Creation is write-once
// per idempotency key; the engine never retries internally, retry policy
// belongs to the subsystem behind this port.
type JobQueue interface {
	// Create enqueues a job request and returns its job ID. Calling Create
	// again with an already recorded idempotency key returns the original
	// job ID without creating a duplicate.
	Create(ctx context.Context, req domain.JobRequest) (string, error)
}
