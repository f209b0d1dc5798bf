package ports

import (
	"context"

	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/workflow"
)

// SessionStore persists sessions and their derived artifacts, enabling
// resume after restarts and crashes. Implementations must write atomically.
// Returns domain.ErrSessionNotFound for unknown session IDs.
type SessionStore interface {
	// SaveSession persists the live session state.
	SaveSession(ctx context.Context, session *domain.Session) error
	// LoadSession retrieves a session by ID.
	LoadSession(ctx context.Context, sessionID string) (*domain.Session, error)
	// List returns all known session IDs in byte-wise sorted order.
	List(ctx context.Context) ([]string, error)

	// SaveSnapshot freezes the effective workflow snapshot for a session.
	SaveSnapshot(ctx context.Context, sessionID string, snap *workflow.Snapshot) error
	// LoadSnapshot retrieves the frozen snapshot. Later edits to the source
	// definition or config never affect it.
	LoadSnapshot(ctx context.Context, sessionID string) (*workflow.Snapshot, error)

	// SaveTuning freezes the effective tuning configuration for a session.
	SaveTuning(ctx context.Context, sessionID string, tun *workflow.Tuning) error
	// LoadTuning retrieves the frozen tuning configuration.
	LoadTuning(ctx context.Context, sessionID string) (*workflow.Tuning, error)

	// SaveDiscovery persists the phase-0 discovery set.
	SaveDiscovery(ctx context.Context, sessionID string, set *domain.DiscoverySet) error
	// LoadDiscovery retrieves the discovery set.
	LoadDiscovery(ctx context.Context, sessionID string) (*domain.DiscoverySet, error)

	// SavePlan persists the computed plan.
	SavePlan(ctx context.Context, sessionID string, plan *domain.Plan) error
	// LoadPlan retrieves the computed plan, or domain.ErrSessionNotFound if
	// the plan step has not run.
	LoadPlan(ctx context.Context, sessionID string) (*domain.Plan, error)

	// SaveBatch persists the final job-request batch.
	SaveBatch(ctx context.Context, sessionID string, batch *domain.JobRequestBatch) error
	// LoadBatch retrieves the batch of an already finalized session.
	LoadBatch(ctx context.Context, sessionID string) (*domain.JobRequestBatch, error)

	// AppendDecision records one accepted transition in the append-only
	// per-session decision log.
	AppendDecision(ctx context.Context, sessionID string, decision Decision) error
}

// Decision is one entry of the append-only decision log.
type Decision struct {
	Seq    int            `json:"seq"`
	StepID string         `json:"step_id"`
	Action string         `json:"action"`
	Fields map[string]any `json:"fields,omitempty"`
}
