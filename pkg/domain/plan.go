package domain

// Conflict policies selectable at the set_conflict_policy step.
const (
	PolicyOverwrite = "overwrite"
	PolicySkip      = "skip"
	PolicyRename    = "rename"
	// PolicyAsk gates finalization on interactive conflict resolution.
	PolicyAsk = "ask"
)

// ConflictPolicies lists the valid policy values in presentation order.
var ConflictPolicies = []string{PolicyAsk, PolicyOverwrite, PolicyRename, PolicySkip}

// PlanUnit is one planned processing unit: a source item and its proposed
// target. ID is the unit identity used for ordering and idempotency keys.
type PlanUnit struct {
	ID         string   `json:"id"`
	SourceID   string   `json:"source_id"`
	SourceKind ItemKind `json:"source_kind"`
	SourceRoot string   `json:"source_root"`
	SourcePath string   `json:"source_path"`
	TargetRoot string   `json:"target_root"`
	TargetPath string   `json:"target_path"`
}

// Plan is the list of planned units, ordered by unit identity. It is created
// and updated only by the plan-compute step.
type Plan struct {
	Units []PlanUnit `json:"units"`
}

// Conflict describes a planned target that collides with an existing path or
// another planned unit.
type Conflict struct {
	TargetPath string `json:"target_path"`
	SourceUnit string `json:"source_unit"`
	Reason     string `json:"reason"`
}

// Resolution names accepted per-conflict answers at the resolution step.
const (
	ResolveOverwrite = "overwrite"
	ResolveSkip      = "skip"
	ResolveRename    = "rename"
)

// JobRequest is one background-processing request. IdempotencyKey is a
// deterministic function of unit identity and the canonical effective
// configuration; the job subsystem treats creation as write-once per key.
type JobRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Kind           string `json:"kind"`
	SourceRoot     string `json:"source_root"`
	SourcePath     string `json:"source_path"`
	TargetRoot     string `json:"target_root"`
	TargetPath     string `json:"target_path"`

	// Payload carries the validated input of a job-mode callable operation.
	// Import jobs leave it empty.
	Payload map[string]any `json:"payload,omitempty"`
}

// JobBatchSchemaVersion versions the persisted batch layout.
const JobBatchSchemaVersion = 1

// JobRequestBatch is the canonical job list compiled by a successful
// finalize, created exactly once per session.
type JobRequestBatch struct {
	SessionID         string       `json:"session_id"`
	ConfigFingerprint string       `json:"config_fingerprint"`
	SchemaVersion     int          `json:"schema_version"`
	Requests          []JobRequest `json:"requests"`
}
