package domain

// Lifecycle is the session state machine position.
type Lifecycle string

const (
	LifecycleCreated Lifecycle = "created"
	LifecycleActive  Lifecycle = "active"
	LifecycleWaiting Lifecycle = "waiting_for_action"
	// LifecycleError marks a session whose finalize failed partway, for
	// example on a job-subsystem write. Rejected step submissions never
	// enter it: they mutate a clone and leave the stored session untouched.
	// Finalize accepts the state so the compilation can be retried.
	LifecycleError     Lifecycle = "error"
	LifecycleCompleted Lifecycle = "completed"
	// LifecycleFinalized is terminal and immutable: any further mutation
	// attempt is a contract violation.
	LifecycleFinalized Lifecycle = "finalized"
)

// FingerprintTriple deterministically identifies a session: the effective
// workflow model, the discovery set and the tuning configuration. Identical
// triples plus identical validated answers compile to byte-identical job
// batches.
type FingerprintTriple struct {
	Model     string `json:"model"`
	Discovery string `json:"discovery"`
	Config    string `json:"config"`
}

// Session is the live unit of work. It is owned exclusively by the
// interpreter during its active lifetime and persisted after every
// transition. The ID is volatile (uuid) and excluded from canonical
// serializations; identity across restarts is the fingerprint triple.
type Session struct {
	ID            string            `json:"id"`
	CurrentStepID string            `json:"current_step_id"`
	Lifecycle     Lifecycle         `json:"lifecycle"`
	Fingerprints  FingerprintTriple `json:"fingerprints"`

	SourceRoot string `json:"source_root"`
	SourcePath string `json:"source_path"`

	// Answers holds validated, canonicalized inputs keyed by step ID.
	Answers map[string]map[string]any `json:"answers"`
	// Selections holds chosen item IDs keyed by step ID, in discovery order.
	Selections map[string][]string `json:"selections"`
	// Derived holds computed values (never user input) keyed by name.
	Derived map[string]any `json:"derived"`

	// History tracks accepted step transitions for inspection.
	History []string `json:"history"`
}

// NewSession creates a fresh session positioned at the first step.
// It starts in the created state and becomes active on first render.
func NewSession(id, startStepID string) *Session {
	return &Session{
		ID:            id,
		CurrentStepID: startStepID,
		Lifecycle:     LifecycleCreated,
		Answers:       make(map[string]map[string]any),
		Selections:    make(map[string][]string),
		Derived:       make(map[string]any),
		History:       []string{startStepID},
	}
}

// Clone returns a deep copy safe for speculative mutation. The interpreter
// mutates a clone and persists it only after the transition succeeds, so an
// error result never changes the stored session.
func (s *Session) Clone() *Session {
	next := *s
	next.Answers = make(map[string]map[string]any, len(s.Answers))
	for step, fields := range s.Answers {
		copied := make(map[string]any, len(fields))
		for k, v := range fields {
			copied[k] = v
		}
		next.Answers[step] = copied
	}
	next.Selections = make(map[string][]string, len(s.Selections))
	for step, ids := range s.Selections {
		next.Selections[step] = append([]string(nil), ids...)
	}
	next.Derived = make(map[string]any, len(s.Derived))
	for k, v := range s.Derived {
		next.Derived[k] = v
	}
	next.History = append([]string(nil), s.History...)
	return &next
}

// Answer returns a validated answer value for a step field, if present.
func (s *Session) Answer(stepID, field string) (any, bool) {
	fields, ok := s.Answers[stepID]
	if !ok {
		return nil, false
	}
	v, ok := fields[field]
	return v, ok
}

// SetAnswer records a validated answer for a step field.
func (s *Session) SetAnswer(stepID, field string, value any) {
	if s.Answers[stepID] == nil {
		s.Answers[stepID] = make(map[string]any)
	}
	s.Answers[stepID][field] = value
}

// Mutable reports whether the session may still be modified.
func (s *Session) Mutable() bool {
	return s.Lifecycle != LifecycleFinalized
}
