package domain

// StepType constants define how the interpreter treats a step.
// Renderers never branch on these beyond generic presentation.
type StepType string

const (
	// StepTypeSelection collects a multi-item selection over a rendered list.
	StepTypeSelection StepType = "selection"
	// StepTypeForm collects plain field values.
	StepTypeForm StepType = "form"
	// StepTypeCompute derives values (e.g. the plan) without user input.
	StepTypeCompute StepType = "compute"
	// StepTypeChoice collects a single value out of a fixed option set.
	StepTypeChoice StepType = "choice"
	// StepTypeResolution resolves target conflicts and returns to confirmation.
	StepTypeResolution StepType = "resolution"
	// StepTypeConfirm is the terminal gate before processing.
	StepTypeConfirm StepType = "confirm"
	// StepTypeOperation invokes a callable operation from the registry.
	StepTypeOperation StepType = "operation"
	// StepTypeProcess is the terminal step; reaching it completes the session.
	StepTypeProcess StepType = "process"
)

// Mandatory step identifiers, in their mandated relative order. Optional
// steps may fill the gaps; mandatory steps can never be removed or reordered.
const (
	StepSelectSources     = "select_sources"
	StepSelectUnits       = "select_units"
	StepComputePlan       = "compute_plan"
	StepSetConflictPolicy = "set_conflict_policy"
	StepResolveConflicts  = "resolve_conflicts"
	StepConfirmFinalize   = "confirm_and_finalize"
	StepProcess           = "process"
)

// Allowed action names carried in the step envelope.
const (
	ActionSubmit   = "submit"
	ActionPreview  = "preview"
	ActionFinalize = "finalize"
)

// Field describes one input of a step, rendered generically by any front end.
type Field struct {
	Name     string   `json:"name"`
	Kind     string   `json:"kind"` // text, expression, choice, confirm
	Required bool     `json:"required,omitempty"`
	Default  any      `json:"default,omitempty"`
	Options  []string `json:"options,omitempty"`
	Hint     string   `json:"hint,omitempty"`
}

// ItemRef is a renderable reference to a selectable item. Order is the
// deterministic discovery order; selection expressions index into it 1-based.
type ItemRef struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// Envelope is the uniform step payload returned to every renderer.
// Renderers must render it generically and never branch on StepID.
type Envelope struct {
	SessionID      string     `json:"session_id"`
	Lifecycle      Lifecycle  `json:"lifecycle"`
	StepID         string     `json:"step_id"`
	StepType       StepType   `json:"step_type"`
	Title          string     `json:"title,omitempty"`
	Fields         []Field    `json:"fields,omitempty"`
	Items          []ItemRef  `json:"items,omitempty"`
	AllowedActions []string   `json:"allowed_actions"`
	Conflicts      []Conflict `json:"conflicts,omitempty"`
	Errors         []Detail   `json:"errors,omitempty"`
	ActionStatus   string     `json:"action_status,omitempty"`
	Terminal       bool       `json:"terminal"`
}
