package workflow

import (
	"github.com/intakehq/intake/pkg/domain"
)

// StepSpec is one step of the effective snapshot: the merged, frozen view
// the interpreter executes against.
type StepSpec struct {
	ID        string          `json:"id"`
	Type      domain.StepType `json:"type"`
	Title     string          `json:"title,omitempty"`
	Phase     int             `json:"phase"`
	Mandatory bool            `json:"mandatory"`
	Enabled   bool            `json:"enabled"`
	System    bool            `json:"system,omitempty"` // entered only by the interpreter, never by linear advance
	Operation string          `json:"operation,omitempty"`
	Fields    []domain.Field  `json:"fields,omitempty"`
}

// Snapshot is the effective workflow: Definition merged with Tuning, frozen
// at session creation. Once a session exists its snapshot is immutable
// regardless of later edits to the sources.
type Snapshot struct {
	Version    int        `json:"version"`
	TargetRoot string     `json:"target_root"`
	Steps      []StepSpec `json:"steps"`
}

// Step returns the spec for a step ID.
func (s *Snapshot) Step(id string) (StepSpec, bool) {
	for _, step := range s.Steps {
		if step.ID == id {
			return step, true
		}
	}
	return StepSpec{}, false
}

// First returns the ID of the first enabled step.
func (s *Snapshot) First() string {
	for _, step := range s.Steps {
		if step.Enabled && !step.System {
			return step.ID
		}
	}
	return ""
}

// NextEnabled returns the step following afterID, skipping disabled optional
// steps and system steps. ok is false when afterID is terminal or unknown.
func (s *Snapshot) NextEnabled(afterID string) (string, bool) {
	idx := -1
	for i, step := range s.Steps {
		if step.ID == afterID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", false
	}
	for _, step := range s.Steps[idx+1:] {
		if step.Enabled && !step.System {
			return step.ID, true
		}
	}
	return "", false
}

// Terminal reports whether the step is the terminal processing step.
func (s *Snapshot) Terminal(id string) bool {
	step, ok := s.Step(id)
	return ok && step.Type == domain.StepTypeProcess
}
