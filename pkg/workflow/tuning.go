package workflow

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
)

// StepTuning overrides presentation aspects of one step. It can enable or
// disable optional steps and replace field defaults, never step identity,
// ordering or phase.
type StepTuning struct {
	Enabled  *bool             `toml:"enabled,omitempty" json:"enabled,omitempty"`
	Defaults map[string]any    `toml:"defaults,omitempty" json:"defaults,omitempty"`
	Hints    map[string]string `toml:"hints,omitempty" json:"hints,omitempty"`
}

// Tuning is the non-structural tuning configuration.
type Tuning struct {
	SchemaVersion int                   `toml:"schema_version" json:"schema_version"`
	TargetRoot    string                `toml:"target_root,omitempty" json:"target_root,omitempty"`
	Steps         map[string]StepTuning `toml:"steps,omitempty" json:"steps,omitempty"`
}

// ParseTuning decodes a TOML tuning configuration.
func ParseTuning(data []byte) (*Tuning, error) {
	var tun Tuning
	if err := toml.Unmarshal(data, &tun); err != nil {
		return nil, fmt.Errorf("parse tuning config: %w", err)
	}
	if tun.SchemaVersion == 0 {
		tun.SchemaVersion = 1
	}
	return &tun, nil
}

// DefaultTuning returns the stock configuration: every optional step
// enabled, targets under the "library" root.
func DefaultTuning() *Tuning {
	return &Tuning{
		SchemaVersion: 1,
		TargetRoot:    "library",
		Steps:         map[string]StepTuning{},
	}
}
