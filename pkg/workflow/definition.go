package workflow

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/intakehq/intake/pkg/domain"
)

// FieldDef declares one input field of a step.
type FieldDef struct {
	Name     string   `yaml:"name" json:"name"`
	Kind     string   `yaml:"kind" json:"kind"`
	Required bool     `yaml:"required,omitempty" json:"required,omitempty"`
	Default  any      `yaml:"default,omitempty" json:"default,omitempty"`
	Options  []string `yaml:"options,omitempty" json:"options,omitempty"`
	Hint     string   `yaml:"hint,omitempty" json:"hint,omitempty"`
}

// StepDef declares one step of the structural workflow.
type StepDef struct {
	ID        string          `yaml:"id" json:"id"`
	Type      domain.StepType `yaml:"type" json:"type"`
	Title     string          `yaml:"title,omitempty" json:"title,omitempty"`
	Phase     int             `yaml:"phase" json:"phase"`
	Optional  bool            `yaml:"optional,omitempty" json:"optional,omitempty"`
	Operation string          `yaml:"operation,omitempty" json:"operation,omitempty"`
	Fields    []FieldDef      `yaml:"fields,omitempty" json:"fields,omitempty"`
}

// Definition is the structural workflow: ordered steps, types, phases and
// callable-operation bindings. It is authored independently of any session;
// edits affect only future sessions.
type Definition struct {
	Version int       `yaml:"version" json:"version"`
	Steps   []StepDef `yaml:"steps" json:"steps"`
}

// ParseDefinition decodes a YAML workflow definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("parse workflow definition: %w", err)
	}
	return &def, nil
}

// DefaultDefinition returns the built-in import wizard: the mandatory chain
// plus the stock optional steps.
func DefaultDefinition() *Definition {
	return &Definition{
		Version: 1,
		Steps: []StepDef{
			{
				ID:    domain.StepSelectSources,
				Type:  domain.StepTypeSelection,
				Title: "Select sources",
				Phase: 0,
				Fields: []FieldDef{
					{Name: "expression", Kind: "expression", Required: true, Default: "all",
						Hint: "item numbers, ranges (5-8) or 'all'"},
				},
			},
			{
				ID:       "scan_options",
				Type:     domain.StepTypeForm,
				Title:    "Scan options",
				Phase:    0,
				Optional: true,
				Fields: []FieldDef{
					{Name: "include_hidden", Kind: "confirm", Default: "no"},
				},
			},
			{
				ID:    domain.StepSelectUnits,
				Type:  domain.StepTypeSelection,
				Title: "Select units to import",
				Phase: 1,
				Fields: []FieldDef{
					{Name: "expression", Kind: "expression", Required: true, Default: "all",
						Hint: "item numbers, ranges (5-8) or 'all'"},
				},
			},
			{
				ID:        "probe_media",
				Type:      domain.StepTypeOperation,
				Title:     "Probe selected media",
				Phase:     1,
				Optional:  true,
				Operation: "probe_media",
			},
			{
				ID:    domain.StepComputePlan,
				Type:  domain.StepTypeCompute,
				Title: "Compute import plan",
				Phase: 1,
			},
			{
				ID:    domain.StepSetConflictPolicy,
				Type:  domain.StepTypeChoice,
				Title: "Conflict policy",
				Phase: 2,
				Fields: []FieldDef{
					{Name: "policy", Kind: "choice", Required: true,
						Default: domain.PolicyAsk, Options: domain.ConflictPolicies},
				},
			},
			{
				ID:       "tag_defaults",
				Type:     domain.StepTypeForm,
				Title:    "Default tags",
				Phase:    2,
				Optional: true,
				Fields: []FieldDef{
					{Name: "genre", Kind: "text"},
					{Name: "compilation", Kind: "confirm", Default: "no"},
				},
			},
			{
				ID:    domain.StepConfirmFinalize,
				Type:  domain.StepTypeConfirm,
				Title: "Confirm and finalize",
				Phase: 2,
				Fields: []FieldDef{
					{Name: "confirmed", Kind: "confirm", Required: true, Default: "no"},
				},
			},
			{
				ID:    domain.StepProcess,
				Type:  domain.StepTypeProcess,
				Title: "Processing",
				Phase: 3,
			},
		},
	}
}
