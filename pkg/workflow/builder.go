package workflow

import (
	"fmt"

	"github.com/intakehq/intake/pkg/domain"
)

// mandatory lists the steps every workflow must contain, in their mandated
// relative order, with their fixed types and phase numbers. Gaps may be
// filled with optional steps; mandatory steps can never be removed.
var mandatory = []struct {
	id    string
	typ   domain.StepType
	phase int
}{
	{domain.StepSelectSources, domain.StepTypeSelection, 0},
	{domain.StepSelectUnits, domain.StepTypeSelection, 1},
	{domain.StepComputePlan, domain.StepTypeCompute, 1},
	{domain.StepSetConflictPolicy, domain.StepTypeChoice, 2},
	{domain.StepConfirmFinalize, domain.StepTypeConfirm, 2},
	{domain.StepProcess, domain.StepTypeProcess, 3},
}

// Build merges a structural definition with a tuning configuration into one
// frozen effective snapshot. It is pure and deterministic: identical inputs
// produce a byte-identical snapshot. Any combination that removes a
// mandatory step, violates the mandated ordering, changes phase numbering,
// or brackets the mandatory chain is rejected with INVARIANT_VIOLATION.
func Build(def *Definition, tun *Tuning) (*Snapshot, error) {
	if def == nil {
		return nil, domain.Invariant("workflow definition is nil")
	}
	if tun == nil {
		tun = DefaultTuning()
	}

	if err := checkStructure(def); err != nil {
		return nil, err
	}

	snap := &Snapshot{
		Version:    def.Version,
		TargetRoot: tun.TargetRoot,
	}
	if snap.TargetRoot == "" {
		snap.TargetRoot = "library"
	}

	declaredResolution := false
	for _, sd := range def.Steps {
		if sd.ID == domain.StepResolveConflicts {
			declaredResolution = true
		}
		spec, err := buildStep(sd, tun)
		if err != nil {
			return nil, err
		}
		// The resolution step is system territory even when declared: it is
		// entered only through conflict gating, never by linear advance.
		if spec.ID == domain.StepResolveConflicts {
			if spec.Type != domain.StepTypeResolution {
				return nil, domain.Invariant("resolve_conflicts must have type resolution",
					domain.Detail{Path: spec.ID, Reason: string(spec.Type)})
			}
			spec.System = true
			spec.Mandatory = true
			spec.Enabled = true
		}
		snap.Steps = append(snap.Steps, spec)
	}

	if !declaredResolution {
		snap.Steps = injectResolution(snap.Steps)
	}

	if err := checkTuningIsNonStructural(def, tun); err != nil {
		return nil, err
	}
	return snap, nil
}

func buildStep(sd StepDef, tun *Tuning) (StepSpec, error) {
	spec := StepSpec{
		ID:        sd.ID,
		Type:      sd.Type,
		Title:     sd.Title,
		Phase:     sd.Phase,
		Mandatory: isMandatory(sd.ID),
		Enabled:   true,
		Operation: sd.Operation,
	}

	if sd.Type == domain.StepTypeOperation && sd.Operation == "" {
		return StepSpec{}, domain.Invariant("operation step has no operation binding",
			domain.Detail{Path: sd.ID, Reason: "missing operation name"})
	}

	st, tuned := tun.Steps[sd.ID]
	if tuned && st.Enabled != nil {
		if spec.Mandatory && !*st.Enabled {
			return StepSpec{}, domain.Invariant("tuning config disables a mandatory step",
				domain.Detail{Path: sd.ID, Reason: "mandatory steps cannot be disabled"})
		}
		spec.Enabled = *st.Enabled
	}

	for _, fd := range sd.Fields {
		field := domain.Field{
			Name:     fd.Name,
			Kind:     fd.Kind,
			Required: fd.Required,
			Default:  fd.Default,
			Options:  fd.Options,
			Hint:     fd.Hint,
		}
		if tuned {
			if v, ok := st.Defaults[fd.Name]; ok {
				field.Default = v
			}
			if h, ok := st.Hints[fd.Name]; ok {
				field.Hint = h
			}
		}
		spec.Fields = append(spec.Fields, field)
	}
	return spec, nil
}

func checkStructure(def *Definition) error {
	seen := make(map[string]bool, len(def.Steps))
	lastPhase := 0
	nextMandatory := 0

	for i, sd := range def.Steps {
		if sd.ID == "" {
			return domain.Invariant("step without id",
				domain.Detail{Path: fmt.Sprintf("steps[%d]", i), Reason: "missing id"})
		}
		if seen[sd.ID] {
			return domain.Invariant("duplicate step id",
				domain.Detail{Path: sd.ID, Reason: "declared twice"})
		}
		seen[sd.ID] = true

		if i == 0 && sd.ID != domain.StepSelectSources {
			return domain.Invariant("steps inserted before the first mandatory step",
				domain.Detail{Path: sd.ID, Reason: "workflow must start with " + domain.StepSelectSources})
		}

		if sd.Phase < lastPhase {
			return domain.Invariant("phase numbering decreases",
				domain.Detail{Path: sd.ID, Reason: fmt.Sprintf("phase %d after phase %d", sd.Phase, lastPhase)})
		}
		lastPhase = sd.Phase

		if m := mandatoryIndex(sd.ID); m >= 0 {
			if m != nextMandatory {
				return domain.Invariant("mandatory step out of order",
					domain.Detail{Path: sd.ID, Reason: fmt.Sprintf("expected %s next", mandatory[nextMandatory].id)})
			}
			if sd.Type != mandatory[m].typ {
				return domain.Invariant("mandatory step type changed",
					domain.Detail{Path: sd.ID, Reason: fmt.Sprintf("type %s, want %s", sd.Type, mandatory[m].typ)})
			}
			if sd.Phase != mandatory[m].phase {
				return domain.Invariant("mandatory step phase changed",
					domain.Detail{Path: sd.ID, Reason: fmt.Sprintf("phase %d, want %d", sd.Phase, mandatory[m].phase)})
			}
			nextMandatory++
		} else if sd.ID != domain.StepResolveConflicts && !sd.Optional {
			return domain.Invariant("non-mandatory step must be declared optional",
				domain.Detail{Path: sd.ID, Reason: "missing optional flag"})
		}
	}

	if nextMandatory != len(mandatory) {
		return domain.Invariant("mandatory step removed",
			domain.Detail{Path: mandatory[nextMandatory].id, Reason: "not present in definition"})
	}
	if def.Steps[len(def.Steps)-1].ID != domain.StepProcess {
		return domain.Invariant("steps inserted after the terminal step",
			domain.Detail{Path: def.Steps[len(def.Steps)-1].ID, Reason: "workflow must end with " + domain.StepProcess})
	}
	return nil
}

// checkTuningIsNonStructural rejects tuning entries that reference unknown
// steps or fields; anything structural is unreachable through Tuning's type,
// but dangling names usually indicate a misauthored config.
func checkTuningIsNonStructural(def *Definition, tun *Tuning) error {
	fields := make(map[string]map[string]bool, len(def.Steps))
	for _, sd := range def.Steps {
		names := make(map[string]bool, len(sd.Fields))
		for _, fd := range sd.Fields {
			names[fd.Name] = true
		}
		fields[sd.ID] = names
	}

	for stepID, st := range tun.Steps {
		names, ok := fields[stepID]
		if !ok && stepID != domain.StepResolveConflicts {
			return domain.Invariant("tuning config references unknown step",
				domain.Detail{Path: stepID, Reason: "no such step in definition"})
		}
		for fieldName := range st.Defaults {
			if !names[fieldName] {
				return domain.Invariant("tuning config overrides unknown field",
					domain.Detail{Path: stepID + "." + fieldName, Reason: "no such field in definition"})
			}
		}
	}
	return nil
}

func injectResolution(steps []StepSpec) []StepSpec {
	injected := make([]StepSpec, 0, len(steps)+1)
	for _, spec := range steps {
		if spec.ID == domain.StepConfirmFinalize {
			injected = append(injected, StepSpec{
				ID:        domain.StepResolveConflicts,
				Type:      domain.StepTypeResolution,
				Title:     "Resolve conflicts",
				Phase:     spec.Phase,
				Mandatory: true,
				Enabled:   true,
				System:    true,
			})
		}
		injected = append(injected, spec)
	}
	return injected
}

func isMandatory(id string) bool {
	return mandatoryIndex(id) >= 0
}

func mandatoryIndex(id string) int {
	for i, m := range mandatory {
		if m.id == id {
			return i
		}
	}
	return -1
}
