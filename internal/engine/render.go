package engine

import (
	"context"

	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/workflow"
)

// render builds the uniform step envelope for the session's current step.
// Renderers consume only this; they never see step internals.
func (i *Interpreter) render(ctx context.Context, sess *domain.Session, snap *workflow.Snapshot, set *domain.DiscoverySet, status string) (*domain.Envelope, error) {
	step, ok := snap.Step(sess.CurrentStepID)
	if !ok {
		return nil, domain.Invariant("session points at unknown step",
			domain.Detail{Path: sess.CurrentStepID, Reason: "not in the frozen snapshot"})
	}

	env := &domain.Envelope{
		SessionID:      sess.ID,
		Lifecycle:      sess.Lifecycle,
		StepID:         step.ID,
		StepType:       step.Type,
		Title:          step.Title,
		Fields:         step.Fields,
		AllowedActions: allowedActions(step),
		ActionStatus:   status,
		Terminal:       step.Type == domain.StepTypeProcess,
	}

	switch step.Type {
	case domain.StepTypeSelection:
		for _, item := range i.selectable(step.ID, sess, set) {
			env.Items = append(env.Items, domain.ItemRef{
				ID:    item.ID,
				Label: item.Path,
				Kind:  string(item.Kind),
			})
		}
	case domain.StepTypeResolution:
		conflicts, err := i.outstandingConflicts(ctx, sess)
		if err != nil {
			return nil, err
		}
		env.Conflicts = conflicts
	}
	return env, nil
}

func allowedActions(step workflow.StepSpec) []string {
	switch step.Type {
	case domain.StepTypeProcess:
		return []string{domain.ActionFinalize}
	case domain.StepTypeCompute, domain.StepTypeResolution:
		return []string{domain.ActionSubmit}
	default:
		return []string{domain.ActionSubmit, domain.ActionPreview}
	}
}
