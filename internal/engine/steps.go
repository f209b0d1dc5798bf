package engine

import (
	"context"
	"fmt"
	"strings"

	"github.com/intakehq/intake/internal/plan"
	"github.com/intakehq/intake/pkg/canonical"
	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/selection"
	"github.com/intakehq/intake/pkg/workflow"
)

// apply validates a submission against one step and mutates the session
// clone accordingly, returning the ID of the step to advance to. This file
// is the only place that branches on step identity; everything downstream
// sees the generic envelope.
func (i *Interpreter) apply(ctx context.Context, sess *domain.Session, step workflow.StepSpec, snap *workflow.Snapshot, set *domain.DiscoverySet, payload map[string]any, sub submission, preview bool) (string, error) {
	switch step.Type {
	case domain.StepTypeSelection:
		if err := i.applySelection(sess, step, set, sub, preview); err != nil {
			return "", err
		}
	case domain.StepTypeForm, domain.StepTypeChoice:
		if err := applyFields(sess, step, payload, preview); err != nil {
			return "", err
		}
	case domain.StepTypeOperation:
		if err := i.applyOperation(ctx, sess, step, payload, preview); err != nil {
			return "", err
		}
	case domain.StepTypeCompute:
		if err := i.applyCompute(ctx, sess, snap, set, preview); err != nil {
			return "", err
		}
	case domain.StepTypeConfirm:
		return i.applyConfirm(ctx, sess, snap, step, payload, preview)
	case domain.StepTypeResolution:
		return i.applyResolution(ctx, sess, sub, preview)
	case domain.StepTypeProcess:
		return "", domain.Validation("the processing step accepts no submissions",
			domain.Detail{Path: step.ID, Reason: "finalize the session instead"})
	default:
		return "", domain.Invariant("unknown step type",
			domain.Detail{Path: step.ID, Reason: string(step.Type)})
	}

	next, ok := snap.NextEnabled(step.ID)
	if !ok {
		return "", domain.Invariant("no enabled step after "+step.ID)
	}
	return next, nil
}

// selectable returns the item list a selection step renders and selects
// over, in discovery order.
func (i *Interpreter) selectable(stepID string, sess *domain.Session, set *domain.DiscoverySet) []domain.Item {
	switch stepID {
	case domain.StepSelectUnits:
		picked := make(map[string]bool)
		for _, id := range sess.Selections[domain.StepSelectSources] {
			picked[id] = true
		}
		var items []domain.Item
		for _, item := range set.Items {
			// Empty directories carry no importable content.
			if picked[item.ID] && item.Kind != domain.ItemDir {
				items = append(items, item)
			}
		}
		return items
	default:
		return set.Items
	}
}

func (i *Interpreter) applySelection(sess *domain.Session, step workflow.StepSpec, set *domain.DiscoverySet, sub submission, preview bool) error {
	items := i.selectable(step.ID, sess, set)
	if len(items) == 0 {
		return domain.Validation("nothing to select",
			domain.Detail{Path: step.ID, Reason: "the rendered list is empty"})
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	var chosen []string
	switch {
	case len(sub.IDs) > 0:
		index := make(map[string]bool, len(ids))
		for _, id := range ids {
			index[id] = true
		}
		want := make(map[string]bool, len(sub.IDs))
		for _, id := range sub.IDs {
			if !index[id] {
				return domain.Validation("unknown item id",
					domain.Detail{Path: id, Reason: "not in the rendered list"})
			}
			want[id] = true
		}
		// Recorded selections keep discovery order regardless of input order.
		for _, id := range ids {
			if want[id] {
				chosen = append(chosen, id)
			}
		}
	default:
		expr := sub.Expression
		if expr == "" {
			expr = fieldDefault(step, "expression")
		}
		var err error
		chosen, err = selection.Apply(expr, ids)
		if err != nil {
			return err
		}
	}

	if len(chosen) == 0 {
		return domain.Validation("selection is empty", domain.Detail{Path: step.ID, Reason: "select at least one item"})
	}
	if preview {
		return nil
	}
	sess.Selections[step.ID] = chosen
	if sub.Expression != "" {
		sess.SetAnswer(step.ID, "expression", sub.Expression)
	}
	return nil
}

// applyFields validates and records form and choice inputs. All field
// failures are collected into one VALIDATION_ERROR so the renderer can show
// them together.
func applyFields(sess *domain.Session, step workflow.StepSpec, payload map[string]any, preview bool) error {
	values := make(map[string]any, len(step.Fields))
	var details []domain.Detail

	for _, field := range step.Fields {
		value, given := payload[field.Name]
		if !given || value == nil || value == "" {
			value = field.Default
		}
		if value == nil || value == "" {
			if field.Required {
				details = append(details, domain.Detail{Path: field.Name, Reason: "required"})
			}
			continue
		}

		switch field.Kind {
		case "confirm":
			normalized, err := normalizeConfirm(value)
			if err != nil {
				details = append(details, domain.Detail{Path: field.Name, Reason: err.Error()})
				continue
			}
			values[field.Name] = normalized
		case "choice":
			s, ok := value.(string)
			if !ok || !contains(field.Options, s) {
				details = append(details, domain.Detail{
					Path:   field.Name,
					Reason: fmt.Sprintf("must be one of %s", strings.Join(field.Options, ", ")),
				})
				continue
			}
			values[field.Name] = s
		default:
			values[field.Name] = value
		}
	}

	if len(details) > 0 {
		return domain.Validation("invalid field values", details...)
	}
	if preview {
		return nil
	}
	for name, value := range values {
		sess.SetAnswer(step.ID, name, value)
	}
	return nil
}

func (i *Interpreter) applyOperation(ctx context.Context, sess *domain.Session, step workflow.StepSpec, payload map[string]any, preview bool) error {
	input := make(map[string]any, len(payload))
	for k, v := range payload {
		if k != "action" {
			input[k] = v
		}
	}
	manifest, ok := i.registry.Manifest(step.Operation)
	if !ok {
		return domain.NotFound(fmt.Sprintf("unknown operation %q", step.Operation))
	}
	if preview {
		return i.registry.Validate(step.Operation, input)
	}

	if manifest.Mode == domain.ExecJob {
		jobID, err := i.dispatchSideJob(ctx, sess, manifest, input)
		if err != nil {
			return err
		}
		sess.Derived["op:"+step.Operation] = jobID
		return nil
	}

	result, err := i.registry.Execute(ctx, step.Operation, input)
	if err != nil {
		return err
	}
	sess.Derived["op:"+step.Operation] = result
	return nil
}

// dispatchSideJob compiles a job-mode operation into a queue request. The
// idempotency key excludes the volatile session ID, so an identical session
// resolves to the already recorded job instead of enqueueing a duplicate.
func (i *Interpreter) dispatchSideJob(ctx context.Context, sess *domain.Session, manifest domain.OperationManifest, input map[string]any) (string, error) {
	if err := i.registry.Validate(manifest.Name, input); err != nil {
		return "", err
	}
	key, err := canonical.Fingerprint(map[string]any{
		"operation": manifest.Name,
		"input":     input,
		"discovery": sess.Fingerprints.Discovery,
		"config":    sess.Fingerprints.Config,
	})
	if err != nil {
		return "", fmt.Errorf("idempotency key for operation %q: %w", manifest.Name, err)
	}
	jobID, err := i.queue.Create(ctx, domain.JobRequest{
		IdempotencyKey: key,
		Kind:           "operation." + manifest.Name,
		SourceRoot:     sess.SourceRoot,
		SourcePath:     sess.SourcePath,
		Payload:        input,
	})
	if err != nil {
		return "", fmt.Errorf("create side job for operation %q: %w", manifest.Name, err)
	}
	i.logger.Info("side job dispatched",
		"session_id", sess.ID,
		"operation", manifest.Name,
		"job_id", jobID)
	return jobID, nil
}

func (i *Interpreter) applyCompute(ctx context.Context, sess *domain.Session, snap *workflow.Snapshot, set *domain.DiscoverySet, preview bool) error {
	p, err := plan.Compute(sess, snap, set)
	if err != nil {
		return err
	}
	fp, err := canonical.Fingerprint(p)
	if err != nil {
		return err
	}
	if preview {
		return nil
	}
	if err := i.store.SavePlan(ctx, sess.ID, p); err != nil {
		return err
	}
	sess.Derived["plan_fingerprint"] = fp
	sess.Derived["plan_units"] = len(p.Units)
	return nil
}

// applyConfirm gates finalization: under the ask policy a conflict scan runs
// over the planned targets, and any hit diverts the session to the
// resolution step instead of advancing.
func (i *Interpreter) applyConfirm(ctx context.Context, sess *domain.Session, snap *workflow.Snapshot, step workflow.StepSpec, payload map[string]any, preview bool) (string, error) {
	confirmed, err := normalizeConfirm(payload["confirmed"])
	if err != nil {
		return "", domain.Validation("invalid confirmation", domain.Detail{Path: "confirmed", Reason: err.Error()})
	}
	if confirmed != "yes" {
		return "", domain.Validation("confirmation required",
			domain.Detail{Path: "confirmed", Reason: "answer yes to proceed"})
	}
	if preview {
		return step.ID, nil
	}
	sess.SetAnswer(step.ID, "confirmed", "yes")

	if policy(sess) == domain.PolicyAsk {
		conflicts, err := i.outstandingConflicts(ctx, sess)
		if err != nil {
			return "", err
		}
		if len(conflicts) > 0 {
			return domain.StepResolveConflicts, nil
		}
	}

	next, ok := snap.NextEnabled(step.ID)
	if !ok {
		return "", domain.Invariant("no enabled step after " + step.ID)
	}
	return next, nil
}

// applyResolution records per-conflict answers and returns the session to
// the confirmation step. Every outstanding conflict must be addressed with a
// valid action.
func (i *Interpreter) applyResolution(ctx context.Context, sess *domain.Session, sub submission, preview bool) (string, error) {
	if len(sub.Resolutions) == 0 {
		return "", domain.Validation("no resolutions provided",
			domain.Detail{Path: domain.StepResolveConflicts, Reason: "map target paths to overwrite, skip or rename"})
	}

	conflicts, err := i.outstandingConflicts(ctx, sess)
	if err != nil {
		return "", err
	}
	outstanding := make(map[string]bool, len(conflicts))
	for _, c := range conflicts {
		outstanding[c.TargetPath] = true
	}

	var details []domain.Detail
	for target, action := range sub.Resolutions {
		if !outstanding[target] {
			details = append(details, domain.Detail{Path: target, Reason: "no such conflict"})
			continue
		}
		switch action {
		case domain.ResolveOverwrite, domain.ResolveSkip, domain.ResolveRename:
		default:
			details = append(details, domain.Detail{Path: target, Reason: "unknown action " + action})
		}
	}
	for _, c := range conflicts {
		if _, ok := sub.Resolutions[c.TargetPath]; !ok {
			details = append(details, domain.Detail{Path: c.TargetPath, Reason: "unresolved"})
		}
	}
	if len(details) > 0 {
		return "", domain.Validation("incomplete conflict resolution", details...)
	}
	if preview {
		return domain.StepConfirmFinalize, nil
	}

	for target, action := range sub.Resolutions {
		sess.SetAnswer(domain.StepResolveConflicts, target, action)
	}
	return domain.StepConfirmFinalize, nil
}

// outstandingConflicts scans planned targets, excluding conflicts the
// session has already resolved.
func (i *Interpreter) outstandingConflicts(ctx context.Context, sess *domain.Session) ([]domain.Conflict, error) {
	p, err := i.store.LoadPlan(ctx, sess.ID)
	if err != nil {
		return nil, notFound(err, sess.ID)
	}
	return i.compiler.ScanConflicts(ctx, p, resolutions(sess))
}

func policy(sess *domain.Session) string {
	if v, ok := sess.Answer(domain.StepSetConflictPolicy, "policy"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return domain.PolicyAsk
}

func resolutions(sess *domain.Session) map[string]any {
	if answers, ok := sess.Answers[domain.StepResolveConflicts]; ok {
		return answers
	}
	return map[string]any{}
}

func fieldDefault(step workflow.StepSpec, name string) string {
	for _, field := range step.Fields {
		if field.Name == name {
			if s, ok := field.Default.(string); ok {
				return s
			}
		}
	}
	return ""
}

func normalizeConfirm(value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "no", nil
	case bool:
		if v {
			return "yes", nil
		}
		return "no", nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "y", "yes", "true", "1":
			return "yes", nil
		case "", "n", "no", "false", "0":
			return "no", nil
		}
		return "", fmt.Errorf("%q is not a yes/no answer", v)
	default:
		return "", fmt.Errorf("expected a yes/no answer")
	}
}

func contains(options []string, value string) bool {
	for _, option := range options {
		if option == value {
			return true
		}
	}
	return false
}
