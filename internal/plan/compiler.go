// Package plan converts finalized session selections into the canonical
// plan and the idempotent job-request batch. Plan computation is a pure
// function of selections and discovery; finalize re-checks conflicts,
// derives idempotency keys and writes the batch exactly once.
package plan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"

	"github.com/intakehq/intake/pkg/canonical"
	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/ports"
	"github.com/intakehq/intake/pkg/workflow"
)

// Compiler builds plans and job batches for the interpreter.
type Compiler struct {
	store   ports.SessionStore
	storage ports.Storage
	queue   ports.JobQueue
	logger  *slog.Logger
}

// NewCompiler creates a Compiler.
func NewCompiler(store ports.SessionStore, storage ports.Storage, queue ports.JobQueue, logger *slog.Logger) *Compiler {
	return &Compiler{store: store, storage: storage, queue: queue, logger: logger}
}

// Compute derives the plan from the session's unit selection and the frozen
// discovery set. It is pure and deterministic: units are ordered by unit
// identity (byte-wise), targets mirror the source's relative path under the
// snapshot's target root.
func Compute(session *domain.Session, snap *workflow.Snapshot, set *domain.DiscoverySet) (*domain.Plan, error) {
	selected := session.Selections[domain.StepSelectUnits]
	result := &domain.Plan{}
	for _, id := range selected {
		item, ok := set.ItemByID(id)
		if !ok {
			return nil, domain.Invariant("selected unit missing from discovery set",
				domain.Detail{Path: id, Reason: "not discovered"})
		}
		if item.Kind == domain.ItemDir {
			continue
		}
		result.Units = append(result.Units, domain.PlanUnit{
			ID:         item.ID,
			SourceID:   item.ID,
			SourceKind: item.Kind,
			SourceRoot: item.Root,
			SourcePath: item.Path,
			TargetRoot: snap.TargetRoot,
			TargetPath: item.Path,
		})
	}
	sort.Slice(result.Units, func(i, j int) bool { return result.Units[i].ID < result.Units[j].ID })
	return result, nil
}

// ScanConflicts checks every planned target for collisions: an existing
// object at the target path, or another planned unit claiming the same
// target. Conflicts already resolved at the resolution step are excluded.
// The result is sorted by target path.
func (c *Compiler) ScanConflicts(ctx context.Context, p *domain.Plan, resolutions map[string]any) ([]domain.Conflict, error) {
	var conflicts []domain.Conflict
	claimed := make(map[string]string, len(p.Units))

	for _, unit := range p.Units {
		if _, resolved := resolutions[unit.TargetPath]; resolved {
			continue
		}
		if prior, dup := claimed[unit.TargetPath]; dup {
			conflicts = append(conflicts, domain.Conflict{
				TargetPath: unit.TargetPath,
				SourceUnit: unit.SourceID,
				Reason:     "duplicate target, also planned by " + prior,
			})
			continue
		}
		claimed[unit.TargetPath] = unit.SourceID

		exists, err := c.storage.Exists(ctx, unit.TargetRoot, unit.TargetPath)
		if err != nil {
			return nil, fmt.Errorf("conflict scan %s/%s: %w", unit.TargetRoot, unit.TargetPath, err)
		}
		if exists {
			conflicts = append(conflicts, domain.Conflict{
				TargetPath: unit.TargetPath,
				SourceUnit: unit.SourceID,
				Reason:     "target already exists",
			})
		}
	}

	sort.Slice(conflicts, func(i, j int) bool { return conflicts[i].TargetPath < conflicts[j].TargetPath })
	return conflicts, nil
}

// Finalize compiles the job-request batch for a session. In order: state
// check, conflict re-check, idempotency keys, duplicate-key skip, batch
// write, FINALIZED transition. It runs to completion or to a structured
// failure, never partially: the batch artifact is written atomically and the
// queue is write-once per key.
func (c *Compiler) Finalize(ctx context.Context, session *domain.Session, confirm bool) (*domain.JobRequestBatch, error) {
	if !confirm {
		return nil, domain.Validation("finalize requires confirm=true")
	}

	// A finalized session is immutable; repeating the call returns the
	// recorded batch without creating anything.
	if session.Lifecycle == domain.LifecycleFinalized {
		return c.store.LoadBatch(ctx, session.ID)
	}
	// The error state records a finalize that failed partway; retrying from
	// it is allowed, the write-once queue skips already created jobs.
	if session.Lifecycle != domain.LifecycleCompleted && session.Lifecycle != domain.LifecycleError {
		return nil, domain.Validation("session is not ready to finalize",
			domain.Detail{Path: session.ID, Reason: "lifecycle " + string(session.Lifecycle)})
	}

	p, err := c.store.LoadPlan(ctx, session.ID)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return nil, domain.Invariant("no plan computed for session",
				domain.Detail{Path: session.ID, Reason: "compute_plan has not run"})
		}
		return nil, err
	}

	policy := conflictPolicy(session)
	resolutions := resolutionAnswers(session)

	// Mandatory re-check immediately before compilation.
	conflicts, err := c.ScanConflicts(ctx, p, resolutions)
	if err != nil {
		return nil, err
	}
	if policy == domain.PolicyAsk && len(conflicts) > 0 {
		return nil, domain.ConflictsUnresolved("unresolved target conflicts block finalization", conflicts)
	}

	batch := &domain.JobRequestBatch{
		SessionID:         session.ID,
		ConfigFingerprint: session.Fingerprints.Config,
		SchemaVersion:     domain.JobBatchSchemaVersion,
	}

	conflicting := make(map[string]bool, len(conflicts))
	for _, conflict := range conflicts {
		conflicting[conflict.TargetPath] = true
	}

	// Targets kept as planned are claimed up front so renamed units cannot
	// land on them.
	claimed := make(map[string]bool, len(p.Units))
	for _, unit := range p.Units {
		switch resolveAction(unit, policy, resolutions, conflicting) {
		case domain.ResolveSkip, domain.ResolveRename:
		default:
			claimed[unit.TargetPath] = true
		}
	}

	for _, unit := range p.Units {
		action := resolveAction(unit, policy, resolutions, conflicting)
		if action == domain.ResolveSkip {
			continue
		}
		resolved := unit
		if action == domain.ResolveRename {
			target, err := c.alternateTarget(ctx, unit, claimed)
			if err != nil {
				return nil, err
			}
			claimed[target] = true
			resolved.TargetPath = target
		}

		key, err := canonical.Fingerprint(map[string]any{
			"unit":   resolved,
			"config": session.Fingerprints.Config,
		})
		if err != nil {
			return nil, fmt.Errorf("idempotency key for %s: %w", unit.ID, err)
		}

		batch.Requests = append(batch.Requests, domain.JobRequest{
			IdempotencyKey: key,
			Kind:           jobKind(unit),
			SourceRoot:     resolved.SourceRoot,
			SourcePath:     resolved.SourcePath,
			TargetRoot:     resolved.TargetRoot,
			TargetPath:     resolved.TargetPath,
		})
	}

	// The queue is write-once per key, so a retried finalize that already
	// created some of these jobs skips them here.
	for _, req := range batch.Requests {
		if _, err := c.queue.Create(ctx, req); err != nil {
			c.markError(ctx, session)
			return nil, fmt.Errorf("create job for %s: %w", req.SourcePath, err)
		}
	}

	if err := c.store.SaveBatch(ctx, session.ID, batch); err != nil {
		c.markError(ctx, session)
		return nil, err
	}

	session.Lifecycle = domain.LifecycleFinalized
	if err := c.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}

	if c.logger != nil {
		c.logger.Info("session finalized",
			"session_id", session.ID,
			"jobs", len(batch.Requests))
	}
	return batch, nil
}

// markError parks the session in the error state so a finalize that failed
// partway stays visible; Finalize accepts the state for retry.
func (c *Compiler) markError(ctx context.Context, session *domain.Session) {
	session.Lifecycle = domain.LifecycleError
	if err := c.store.SaveSession(ctx, session); err != nil && c.logger != nil {
		c.logger.Error("persist error lifecycle", "session_id", session.ID, "err", err)
	}
}

// resolveAction applies the conflict policy or an explicit resolution to a
// unit. Units whose target never conflicted keep their planned path.
func resolveAction(unit domain.PlanUnit, policy string, resolutions map[string]any, conflicting map[string]bool) string {
	if v, ok := resolutions[unit.TargetPath]; ok {
		action, _ := v.(string)
		return action
	}
	if conflicting[unit.TargetPath] {
		// Unresolved conflict under a non-ask policy falls back to it.
		return policy
	}
	return ""
}

// alternateTarget derives the rename target, bumping the counter until the
// candidate collides with neither another resolved target nor an existing
// object. Assignment order follows unit order, so the result is
// deterministic.
func (c *Compiler) alternateTarget(ctx context.Context, unit domain.PlanUnit, claimed map[string]bool) (string, error) {
	for n := 1; ; n++ {
		candidate := renamedTarget(unit.TargetPath, n)
		if claimed[candidate] {
			continue
		}
		exists, err := c.storage.Exists(ctx, unit.TargetRoot, candidate)
		if err != nil {
			return "", fmt.Errorf("rename scan %s/%s: %w", unit.TargetRoot, candidate, err)
		}
		if !exists {
			return candidate, nil
		}
	}
}

// renamedTarget derives the alternate target used by the rename policy:
// "dir/name.ext" becomes "dir/name (imported).ext", then
// "dir/name (imported 2).ext" and so on.
func renamedTarget(target string, n int) string {
	ext := path.Ext(target)
	stem := target[:len(target)-len(ext)]
	if n <= 1 {
		return stem + " (imported)" + ext
	}
	return fmt.Sprintf("%s (imported %d)%s", stem, n, ext)
}

func jobKind(unit domain.PlanUnit) string {
	if unit.SourceKind == domain.ItemBundle {
		return "import.bundle"
	}
	return "import.file"
}

func conflictPolicy(session *domain.Session) string {
	if v, ok := session.Answer(domain.StepSetConflictPolicy, "policy"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return domain.PolicyAsk
}

func resolutionAnswers(session *domain.Session) map[string]any {
	if answers, ok := session.Answers[domain.StepResolveConflicts]; ok {
		return answers
	}
	return map[string]any{}
}
