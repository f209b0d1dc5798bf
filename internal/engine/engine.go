// Package engine is the workflow interpreter. It owns session lifecycle and
// step transitions: every submission is validated against the frozen
// snapshot, applied to a clone of the session and persisted only when the
// transition succeeds, so a rejected input never changes stored state.
package engine

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"

	"github.com/intakehq/intake/internal/discovery"
	"github.com/intakehq/intake/internal/logging"
	"github.com/intakehq/intake/internal/plan"
	"github.com/intakehq/intake/pkg/canonical"
	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/ports"
	"github.com/intakehq/intake/pkg/registry"
	"github.com/intakehq/intake/pkg/session"
	"github.com/intakehq/intake/pkg/workflow"
)

// Interpreter drives sessions through the effective workflow snapshot. It is
// the single writer for any session it owns; concurrent calls for the same
// session serialize through the lock manager.
type Interpreter struct {
	store    ports.SessionStore
	storage  ports.Storage
	queue    ports.JobQueue
	registry ports.OperationRegistry
	locks    *session.Manager
	scanner  *discovery.Scanner
	compiler *plan.Compiler

	def    *workflow.Definition
	tun    *workflow.Tuning
	logger *slog.Logger
}

// Option configures the Interpreter.
type Option func(*Interpreter)

// WithDefinition replaces the built-in workflow definition.
func WithDefinition(def *workflow.Definition) Option {
	return func(i *Interpreter) { i.def = def }
}

// WithTuning replaces the default tuning configuration.
func WithTuning(tun *workflow.Tuning) Option {
	return func(i *Interpreter) { i.tun = tun }
}

// WithRegistry installs the callable-operation registry.
func WithRegistry(reg ports.OperationRegistry) Option {
	return func(i *Interpreter) { i.registry = reg }
}

// WithLockManager replaces the default in-process lock manager, typically to
// add a distributed locker for multi-replica deployments.
func WithLockManager(locks *session.Manager) Option {
	return func(i *Interpreter) { i.locks = locks }
}

// WithLogger configures structured logging.
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) { i.logger = logger }
}

// New creates an Interpreter over the given persistence ports.
func New(store ports.SessionStore, storage ports.Storage, queue ports.JobQueue, opts ...Option) *Interpreter {
	i := &Interpreter{
		store:    store,
		storage:  storage,
		queue:    queue,
		registry: registry.New(),
		def:      workflow.DefaultDefinition(),
		tun:      workflow.DefaultTuning(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(i)
	}
	if i.locks == nil {
		i.locks = session.NewManager(session.WithLogger(i.logger))
	}
	i.scanner = discovery.NewScanner(storage, i.logger)
	i.compiler = plan.NewCompiler(store, storage, queue, i.logger)
	return i
}

// StartSession builds the effective snapshot, scans the source path and
// creates a new session positioned at the first step. The snapshot, tuning
// and discovery set are frozen at this point; later edits to the workflow
// sources never affect this session.
func (i *Interpreter) StartSession(ctx context.Context, sourceRoot, sourcePath string) (*domain.Envelope, error) {
	snap, err := workflow.Build(i.def, i.tun)
	if err != nil {
		return nil, err
	}
	set, err := i.scanner.Scan(ctx, sourceRoot, sourcePath)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(set.Items))
	for _, item := range set.Items {
		ids = append(ids, item.ID)
	}
	// The model fingerprint covers the snapshot after enrichment with the
	// rendered item list, so two sessions are model-identical only when they
	// present the same steps over the same items.
	model, err := canonical.Fingerprint(map[string]any{"snapshot": snap, "items": ids})
	if err != nil {
		return nil, err
	}
	discoveryFP, err := canonical.Fingerprint(set)
	if err != nil {
		return nil, err
	}
	configFP, err := canonical.Fingerprint(i.tun)
	if err != nil {
		return nil, err
	}

	sess := domain.NewSession(uuid.NewString(), snap.First())
	sess.SourceRoot = sourceRoot
	sess.SourcePath = set.Path
	sess.Fingerprints = domain.FingerprintTriple{
		Model:     model,
		Discovery: discoveryFP,
		Config:    configFP,
	}

	if err := i.store.SaveSnapshot(ctx, sess.ID, snap); err != nil {
		return nil, err
	}
	if err := i.store.SaveTuning(ctx, sess.ID, i.tun); err != nil {
		return nil, err
	}
	if err := i.store.SaveDiscovery(ctx, sess.ID, set); err != nil {
		return nil, err
	}

	sess.Lifecycle = domain.LifecycleActive
	if err := i.store.SaveSession(ctx, sess); err != nil {
		return nil, err
	}

	i.logger.Info("session started",
		"session_id", sess.ID,
		"source", sourceRoot+"/"+set.Path,
		"items", len(set.Items),
		"skipped", len(set.Skipped))
	return i.render(ctx, sess, snap, set, "")
}

// State renders the current step of an existing session without mutating it.
func (i *Interpreter) State(ctx context.Context, sessionID string) (*domain.Envelope, error) {
	sess, snap, set, err := i.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return i.render(ctx, sess, snap, set, "")
}

// Sessions lists all known session IDs.
func (i *Interpreter) Sessions(ctx context.Context) ([]string, error) {
	return i.store.List(ctx)
}

// Submit applies a payload to the session's current step. On success the
// session advances and the next step is rendered; on failure the stored
// session is untouched and the structured error is returned.
func (i *Interpreter) Submit(ctx context.Context, sessionID, stepID string, payload map[string]any) (*domain.Envelope, error) {
	var env *domain.Envelope
	err := i.locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		var err error
		env, err = i.submit(ctx, sessionID, stepID, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return env, nil
}

// Finalize compiles the job-request batch for a completed session. Repeating
// the call on a finalized session returns the recorded batch unchanged.
func (i *Interpreter) Finalize(ctx context.Context, sessionID string, confirm bool) (*domain.JobRequestBatch, error) {
	var batch *domain.JobRequestBatch
	err := i.locks.WithLock(ctx, sessionID, func(ctx context.Context) error {
		sess, err := i.store.LoadSession(ctx, sessionID)
		if err != nil {
			return notFound(err, sessionID)
		}
		batch, err = i.compiler.Finalize(ctx, sess, confirm)
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// submission is the fixed part of a step payload; step fields are read from
// the raw map since their names are step-defined.
type submission struct {
	Action      string            `mapstructure:"action"`
	Expression  string            `mapstructure:"expression"`
	IDs         []string          `mapstructure:"ids"`
	Resolutions map[string]string `mapstructure:"resolutions"`
}

func (i *Interpreter) submit(ctx context.Context, sessionID, stepID string, payload map[string]any) (*domain.Envelope, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	sess, snap, set, err := i.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Mutable() {
		return nil, domain.Invariant("finalized session is immutable",
			domain.Detail{Path: sessionID, Reason: "lifecycle " + string(sess.Lifecycle)})
	}

	step, ok := snap.Step(stepID)
	if !ok {
		return nil, domain.NotFound("unknown step " + stepID)
	}
	if stepID != sess.CurrentStepID {
		return nil, domain.Validation("step is not the session's current step",
			domain.Detail{Path: stepID, Reason: "current step is " + sess.CurrentStepID})
	}

	var sub submission
	if err := mapstructure.Decode(payload, &sub); err != nil {
		return nil, domain.Validation("malformed payload", domain.Detail{Path: stepID, Reason: err.Error()})
	}
	if sub.Action == "" {
		sub.Action = domain.ActionSubmit
	}

	switch sub.Action {
	case domain.ActionPreview:
		// Preview runs the full validation path against a throwaway clone and
		// never persists, advances or produces jobs.
		probe := sess.Clone()
		if _, err := i.apply(ctx, probe, step, snap, set, payload, sub, true); err != nil {
			return nil, err
		}
		return i.render(ctx, sess, snap, set, "preview_ok")
	case domain.ActionSubmit:
	default:
		return nil, domain.Validation("unknown action "+sub.Action,
			domain.Detail{Path: stepID, Reason: "expected submit or preview"})
	}

	clone := sess.Clone()
	next, err := i.apply(ctx, clone, step, snap, set, payload, sub, false)
	if err != nil {
		return nil, err
	}

	status := "advanced"
	clone.CurrentStepID = next
	clone.History = append(clone.History, next)
	switch {
	case snap.Terminal(next):
		clone.Lifecycle = domain.LifecycleCompleted
	case next == domain.StepResolveConflicts:
		clone.Lifecycle = domain.LifecycleWaiting
		status = "conflicts_pending"
	default:
		clone.Lifecycle = domain.LifecycleActive
	}

	decision := ports.Decision{
		Seq:    len(clone.History),
		StepID: stepID,
		Action: sub.Action,
		Fields: clone.Answers[stepID],
	}
	if err := i.store.AppendDecision(ctx, sessionID, decision); err != nil {
		return nil, err
	}
	if err := i.store.SaveSession(ctx, clone); err != nil {
		return nil, err
	}

	i.logger.Info("step accepted",
		"session_id", sessionID,
		"step_id", stepID,
		"next", next,
		"lifecycle", clone.Lifecycle)
	return i.render(ctx, clone, snap, set, status)
}

func (i *Interpreter) load(ctx context.Context, sessionID string) (*domain.Session, *workflow.Snapshot, *domain.DiscoverySet, error) {
	sess, err := i.store.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, notFound(err, sessionID)
	}
	snap, err := i.store.LoadSnapshot(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, notFound(err, sessionID)
	}
	set, err := i.store.LoadDiscovery(ctx, sessionID)
	if err != nil {
		return nil, nil, nil, notFound(err, sessionID)
	}
	return sess, snap, set, nil
}

func notFound(err error, sessionID string) error {
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.NotFound("unknown session " + sessionID)
	}
	return err
}
