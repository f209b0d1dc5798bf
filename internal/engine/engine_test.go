package engine

import (
	"context"
	"testing"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intakehq/intake/internal/adapters/memory"
	"github.com/intakehq/intake/internal/store"
	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/registry"
	"github.com/intakehq/intake/pkg/workflow"
)

type fixture struct {
	engine  *Interpreter
	storage *memory.Storage
	queue   *memory.Queue
	store   *store.Store
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	storage := memory.NewStorage("engine", "downloads", "library")
	storage.Seed("downloads", "incoming/A.mp3", []byte("audio"))
	storage.Seed("downloads", "incoming/b.zip", []byte("archive"))
	storage.SeedDir("downloads", "incoming/empty")

	st := store.New(storage, "engine")
	queue := memory.NewQueue()
	opts = append([]Option{WithTuning(leanTuning())}, opts...)
	return &fixture{
		engine:  New(st, storage, queue, opts...),
		storage: storage,
		queue:   queue,
		store:   st,
	}
}

// leanTuning disables the stock optional steps so tests walk the mandatory
// chain only.
func leanTuning() *workflow.Tuning {
	disabled := false
	return &workflow.Tuning{
		SchemaVersion: 1,
		TargetRoot:    "library",
		Steps: map[string]workflow.StepTuning{
			"scan_options": {Enabled: &disabled},
			"probe_media":  {Enabled: &disabled},
			"tag_defaults": {Enabled: &disabled},
		},
	}
}

func (fx *fixture) walkToConfirm(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	env, err := fx.engine.StartSession(ctx, "downloads", "incoming")
	require.NoError(t, err)
	id := env.SessionID

	env, err = fx.engine.Submit(ctx, id, domain.StepSelectSources, map[string]any{"expression": "all"})
	require.NoError(t, err)
	require.Equal(t, domain.StepSelectUnits, env.StepID)

	env, err = fx.engine.Submit(ctx, id, domain.StepSelectUnits, map[string]any{"expression": "all"})
	require.NoError(t, err)
	require.Equal(t, domain.StepComputePlan, env.StepID)

	env, err = fx.engine.Submit(ctx, id, domain.StepComputePlan, map[string]any{})
	require.NoError(t, err)
	require.Equal(t, domain.StepSetConflictPolicy, env.StepID)

	env, err = fx.engine.Submit(ctx, id, domain.StepSetConflictPolicy, map[string]any{"policy": domain.PolicyAsk})
	require.NoError(t, err)
	require.Equal(t, domain.StepConfirmFinalize, env.StepID)
	return id
}

func TestStartSessionRendersFirstStep(t *testing.T) {
	fx := newFixture(t)

	env, err := fx.engine.StartSession(context.Background(), "downloads", "incoming")
	require.NoError(t, err)

	assert.Equal(t, domain.StepSelectSources, env.StepID)
	assert.Equal(t, domain.LifecycleActive, env.Lifecycle)
	assert.Len(t, env.Items, 3, "two files plus one empty directory")
	assert.Equal(t, "incoming/A.mp3", env.Items[0].Label)
	assert.Contains(t, env.AllowedActions, domain.ActionSubmit)
	assert.Contains(t, env.AllowedActions, domain.ActionPreview)

	sess, err := fx.store.LoadSession(context.Background(), env.SessionID)
	require.NoError(t, err)
	assert.Contains(t, sess.Fingerprints.Model, "sha256/v1:")
	assert.Contains(t, sess.Fingerprints.Discovery, "sha256/v1:")
	assert.Contains(t, sess.Fingerprints.Config, "sha256/v1:")
}

func TestFullWalkThroughToFinalize(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := fx.walkToConfirm(t)

	env, err := fx.engine.Submit(ctx, id, domain.StepConfirmFinalize, map[string]any{"confirmed": "yes"})
	require.NoError(t, err)
	assert.Equal(t, domain.StepProcess, env.StepID)
	assert.Equal(t, domain.LifecycleCompleted, env.Lifecycle)
	assert.True(t, env.Terminal)
	assert.Equal(t, []string{domain.ActionFinalize}, env.AllowedActions)

	batch, err := fx.engine.Finalize(ctx, id, true)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 2, "the empty directory yields no job")
	assert.Equal(t, "import.file", batch.Requests[0].Kind)
	assert.Equal(t, "import.bundle", batch.Requests[1].Kind)
	assert.Len(t, fx.queue.Created(), 2)

	again, err := fx.engine.Finalize(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, batch, again)
	assert.Len(t, fx.queue.Created(), 2, "repeat finalize creates nothing")
}

func TestRejectedInputDoesNotAdvance(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	env, err := fx.engine.StartSession(ctx, "downloads", "incoming")
	require.NoError(t, err)
	id := env.SessionID

	_, err = fx.engine.Submit(ctx, id, domain.StepSelectSources, map[string]any{"expression": "99"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.AsError(err).Code)

	state, err := fx.engine.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StepSelectSources, state.StepID, "session must not advance on error")
}

func TestSubmitWrongStepRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	env, err := fx.engine.StartSession(ctx, "downloads", "incoming")
	require.NoError(t, err)

	_, err = fx.engine.Submit(ctx, env.SessionID, domain.StepComputePlan, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.AsError(err).Code)

	_, err = fx.engine.Submit(ctx, env.SessionID, "no_such_step", map[string]any{})
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.AsError(err).Code)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.engine.State(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, domain.CodeNotFound, domain.AsError(err).Code)
}

func TestPreviewValidatesWithoutMutating(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	env, err := fx.engine.StartSession(ctx, "downloads", "incoming")
	require.NoError(t, err)
	id := env.SessionID

	env, err = fx.engine.Submit(ctx, id, domain.StepSelectSources, map[string]any{
		"action":     domain.ActionPreview,
		"expression": "1",
	})
	require.NoError(t, err)
	assert.Equal(t, "preview_ok", env.ActionStatus)
	assert.Equal(t, domain.StepSelectSources, env.StepID)

	sess, err := fx.store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, sess.Selections, "preview must not record selections")

	// Preview runs the same validation as submit.
	_, err = fx.engine.Submit(ctx, id, domain.StepSelectSources, map[string]any{
		"action":     domain.ActionPreview,
		"expression": "99",
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.AsError(err).Code)
}

func TestExplicitIDsKeepDiscoveryOrder(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	env, err := fx.engine.StartSession(ctx, "downloads", "incoming")
	require.NoError(t, err)
	id := env.SessionID

	_, err = fx.engine.Submit(ctx, id, domain.StepSelectSources, map[string]any{
		"ids": []any{
			"root:downloads|path:incoming/b.zip",
			"root:downloads|path:incoming/A.mp3",
		},
	})
	require.NoError(t, err)

	sess, err := fx.store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"root:downloads|path:incoming/A.mp3",
		"root:downloads|path:incoming/b.zip",
	}, sess.Selections[domain.StepSelectSources])
}

func TestConflictGatingAndResolution(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	// A target that already exists in the library.
	fx.storage.Seed("library", "incoming/A.mp3", []byte("old"))

	id := fx.walkToConfirm(t)

	env, err := fx.engine.Submit(ctx, id, domain.StepConfirmFinalize, map[string]any{"confirmed": "yes"})
	require.NoError(t, err)
	assert.Equal(t, domain.StepResolveConflicts, env.StepID)
	assert.Equal(t, domain.LifecycleWaiting, env.Lifecycle)
	assert.Equal(t, "conflicts_pending", env.ActionStatus)
	require.Len(t, env.Conflicts, 1)
	assert.Equal(t, "incoming/A.mp3", env.Conflicts[0].TargetPath)

	// An incomplete resolution is rejected and the session stays put.
	_, err = fx.engine.Submit(ctx, id, domain.StepResolveConflicts, map[string]any{
		"resolutions": map[string]any{"incoming/A.mp3": "shred"},
	})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.AsError(err).Code)

	env, err = fx.engine.Submit(ctx, id, domain.StepResolveConflicts, map[string]any{
		"resolutions": map[string]any{"incoming/A.mp3": domain.ResolveRename},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StepConfirmFinalize, env.StepID, "resolution returns to confirmation")

	env, err = fx.engine.Submit(ctx, id, domain.StepConfirmFinalize, map[string]any{"confirmed": "yes"})
	require.NoError(t, err)
	assert.Equal(t, domain.StepProcess, env.StepID)

	batch, err := fx.engine.Finalize(ctx, id, true)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 2)
	assert.Equal(t, "incoming/A (imported).mp3", batch.Requests[0].TargetPath)
}

func TestConfirmRequiresYes(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := fx.walkToConfirm(t)

	_, err := fx.engine.Submit(ctx, id, domain.StepConfirmFinalize, map[string]any{"confirmed": "no"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.AsError(err).Code)

	state, err := fx.engine.State(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StepConfirmFinalize, state.StepID)
}

func TestFinalizedSessionIsImmutable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := fx.walkToConfirm(t)

	_, err := fx.engine.Submit(ctx, id, domain.StepConfirmFinalize, map[string]any{"confirmed": "yes"})
	require.NoError(t, err)
	_, err = fx.engine.Finalize(ctx, id, true)
	require.NoError(t, err)

	_, err = fx.engine.Submit(ctx, id, domain.StepProcess, map[string]any{})
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.AsError(err).Code)
}

func TestChoiceStepRejectsUnknownPolicy(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	env, err := fx.engine.StartSession(ctx, "downloads", "incoming")
	require.NoError(t, err)
	id := env.SessionID

	_, err = fx.engine.Submit(ctx, id, domain.StepSelectSources, map[string]any{"expression": "all"})
	require.NoError(t, err)
	_, err = fx.engine.Submit(ctx, id, domain.StepSelectUnits, map[string]any{"expression": "all"})
	require.NoError(t, err)
	_, err = fx.engine.Submit(ctx, id, domain.StepComputePlan, map[string]any{})
	require.NoError(t, err)

	_, err = fx.engine.Submit(ctx, id, domain.StepSetConflictPolicy, map[string]any{"policy": "obliterate"})
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.AsError(err).Code)
}

func TestOperationStepExecutesThroughRegistry(t *testing.T) {
	reg := registry.New()
	manifest := domain.OperationManifest{
		Name: "probe_media",
		Mode: domain.ExecInline,
		Input: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"path"},
			Properties: openapi3.Schemas{
				"path": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}
	require.NoError(t, reg.Register(manifest, func(ctx context.Context, input map[string]any) (any, error) {
		return map[string]any{"codec": "mp3"}, nil
	}))

	disabled := false
	tun := leanTuning()
	tun.Steps["probe_media"] = workflow.StepTuning{}
	tun.Steps["scan_options"] = workflow.StepTuning{Enabled: &disabled}

	fx := newFixture(t, WithTuning(tun), WithRegistry(reg))
	ctx := context.Background()

	env, err := fx.engine.StartSession(ctx, "downloads", "incoming")
	require.NoError(t, err)
	id := env.SessionID

	_, err = fx.engine.Submit(ctx, id, domain.StepSelectSources, map[string]any{"expression": "all"})
	require.NoError(t, err)
	env, err = fx.engine.Submit(ctx, id, domain.StepSelectUnits, map[string]any{"expression": "all"})
	require.NoError(t, err)
	require.Equal(t, "probe_media", env.StepID)

	// Preview validates through the registry without executing.
	_, err = fx.engine.Submit(ctx, id, "probe_media", map[string]any{
		"action": domain.ActionPreview,
		"path":   7,
	})
	require.Error(t, err)

	env, err = fx.engine.Submit(ctx, id, "probe_media", map[string]any{"path": "incoming/A.mp3"})
	require.NoError(t, err)
	assert.Equal(t, domain.StepComputePlan, env.StepID)

	sess, err := fx.store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"codec": "mp3"}, sess.Derived["op:probe_media"])
}

func TestJobModeOperationCompilesSideJob(t *testing.T) {
	reg := registry.New()
	manifest := domain.OperationManifest{
		Name: "probe_media",
		Mode: domain.ExecJob,
		Input: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"path"},
			Properties: openapi3.Schemas{
				"path": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}
	// Job-mode operations run in the job subsystem and carry no handler.
	require.NoError(t, reg.Register(manifest, nil))

	tun := leanTuning()
	tun.Steps["probe_media"] = workflow.StepTuning{}

	fx := newFixture(t, WithTuning(tun), WithRegistry(reg))
	ctx := context.Background()

	walk := func() string {
		env, err := fx.engine.StartSession(ctx, "downloads", "incoming")
		require.NoError(t, err)
		id := env.SessionID
		_, err = fx.engine.Submit(ctx, id, domain.StepSelectSources, map[string]any{"expression": "all"})
		require.NoError(t, err)
		env, err = fx.engine.Submit(ctx, id, domain.StepSelectUnits, map[string]any{"expression": "all"})
		require.NoError(t, err)
		require.Equal(t, "probe_media", env.StepID)
		return id
	}
	id := walk()

	// Preview validates the input without enqueueing anything.
	_, err := fx.engine.Submit(ctx, id, "probe_media", map[string]any{
		"action": domain.ActionPreview,
		"path":   "incoming/A.mp3",
	})
	require.NoError(t, err)
	assert.Empty(t, fx.queue.Created())

	env, err := fx.engine.Submit(ctx, id, "probe_media", map[string]any{"path": "incoming/A.mp3"})
	require.NoError(t, err)
	assert.Equal(t, domain.StepComputePlan, env.StepID, "the session advances past the dispatched step")

	created := fx.queue.Created()
	require.Len(t, created, 1)
	assert.Equal(t, "operation.probe_media", created[0].Kind)
	assert.Contains(t, created[0].IdempotencyKey, "sha256/v1:")
	assert.Equal(t, "downloads", created[0].SourceRoot)
	assert.Equal(t, map[string]any{"path": "incoming/A.mp3"}, created[0].Payload)

	sess, err := fx.store.LoadSession(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "job-1", sess.Derived["op:probe_media"])

	// An identical second session resolves to the recorded job.
	other := walk()
	_, err = fx.engine.Submit(ctx, other, "probe_media", map[string]any{"path": "incoming/A.mp3"})
	require.NoError(t, err)
	assert.Len(t, fx.queue.Created(), 1, "duplicate side jobs must not be enqueued")

	sess, err = fx.store.LoadSession(ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "job-1", sess.Derived["op:probe_media"])
}

func TestDecisionLogRecordsTransitions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id := fx.walkToConfirm(t)

	decisions, err := fx.store.Decisions(ctx, id)
	require.NoError(t, err)
	require.Len(t, decisions, 4)
	assert.Equal(t, domain.StepSelectSources, decisions[0].StepID)
	assert.Equal(t, domain.StepSetConflictPolicy, decisions[3].StepID)
	assert.Equal(t, domain.ActionSubmit, decisions[0].Action)
}
