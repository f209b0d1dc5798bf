package plan

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/intakehq/intake/internal/adapters/memory"
	"github.com/intakehq/intake/internal/store"
	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/workflow"
)

func fixtureSet() *domain.DiscoverySet {
	return &domain.DiscoverySet{
		Root: "downloads",
		Path: "incoming",
		Items: []domain.Item{
			{ID: "root:downloads|path:incoming/a.mp3", Root: "downloads", Path: "incoming/a.mp3", Kind: domain.ItemFile, Size: 10},
			{ID: "root:downloads|path:incoming/b.zip", Root: "downloads", Path: "incoming/b.zip", Kind: domain.ItemBundle, Size: 20},
			{ID: "root:downloads|path:incoming/empty", Root: "downloads", Path: "incoming/empty", Kind: domain.ItemDir},
		},
	}
}

func fixtureSession(selected ...string) *domain.Session {
	s := domain.NewSession("s1", domain.StepSelectSources)
	s.Lifecycle = domain.LifecycleCompleted
	s.Fingerprints.Config = "sha256/v1:cfg"
	s.Selections[domain.StepSelectUnits] = selected
	return s
}

func TestComputeOrdersByUnitIdentity(t *testing.T) {
	snap := &workflow.Snapshot{TargetRoot: "library"}
	session := fixtureSession(
		"root:downloads|path:incoming/b.zip",
		"root:downloads|path:incoming/a.mp3",
		"root:downloads|path:incoming/empty",
	)

	p, err := Compute(session, snap, fixtureSet())
	require.NoError(t, err)
	require.Len(t, p.Units, 2, "directories contribute no units")
	assert.Equal(t, "root:downloads|path:incoming/a.mp3", p.Units[0].ID)
	assert.Equal(t, "root:downloads|path:incoming/b.zip", p.Units[1].ID)
	assert.Equal(t, "library", p.Units[0].TargetRoot)
	assert.Equal(t, "incoming/a.mp3", p.Units[0].TargetPath)
}

func TestComputeRejectsUnknownUnit(t *testing.T) {
	snap := &workflow.Snapshot{TargetRoot: "library"}
	session := fixtureSession("root:downloads|path:incoming/ghost.mp3")

	_, err := Compute(session, snap, fixtureSet())
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvariant, domain.AsError(err).Code)
}

func TestScanConflictsDetectsExistingAndDuplicateTargets(t *testing.T) {
	storage := memory.NewStorage("library")
	storage.Seed("library", "incoming/a.mp3", []byte("old"))
	c := NewCompiler(nil, storage, nil, nil)

	p := &domain.Plan{Units: []domain.PlanUnit{
		{ID: "u1", SourceID: "u1", TargetRoot: "library", TargetPath: "incoming/a.mp3"},
		{ID: "u2", SourceID: "u2", TargetRoot: "library", TargetPath: "incoming/c.mp3"},
		{ID: "u3", SourceID: "u3", TargetRoot: "library", TargetPath: "incoming/c.mp3"},
	}}

	conflicts, err := c.ScanConflicts(context.Background(), p, nil)
	require.NoError(t, err)
	require.Len(t, conflicts, 2)
	assert.Equal(t, "incoming/a.mp3", conflicts[0].TargetPath)
	assert.Equal(t, "incoming/c.mp3", conflicts[1].TargetPath)
	assert.Equal(t, "u3", conflicts[1].SourceUnit)
}

func TestScanConflictsSkipsResolvedTargets(t *testing.T) {
	storage := memory.NewStorage("library")
	storage.Seed("library", "incoming/a.mp3", []byte("old"))
	c := NewCompiler(nil, storage, nil, nil)

	p := &domain.Plan{Units: []domain.PlanUnit{
		{ID: "u1", SourceID: "u1", TargetRoot: "library", TargetPath: "incoming/a.mp3"},
	}}
	resolutions := map[string]any{"incoming/a.mp3": domain.ResolveOverwrite}

	conflicts, err := c.ScanConflicts(context.Background(), p, resolutions)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

type finalizeFixture struct {
	compiler *Compiler
	store    *store.Store
	queue    *memory.Queue
	session  *domain.Session
}

func newFinalizeFixture(t *testing.T, session *domain.Session) *finalizeFixture {
	t.Helper()
	storage := memory.NewStorage("engine", "library")
	st := store.New(storage, "engine")
	queue := memory.NewQueue()

	snap := &workflow.Snapshot{TargetRoot: "library"}
	p, err := Compute(session, snap, fixtureSet())
	require.NoError(t, err)
	require.NoError(t, st.SavePlan(context.Background(), session.ID, p))
	require.NoError(t, st.SaveSession(context.Background(), session))

	return &finalizeFixture{
		compiler: NewCompiler(st, storage, queue, nil),
		store:    st,
		queue:    queue,
		session:  session,
	}
}

func TestFinalizeCompilesDeterministicBatch(t *testing.T) {
	session := fixtureSession(
		"root:downloads|path:incoming/a.mp3",
		"root:downloads|path:incoming/b.zip",
	)
	session.SetAnswer(domain.StepSetConflictPolicy, "policy", domain.PolicyAsk)
	fx := newFinalizeFixture(t, session)

	batch, err := fx.compiler.Finalize(context.Background(), session, true)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 2)

	assert.Equal(t, "s1", batch.SessionID)
	assert.Equal(t, domain.JobBatchSchemaVersion, batch.SchemaVersion)
	assert.Equal(t, "import.file", batch.Requests[0].Kind)
	assert.Equal(t, "import.bundle", batch.Requests[1].Kind)
	for _, req := range batch.Requests {
		assert.Contains(t, req.IdempotencyKey, "sha256/v1:")
	}
	assert.Equal(t, domain.LifecycleFinalized, session.Lifecycle)
	assert.Len(t, fx.queue.Created(), 2)

	stored, err := fx.store.LoadSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleFinalized, stored.Lifecycle)
}

func TestFinalizeIsIdempotent(t *testing.T) {
	session := fixtureSession("root:downloads|path:incoming/a.mp3")
	fx := newFinalizeFixture(t, session)

	first, err := fx.compiler.Finalize(context.Background(), session, true)
	require.NoError(t, err)

	again, err := fx.compiler.Finalize(context.Background(), session, true)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Len(t, fx.queue.Created(), 1, "no new jobs on repeat finalize")
}

func TestFinalizeRequiresConfirmation(t *testing.T) {
	session := fixtureSession("root:downloads|path:incoming/a.mp3")
	fx := newFinalizeFixture(t, session)

	_, err := fx.compiler.Finalize(context.Background(), session, false)
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.AsError(err).Code)
	assert.Len(t, fx.queue.Created(), 0)
}

func TestFinalizeRejectsWrongLifecycle(t *testing.T) {
	session := fixtureSession("root:downloads|path:incoming/a.mp3")
	session.Lifecycle = domain.LifecycleActive
	fx := newFinalizeFixture(t, session)

	_, err := fx.compiler.Finalize(context.Background(), session, true)
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.AsError(err).Code)
}

func TestFinalizeBlocksOnUnresolvedConflictsUnderAsk(t *testing.T) {
	session := fixtureSession("root:downloads|path:incoming/a.mp3")
	session.SetAnswer(domain.StepSetConflictPolicy, "policy", domain.PolicyAsk)
	fx := newFinalizeFixture(t, session)

	// The target appears between plan computation and finalize.
	fx.compiler.storage.(*memory.Storage).Seed("library", "incoming/a.mp3", []byte("present"))

	_, err := fx.compiler.Finalize(context.Background(), session, true)
	require.Error(t, err)
	structured := domain.AsError(err)
	assert.Equal(t, domain.CodeConflictsUnresolved, structured.Code)
	require.Len(t, structured.Details, 1)
	assert.Equal(t, "incoming/a.mp3", structured.Details[0].Path)
	assert.Len(t, fx.queue.Created(), 0)
}

func TestFinalizeAppliesSkipPolicy(t *testing.T) {
	session := fixtureSession(
		"root:downloads|path:incoming/a.mp3",
		"root:downloads|path:incoming/b.zip",
	)
	session.SetAnswer(domain.StepSetConflictPolicy, "policy", domain.PolicySkip)
	fx := newFinalizeFixture(t, session)
	fx.compiler.storage.(*memory.Storage).Seed("library", "incoming/a.mp3", []byte("present"))

	batch, err := fx.compiler.Finalize(context.Background(), session, true)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 1)
	assert.Equal(t, "incoming/b.zip", batch.Requests[0].TargetPath)
}

func TestFinalizeAppliesRenameResolution(t *testing.T) {
	session := fixtureSession("root:downloads|path:incoming/a.mp3")
	session.SetAnswer(domain.StepSetConflictPolicy, "policy", domain.PolicyAsk)
	session.SetAnswer(domain.StepResolveConflicts, "incoming/a.mp3", domain.ResolveRename)
	fx := newFinalizeFixture(t, session)
	fx.compiler.storage.(*memory.Storage).Seed("library", "incoming/a.mp3", []byte("present"))

	batch, err := fx.compiler.Finalize(context.Background(), session, true)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 1)
	assert.Equal(t, "incoming/a (imported).mp3", batch.Requests[0].TargetPath)
}

func TestFinalizeRenameAvoidsOccupiedAlternate(t *testing.T) {
	session := fixtureSession("root:downloads|path:incoming/a.mp3")
	session.SetAnswer(domain.StepSetConflictPolicy, "policy", domain.PolicyAsk)
	session.SetAnswer(domain.StepResolveConflicts, "incoming/a.mp3", domain.ResolveRename)
	fx := newFinalizeFixture(t, session)
	fx.compiler.storage.(*memory.Storage).Seed("library", "incoming/a.mp3", []byte("present"))
	fx.compiler.storage.(*memory.Storage).Seed("library", "incoming/a (imported).mp3", []byte("present"))

	batch, err := fx.compiler.Finalize(context.Background(), session, true)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 1)
	assert.Equal(t, "incoming/a (imported 2).mp3", batch.Requests[0].TargetPath)
}

func TestFinalizeRenamesDuplicateTargetsDistinctly(t *testing.T) {
	session := fixtureSession()
	session.SetAnswer(domain.StepSetConflictPolicy, "policy", domain.PolicyRename)
	fx := newFinalizeFixture(t, session)

	// Two units from different source directories claim the same target.
	p := &domain.Plan{Units: []domain.PlanUnit{
		{ID: "u1", SourceID: "u1", SourceKind: domain.ItemFile, SourceRoot: "downloads", SourcePath: "one/song.mp3", TargetRoot: "library", TargetPath: "song.mp3"},
		{ID: "u2", SourceID: "u2", SourceKind: domain.ItemFile, SourceRoot: "downloads", SourcePath: "two/song.mp3", TargetRoot: "library", TargetPath: "song.mp3"},
	}}
	require.NoError(t, fx.store.SavePlan(context.Background(), session.ID, p))

	batch, err := fx.compiler.Finalize(context.Background(), session, true)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 2)
	assert.Equal(t, "song (imported).mp3", batch.Requests[0].TargetPath)
	assert.Equal(t, "song (imported 2).mp3", batch.Requests[1].TargetPath)
}

// flakyQueue fails a fixed number of Create calls before delegating.
type flakyQueue struct {
	inner    *memory.Queue
	failures int
}

func (q *flakyQueue) Create(ctx context.Context, req domain.JobRequest) (string, error) {
	if q.failures > 0 {
		q.failures--
		return "", fmt.Errorf("queue unavailable")
	}
	return q.inner.Create(ctx, req)
}

func TestFinalizeFailureParksSessionInErrorAndIsRetryable(t *testing.T) {
	session := fixtureSession(
		"root:downloads|path:incoming/a.mp3",
		"root:downloads|path:incoming/b.zip",
	)
	fx := newFinalizeFixture(t, session)
	fx.compiler.queue = &flakyQueue{inner: fx.queue, failures: 1}

	_, err := fx.compiler.Finalize(context.Background(), session, true)
	require.Error(t, err)
	assert.Equal(t, domain.LifecycleError, session.Lifecycle)

	stored, err := fx.store.LoadSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, domain.LifecycleError, stored.Lifecycle)

	// The retry runs from the error state; the write-once queue keeps each
	// key single.
	batch, err := fx.compiler.Finalize(context.Background(), session, true)
	require.NoError(t, err)
	require.Len(t, batch.Requests, 2)
	assert.Equal(t, domain.LifecycleFinalized, session.Lifecycle)
	assert.Len(t, fx.queue.Created(), 2)
}

func TestFinalizeKeysAreStableAcrossSessions(t *testing.T) {
	build := func(id string) *domain.JobRequestBatch {
		session := fixtureSession("root:downloads|path:incoming/a.mp3")
		session.ID = id
		fx := newFinalizeFixture(t, session)
		batch, err := fx.compiler.Finalize(context.Background(), session, true)
		require.NoError(t, err)
		return batch
	}

	first := build("s-alpha")
	second := build("s-beta")
	require.Len(t, first.Requests, 1)
	// Session IDs are volatile; identical units and config yield identical keys.
	assert.Equal(t, first.Requests[0].IdempotencyKey, second.Requests[0].IdempotencyKey)
}
