package intake

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/intakehq/intake/internal/adapters/fsroot"
	intakehttp "github.com/intakehq/intake/internal/adapters/http"
	"github.com/intakehq/intake/internal/adapters/memory"
	"github.com/intakehq/intake/internal/engine"
	"github.com/intakehq/intake/internal/logging"
	"github.com/intakehq/intake/internal/store"
	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/ports"
	"github.com/intakehq/intake/pkg/registry"
	"github.com/intakehq/intake/pkg/session"
	"github.com/intakehq/intake/pkg/workflow"
)

// Engine wraps the internal interpreter with its wiring.
type Engine struct {
	interp *engine.Interpreter
	store  *store.Store

	storage  ports.Storage
	queue    ports.JobQueue
	registry ports.OperationRegistry
	locker   ports.DistributedLocker
	def      *workflow.Definition
	tun      *workflow.Tuning
	logger   *slog.Logger

	roots          map[string]string
	definitionPath string
	tuningPath     string
}

// Option configures the Engine.
type Option func(*Engine)

// WithRoots maps storage root names to local directories. Ignored when a
// custom storage is injected.
func WithRoots(roots map[string]string) Option {
	return func(e *Engine) { e.roots = roots }
}

// WithStorage injects a custom storage backend, bypassing the filesystem
// default.
func WithStorage(storage ports.Storage) Option {
	return func(e *Engine) { e.storage = storage }
}

// WithQueue injects the job subsystem. The default is an in-memory queue
// suitable for tests and single-run CLI use.
func WithQueue(queue ports.JobQueue) Option {
	return func(e *Engine) { e.queue = queue }
}

// WithRegistry installs the callable-operation registry.
func WithRegistry(reg ports.OperationRegistry) Option {
	return func(e *Engine) { e.registry = reg }
}

// WithLocker enables distributed session locking across replicas.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(e *Engine) { e.locker = locker }
}

// WithDefinition sets the workflow definition directly.
func WithDefinition(def *workflow.Definition) Option {
	return func(e *Engine) { e.def = def }
}

// WithDefinitionFile loads the workflow definition from a YAML file.
func WithDefinitionFile(path string) Option {
	return func(e *Engine) { e.definitionPath = path }
}

// WithTuning sets the tuning configuration directly.
func WithTuning(tun *workflow.Tuning) Option {
	return func(e *Engine) { e.tun = tun }
}

// WithTuningFile loads the tuning configuration from a TOML file.
func WithTuningFile(path string) Option {
	return func(e *Engine) { e.tuningPath = path }
}

// WithLogger sets a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New initializes the engine. Without options it runs fully in memory with
// the built-in workflow, which is the test and demo configuration; real
// deployments set roots, a queue and usually definition and tuning files.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		registry: registry.New(),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.storage == nil {
		if len(e.roots) > 0 {
			e.storage = fsroot.New(e.roots)
		} else {
			e.storage = memory.NewStorage("engine", "library")
		}
	}
	if e.queue == nil {
		e.queue = memory.NewQueue()
	}

	if e.definitionPath != "" {
		data, err := os.ReadFile(e.definitionPath)
		if err != nil {
			return nil, fmt.Errorf("read workflow definition: %w", err)
		}
		def, err := workflow.ParseDefinition(data)
		if err != nil {
			return nil, err
		}
		e.def = def
	}
	if e.def == nil {
		e.def = workflow.DefaultDefinition()
	}

	if e.tuningPath != "" {
		data, err := os.ReadFile(e.tuningPath)
		if err != nil {
			return nil, fmt.Errorf("read tuning config: %w", err)
		}
		tun, err := workflow.ParseTuning(data)
		if err != nil {
			return nil, err
		}
		e.tun = tun
	}
	if e.tun == nil {
		e.tun = workflow.DefaultTuning()
	}

	// The snapshot build runs here once so misauthored workflow sources fail
	// at startup, not at first session.
	if _, err := workflow.Build(e.def, e.tun); err != nil {
		return nil, err
	}

	e.store = store.New(e.storage, "engine")

	lockOpts := []session.Option{session.WithLogger(e.logger)}
	if e.locker != nil {
		lockOpts = append(lockOpts, session.WithLocker(e.locker))
	}

	e.interp = engine.New(e.store, e.storage, e.queue,
		engine.WithDefinition(e.def),
		engine.WithTuning(e.tun),
		engine.WithRegistry(e.registry),
		engine.WithLockManager(session.NewManager(lockOpts...)),
		engine.WithLogger(e.logger),
	)
	return e, nil
}

// StartSession scans a source path and creates a new session.
func (e *Engine) StartSession(ctx context.Context, sourceRoot, sourcePath string) (*domain.Envelope, error) {
	return e.interp.StartSession(ctx, sourceRoot, sourcePath)
}

// State renders the current step of a session.
func (e *Engine) State(ctx context.Context, sessionID string) (*domain.Envelope, error) {
	return e.interp.State(ctx, sessionID)
}

// Sessions lists all known session IDs.
func (e *Engine) Sessions(ctx context.Context) ([]string, error) {
	return e.interp.Sessions(ctx)
}

// Submit applies a payload to the session's current step.
func (e *Engine) Submit(ctx context.Context, sessionID, stepID string, payload map[string]any) (*domain.Envelope, error) {
	return e.interp.Submit(ctx, sessionID, stepID, payload)
}

// Finalize compiles the job-request batch for a completed session.
func (e *Engine) Finalize(ctx context.Context, sessionID string, confirm bool) (*domain.JobRequestBatch, error) {
	return e.interp.Finalize(ctx, sessionID, confirm)
}

// Decisions returns the append-only decision log of a session.
func (e *Engine) Decisions(ctx context.Context, sessionID string) ([]ports.Decision, error) {
	return e.store.Decisions(ctx, sessionID)
}

// Handler returns the JSON API handler for serving the engine over HTTP.
func (e *Engine) Handler() http.Handler {
	return intakehttp.NewHandler(e.interp, e.logger)
}
