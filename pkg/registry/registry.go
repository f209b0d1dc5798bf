// Package registry manages callable operations. Operations are discovered
// only through this registry, never by scanning a filesystem, and every
// invocation is schema-validated on the way in and out.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/intakehq/intake/pkg/canonical"
	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/ports"
)

// Handler is an inline operation implementation.
type Handler func(ctx context.Context, input map[string]any) (any, error)

const (
	defaultTimeout        = 5 * time.Second
	defaultMaxResultBytes = 1 << 20
)

type operation struct {
	manifest domain.OperationManifest
	handler  Handler
}

// Registry implements ports.OperationRegistry.
type Registry struct {
	mu  sync.RWMutex
	ops map[string]operation
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{ops: make(map[string]operation)}
}

// Register adds an operation. Inline operations require a handler; job-mode
// operations are compiled into side jobs and may omit one.
func (r *Registry) Register(manifest domain.OperationManifest, handler Handler) error {
	if manifest.Name == "" {
		return fmt.Errorf("operation manifest without name")
	}
	if manifest.Mode == domain.ExecInline && handler == nil {
		return fmt.Errorf("inline operation %q requires a handler", manifest.Name)
	}
	if manifest.Limits.Timeout <= 0 {
		manifest.Limits.Timeout = defaultTimeout
	}
	if manifest.Limits.MaxResultBytes <= 0 {
		manifest.Limits.MaxResultBytes = defaultMaxResultBytes
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops[manifest.Name] = operation{manifest: manifest, handler: handler}
	return nil
}

// List returns all manifests sorted by name.
func (r *Registry) List() []domain.OperationManifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	manifests := make([]domain.OperationManifest, 0, len(r.ops))
	for _, op := range r.ops {
		manifests = append(manifests, op.manifest)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].Name < manifests[j].Name })
	return manifests
}

// Manifest returns the manifest for a named operation.
func (r *Registry) Manifest(name string) (domain.OperationManifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op.manifest, ok
}

// Validate checks input against the operation's input schema without
// executing anything. The preview mode runs exactly this.
func (r *Registry) Validate(name string, input map[string]any) error {
	r.mu.RLock()
	op, ok := r.ops[name]
	r.mu.RUnlock()
	if !ok {
		return domain.NotFound(fmt.Sprintf("unknown operation %q", name))
	}
	if op.manifest.Input == nil {
		return nil
	}
	if err := op.manifest.Input.VisitJSON(toJSONValue(input)); err != nil {
		return domain.Validation(fmt.Sprintf("operation %q: invalid input", name),
			domain.Detail{Path: "input", Reason: err.Error()})
	}
	return nil
}

// Execute runs an inline operation: input validation, bounded execution,
// result validation, result size limit.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (any, error) {
	r.mu.RLock()
	op, ok := r.ops[name]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.NotFound(fmt.Sprintf("unknown operation %q", name))
	}
	if op.manifest.Mode != domain.ExecInline {
		return nil, domain.Invariant(fmt.Sprintf("operation %q is not inline", name),
			domain.Detail{Path: name, Reason: "mode " + string(op.manifest.Mode)})
	}
	if err := r.Validate(name, input); err != nil {
		return nil, err
	}

	execCtx, cancel := context.WithTimeout(ctx, op.manifest.Limits.Timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := op.handler(execCtx, input)
		done <- outcome{result: result, err: err}
	}()

	var result any
	select {
	case <-execCtx.Done():
		return nil, domain.Validation(fmt.Sprintf("operation %q exceeded its time limit", name),
			domain.Detail{Path: name, Reason: execCtx.Err().Error()})
	case out := <-done:
		if out.err != nil {
			return nil, fmt.Errorf("operation %q: %w", name, out.err)
		}
		result = out.result
	}

	encoded, err := canonical.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("operation %q: unserializable result: %w", name, err)
	}
	if len(encoded) > op.manifest.Limits.MaxResultBytes {
		return nil, domain.Validation(fmt.Sprintf("operation %q result exceeds size limit", name),
			domain.Detail{Path: name, Reason: fmt.Sprintf("%d bytes > %d", len(encoded), op.manifest.Limits.MaxResultBytes)})
	}
	if op.manifest.Result != nil {
		if err := op.manifest.Result.VisitJSON(toJSONValue(result)); err != nil {
			return nil, domain.Validation(fmt.Sprintf("operation %q returned an invalid result", name),
				domain.Detail{Path: "result", Reason: err.Error()})
		}
	}
	return result, nil
}

// toJSONValue round-trips v through JSON so schema validation sees plain
// generic types regardless of what the handler returned.
func toJSONValue(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return v
	}
	return generic
}

var _ ports.OperationRegistry = (*Registry)(nil)
