// Package store persists sessions and their derived artifacts through the
// storage port. Every artifact lives under the engine root at
// sessions/<id>/, written atomically so crashes never leave partial state.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/intakehq/intake/pkg/domain"
	"github.com/intakehq/intake/pkg/ports"
	"github.com/intakehq/intake/pkg/workflow"
)

// Artifact file names under sessions/<id>/.
const (
	stateFile     = "state.json"
	snapshotFile  = "snapshot.json"
	configFile    = "config.json"
	discoveryFile = "discovery.json"
	planFile      = "plan.json"
	batchFile     = "jobs.json"
	decisionLog   = "decisions.log"
)

// Store implements ports.SessionStore on top of ports.Storage.
type Store struct {
	storage ports.Storage
	root    string
}

// New creates a Store writing under the given storage root.
func New(storage ports.Storage, root string) *Store {
	if root == "" {
		root = "engine"
	}
	return &Store{storage: storage, root: root}
}

func sessionPath(sessionID, file string) string {
	return "sessions/" + sessionID + "/" + file
}

func (s *Store) writeJSON(ctx context.Context, path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := s.storage.Write(ctx, s.root, path, data); err != nil {
		return fmt.Errorf("persist %s: %w", path, err)
	}
	return nil
}

func (s *Store) readJSON(ctx context.Context, path string, v any) error {
	data, err := s.storage.Read(ctx, s.root, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return domain.ErrSessionNotFound
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// SaveSession persists the live session state.
func (s *Store) SaveSession(ctx context.Context, session *domain.Session) error {
	if session.ID == "" {
		return fmt.Errorf("session without id")
	}
	return s.writeJSON(ctx, sessionPath(session.ID, stateFile), session)
}

// LoadSession retrieves a session by ID.
func (s *Store) LoadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	var session domain.Session
	if err := s.readJSON(ctx, sessionPath(sessionID, stateFile), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns all known session IDs in byte-wise sorted order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	entries, err := s.storage.List(ctx, s.root, "sessions")
	if err != nil {
		// An engine root with no sessions yet is not an error.
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	seen := make(map[string]bool)
	for _, entry := range entries {
		rel := strings.TrimPrefix(entry.Path, "sessions/")
		if rel == entry.Path {
			continue
		}
		id, _, _ := strings.Cut(rel, "/")
		if id != "" {
			seen[id] = true
		}
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// SaveSnapshot freezes the effective workflow snapshot for a session.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID string, snap *workflow.Snapshot) error {
	return s.writeJSON(ctx, sessionPath(sessionID, snapshotFile), snap)
}

// LoadSnapshot retrieves the frozen snapshot.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID string) (*workflow.Snapshot, error) {
	var snap workflow.Snapshot
	if err := s.readJSON(ctx, sessionPath(sessionID, snapshotFile), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// SaveTuning freezes the effective tuning configuration for a session.
func (s *Store) SaveTuning(ctx context.Context, sessionID string, tun *workflow.Tuning) error {
	return s.writeJSON(ctx, sessionPath(sessionID, configFile), tun)
}

// LoadTuning retrieves the frozen tuning configuration.
func (s *Store) LoadTuning(ctx context.Context, sessionID string) (*workflow.Tuning, error) {
	var tun workflow.Tuning
	if err := s.readJSON(ctx, sessionPath(sessionID, configFile), &tun); err != nil {
		return nil, err
	}
	return &tun, nil
}

// SaveDiscovery persists the phase-0 discovery set.
func (s *Store) SaveDiscovery(ctx context.Context, sessionID string, set *domain.DiscoverySet) error {
	return s.writeJSON(ctx, sessionPath(sessionID, discoveryFile), set)
}

// LoadDiscovery retrieves the discovery set.
func (s *Store) LoadDiscovery(ctx context.Context, sessionID string) (*domain.DiscoverySet, error) {
	var set domain.DiscoverySet
	if err := s.readJSON(ctx, sessionPath(sessionID, discoveryFile), &set); err != nil {
		return nil, err
	}
	return &set, nil
}

// SavePlan persists the computed plan.
func (s *Store) SavePlan(ctx context.Context, sessionID string, plan *domain.Plan) error {
	return s.writeJSON(ctx, sessionPath(sessionID, planFile), plan)
}

// LoadPlan retrieves the computed plan.
func (s *Store) LoadPlan(ctx context.Context, sessionID string) (*domain.Plan, error) {
	var plan domain.Plan
	if err := s.readJSON(ctx, sessionPath(sessionID, planFile), &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

// SaveBatch persists the final job-request batch.
func (s *Store) SaveBatch(ctx context.Context, sessionID string, batch *domain.JobRequestBatch) error {
	return s.writeJSON(ctx, sessionPath(sessionID, batchFile), batch)
}

// LoadBatch retrieves the batch of an already finalized session.
func (s *Store) LoadBatch(ctx context.Context, sessionID string) (*domain.JobRequestBatch, error) {
	var batch domain.JobRequestBatch
	if err := s.readJSON(ctx, sessionPath(sessionID, batchFile), &batch); err != nil {
		return nil, err
	}
	return &batch, nil
}

// AppendDecision records one accepted transition in the append-only log.
func (s *Store) AppendDecision(ctx context.Context, sessionID string, decision ports.Decision) error {
	line, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	line = append(line, '\n')
	if err := s.storage.Append(ctx, s.root, sessionPath(sessionID, decisionLog), line); err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	return nil
}

// Decisions reads back the decision log for inspection.
func (s *Store) Decisions(ctx context.Context, sessionID string) ([]ports.Decision, error) {
	data, err := s.storage.Read(ctx, s.root, sessionPath(sessionID, decisionLog))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var decisions []ports.Decision
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if line == "" {
			continue
		}
		var d ports.Decision
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			return nil, fmt.Errorf("decode decision log: %w", err)
		}
		decisions = append(decisions, d)
	}
	return decisions, nil
}

var _ ports.SessionStore = (*Store)(nil)
