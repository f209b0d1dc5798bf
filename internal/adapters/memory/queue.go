package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/intakehq/intake/pkg/domain"
)

// Queue is an in-memory JobQueue honoring write-once idempotency keys.
type Queue struct {
	mu      sync.Mutex
	nextID  int
	byKey   map[string]string
	created []domain.JobRequest
}

// NewQueue creates an empty Queue.
func NewQueue() *Queue {
	return &Queue{byKey: make(map[string]string)}
}

// Create enqueues a request, or returns the existing job ID when the
// idempotency key was already recorded.
func (q *Queue) Create(ctx context.Context, req domain.JobRequest) (string, error) {
	if req.IdempotencyKey == "" {
		return "", fmt.Errorf("job request without idempotency key")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if id, ok := q.byKey[req.IdempotencyKey]; ok {
		return id, nil
	}
	q.nextID++
	id := fmt.Sprintf("job-%d", q.nextID)
	q.byKey[req.IdempotencyKey] = id
	q.created = append(q.created, req)
	return id, nil
}

// Created returns the requests accepted so far, in creation order. Test helper.
func (q *Queue) Created() []domain.JobRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]domain.JobRequest(nil), q.created...)
}
