package audit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/wastemap/internal/filter"
)

// Repository stores and queries audit entries.
type Repository interface {
	// Log persists a new entry and returns it with ID and CreatedAt set.
	Log(ctx context.Context, entry LogEntry) (*Entry, error)

	// Query returns entries matching c, newest first. limit <= 0 means no limit.
	Query(ctx context.Context, c filter.Criteria, limit int) ([]Entry, error)

	// AnonymizeBefore masks the IP address of entries created before cutoff
	// that have not been anonymized yet, returning how many changed.
	AnonymizeBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// InMemoryRepository is a Repository for tests and development.
type InMemoryRepository struct {
	mu         sync.RWMutex
	entries    []Entry
	anonymized map[string]bool
	now        func() time.Time
}

// NewInMemoryRepository creates an empty repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		anonymized: make(map[string]bool),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Log implements Repository.
func (r *InMemoryRepository) Log(_ context.Context, entry LogEntry) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := Entry{
		ID:         uuid.New().String(),
		ActorID:    entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Changes:    append([]byte(nil), entry.Changes...),
		IPAddress:  entry.IPAddress,
		RequestID:  entry.RequestID,
		CreatedAt:  r.now(),
	}
	r.entries = append(r.entries, e)

	out := e
	return &out, nil
}

// Query implements Repository.
func (r *InMemoryRepository) Query(_ context.Context, c filter.Criteria, limit int) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	// Walk newest insert first so the stable sort keeps that order on ties.
	var out []Entry
	for i := len(r.entries) - 1; i >= 0; i-- {
		if e := r.entries[i]; c.Matches(e) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// AnonymizeBefore implements Repository.
func (r *InMemoryRepository) AnonymizeBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for i := range r.entries {
		e := &r.entries[i]
		if e.IPAddress == "" || r.anonymized[e.ID] || !e.CreatedAt.Before(cutoff) {
			continue
		}
		e.IPAddress = AnonymizeIP(e.IPAddress)
		r.anonymized[e.ID] = true
		n++
	}
	return n, nil
}
