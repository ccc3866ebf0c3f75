package audit

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/onnwee/wastemap/internal/requestctx"
)

var (
	// ErrInvalidEntityType is returned for a change without an entity type.
	ErrInvalidEntityType = errors.New("entity type cannot be empty")
	// ErrInvalidEntityID is returned for a change without an entity id.
	ErrInvalidEntityID = errors.New("entity ID cannot be empty")
	// ErrInvalidAction is returned for a change with an unknown action.
	ErrInvalidAction = errors.New("invalid audit action")
)

var validActions = map[string]bool{
	ActionCreate:     true,
	ActionUpdate:     true,
	ActionDeactivate: true,
	ActionDelete:     true,
}

// Change describes one committed mutation. Before and After are the entity
// states on either side of it; either may be nil.
type Change struct {
	Action     string
	EntityType string
	EntityID   string
	Before     any
	After      any
}

func (c Change) validate() error {
	if c.EntityType == "" {
		return ErrInvalidEntityType
	}
	if c.EntityID == "" {
		return ErrInvalidEntityID
	}
	if !validActions[c.Action] {
		return ErrInvalidAction
	}
	return nil
}

// Hook receives committed changes. Implementations must not block the caller
// on failure; the mutation has already happened.
type Hook interface {
	AfterCommit(ctx context.Context, c Change)
}

// NopHook discards changes.
type NopHook struct{}

// AfterCommit implements Hook.
func (NopHook) AfterCommit(context.Context, Change) {}

// Hooks fans a change out to each Hook in order.
type Hooks []Hook

// AfterCommit implements Hook.
func (hs Hooks) AfterCommit(ctx context.Context, c Change) {
	for _, h := range hs {
		h.AfterCommit(ctx, c)
	}
}

// Recorder is the Hook that writes entries to a Repository. Actor, client IP
// and request id come from the request context.
type Recorder struct {
	repo   Repository
	logger *slog.Logger
}

// NewRecorder creates a Recorder. A nil logger uses slog.Default().
func NewRecorder(repo Repository, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{repo: repo, logger: logger}
}

// AfterCommit implements Hook. Failures are logged and swallowed.
func (r *Recorder) AfterCommit(ctx context.Context, c Change) {
	if err := r.record(ctx, c); err != nil {
		r.logger.ErrorContext(ctx, "audit log write failed",
			"error", err,
			"action", c.Action,
			"entity_type", c.EntityType,
			"entity_id", c.EntityID,
		)
	}
}

func (r *Recorder) record(ctx context.Context, c Change) error {
	if err := c.validate(); err != nil {
		return err
	}

	changes, err := json.Marshal(struct {
		Before any `json:"before,omitempty"`
		After  any `json:"after,omitempty"`
	}{c.Before, c.After})
	if err != nil {
		return err
	}

	// The mutation is committed; record it even if the client has gone away.
	ctx = context.WithoutCancel(ctx)

	_, err = r.repo.Log(ctx, LogEntry{
		ActorID:    requestctx.GetActorID(ctx),
		Action:     c.Action,
		EntityType: c.EntityType,
		EntityID:   c.EntityID,
		Changes:    changes,
		IPAddress:  requestctx.GetClientIP(ctx),
		RequestID:  requestctx.GetRequestID(ctx),
	})
	return err
}
