package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/requestcontext"
)

// Store persists chain entries. Append must observe a transaction carried in
// context so a failed workflow transition takes its audit entry down with it.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	Tail(ctx context.Context) (*Entry, error)
	List(ctx context.Context) ([]*Entry, error)
}

// Chain serializes appends to the audit log and verifies its integrity.
//
// The chain has a single valid next value at any instant: each new entry's
// PrevHash must equal the current tail's hash. The mutex makes the
// read-tail/compute/insert span one critical section process-wide. When the
// append runs inside a database transaction the entry only becomes visible at
// commit, so the store must extend the critical section to the transaction
// boundary; the postgres store holds an advisory lock from Tail until commit
// for exactly this reason.
type Chain struct {
	store  Store
	logger *slog.Logger
	mu     sync.Mutex
}

type Option func(*Chain)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Chain) {
		c.logger = logger
	}
}

func NewChain(store Store, opts ...Option) (*Chain, error) {
	if store == nil {
		return nil, fmt.Errorf("audit store is required")
	}
	c := &Chain{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Record appends a new entry linked to the current tail. A storage failure is
// returned as an internal error: a transition without its audit entry is an
// inconsistent state, so callers must fail the enclosing transition.
func (c *Chain) Record(ctx context.Context, actorID, entityType, entityID, eventType string, eventData map[string]any) (*Entry, error) {
	eventDataJSON, err := Canonicalize(eventData)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to canonicalize audit event")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prevHash := GenesisHash
	tail, err := c.store.Tail(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit chain tail")
	}
	if tail != nil {
		prevHash = tail.Hash
	}

	// Microsecond precision survives the postgres round trip, keeping hash
	// recomputation reproducible.
	createdAt := requestcontext.Now(ctx).UTC().Truncate(time.Microsecond)

	entry := &Entry{
		ID:            id.NewEntryID(),
		ActorID:       actorID,
		EntityType:    entityType,
		EntityID:      entityID,
		EventType:     eventType,
		EventDataJSON: eventDataJSON,
		PrevHash:      prevHash,
		Hash:          ComputeHash(prevHash, eventDataJSON, actorID, entityType, entityID, createdAt),
		CreatedAt:     createdAt,
	}

	if err := c.store.Append(ctx, entry); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to append audit entry")
	}
	if c.logger != nil {
		c.logger.InfoContext(ctx, "audit entry recorded",
			"entry_id", entry.ID.String(),
			"entity_type", entityType,
			"entity_id", entityID,
			"event_type", eventType,
		)
	}
	return entry, nil
}

// Verify walks all entries in append order from the genesis sentinel,
// recomputing each hash from stored fields. It reports the first entry whose
// recomputed hash mismatches and never mutates state. An empty chain is valid
// with count zero.
func (c *Chain) Verify(ctx context.Context) (Verification, error) {
	entries, err := c.store.List(ctx)
	if err != nil {
		return Verification{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load audit chain")
	}

	prevHash := GenesisHash
	for _, entry := range entries {
		computed := ComputeHash(prevHash, entry.EventDataJSON, entry.ActorID, entry.EntityType, entry.EntityID, entry.CreatedAt)
		if computed != entry.Hash {
			failedAt := entry.ID
			return Verification{Valid: false, FailedAt: &failedAt}, nil
		}
		prevHash = entry.Hash
	}
	return Verification{Valid: true, Count: len(entries)}, nil
}
