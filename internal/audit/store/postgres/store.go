package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"expenseflow/internal/audit"
	id "expenseflow/pkg/domain"
	txcontext "expenseflow/pkg/platform/tx"
)

// Store persists audit chain entries in PostgreSQL. The audit_log table's
// BIGSERIAL seq column gives entries their total order.
type Store struct {
	db *sql.DB
}

// chainWriteLockID keys the advisory lock serializing chain writers. One
// chain, one key.
const chainWriteLockID = int64(0x6175646974) // "audit"

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) querier(ctx context.Context) dbQuerier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *Store) Append(ctx context.Context, entry *audit.Entry) error {
	query := `
		INSERT INTO audit_log (
			id, actor_id, entity_type, entity_id, event_type,
			event_data_json, prev_hash, hash, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING seq
	`
	err := s.querier(ctx).QueryRowContext(ctx, query,
		uuid.UUID(entry.ID),
		entry.ActorID,
		entry.EntityType,
		entry.EntityID,
		entry.EventType,
		entry.EventDataJSON,
		entry.PrevHash,
		entry.Hash,
		entry.CreatedAt,
	).Scan(&entry.Seq)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Tail returns the newest entry. Inside a transaction it first takes the
// chain's advisory lock, held until commit, so the read-tail/insert span of a
// concurrent writer cannot observe the same tail: without it, two overlapping
// transactions under READ COMMITTED would both chain off the last committed
// hash and fork the chain. The unique prev_hash constraint backstops this by
// aborting any writer that slips through.
func (s *Store) Tail(ctx context.Context) (*audit.Entry, error) {
	if _, err := s.querier(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, chainWriteLockID); err != nil {
		return nil, fmt.Errorf("acquire audit chain lock: %w", err)
	}
	query := selectColumns + ` ORDER BY seq DESC LIMIT 1`
	entry, err := scanEntry(s.querier(ctx).QueryRowContext(ctx, query))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query audit tail: %w", err)
	}
	return entry, nil
}

func (s *Store) List(ctx context.Context) ([]*audit.Entry, error) {
	query := selectColumns + ` ORDER BY seq ASC`
	rows, err := s.querier(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*audit.Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}

const selectColumns = `
	SELECT id, seq, actor_id, entity_type, entity_id, event_type,
	       event_data_json, prev_hash, hash, created_at
	FROM audit_log`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*audit.Entry, error) {
	var (
		entry   audit.Entry
		entryID uuid.UUID
	)
	err := row.Scan(
		&entryID,
		&entry.Seq,
		&entry.ActorID,
		&entry.EntityType,
		&entry.EntityID,
		&entry.EventType,
		&entry.EventDataJSON,
		&entry.PrevHash,
		&entry.Hash,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	entry.ID = id.EntryID(entryID)
	return &entry, nil
}
