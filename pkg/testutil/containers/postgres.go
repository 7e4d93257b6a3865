//go:build integration

// Package containers starts throwaway infrastructure for integration tests.
package containers

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance with the
// application schema applied.
type PostgresContainer struct {
	Container testcontainers.Container
	DB        *sql.DB
	URL       string
}

// NewPostgresContainer starts a PostgreSQL container and applies the schema.
func NewPostgresContainer(t *testing.T) *PostgresContainer {
	t.Helper()

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("expenseflow"),
		tcpostgres.WithUsername("expenseflow"),
		tcpostgres.WithPassword("expenseflow"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get postgres connection string: %v", err)
	}

	db, err := sql.Open("postgres", url)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to open postgres connection: %v", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to ping postgres: %v", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		_ = container.Terminate(ctx)
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(context.Background())
	})

	return &PostgresContainer{Container: container, DB: db, URL: url}
}

// Truncate empties all application tables. Use between tests for isolation.
func (p *PostgresContainer) Truncate(t *testing.T) {
	t.Helper()
	_, err := p.DB.Exec(`
		TRUNCATE employees, expense_categories, budget_allocations,
		         expense_requests, approval_actions, request_sequences, audit_log
	`)
	if err != nil {
		t.Fatalf("failed to truncate tables: %v", err)
	}
}

const schema = `
CREATE TABLE IF NOT EXISTS employees (
	id         UUID PRIMARY KEY,
	email      TEXT NOT NULL,
	full_name  TEXT NOT NULL,
	role       TEXT NOT NULL,
	manager_id UUID,
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS expense_categories (
	id                 UUID PRIMARY KEY,
	name               TEXT NOT NULL,
	expense_type       TEXT NOT NULL,
	default_allocation NUMERIC NOT NULL DEFAULT 0,
	requires_receipt   BOOLEAN NOT NULL DEFAULT FALSE,
	active             BOOLEAN NOT NULL DEFAULT TRUE,
	created_at         TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS budget_allocations (
	employee_id UUID NOT NULL,
	category_id UUID NOT NULL,
	year        INTEGER NOT NULL,
	allocated   NUMERIC NOT NULL,
	spent       NUMERIC NOT NULL DEFAULT 0,
	PRIMARY KEY (employee_id, category_id, year)
);

CREATE TABLE IF NOT EXISTS expense_requests (
	id             UUID PRIMARY KEY,
	request_number TEXT NOT NULL UNIQUE,
	employee_id    UUID NOT NULL,
	category_id    UUID NOT NULL,
	expense_type   TEXT NOT NULL,
	reason         TEXT NOT NULL DEFAULT '',
	currency       TEXT NOT NULL,
	total_amount   NUMERIC NOT NULL,
	invoice_number TEXT NOT NULL DEFAULT '',
	invoice_date   TIMESTAMPTZ,
	supplier       TEXT NOT NULL DEFAULT '',
	status         TEXT NOT NULL,
	submitted_at   TIMESTAMPTZ,
	version        BIGINT NOT NULL DEFAULT 0,
	created_at     TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS approval_actions (
	id          UUID PRIMARY KEY,
	request_id  UUID NOT NULL REFERENCES expense_requests(id) ON DELETE CASCADE,
	actor_id    UUID,
	action_type TEXT NOT NULL,
	from_status TEXT NOT NULL,
	to_status   TEXT NOT NULL,
	comment     TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS request_sequences (
	year  INTEGER PRIMARY KEY,
	value BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	id              UUID PRIMARY KEY,
	seq             BIGSERIAL,
	actor_id        TEXT NOT NULL,
	entity_type     TEXT NOT NULL,
	entity_id       TEXT NOT NULL,
	event_type      TEXT NOT NULL,
	event_data_json TEXT NOT NULL,
	prev_hash       TEXT NOT NULL UNIQUE,
	hash            TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL
);
`
