package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expenseflow/internal/budget"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
	txcontext "expenseflow/pkg/platform/tx"
)

// Store persists allocation rows in PostgreSQL. Spend updates are guarded
// UPDATEs so concurrent PAID transitions can neither lose updates nor push
// spent past allocated.
type Store struct {
	db *sql.DB
}

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

func (s *Store) Get(ctx context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int) (*budget.Allocation, error) {
	query := `
		SELECT allocated, spent
		FROM budget_allocations
		WHERE employee_id = $1 AND category_id = $2 AND year = $3
	`
	var allocated, spent string
	err := s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(employeeID), uuid.UUID(categoryID), year).
		Scan(&allocated, &spent)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("allocation %s/%s/%d: %w", employeeID, categoryID, year, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query allocation: %w", err)
	}
	return buildAllocation(employeeID, categoryID, year, allocated, spent)
}

func (s *Store) Upsert(ctx context.Context, allocation *budget.Allocation) error {
	query := `
		INSERT INTO budget_allocations (employee_id, category_id, year, allocated, spent)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (employee_id, category_id, year)
		DO UPDATE SET allocated = EXCLUDED.allocated
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(allocation.EmployeeID),
		uuid.UUID(allocation.CategoryID),
		allocation.Year,
		allocation.Allocated.String(),
		allocation.Spent.String(),
	)
	if err != nil {
		return fmt.Errorf("upsert allocation: %w", err)
	}
	return nil
}

func (s *Store) AddSpend(ctx context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int, amount decimal.Decimal) error {
	// The WHERE clause makes the add conditional: no row is touched when the
	// spend would exceed the allocation.
	query := `
		UPDATE budget_allocations
		SET spent = spent + $4
		WHERE employee_id = $1 AND category_id = $2 AND year = $3
		  AND spent + $4 <= allocated
	`
	result, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(employeeID), uuid.UUID(categoryID), year, amount.String())
	if err != nil {
		return fmt.Errorf("add spend: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("add spend rows affected: %w", err)
	}
	if affected == 1 {
		return nil
	}

	// Distinguish a missing row from an over-allocation rejection.
	if _, err := s.Get(ctx, employeeID, categoryID, year); err != nil {
		return err
	}
	return fmt.Errorf("spend %s exceeds allocation: %w", amount, sentinel.ErrInvalidState)
}

func (s *Store) ListByEmployee(ctx context.Context, employeeID id.EmployeeID, year int) ([]*budget.Allocation, error) {
	query := `
		SELECT category_id, allocated, spent
		FROM budget_allocations
		WHERE employee_id = $1 AND year = $2
		ORDER BY category_id
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, uuid.UUID(employeeID), year)
	if err != nil {
		return nil, fmt.Errorf("list allocations: %w", err)
	}
	defer rows.Close()

	var allocations []*budget.Allocation
	for rows.Next() {
		var (
			categoryID       uuid.UUID
			allocated, spent string
		)
		if err := rows.Scan(&categoryID, &allocated, &spent); err != nil {
			return nil, fmt.Errorf("scan allocation: %w", err)
		}
		allocation, err := buildAllocation(employeeID, id.CategoryID(categoryID), year, allocated, spent)
		if err != nil {
			return nil, err
		}
		allocations = append(allocations, allocation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate allocations: %w", err)
	}
	return allocations, nil
}

func buildAllocation(employeeID id.EmployeeID, categoryID id.CategoryID, year int, allocated, spent string) (*budget.Allocation, error) {
	allocatedDec, err := decimal.NewFromString(allocated)
	if err != nil {
		return nil, fmt.Errorf("parse allocated: %w", err)
	}
	spentDec, err := decimal.NewFromString(spent)
	if err != nil {
		return nil, fmt.Errorf("parse spent: %w", err)
	}
	return &budget.Allocation{
		EmployeeID: employeeID,
		CategoryID: categoryID,
		Year:       year,
		Allocated:  allocatedDec,
		Spent:      spentDec,
	}, nil
}
