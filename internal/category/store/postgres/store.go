package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expenseflow/internal/category"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
	txcontext "expenseflow/pkg/platform/tx"
)

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

func (s *Store) Create(ctx context.Context, cat *category.Category) error {
	query := `
		INSERT INTO expense_categories (
			id, name, expense_type, default_allocation, requires_receipt, active, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(cat.ID),
		cat.Name,
		string(cat.ExpenseType),
		cat.DefaultAllocation.String(),
		cat.RequiresReceipt,
		cat.Active,
		cat.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, categoryID id.CategoryID) (*category.Category, error) {
	query := selectColumns + ` WHERE id = $1`
	cat, err := scanCategory(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(categoryID)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("category %s: %w", categoryID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query category: %w", err)
	}
	return cat, nil
}

func (s *Store) ListActive(ctx context.Context) ([]*category.Category, error) {
	query := selectColumns + ` WHERE active ORDER BY name`
	rows, err := s.querier(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var categories []*category.Category
	for rows.Next() {
		cat, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, cat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}

func (s *Store) SetActive(ctx context.Context, categoryID id.CategoryID, active bool) error {
	result, err := s.querier(ctx).ExecContext(ctx,
		`UPDATE expense_categories SET active = $2 WHERE id = $1`,
		uuid.UUID(categoryID), active)
	if err != nil {
		return fmt.Errorf("update category: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update category rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("category %s: %w", categoryID, sentinel.ErrNotFound)
	}
	return nil
}

const selectColumns = `
	SELECT id, name, expense_type, default_allocation, requires_receipt, active, created_at
	FROM expense_categories`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*category.Category, error) {
	var (
		cat               category.Category
		categoryID        uuid.UUID
		expenseType       string
		defaultAllocation string
	)
	err := row.Scan(&categoryID, &cat.Name, &expenseType, &defaultAllocation, &cat.RequiresReceipt, &cat.Active, &cat.CreatedAt)
	if err != nil {
		return nil, err
	}
	allocation, err := decimal.NewFromString(defaultAllocation)
	if err != nil {
		return nil, fmt.Errorf("parse default allocation: %w", err)
	}
	cat.ID = id.CategoryID(categoryID)
	cat.ExpenseType = category.ExpenseType(expenseType)
	cat.DefaultAllocation = allocation
	return &cat, nil
}
