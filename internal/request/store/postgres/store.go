package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"expenseflow/internal/category"
	"expenseflow/internal/request/models"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/sentinel"
	txcontext "expenseflow/pkg/platform/tx"
)

// Store persists expense requests and their action rows in PostgreSQL.
// Updates are optimistic: the UPDATE carries the version the caller read, so
// of two concurrent transitions exactly one commits.
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

func (s *Store) Create(ctx context.Context, request *models.ExpenseRequest) error {
	query := `
		INSERT INTO expense_requests (
			id, request_number, employee_id, category_id, expense_type,
			reason, currency, total_amount, invoice_number, invoice_date,
			supplier, status, submitted_at, version, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(request.ID),
		request.RequestNumber,
		uuid.UUID(request.EmployeeID),
		uuid.UUID(request.CategoryID),
		string(request.ExpenseType),
		request.Reason,
		request.Currency,
		request.TotalAmount.String(),
		request.InvoiceNumber,
		request.InvoiceDate,
		request.Supplier,
		string(request.Status),
		request.SubmittedAt,
		request.Version,
		request.CreatedAt,
		request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert request: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, requestID id.RequestID) (*models.ExpenseRequest, error) {
	query := selectColumns + ` WHERE id = $1`
	request, err := scanRequest(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(requestID)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query request: %w", err)
	}
	return request, nil
}

func (s *Store) Update(ctx context.Context, request *models.ExpenseRequest) error {
	query := `
		UPDATE expense_requests
		SET reason = $3, currency = $4, total_amount = $5, invoice_number = $6,
		    invoice_date = $7, supplier = $8, status = $9, submitted_at = $10,
		    version = version + 1, updated_at = $11
		WHERE id = $1 AND version = $2
	`
	result, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(request.ID),
		request.Version,
		request.Reason,
		request.Currency,
		request.TotalAmount.String(),
		request.InvoiceNumber,
		request.InvoiceDate,
		request.Supplier,
		string(request.Status),
		request.SubmittedAt,
		request.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update request rows affected: %w", err)
	}
	if affected == 0 {
		// Either the row is gone or another transition already bumped the
		// version.
		if _, err := s.Get(ctx, request.ID); err != nil {
			return err
		}
		return fmt.Errorf("request %s version %d: %w", request.ID, request.Version, sentinel.ErrConflict)
	}
	request.Version++
	return nil
}

func (s *Store) Delete(ctx context.Context, requestID id.RequestID) error {
	result, err := s.querier(ctx).ExecContext(ctx,
		`DELETE FROM expense_requests WHERE id = $1`, uuid.UUID(requestID))
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete request rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("request %s: %w", requestID, sentinel.ErrNotFound)
	}
	return nil
}

func (s *Store) ListByEmployee(ctx context.Context, employeeID id.EmployeeID) ([]*models.ExpenseRequest, error) {
	query := selectColumns + ` WHERE employee_id = $1 ORDER BY created_at`
	return s.queryRequests(ctx, query, uuid.UUID(employeeID))
}

func (s *Store) ListAll(ctx context.Context) ([]*models.ExpenseRequest, error) {
	query := selectColumns + ` ORDER BY created_at`
	return s.queryRequests(ctx, query)
}

// NextSequence advances the per-year request counter. The row lock taken by
// the UPDATE serializes number assignment.
func (s *Store) NextSequence(ctx context.Context, year int) (int64, error) {
	query := `
		INSERT INTO request_sequences (year, value)
		VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET value = request_sequences.value + 1
		RETURNING value
	`
	var value int64
	if err := s.querier(ctx).QueryRowContext(ctx, query, year).Scan(&value); err != nil {
		return 0, fmt.Errorf("next request sequence: %w", err)
	}
	return value, nil
}

func (s *Store) AppendAction(ctx context.Context, action *models.ApprovalAction) error {
	query := `
		INSERT INTO approval_actions (
			id, request_id, actor_id, action_type, from_status, to_status, comment, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	var actorID *uuid.UUID
	if action.ActorID != nil {
		aid := uuid.UUID(*action.ActorID)
		actorID = &aid
	}
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(action.ID),
		uuid.UUID(action.RequestID),
		actorID,
		string(action.ActionType),
		string(action.FromStatus),
		string(action.ToStatus),
		action.Comment,
		action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert approval action: %w", err)
	}
	return nil
}

func (s *Store) ListActions(ctx context.Context, requestID id.RequestID) ([]*models.ApprovalAction, error) {
	query := `
		SELECT id, request_id, actor_id, action_type, from_status, to_status, comment, created_at
		FROM approval_actions
		WHERE request_id = $1
		ORDER BY created_at
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query, uuid.UUID(requestID))
	if err != nil {
		return nil, fmt.Errorf("list approval actions: %w", err)
	}
	defer rows.Close()

	var actions []*models.ApprovalAction
	for rows.Next() {
		var (
			action    models.ApprovalAction
			actionID  uuid.UUID
			requestID uuid.UUID
			actorID   *uuid.UUID
		)
		err := rows.Scan(&actionID, &requestID, &actorID,
			(*string)(&action.ActionType), (*string)(&action.FromStatus), (*string)(&action.ToStatus),
			&action.Comment, &action.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan approval action: %w", err)
		}
		action.ID = id.ActionID(actionID)
		action.RequestID = id.RequestID(requestID)
		if actorID != nil {
			aid := id.EmployeeID(*actorID)
			action.ActorID = &aid
		}
		actions = append(actions, &action)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval actions: %w", err)
	}
	return actions, nil
}

const selectColumns = `
	SELECT id, request_number, employee_id, category_id, expense_type,
	       reason, currency, total_amount, invoice_number, invoice_date,
	       supplier, status, submitted_at, version, created_at, updated_at
	FROM expense_requests`

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]*models.ExpenseRequest, error) {
	rows, err := s.querier(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requests: %w", err)
	}
	defer rows.Close()

	var requests []*models.ExpenseRequest
	for rows.Next() {
		request, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		requests = append(requests, request)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requests: %w", err)
	}
	return requests, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.ExpenseRequest, error) {
	var (
		request     models.ExpenseRequest
		requestID   uuid.UUID
		employeeID  uuid.UUID
		categoryID  uuid.UUID
		expenseType string
		totalAmount string
		status      string
	)
	err := row.Scan(
		&requestID,
		&request.RequestNumber,
		&employeeID,
		&categoryID,
		&expenseType,
		&request.Reason,
		&request.Currency,
		&totalAmount,
		&request.InvoiceNumber,
		&request.InvoiceDate,
		&request.Supplier,
		&status,
		&request.SubmittedAt,
		&request.Version,
		&request.CreatedAt,
		&request.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(totalAmount)
	if err != nil {
		return nil, fmt.Errorf("parse total amount: %w", err)
	}
	request.ID = id.RequestID(requestID)
	request.EmployeeID = id.EmployeeID(employeeID)
	request.CategoryID = id.CategoryID(categoryID)
	request.ExpenseType = category.ExpenseType(expenseType)
	request.TotalAmount = amount
	request.Status = models.Status(status)
	return &request, nil
}
