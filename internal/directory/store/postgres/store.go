package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"expenseflow/internal/directory"
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

func (s *Store) Put(ctx context.Context, employee *directory.Employee) error {
	query := `
		INSERT INTO employees (id, email, full_name, role, manager_id, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			role = EXCLUDED.role,
			manager_id = EXCLUDED.manager_id,
			active = EXCLUDED.active
	`
	var managerID *uuid.UUID
	if employee.ManagerID != nil {
		mid := uuid.UUID(*employee.ManagerID)
		managerID = &mid
	}
	_, err := s.querier(ctx).ExecContext(ctx, query,
		uuid.UUID(employee.ID),
		employee.Email,
		employee.FullName,
		string(employee.Role),
		managerID,
		employee.Active,
		employee.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert employee: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, employeeID id.EmployeeID) (*directory.Employee, error) {
	query := `
		SELECT id, email, full_name, role, manager_id, active, created_at
		FROM employees
		WHERE id = $1
	`
	employee, err := scanEmployee(s.querier(ctx).QueryRowContext(ctx, query, uuid.UUID(employeeID)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("employee %s: %w", employeeID, sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query employee: %w", err)
	}
	return employee, nil
}

func (s *Store) ListActive(ctx context.Context) ([]*directory.Employee, error) {
	query := `
		SELECT id, email, full_name, role, manager_id, active, created_at
		FROM employees
		WHERE active
		ORDER BY created_at
	`
	rows, err := s.querier(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	defer rows.Close()

	var employees []*directory.Employee
	for rows.Next() {
		employee, err := scanEmployee(rows)
		if err != nil {
			return nil, fmt.Errorf("scan employee: %w", err)
		}
		employees = append(employees, employee)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (*directory.Employee, error) {
	var (
		employee   directory.Employee
		employeeID uuid.UUID
		role       string
		managerID  *uuid.UUID
	)
	err := row.Scan(&employeeID, &employee.Email, &employee.FullName, &role, &managerID, &employee.Active, &employee.CreatedAt)
	if err != nil {
		return nil, err
	}
	employee.ID = id.EmployeeID(employeeID)
	employee.Role = id.Role(role)
	if managerID != nil {
		mid := id.EmployeeID(*managerID)
		employee.ManagerID = &mid
	}
	return &employee, nil
}
