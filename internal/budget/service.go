package budget

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"expenseflow/internal/currency"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/sentinel"
)

// Store persists allocation rows. AddSpend must be a conditional
// read-modify-write: it fails with sentinel.ErrInvalidState instead of
// pushing spent past allocated, and with sentinel.ErrNotFound when the row is
// absent.
type Store interface {
	Get(ctx context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int) (*Allocation, error)
	Upsert(ctx context.Context, allocation *Allocation) error
	AddSpend(ctx context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int, amount decimal.Decimal) error
	ListByEmployee(ctx context.Context, employeeID id.EmployeeID, year int) ([]*Allocation, error)
}

// Ledger is the budget ledger service. Amounts arrive in request currency and
// are normalized through the currency converter before any comparison.
type Ledger struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Ledger)

func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		l.logger = logger
	}
}

func NewLedger(store Store, opts ...Option) (*Ledger, error) {
	if store == nil {
		return nil, fmt.Errorf("budget store is required")
	}
	l := &Ledger{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CheckCapacity reports whether spending the converted amount still fits the
// allocation. A missing row means zero capacity; that is a fact, not an
// error, so callers get {Allowed: false, Remaining: 0}.
func (l *Ledger) CheckCapacity(ctx context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int, amount decimal.Decimal, currencyCode string) (Capacity, error) {
	converted, err := currency.ToCanonical(amount, currencyCode)
	if err != nil {
		return Capacity{}, err
	}

	allocation, err := l.store.Get(ctx, employeeID, categoryID, year)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return Capacity{Allowed: false, Remaining: decimal.Zero}, nil
		}
		return Capacity{}, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load budget allocation")
	}

	remaining := allocation.Remaining()
	return Capacity{
		Allowed:   converted.LessThanOrEqual(remaining),
		Remaining: remaining,
	}, nil
}

// RecordSpend converts and adds the amount to the row's spent total. Invoked
// exactly once per request, at the moment it turns PAID. The store-level
// conditional update is the last line of defense against overspend and lost
// updates under concurrent PAID transitions.
func (l *Ledger) RecordSpend(ctx context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int, amount decimal.Decimal, currencyCode string) error {
	converted, err := currency.ToCanonical(amount, currencyCode)
	if err != nil {
		return err
	}

	if err := l.store.AddSpend(ctx, employeeID, categoryID, year, converted); err != nil {
		switch {
		case errors.Is(err, sentinel.ErrNotFound):
			return dErrors.New(dErrors.CodeNotFound, "budget allocation not found")
		case errors.Is(err, sentinel.ErrInvalidState):
			capacity, capErr := l.CheckCapacity(ctx, employeeID, categoryID, year, amount, currencyCode)
			if capErr != nil {
				return dErrors.New(dErrors.CodeBudgetExceeded, "budget capacity exceeded")
			}
			return dErrors.New(dErrors.CodeBudgetExceeded, "budget capacity exceeded").
				WithDetail("remaining", capacity.Remaining.String())
		default:
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record spend")
		}
	}

	if l.logger != nil {
		l.logger.InfoContext(ctx, "budget spend recorded",
			"employee_id", employeeID.String(),
			"category_id", categoryID.String(),
			"year", year,
			"amount_eur", converted.String(),
		)
	}
	return nil
}

// SeedAllocation establishes or refreshes an allocation row. Idempotent:
// re-seeding updates the allocated amount and leaves recorded spend alone.
func (l *Ledger) SeedAllocation(ctx context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int, allocated decimal.Decimal) error {
	if allocated.IsNegative() {
		return dErrors.New(dErrors.CodeValidation, "allocation must be non-negative")
	}
	allocation := &Allocation{
		EmployeeID: employeeID,
		CategoryID: categoryID,
		Year:       year,
		Allocated:  allocated,
		Spent:      decimal.Zero,
	}
	if err := l.store.Upsert(ctx, allocation); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to seed allocation")
	}
	return nil
}

// ListForEmployee returns the employee's allocation rows for a year.
func (l *Ledger) ListForEmployee(ctx context.Context, employeeID id.EmployeeID, year int) ([]*Allocation, error) {
	allocations, err := l.store.ListByEmployee(ctx, employeeID, year)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list allocations")
	}
	return allocations, nil
}
