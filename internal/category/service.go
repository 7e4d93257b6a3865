package category

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"expenseflow/internal/audit"
	"expenseflow/internal/budget"
	"expenseflow/internal/directory"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/sentinel"
	"expenseflow/pkg/requestcontext"
)

// Store persists catalog entries.
type Store interface {
	Create(ctx context.Context, category *Category) error
	Get(ctx context.Context, categoryID id.CategoryID) (*Category, error)
	ListActive(ctx context.Context) ([]*Category, error)
	SetActive(ctx context.Context, categoryID id.CategoryID, active bool) error
}

// Cache is an optional read-through cache in front of the store. Misses and
// cache failures fall back to the store; the catalog changes rarely, so a
// short TTL bounds staleness.
type Cache interface {
	Get(ctx context.Context, categoryID id.CategoryID) (*Category, bool)
	Set(ctx context.Context, category *Category)
	Invalidate(ctx context.Context, categoryID id.CategoryID)
}

// EmployeeLister supplies active employees for allocation back-fill.
type EmployeeLister interface {
	ListActive(ctx context.Context) ([]*directory.Employee, error)
}

// Catalog manages expense categories. Introducing a benefit category
// back-fills a budget allocation for every active employee at the category's
// default allocation.
type Catalog struct {
	store     Store
	ledger    *budget.Ledger
	employees EmployeeLister
	cache     Cache
	chain     *audit.Chain
	logger    *slog.Logger
}

type Option func(*Catalog)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Catalog) {
		c.logger = logger
	}
}

func WithCache(cache Cache) Option {
	return func(c *Catalog) {
		c.cache = cache
	}
}

func WithAuditChain(chain *audit.Chain) Option {
	return func(c *Catalog) {
		c.chain = chain
	}
}

func NewCatalog(store Store, ledger *budget.Ledger, employees EmployeeLister, opts ...Option) (*Catalog, error) {
	if store == nil {
		return nil, fmt.Errorf("category store is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("budget ledger is required")
	}
	if employees == nil {
		return nil, fmt.Errorf("employee lister is required")
	}
	c := &Catalog{store: store, ledger: ledger, employees: employees}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get resolves a category by id, consulting the cache first.
func (c *Catalog) Get(ctx context.Context, categoryID id.CategoryID) (*Category, error) {
	if c.cache != nil {
		if cached, ok := c.cache.Get(ctx, categoryID); ok {
			return cached, nil
		}
	}
	cat, err := c.store.Get(ctx, categoryID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "category not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load category")
	}
	if c.cache != nil {
		c.cache.Set(ctx, cat)
	}
	return cat, nil
}

// ListActive returns the active categories.
func (c *Catalog) ListActive(ctx context.Context) ([]*Category, error) {
	categories, err := c.store.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list categories")
	}
	return categories, nil
}

// Create adds a category. For benefit categories every active employee gets
// an allocation row seeded at the default allocation for the current year.
func (c *Catalog) Create(ctx context.Context, actorID string, name string, expenseType ExpenseType, defaultAllocation decimal.Decimal, requiresReceipt bool) (*Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "category name is required")
	}
	if !expenseType.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "invalid expense type")
	}
	if defaultAllocation.IsNegative() {
		return nil, dErrors.New(dErrors.CodeValidation, "default allocation must be non-negative")
	}

	now := requestcontext.Now(ctx)
	cat := &Category{
		ID:                id.NewCategoryID(),
		Name:              name,
		ExpenseType:       expenseType,
		DefaultAllocation: defaultAllocation,
		RequiresReceipt:   requiresReceipt,
		Active:            true,
		CreatedAt:         now,
	}
	if err := c.store.Create(ctx, cat); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create category")
	}

	if expenseType == TypeBenefit {
		if err := c.backfillAllocations(ctx, cat, now.Year()); err != nil {
			return nil, err
		}
	}

	if c.chain != nil {
		_, err := c.chain.Record(ctx, actorID, "ExpenseCategory", cat.ID.String(), "CREATE_CATEGORY", map[string]any{
			"name":        name,
			"expenseType": string(expenseType),
		})
		if err != nil {
			return nil, err
		}
	}
	return cat, nil
}

// Retire deactivates a category so new requests can no longer use it.
func (c *Catalog) Retire(ctx context.Context, actorID string, categoryID id.CategoryID) error {
	if err := c.store.SetActive(ctx, categoryID, false); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "category not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to retire category")
	}
	if c.cache != nil {
		c.cache.Invalidate(ctx, categoryID)
	}
	if c.chain != nil {
		_, err := c.chain.Record(ctx, actorID, "ExpenseCategory", categoryID.String(), "RETIRE_CATEGORY", nil)
		if err != nil {
			return err
		}
	}
	return nil
}

// SeedEmployee establishes allocations for a newly provisioned employee
// across all active benefit categories.
func (c *Catalog) SeedEmployee(ctx context.Context, employeeID id.EmployeeID, year int) error {
	categories, err := c.store.ListActive(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list categories")
	}
	for _, cat := range categories {
		if cat.ExpenseType != TypeBenefit {
			continue
		}
		if err := c.ledger.SeedAllocation(ctx, employeeID, cat.ID, year, cat.DefaultAllocation); err != nil {
			return err
		}
	}
	return nil
}

func (c *Catalog) backfillAllocations(ctx context.Context, cat *Category, year int) error {
	employees, err := c.employees.ListActive(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to list employees for back-fill")
	}
	for _, employee := range employees {
		if err := c.ledger.SeedAllocation(ctx, employee.ID, cat.ID, year, cat.DefaultAllocation); err != nil {
			return err
		}
	}
	if c.logger != nil {
		c.logger.InfoContext(ctx, "benefit allocations back-filled",
			"category_id", cat.ID.String(),
			"employees", len(employees),
			"year", year,
		)
	}
	return nil
}
