package category_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"expenseflow/internal/audit"
	auditmem "expenseflow/internal/audit/store/memory"
	"expenseflow/internal/budget"
	budgetmem "expenseflow/internal/budget/store/memory"
	"expenseflow/internal/category"
	catmem "expenseflow/internal/category/store/memory"
	"expenseflow/internal/directory"
	dirmem "expenseflow/internal/directory/store/memory"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/requestcontext"
)

// recordingCache is an in-process Cache that counts hits so tests can tell
// whether a read was served from the cache or the store.
type recordingCache struct {
	entries map[id.CategoryID]*category.Category
	hits    int
}

func newRecordingCache() *recordingCache {
	return &recordingCache{entries: make(map[id.CategoryID]*category.Category)}
}

func (c *recordingCache) Get(_ context.Context, categoryID id.CategoryID) (*category.Category, bool) {
	cat, ok := c.entries[categoryID]
	if ok {
		c.hits++
	}
	return cat, ok
}

func (c *recordingCache) Set(_ context.Context, cat *category.Category) {
	c.entries[cat.ID] = cat
}

func (c *recordingCache) Invalidate(_ context.Context, categoryID id.CategoryID) {
	delete(c.entries, categoryID)
}

type CatalogSuite struct {
	suite.Suite

	ctx context.Context
	now time.Time

	employees  *dirmem.InMemoryStore
	ledger     *budget.Ledger
	auditStore *auditmem.InMemoryStore
	chain      *audit.Chain
	cache      *recordingCache
	catalog    *category.Catalog

	admin id.EmployeeID
	ana   *directory.Employee
	radu  *directory.Employee
	gone  *directory.Employee // inactive, must never receive allocations
}

func TestCatalogSuite(t *testing.T) {
	suite.Run(t, new(CatalogSuite))
}

func (s *CatalogSuite) SetupTest() {
	s.now = time.Date(2025, 3, 15, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)

	s.employees = dirmem.NewInMemoryStore()
	s.auditStore = auditmem.NewInMemoryStore()
	s.cache = newRecordingCache()

	var err error
	s.chain, err = audit.NewChain(s.auditStore)
	s.Require().NoError(err)

	s.ledger, err = budget.NewLedger(budgetmem.NewInMemoryStore())
	s.Require().NoError(err)

	s.admin = id.NewEmployeeID()
	s.ana = s.seedEmployee("ana@example.com", "Ana Marin", true)
	s.radu = s.seedEmployee("radu@example.com", "Radu Pop", true)
	s.gone = s.seedEmployee("gone@example.com", "Gone Person", false)

	s.catalog, err = category.NewCatalog(catmem.NewInMemoryStore(), s.ledger, s.employees,
		category.WithAuditChain(s.chain),
		category.WithCache(s.cache),
	)
	s.Require().NoError(err)
}

func (s *CatalogSuite) seedEmployee(email, name string, active bool) *directory.Employee {
	employee := &directory.Employee{
		ID:        id.NewEmployeeID(),
		Email:     email,
		FullName:  name,
		Role:      id.RoleEmployee,
		Active:    active,
		CreatedAt: s.now,
	}
	s.Require().NoError(s.employees.Put(s.ctx, employee))
	return employee
}

func (s *CatalogSuite) allocationFor(employeeID id.EmployeeID, categoryID id.CategoryID) *budget.Allocation {
	allocations, err := s.ledger.ListForEmployee(s.ctx, employeeID, s.now.Year())
	s.Require().NoError(err)
	for _, allocation := range allocations {
		if allocation.CategoryID == categoryID {
			return allocation
		}
	}
	return nil
}

func (s *CatalogSuite) TestBenefitCategoryBackfillsActiveEmployees() {
	wellness, err := s.catalog.Create(s.ctx, s.admin.String(), "Wellness", category.TypeBenefit, decimal.NewFromInt(200), true)
	s.Require().NoError(err)

	for _, employee := range []*directory.Employee{s.ana, s.radu} {
		allocation := s.allocationFor(employee.ID, wellness.ID)
		s.Require().NotNil(allocation, "active employee %s should be seeded", employee.FullName)
		s.True(allocation.Allocated.Equal(decimal.NewFromInt(200)))
		s.True(allocation.Spent.IsZero())
	}
	s.Nil(s.allocationFor(s.gone.ID, wellness.ID), "inactive employees get no allocation")
}

func (s *CatalogSuite) TestNonBenefitCategorySeedsNothing() {
	travel, err := s.catalog.Create(s.ctx, s.admin.String(), "Travel", category.TypeTravel, decimal.Zero, true)
	s.Require().NoError(err)

	s.Nil(s.allocationFor(s.ana.ID, travel.ID))
}

func (s *CatalogSuite) TestCreateValidation() {
	_, err := s.catalog.Create(s.ctx, s.admin.String(), "   ", category.TypeBenefit, decimal.NewFromInt(100), true)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.catalog.Create(s.ctx, s.admin.String(), "Wellness", category.ExpenseType("PERKS"), decimal.NewFromInt(100), true)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.catalog.Create(s.ctx, s.admin.String(), "Wellness", category.TypeBenefit, decimal.NewFromInt(-1), true)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))
}

func (s *CatalogSuite) TestRetireRemovesFromActiveListing() {
	wellness, err := s.catalog.Create(s.ctx, s.admin.String(), "Wellness", category.TypeBenefit, decimal.NewFromInt(200), true)
	s.Require().NoError(err)

	s.Require().NoError(s.catalog.Retire(s.ctx, s.admin.String(), wellness.ID))

	active, err := s.catalog.ListActive(s.ctx)
	s.Require().NoError(err)
	s.Empty(active)

	retired, err := s.catalog.Get(s.ctx, wellness.ID)
	s.Require().NoError(err)
	s.False(retired.Active)
}

func (s *CatalogSuite) TestRetireUnknownCategory() {
	err := s.catalog.Retire(s.ctx, s.admin.String(), id.NewCategoryID())
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *CatalogSuite) TestSeedEmployeeCoversActiveBenefitCategoriesOnly() {
	wellness, err := s.catalog.Create(s.ctx, s.admin.String(), "Wellness", category.TypeBenefit, decimal.NewFromInt(200), true)
	s.Require().NoError(err)
	learning, err := s.catalog.Create(s.ctx, s.admin.String(), "Learning", category.TypeBenefit, decimal.NewFromInt(500), false)
	s.Require().NoError(err)
	travel, err := s.catalog.Create(s.ctx, s.admin.String(), "Travel", category.TypeTravel, decimal.Zero, true)
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.Retire(s.ctx, s.admin.String(), learning.ID))

	hire := s.seedEmployee("new@example.com", "New Hire", true)
	s.Require().NoError(s.catalog.SeedEmployee(s.ctx, hire.ID, s.now.Year()))

	s.NotNil(s.allocationFor(hire.ID, wellness.ID))
	s.Nil(s.allocationFor(hire.ID, learning.ID), "retired categories are skipped")
	s.Nil(s.allocationFor(hire.ID, travel.ID), "non-benefit categories are skipped")
}

func (s *CatalogSuite) TestGetReadsThroughCache() {
	wellness, err := s.catalog.Create(s.ctx, s.admin.String(), "Wellness", category.TypeBenefit, decimal.NewFromInt(200), true)
	s.Require().NoError(err)

	first, err := s.catalog.Get(s.ctx, wellness.ID)
	s.Require().NoError(err)
	s.Equal(0, s.cache.hits, "first read comes from the store")

	second, err := s.catalog.Get(s.ctx, wellness.ID)
	s.Require().NoError(err)
	s.Equal(1, s.cache.hits, "second read is served by the cache")
	s.Equal(first.Name, second.Name)
}

func (s *CatalogSuite) TestRetireInvalidatesCache() {
	wellness, err := s.catalog.Create(s.ctx, s.admin.String(), "Wellness", category.TypeBenefit, decimal.NewFromInt(200), true)
	s.Require().NoError(err)

	_, err = s.catalog.Get(s.ctx, wellness.ID)
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.Retire(s.ctx, s.admin.String(), wellness.ID))

	got, err := s.catalog.Get(s.ctx, wellness.ID)
	s.Require().NoError(err)
	s.False(got.Active, "retire must not leave the active copy cached")
}

func (s *CatalogSuite) TestCatalogChangesAreAudited() {
	wellness, err := s.catalog.Create(s.ctx, s.admin.String(), "Wellness", category.TypeBenefit, decimal.NewFromInt(200), true)
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.Retire(s.ctx, s.admin.String(), wellness.ID))

	entries, err := s.auditStore.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("CREATE_CATEGORY", entries[0].EventType)
	s.Equal("RETIRE_CATEGORY", entries[1].EventType)
	s.Equal(wellness.ID.String(), entries[1].EntityID)

	report, err := s.chain.Verify(s.ctx)
	s.Require().NoError(err)
	s.True(report.Valid)
}
