package budget_test

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"expenseflow/internal/budget"
	"expenseflow/internal/budget/store/memory"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
)

type LedgerSuite struct {
	suite.Suite
	store  *memory.InMemoryStore
	ledger *budget.Ledger
	ctx    context.Context

	employeeID id.EmployeeID
	categoryID id.CategoryID
}

func TestLedgerSuite(t *testing.T) {
	suite.Run(t, new(LedgerSuite))
}

func (s *LedgerSuite) SetupTest() {
	s.store = memory.NewInMemoryStore()

	var err error
	s.ledger, err = budget.NewLedger(s.store)
	s.Require().NoError(err)

	s.ctx = context.Background()
	s.employeeID = id.NewEmployeeID()
	s.categoryID = id.NewCategoryID()
}

func (s *LedgerSuite) seed(allocated int64) {
	err := s.ledger.SeedAllocation(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(allocated))
	s.Require().NoError(err)
}

func (s *LedgerSuite) TestCheckCapacity() {
	s.Run("missing row means zero capacity", func() {
		capacity, err := s.ledger.CheckCapacity(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(10), "EUR")
		s.Require().NoError(err)
		s.False(capacity.Allowed)
		s.True(capacity.Remaining.IsZero())
	})

	s.Run("amount within remaining is allowed", func() {
		s.seed(200)
		capacity, err := s.ledger.CheckCapacity(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(150), "EUR")
		s.Require().NoError(err)
		s.True(capacity.Allowed)
		s.True(capacity.Remaining.Equal(decimal.NewFromInt(200)))
	})

	s.Run("amount beyond remaining is rejected with remaining reported", func() {
		capacity, err := s.ledger.CheckCapacity(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(1000), "EUR")
		s.Require().NoError(err)
		s.False(capacity.Allowed)
		s.True(capacity.Remaining.Equal(decimal.NewFromInt(200)))
	})

	s.Run("amount is converted before comparison", func() {
		// 250 USD -> 230 EUR fits a 200 EUR budget only after spend of 0... it does not.
		capacity, err := s.ledger.CheckCapacity(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(250), "USD")
		s.Require().NoError(err)
		s.False(capacity.Allowed)

		// 200 USD -> 184 EUR fits.
		capacity, err = s.ledger.CheckCapacity(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(200), "USD")
		s.Require().NoError(err)
		s.True(capacity.Allowed)
	})

	s.Run("unsupported currency fails", func() {
		_, err := s.ledger.CheckCapacity(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(10), "GBP")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnsupportedCurrency))
	})
}

func (s *LedgerSuite) TestRecordSpend() {
	s.Run("adds the converted amount to spent", func() {
		s.seed(200)
		// 100 USD at 0.92 on top of spent=50.
		s.Require().NoError(s.ledger.RecordSpend(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(50), "EUR"))
		s.Require().NoError(s.ledger.RecordSpend(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(100), "USD"))

		allocation, err := s.store.Get(s.ctx, s.employeeID, s.categoryID, 2026)
		s.Require().NoError(err)
		s.True(allocation.Spent.Equal(decimal.NewFromInt(142)), "spent = %s", allocation.Spent)
	})

	s.Run("missing row fails with not found", func() {
		err := s.ledger.RecordSpend(s.ctx, id.NewEmployeeID(), s.categoryID, 2026, decimal.NewFromInt(10), "EUR")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("overspend is rejected and reports remaining", func() {
		err := s.ledger.RecordSpend(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(100), "EUR")
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeBudgetExceeded))
		remaining, ok := dErrors.DetailValue(err, "remaining")
		s.Require().True(ok)
		s.Equal("58", remaining)
	})
}

func (s *LedgerSuite) TestSeedAllocation() {
	s.Run("re-seeding refreshes allocated and keeps spent", func() {
		s.seed(200)
		s.Require().NoError(s.ledger.RecordSpend(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(50), "EUR"))

		s.seed(300)
		allocation, err := s.store.Get(s.ctx, s.employeeID, s.categoryID, 2026)
		s.Require().NoError(err)
		s.True(allocation.Allocated.Equal(decimal.NewFromInt(300)))
		s.True(allocation.Spent.Equal(decimal.NewFromInt(50)))
	})

	s.Run("negative allocation is rejected", func() {
		err := s.ledger.SeedAllocation(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(-1))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *LedgerSuite) TestConcurrentSpendNeverOverspends() {
	s.seed(100)

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			errs[i] = s.ledger.RecordSpend(s.ctx, s.employeeID, s.categoryID, 2026, decimal.NewFromInt(10), "EUR")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeBudgetExceeded))
		}
	}
	s.Equal(10, succeeded)

	allocation, err := s.store.Get(s.ctx, s.employeeID, s.categoryID, 2026)
	s.Require().NoError(err)
	s.True(allocation.Spent.Equal(decimal.NewFromInt(100)))
}
