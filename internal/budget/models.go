// Package budget tracks per (employee, category, year) benefit allocations
// and enforces that recorded spend never exceeds the allocation.
package budget

import (
	"github.com/shopspring/decimal"

	id "expenseflow/pkg/domain"
)

// Allocation is one ledger row. Amounts are in the canonical currency and
// non-negative.
type Allocation struct {
	EmployeeID id.EmployeeID   `json:"employeeId"`
	CategoryID id.CategoryID   `json:"categoryId"`
	Year       int             `json:"year"`
	Allocated  decimal.Decimal `json:"allocated"`
	Spent      decimal.Decimal `json:"spent"`
}

// Remaining is the capacity left on the row.
func (a *Allocation) Remaining() decimal.Decimal {
	return a.Allocated.Sub(a.Spent)
}

// Capacity is the result of an admission check.
type Capacity struct {
	Allowed   bool
	Remaining decimal.Decimal
}
