// Package category provides the expense category catalog. Benefit categories
// carry a finite annual per-employee allocation; travel and protocol
// categories bypass the budget ledger entirely.
package category

import (
	"time"

	"github.com/shopspring/decimal"

	id "expenseflow/pkg/domain"
)

// ExpenseType classifies a category. Derived onto each request at creation
// time and immutable thereafter.
type ExpenseType string

const (
	TypeBenefit  ExpenseType = "BENEFIT"
	TypeTravel   ExpenseType = "TRAVEL"
	TypeProtocol ExpenseType = "PROTOCOL"
)

// IsValid reports whether t is one of the defined expense types.
func (t ExpenseType) IsValid() bool {
	switch t {
	case TypeBenefit, TypeTravel, TypeProtocol:
		return true
	}
	return false
}

// Category is one catalog entry.
type Category struct {
	ID                id.CategoryID   `json:"id"`
	Name              string          `json:"name"`
	ExpenseType       ExpenseType     `json:"expenseType"`
	DefaultAllocation decimal.Decimal `json:"defaultAllocation"`
	RequiresReceipt   bool            `json:"requiresReceipt"`
	Active            bool            `json:"active"`
	CreatedAt         time.Time       `json:"createdAt"`
}
