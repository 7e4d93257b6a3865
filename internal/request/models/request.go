// Package models defines the expense request aggregate, its approval actions
// and the workflow state machine they move through.
package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"expenseflow/internal/category"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
)

// Status is the closed set of workflow states.
type Status string

const (
	StatusDraft             Status = "DRAFT"
	StatusSubmitted         Status = "SUBMITTED"
	StatusUnderReview       Status = "UNDER_REVIEW"
	StatusApproved          Status = "APPROVED"
	StatusRejected          Status = "REJECTED"
	StatusReturned          Status = "RETURNED"
	StatusPaymentProcessing Status = "PAYMENT_PROCESSING"
	StatusPaid              Status = "PAID"
)

// IsValid reports whether s is one of the eight defined states.
func (s Status) IsValid() bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved,
		StatusRejected, StatusReturned, StatusPaymentProcessing, StatusPaid:
		return true
	}
	return false
}

// IsTerminal reports whether no further transitions are defined from s.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusPaid
}

// ExpenseRequest is one reimbursement/benefit claim.
//
// Invariants:
//   - Status is always one of the defined states
//   - ExpenseType is derived from the category at creation and immutable
//   - SubmittedAt is set iff the request passed through SUBMITTED since its
//     last DRAFT/RETURNED reset
//   - TotalAmount > 0 once submitted
type ExpenseRequest struct {
	ID            id.RequestID         `json:"id"`
	RequestNumber string               `json:"requestNumber"`
	EmployeeID    id.EmployeeID        `json:"employeeId"`
	CategoryID    id.CategoryID        `json:"categoryId"`
	ExpenseType   category.ExpenseType `json:"expenseType"`
	Reason        string               `json:"reason"`
	Currency      string               `json:"currency"`
	TotalAmount   decimal.Decimal      `json:"totalAmount"`
	InvoiceNumber string               `json:"invoiceNumber,omitempty"`
	InvoiceDate   *time.Time           `json:"invoiceDate,omitempty"`
	Supplier      string               `json:"supplier,omitempty"`
	Status        Status               `json:"status"`
	SubmittedAt   *time.Time           `json:"submittedAt,omitempty"`

	// Version backs the optimistic concurrency check: every status change
	// must observe the version it read.
	Version   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Editable reports whether the owner may still change the request's fields.
func (r *ExpenseRequest) Editable() bool {
	return r.Status == StatusDraft || r.Status == StatusReturned
}

// ValidateForSubmit checks the required submission fields.
func (r *ExpenseRequest) ValidateForSubmit() error {
	var missing []string
	if r.CategoryID.IsNil() {
		missing = append(missing, "category")
	}
	if strings.TrimSpace(r.Reason) == "" {
		missing = append(missing, "reason")
	}
	if r.Currency == "" {
		missing = append(missing, "currency")
	}
	if !r.TotalAmount.IsPositive() {
		missing = append(missing, "positive amount")
	}
	if strings.TrimSpace(r.InvoiceNumber) == "" {
		missing = append(missing, "invoice number")
	}
	if r.InvoiceDate == nil {
		missing = append(missing, "invoice date")
	}
	if strings.TrimSpace(r.Supplier) == "" {
		missing = append(missing, "supplier")
	}
	if len(missing) > 0 {
		return dErrors.Newf(dErrors.CodeValidation, "request is missing required details: %s", strings.Join(missing, ", "))
	}
	return nil
}

// BudgetYear is the ledger year spend is booked against: the submission year,
// or the current year when the request was never submitted.
func (r *ExpenseRequest) BudgetYear(now time.Time) int {
	if r.SubmittedAt != nil {
		return r.SubmittedAt.Year()
	}
	return now.Year()
}
