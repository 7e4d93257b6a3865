package models

import (
	"time"

	id "expenseflow/pkg/domain"
)

// ActionType names one workflow transition kind.
type ActionType string

const (
	ActionSubmit         ActionType = "SUBMIT"
	ActionAutoReview     ActionType = "AUTO_REVIEW"
	ActionApprove        ActionType = "APPROVE"
	ActionReject         ActionType = "REJECT"
	ActionReturn         ActionType = "RETURN"
	ActionWithdraw       ActionType = "WITHDRAW"
	ActionFinanceProcess ActionType = "FINANCE_PROCESS"
	ActionPaid           ActionType = "PAID"
)

// ApprovalAction is the immutable record of one workflow transition.
// Append-only; never updated or deleted once created.
type ApprovalAction struct {
	ID         id.ActionID    `json:"id"`
	RequestID  id.RequestID   `json:"requestId"`
	ActorID    *id.EmployeeID `json:"actorId,omitempty"` // nil for legacy/system actions
	ActionType ActionType     `json:"actionType"`
	FromStatus Status         `json:"fromStatus"`
	ToStatus   Status         `json:"toStatus"`
	Comment    string         `json:"comment,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}
