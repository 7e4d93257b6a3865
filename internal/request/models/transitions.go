package models

import dErrors "expenseflow/pkg/domain-errors"

// transitionSources is the state machine's edge table: for each operation,
// the statuses it may be invoked from. Operations absent for a status fail
// with InvalidTransition.
var transitionSources = map[ActionType][]Status{
	ActionSubmit:         {StatusDraft, StatusReturned},
	ActionWithdraw:       {StatusSubmitted, StatusUnderReview},
	ActionApprove:        {StatusSubmitted, StatusUnderReview},
	ActionReject:         {StatusSubmitted, StatusUnderReview},
	ActionReturn:         {StatusSubmitted, StatusUnderReview},
	ActionFinanceProcess: {StatusApproved},
	ActionPaid:           {StatusApproved, StatusPaymentProcessing},
}

// transitionTargets maps each operation to the status it produces. Submit's
// immediate auto-advance to UNDER_REVIEW is modeled as the separate
// AUTO_REVIEW step so both audit events are explicit.
var transitionTargets = map[ActionType]Status{
	ActionSubmit:         StatusSubmitted,
	ActionAutoReview:     StatusUnderReview,
	ActionWithdraw:       StatusDraft,
	ActionApprove:        StatusApproved,
	ActionReject:         StatusRejected,
	ActionReturn:         StatusReturned,
	ActionFinanceProcess: StatusPaymentProcessing,
	ActionPaid:           StatusPaid,
}

// CheckTransition validates that the operation is legal from the current
// status and returns the target status.
func CheckTransition(action ActionType, from Status) (Status, error) {
	for _, allowed := range transitionSources[action] {
		if from == allowed {
			return transitionTargets[action], nil
		}
	}
	return "", dErrors.Newf(dErrors.CodeInvalidTransition, "operation %s is not allowed from status %s", action, from)
}
