// Package service implements the approval workflow: the lifecycle of an
// expense request from draft through submission, review, finance processing
// and payment. Every status change writes its action row and audit entry in
// the same unit of work as the status itself.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopspring/decimal"

	"expenseflow/internal/audit"
	"expenseflow/internal/budget"
	"expenseflow/internal/category"
	"expenseflow/internal/currency"
	"expenseflow/internal/directory"
	"expenseflow/internal/notification"
	"expenseflow/internal/request/metrics"
	"expenseflow/internal/request/models"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/sentinel"
	"expenseflow/pkg/platform/tx"
	"expenseflow/pkg/requestcontext"
)

const auditEntityType = "ExpenseRequest"

// Store persists requests, their action rows and the per-year request number
// counter. Update must be optimistic: it fails with sentinel.ErrConflict when
// the stored version no longer matches the one the caller read.
type Store interface {
	Create(ctx context.Context, request *models.ExpenseRequest) error
	Get(ctx context.Context, requestID id.RequestID) (*models.ExpenseRequest, error)
	Update(ctx context.Context, request *models.ExpenseRequest) error
	Delete(ctx context.Context, requestID id.RequestID) error
	ListByEmployee(ctx context.Context, employeeID id.EmployeeID) ([]*models.ExpenseRequest, error)
	ListAll(ctx context.Context) ([]*models.ExpenseRequest, error)
	NextSequence(ctx context.Context, year int) (int64, error)
	AppendAction(ctx context.Context, action *models.ApprovalAction) error
	ListActions(ctx context.Context, requestID id.RequestID) ([]*models.ApprovalAction, error)
}

// CategoryResolver supplies catalog entries for admission and validation.
type CategoryResolver interface {
	Get(ctx context.Context, categoryID id.CategoryID) (*category.Category, error)
}

// EmployeeDirectory resolves employees for authorization and notifications.
type EmployeeDirectory interface {
	Get(ctx context.Context, employeeID id.EmployeeID) (*directory.Employee, error)
}

// Workflow is the approval workflow service.
type Workflow struct {
	store     Store
	catalog   CategoryResolver
	ledger    *budget.Ledger
	employees EmployeeDirectory
	policy    directory.TeamPolicy
	chain     *audit.Chain
	txRunner  tx.Runner
	notifier  notification.Notifier
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer
}

type Option func(*Workflow)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Workflow) {
		w.logger = logger
	}
}

func WithNotifier(notifier notification.Notifier) Option {
	return func(w *Workflow) {
		w.notifier = notifier
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Workflow) {
		w.metrics = m
	}
}

func NewWorkflow(store Store, catalog CategoryResolver, ledger *budget.Ledger, employees EmployeeDirectory, chain *audit.Chain, txRunner tx.Runner, opts ...Option) (*Workflow, error) {
	if store == nil {
		return nil, fmt.Errorf("request store is required")
	}
	if catalog == nil {
		return nil, fmt.Errorf("category resolver is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("budget ledger is required")
	}
	if employees == nil {
		return nil, fmt.Errorf("employee directory is required")
	}
	if chain == nil {
		return nil, fmt.Errorf("audit chain is required")
	}
	if txRunner == nil {
		return nil, fmt.Errorf("tx runner is required")
	}
	w := &Workflow{
		store:     store,
		catalog:   catalog,
		ledger:    ledger,
		employees: employees,
		chain:     chain,
		txRunner:  txRunner,
		tracer:    otel.Tracer("expenseflow/request"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// CreateInput carries the employee-editable fields of a request.
type CreateInput struct {
	CategoryID    id.CategoryID
	Reason        string
	Currency      string
	TotalAmount   decimal.Decimal
	InvoiceNumber string
	InvoiceDate   *time.Time
	Supplier      string
}

// Create opens a new DRAFT request for the actor. Benefit requests are
// admission-checked against the actor's remaining allocation so an obviously
// unaffordable claim is refused before it enters the workflow.
func (w *Workflow) Create(ctx context.Context, actor requestcontext.ActorIdentity, input CreateInput) (*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Create")
	defer span.End()

	if !currency.IsSupported(input.Currency) {
		return nil, w.denied(dErrors.Newf(dErrors.CodeUnsupportedCurrency, "currency %q is not supported", input.Currency))
	}
	if !input.TotalAmount.IsPositive() {
		return nil, w.denied(dErrors.New(dErrors.CodeValidation, "total amount must be positive"))
	}

	cat, err := w.catalog.Get(ctx, input.CategoryID)
	if err != nil {
		return nil, w.denied(err)
	}
	if !cat.Active {
		return nil, w.denied(dErrors.New(dErrors.CodeValidation, "category is no longer active"))
	}

	now := requestcontext.Now(ctx)

	if cat.ExpenseType == category.TypeBenefit {
		if err := w.checkBenefitCapacity(ctx, actor.ID, cat.ID, now.Year(), input.TotalAmount, input.Currency); err != nil {
			return nil, w.denied(err)
		}
	}

	request := &models.ExpenseRequest{
		ID:            id.NewRequestID(),
		EmployeeID:    actor.ID,
		CategoryID:    cat.ID,
		ExpenseType:   cat.ExpenseType,
		Reason:        input.Reason,
		Currency:      input.Currency,
		TotalAmount:   input.TotalAmount,
		InvoiceNumber: input.InvoiceNumber,
		InvoiceDate:   input.InvoiceDate,
		Supplier:      input.Supplier,
		Status:        models.StatusDraft,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err = w.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		sequence, err := w.store.NextSequence(ctx, now.Year())
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign request number")
		}
		request.RequestNumber = fmt.Sprintf("REQ-%d-%05d", now.Year(), sequence)

		if err := w.store.Create(ctx, request); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create request")
		}
		_, err = w.chain.Record(ctx, actor.ID.String(), auditEntityType, request.ID.String(), "CREATE", map[string]any{
			"requestNumber": request.RequestNumber,
			"categoryId":    cat.ID.String(),
			"currency":      request.Currency,
			"totalAmount":   request.TotalAmount.String(),
		})
		return err
	})
	if err != nil {
		return nil, w.denied(err)
	}

	if w.metrics != nil {
		w.metrics.RequestsCreated.Inc()
	}
	span.SetAttributes(attribute.String("request.number", request.RequestNumber))
	w.logInfo(ctx, "request created",
		"request_id", request.ID.String(),
		"request_number", request.RequestNumber,
		"employee_id", actor.ID.String(),
	)
	return request, nil
}

// Update replaces the editable fields of a DRAFT or RETURNED request. Only
// the owner may edit; the status and expense type never change here.
func (w *Workflow) Update(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID, input CreateInput) (*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Update")
	defer span.End()

	if !currency.IsSupported(input.Currency) {
		return nil, w.denied(dErrors.Newf(dErrors.CodeUnsupportedCurrency, "currency %q is not supported", input.Currency))
	}
	if !input.TotalAmount.IsPositive() {
		return nil, w.denied(dErrors.New(dErrors.CodeValidation, "total amount must be positive"))
	}

	var updated *models.ExpenseRequest
	err := w.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		request, err := w.loadRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request.EmployeeID != actor.ID {
			return dErrors.New(dErrors.CodeForbidden, "only the owner may edit a request")
		}
		if !request.Editable() {
			return dErrors.Newf(dErrors.CodeInvalidTransition, "request in status %s cannot be edited", request.Status)
		}
		if input.CategoryID != request.CategoryID {
			return dErrors.New(dErrors.CodeValidation, "the category of an existing request cannot change")
		}

		request.Reason = input.Reason
		request.Currency = input.Currency
		request.TotalAmount = input.TotalAmount
		request.InvoiceNumber = input.InvoiceNumber
		request.InvoiceDate = input.InvoiceDate
		request.Supplier = input.Supplier
		request.UpdatedAt = requestcontext.Now(ctx)

		if err := w.saveRequest(ctx, request); err != nil {
			return err
		}
		if _, err := w.chain.Record(ctx, actor.ID.String(), auditEntityType, request.ID.String(), "UPDATE", map[string]any{
			"currency":    request.Currency,
			"totalAmount": request.TotalAmount.String(),
		}); err != nil {
			return err
		}
		updated = request
		return nil
	})
	if err != nil {
		return nil, w.denied(err)
	}
	return updated, nil
}

// Submit moves a DRAFT or RETURNED request to SUBMITTED and immediately on to
// UNDER_REVIEW. Both steps write their own action row and audit entry, in one
// unit of work, so the review queue and the trail agree.
func (w *Workflow) Submit(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID) (*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Submit")
	defer span.End()

	var submitted *models.ExpenseRequest
	err := w.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		request, err := w.loadRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request.EmployeeID != actor.ID {
			return dErrors.New(dErrors.CodeForbidden, "only the owner may submit a request")
		}
		if _, err := models.CheckTransition(models.ActionSubmit, request.Status); err != nil {
			return err
		}
		if err := request.ValidateForSubmit(); err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		if request.ExpenseType == category.TypeBenefit {
			if err := w.checkBenefitCapacity(ctx, request.EmployeeID, request.CategoryID, now.Year(), request.TotalAmount, request.Currency); err != nil {
				return err
			}
		}

		from := request.Status
		request.Status = models.StatusSubmitted
		request.SubmittedAt = &now
		request.UpdatedAt = now
		if err := w.saveRequest(ctx, request); err != nil {
			return err
		}
		if err := w.recordAction(ctx, request, &actor.ID, models.ActionSubmit, from, models.StatusSubmitted, ""); err != nil {
			return err
		}

		request.Status = models.StatusUnderReview
		request.UpdatedAt = now
		if err := w.saveRequest(ctx, request); err != nil {
			return err
		}
		if err := w.recordAction(ctx, request, nil, models.ActionAutoReview, models.StatusSubmitted, models.StatusUnderReview, ""); err != nil {
			return err
		}

		submitted = request
		return nil
	})
	if err != nil {
		return nil, w.denied(err)
	}

	if w.metrics != nil {
		w.metrics.IncrementTransition(string(models.ActionSubmit))
	}
	w.notifyManager(ctx, submitted,
		fmt.Sprintf("ExpenseFlow: Request %s awaits your review", submitted.RequestNumber),
		fmt.Sprintf("Request %s for %s %s was submitted and awaits review.",
			submitted.RequestNumber, submitted.TotalAmount.String(), submitted.Currency))
	return submitted, nil
}

// Withdraw pulls a pending request back to DRAFT. The owner keeps the request
// and may edit and resubmit it; the submission timestamp is cleared.
func (w *Workflow) Withdraw(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID) (*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Withdraw")
	defer span.End()

	return w.transition(ctx, requestID, models.ActionWithdraw, "",
		func(request *models.ExpenseRequest, _ *directory.Employee) error {
			if request.EmployeeID != actor.ID {
				return dErrors.New(dErrors.CodeForbidden, "only the owner may withdraw a request")
			}
			return nil
		},
		func(request *models.ExpenseRequest) {
			request.SubmittedAt = nil
		}, nil, actor)
}

// Cancel removes a DRAFT request entirely. The audit trail keeps the CANCEL
// event even though the request row is gone.
func (w *Workflow) Cancel(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID) error {
	ctx, span := w.tracer.Start(ctx, "workflow.Cancel")
	defer span.End()

	err := w.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		request, err := w.loadRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if request.EmployeeID != actor.ID {
			return dErrors.New(dErrors.CodeForbidden, "only the owner may cancel a request")
		}
		if request.Status != models.StatusDraft {
			return dErrors.Newf(dErrors.CodeInvalidTransition, "only draft requests can be cancelled, not %s", request.Status)
		}
		if _, err := w.chain.Record(ctx, actor.ID.String(), auditEntityType, request.ID.String(), "CANCEL", map[string]any{
			"requestNumber": request.RequestNumber,
		}); err != nil {
			return err
		}
		if err := w.store.Delete(ctx, request.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete request")
		}
		return nil
	})
	if err != nil {
		return w.denied(err)
	}
	w.logInfo(ctx, "request cancelled", "request_id", requestID.String())
	return nil
}

// Approve accepts a pending request. The actor must be the owner's direct
// manager holding the approver role, or a system administrator; a comment is
// mandatory on every decision.
func (w *Workflow) Approve(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID, comment string) (*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Approve")
	defer span.End()
	return w.decide(ctx, actor, requestID, models.ActionApprove, comment, "approved")
}

// Reject refuses a pending request terminally.
func (w *Workflow) Reject(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID, comment string) (*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Reject")
	defer span.End()
	return w.decide(ctx, actor, requestID, models.ActionReject, comment, "rejected")
}

// Return sends a pending request back to the owner for rework.
func (w *Workflow) Return(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID, comment string) (*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Return")
	defer span.End()
	return w.decide(ctx, actor, requestID, models.ActionReturn, comment, "returned for changes")
}

func (w *Workflow) decide(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID, action models.ActionType, comment, word string) (*models.ExpenseRequest, error) {
	request, err := w.transition(ctx, requestID, action, comment,
		func(request *models.ExpenseRequest, owner *directory.Employee) error {
			if err := w.authorizeDecision(ctx, actor, owner); err != nil {
				return err
			}
			if comment == "" {
				return dErrors.New(dErrors.CodeValidation, "a comment is required on approval decisions")
			}
			return nil
		}, nil, nil, actor)
	if err != nil {
		return nil, err
	}
	w.notifyOwner(ctx, request,
		fmt.Sprintf("ExpenseFlow: Request %s %s", request.RequestNumber, word),
		fmt.Sprintf("Your request %s was %s.\n\nComment: %s", request.RequestNumber, word, comment))
	return request, nil
}

// FinanceProcess marks an approved request as entering payment.
func (w *Workflow) FinanceProcess(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID) (*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.FinanceProcess")
	defer span.End()

	return w.transition(ctx, requestID, models.ActionFinanceProcess, "",
		func(_ *models.ExpenseRequest, _ *directory.Employee) error {
			return w.authorizeFinance(actor)
		}, nil, nil, actor)
}

// FinancePaid settles a request. For benefit requests the converted amount is
// booked against the owner's allocation in the same unit of work, keyed to
// the submission year, so payment and ledger never disagree.
func (w *Workflow) FinancePaid(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID) (*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.FinancePaid")
	defer span.End()

	request, err := w.transition(ctx, requestID, models.ActionPaid, "",
		func(_ *models.ExpenseRequest, _ *directory.Employee) error {
			return w.authorizeFinance(actor)
		}, nil,
		func(ctx context.Context, request *models.ExpenseRequest) error {
			if request.ExpenseType != category.TypeBenefit {
				return nil
			}
			year := request.BudgetYear(requestcontext.Now(ctx))
			return w.ledger.RecordSpend(ctx, request.EmployeeID, request.CategoryID, year, request.TotalAmount, request.Currency)
		}, actor)
	if err != nil {
		return nil, err
	}
	w.notifyOwner(ctx, request,
		fmt.Sprintf("ExpenseFlow: Request %s paid", request.RequestNumber),
		fmt.Sprintf("Your request %s for %s %s was paid.", request.RequestNumber, request.TotalAmount.String(), request.Currency))
	return request, nil
}

// RequestDetails is a request together with its action history, actor names
// resolved for display.
type RequestDetails struct {
	Request *models.ExpenseRequest `json:"request"`
	Actions []ActionView           `json:"actions"`
}

// ActionView is one history row with the acting employee's display name.
type ActionView struct {
	models.ApprovalAction
	ActorName string `json:"actorName,omitempty"`
}

// Get returns a request with its history. Owners always see their own
// requests; approvers see their reports' requests; finance and system
// administrators see everything.
func (w *Workflow) Get(ctx context.Context, actor requestcontext.ActorIdentity, requestID id.RequestID) (*RequestDetails, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.Get")
	defer span.End()

	request, err := w.loadRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if err := w.authorizeRead(ctx, actor, request); err != nil {
		return nil, err
	}

	actions, err := w.store.ListActions(ctx, requestID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request history")
	}

	views := make([]ActionView, 0, len(actions))
	names := make(map[id.EmployeeID]string)
	for _, action := range actions {
		view := ActionView{ApprovalAction: *action}
		if action.ActorID != nil {
			name, ok := names[*action.ActorID]
			if !ok {
				if employee, err := w.employees.Get(ctx, *action.ActorID); err == nil {
					name = employee.FullName
				}
				names[*action.ActorID] = name
			}
			view.ActorName = name
		}
		views = append(views, view)
	}
	return &RequestDetails{Request: request, Actions: views}, nil
}

// List returns the actor's own requests, or every request for finance and
// system administrators.
func (w *Workflow) List(ctx context.Context, actor requestcontext.ActorIdentity) ([]*models.ExpenseRequest, error) {
	ctx, span := w.tracer.Start(ctx, "workflow.List")
	defer span.End()

	var (
		requests []*models.ExpenseRequest
		err      error
	)
	if actor.Role == id.RoleFinanceAdmin || actor.Role == id.RoleSystemAdmin {
		requests, err = w.store.ListAll(ctx)
	} else {
		requests, err = w.store.ListByEmployee(ctx, actor.ID)
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list requests")
	}
	return requests, nil
}

// transition runs one state machine step in a single unit of work: load,
// authorize, validate the edge, persist, append the action row and the audit
// entry, then any post-save effect (ledger spend on PAID). A concurrent
// update surfaces as InvalidTransition because the state the caller saw is
// gone. The effect runs only after the optimistic save succeeded, so exactly
// one of two racing PAID transitions ever books spend.
func (w *Workflow) transition(
	ctx context.Context,
	requestID id.RequestID,
	action models.ActionType,
	comment string,
	authorize func(request *models.ExpenseRequest, owner *directory.Employee) error,
	mutate func(request *models.ExpenseRequest),
	effect func(ctx context.Context, request *models.ExpenseRequest) error,
	actor requestcontext.ActorIdentity,
) (*models.ExpenseRequest, error) {
	var result *models.ExpenseRequest
	err := w.txRunner.RunInTx(ctx, func(ctx context.Context) error {
		request, err := w.loadRequest(ctx, requestID)
		if err != nil {
			return err
		}
		owner, err := w.employees.Get(ctx, request.EmployeeID)
		if err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request owner")
		}
		if err := authorize(request, owner); err != nil {
			return err
		}
		target, err := models.CheckTransition(action, request.Status)
		if err != nil {
			return err
		}

		from := request.Status
		request.Status = target
		request.UpdatedAt = requestcontext.Now(ctx)
		if mutate != nil {
			mutate(request)
		}
		if err := w.saveRequest(ctx, request); err != nil {
			return err
		}
		if err := w.recordAction(ctx, request, &actor.ID, action, from, target, comment); err != nil {
			return err
		}
		if effect != nil {
			if err := effect(ctx, request); err != nil {
				return err
			}
		}
		result = request
		return nil
	})
	if err != nil {
		return nil, w.denied(err)
	}

	if w.metrics != nil {
		w.metrics.IncrementTransition(string(action))
	}
	w.logInfo(ctx, "request transitioned",
		"request_id", requestID.String(),
		"action", string(action),
		"status", string(result.Status),
	)
	return result, nil
}

// recordAction appends the action row and the matching audit entry.
func (w *Workflow) recordAction(ctx context.Context, request *models.ExpenseRequest, actorID *id.EmployeeID, action models.ActionType, from, to models.Status, comment string) error {
	row := &models.ApprovalAction{
		ID:         id.NewActionID(),
		RequestID:  request.ID,
		ActorID:    actorID,
		ActionType: action,
		FromStatus: from,
		ToStatus:   to,
		Comment:    comment,
		CreatedAt:  requestcontext.Now(ctx),
	}
	if err := w.store.AppendAction(ctx, row); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append approval action")
	}

	auditActor := "system"
	if actorID != nil {
		auditActor = actorID.String()
	}
	eventData := map[string]any{
		"fromStatus": string(from),
		"toStatus":   string(to),
	}
	if comment != "" {
		eventData["comment"] = comment
	}
	_, err := w.chain.Record(ctx, auditActor, auditEntityType, request.ID.String(), string(action), eventData)
	return err
}

func (w *Workflow) checkBenefitCapacity(ctx context.Context, employeeID id.EmployeeID, categoryID id.CategoryID, year int, amount decimal.Decimal, currencyCode string) error {
	capacity, err := w.ledger.CheckCapacity(ctx, employeeID, categoryID, year, amount, currencyCode)
	if err != nil {
		return err
	}
	if !capacity.Allowed {
		return dErrors.New(dErrors.CodeBudgetExceeded, "request exceeds the remaining budget").
			WithDetail("remaining", capacity.Remaining.String())
	}
	return nil
}

func (w *Workflow) authorizeDecision(ctx context.Context, actor requestcontext.ActorIdentity, owner *directory.Employee) error {
	if actor.Role == id.RoleSystemAdmin {
		return nil
	}
	if actor.Role != id.RoleApprover {
		return dErrors.New(dErrors.CodeForbidden, "only approvers may decide on requests")
	}
	approver, err := w.employees.Get(ctx, actor.ID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeForbidden, "approver is not in the employee directory")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approver")
	}
	if !w.policy.CanActOn(approver, owner) {
		return dErrors.New(dErrors.CodeForbidden, "approvers may only decide on their direct reports' requests")
	}
	return nil
}

func (w *Workflow) authorizeFinance(actor requestcontext.ActorIdentity) error {
	if actor.Role == id.RoleFinanceAdmin || actor.Role == id.RoleSystemAdmin {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "only finance administrators may process payments")
}

func (w *Workflow) authorizeRead(ctx context.Context, actor requestcontext.ActorIdentity, request *models.ExpenseRequest) error {
	if request.EmployeeID == actor.ID {
		return nil
	}
	switch actor.Role {
	case id.RoleFinanceAdmin, id.RoleSystemAdmin:
		return nil
	case id.RoleApprover:
		owner, err := w.employees.Get(ctx, request.EmployeeID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeForbidden, "you may not view this request")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request owner")
		}
		approver, err := w.employees.Get(ctx, actor.ID)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeForbidden, "you may not view this request")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load approver")
		}
		if w.policy.CanActOn(approver, owner) {
			return nil
		}
	}
	return dErrors.New(dErrors.CodeForbidden, "you may not view this request")
}

func (w *Workflow) loadRequest(ctx context.Context, requestID id.RequestID) (*models.ExpenseRequest, error) {
	request, err := w.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load request")
	}
	return request, nil
}

// saveRequest translates the optimistic store conflict: when another actor
// changed the request between our read and write, the transition the caller
// asked for is no longer valid from the state they observed.
func (w *Workflow) saveRequest(ctx context.Context, request *models.ExpenseRequest) error {
	if err := w.store.Update(ctx, request); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return dErrors.New(dErrors.CodeInvalidTransition, "request was modified concurrently, reload and retry")
		}
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "request not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update request")
	}
	return nil
}

// denied counts a refused operation and passes the error through unchanged.
func (w *Workflow) denied(err error) error {
	if w.metrics != nil {
		w.metrics.IncrementDenied(string(dErrors.CodeOf(err)))
	}
	return err
}

func (w *Workflow) notifyOwner(ctx context.Context, request *models.ExpenseRequest, subject, body string) {
	if w.notifier == nil {
		return
	}
	owner, err := w.employees.Get(ctx, request.EmployeeID)
	if err != nil || owner.Email == "" {
		return
	}
	w.sendAsync(ctx, owner.Email, subject, body)
}

func (w *Workflow) notifyManager(ctx context.Context, request *models.ExpenseRequest, subject, body string) {
	if w.notifier == nil {
		return
	}
	owner, err := w.employees.Get(ctx, request.EmployeeID)
	if err != nil || owner.ManagerID == nil {
		return
	}
	manager, err := w.employees.Get(ctx, *owner.ManagerID)
	if err != nil || manager.Email == "" {
		return
	}
	w.sendAsync(ctx, manager.Email, subject, body)
}

// sendAsync delivers mail off the request path. The detached context keeps
// delivery alive after the HTTP response is written.
func (w *Workflow) sendAsync(ctx context.Context, to, subject, body string) {
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := w.notifier.Send(detached, to, subject, body); err != nil && w.logger != nil {
			w.logger.WarnContext(detached, "notification delivery failed", "to", to, "error", err)
		}
	}()
}

func (w *Workflow) logInfo(ctx context.Context, msg string, args ...any) {
	if w.logger != nil {
		w.logger.InfoContext(ctx, msg, args...)
	}
}
