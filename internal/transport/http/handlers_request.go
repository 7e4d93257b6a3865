package httptransport

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"expenseflow/internal/request/models"
	"expenseflow/internal/request/service"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/httputil"
	"expenseflow/pkg/requestcontext"
)

// requestBody is the wire form of the employee-editable fields.
type requestBody struct {
	CategoryID    string  `json:"categoryId"`
	Reason        string  `json:"reason"`
	Currency      string  `json:"currency"`
	TotalAmount   string  `json:"totalAmount"`
	InvoiceNumber string  `json:"invoiceNumber"`
	InvoiceDate   *string `json:"invoiceDate"`
	Supplier      string  `json:"supplier"`
}

type commentBody struct {
	Comment string `json:"comment"`
}

func (b requestBody) toInput() (service.CreateInput, error) {
	categoryID, err := id.ParseCategoryID(b.CategoryID)
	if err != nil {
		return service.CreateInput{}, dErrors.New(dErrors.CodeBadRequest, "categoryId is not a valid id")
	}
	amount, err := decimal.NewFromString(b.TotalAmount)
	if err != nil {
		return service.CreateInput{}, dErrors.New(dErrors.CodeBadRequest, "totalAmount is not a valid decimal")
	}
	input := service.CreateInput{
		CategoryID:    categoryID,
		Reason:        b.Reason,
		Currency:      b.Currency,
		TotalAmount:   amount,
		InvoiceNumber: b.InvoiceNumber,
		Supplier:      b.Supplier,
	}
	if b.InvoiceDate != nil {
		parsed, err := time.Parse(time.RFC3339, *b.InvoiceDate)
		if err != nil {
			// Also accept a bare date.
			parsed, err = time.Parse("2006-01-02", *b.InvoiceDate)
			if err != nil {
				return service.CreateInput{}, dErrors.New(dErrors.CodeBadRequest, "invoiceDate must be RFC 3339 or YYYY-MM-DD")
			}
		}
		input.InvoiceDate = &parsed
	}
	return input, nil
}

func actorFrom(r *http.Request) (requestcontext.ActorIdentity, bool) {
	return requestcontext.Actor(r.Context())
}

func requestIDParam(r *http.Request) (id.RequestID, error) {
	requestID, err := id.ParseRequestID(chi.URLParam(r, "requestID"))
	if err != nil {
		return id.RequestID{}, dErrors.New(dErrors.CodeBadRequest, "request id is not valid")
	}
	return requestID, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON")
	}
	return nil
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor"))
		return
	}
	var body requestBody
	if err := decodeBody(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	input, err := body.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	request, err := h.workflow.Create(r.Context(), actor, input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, request)
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor"))
		return
	}
	requests, err := h.workflow.List(r.Context(), actor)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, requests)
}

func (h *Handler) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor"))
		return
	}
	requestID, err := requestIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	details, err := h.workflow.Get(r.Context(), actor, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, details)
}

func (h *Handler) handleUpdateRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor"))
		return
	}
	requestID, err := requestIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body requestBody
	if err := decodeBody(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	input, err := body.toInput()
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	request, err := h.workflow.Update(r.Context(), actor, requestID, input)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor"))
		return
	}
	requestID, err := requestIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	if err := h.workflow.Cancel(r.Context(), actor, requestID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.workflow.Submit)
}

func (h *Handler) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.workflow.Withdraw)
}

func (h *Handler) handleFinanceProcess(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.workflow.FinanceProcess)
}

func (h *Handler) handleFinancePaid(w http.ResponseWriter, r *http.Request) {
	h.handleTransition(w, r, h.workflow.FinancePaid)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.workflow.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.workflow.Reject)
}

func (h *Handler) handleReturn(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.workflow.Return)
}

func (h *Handler) handleTransition(w http.ResponseWriter, r *http.Request, op func(context.Context, requestcontext.ActorIdentity, id.RequestID) (*models.ExpenseRequest, error)) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor"))
		return
	}
	requestID, err := requestIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	request, err := op(r.Context(), actor, requestID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, op func(context.Context, requestcontext.ActorIdentity, id.RequestID, string) (*models.ExpenseRequest, error)) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor"))
		return
	}
	requestID, err := requestIDParam(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	// An absent body is a decision without a comment; the service decides
	// whether that is acceptable.
	var body commentBody
	if decodeErr := json.NewDecoder(r.Body).Decode(&body); decodeErr != nil && !errors.Is(decodeErr, io.EOF) {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "request body is not valid JSON"))
		return
	}
	request, err := op(r.Context(), actor, requestID, body.Comment)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, request)
}
