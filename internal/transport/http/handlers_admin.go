package httptransport

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"expenseflow/internal/category"
	"expenseflow/internal/directory"
	id "expenseflow/pkg/domain"
	dErrors "expenseflow/pkg/domain-errors"
	"expenseflow/pkg/platform/httputil"
	"expenseflow/pkg/requestcontext"
)

func (h *Handler) handleListBudgets(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor"))
		return
	}
	year := requestcontext.Now(r.Context()).Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "year must be an integer"))
			return
		}
		year = parsed
	}
	allocations, err := h.ledger.ListForEmployee(r.Context(), actor.ID, year)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, allocations)
}

func (h *Handler) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := h.catalog.ListActive(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, categories)
}

type categoryBody struct {
	Name              string `json:"name"`
	ExpenseType       string `json:"expenseType"`
	DefaultAllocation string `json:"defaultAllocation"`
	RequiresReceipt   bool   `json:"requiresReceipt"`
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	actor, err := requireSystemAdmin(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body categoryBody
	if err := decodeBody(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	allocation := decimal.Zero
	if body.DefaultAllocation != "" {
		allocation, err = decimal.NewFromString(body.DefaultAllocation)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "defaultAllocation is not a valid decimal"))
			return
		}
	}
	created, err := h.catalog.Create(r.Context(), actor.ID.String(), body.Name, category.ExpenseType(body.ExpenseType), allocation, body.RequiresReceipt)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleRetireCategory(w http.ResponseWriter, r *http.Request) {
	actor, err := requireSystemAdmin(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	categoryID, err := id.ParseCategoryID(chi.URLParam(r, "categoryID"))
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "category id is not valid"))
		return
	}
	if err := h.catalog.Retire(r.Context(), actor.ID.String(), categoryID); err != nil {
		httputil.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleVerifyAudit walks the whole chain and reports the first broken link,
// if any. Restricted to finance and system administrators.
func (h *Handler) handleVerifyAudit(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(r)
	if !ok {
		httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor"))
		return
	}
	if actor.Role != id.RoleFinanceAdmin && actor.Role != id.RoleSystemAdmin {
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "only administrators may verify the audit chain"))
		return
	}
	verification, err := h.chain.Verify(r.Context())
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, verification)
}

type employeeBody struct {
	Email     string  `json:"email"`
	FullName  string  `json:"fullName"`
	Role      string  `json:"role"`
	ManagerID *string `json:"managerId"`
}

// handleCreateEmployee provisions a directory record and seeds the new
// employee's benefit allocations for the current year.
func (h *Handler) handleCreateEmployee(w http.ResponseWriter, r *http.Request) {
	actor, err := requireSystemAdmin(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	var body employeeBody
	if err := decodeBody(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if body.Email == "" || body.FullName == "" {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "email and fullName are required"))
		return
	}
	role := id.Role(body.Role)
	if !role.IsValid() {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "role is not one of the known roles"))
		return
	}
	var managerID *id.EmployeeID
	if body.ManagerID != nil {
		parsed, err := id.ParseEmployeeID(*body.ManagerID)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "managerId is not a valid id"))
			return
		}
		managerID = &parsed
	}

	now := requestcontext.Now(r.Context())
	employee := &directory.Employee{
		ID:        id.NewEmployeeID(),
		Email:     body.Email,
		FullName:  body.FullName,
		Role:      role,
		ManagerID: managerID,
		Active:    true,
		CreatedAt: now,
	}
	if err := h.employees.Put(r.Context(), employee); err != nil {
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeInternal, "failed to provision employee"))
		return
	}
	if err := h.catalog.SeedEmployee(r.Context(), employee.ID, now.Year()); err != nil {
		httputil.WriteError(w, err)
		return
	}
	if _, err := h.chain.Record(r.Context(), actor.ID.String(), "Employee", employee.ID.String(), "CREATE_EMPLOYEE", map[string]any{
		"email": employee.Email,
		"role":  string(employee.Role),
	}); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, employee)
}

func requireSystemAdmin(r *http.Request) (requestcontext.ActorIdentity, error) {
	actor, ok := actorFrom(r)
	if !ok {
		return requestcontext.ActorIdentity{}, dErrors.New(dErrors.CodeUnauthorized, "no authenticated actor")
	}
	if actor.Role != id.RoleSystemAdmin {
		return requestcontext.ActorIdentity{}, dErrors.New(dErrors.CodeForbidden, "restricted to system administrators")
	}
	return actor, nil
}
