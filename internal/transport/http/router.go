// Package httptransport is the thin HTTP layer. Handlers decode input,
// delegate to the domain services and translate domain errors; business rules
// stay out of this package.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"expenseflow/internal/audit"
	"expenseflow/internal/budget"
	"expenseflow/internal/category"
	"expenseflow/internal/directory"
	"expenseflow/internal/request/service"
	"expenseflow/pkg/platform/httputil"
	"expenseflow/pkg/platform/middleware/auth"
	"expenseflow/pkg/platform/middleware/requesttime"
	"expenseflow/pkg/requestcontext"
)

// EmployeeWriter persists provisioned employees into the directory.
type EmployeeWriter interface {
	Put(ctx context.Context, employee *directory.Employee) error
}

// Handler bundles the services the routes delegate to.
type Handler struct {
	workflow  *service.Workflow
	catalog   *category.Catalog
	ledger    *budget.Ledger
	chain     *audit.Chain
	employees EmployeeWriter
	logger    *slog.Logger
}

func NewHandler(workflow *service.Workflow, catalog *category.Catalog, ledger *budget.Ledger, chain *audit.Chain, employees EmployeeWriter, logger *slog.Logger) *Handler {
	return &Handler{
		workflow:  workflow,
		catalog:   catalog,
		ledger:    ledger,
		chain:     chain,
		employees: employees,
		logger:    logger,
	}
}

// NewRouter wires all endpoints. Everything except health and metrics sits
// behind bearer authentication.
func NewRouter(h *Handler, verifier *auth.Verifier) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(propagateRequestID)
	r.Use(chimw.Recoverer)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(verifier, h.logger))

		r.Route("/requests", func(r chi.Router) {
			r.Post("/", h.handleCreateRequest)
			r.Get("/", h.handleListRequests)
			r.Route("/{requestID}", func(r chi.Router) {
				r.Get("/", h.handleGetRequest)
				r.Put("/", h.handleUpdateRequest)
				r.Delete("/", h.handleCancelRequest)
				r.Post("/submit", h.handleSubmit)
				r.Post("/withdraw", h.handleWithdraw)
				r.Post("/approve", h.handleApprove)
				r.Post("/reject", h.handleReject)
				r.Post("/return", h.handleReturn)
				r.Post("/finance/process", h.handleFinanceProcess)
				r.Post("/finance/paid", h.handleFinancePaid)
			})
		})

		r.Get("/budgets", h.handleListBudgets)

		r.Post("/employees", h.handleCreateEmployee)

		r.Route("/categories", func(r chi.Router) {
			r.Get("/", h.handleListCategories)
			r.Post("/", h.handleCreateCategory)
			r.Delete("/{categoryID}", h.handleRetireCategory)
		})

		r.Get("/audit/verify", h.handleVerifyAudit)
	})

	return r
}

// propagateRequestID copies chi's request id into the request context package
// so services can log it without importing chi.
func propagateRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if reqID := chimw.GetReqID(ctx); reqID != "" {
			ctx = requestcontext.WithRequestID(ctx, reqID)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
