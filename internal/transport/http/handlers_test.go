package httptransport_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	"expenseflow/internal/audit"
	auditmem "expenseflow/internal/audit/store/memory"
	"expenseflow/internal/budget"
	budgetmem "expenseflow/internal/budget/store/memory"
	"expenseflow/internal/category"
	catmem "expenseflow/internal/category/store/memory"
	"expenseflow/internal/directory"
	dirmem "expenseflow/internal/directory/store/memory"
	"expenseflow/internal/request/service"
	reqmem "expenseflow/internal/request/store/memory"
	httptransport "expenseflow/internal/transport/http"
	id "expenseflow/pkg/domain"
	"expenseflow/pkg/platform/middleware/auth"
	"expenseflow/pkg/platform/tx"
)

var signingKey = []byte("test-signing-key")

type HandlersSuite struct {
	suite.Suite

	server    *httptest.Server
	employees *dirmem.InMemoryStore
	chain     *audit.Chain

	alice id.EmployeeID // employee, reports to bob
	bob   id.EmployeeID // approver
	carol id.EmployeeID // finance admin
	dave  id.EmployeeID // system admin

	wellnessID id.CategoryID
}

func TestHandlersSuite(t *testing.T) {
	suite.Run(t, new(HandlersSuite))
}

func (s *HandlersSuite) SetupTest() {
	ctx := context.Background()
	s.employees = dirmem.NewInMemoryStore()

	chain, err := audit.NewChain(auditmem.NewInMemoryStore())
	s.Require().NoError(err)
	s.chain = chain

	ledger, err := budget.NewLedger(budgetmem.NewInMemoryStore())
	s.Require().NoError(err)

	catalog, err := category.NewCatalog(catmem.NewInMemoryStore(), ledger, s.employees)
	s.Require().NoError(err)

	s.alice = s.seedEmployee("alice@example.com", "Alice Popescu", id.RoleEmployee)
	s.bob = s.seedEmployee("bob@example.com", "Bob Ionescu", id.RoleApprover)
	s.carol = s.seedEmployee("carol@example.com", "Carol Dumitru", id.RoleFinanceAdmin)
	s.dave = s.seedEmployee("dave@example.com", "Dave Georgescu", id.RoleSystemAdmin)

	alice, err := s.employees.Get(ctx, s.alice)
	s.Require().NoError(err)
	alice.ManagerID = &s.bob
	s.Require().NoError(s.employees.Put(ctx, alice))

	wellness, err := catalog.Create(ctx, s.dave.String(), "Wellness", category.TypeBenefit, decimal.NewFromInt(200), true)
	s.Require().NoError(err)
	s.wellnessID = wellness.ID

	workflow, err := service.NewWorkflow(reqmem.NewInMemoryStore(), catalog, ledger, s.employees, chain, tx.NoopRunner{})
	s.Require().NoError(err)

	handler := httptransport.NewHandler(workflow, catalog, ledger, chain, s.employees, nil)
	verifier := auth.NewVerifier(signingKey, nil)
	s.server = httptest.NewServer(httptransport.NewRouter(handler, verifier))
}

func (s *HandlersSuite) TearDownTest() {
	s.server.Close()
}

func (s *HandlersSuite) seedEmployee(email, name string, role id.Role) id.EmployeeID {
	employee := &directory.Employee{
		ID:        id.NewEmployeeID(),
		Email:     email,
		FullName:  name,
		Role:      role,
		Active:    true,
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.employees.Put(context.Background(), employee))
	return employee.ID
}

func (s *HandlersSuite) token(employeeID id.EmployeeID, role id.Role) string {
	claims := auth.Claims{
		Role:  string(role),
		Email: "actor@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   employeeID.String(),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(signingKey)
	s.Require().NoError(err)
	return signed
}

func (s *HandlersSuite) do(method, path, token string, body any) (*http.Response, map[string]any) {
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()

	var decoded map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

func (s *HandlersSuite) createBody(amount string) map[string]any {
	return map[string]any{
		"categoryId":    s.wellnessID.String(),
		"reason":        "gym membership",
		"currency":      "EUR",
		"totalAmount":   amount,
		"invoiceNumber": "INV-7",
		"invoiceDate":   "2025-03-10",
		"supplier":      "FitLife SRL",
	}
}

func (s *HandlersSuite) TestUnauthenticatedRequestsRejected() {
	resp, _ := s.do(http.MethodGet, "/requests", "", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.do(http.MethodGet, "/requests", "not-a-token", nil)
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *HandlersSuite) TestHealthAndMetricsOpen() {
	resp, body := s.do(http.MethodGet, "/healthz", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	s.Equal("ok", body["status"])

	resp, _ = s.do(http.MethodGet, "/metrics", "", nil)
	s.Equal(http.StatusOK, resp.StatusCode)
}

func (s *HandlersSuite) TestFullLifecycleOverHTTP() {
	aliceToken := s.token(s.alice, id.RoleEmployee)

	resp, created := s.do(http.MethodPost, "/requests", aliceToken, s.createBody("150"))
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	requestID := created["id"].(string)
	s.Equal("DRAFT", created["status"])
	s.Contains(created["requestNumber"], "REQ-")

	resp, submitted := s.do(http.MethodPost, "/requests/"+requestID+"/submit", aliceToken, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("UNDER_REVIEW", submitted["status"])

	bobToken := s.token(s.bob, id.RoleApprover)
	resp, approved := s.do(http.MethodPost, "/requests/"+requestID+"/approve", bobToken,
		map[string]any{"comment": "within policy"})
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("APPROVED", approved["status"])

	carolToken := s.token(s.carol, id.RoleFinanceAdmin)
	resp, paid := s.do(http.MethodPost, "/requests/"+requestID+"/finance/paid", carolToken, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal("PAID", paid["status"])

	resp, budgets := s.do(http.MethodGet, "/budgets?year=2025", aliceToken, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	_ = budgets

	resp, verification := s.do(http.MethodGet, "/audit/verify", carolToken, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)
	s.Equal(true, verification["valid"])
}

func (s *HandlersSuite) TestApproveWithoutCommentUnprocessable() {
	aliceToken := s.token(s.alice, id.RoleEmployee)
	resp, created := s.do(http.MethodPost, "/requests", aliceToken, s.createBody("150"))
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	requestID := created["id"].(string)
	resp, _ = s.do(http.MethodPost, "/requests/"+requestID+"/submit", aliceToken, nil)
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	bobToken := s.token(s.bob, id.RoleApprover)
	resp, body := s.do(http.MethodPost, "/requests/"+requestID+"/approve", bobToken, nil)
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	s.Equal("validation_failed", body["error"])
}

func (s *HandlersSuite) TestBudgetExceededCarriesRemaining() {
	aliceToken := s.token(s.alice, id.RoleEmployee)
	resp, body := s.do(http.MethodPost, "/requests", aliceToken, s.createBody("1000"))
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	s.Equal("budget_exceeded", body["error"])

	details, ok := body["details"].(map[string]any)
	s.Require().True(ok)
	s.Equal("200", details["remaining"])
}

func (s *HandlersSuite) TestApproveFromDraftConflicts() {
	aliceToken := s.token(s.alice, id.RoleEmployee)
	resp, created := s.do(http.MethodPost, "/requests", aliceToken, s.createBody("150"))
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	requestID := created["id"].(string)

	bobToken := s.token(s.bob, id.RoleApprover)
	resp, body := s.do(http.MethodPost, "/requests/"+requestID+"/approve", bobToken,
		map[string]any{"comment": "too early"})
	s.Equal(http.StatusConflict, resp.StatusCode)
	s.Equal("invalid_transition", body["error"])
}

func (s *HandlersSuite) TestAuditVerifyRestricted() {
	aliceToken := s.token(s.alice, id.RoleEmployee)
	resp, _ := s.do(http.MethodGet, "/audit/verify", aliceToken, nil)
	s.Equal(http.StatusForbidden, resp.StatusCode)
}

func (s *HandlersSuite) TestCategoryManagementRestricted() {
	bobToken := s.token(s.bob, id.RoleApprover)
	resp, _ := s.do(http.MethodPost, "/categories", bobToken, map[string]any{
		"name":        "Protocol",
		"expenseType": "PROTOCOL",
	})
	s.Equal(http.StatusForbidden, resp.StatusCode)

	daveToken := s.token(s.dave, id.RoleSystemAdmin)
	resp, created := s.do(http.MethodPost, "/categories", daveToken, map[string]any{
		"name":              "Protocol",
		"expenseType":       "PROTOCOL",
		"defaultAllocation": "0",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("Protocol", created["name"])

	resp, categories := s.do(http.MethodGet, "/categories", bobToken, nil)
	s.Equal(http.StatusOK, resp.StatusCode)
	_ = categories
}

func (s *HandlersSuite) TestEmployeeProvisioningSeedsBenefitBudgets() {
	bobToken := s.token(s.bob, id.RoleApprover)
	resp, _ := s.do(http.MethodPost, "/employees", bobToken, map[string]any{
		"email":    "new@example.com",
		"fullName": "New Hire",
		"role":     "EMPLOYEE",
	})
	s.Equal(http.StatusForbidden, resp.StatusCode)

	daveToken := s.token(s.dave, id.RoleSystemAdmin)
	resp, created := s.do(http.MethodPost, "/employees", daveToken, map[string]any{
		"email":     "new@example.com",
		"fullName":  "New Hire",
		"role":      "EMPLOYEE",
		"managerId": s.bob.String(),
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	s.Equal("New Hire", created["fullName"])

	hireID, err := id.ParseEmployeeID(created["id"].(string))
	s.Require().NoError(err)
	hire, err := s.employees.Get(context.Background(), hireID)
	s.Require().NoError(err)
	s.Require().NotNil(hire.ManagerID)
	s.Equal(s.bob, *hire.ManagerID)

	// The new employee starts with the wellness allocation already in place.
	hireToken := s.token(hireID, id.RoleEmployee)
	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/budgets", nil)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+hireToken)
	rawResp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer rawResp.Body.Close()
	var allocations []map[string]any
	s.Require().NoError(json.NewDecoder(rawResp.Body).Decode(&allocations))
	s.Require().Len(allocations, 1)
	s.Equal(s.wellnessID.String(), allocations[0]["categoryId"])
	s.Equal("200", allocations[0]["allocated"])
}

func (s *HandlersSuite) TestEmployeeProvisioningRejectsUnknownRole() {
	daveToken := s.token(s.dave, id.RoleSystemAdmin)
	resp, body := s.do(http.MethodPost, "/employees", daveToken, map[string]any{
		"email":    "new@example.com",
		"fullName": "New Hire",
		"role":     "MANAGER",
	})
	s.Equal(http.StatusUnprocessableEntity, resp.StatusCode)
	s.Equal("validation_failed", body["error"])
}

func (s *HandlersSuite) TestGetUnknownRequestNotFound() {
	aliceToken := s.token(s.alice, id.RoleEmployee)
	resp, _ := s.do(http.MethodGet, fmt.Sprintf("/requests/%s", id.NewRequestID()), aliceToken, nil)
	s.Equal(http.StatusNotFound, resp.StatusCode)
}
