package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/miniiam/apiserver/internal/audit"
	"github.com/miniiam/apiserver/internal/auth"
	"github.com/miniiam/apiserver/internal/services"
	"github.com/miniiam/apiserver/internal/store/memory"
	"github.com/miniiam/apiserver/internal/telemetry"
	"github.com/miniiam/apiserver/types"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type testAPI struct {
	t      *testing.T
	router http.Handler
	store  *memory.Store
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st := memory.New()
	issuer, err := auth.NewIssuer("handler-secret", time.Hour)
	require.NoError(t, err)
	ledger := audit.NewLedger(nil, "iam.audit")
	identity, err := services.NewIdentityService(st, auth.NewHasher(bcrypt.MinCost), issuer, ledger)
	require.NoError(t, err)
	requests := services.NewAccessRequestService(st, ledger)
	reports := services.NewReportService(st, nil)
	requireAuth := RequireAuth(issuer)

	router := chi.NewRouter()
	router.Use(middleware.RealIP, Metrics)
	router.Get("/healthz", Healthz)
	router.Route("/auth", func(r chi.Router) { AuthRouter(r, identity, requireAuth) })
	router.Route("/users", func(r chi.Router) { UserRouter(r, identity, requireAuth) })
	router.Route("/access/requests", func(r chi.Router) { AccessRequestRouter(r, requests, requireAuth) })
	router.Route("/reports", func(r chi.Router) { ReportRouter(r, reports, requireAuth) })

	return &testAPI{t: t, router: router, store: st}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(a.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", "203.0.113.9")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func (a *testAPI) signup(username string, role types.Role, department string) string {
	a.t.Helper()
	body := map[string]any{"username": username, "password": username + "-pw", "role": role}
	if department != "" {
		body["department"] = department
	}
	rec := a.do(http.MethodPost, "/auth/register", "", body)
	require.Equal(a.t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(http.MethodPost, "/auth/login", "", map[string]string{"username": username, "password": username + "-pw"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	var token TokenResponse
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &token))
	assert.Equal(a.t, "bearer", token.TokenType)
	return token.AccessToken
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegisterAndMe(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/auth/register", "", map[string]any{
		"username": "alice", "password": "secret1", "role": "Employee", "department": "Eng",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	var created UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "alice", created.Username)
	assert.True(t, created.Active)

	rec = api.do(http.MethodPost, "/auth/register", "", map[string]any{
		"username": "alice", "password": "other", "role": "Employee",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation", decodeError(t, rec).Kind)

	rec = api.do(http.MethodPost, "/auth/register", "", map[string]any{
		"username": "zed", "password": "pw", "role": "root",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = api.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)
	var token TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &token))

	rec = api.do(http.MethodGet, "/auth/me", token.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me UserResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &me))
	assert.Equal(t, types.RoleEmployee, me.Role)
	assert.Equal(t, "Eng", *me.Department)
	assert.NotNil(t, me.LastLogin)
}

func TestLoginRejected(t *testing.T) {
	api := newTestAPI(t)
	api.signup("alice", types.RoleEmployee, "")

	rec := api.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "alice", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeError(t, rec).Error)

	rec = api.do(http.MethodPost, "/auth/login", "", map[string]string{"username": "ghost", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeError(t, rec).Error)
}

func TestRequireAuth(t *testing.T) {
	api := newTestAPI(t)

	for _, header := range []string{"", "Basic abc", "Bearer not-a-token"} {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		api.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, header)
	}
}

func TestDeprovisionFlow(t *testing.T) {
	api := newTestAPI(t)
	admin := api.signup("root", types.RoleAdmin, "")
	employee := api.signup("alice", types.RoleEmployee, "Eng")

	rec := api.do(http.MethodPost, "/users/1/deprovision", employee, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error, "requires role 'Admin'")

	rec = api.do(http.MethodPost, "/users/2/deprovision", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp DeprovisionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.User.Active)

	rec = api.do(http.MethodPost, "/users/2/deprovision", admin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = api.do(http.MethodPost, "/users/99/deprovision", admin, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = api.do(http.MethodPost, "/users/abc/deprovision", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	entries, err := api.store.AuditLog().List(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].IPAddress)
	assert.Equal(t, "203.0.113.9", *entries[0].IPAddress)
}

func TestAccessRequestFlow(t *testing.T) {
	api := newTestAPI(t)
	requester := api.signup("alice", types.RoleEmployee, "Eng")
	manager := api.signup("mgr", types.RoleManager, "Eng")
	outsider := api.signup("sales", types.RoleManager, "Sales")

	rec := api.do(http.MethodPost, "/access/requests", requester, map[string]string{"resource": "prod-db", "reason": "on-call"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var submitted SubmitAccessResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	assert.Equal(t, types.StatusPending, submitted.Status)

	rec = api.do(http.MethodPost, "/access/requests", requester, map[string]string{"reason": "no resource"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := fmt.Sprintf("/access/requests/%d", submitted.ID)

	rec = api.do(http.MethodPost, path+"/approve", outsider, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, path+"/approve", requester, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodPost, path+"/approve", manager, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resolved types.AccessRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resolved))
	assert.Equal(t, types.StatusApproved, resolved.Status)
	assert.Equal(t, "mgr", *resolved.ApprovedBy)

	rec = api.do(http.MethodPost, path+"/reject", manager, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "conflict", decodeError(t, rec).Kind)

	rec = api.do(http.MethodGet, path, requester, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = api.do(http.MethodGet, path, outsider, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodGet, "/access/requests", requester, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mine []types.AccessRequest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine, 1)

	rec = api.do(http.MethodPost, "/access/requests/999/approve", manager, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReports(t *testing.T) {
	api := newTestAPI(t)
	admin := api.signup("root", types.RoleAdmin, "")
	employee := api.signup("alice", types.RoleEmployee, "")

	rec := api.do(http.MethodGet, "/reports/access-review", employee, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = api.do(http.MethodGet, "/reports/access-review", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var review types.AccessReview
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &review))
	assert.Equal(t, 2, review.Summary.Total)
	assert.Equal(t, 1, review.Summary.Privileged)

	rec = api.do(http.MethodPost, "/reports/access-review/export", admin, nil)
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestMetricsUseRoutePattern(t *testing.T) {
	api := newTestAPI(t)
	counter := telemetry.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/healthz", "200")
	before := testutil.ToFloat64(counter)

	rec := api.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, before+1, testutil.ToFloat64(counter))
}
