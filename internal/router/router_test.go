package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Elmahrosa/Teos-Bankchain/internal/domain"
	hrest "github.com/Elmahrosa/Teos-Bankchain/internal/handler/rest"
	"github.com/Elmahrosa/Teos-Bankchain/internal/metrics"
	publisher "github.com/Elmahrosa/Teos-Bankchain/internal/pub"
	"github.com/Elmahrosa/Teos-Bankchain/internal/repository"
	"github.com/Elmahrosa/Teos-Bankchain/internal/service"
	"github.com/Elmahrosa/Teos-Bankchain/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	loc := time.FixedZone("EET", 2*60*60)
	classifier, err := service.NewTierClassifier(domain.DefaultTierThresholds())
	require.NoError(t, err)
	normalizer := service.NewCurrencyNormalizer("EGP", domain.DefaultCurrencies(),
		service.NewStaticRateProvider("EGP", domain.DefaultRatesToEGP()))
	fees := service.NewFeeCalculator(domain.DefaultSettlementConfigs(), loc)
	authz := usecase.NewStaticAuthorizer(map[string][]domain.Role{
		"ops-1":  {domain.RoleOperations},
		"comp-1": {domain.RoleComplianceOfficer},
	})
	m := metrics.NewMetrics("bankchain_http")

	uc := usecase.NewApprovalUsecase(repository.NewMemoryRepositories(), classifier, normalizer, fees,
		authz, publisher.NoopPublisher{}, m, zap.NewNop()).
		WithClock(func() time.Time { return time.Date(2026, 3, 10, 9, 30, 0, 0, loc) })

	srv := httptest.NewServer(SetupRoutes(hrest.NewBankchainRestHandler(uc), m.Handler(), nil, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func do(t *testing.T, srv *httptest.Server, method, path string, body interface{}) (int, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func TestREST_Tier2Flow(t *testing.T) {
	srv := newTestServer(t)

	status, env := do(t, srv, http.MethodPost, "/api/v1/transactions", map[string]interface{}{
		"type":         "withdrawal",
		"amount":       "150000",
		"currency":     "EGP",
		"account_id":   "acc-1",
		"requested_by": "teller",
	})
	require.Equal(t, http.StatusCreated, status, env.Message)

	var txn domain.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &txn))
	assert.Equal(t, domain.Tier2, txn.RequiredTier)
	assert.Equal(t, domain.TransactionStatusPending, txn.Status)

	status, env = do(t, srv, http.MethodGet, "/api/v1/approvals/pending?role=compliance_officer", nil)
	require.Equal(t, http.StatusOK, status)
	var pending hrest.PendingApprovalsJSON
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	assert.Equal(t, int64(1), pending.Total)

	status, _ = do(t, srv, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/approve", map[string]string{
		"role": "operations", "approver_id": "ops-1",
	})
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, srv, http.MethodGet, "/api/v1/transactions/"+txn.ID+"/settlement", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "NOT_FOUND", env.Code)

	status, env = do(t, srv, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/approve", map[string]string{
		"role": "compliance_officer", "approver_id": "comp-1", "comments": "ok",
	})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &txn))
	assert.Equal(t, domain.TransactionStatusCompleted, txn.Status)

	status, env = do(t, srv, http.MethodGet, "/api/v1/transactions/"+txn.ID+"/settlement", nil)
	require.Equal(t, http.StatusOK, status)
	var st domain.Settlement
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, domain.SettlementStatusPending, st.Status)

	status, env = do(t, srv, http.MethodPost, "/api/v1/settlements/"+st.ID+"/reconcile", map[string]string{
		"external_amount": "150000.00",
	})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.Equal(t, domain.ReconciliationMatched, st.ReconciliationStatus)

	status, env = do(t, srv, http.MethodPost, "/api/v1/settlements/"+st.ID+"/settled", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, srv, http.MethodGet, "/api/v1/settlements/"+st.ID+"/entries", nil)
	require.Equal(t, http.StatusOK, status)
	var entries []domain.LedgerEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	assert.Len(t, entries, 2)
}

func TestREST_ErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	status, env := do(t, srv, http.MethodPost, "/api/v1/transactions", map[string]interface{}{
		"type":         "withdrawal",
		"amount":       "150000",
		"currency":     "EGP",
		"account_id":   "acc-1",
		"requested_by": "teller",
	})
	require.Equal(t, http.StatusCreated, status)
	var txn domain.Transaction
	require.NoError(t, json.Unmarshal(env.Data, &txn))

	tests := []struct {
		name       string
		method     string
		path       string
		body       interface{}
		wantStatus int
		wantCode   string
	}{
		{
			name: "unsupported currency", method: http.MethodPost, path: "/api/v1/transactions",
			body:       map[string]string{"type": "deposit", "amount": "100", "currency": "GBP", "account_id": "a", "requested_by": "u"},
			wantStatus: http.StatusUnprocessableEntity, wantCode: "UNSUPPORTED_CURRENCY",
		},
		{
			name: "out of range", method: http.MethodPost, path: "/api/v1/transactions",
			body:       map[string]string{"type": "deposit", "amount": "60000", "currency": "EGP", "rail": "instant_transfer", "account_id": "a", "requested_by": "u"},
			wantStatus: http.StatusUnprocessableEntity, wantCode: "AMOUNT_OUT_OF_RANGE",
		},
		{
			name: "negative amount", method: http.MethodPost, path: "/api/v1/transactions",
			body:       map[string]string{"type": "deposit", "amount": "-1", "currency": "EGP", "account_id": "a", "requested_by": "u"},
			wantStatus: http.StatusUnprocessableEntity, wantCode: "INVALID_AMOUNT",
		},
		{
			name: "transfer without counterparty", method: http.MethodPost, path: "/api/v1/transactions",
			body:       map[string]string{"type": "transfer", "amount": "100", "currency": "EGP", "account_id": "a", "requested_by": "u"},
			wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED",
		},
		{
			name: "non-required role", method: http.MethodPost, path: "/api/v1/transactions/" + txn.ID + "/approve",
			body:       map[string]string{"role": "bank_admin", "approver_id": "ops-1"},
			wantStatus: http.StatusConflict, wantCode: "INVALID_APPROVAL",
		},
		{
			name: "unauthorized approver", method: http.MethodPost, path: "/api/v1/transactions/" + txn.ID + "/approve",
			body:       map[string]string{"role": "operations", "approver_id": "comp-1"},
			wantStatus: http.StatusForbidden, wantCode: "UNAUTHORIZED",
		},
		{
			name: "unknown transaction", method: http.MethodGet, path: "/api/v1/transactions/txn_missing",
			wantStatus: http.StatusNotFound, wantCode: "NOT_FOUND",
		},
		{
			name: "reject without reason", method: http.MethodPost, path: "/api/v1/transactions/" + txn.ID + "/reject",
			body:       map[string]string{"role": "operations", "approver_id": "ops-1"},
			wantStatus: http.StatusBadRequest, wantCode: "VALIDATION_FAILED",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, env := do(t, srv, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.wantStatus, status, env.Message)
			assert.Equal(t, tt.wantCode, env.Code)
			assert.Equal(t, "error", env.Status)
		})
	}

	status, env = do(t, srv, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/reject", map[string]string{
		"role": "operations", "approver_id": "ops-1", "reason": "suspicious",
	})
	require.Equal(t, http.StatusOK, status)

	status, env = do(t, srv, http.MethodPost, "/api/v1/transactions/"+txn.ID+"/approve", map[string]string{
		"role": "compliance_officer", "approver_id": "comp-1",
	})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "TRANSACTION_CLOSED", env.Code)
}

func TestREST_HealthAndMetrics(t *testing.T) {
	srv := newTestServer(t)

	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = srv.Client().Get(srv.URL + "/metrics")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestREST_UnknownRoute(t *testing.T) {
	srv := newTestServer(t)

	status, env := do(t, srv, http.MethodGet, "/api/v1/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "error", env.Status)

	status, env = do(t, srv, http.MethodDelete, "/api/v1/transactions/txn_1", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, "error", env.Status)
}
