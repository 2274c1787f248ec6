package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"laundryspot-backend/internal/apperr"
	"laundryspot-backend/internal/db"
	"laundryspot-backend/internal/lifecycle"
	"laundryspot-backend/internal/payment"
	"laundryspot-backend/internal/store"
	"laundryspot-backend/internal/washer"
)

// scriptedGateway lets tests flip payout capability and inject charge errors.
type scriptedGateway struct {
	payoutsEnabled bool
	chargeErr      error
	charges        int
}

func (g *scriptedGateway) AuthorizeCharge(ctx context.Context, req payment.ChargeRequest) (*payment.Authorization, error) {
	if g.chargeErr != nil {
		return nil, g.chargeErr
	}
	g.charges++
	return &payment.Authorization{Reference: fmt.Sprintf("pi_%s", req.IdempotencyKey)}, nil
}

func (g *scriptedGateway) CreateConnectedAccount(ctx context.Context, email string) (string, error) {
	return "acct_" + email, nil
}

func (g *scriptedGateway) AccountOnboardingLink(ctx context.Context, accountID string) (string, error) {
	return "https://gateway.example/onboard/" + accountID, nil
}

func (g *scriptedGateway) AccountPayoutsEnabled(ctx context.Context, accountID string) (bool, error) {
	return g.payoutsEnabled, nil
}

type testServer struct {
	router  *gin.Engine
	gateway *scriptedGateway
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gormDB, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gormDB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.Migrate(gormDB))

	appStore := store.NewGormStore(gormDB)
	gateway := &scriptedGateway{payoutsEnabled: true}
	registry := washer.NewRegistry(appStore, gateway)
	engine := lifecycle.NewEngine(appStore, registry, lifecycle.FlatRate{Cents: 1500})
	coordinator := payment.NewCoordinator(appStore, gateway)

	handler := NewHandler(engine, coordinator, registry, appStore, nil, "test-vapid-key")
	router := NewRouter(handler, RouterOptions{
		RateLimitPerSec: 1000,
		RateLimitBurst:  1000,
		CacheTTL:        time.Millisecond,
	})
	return &testServer{router: router, gateway: gateway}
}

func (ts *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errKind(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	body := decode(t, w)
	errObj, ok := body["error"].(map[string]any)
	require.True(t, ok, "expected error envelope, got %s", w.Body.String())
	kind, _ := errObj["kind"].(string)
	return kind
}

// onboardWasher creates and activates a payout account for the washer.
func (ts *testServer) onboardWasher(t *testing.T, washerID string) {
	t.Helper()
	w := ts.do(t, http.MethodPost, "/api/washers", gin.H{"washerId": washerID, "email": washerID + "@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = ts.do(t, http.MethodPost, "/api/washers/"+washerID+"/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestJobLifecycleOverHTTP(t *testing.T) {
	ts := newTestServer(t)
	ts.onboardWasher(t, "W1")

	// Create.
	w := ts.do(t, http.MethodPost, "/api/jobs", gin.H{"customerName": "Alice", "address": "1 Main St"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	job := decode(t, w)["job"].(map[string]any)
	assert.Equal(t, "pending", job["status"])
	assert.Equal(t, float64(1500), job["priceCents"])
	assert.Nil(t, job["washerId"])
	jobID := fmt.Sprintf("%.0f", job["id"].(float64))

	// Listed as pending.
	w = ts.do(t, http.MethodGet, "/api/jobs?status=pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	jobs := decode(t, w)["jobs"].([]any)
	assert.Len(t, jobs, 1)

	// Accept.
	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/accept", gin.H{"washerId": "W1"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	job = decode(t, w)["job"].(map[string]any)
	assert.Equal(t, "accepted", job["status"])
	assert.Equal(t, "W1", job["washerId"])

	// Second accept is rejected.
	ts.onboardWasher(t, "W2")
	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/accept", gin.H{"washerId": "W2"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "AlreadyTaken", errKind(t, w))

	// Pay.
	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/pay", gin.H{"paymentMethodRef": "pm_card"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	job = body["job"].(map[string]any)
	assert.Equal(t, "paid", job["status"])
	assert.NotEmpty(t, body["paymentReference"])

	// Repeat pay is rejected.
	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/pay", gin.H{"paymentMethodRef": "pm_card"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "InvalidState", errKind(t, w))
	assert.Equal(t, 1, ts.gateway.charges)

	// Paid jobs cannot be cancelled.
	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", gin.H{"actorId": "customer-1"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "InvalidTransition", errKind(t, w))
}

func TestCreateJob_Validation(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPost, "/api/jobs", gin.H{"customerName": "Alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "ValidationError", errKind(t, w))

	w = ts.do(t, http.MethodPost, "/api/jobs", gin.H{"address": "1 Main St"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAcceptJob_Errors(t *testing.T) {
	ts := newTestServer(t)

	// Unknown job.
	ts.onboardWasher(t, "W1")
	w := ts.do(t, http.MethodPost, "/api/jobs/999/accept", gin.H{"washerId": "W1"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NotFound", errKind(t, w))

	// Washer without an active payout account.
	w = ts.do(t, http.MethodPost, "/api/jobs", gin.H{"customerName": "Alice", "address": "1 Main St"})
	require.Equal(t, http.StatusOK, w.Code)
	jobID := fmt.Sprintf("%.0f", decode(t, w)["job"].(map[string]any)["id"].(float64))

	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/accept", gin.H{"washerId": "ghost"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "WasherNotEligible", errKind(t, w))
}

func TestCancelAcceptedJobKeepsWasher(t *testing.T) {
	ts := newTestServer(t)
	ts.onboardWasher(t, "W1")

	w := ts.do(t, http.MethodPost, "/api/jobs", gin.H{"customerName": "Alice", "address": "1 Main St"})
	require.Equal(t, http.StatusOK, w.Code)
	jobID := fmt.Sprintf("%.0f", decode(t, w)["job"].(map[string]any)["id"].(float64))

	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/accept", gin.H{"washerId": "W1"})
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/cancel", gin.H{"actorId": "customer-1"})
	require.Equal(t, http.StatusOK, w.Code)
	job := decode(t, w)["job"].(map[string]any)
	assert.Equal(t, "cancelled", job["status"])
	assert.Equal(t, "W1", job["washerId"], "audit trail must survive cancellation")
}

func TestPayJob_GatewayFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.onboardWasher(t, "W1")

	w := ts.do(t, http.MethodPost, "/api/jobs", gin.H{"customerName": "Alice", "address": "1 Main St"})
	require.Equal(t, http.StatusOK, w.Code)
	jobID := fmt.Sprintf("%.0f", decode(t, w)["job"].(map[string]any)["id"].(float64))
	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/accept", gin.H{"washerId": "W1"})
	require.Equal(t, http.StatusOK, w.Code)

	ts.gateway.chargeErr = apperr.New(apperr.KindPaymentFailed, "card declined")
	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/pay", gin.H{"paymentMethodRef": "pm_bad"})
	assert.Equal(t, http.StatusPaymentRequired, w.Code)
	assert.Equal(t, "PaymentFailed", errKind(t, w))

	// The job stays accepted and the charge can be retried.
	ts.gateway.chargeErr = nil
	w = ts.do(t, http.MethodPost, "/api/jobs/"+jobID+"/pay", gin.H{"paymentMethodRef": "pm_card"})
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestWasherEndpoints(t *testing.T) {
	ts := newTestServer(t)
	ts.gateway.payoutsEnabled = false

	w := ts.do(t, http.MethodPost, "/api/washers", gin.H{"washerId": "W1", "email": "w1@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "W1", body["washerId"])
	assert.Equal(t, "created", body["onboardingState"])

	w = ts.do(t, http.MethodPost, "/api/washers/W1/onboarding-link", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, decode(t, w)["url"], "https://gateway.example/onboard/")

	w = ts.do(t, http.MethodPost, "/api/washers/W1/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "created", decode(t, w)["onboardingState"])

	ts.gateway.payoutsEnabled = true
	w = ts.do(t, http.MethodPost, "/api/washers/W1/refresh", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", decode(t, w)["onboardingState"])

	w = ts.do(t, http.MethodGet, "/api/washers/W1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "active", decode(t, w)["onboardingState"])

	w = ts.do(t, http.MethodGet, "/api/washers/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSubscriptionEndpoints(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(t, http.MethodPut, "/api/subscriptions", gin.H{
		"endpoint": "https://push/1", "p256dh": "k", "auth": "a",
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = ts.do(t, http.MethodDelete, "/api/subscriptions", gin.H{"endpoint": "https://push/1"})
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = ts.do(t, http.MethodPut, "/api/subscriptions", gin.H{"endpoint": "https://push/2"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = ts.do(t, http.MethodGet, "/api/vapid_public_key", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "test-vapid-key", decode(t, w)["public_key"])
}
