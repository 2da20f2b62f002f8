package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	SetupRoutes(r)
	return r
}

func seedApp(t *testing.T) *models.App {
	t.Helper()
	app := &models.App{AppID: "app_1", Name: "Acme", APIKey: "key-1", IsActive: true}
	require.NoError(t, database.DB.Create(app).Error)
	return app
}

func TestGetSubscriberRequiresAPIKey(t *testing.T) {
	setupTestDB(t)
	r := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/subscribers/user_a", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing_api_key")
}

func TestGetSubscriberReturnsEntitlements(t *testing.T) {
	setupTestDB(t)
	seedApp(t)
	r := testRouter(t)

	_, err := ingest("app_1", models.PlatformIOS, purchaseEvent("uuid-1"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/subscribers/user_a", nil)
	req.Header.Set("X-API-Key", "key-1")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		AppUserID     string                     `json:"app_user_id"`
		Subscriptions []models.Subscription      `json:"subscriptions"`
		Entitlements  map[string]json.RawMessage `json:"entitlements"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "user_a", body.AppUserID)
	require.Len(t, body.Subscriptions, 1)
	assert.Equal(t, models.StatusActive, body.Subscriptions[0].Status)
	assert.Contains(t, body.Entitlements, "pro_monthly")
}

func TestGetSubscriberUnknownUserIs404(t *testing.T) {
	setupTestDB(t)
	seedApp(t)
	r := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/subscribers/nobody", nil)
	req.Header.Set("X-API-Key", "key-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "not_found")
}

func TestDeleteSubscriberRequiresConfirm(t *testing.T) {
	setupTestDB(t)
	seedApp(t)
	r := testRouter(t)

	_, err := ingest("app_1", models.PlatformIOS, purchaseEvent("uuid-1"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/v1/subscribers/user_a", nil)
	req.Header.Set("X-API-Key", "key-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodDelete, "/v1/subscribers/user_a?confirm=true", nil)
	req.Header.Set("X-API-Key", "key-1")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	var count int64
	database.DB.Model(&models.Subscriber{}).Count(&count)
	assert.Zero(t, count)
}

func TestAppleNotificationMissingPayloadIs400(t *testing.T) {
	setupTestDB(t)
	r := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/apple", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStripeNotificationWithNoMatchingTenantIs401(t *testing.T) {
	setupTestDB(t)
	r := testRouter(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/stripe",
		strings.NewReader(`{"id":"evt_1","object":"event","type":"payout.paid","data":{"object":{}}}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "signature_invalid")
}

func TestPaddleNotificationWithNoMatchingTenantIs401(t *testing.T) {
	setupTestDB(t)
	r := testRouter(t)

	form := "alert_name=subscription_created&alert_id=1&p_signature=" + "Zm9v"
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/notifications/paddle", strings.NewReader(form))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHealthz(t *testing.T) {
	setupTestDB(t)
	r := testRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSubscriberResponseTimestampsAreRFC3339(t *testing.T) {
	setupTestDB(t)
	seedApp(t)
	r := testRouter(t)

	_, err := ingest("app_1", models.PlatformIOS, purchaseEvent("uuid-1"))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/subscribers/user_a", nil)
	req.Header.Set("X-API-Key", "key-1")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		FirstSeen string `json:"first_seen"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	_, err = time.Parse(time.RFC3339, body.FirstSeen)
	assert.NoError(t, err)
}
