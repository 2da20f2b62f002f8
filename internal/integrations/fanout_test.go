package integrations

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"paycat.dev/gateway/internal/canonical"
	"paycat.dev/gateway/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestGenericWebhookAdapterSignsPayload(t *testing.T) {
	var gotSig string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSig = r.Header.Get("X-MRRCat-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := &models.Integration{
		Type:   models.IntegrationGeneric,
		Config: `{"webhook_url":"` + srv.URL + `","secret":"s3cr3t"}`,
	}
	evt := canonical.DomainEvent{ID: "evt_1", Type: canonical.Renewal, AppUserID: "u1", CreatedAt: time.Now()}

	adapter := adapterFor(target.Type)
	_, status, err := adapter.Send(context.Background(), http.DefaultClient, target, evt)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, gotSig)
}

func TestSlackAdapterPostsTextSummary(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		buf := make([]byte, 2000)
		n, _ := r.Body.Read(buf)
		body = string(buf[:n])
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	target := &models.Integration{Type: models.IntegrationSlack, Config: `{"webhook_url":"` + srv.URL + `"}`}
	evt := canonical.DomainEvent{ID: "evt_1", Type: canonical.Cancellation, AppUserID: "u1", CreatedAt: time.Now()}

	_, _, err := adapterFor(target.Type).Send(context.Background(), http.DefaultClient, target, evt)

	assert.NoError(t, err)
	assert.Contains(t, body, "cancellation")
}

func TestAdapterForDefaultsToGenericWebhook(t *testing.T) {
	assert.IsType(t, genericWebhookAdapter{}, adapterFor("unknown_vendor"))
}
