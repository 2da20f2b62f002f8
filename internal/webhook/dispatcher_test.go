package webhook

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"paycat.dev/gateway/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestSignProducesVerifiableHeader(t *testing.T) {
	payload := []byte(`{"hello":"world"}`)
	header := sign("s3cr3t", payload)

	assert.True(t, strings.HasPrefix(header, "t="))
	assert.Contains(t, header, ",v1=")
}

func TestRetryScheduleHasSevenEntriesStartingAtZero(t *testing.T) {
	assert.Len(t, RetrySchedule, 7)
	assert.EqualValues(t, 0, RetrySchedule[0])
	assert.EqualValues(t, 86_400_000, RetrySchedule[6])
}

func TestSendReturnsStatusOfTarget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("X-PayCat-Signature"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher()
	hook := &models.Webhook{URL: srv.URL, Secret: "s3cr3t"}
	delivery := &models.WebhookDelivery{Payload: `{}`}
	status, _, err := d.send(hook, delivery)

	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, status)
}
