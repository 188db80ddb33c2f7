package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmailJSSender_SendsTemplateParams(t *testing.T) {
	var got emailJSRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/email/send", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}))
	defer srv.Close()

	sender, err := NewEmailJSSender(srv.URL, "service_1", "template_1", "pub", "priv", srv.Client())
	require.NoError(t, err)

	expires := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, sender.SendVerificationOTP(context.Background(), "a@b.com", "482913", expires))

	assert.Equal(t, "service_1", got.ServiceID)
	assert.Equal(t, "template_1", got.TemplateID)
	assert.Equal(t, "pub", got.UserID)
	assert.Equal(t, "priv", got.AccessToken)
	assert.Equal(t, "a@b.com", got.TemplateParams["email"])
	assert.Equal(t, "482913", got.TemplateParams["otpCode"])
	assert.Equal(t, "2026-01-02T03:04:05Z", got.TemplateParams["expires_at"])
}

func TestEmailJSSender_ReportsRemoteFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("The template ID is invalid"))
	}))
	defer srv.Close()

	sender, err := NewEmailJSSender(srv.URL, "service_1", "template_1", "pub", "", srv.Client())
	require.NoError(t, err)

	err = sender.SendVerificationOTP(context.Background(), "a@b.com", "482913", time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=400")
	assert.Contains(t, err.Error(), "template ID is invalid")
}

func TestNewEmailJSSender_RequiresIdentifiers(t *testing.T) {
	_, err := NewEmailJSSender("", "", "template_1", "pub", "", nil)
	require.Error(t, err)

	_, err = NewEmailJSSender("", "service_1", "template_1", "", "", nil)
	require.Error(t, err)
}

func TestDisabledSender_AlwaysFails(t *testing.T) {
	s := NewDisabledSender("")
	err := s.SendVerificationOTP(context.Background(), "a@b.com", "123456", time.Now())
	require.EqualError(t, err, "email sender disabled")
}

func TestBuildMessage_Headers(t *testing.T) {
	msg := buildMessage("noreply@doc.chat", "Doc Chat", "a@b.com", "Verification code", "body")
	assert.Contains(t, msg, "From: Doc Chat <noreply@doc.chat>\r\n")
	assert.Contains(t, msg, "To: a@b.com\r\n")
	assert.Contains(t, msg, "\r\n\r\nbody")
}
