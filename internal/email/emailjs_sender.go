package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// EmailJSSender envia el OTP usando una plantilla de EmailJS via REST.
type EmailJSSender struct {
	baseURL    string
	serviceID  string
	templateID string
	publicKey  string
	privateKey string
	client     *http.Client
}

func NewEmailJSSender(baseURL, serviceID, templateID, publicKey, privateKey string, httpClient *http.Client) (*EmailJSSender, error) {
	if strings.TrimSpace(serviceID) == "" || strings.TrimSpace(templateID) == "" {
		return nil, fmt.Errorf("emailjs service and template are required")
	}
	if strings.TrimSpace(publicKey) == "" {
		return nil, fmt.Errorf("emailjs public key is required")
	}
	if baseURL == "" {
		baseURL = "https://api.emailjs.com/api/v1.0"
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &EmailJSSender{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceID:  serviceID,
		templateID: templateID,
		publicKey:  publicKey,
		privateKey: privateKey,
		client:     httpClient,
	}, nil
}

type emailJSRequest struct {
	ServiceID      string            `json:"service_id"`
	TemplateID     string            `json:"template_id"`
	UserID         string            `json:"user_id"`
	AccessToken    string            `json:"accessToken,omitempty"`
	TemplateParams map[string]string `json:"template_params"`
}

func (s *EmailJSSender) SendVerificationOTP(ctx context.Context, toEmail string, code string, expiresAt time.Time) error {
	if strings.TrimSpace(toEmail) == "" {
		return fmt.Errorf("to email is required")
	}

	payload := emailJSRequest{
		ServiceID:   s.serviceID,
		TemplateID:  s.templateID,
		UserID:      s.publicKey,
		AccessToken: s.privateKey,
		TemplateParams: map[string]string{
			"to_email":   toEmail,
			"email":      toEmail,
			"otpCode":    code,
			"expires_at": expiresAt.UTC().Format(time.RFC3339),
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/email/send", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// EmailJS responde texto plano con el motivo.
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("emailjs error: status=%d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
