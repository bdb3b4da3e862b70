package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// EmailRequest is the outbound email payload handed to the messaging
// service. Composition and delivery are owned upstream; this client only
// submits.
type EmailRequest struct {
	Sender    string `json:"sender"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Message   string `json:"message"`
}

// Client talks to the external messaging service for outbound email.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	sender     string
}

// NewClient creates a messaging client. sender may be empty; its absence is
// reported at the point of use, not at construction.
func NewClient(logger *slog.Logger, baseURL, sender string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		logger:     logger.With("client", "messaging"),
		httpClient: httpClient,
		baseURL:    baseURL,
		sender:     sender,
	}
}

// SendEmail submits one outbound email. A missing configured sender address
// is a mandatory-setting failure: fail fast, no retry.
func (c *Client) SendEmail(ctx context.Context, municipalityID, recipient, subject, message string) error {
	if c.sender == "" {
		return fmt.Errorf("messaging sender address: %w", domain.ErrMandatorySettingMissing)
	}

	payload, err := json.Marshal(EmailRequest{
		Sender:    c.sender,
		Recipient: recipient,
		Subject:   subject,
		Message:   message,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/%s/email", c.baseURL, url.PathEscape(municipalityID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create email send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to send email", "error", err, "recipient", recipient)
		return fmt.Errorf("failed to send email to %s: %w", recipient, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.ErrorContext(ctx, "Messaging service returned non-OK status", "status_code", resp.StatusCode, "recipient", recipient)
		return fmt.Errorf("messaging service returned status %d", resp.StatusCode)
	}

	c.logger.InfoContext(ctx, "Outbound email submitted", "recipient", recipient, "subject", subject)
	return nil
}
