package emailreader

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
)

// Email is one inbound email as delivered by the email reader service.
// Attachment content arrives base64 encoded in the list payload.
type Email struct {
	ID          string       `json:"id" validate:"required"`
	Sender      string       `json:"sender" validate:"required,email"`
	Recipients  []string     `json:"recipients"`
	Subject     string       `json:"subject"`
	Message     string       `json:"message"`
	ReceivedAt  time.Time    `json:"receivedAt"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

type Attachment struct {
	Name          string `json:"name"`
	ContentType   string `json:"contentType"`
	ContentBase64 string `json:"content"`
}

// Client talks to the external mailbox service.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
	validate   *validator.Validate
}

func NewClient(logger *slog.Logger, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		logger:     logger.With("client", "emailreader"),
		httpClient: httpClient,
		baseURL:    baseURL,
		validate:   validator.New(),
	}
}

// GetEmails fetches all pending emails for the tenant. Payloads that fail
// structural validation are dropped with a warning; they would poison every
// subsequent run since the mailbox is only cleared after ingestion.
func (c *Client) GetEmails(ctx context.Context, municipalityID, namespace string) ([]Email, error) {
	endpoint := fmt.Sprintf("%s/%s/email/%s", c.baseURL, url.PathEscape(municipalityID), url.PathEscape(namespace))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create email list request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch emails", "error", err)
		return nil, fmt.Errorf("failed to fetch emails: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read email list response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "Email reader returned non-OK status", "status_code", resp.StatusCode)
		return nil, fmt.Errorf("email reader returned status %d", resp.StatusCode)
	}

	var emails []Email
	if err := json.Unmarshal(body, &emails); err != nil {
		return nil, fmt.Errorf("failed to decode email list response: %w", err)
	}

	valid := emails[:0]
	for _, email := range emails {
		if err := c.validate.Struct(email); err != nil {
			c.logger.WarnContext(ctx, "Dropping structurally invalid email payload", "email_id", email.ID, "error", err)
			continue
		}
		valid = append(valid, email)
	}
	return valid, nil
}

// DeleteEmail removes an email from the upstream mailbox. Called only after
// local persistence of the email succeeded.
func (c *Client) DeleteEmail(ctx context.Context, municipalityID, emailID string) error {
	endpoint := fmt.Sprintf("%s/%s/email/%s", c.baseURL, url.PathEscape(municipalityID), url.PathEscape(emailID))

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create email delete request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to delete email", "error", err, "email_id", emailID)
		return fmt.Errorf("failed to delete email %s: %w", emailID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		c.logger.ErrorContext(ctx, "Email delete returned non-OK status", "status_code", resp.StatusCode, "email_id", emailID)
		return fmt.Errorf("email delete for %s returned status %d", emailID, resp.StatusCode)
	}
	return nil
}
