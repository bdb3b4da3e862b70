package webmessagecollector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// WebMessage is one inbound message from the web message collector.
type WebMessage struct {
	ID             string           `json:"id"`
	FamilyID       string           `json:"familyId"`
	Instance       string           `json:"instance"`
	ExternalCaseID string           `json:"externalCaseId"`
	Email          string           `json:"email,omitempty"`
	Message        string           `json:"message"`
	Sent           time.Time        `json:"sent"`
	Attachments    []AttachmentMeta `json:"attachments,omitempty"`
}

// AttachmentMeta is attachment metadata only; the binary is fetched lazily
// via GetAttachment.
type AttachmentMeta struct {
	ID       string `json:"attachmentId"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
}

// Client talks to the external web message collector.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	baseURL    string
}

func NewClient(logger *slog.Logger, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		logger:     logger.With("client", "webmessagecollector"),
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// GetWebMessages fetches messages for one family/instance.
func (c *Client) GetWebMessages(ctx context.Context, municipalityID, familyID, instance string) ([]WebMessage, error) {
	endpoint := fmt.Sprintf("%s/%s/messages?familyId=%s&instance=%s",
		c.baseURL, url.PathEscape(municipalityID), url.QueryEscape(familyID), url.QueryEscape(instance))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create web message request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch web messages", "error", err, "family_id", familyID)
		return nil, fmt.Errorf("failed to fetch web messages for family %s: %w", familyID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read web message response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "Web message collector returned non-OK status", "status_code", resp.StatusCode, "family_id", familyID)
		return nil, fmt.Errorf("web message collector returned status %d", resp.StatusCode)
	}

	var messages []WebMessage
	if err := json.Unmarshal(body, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode web message response: %w", err)
	}
	return messages, nil
}

// GetAttachment fetches one attachment binary by its external id.
func (c *Client) GetAttachment(ctx context.Context, municipalityID, attachmentID string) ([]byte, string, error) {
	endpoint := fmt.Sprintf("%s/%s/attachments/%s", c.baseURL, url.PathEscape(municipalityID), url.PathEscape(attachmentID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create attachment request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch attachment", "error", err, "attachment_id", attachmentID)
		return nil, "", fmt.Errorf("failed to fetch attachment %s: %w", attachmentID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read attachment response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "Attachment fetch returned non-OK status", "status_code", resp.StatusCode, "attachment_id", attachmentID)
		return nil, "", fmt.Errorf("attachment fetch for %s returned status %d", attachmentID, resp.StatusCode)
	}
	return body, resp.Header.Get("Content-Type"), nil
}
