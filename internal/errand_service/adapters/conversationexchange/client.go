package conversationexchange

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
)

// ExternalReferenceRelationIDs is the reference key carrying relation ids on
// a conversation.
const ExternalReferenceRelationIDs = "relationIds"

// Conversation is one externally owned conversation thread.
type Conversation struct {
	ID                   string              `json:"id"`
	Topic                string              `json:"topic"`
	LatestSequenceNumber int64               `json:"latestSequenceNumber"`
	ExternalReferences   []ExternalReference `json:"externalReferences,omitempty"`
}

type ExternalReference struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// RelationIDs returns the relation ids referenced by the conversation.
func (c *Conversation) RelationIDs() []string {
	for _, ref := range c.ExternalReferences {
		if ref.Key == ExternalReferenceRelationIDs {
			return ref.Values
		}
	}
	return nil
}

// Page is one page of the conversation feed. Pagination metadata follows the
// exchange's zero-based page numbering.
type Page struct {
	Conversations []Conversation `json:"content"`
	PageNumber    int            `json:"pageNumber"`
	TotalPages    int            `json:"totalPages"`
}

// HasNext reports whether more pages follow this one.
func (p *Page) HasNext() bool {
	return p.PageNumber+1 < p.TotalPages
}

// Client talks to the external conversation exchange service.
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
		logger:     logger.With("client", "conversationexchange"),
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// SequenceFilter builds the watermark filter expression for sequence numbers
// strictly above the given watermark.
func SequenceFilter(sequenceNumber int64) string {
	return fmt.Sprintf("messages.sequenceNumber.id > %d", sequenceNumber)
}

// GetConversations fetches one page of conversations matching the filter,
// ascending by sequence number.
func (c *Client) GetConversations(ctx context.Context, municipalityID, namespace, filter string, page, size int) (*Page, error) {
	endpoint := fmt.Sprintf("%s/%s/%s/conversations?filter=%s&page=%d&size=%d&sort=asc",
		c.baseURL, url.PathEscape(municipalityID), url.PathEscape(namespace), url.QueryEscape(filter), page, size)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation page request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch conversation page", "error", err, "page", page)
		return nil, fmt.Errorf("failed to fetch conversation page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation page response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		c.logger.ErrorContext(ctx, "Conversation exchange returned non-OK status", "status_code", resp.StatusCode, "page", page)
		return nil, fmt.Errorf("conversation exchange returned status %d", resp.StatusCode)
	}

	var result Page
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode conversation page response: %w", err)
	}
	return &result, nil
}

// MergeMessages hands a shadowed conversation off to the exchange-side sync
// that merges its messages into the local shadow.
func (c *Client) MergeMessages(ctx context.Context, municipalityID, namespace, externalConversationID string, shadowID string) error {
	endpoint := fmt.Sprintf("%s/%s/%s/conversations/%s/sync",
		c.baseURL, url.PathEscape(municipalityID), url.PathEscape(namespace), url.PathEscape(externalConversationID))

	payload, err := json.Marshal(map[string]string{"shadowId": shadowID})
	if err != nil {
		return fmt.Errorf("failed to marshal merge request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create merge request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to merge conversation messages", "error", err, "external_conversation_id", externalConversationID)
		return fmt.Errorf("failed to merge conversation %s: %w", externalConversationID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		c.logger.ErrorContext(ctx, "Conversation merge returned non-OK status", "status_code", resp.StatusCode, "external_conversation_id", externalConversationID)
		return fmt.Errorf("conversation merge for %s returned status %d", externalConversationID, resp.StatusCode)
	}
	return nil
}
