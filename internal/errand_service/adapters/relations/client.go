package relations

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/municipio/support-management/internal/errand_service/domain"
)

// ServiceSupportManagement is the target service name accepted during
// conversation correlation.
const ServiceSupportManagement = "support-management"

// ResourceIdentifier names a resource inside a service.
type ResourceIdentifier struct {
	Service    string `json:"service"`
	Namespace  string `json:"namespace,omitempty"`
	ResourceID string `json:"resourceId"`
}

// Relation is an external service's record linking two resources.
type Relation struct {
	ID     string             `json:"id"`
	Source ResourceIdentifier `json:"source"`
	Target ResourceIdentifier `json:"target"`
}

// TargetsSupportManagement reports whether the relation's target identifies
// this service.
func (r *Relation) TargetsSupportManagement() bool {
	return r.Target.Service == ServiceSupportManagement
}

// Client talks to the external relation lookup service.
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
		logger:     logger.With("client", "relations"),
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

// GetRelation resolves one relation id to its source/target pair. An unknown
// id maps to domain.ErrNotFound.
func (c *Client) GetRelation(ctx context.Context, municipalityID, relationID string) (*Relation, error) {
	endpoint := fmt.Sprintf("%s/%s/relations/%s", c.baseURL, url.PathEscape(municipalityID), url.PathEscape(relationID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create relation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch relation", "error", err, "relation_id", relationID)
		return nil, fmt.Errorf("failed to fetch relation %s: %w", relationID, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read relation response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("relation %s: %w", relationID, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		c.logger.ErrorContext(ctx, "Relation lookup returned non-OK status", "status_code", resp.StatusCode, "relation_id", relationID)
		return nil, fmt.Errorf("relation lookup for %s returned status %d", relationID, resp.StatusCode)
	}

	var relation Relation
	if err := json.Unmarshal(body, &relation); err != nil {
		return nil, fmt.Errorf("failed to decode relation response: %w", err)
	}
	if relation.Target.ResourceID == "" {
		return nil, errors.New("relation response missing target resource id")
	}
	return &relation, nil
}
