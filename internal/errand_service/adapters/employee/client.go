package employee

import (
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

// Client talks to the external employee directory.
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
		logger:     logger.With("client", "employee"),
		httpClient: httpClient,
		baseURL:    baseURL,
	}
}

type employeeResponse struct {
	LoginName string `json:"loginName"`
	FullName  string `json:"fullName"`
}

// GetDisplayName resolves an administrator login name to a display name.
// An unknown login maps to domain.ErrNotFound; callers fall back to the
// UNKNOWN marker.
func (c *Client) GetDisplayName(ctx context.Context, municipalityID, loginName string) (string, error) {
	endpoint := fmt.Sprintf("%s/%s/employees/%s", c.baseURL, url.PathEscape(municipalityID), url.PathEscape(loginName))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create employee request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to fetch employee", "error", err, "login_name", loginName)
		return "", fmt.Errorf("failed to fetch employee %s: %w", loginName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read employee response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("employee %s: %w", loginName, domain.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		c.logger.ErrorContext(ctx, "Employee lookup returned non-OK status", "status_code", resp.StatusCode, "login_name", loginName)
		return "", fmt.Errorf("employee lookup for %s returned status %d", loginName, resp.StatusCode)
	}

	var employee employeeResponse
	if err := json.Unmarshal(body, &employee); err != nil {
		return "", fmt.Errorf("failed to decode employee response: %w", err)
	}
	return employee.FullName, nil
}
