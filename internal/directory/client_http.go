package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"gatepass/pkg/domain"
	"gatepass/pkg/platform/sentinel"
)

const defaultTimeout = 5 * time.Second

// HTTPClient talks to the directory service over its REST API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a directory client for the given base URL.
// A zero timeout falls back to the package default.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	if timeout == 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Visitor fetches a visitor record by ID. Deactivated records read as
// missing; the directory still serves them for audit views.
func (c *HTTPClient) Visitor(ctx context.Context, id domain.VisitorID) (*Visitor, error) {
	var v Visitor
	if err := c.get(ctx, "/visitors/"+id.String(), &v); err != nil {
		return nil, err
	}
	if !v.Active {
		return nil, sentinel.ErrNotFound
	}
	return &v, nil
}

// Host fetches a resident record by ID.
func (c *HTTPClient) Host(ctx context.Context, id domain.HostID) (*Host, error) {
	var h Host
	if err := c.get(ctx, "/hosts/"+id.String(), &h); err != nil {
		return nil, err
	}
	if !h.Active {
		return nil, sentinel.ErrNotFound
	}
	return &h, nil
}

// Building fetches a building record by ID.
func (c *HTTPClient) Building(ctx context.Context, id domain.BuildingID) (*Building, error) {
	var b Building
	if err := c.get(ctx, "/buildings/"+id.String(), &b); err != nil {
		return nil, err
	}
	if !b.Active {
		return nil, sentinel.ErrNotFound
	}
	return &b, nil
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build directory request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("directory lookup %s: %w: %w", path, sentinel.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode directory response %s: %w", path, err)
		}
		return nil
	case http.StatusNotFound:
		return sentinel.ErrNotFound
	default:
		return fmt.Errorf("directory lookup %s: unexpected status %d: %w", path, resp.StatusCode, sentinel.ErrUnavailable)
	}
}
