package entitlement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient resolves entitlements against the CRM's JSON API.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) Lookup(ctx context.Context, identityNumber string) (Entitlement, error) {
	endpoint := fmt.Sprintf("%s/entitlements/%s", c.baseURL, url.PathEscape(identityNumber))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Entitlement{}, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Entitlement{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return Entitlement{Active: false}, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Entitlement{}, fmt.Errorf("entitlement lookup %s: status %d", identityNumber, resp.StatusCode)
	}

	var out struct {
		Active   bool   `json:"active"`
		PlanName string `json:"plan_name"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Entitlement{}, err
	}
	return Entitlement{Active: out.Active, PlanName: out.PlanName}, nil
}
