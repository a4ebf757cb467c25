package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPClient talks to the chat-platform gateway over its JSON API.
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

func (c *HTTPClient) SendMessage(ctx context.Context, target, text string) error {
	return c.post(ctx, "/messages", map[string]any{
		"target": target,
		"text":   text,
	}, nil)
}

func (c *HTTPClient) RemoveMember(ctx context.Context, groupID, memberExternalID string) error {
	return c.post(ctx, fmt.Sprintf("/groups/%s/kick", groupID), map[string]any{
		"member_id": memberExternalID,
	}, nil)
}

func (c *HTTPClient) CreateInviteLink(ctx context.Context, groupID string, params InviteLinkParams) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.post(ctx, fmt.Sprintf("/groups/%s/invite-links", groupID), map[string]any{
		"expires_at": params.ExpiresAt.Format(time.RFC3339),
		"use_limit":  params.UseLimit,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.URL, nil
}

func (c *HTTPClient) RevokeInviteLink(ctx context.Context, url string) error {
	return c.post(ctx, "/invite-links/revoke", map[string]any{
		"url": url,
	}, nil)
}

func (c *HTTPClient) ListAdmins(ctx context.Context, groupID string) (map[string]struct{}, error) {
	var out struct {
		Admins []string `json:"admins"`
	}
	if err := c.get(ctx, fmt.Sprintf("/groups/%s/admins", groupID), &out); err != nil {
		return nil, err
	}
	admins := make(map[string]struct{}, len(out.Admins))
	for _, id := range out.Admins {
		admins[id] = struct{}{}
	}
	return admins, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *HTTPClient) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("platform request %s %s: status %d", req.Method, req.URL.Path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
