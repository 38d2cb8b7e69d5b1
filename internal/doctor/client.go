// Package doctor's Client is the CLI-side half of the admin surface:
// a small HTTP client hitting a running gateway's /admin/* routes,
// grounded on the teacher's cmd/nexus/api_client.go postJSON helper.
package doctor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/haasonsaas/nexus-gateway/internal/config"
)

// Client talks to a running gateway's admin endpoints.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a Client against baseURL (e.g. "http://localhost:8080").
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// ResetServerFailures calls POST /admin/servers/reset for name.
func (c *Client) ResetServerFailures(ctx context.Context, name string) error {
	var out map[string]any
	return c.postJSON(ctx, "/admin/servers/reset", map[string]string{"name": name}, &out)
}

// ReloadRegistry calls POST /admin/registry/reload and returns the diff.
func (c *Client) ReloadRegistry(ctx context.Context) (config.RegistryDiff, error) {
	var diff config.RegistryDiff
	err := c.postJSON(ctx, "/admin/registry/reload", map[string]string{}, &diff)
	return diff, err
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if readErr == nil && len(errBody) > 0 {
			return fmt.Errorf("request %s failed: %s (%s)", path, resp.Status, strings.TrimSpace(string(errBody)))
		}
		return fmt.Errorf("request %s failed: %s", path, resp.Status)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
