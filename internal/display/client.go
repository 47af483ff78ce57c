package display

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"printstatus/internal/model"
)

const maxResponseBytes = 1 << 20

// Client fetches the status relay's current state.
type Client struct {
	URL   string
	Token string
	HTTP  *http.Client
}

// NewClient returns a client with a bounded request timeout.
func NewClient(url, token string) *Client {
	return &Client{URL: url, Token: token, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) get(ctx context.Context, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, err
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s: %s", c.URL, resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// FetchState asks for the JSON representation.
func (c *Client) FetchState(ctx context.Context) (model.JobState, error) {
	body, err := c.get(ctx, "application/json")
	if err != nil {
		return model.JobState{}, err
	}
	var s model.JobState
	if err := json.Unmarshal(body, &s); err != nil {
		return model.JobState{}, fmt.Errorf("decode status: %w", err)
	}
	return s, nil
}

// FetchText asks for the human-readable summary.
func (c *Client) FetchText(ctx context.Context) (string, error) {
	body, err := c.get(ctx, "")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}
