package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client talks to the static-hosting platform API. All calls carry bearer
// token auth; a missing token is a hard configuration failure before any
// request is made.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	account    string
}

// NewClient creates a hosting API client
func NewClient(baseURL, token, account string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("hosting API URL not configured")
	}
	if token == "" {
		return nil, fmt.Errorf("hosting API token not configured")
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		token:      token,
		account:    account,
	}, nil
}

// EnsureProject returns the project with the given name, creating it when
// it does not exist yet.
func (c *Client) EnsureProject(ctx context.Context, name string) (*Project, error) {
	var project Project
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("/accounts/%s/projects/%s", c.account, name), nil, &project)
	if err == nil {
		return &project, nil
	}

	createReq := map[string]string{"name": name, "production_branch": "main"}
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/accounts/%s/projects", c.account), createReq, &project); err != nil {
		return nil, fmt.Errorf("failed to create project %s: %w", name, err)
	}
	return &project, nil
}

// CreateDeployment publishes the complete path→content manifest as one
// deployment on the project's main branch.
func (c *Client) CreateDeployment(ctx context.Context, projectName string, manifest map[string]string) (*Deployment, error) {
	req := DeploymentRequest{
		Manifest: manifest,
		Branch:   "main",
	}

	var deployment Deployment
	path := fmt.Sprintf("/accounts/%s/projects/%s/deployments", c.account, projectName)
	if err := c.do(ctx, http.MethodPost, path, req, &deployment); err != nil {
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}
	return &deployment, nil
}

// CreateRule installs one post-deploy forwarding rule (301) against the
// published domain.
func (c *Client) CreateRule(ctx context.Context, projectName, pattern, targetURL string, priority int) error {
	rule := Rule{
		Targets: []RuleTarget{{
			Target: "url",
			Constraint: RuleConstraint{
				Operator: "matches",
				Value:    pattern,
			},
		}},
		Actions: []RuleAction{{
			ID: "forwarding_url",
			Value: RuleActionValue{
				URL:        targetURL,
				StatusCode: 301,
			},
		}},
		Priority: priority,
		Status:   "active",
	}

	path := fmt.Sprintf("/accounts/%s/projects/%s/rules", c.account, projectName)
	if err := c.do(ctx, http.MethodPost, path, rule, nil); err != nil {
		return fmt.Errorf("failed to create routing rule %s: %w", pattern, err)
	}
	return nil
}

// do sends one authenticated JSON request and decodes the result envelope.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("hosting API request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		return fmt.Errorf("hosting API rejected credentials (status %d)", httpResp.StatusCode)
	}
	if httpResp.StatusCode >= 400 {
		return fmt.Errorf("hosting API returned status %d: %s", httpResp.StatusCode, string(respBody))
	}

	var envelope Envelope
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	if !envelope.Success {
		return fmt.Errorf("hosting API error: %s", envelope.ErrorText())
	}

	if out != nil && len(envelope.Result) > 0 {
		if err := json.Unmarshal(envelope.Result, out); err != nil {
			return fmt.Errorf("failed to parse result: %w", err)
		}
	}
	return nil
}
