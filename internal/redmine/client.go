package redmine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNotFound is returned when a referenced issue does not exist. Callers
// degrade on it instead of failing the operation.
var ErrNotFound = errors.New("issue not found")

// updatedSinceBound is the wide historical bound for the updated-issues
// query. Redmine's server-side filter is coarse; the fine "new since
// watermark" filtering happens locally in the change detector.
const updatedSinceBound = "2000-01-01T00:00:00Z"

// Client is a thin HTTP client for the Redmine REST API. Authentication
// uses the X-Redmine-API-Key header.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a Redmine client. The baseURL is the root URL of the
// Redmine instance (e.g. https://redmine.corp.example.com).
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type issueEnvelope struct {
	Issue Issue `json:"issue"`
}

type issueListEnvelope struct {
	Issues []Issue `json:"issues"`
}

type errorEnvelope struct {
	Errors []string `json:"errors"`
}

// CreateIssue opens a new issue and returns it as stored by Redmine,
// including its assigned id.
func (c *Client) CreateIssue(ctx context.Context, draft IssueDraft) (*Issue, error) {
	var out issueEnvelope
	body := map[string]IssueDraft{"issue": draft}
	if err := c.do(ctx, http.MethodPost, "/issues.json", body, &out); err != nil {
		return nil, fmt.Errorf("creating issue: %w", err)
	}
	return &out.Issue, nil
}

// GetIssue fetches one issue with its journal entries.
func (c *Client) GetIssue(ctx context.Context, id int) (*Issue, error) {
	var out issueEnvelope
	path := fmt.Sprintf("/issues/%d.json?include=journals", id)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("fetching issue #%d: %w", id, err)
	}
	return &out.Issue, nil
}

// IssueExists reports whether the issue id exists. ErrNotFound is absorbed;
// only transport failures surface as errors.
func (c *Client) IssueExists(ctx context.Context, id int) (bool, error) {
	_, err := c.GetIssue(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddNotes appends a journal note to an existing issue.
func (c *Client) AddNotes(ctx context.Context, id int, notes string) error {
	path := fmt.Sprintf("/issues/%d.json", id)
	body := map[string]map[string]string{"issue": {"notes": notes}}
	if err := c.do(ctx, http.MethodPut, path, body, nil); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("adding notes to issue #%d: %w", id, err)
	}
	return nil
}

// ListUpdated returns recently updated issues, most recently updated first,
// capped at 100. The since bound is deliberately wide (see updatedSinceBound).
func (c *Client) ListUpdated(ctx context.Context) ([]Issue, error) {
	var out issueListEnvelope
	path := "/issues.json?status_id=*&sort=updated_on:desc&limit=100" +
		"&updated_on=%3E%3D" + updatedSinceBound
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("listing updated issues: %w", err)
	}
	return out.Issues, nil
}

// do builds the request, sets authentication headers and handles JSON
// (de)serialization and error mapping.
func (c *Client) do(ctx context.Context, method, path string, body, result interface{}) error {
	url := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("X-Redmine-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("authentication failed (401): check the API key for %s", c.baseURL)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var redmineErr errorEnvelope
		if json.Unmarshal(respBody, &redmineErr) == nil && len(redmineErr.Errors) > 0 {
			return fmt.Errorf("redmine API error (%d) on %s %s: %s",
				resp.StatusCode, method, path, strings.Join(redmineErr.Errors, "; "))
		}
		return fmt.Errorf("unexpected status %d on %s %s: %s",
			resp.StatusCode, method, path, string(respBody))
	}

	// 204 on successful PUT
	if result == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		return fmt.Errorf("unmarshaling response from %s %s: %w", method, path, err)
	}

	return nil
}
