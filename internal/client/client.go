// Package client holds the outbound HTTP clients producers use for recipient
// resolution. Every call is bounded by the configured timeout and carries a
// system bearer token; any failure is surfaced to the caller so a publish
// never proceeds with a wrong or empty recipient list.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/taskman/taskman/internal/metrics"
)

// TokenSource mints the bearer credential attached to resolution calls.
type TokenSource interface {
	SystemToken() (string, error)
}

// ProjectClient resolves project membership against the project service.
type ProjectClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewProjectClient builds a client for the project service.
func NewProjectClient(baseURL string, timeout time.Duration, tokens TokenSource) *ProjectClient {
	return &ProjectClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// Members returns every member user id of a project.
func (c *ProjectClient) Members(ctx context.Context, projectID string) ([]string, error) {
	var out struct {
		Members []struct {
			UserID string `json:"user_id"`
			Role   string `json:"role"`
		} `json:"members"`
	}
	if err := c.get(ctx, fmt.Sprintf("/projects/%s/members", projectID), "project_members", &out); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(out.Members))
	for _, m := range out.Members {
		ids = append(ids, m.UserID)
	}
	return ids, nil
}

// Admins returns the admin member user ids of a project.
func (c *ProjectClient) Admins(ctx context.Context, projectID string) ([]string, error) {
	var out struct {
		Admins []string `json:"admins"`
	}
	if err := c.get(ctx, fmt.Sprintf("/projects/%s/admins", projectID), "project_admins", &out); err != nil {
		return nil, err
	}
	return out.Admins, nil
}

func (c *ProjectClient) get(ctx context.Context, path, target string, out any) error {
	return doGet(ctx, c.http, c.tokens, c.baseURL+path, target, out)
}

// TaskClient resolves a task's notification recipients against the task
// service.
type TaskClient struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

// NewTaskClient builds a client for the task service.
func NewTaskClient(baseURL string, timeout time.Duration, tokens TokenSource) *TaskClient {
	return &TaskClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		tokens:  tokens,
	}
}

// NotificationRecipients returns a task's assignees plus its project admins.
func (c *TaskClient) NotificationRecipients(ctx context.Context, taskID string) ([]string, error) {
	var out struct {
		AssigneeIDs     []string `json:"assignee_ids"`
		ProjectAdminIDs []string `json:"project_admin_ids"`
	}
	url := fmt.Sprintf("%s/tasks/%s/notification-recipients", c.baseURL, taskID)
	if err := doGet(ctx, c.http, c.tokens, url, "task_recipients", &out); err != nil {
		return nil, err
	}
	return append(out.AssigneeIDs, out.ProjectAdminIDs...), nil
}

func doGet(ctx context.Context, hc *http.Client, tokens TokenSource, url, target string, out any) error {
	token, err := tokens.SystemToken()
	if err != nil {
		return fmt.Errorf("mint system token: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		metrics.RecordRecipientLookup(target, "error", time.Since(start).Seconds())
		return fmt.Errorf("resolution call %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordRecipientLookup(target, fmt.Sprintf("http_%d", resp.StatusCode), time.Since(start).Seconds())
		return fmt.Errorf("resolution call %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		metrics.RecordRecipientLookup(target, "bad_body", time.Since(start).Seconds())
		return fmt.Errorf("decode resolution response: %w", err)
	}
	metrics.RecordRecipientLookup(target, "ok", time.Since(start).Seconds())
	return nil
}
