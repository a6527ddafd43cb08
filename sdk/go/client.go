package taskroutesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Taskroute HTTP API client.
type Client struct {
	BaseURL    string
	BasePath   string
	Token      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

// Task represents the API task model (partial).
type Task struct {
	ID         int64   `json:"id"`
	TaskNumber string  `json:"task_number"`
	Title      string  `json:"title"`
	Priority   string  `json:"priority"`
	Status     string  `json:"status"`
	CreatorID  string  `json:"creator_id"`
	Deadline   *string `json:"deadline,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

// Audit reports whether the archive write that followed a mutation landed.
type Audit struct {
	Status   string `json:"status"`
	Failures []struct {
		Op     string `json:"op"`
		Reason string `json:"reason"`
	} `json:"failures,omitempty"`
}

// Degraded is true when the change committed but its audit trail did not.
func (a Audit) Degraded() bool { return a.Status == "ok_with_audit_failure" }

// TaskResult is returned by task mutations.
type TaskResult struct {
	Task     Task           `json:"task"`
	Archived *ArchivedEntry `json:"archived,omitempty"`
	Audit    Audit          `json:"audit"`
}

// ArchivedEntry is an archive row.
type ArchivedEntry struct {
	ID             int64  `json:"id"`
	OriginalTaskID int64  `json:"original_task_id"`
	TaskNumber     string `json:"task_number"`
	ArchivedAt     string `json:"archived_at"`
	ArchiveReason  string `json:"archive_reason"`
	CanRestore     bool   `json:"can_restore"`
}

// InboxItem is a received task.
type InboxItem struct {
	Task   Task   `json:"task"`
	MyRole string `json:"my_role"`
	IsRead bool   `json:"is_read"`
}

type Inbox struct {
	Items       []InboxItem `json:"items"`
	UnreadCount int         `json:"unread_count"`
}

// Session is a login result.
type Session struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      struct {
		ID       string `json:"id"`
		Username string `json:"username"`
	} `json:"user"`
}

// CreateTaskInput mirrors the create request body.
type CreateTaskInput struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Priority    string   `json:"priority,omitempty"`
	Deadline    string   `json:"deadline,omitempty"`
	AssigneeIDs []string `json:"assignee_ids,omitempty"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login exchanges credentials for a session token and keeps it on the
// client for later calls.
func (c *Client) Login(ctx context.Context, username, password string) (Session, error) {
	var resp Session
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{
		"username": username,
		"password": password,
	}, &resp)
	if err == nil {
		c.Token = resp.Token
	}
	return resp, err
}

// Logout revokes the client's session token.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.do(ctx, http.MethodPost, "auth/logout", nil, nil); err != nil {
		return err
	}
	c.Token = ""
	return nil
}

// CreateTask creates a task routed to its assignees.
func (c *Client) CreateTask(ctx context.Context, in CreateTaskInput) (TaskResult, error) {
	var resp TaskResult
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

// ChangeStatus moves a task to a new status.
func (c *Client) ChangeStatus(ctx context.Context, taskID int64, status, comments string) (TaskResult, error) {
	body := map[string]any{"status": status}
	if comments != "" {
		body["comments"] = comments
	}
	var resp TaskResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/status", taskID), body, &resp)
	return resp, err
}

// DeleteTask soft-deletes a task.
func (c *Client) DeleteTask(ctx context.Context, taskID int64) (TaskResult, error) {
	var resp TaskResult
	err := c.do(ctx, http.MethodDelete, fmt.Sprintf("tasks/%d", taskID), nil, &resp)
	return resp, err
}

// MarkRead marks a task read; changed is false when it already was.
func (c *Client) MarkRead(ctx context.Context, taskID int64) (bool, error) {
	var resp struct {
		Changed bool `json:"changed"`
	}
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("tasks/%d/read", taskID), nil, &resp)
	return resp.Changed, err
}

// Inbox lists received tasks.
func (c *Client) Inbox(ctx context.Context, includeRead bool, limit int) (Inbox, error) {
	q := url.Values{}
	if includeRead {
		q.Set("include_read", "true")
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "inbox"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp Inbox
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// Archived lists archive rows of tasks the caller created.
func (c *Client) Archived(ctx context.Context, reason string) ([]ArchivedEntry, int, error) {
	endpoint := "archive"
	if reason != "" {
		endpoint += "?reason=" + url.QueryEscape(reason)
	}
	var resp struct {
		Items []ArchivedEntry `json:"items"`
		Total int             `json:"total"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, resp.Total, err
}

// Restore brings a soft-deleted task back from its archive entry.
func (c *Client) Restore(ctx context.Context, archiveID int64) (TaskResult, error) {
	var resp TaskResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("archive/%d/restore", archiveID), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
