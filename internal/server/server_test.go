package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"

	"taskroute/internal/app"
	"taskroute/internal/domain"
	"taskroute/internal/engine"
	"taskroute/internal/identity"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
	logs   *bytes.Buffer
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T, auth AuthConfig) *testServer {
	t.Helper()
	logs := &bytes.Buffer{}
	logger := log.New(logs, "", 0)
	rt, err := app.Open(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("open runtime: %v", err)
	}
	auth.Logger = logger
	handler, err := New(Config{Engine: rt.Engine, Accounts: rt.Identity, Auth: auth})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		logs:   logs,
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			rt.Close()
		},
	}
	t.Cleanup(testSrv.Close)
	return testSrv
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func expectError(t *testing.T, res *http.Response, data []byte, status int, code string) errorEnvelope {
	t.Helper()
	if res.StatusCode != status {
		t.Fatalf("expected %d, got %d: %s", status, res.StatusCode, string(data))
	}
	var env errorEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("decode error envelope: %v (%s)", err, string(data))
	}
	if env.Error.Code != code {
		t.Fatalf("expected code %s, got %s: %s", code, env.Error.Code, string(data))
	}
	return env
}

// signup registers a user and returns it with bearer headers for a fresh
// session.
func signup(t *testing.T, srv *testServer, username string) (domain.User, map[string]string) {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"username": username,
		"password": "password-" + username,
	}, nil)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("register %s status %d: %s", username, res.StatusCode, string(data))
	}
	var u domain.User
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"username": username,
		"password": "password-" + username,
	}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("login %s status %d: %s", username, res.StatusCode, string(data))
	}
	var sess identity.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return u, map[string]string{"Authorization": "Bearer " + sess.Token}
}

func createTask(t *testing.T, srv *testServer, headers map[string]string, assignees ...string) engine.TaskResult {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":        "Quarterly report",
		"priority":     "high",
		"deadline":     "2024-12-31",
		"assignee_ids": assignees,
	}, headers)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var out engine.TaskResult
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	return out
}

func TestHealthIsPublic(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(data))
	}
	var h engine.Health
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if h.Status != "healthy" || h.Operational.Version == 0 || h.Archive.Version == 0 {
		t.Fatalf("unexpected health: %+v", h)
	}
}

func TestAuthRequired(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/inbox", nil, nil)
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/inbox", nil, map[string]string{"Authorization": "Bearer nope"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/inbox", nil, map[string]string{"Authorization": "Basic abc"})
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	// The header is ignored unless explicitly allowed.
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/inbox", nil, map[string]string{"X-User-Id": "alice"})
	expectError(t, res, data, http.StatusUnauthorized, "unauthorized")
}

func TestUserHeaderWhenAllowed(t *testing.T) {
	srv := newTestServer(t, AuthConfig{AllowUserHeader: true})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/me", nil, map[string]string{"X-User-Id": "svc-import"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.UserID != "svc-import" || me.Source != "header" || me.User != nil {
		t.Fatalf("unexpected me: %+v", me)
	}
	if !strings.Contains(srv.logs.String(), "WARNING: trusting X-User-Id") {
		t.Fatalf("expected warning log, got %q", srv.logs.String())
	}
}

func TestAccounts(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	alice, headers := signup(t, srv, "alice")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"username": "alice",
		"password": "another-password",
	}, nil)
	expectError(t, res, data, http.StatusConflict, "conflict")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/register", map[string]any{
		"username": "short",
		"password": "abc",
	}, nil)
	expectError(t, res, data, http.StatusBadRequest, "validation_failed")

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/login", map[string]any{
		"username": "alice",
		"password": "wrong-password",
	}, nil)
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, headers)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me status %d: %s", res.StatusCode, string(data))
	}
	var me MeResponse
	if err := json.Unmarshal(data, &me); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if me.UserID != alice.ID || me.User == nil || me.User.Username != "alice" {
		t.Fatalf("unexpected me: %+v", me)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/auth/logout", nil, headers)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/me", nil, headers)
	expectError(t, res, data, http.StatusUnauthorized, "invalid_credentials")
}

func TestTaskRoutingFlow(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	_, aliceH := signup(t, srv, "alice")
	bob, bobH := signup(t, srv, "bob")
	_, carolH := signup(t, srv, "carol")

	created := createTask(t, srv, aliceH, bob.ID)
	if created.Task.Status != domain.StatusPending || created.Outcome.Status != engine.OutcomeOK {
		t.Fatalf("unexpected create result: %+v", created)
	}
	if !strings.HasPrefix(created.Task.TaskNumber, "TASK-") {
		t.Fatalf("unexpected task number %q", created.Task.TaskNumber)
	}
	taskURL := fmt.Sprintf("%s/v1/tasks/%d", srv.URL, created.Task.ID)

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks", map[string]any{
		"title":        "Ghost",
		"assignee_ids": []string{"no-such-user"},
	}, aliceH)
	env := expectError(t, res, data, http.StatusBadRequest, "validation_failed")
	if env.Error.Details["field"] != "assignee_ids" {
		t.Fatalf("unexpected details: %+v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/inbox/unread-count", nil, bobH)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"unread_count":1`) {
		t.Fatalf("unread count %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/read", nil, bobH)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"changed":true`) {
		t.Fatalf("mark read %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, taskURL+"/read", nil, bobH)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"changed":false`) {
		t.Fatalf("second mark read %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/outbox", nil, aliceH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("outbox status %d: %s", res.StatusCode, string(data))
	}
	var outbox ListResponse[engine.OutboxItem]
	if err := json.Unmarshal(data, &outbox); err != nil {
		t.Fatalf("decode outbox: %v", err)
	}
	if len(outbox.Items) != 1 || outbox.Items[0].ReadCount != 1 || outbox.Items[0].UnreadCount != 0 {
		t.Fatalf("unexpected outbox: %+v", outbox)
	}

	res, data = doJSON(t, client, http.MethodGet, taskURL, nil, carolH)
	env = expectError(t, res, data, http.StatusForbidden, "forbidden")
	if env.Error.Details["capability"] == nil {
		t.Fatalf("expected capability detail: %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/999999", nil, aliceH)
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/status", map[string]any{"status": "completed"}, bobH)
	env = expectError(t, res, data, http.StatusBadRequest, "validation_failed")
	if env.Error.Details["field"] != "status" {
		t.Fatalf("unexpected details: %+v", env.Error.Details)
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/status", map[string]any{"status": "bogus"}, bobH)
	expectError(t, res, data, http.StatusBadRequest, "validation_failed")

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/status", map[string]any{"status": "in_progress", "comments": "on it"}, bobH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("start status %d: %s", res.StatusCode, string(data))
	}
	var moved engine.TaskResult
	if err := json.Unmarshal(data, &moved); err != nil {
		t.Fatalf("decode move: %v", err)
	}
	if moved.Task.Status != domain.StatusInProgress || moved.Task.StartedAt == nil {
		t.Fatalf("unexpected task after start: %+v", moved.Task)
	}

	res, data = doJSON(t, client, http.MethodGet, taskURL+"/timeline", nil, bobH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("timeline status %d: %s", res.StatusCode, string(data))
	}
	var timeline ListResponse[domain.StatusHistory]
	if err := json.Unmarshal(data, &timeline); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(timeline.Items) != 2 || timeline.Items[1].Comments != "on it" {
		t.Fatalf("unexpected timeline: %+v", timeline.Items)
	}

	res, data = doJSON(t, client, http.MethodPatch, taskURL, map[string]any{"title": "Renamed"}, bobH)
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPatch, taskURL, map[string]any{"title": "Renamed", "deadline": nil}, aliceH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("patch status %d: %s", res.StatusCode, string(data))
	}
	var patched engine.TaskResult
	if err := json.Unmarshal(data, &patched); err != nil {
		t.Fatalf("decode patch: %v", err)
	}
	if patched.Task.Title != "Renamed" || patched.Task.Deadline != nil {
		t.Fatalf("unexpected patched task: %+v", patched.Task)
	}
}

func TestDeleteRestoreOverHTTP(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	_, aliceH := signup(t, srv, "alice")
	bob, bobH := signup(t, srv, "bob")
	created := createTask(t, srv, aliceH, bob.ID)
	taskURL := fmt.Sprintf("%s/v1/tasks/%d", srv.URL, created.Task.ID)

	res, data := doJSON(t, client, http.MethodDelete, taskURL, nil, bobH)
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodDelete, taskURL, nil, aliceH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	var deleted engine.TaskResult
	if err := json.Unmarshal(data, &deleted); err != nil {
		t.Fatalf("decode delete: %v", err)
	}
	if deleted.Archived == nil || deleted.Archived.ArchiveReason != domain.ReasonDeleted {
		t.Fatalf("expected archive record: %+v", deleted)
	}

	res, data = doJSON(t, client, http.MethodGet, taskURL, nil, aliceH)
	expectError(t, res, data, http.StatusNotFound, "not_found")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/archive?reason=deleted", nil, aliceH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("archive list status %d: %s", res.StatusCode, string(data))
	}
	var page engine.ArchivedPage
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatalf("decode archive page: %v", err)
	}
	if page.Total != 1 || !page.Items[0].CanRestore {
		t.Fatalf("unexpected archive page: %+v", page)
	}
	archiveURL := fmt.Sprintf("%s/v1/archive/%d", srv.URL, deleted.Archived.ID)

	res, data = doJSON(t, client, http.MethodGet, archiveURL, nil, bobH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("archived detail for participant %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, archiveURL+"/restore", nil, bobH)
	expectError(t, res, data, http.StatusForbidden, "forbidden")

	res, data = doJSON(t, client, http.MethodPost, archiveURL+"/restore", nil, aliceH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("restore status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, taskURL+"/history", nil, aliceH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("history status %d: %s", res.StatusCode, string(data))
	}
	var history ListResponse[domain.ActivityLog]
	if err := json.Unmarshal(data, &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(history.Items) == 0 || history.Items[0].Action != "task_restored" {
		t.Fatalf("unexpected history: %+v", history.Items)
	}
	if history.Items[0].IPAddress != "127.0.0.1" {
		t.Fatalf("expected request provenance, got %q", history.Items[0].IPAddress)
	}

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/"+fmt.Sprint(created.Task.ID)+"/status", map[string]any{"status": "cancelled"}, aliceH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel status %d: %s", res.StatusCode, string(data))
	}
	var cancelled engine.TaskResult
	if err := json.Unmarshal(data, &cancelled); err != nil {
		t.Fatalf("decode cancel: %v", err)
	}
	if cancelled.Archived == nil {
		t.Fatalf("expected cancellation archive: %+v", cancelled)
	}
	res, data = doJSON(t, client, http.MethodPost, fmt.Sprintf("%s/v1/archive/%d/restore", srv.URL, cancelled.Archived.ID), nil, aliceH)
	expectError(t, res, data, http.StatusConflict, "conflict")

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/activity/summary", nil, aliceH)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"task_created"`) {
		t.Fatalf("summary %d: %s", res.StatusCode, string(data))
	}
}

func TestTaskRoutesBindPathAndPaging(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	client := srv.Client()
	_, aliceH := signup(t, srv, "alice")
	bob, _ := signup(t, srv, "bob")
	carol, _ := signup(t, srv, "carol")

	var draft engine.TaskResult
	for _, title := range []string{"Plan", "Spare"} {
		res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v1/tasks/drafts", map[string]any{"title": title}, aliceH)
		if res.StatusCode != http.StatusCreated {
			t.Fatalf("draft status %d: %s", res.StatusCode, string(data))
		}
		if title == "Plan" {
			if err := json.Unmarshal(data, &draft); err != nil {
				t.Fatalf("decode draft: %v", err)
			}
		}
	}
	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v1/tasks/drafts?limit=1", nil, aliceH)
	var drafts ListResponse[domain.Task]
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &drafts) != nil || len(drafts.Items) != 1 {
		t.Fatalf("paged drafts %d: %s", res.StatusCode, string(data))
	}

	taskURL := fmt.Sprintf("%s/v1/tasks/%d", srv.URL, draft.Task.ID)
	res, data = doJSON(t, client, http.MethodPost, taskURL+"/send", map[string]any{"assignee_ids": []string{bob.ID}}, aliceH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("send status %d: %s", res.StatusCode, string(data))
	}
	var sent engine.TaskResult
	if err := json.Unmarshal(data, &sent); err != nil {
		t.Fatalf("decode send: %v", err)
	}
	if sent.Task.ID != draft.Task.ID || sent.Task.Status != domain.StatusPending {
		t.Fatalf("unexpected sent task: %+v", sent.Task)
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/participants", map[string]any{"user_id": carol.ID, "role": "observer"}, aliceH)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("add participant status %d: %s", res.StatusCode, string(data))
	}
	var added ParticipantResponse
	if err := json.Unmarshal(data, &added); err != nil {
		t.Fatalf("decode participant: %v", err)
	}
	if added.Participant.TaskID != draft.Task.ID || added.Participant.UserID != carol.ID {
		t.Fatalf("unexpected participant: %+v", added.Participant)
	}

	res, data = doJSON(t, client, http.MethodGet, taskURL+"/participants", nil, aliceH)
	var participants ListResponse[domain.Participant]
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &participants) != nil || len(participants.Items) != 3 {
		t.Fatalf("participants %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, taskURL+"/participants/"+carol.ID+"?role=observer", nil, aliceH)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("remove participant status %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodPost, taskURL+"/attachments", map[string]any{
		"filename": "plan.pdf",
		"file_url": "https://files.example.com/plan.pdf",
	}, aliceH)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("attachment status %d: %s", res.StatusCode, string(data))
	}
	var att AttachmentResponse
	if err := json.Unmarshal(data, &att); err != nil {
		t.Fatalf("decode attachment: %v", err)
	}
	if att.Attachment.TaskID != draft.Task.ID {
		t.Fatalf("attachment bound to task %d", att.Attachment.TaskID)
	}

	res, data = doJSON(t, client, http.MethodGet, taskURL+"/history?limit=2", nil, aliceH)
	var history ListResponse[domain.ActivityLog]
	if res.StatusCode != http.StatusOK || json.Unmarshal(data, &history) != nil || len(history.Items) != 2 {
		t.Fatalf("history %d: %s", res.StatusCode, string(data))
	}
	if history.Items[0].Action != "attachment_added" {
		t.Fatalf("unexpected latest activity: %+v", history.Items[0])
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v1/pending", nil, aliceH)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"items":[]`) {
		t.Fatalf("pending %d: %s", res.StatusCode, string(data))
	}
}

func TestOpenAPIDocument(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v1/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d: %s", res.StatusCode, string(data))
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	paths, _ := doc["paths"].(map[string]any)
	for _, p := range []string{"/v1/tasks", "/v1/inbox", "/v1/archive/{id}/restore", "/v1/auth/login", "/v1/pending"} {
		if _, ok := paths[p]; !ok {
			t.Fatalf("openapi missing %s", p)
		}
	}
	if !strings.Contains(string(data), "bearerAuth") {
		t.Fatalf("openapi missing bearer scheme")
	}
	status, _ := paths["/v1/tasks/{id}/status"].(map[string]any)
	post, _ := status["post"].(map[string]any)
	params, _ := post["parameters"].([]any)
	if len(params) != 1 || params[0].(map[string]any)["name"] != "id" {
		t.Fatalf("status route parameters = %v", params)
	}
}

func TestOpenAPIDocumentConcurrentFetch(t *testing.T) {
	srv := newTestServer(t, AuthConfig{})
	var wg sync.WaitGroup
	bodies := make([][]byte, 8)
	errs := make([]error, len(bodies))
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v1/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			bodies[i], errs[i] = io.ReadAll(res.Body)
		}(i)
	}
	wg.Wait()
	for i := range bodies {
		if errs[i] != nil {
			t.Fatalf("fetch %d: %v", i, errs[i])
		}
		if len(bodies[i]) == 0 || !bytes.Equal(bodies[i], bodies[0]) {
			t.Fatalf("fetch %d returned a different document", i)
		}
	}
}
