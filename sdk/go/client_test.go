package taskroutesdk

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestClientSendsBearerAndDecodes(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"task":{"id":7,"task_number":"TASK-2024-0001","title":"Budget","status":"pending"},"audit":{"status":"ok_with_audit_failure","failures":[{"op":"task_created","reason":"archive down"}]}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	c.Token = "trs_abc"
	res, err := c.CreateTask(context.Background(), CreateTaskInput{Title: "Budget", AssigneeIDs: []string{"bob"}})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if gotAuth != "Bearer trs_abc" || gotPath != "/v1/tasks" {
		t.Fatalf("unexpected request auth=%q path=%q", gotAuth, gotPath)
	}
	if gotBody["title"] != "Budget" {
		t.Fatalf("unexpected body %+v", gotBody)
	}
	if res.Task.ID != 7 || !res.Audit.Degraded() || res.Audit.Failures[0].Op != "task_created" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":{"code":"cannot_restore","message":"task was permanently deleted and cannot be restored"}}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL).Restore(context.Background(), 3)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Code != "cannot_restore" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestLoginStoresToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/auth/login":
			w.Write([]byte(`{"token":"trs_new","expires_at":"2024-01-31T00:00:00.000000Z","user":{"id":"u1","username":"alice"}}`))
		case "/v1/auth/logout":
			if r.Header.Get("Authorization") != "Bearer trs_new" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	sess, err := c.Login(context.Background(), "alice", "password1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if c.Token != "trs_new" || sess.User.Username != "alice" {
		t.Fatalf("unexpected session %+v token=%q", sess, c.Token)
	}
	if err := c.Logout(context.Background()); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if c.Token != "" {
		t.Fatalf("token should be cleared")
	}
}
