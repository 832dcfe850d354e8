package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"taskdeck/internal/db"
	"taskdeck/internal/domain"
	"taskdeck/internal/migrate"
	"taskdeck/internal/remote"
	"taskdeck/internal/repo"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

// newTestServer serves a fresh store migrated up to version (0 for all).
func newTestServer(t *testing.T, version int) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.MigrateTo(context.Background(), conn, version); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.New(conn)
	r.Tasks.PollInterval = 10 * time.Millisecond
	handler, err := New(Config{Repo: r, BasePath: "/v0", Auth: AuthConfig{JWTSecret: testSecret, AllowOwnerHeader: true}})
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
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func authHeaders(t *testing.T, owner string) map[string]string {
	t.Helper()
	token, err := IssueToken(testSecret, owner, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return map[string]string{"Authorization": "Bearer " + token}
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

func errorCode(t *testing.T, data []byte) string {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code
}

func TestHealthIsPublic(t *testing.T) {
	srv, cleanup := newTestServer(t, 0)
	defer cleanup()
	res, body := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health status %d: %s", res.StatusCode, string(body))
	}
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t, 0)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, nil)
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, body) != "unauthorized" {
		t.Fatalf("expected 401 unauthorized, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized || errorCode(t, body) != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks", nil, map[string]string{ownerHeader: "dev"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("owner header: %d %s", res.StatusCode, string(body))
	}
}

func TestTaskCRUDScopedByOwner(t *testing.T) {
	srv, cleanup := newTestServer(t, 0)
	defer cleanup()
	client := srv.Client()
	alice := authHeaders(t, "alice")

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/tasks", map[string]any{
		"title":      "Ship it",
		"start_date": "2024-07-01",
		"end_date":   "2024-07-03",
		"assignees":  []string{"kim", "lee"},
		"owner_id":   "mallory",
	}, alice)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create task status %d: %s", res.StatusCode, string(data))
	}
	var created domain.Task
	if err := json.Unmarshal(data, &created); err != nil {
		t.Fatalf("unmarshal task: %v", err)
	}
	if created.ID == "" || created.OwnerID != "alice" || created.Status != domain.StatusPending {
		t.Fatalf("unexpected task %+v", created)
	}
	if len(created.Assignees) != 2 {
		t.Fatalf("assignees not stored: %+v", created.Assignees)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks/"+created.ID, nil, authHeaders(t, "bob"))
	if res.StatusCode != http.StatusNotFound || errorCode(t, data) != "not_found" {
		t.Fatalf("expected other owner 404, got %d %s", res.StatusCode, string(data))
	}

	created.Status = domain.StatusCompleted
	done := domain.FormatTime(time.Now())
	created.CompletedAt = &done
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/tasks/"+created.ID, created, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update status %d: %s", res.StatusCode, string(data))
	}
	var updated domain.Task
	_ = json.Unmarshal(data, &updated)
	if updated.Status != domain.StatusCompleted || updated.CompletedAt == nil || updated.CreatedAt != created.CreatedAt {
		t.Fatalf("unexpected update %+v", updated)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tasks?filter=status:completed", nil, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status %d: %s", res.StatusCode, string(data))
	}
	var list struct {
		Items []domain.Task `json:"items"`
	}
	_ = json.Unmarshal(data, &list)
	if len(list.Items) != 1 || list.Items[0].ID != created.ID {
		t.Fatalf("unexpected list %s", string(data))
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/stats", nil, alice)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(data), `"completed":1`) {
		t.Fatalf("stats %d: %s", res.StatusCode, string(data))
	}

	res, data = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/"+created.ID, nil, alice)
	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("delete status %d: %s", res.StatusCode, string(data))
	}
	res, _ = doJSON(t, client, http.MethodDelete, srv.URL+"/v0/tasks/"+created.ID, nil, alice)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("second delete should 404, got %d", res.StatusCode)
	}
}

func TestBadRequests(t *testing.T) {
	srv, cleanup := newTestServer(t, 0)
	defer cleanup()
	client := srv.Client()
	alice := authHeaders(t, "alice")

	cases := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"bad status", http.MethodPost, "/v0/tasks", map[string]any{"title": "x", "status": "done"}},
		{"dates reversed", http.MethodPost, "/v0/tasks", map[string]any{"title": "x", "start_date": "2024-07-05", "end_date": "2024-07-01"}},
		{"unknown filter column", http.MethodGet, "/v0/tasks?filter=nope:1", nil},
		{"malformed filter", http.MethodGet, "/v0/tasks?filter=status", nil},
		{"bad period", http.MethodPost, "/v0/sales_targets", map[string]any{"period": "July", "target_amount": 10, "actual_amount": 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, data := doJSON(t, client, tc.method, srv.URL+tc.path, tc.body, alice)
			if res.StatusCode != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d %s", res.StatusCode, string(data))
			}
		})
	}
}

func TestTabOrders(t *testing.T) {
	srv, cleanup := newTestServer(t, 0)
	defer cleanup()
	client := srv.Client()
	alice := authHeaders(t, "alice")

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/tab_orders", nil, alice)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 before save, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/tab_orders", map[string]any{"ids": []string{"a"}}, alice)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 updating missing order, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tab_orders", map[string]any{"ids": []string{"a", "b"}}, alice)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create order %d: %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/tab_orders", map[string]any{"ids": []string{"a"}}, alice)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected conflict on duplicate insert, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPut, srv.URL+"/v0/tab_orders", map[string]any{"ids": []string{"b", "a"}}, alice)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("update order %d: %s", res.StatusCode, string(data))
	}
	var o domain.TabOrder
	_ = json.Unmarshal(data, &o)
	if strings.Join(o.IDs, ",") != "b,a" {
		t.Fatalf("unexpected order %+v", o)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/tab_orders?scope=p1", nil, alice)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("scoped order should be separate, got %d %s", res.StatusCode, string(data))
	}
}

func TestTabOrdersSchemaUnavailable(t *testing.T) {
	srv, cleanup := newTestServer(t, 2)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/tab_orders", nil, authHeaders(t, "alice"))
	if res.StatusCode != http.StatusServiceUnavailable || errorCode(t, data) != "schema_unavailable" {
		t.Fatalf("expected 503 schema_unavailable, got %d %s", res.StatusCode, string(data))
	}
}

func TestChangeFeed(t *testing.T) {
	srv, cleanup := newTestServer(t, 0)
	defer cleanup()
	alice := authHeaders(t, "alice")

	header := http.Header{}
	header.Set("Authorization", alice["Authorization"])
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v0/tasks/changes"
	conn, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial feed: %v (%v)", err, res)
	}
	defer conn.Close()

	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "other"}, authHeaders(t, "bob"))
	createRes, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/tasks", map[string]any{"title": "watched"}, alice)
	if createRes.StatusCode != http.StatusCreated {
		t.Fatalf("create: %d %s", createRes.StatusCode, string(data))
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ch remote.Change[domain.Task]
	if err := conn.ReadJSON(&ch); err != nil {
		t.Fatalf("read change: %v", err)
	}
	if ch.Type != remote.ChangeInsert || ch.OwnerID != "alice" || ch.Row.Title != "watched" {
		t.Fatalf("unexpected change %+v", ch)
	}
}

func TestOpenAPIIsPublicAndDocumentsBearer(t *testing.T) {
	srv, cleanup := newTestServer(t, 0)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/openapi.json", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("openapi status %d", res.StatusCode)
	}
	for _, want := range []string{"bearerAuth", "/v0/tasks/{id}", "/v0/tab_orders"} {
		if !strings.Contains(string(data), want) {
			t.Fatalf("openapi missing %q", want)
		}
	}
	var doc struct {
		Paths map[string]map[string]struct {
			Responses map[string]struct {
				Content map[string]struct {
					Schema struct {
						Ref string `json:"$ref"`
					} `json:"schema"`
				} `json:"content"`
			} `json:"responses"`
		} `json:"paths"`
		Components struct {
			Schemas map[string]struct {
				Properties map[string]any `json:"properties"`
			} `json:"schemas"`
		} `json:"components"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode openapi: %v", err)
	}
	ref := doc.Paths["/v0/tasks"]["get"].Responses["default"].Content["application/json"].Schema.Ref
	name, ok := strings.CutPrefix(ref, "#/components/schemas/")
	if !ok {
		t.Fatalf("default error response ref %q", ref)
	}
	schema, ok := doc.Components.Schemas[name]
	if !ok {
		t.Fatalf("error schema %q not registered", name)
	}
	if _, ok := schema.Properties["error"]; !ok {
		t.Fatalf("error schema %q lacks error property: %v", name, schema.Properties)
	}
}
