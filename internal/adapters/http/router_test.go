package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/codesync/collab/internal/adapters/exec"
	"github.com/codesync/collab/internal/adapters/signal"
	"github.com/codesync/collab/internal/adapters/store/memory"
	"github.com/codesync/collab/internal/app/orch"
	"github.com/codesync/collab/internal/auth"
	"github.com/codesync/collab/internal/config"
	"github.com/codesync/collab/internal/domain"
	"github.com/codesync/collab/internal/protocol"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.Disabled)
	gin.SetMode(gin.TestMode)
}

type recorderStub struct {
	mu     sync.Mutex
	events []domain.ActivityEvent
}

func (r *recorderStub) Record(ev domain.ActivityEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorderStub) ofAction(a domain.ActionType) []domain.ActivityEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.ActivityEvent
	for _, ev := range r.events {
		if ev.ActionType == a {
			out = append(out, ev)
		}
	}
	return out
}

type testServer struct {
	srv   *httptest.Server
	o     *orch.Orchestrator
	store *memory.Store
	rec   *recorderStub
}

func newTestServer(t *testing.T, jwtSecret string) *testServer {
	t.Helper()
	store := memory.New()
	rec := &recorderStub{}
	opts := orch.DefaultOptions()
	opts.QuietPeriod = 20 * time.Millisecond
	o := orch.New(store, store, rec, opts)

	runner := exec.NewRunner(2*time.Second, t.TempDir())
	runner.Toolchains = map[string]exec.Toolchain{
		"sh": {Source: "main.sh", Run: []string{"sh", "{src}"}},
	}

	cfg := &config.Config{Mode: "test", Secret: "test-secret", CORS: config.CORSConfig{Origins: []string{"*"}}}
	ctx, cancel := context.WithCancel(context.Background())
	verifier := auth.NewVerifier(jwtSecret)
	handler := SetupRouter(ctx, cfg, Deps{
		Orch:     o,
		Signal:   signal.NewSignalWSController(o, nil, signal.Settings{}),
		Verifier: verifier,
		Members:  store,
		Feed:     store,
		Activity: rec,
		Executor: runner,
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = o.Close(context.Background())
	})
	return &testServer{srv: srv, o: o, store: store, rec: rec}
}

func (ts *testServer) request(t *testing.T, method, path, user string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, err := http.NewRequest(method, ts.srv.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(auth.DevUserHeader, user)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (ts *testServer) dial(t *testing.T, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, c *websocket.Conn, v any) {
	t.Helper()
	if err := c.WriteJSON(v); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// expect reads frames until one of type typ arrives.
func expect(t *testing.T, c *websocket.Conn, typ string) map[string]any {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var m map[string]any
		if err := c.ReadJSON(&m); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if m["type"] == typ {
			return m
		}
	}
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, "")
	resp, body := ts.request(t, http.MethodGet, "/health", "", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("health = %d %v", resp.StatusCode, body)
	}
}

func TestCollaborationOverWebSocket(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()
	_ = ts.store.SetRole(ctx, "w1", "alice", domain.RoleEditor)
	_ = ts.store.SetRole(ctx, "w1", "bob", domain.RoleViewer)
	_ = ts.store.SetFileContent(ctx, "f1", "seed", "alice")

	alice := ts.dial(t, nil)
	bob := ts.dial(t, nil)

	send(t, alice, map[string]any{"type": protocol.JoinWorkspace, "workspaceId": "w1", "userId": "alice", "username": "alice"})
	expect(t, alice, protocol.WorkspaceJoined)
	send(t, bob, map[string]any{"type": protocol.JoinWorkspace, "workspaceId": "w1", "userId": "bob", "username": "bob"})
	expect(t, bob, protocol.WorkspaceJoined)
	if joined := expect(t, alice, protocol.UserJoined); joined["profileId"] != "bob" {
		t.Fatalf("user_joined = %v", joined)
	}

	send(t, alice, map[string]any{"type": protocol.JoinFile, "fileId": "f1"})
	if got := expect(t, alice, protocol.FileJoined); got["code"] != "seed" {
		t.Fatalf("file_joined = %v", got)
	}
	send(t, bob, map[string]any{"type": protocol.JoinFile, "fileId": "f1"})
	expect(t, bob, protocol.FileJoined)

	// the viewer's edit is dropped silently, the editor's reaches the room
	send(t, bob, map[string]any{"type": protocol.CodeChange, "fileId": "f1", "code": "nope"})
	send(t, alice, map[string]any{"type": protocol.CodeChange, "fileId": "f1", "code": "print(2)"})
	if got := expect(t, bob, protocol.CodeUpdate); got["code"] != "print(2)" || got["userId"] != "alice" {
		t.Fatalf("code_update = %v", got)
	}

	send(t, bob, map[string]any{"type": protocol.Ping})
	expect(t, bob, protocol.Pong)

	deadline := time.Now().Add(2 * time.Second)
	for {
		c, err := ts.store.GetFileContent(ctx, "f1")
		if err == nil && c == "print(2)" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("content not persisted: %q, %v", c, err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	_ = bob.Close()
	if left := expect(t, alice, protocol.UserLeft); left["profileId"] != "bob" {
		t.Fatalf("user_left = %v", left)
	}
}

func TestMalformedFrameGetsError(t *testing.T) {
	ts := newTestServer(t, "")
	c := ts.dial(t, nil)

	if err := c.WriteMessage(websocket.TextMessage, []byte("{not json")); err != nil {
		t.Fatal(err)
	}
	if got := expect(t, c, protocol.Error); got["error"] != "bad_json" {
		t.Fatalf("error = %v", got)
	}
	send(t, c, map[string]any{"type": protocol.JoinFile})
	if got := expect(t, c, protocol.Error); got["error"] != "bad_payload" {
		t.Fatalf("error = %v", got)
	}
}

func TestSocketRequiresTokenWhenAuthEnabled(t *testing.T) {
	ts := newTestServer(t, "jwt-secret")
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/api/ws"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous dial: err=%v resp=%v", err, resp)
	}

	_ = ts.store.SetRole(context.Background(), "w1", "u-42", domain.RoleEditor)
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, auth.Claims{
		Username:         "ada",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "u-42", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("jwt-secret"))
	if err != nil {
		t.Fatal(err)
	}
	c := ts.dial(t, http.Header{"Authorization": []string{"Bearer " + token}})

	// the frame claims another account; the token subject wins
	send(t, c, map[string]any{"type": protocol.JoinWorkspace, "workspaceId": "w1", "userId": "someone-else", "username": "x"})
	ack := expect(t, c, protocol.WorkspaceJoined)
	members := ack["members"].([]any)
	if len(members) != 1 || members[0].(map[string]any)["profileId"] != "u-42" {
		t.Fatalf("members = %v", members)
	}
}

func TestPresenceEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	_ = ts.store.SetRole(context.Background(), "w1", "alice", domain.RoleEditor)

	resp, _ := ts.request(t, http.MethodGet, "/api/workspaces/w1/presence", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous = %d", resp.StatusCode)
	}
	resp, _ = ts.request(t, http.MethodGet, "/api/workspaces/w1/presence", "mallory", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member = %d", resp.StatusCode)
	}
	resp, body := ts.request(t, http.MethodGet, "/api/workspaces/w1/presence", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("member = %d", resp.StatusCode)
	}
	if members, ok := body["members"].([]any); !ok || len(members) != 0 {
		t.Fatalf("members = %v", body["members"])
	}
}

func TestRoleChangeEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()
	_ = ts.store.SetRole(ctx, "w1", "owner", domain.RoleOwner)
	_ = ts.store.SetRole(ctx, "w1", "bob", domain.RoleEditor)

	bob := ts.dial(t, nil)
	send(t, bob, map[string]any{"type": protocol.JoinWorkspace, "workspaceId": "w1", "userId": "bob", "username": "bob"})
	expect(t, bob, protocol.WorkspaceJoined)

	resp, _ := ts.request(t, http.MethodPatch, "/api/workspaces/w1/role", "bob", map[string]string{"userId": "bob", "role": "viewer"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-owner change = %d", resp.StatusCode)
	}
	resp, _ = ts.request(t, http.MethodPatch, "/api/workspaces/w1/role", "owner", map[string]string{"userId": "owner", "role": "viewer"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("owner demotion = %d", resp.StatusCode)
	}
	resp, _ = ts.request(t, http.MethodPatch, "/api/workspaces/w1/role", "owner", map[string]string{"userId": "bob", "role": "admin"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("invalid role = %d", resp.StatusCode)
	}

	resp, body := ts.request(t, http.MethodPatch, "/api/workspaces/w1/role", "owner", map[string]string{"userId": "bob", "role": "viewer"})
	if resp.StatusCode != http.StatusOK || body["oldRole"] != "editor" || body["connections"] != float64(1) {
		t.Fatalf("change = %d %v", resp.StatusCode, body)
	}
	if got := expect(t, bob, protocol.RoleChanged); got["role"] != "viewer" {
		t.Fatalf("role_changed = %v", got)
	}
	if role, _ := ts.store.GetRole(ctx, "w1", "bob"); role != domain.RoleViewer {
		t.Fatalf("stored role = %s", role)
	}
	if changed := ts.rec.ofAction(domain.ActionRoleChanged); len(changed) != 1 || changed[0].TargetID != "bob" {
		t.Fatalf("activity = %+v", changed)
	}
}

func TestExecuteEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	resp, body := ts.request(t, http.MethodPost, "/api/execute", "alice", map[string]string{"code": "echo hi", "language": "sh"})
	if resp.StatusCode != http.StatusOK || strings.TrimSpace(body["output"].(string)) != "hi" {
		t.Fatalf("execute = %d %v", resp.StatusCode, body)
	}
	resp, body = ts.request(t, http.MethodPost, "/api/execute", "alice", map[string]string{"code": "x", "language": "cobol"})
	if resp.StatusCode != http.StatusBadRequest || body["error"] == "" {
		t.Fatalf("unsupported = %d %v", resp.StatusCode, body)
	}
	resp, _ = ts.request(t, http.MethodPost, "/api/execute", "alice", map[string]string{"code": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing language = %d", resp.StatusCode)
	}
}

func TestActivityEndpoint(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()
	_ = ts.store.SetRole(ctx, "w1", "alice", domain.RoleViewer)
	for i, action := range []domain.ActionType{domain.ActionUserJoined, domain.ActionFileUpdated, domain.ActionUserLeft} {
		_ = ts.store.AppendActivity(ctx, domain.ActivityEvent{
			ID:          string(action),
			WorkspaceID: "w1",
			UserID:      "alice",
			ActionType:  action,
			CreatedAt:   time.Unix(int64(i+1), 0),
		})
	}

	resp, body := ts.request(t, http.MethodGet, "/api/workspaces/w1/activity?limit=2", "alice", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	events, ok := body["activities"].([]any)
	if !ok || len(events) != 2 {
		t.Fatalf("activities = %v", body["activities"])
	}
	if first := events[0].(map[string]any); first["actionType"] != string(domain.ActionUserLeft) {
		t.Fatalf("newest first, got %v", first)
	}

	resp, _ = ts.request(t, http.MethodGet, "/api/workspaces/w1/activity?limit=0", "alice", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("limit=0 = %d", resp.StatusCode)
	}
	resp, _ = ts.request(t, http.MethodGet, "/api/workspaces/w1/activity", "mallory", nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("non-member = %d", resp.StatusCode)
	}
}
