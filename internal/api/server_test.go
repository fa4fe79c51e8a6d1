package api

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/randomizedcoder/strands-bridge/internal/bridge"
	"github.com/randomizedcoder/strands-bridge/internal/event"
	"github.com/randomizedcoder/strands-bridge/internal/logging"
	"github.com/randomizedcoder/strands-bridge/internal/metrics"
	"github.com/randomizedcoder/strands-bridge/internal/process"
	"github.com/randomizedcoder/strands-bridge/internal/supervisor"
	"github.com/randomizedcoder/strands-bridge/internal/watcher"
)

// =============================================================================
// Test Helpers
// =============================================================================

type testEnv struct {
	hub    *event.Hub
	server *Server
	http   *httptest.Server
}

// newTestEnv wires a real bridge around a fake CLI. The script sees the
// launch args as "$@".
func newTestEnv(t *testing.T, script string) *testEnv {
	t.Helper()

	cli := filepath.Join(t.TempDir(), "strands")
	if err := os.WriteFile(cli, []byte("#!/bin/bash\n"+script+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	hub := event.NewHub(16)
	sup := supervisor.New(supervisor.Config{
		Runner:     process.NewCLIRunner(&process.CLIConfig{BinaryPath: cli}),
		Emitter:    hub,
		JoinOutput: true,
	})
	w := watcher.NewWatcher(context.Background(), watcher.Options{
		Interval: 20 * time.Millisecond,
		Emitter:  hub,
	})
	b := bridge.New(bridge.Config{Supervisor: sup, Watcher: w})

	reg := prometheus.NewRegistry()
	metrics.NewCollectorWithRegistry(metrics.CollectorConfig{Version: "test", Hub: hub}, reg)

	srv := New(Config{Gatherer: reg, KeepAlive: 50 * time.Millisecond}, b, hub, logging.Discard())
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		hub.Close()
		ts.Close()
		w.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sup.Shutdown(ctx)
	})
	return &testEnv{hub: hub, server: srv, http: ts}
}

func (e *testEnv) do(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, e.http.URL+path, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp.StatusCode, string(data)
}

func decodeJSON(t *testing.T, body string, v any) {
	t.Helper()
	if err := json.Unmarshal([]byte(body), v); err != nil {
		t.Fatalf("decode %q: %v", body, err)
	}
}

// =============================================================================
// Tests: Launch
// =============================================================================

func TestLaunch(t *testing.T) {
	tests := []struct {
		name       string
		script     string
		wantStatus int
		wantKey    string
		wantValue  string
	}{
		{
			name:       "success",
			script:     `echo ok`,
			wantStatus: http.StatusOK,
			wantKey:    "message",
			wantValue:  "Command executed successfully",
		},
		{
			name:       "non-zero exit",
			script:     `exit 3`,
			wantStatus: http.StatusInternalServerError,
			wantKey:    "error",
			wantValue:  "command failed with status: 3",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, tt.script)
			status, body := env.do(t, http.MethodPost, "/api/launch", `{"command":"strands","args":["list"]}`)
			if status != tt.wantStatus {
				t.Fatalf("status = %d, body %s", status, body)
			}
			var resp map[string]string
			decodeJSON(t, body, &resp)
			if resp[tt.wantKey] != tt.wantValue {
				t.Errorf("%s = %q, want %q", tt.wantKey, resp[tt.wantKey], tt.wantValue)
			}
		})
	}
}

func TestLaunch_BadBody(t *testing.T) {
	env := newTestEnv(t, `true`)
	status, body := env.do(t, http.MethodPost, "/api/launch", `{not json`)
	if status != http.StatusBadRequest || !strings.Contains(body, "invalid request body") {
		t.Errorf("status = %d, body %s", status, body)
	}
}

func TestAPI_RejectsCrossSiteRequests(t *testing.T) {
	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		origin      string
		wantStatus  int
	}{
		{"text/plain launch", http.MethodPost, "/api/launch", "text/plain", "", http.StatusUnsupportedMediaType},
		{"form launch", http.MethodPost, "/api/launches", "application/x-www-form-urlencoded", "", http.StatusUnsupportedMediaType},
		{"missing content type", http.MethodPost, "/api/launch", "", "", http.StatusUnsupportedMediaType},
		{"foreign origin launch", http.MethodPost, "/api/launch", "application/json", "http://evil.example", http.StatusForbidden},
		{"foreign origin config read", http.MethodGet, "/api/config?path=/etc/hostname", "", "http://evil.example", http.StatusForbidden},
		{"same host json", http.MethodPost, "/api/launch", "application/json; charset=utf-8", "http://127.0.0.1:3000", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			marker := filepath.Join(t.TempDir(), "ran")
			env := newTestEnv(t, "touch "+marker)

			var body io.Reader
			if tt.method == http.MethodPost {
				body = strings.NewReader(`{"command":"strands","args":["destroy"]}`)
			}
			req, err := http.NewRequest(tt.method, env.http.URL+tt.path, body)
			if err != nil {
				t.Fatal(err)
			}
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			_, statErr := os.Stat(marker)
			if ran := statErr == nil; ran != (tt.wantStatus == http.StatusOK && tt.method == http.MethodPost) {
				t.Errorf("CLI ran = %v for status %d", ran, resp.StatusCode)
			}
		})
	}
}

func TestStartListCancel(t *testing.T) {
	env := newTestEnv(t, `sleep 30`)

	status, body := env.do(t, http.MethodPost, "/api/launches", `{"args":["deploy"]}`)
	if status != http.StatusAccepted {
		t.Fatalf("start status = %d, body %s", status, body)
	}
	var started struct{ ID string }
	decodeJSON(t, body, &started)

	_, body = env.do(t, http.MethodGet, "/api/launches", "")
	var infos []supervisor.Info
	decodeJSON(t, body, &infos)
	if len(infos) != 1 || infos[0].ID != started.ID || infos[0].State != "running" {
		t.Fatalf("launches = %+v", infos)
	}

	if status, _ := env.do(t, http.MethodDelete, "/api/launches/"+started.ID, ""); status != http.StatusNoContent {
		t.Errorf("cancel status = %d", status)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_, body = env.do(t, http.MethodGet, "/api/launches", "")
		if strings.TrimSpace(body) == "[]" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if strings.TrimSpace(body) != "[]" {
		t.Errorf("launch still listed: %s", body)
	}

	if status, _ := env.do(t, http.MethodDelete, "/api/launches/"+started.ID, ""); status != http.StatusNotFound {
		t.Errorf("second cancel status = %d, want 404", status)
	}
}

// =============================================================================
// Tests: Config
// =============================================================================

func TestConfigRoundTrip(t *testing.T) {
	env := newTestEnv(t, `true`)
	path := filepath.Join(t.TempDir(), "agent.yaml")
	content := "agent:\n  name: \"quoted\"\n"

	reqBody, _ := json.Marshal(map[string]string{"path": path, "content": content})
	if status, body := env.do(t, http.MethodPut, "/api/config", string(reqBody)); status != http.StatusNoContent {
		t.Fatalf("write status = %d, body %s", status, body)
	}

	status, body := env.do(t, http.MethodGet, "/api/config?path="+path, "")
	if status != http.StatusOK {
		t.Fatalf("read status = %d, body %s", status, body)
	}
	var resp configResponse
	decodeJSON(t, body, &resp)
	if resp.Content != content {
		t.Errorf("content = %q, want %q", resp.Content, content)
	}
}

func TestConfigErrors(t *testing.T) {
	env := newTestEnv(t, `true`)
	missing := filepath.Join(t.TempDir(), "missing.yaml")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		want   int
	}{
		{"read without path", http.MethodGet, "/api/config", "", http.StatusBadRequest},
		{"read missing file", http.MethodGet, "/api/config?path=" + missing, "", http.StatusInternalServerError},
		{"write without path", http.MethodPut, "/api/config", `{"content":"x"}`, http.StatusBadRequest},
		{"write into missing dir", http.MethodPut, "/api/config", `{"path":"/nonexistent/dir/a.yaml","content":"x"}`, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := env.do(t, tt.method, tt.path, tt.body)
			if status != tt.want {
				t.Errorf("status = %d, want %d (body %s)", status, tt.want, body)
			}
			var resp ErrorResponse
			decodeJSON(t, body, &resp)
			if resp.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

// =============================================================================
// Tests: Watches
// =============================================================================

func TestWatchLifecycle(t *testing.T) {
	env := newTestEnv(t, `true`)
	path := filepath.Join(t.TempDir(), "agent.yaml")
	if err := os.WriteFile(path, []byte("a: 1\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	status, body := env.do(t, http.MethodPost, "/api/watch", `{"path":"`+path+`"}`)
	if status != http.StatusOK {
		t.Fatalf("watch status = %d, body %s", status, body)
	}
	var resp idResponse
	decodeJSON(t, body, &resp)
	if resp.ID == "" {
		t.Fatal("empty watch id")
	}

	_, body = env.do(t, http.MethodGet, "/api/watches", "")
	var watches []watcher.WatchInfo
	decodeJSON(t, body, &watches)
	if len(watches) != 1 || watches[0].Path != path {
		t.Errorf("watches = %+v", watches)
	}

	if status, _ := env.do(t, http.MethodDelete, "/api/watches/"+resp.ID, ""); status != http.StatusNoContent {
		t.Errorf("unwatch status = %d", status)
	}
	if status, _ := env.do(t, http.MethodDelete, "/api/watches/"+resp.ID, ""); status != http.StatusNotFound {
		t.Errorf("second unwatch status = %d, want 404", status)
	}
}

func TestWatch_EmptyPath(t *testing.T) {
	env := newTestEnv(t, `true`)
	if status, _ := env.do(t, http.MethodPost, "/api/watch", `{}`); status != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

// =============================================================================
// Tests: Status and ops endpoints
// =============================================================================

func TestDeploymentStatus(t *testing.T) {
	env := newTestEnv(t, `true`)
	status, body := env.do(t, http.MethodGet, "/api/deployments/status", "")
	if status != http.StatusOK || strings.TrimSpace(body) != "[]" {
		t.Errorf("status = %d, body %q", status, body)
	}
}

func TestOpsEndpoints(t *testing.T) {
	env := newTestEnv(t, `true`)

	for _, path := range []string{"/health", "/healthz", "/ready", "/readyz"} {
		if status, body := env.do(t, http.MethodGet, path, ""); status != http.StatusOK || strings.TrimSpace(body) != "ok" {
			t.Errorf("%s = %d %q", path, status, body)
		}
	}

	env.hub.Emit(event.CLIOutput, "line")
	status, body := env.do(t, http.MethodGet, "/metrics", "")
	if status != http.StatusOK {
		t.Fatalf("metrics status = %d", status)
	}
	if !strings.Contains(body, "strands_bridge_events_published_total 1") {
		t.Errorf("metrics missing hub counter:\n%s", body)
	}
}

// =============================================================================
// Tests: Event streams
// =============================================================================

func TestEvents_SSEReplayThenLive(t *testing.T) {
	env := newTestEnv(t, `true`)
	env.hub.Emit(event.CLIOutput, "first")
	env.hub.Emit(event.CLIOutput, "second")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, env.http.URL+"/events", nil)
	req.Header.Set("Last-Event-ID", "1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	next := func() (id, typ, data string) {
		t.Helper()
		for {
			line, err := reader.ReadString('\n')
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			line = strings.TrimRight(line, "\n")
			switch {
			case strings.HasPrefix(line, "id: "):
				id = strings.TrimPrefix(line, "id: ")
			case strings.HasPrefix(line, "event: "):
				typ = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data = strings.TrimPrefix(line, "data: ")
			case line == "" && id != "":
				return id, typ, data
			}
		}
	}

	id, typ, data := next()
	if id != "2" || typ != event.CLIOutput || data != `"second"` {
		t.Errorf("replayed = %s %s %s, want 2 cli-output \"second\"", id, typ, data)
	}

	env.hub.Emit(event.ConfigFileChanged, "/tmp/agent.yaml")
	id, typ, data = next()
	if id != "3" || typ != event.ConfigFileChanged || data != `"/tmp/agent.yaml"` {
		t.Errorf("live = %s %s %s", id, typ, data)
	}
}

func TestParseLastEventID(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"", 0},
		{"42", 42},
		{"-1", 0},
		{"abc", 0},
	}
	for _, tt := range tests {
		if got := parseLastEventID(tt.in); got != tt.want {
			t.Errorf("parseLastEventID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http") + "/ws"
}

func TestWebSocket_StreamsEvents(t *testing.T) {
	env := newTestEnv(t, `echo hello; echo oops >&2`)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.http.URL), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to subscribe before launching.
	time.Sleep(50 * time.Millisecond)
	if status, body := env.do(t, http.MethodPost, "/api/launch", `{"command":"strands","args":[]}`); status != http.StatusOK {
		t.Fatalf("launch = %d %s", status, body)
	}

	got := map[string][]string{}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for len(got[event.CLIExit]) == 0 {
		var ev event.Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v (got %v)", err, got)
		}
		got[ev.Type] = append(got[ev.Type], string(ev.Data))
	}

	if len(got[event.CLIOutput]) != 1 || got[event.CLIOutput][0] != `"hello"` {
		t.Errorf("cli-output = %v", got[event.CLIOutput])
	}
	if len(got[event.CLIError]) != 1 || got[event.CLIError][0] != `"oops"` {
		t.Errorf("cli-error = %v", got[event.CLIError])
	}
}

func TestWebSocket_Since(t *testing.T) {
	env := newTestEnv(t, `true`)
	env.hub.Emit(event.CLIOutput, "old")
	env.hub.Emit(event.CLIOutput, "new")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.http.URL)+"?since=1", nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var ev event.Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatal(err)
	}
	if ev.ID != 2 || string(ev.Data) != `"new"` {
		t.Errorf("first event = %+v", ev)
	}
}

func TestWebSocket_RejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, `true`)

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL(env.http.URL), header)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusForbidden {
		t.Errorf("response = %v, want 403", resp)
	}
}

func TestIsOriginAllowed(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		host    string
		allowed []string
		want    bool
	}{
		{"no origin", "", "localhost:8080", nil, true},
		{"same host", "http://localhost:3000", "localhost:8080", nil, true},
		{"other host", "http://evil.example", "localhost:8080", nil, false},
		{"allow-list full origin", "http://app.local:5173", "localhost:8080", []string{"http://app.local:5173"}, true},
		{"allow-list host", "http://app.local:5173", "localhost:8080", []string{"app.local"}, true},
		{"allow-list miss", "http://other.local", "localhost:8080", []string{"app.local"}, false},
		{"wildcard", "tauri://localhost", "127.0.0.1:8080", []string{"*"}, true},
		{"ipv6 same host", "http://[::1]:3000", "[::1]:8080", nil, true},
		{"garbage", "::::", "localhost", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws", nil)
			r.Host = tt.host
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := isOriginAllowed(r, tt.allowed); got != tt.want {
				t.Errorf("isOriginAllowed = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServer_StartShutdown(t *testing.T) {
	hub := event.NewHub(4)
	defer hub.Close()
	srv := New(Config{Listen: "127.0.0.1:0"}, nil, hub, logging.Discard())

	if err := srv.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestServer_StartBindError(t *testing.T) {
	srv := New(Config{Listen: "256.0.0.1:99999"}, nil, event.NewHub(1), logging.Discard())
	if err := srv.Start(); err == nil {
		t.Error("expected bind error")
	}
}
