package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/mariozechner/bytebox/pkg/runner"
	"github.com/mariozechner/bytebox/pkg/sandbox"
	"github.com/mariozechner/bytebox/pkg/session"
	"github.com/mariozechner/bytebox/pkg/workspace"
)

func dialWorkspace(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(url, "http") + "/api/workspace"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) workspaceMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg workspaceMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read failed: %v", err)
	}
	return msg
}

// readUntil skips messages until match accepts one.
func readUntil(t *testing.T, conn *websocket.Conn, match func(workspaceMessage) bool) workspaceMessage {
	t.Helper()
	for i := 0; i < 20; i++ {
		if msg := readMessage(t, conn); match(msg) {
			return msg
		}
	}
	t.Fatal("expected message never arrived")
	return workspaceMessage{}
}

func TestWorkspaceSocket(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.Result{Stdout: str("hello\n"), Stderr: str("")}}
	srv := newTestServer(t, sb)
	conn := dialWorkspace(t, srv.URL)

	initial := readMessage(t, conn)
	if initial.View == nil || initial.View.ActiveFile != workspace.MainFile || initial.View.Language != "python" {
		t.Fatalf("initial message = %+v", initial)
	}

	if err := conn.WriteJSON(runner.Event{Type: runner.EventCreateFile, Name: "util"}); err != nil {
		t.Fatal(err)
	}
	msg := readMessage(t, conn)
	if msg.Error != "" || msg.View.ActiveFile != "util" || len(msg.View.Files) != 2 {
		t.Errorf("after create = %+v", msg)
	}

	if err := conn.WriteJSON(runner.Event{Type: runner.EventDeleteFile, Name: workspace.MainFile}); err != nil {
		t.Fatal(err)
	}
	msg = readMessage(t, conn)
	if !strings.Contains(msg.Error, "protected") || msg.View == nil || len(msg.View.Files) != 2 {
		t.Errorf("after delete main = %+v", msg)
	}

	conn.WriteJSON(runner.Event{Type: runner.EventEdit, Content: "print(input())"})
	conn.WriteJSON(runner.Event{Type: runner.EventSetInput, Content: "hello"})
	conn.WriteJSON(runner.Event{Type: runner.EventRun})

	resolved := readUntil(t, conn, func(m workspaceMessage) bool {
		return m.View != nil && m.View.Run.State == session.Resolved
	})
	if resolved.View.Run.Label != "Success" || !strings.HasSuffix(resolved.View.Run.Output, "hello\n") {
		t.Errorf("resolved run = %+v", resolved.View.Run)
	}

	calls := sb.recorded()
	if len(calls) != 1 || calls[0] != (sandboxCall{"python", "print(input())", "hello"}) {
		t.Errorf("sandbox calls = %+v", calls)
	}
}

func TestWorkspaceSocketRunsShareRateLimit(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.Result{Stdout: str("ok\n")}}
	srv := newTestServer(t, sb, WithRateLimit(rate.Every(time.Hour), 1))
	conn := dialWorkspace(t, srv.URL)
	readMessage(t, conn)

	conn.WriteJSON(runner.Event{Type: runner.EventRun})
	first := readUntil(t, conn, func(m workspaceMessage) bool {
		return m.View != nil && m.View.Run.State == session.Resolved
	})
	if first.View.Run.Label != "Success" {
		t.Fatalf("first run = %+v", first.View.Run)
	}

	conn.WriteJSON(runner.Event{Type: runner.EventDismiss})
	readUntil(t, conn, func(m workspaceMessage) bool {
		return m.View != nil && m.View.Run.State == session.Idle
	})
	conn.WriteJSON(runner.Event{Type: runner.EventRun})
	second := readUntil(t, conn, func(m workspaceMessage) bool {
		return m.View != nil && m.View.Run.State == session.Resolved
	})
	if second.View.Run.Label != "Service error" || second.View.Run.Output != msgTooManyRequests {
		t.Errorf("second run = %+v", second.View.Run)
	}
	if got := len(sb.recorded()); got != 1 {
		t.Errorf("sandbox ran %d times, want 1", got)
	}

	// The socket and the HTTP route draw from the same bucket.
	if resp, _ := postRun(t, srv.URL, "python", `{}`); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("POST /run status = %d, want 429", resp.StatusCode)
	}

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var m MetricsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.TotalRequests != 1 || m.RateLimited != 2 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestWorkspaceSocketCountsFailedRuns(t *testing.T) {
	srv := newTestServer(t, &fakeSandbox{})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/workspace"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	readMessage(t, conn)

	// A nil sandbox result is not a recognisable response.
	conn.WriteJSON(runner.Event{Type: runner.EventRun})
	readUntil(t, conn, func(m workspaceMessage) bool {
		return m.View != nil && m.View.Run.State == session.Resolved
	})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var m MetricsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.TotalRequests != 1 || m.TotalErrors != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

func TestWorkspaceSocketUnknownLanguage(t *testing.T) {
	srv := newTestServer(t, &fakeSandbox{})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/workspace?language=cobol"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("dial succeeded for an unknown language")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Errorf("response = %+v", resp)
	}
}

func TestWorkspaceSocketLanguageQuery(t *testing.T) {
	srv := newTestServer(t, &fakeSandbox{})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/workspace?language=java"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if msg := readMessage(t, conn); msg.View.Language != "java" {
		t.Errorf("language = %q", msg.View.Language)
	}
}
