package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/mariozechner/bytebox/pkg/execution"
	"github.com/mariozechner/bytebox/pkg/language"
	"github.com/mariozechner/bytebox/pkg/sandbox"
)

type sandboxCall struct {
	language, code, input string
}

// fakeSandbox answers every run with the same result and records the calls.
type fakeSandbox struct {
	mu     sync.Mutex
	calls  []sandboxCall
	result *sandbox.Result
	err    error
}

func (f *fakeSandbox) Run(ctx context.Context, language, code, input string) (*sandbox.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, sandboxCall{language, code, input})
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if language == "cobol" {
		return sandbox.ErrorResult(sandbox.MsgUnsupportedLanguage), nil
	}
	return f.result, nil
}

func (f *fakeSandbox) Languages() []string { return []string{"cpp", "java", "python"} }
func (f *fakeSandbox) Close() error        { return nil }

func (f *fakeSandbox) recorded() []sandboxCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sandboxCall(nil), f.calls...)
}

func str(s string) *string { return &s }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, sb sandbox.Manager, opts ...Option) *httptest.Server {
	t.Helper()
	opts = append([]Option{WithLogger(quietLogger())}, opts...)
	s := New(sb, language.Default(), opts...)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func postRun(t *testing.T, url, lang, body string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Post(url+"/run/"+lang, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST failed: %v", err)
	}
	defer resp.Body.Close()
	var out map[string]any
	data, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(data, &out)
	return resp, out
}

func TestRunRoute(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.Result{Stdout: str("3\n"), Stderr: str("")}}
	srv := newTestServer(t, sb)

	resp, out := postRun(t, srv.URL, "python", `{"code":"print(1+2)","input":"x"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if out["stdout"] != "3\n" {
		t.Errorf("stdout = %v", out["stdout"])
	}
	if v, ok := out["stderr"]; !ok || v != "" {
		t.Errorf("empty stderr must be present, got %v (present=%v)", v, ok)
	}

	calls := sb.recorded()
	if len(calls) != 1 || calls[0] != (sandboxCall{"python", "print(1+2)", "x"}) {
		t.Errorf("calls = %+v", calls)
	}
}

func TestRunRouteErrors(t *testing.T) {
	t.Run("bad json", func(t *testing.T) {
		srv := newTestServer(t, &fakeSandbox{})
		resp, out := postRun(t, srv.URL, "python", `{"code":`)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if out["error"] == nil {
			t.Error("missing error field")
		}
	})

	t.Run("sandbox failure", func(t *testing.T) {
		srv := newTestServer(t, &fakeSandbox{err: errors.New("docker unavailable")})
		resp, out := postRun(t, srv.URL, "python", `{"code":"1"}`)
		if resp.StatusCode != http.StatusInternalServerError {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if out["error"] != "docker unavailable" {
			t.Errorf("error = %v", out["error"])
		}
	})

	t.Run("unsupported language", func(t *testing.T) {
		srv := newTestServer(t, &fakeSandbox{})
		resp, out := postRun(t, srv.URL, "cobol", `{"code":"1"}`)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("status = %d", resp.StatusCode)
		}
		if out["error"] != sandbox.MsgUnsupportedLanguage {
			t.Errorf("error = %v", out["error"])
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		srv := newTestServer(t, &fakeSandbox{})
		resp, err := http.Get(srv.URL + "/run/python")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusMethodNotAllowed {
			t.Errorf("status = %d", resp.StatusCode)
		}
	})
}

func TestRunRateLimit(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.Result{Stdout: str("")}}
	srv := newTestServer(t, sb, WithRateLimit(rate.Every(time.Hour), 2))

	for i := 0; i < 2; i++ {
		if resp, _ := postRun(t, srv.URL, "python", `{}`); resp.StatusCode != http.StatusOK {
			t.Fatalf("request %d status = %d", i, resp.StatusCode)
		}
	}
	resp, _ := postRun(t, srv.URL, "python", `{}`)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", resp.StatusCode)
	}
	if got := len(sb.recorded()); got != 2 {
		t.Errorf("sandbox ran %d times, want 2", got)
	}

	// The forwarded header is ignored unless the proxy is trusted.
	if resp := postForwarded(t, srv.URL, "203.0.113.9, 10.0.0.1"); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("spoofed forwarded client status = %d, want 429", resp.StatusCode)
	}
}

func TestRunRateLimitBehindProxy(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.Result{Stdout: str("")}}
	srv := newTestServer(t, sb, WithRateLimit(rate.Every(time.Hour), 1), WithTrustProxy(true))

	if resp := postForwarded(t, srv.URL, "203.0.113.9, 10.0.0.1"); resp.StatusCode != http.StatusOK {
		t.Fatalf("first forwarded client status = %d", resp.StatusCode)
	}
	if resp := postForwarded(t, srv.URL, "203.0.113.9"); resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("same forwarded client status = %d, want 429", resp.StatusCode)
	}
	if resp := postForwarded(t, srv.URL, "198.51.100.7"); resp.StatusCode != http.StatusOK {
		t.Errorf("other forwarded client status = %d", resp.StatusCode)
	}
}

func postForwarded(t *testing.T, url, forwarded string) *http.Response {
	t.Helper()
	req, _ := http.NewRequest(http.MethodPost, url+"/run/python", strings.NewReader(`{}`))
	req.Header.Set("X-Forwarded-For", forwarded)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	return resp
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, &fakeSandbox{})
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/run/python", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}
}

func TestListLanguages(t *testing.T) {
	srv := newTestServer(t, &fakeSandbox{})
	resp, err := http.Get(srv.URL + "/api/languages")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var langs []language.Language
	if err := json.NewDecoder(resp.Body).Decode(&langs); err != nil {
		t.Fatal(err)
	}
	if len(langs) != 3 || langs[0].ID != "python" || langs[0].DefaultSource == "" {
		t.Errorf("languages = %+v", langs)
	}
}

func TestPingAndMetrics(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.Result{Stdout: str("")}}
	srv := newTestServer(t, sb)

	resp, err := http.Get(srv.URL + "/ping")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("ping status = %d", resp.StatusCode)
	}

	postRun(t, srv.URL, "python", `{}`)
	postRun(t, srv.URL, "cobol", `{}`)

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var m MetricsSnapshot
	if err := json.NewDecoder(resp.Body).Decode(&m); err != nil {
		t.Fatal(err)
	}
	if m.TotalRequests != 2 || m.TotalErrors != 1 {
		t.Errorf("metrics = %+v", m)
	}
}

// The HTTP client and the backend route agree on the wire format.
func TestExecutionClientAgainstServer(t *testing.T) {
	tests := []struct {
		name   string
		lang   string
		result *sandbox.Result
		want   execution.Kind
	}{
		{name: "stdout", lang: "python", result: &sandbox.Result{Stdout: str("hi\n"), Stderr: str(""), ReturnCode: new(int)}, want: execution.KindSuccess},
		{name: "stderr", lang: "python", result: &sandbox.Result{Stdout: str(""), Stderr: str("SyntaxError")}, want: execution.KindRuntimeError},
		{name: "runner timeout", lang: "java", result: sandbox.ErrorResult("Execution timer out"), want: execution.KindServiceError},
		{name: "unsupported", lang: "cobol", want: execution.KindServiceError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeSandbox{result: tt.result})
			c := execution.NewClient(srv.URL, execution.WithLogger(quietLogger()))
			got := c.Run(context.Background(), execution.NewRequest(tt.lang, "code", ""))
			if got.Kind != tt.want {
				t.Errorf("Kind = %v, want %v (%+v)", got.Kind, tt.want, got)
			}
		})
	}
}

func TestSandboxExecutor(t *testing.T) {
	sb := &fakeSandbox{result: &sandbox.Result{Stdout: str("ok")}}
	got := NewSandboxExecutor(sb).Run(context.Background(), execution.NewRequest("python", "print('ok')", ""))
	if got.Kind != execution.KindSuccess || got.Stdout != "ok" {
		t.Errorf("result = %+v", got)
	}

	failing := &fakeSandbox{err: errors.New("no daemon")}
	got = NewSandboxExecutor(failing).Run(context.Background(), execution.NewRequest("python", "", ""))
	if got.Kind != execution.KindServiceError || got.Message != "no daemon" {
		t.Errorf("result = %+v", got)
	}

	slow := &fakeSandbox{err: context.DeadlineExceeded}
	got = NewSandboxExecutor(slow).WithTimeout(time.Second).Run(context.Background(), execution.NewRequest("python", "", ""))
	if got.Kind != execution.KindTimeout {
		t.Errorf("result = %+v", got)
	}
}
