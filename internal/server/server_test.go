package server_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/throw-if-null/rexec/internal/api"
	"github.com/throw-if-null/rexec/internal/gen"
	"github.com/throw-if-null/rexec/internal/loop"
	"github.com/throw-if-null/rexec/internal/sandbox"
	"github.com/throw-if-null/rexec/internal/server"
	"github.com/throw-if-null/rexec/internal/store"
	_ "modernc.org/sqlite"
)

type stubGen struct {
	reply string
	calls int
}

func (g *stubGen) Generate(_ context.Context, _ gen.Prompt) (string, error) {
	g.calls++
	return g.reply, nil
}

type stubRunner struct {
	result sandbox.Result
}

func (r *stubRunner) Run(_ context.Context, _ string) (sandbox.Result, error) {
	return r.result, nil
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "rexec.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	s := store.New(db)
	if err := s.Init(); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return s
}

func newTestServer(t *testing.T, g gen.Generator, r sandbox.Runner) (*httptest.Server, *store.Store) {
	t.Helper()
	st := setupTestStore(t)
	srv := server.NewServer(loop.New(g, r), st, 5, 20, true)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, st
}

func TestExecute_Success(t *testing.T) {
	g := &stubGen{reply: "print(120)"}
	r := &stubRunner{result: sandbox.Result{Stdout: "120\n"}}
	ts, st := newTestServer(t, g, r)

	body := strings.NewReader(`{"prompt": "compute the factorial of 5 and print it", "max_attempts": 3}`)
	res, err := http.Post(ts.URL+"/api/execute", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(res.Body)
		t.Fatalf("expected 200, got %s: %s", res.Status, string(b))
	}

	var rep api.ExecuteResponse
	if err := json.NewDecoder(res.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !rep.Success || rep.Attempts != 1 || rep.Code != "print(120)" || rep.Output != "120\n" {
		t.Fatalf("unexpected report: %+v", rep)
	}
	if rep.ExecutionTime < 0 {
		t.Fatalf("negative execution time: %v", rep.ExecutionTime)
	}

	runID := res.Header.Get("X-Rexec-Run-Id")
	if runID == "" {
		t.Fatalf("missing run id header")
	}
	run, err := st.GetRun(runID)
	if err != nil {
		t.Fatalf("run not recorded: %v", err)
	}
	if !run.Success || run.Code != "print(120)" {
		t.Fatalf("recorded run mismatch: %+v", run)
	}
}

func TestExecute_EmptyPromptRejectedBeforeGeneration(t *testing.T) {
	g := &stubGen{reply: "never"}
	ts, _ := newTestServer(t, g, &stubRunner{})

	for _, payload := range []string{`{"prompt": ""}`, `{"prompt": "   "}`} {
		res, err := http.Post(ts.URL+"/api/execute", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		_ = res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %s", payload, res.Status)
		}
	}
	if g.calls != 0 {
		t.Fatalf("generator must not be called for rejected input, got %d calls", g.calls)
	}
}

func TestExecute_RejectsBadAttemptBudget(t *testing.T) {
	ts, _ := newTestServer(t, &stubGen{reply: "x"}, &stubRunner{})

	for _, payload := range []string{
		`{"prompt": "p", "max_attempts": -1}`,
		`{"prompt": "p", "max_attempts": 999}`,
	} {
		res, err := http.Post(ts.URL+"/api/execute", "application/json", strings.NewReader(payload))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		_ = res.Body.Close()
		if res.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %s", payload, res.Status)
		}
	}
}

func TestExecute_InvalidJSON(t *testing.T) {
	ts, _ := newTestServer(t, &stubGen{reply: "x"}, &stubRunner{})

	res, err := http.Post(ts.URL+"/api/execute", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %s", res.Status)
	}
}

func TestExecute_FailureStillReturnsWellFormedReport(t *testing.T) {
	g := &stubGen{reply: "broken"}
	r := &stubRunner{result: sandbox.Result{ExitCode: 1, Stderr: "NameError: x", Err: "NameError: x"}}
	ts, _ := newTestServer(t, g, r)

	body := strings.NewReader(`{"prompt": "p", "max_attempts": 2}`)
	res, err := http.Post(ts.URL+"/api/execute", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("failed runs still return 200, got %s", res.Status)
	}

	var rep api.ExecuteResponse
	if err := json.NewDecoder(res.Body).Decode(&rep); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rep.Success {
		t.Fatalf("expected failure report")
	}
	if rep.Attempts != 2 || rep.Error != "NameError: x" {
		t.Fatalf("unexpected report: %+v", rep)
	}
}

func TestHealth(t *testing.T) {
	ts, _ := newTestServer(t, &stubGen{reply: "x"}, &stubRunner{})

	res, err := http.Get(ts.URL + "/api/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %s", res.Status)
	}

	var h api.HealthResponse
	if err := json.NewDecoder(res.Body).Decode(&h); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h.Status != "healthy" || !h.GeneratorConfigured {
		t.Fatalf("unexpected health: %+v", h)
	}
}

func TestRunHistory(t *testing.T) {
	g := &stubGen{reply: "print('hi')"}
	r := &stubRunner{result: sandbox.Result{Stdout: "hi\n"}}
	ts, _ := newTestServer(t, g, r)

	res, err := http.Post(ts.URL+"/api/execute", "application/json", strings.NewReader(`{"prompt": "say hi"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	runID := res.Header.Get("X-Rexec-Run-Id")
	_ = res.Body.Close()

	res, err = http.Get(ts.URL + "/v1/runs?limit=10")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	defer res.Body.Close()
	var runs []*api.Run
	if err := json.NewDecoder(res.Body).Decode(&runs); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(runs) != 1 || runs[0].RunID != runID {
		t.Fatalf("unexpected history: %+v", runs)
	}

	res2, err := http.Get(ts.URL + "/v1/runs/" + runID)
	if err != nil {
		t.Fatalf("get run: %v", err)
	}
	defer res2.Body.Close()
	if res2.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %s", res2.Status)
	}

	res3, err := http.Get(ts.URL + "/v1/runs/does-not-exist")
	if err != nil {
		t.Fatalf("get missing run: %v", err)
	}
	_ = res3.Body.Close()
	if res3.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %s", res3.Status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, &stubGen{reply: "x"}, &stubRunner{})

	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %s", res.Status)
	}
	b, _ := io.ReadAll(res.Body)
	if !strings.Contains(string(b), "rexec_") {
		t.Fatalf("expected rexec collectors in metrics output")
	}
}
