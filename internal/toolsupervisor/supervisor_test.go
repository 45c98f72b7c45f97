package toolsupervisor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"orchestrator-core/internal/logging"
	"orchestrator-core/internal/toolsupervisor/adapters"
)

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()
	dir := t.TempDir()
	reg := NewRegistry(adapters.Dummy{}, adapters.NewGitAutocommit(false))
	return New(reg, Config{ArtifactsRoot: dir, TailLines: 50}, logging.Nop())
}

func waitRunTerminal(t *testing.T, s *Supervisor, runID string) *Run {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		run, ok := s.Get(runID)
		require.True(t, ok)
		if run.Status == RunSucceeded || run.Status == RunFailed {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run did not terminate in time")
	return nil
}

func TestScenario5_DummyToolRun(t *testing.T) {
	s := newTestSupervisor(t)
	run, err := s.CreateAsync(context.Background(), "run-1", "dummy", map[string]any{"message": "hi", "sleep_seconds": 0.05}, "")
	require.NoError(t, err)
	require.Equal(t, "run-1", run.ID)

	final := waitRunTerminal(t, s, "run-1")
	require.Equal(t, RunSucceeded, final.Status)
	require.Len(t, final.Artifacts, 2)

	tail, err := s.Tail(final.StdoutPath, 50)
	require.NoError(t, err)
	require.Contains(t, tail, "start: hi")
	require.Contains(t, tail, "done")
}

func TestScenario7_GitAutocommitNonRepoFails(t *testing.T) {
	s := newTestSupervisor(t)
	nonRepo := t.TempDir()
	run, err := s.CreateAsync(context.Background(), "run-2", "git-autocommit", map[string]any{"workdir": nonRepo}, "")
	require.NoError(t, err)
	require.Equal(t, "run-2", run.ID)

	final := waitRunTerminal(t, s, "run-2")
	require.Equal(t, RunFailed, final.Status)

	data, err := os.ReadFile(final.StderrPath)
	require.NoError(t, err)
	require.Contains(t, string(data), "not a git repository")
}

func TestUnknownToolRejected(t *testing.T) {
	s := newTestSupervisor(t)
	_, err := s.CreateAsync(context.Background(), "run-3", "rm-rf", nil, "")
	require.Error(t, err)
	require.Contains(t, err.Error(), "not allowed")
}

func TestCallbackSentOnCompletion(t *testing.T) {
	received := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := newTestSupervisor(t)
	_, err := s.CreateAsync(context.Background(), "run-4", "dummy", map[string]any{"message": "hi"}, srv.URL)
	require.NoError(t, err)
	waitRunTerminal(t, s, "run-4")

	select {
	case body := <-received:
		require.Equal(t, "run-4", body["tool_run_id"])
		require.Equal(t, "SUCCEEDED", body["status"])
	case <-time.After(2 * time.Second):
		t.Fatal("callback never received")
	}
}

func TestRunSyncReturnsExitCodeAndStderr(t *testing.T) {
	s := newTestSupervisor(t)
	code, stdout, _, _, err := s.RunSync(context.Background(), "dummy", map[string]any{"message": "x", "sleep_seconds": 0.0})
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.True(t, strings.Contains(stdout, "start: x"))
}
