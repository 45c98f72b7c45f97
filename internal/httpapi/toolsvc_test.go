package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"orchestrator-core/internal/logging"
	"orchestrator-core/internal/toolsupervisor"
	"orchestrator-core/internal/toolsupervisor/adapters"
)

func newTestToolSvc(t *testing.T) *ToolSupervisorServer {
	t.Helper()
	dir := t.TempDir()
	reg := toolsupervisor.NewRegistry(adapters.Dummy{}, adapters.NewGitAutocommit(false))
	sup := toolsupervisor.New(reg, toolsupervisor.Config{ArtifactsRoot: dir}, logging.Nop())
	return &ToolSupervisorServer{Supervisor: sup}
}

func TestToolerRunHappyPath(t *testing.T) {
	s := newTestToolSvc(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/tooler/run", map[string]any{
		"tool_name": "dummy", "input": map[string]any{"message": "ok", "sleep_seconds": 0.0},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, float64(0), body["exit_code"])
}

func TestScenario6_UnknownToolRejected(t *testing.T) {
	s := newTestToolSvc(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/tool-runs", map[string]any{"tool_name": "rm-rf"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Contains(t, body["message"], "not allowed")
}

func TestScenario5_AsyncDummyRunPollsToSucceeded(t *testing.T) {
	s := newTestToolSvc(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/tool-runs", map[string]any{
		"tool_name": "dummy", "input": map[string]any{"message": "hi", "sleep_seconds": 0.05},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	runID := created["tool_run_id"].(string)

	deadline := time.Now().Add(2 * time.Second)
	var status string
	var stdoutTail string
	for time.Now().Before(deadline) {
		rec = doJSON(t, router, http.MethodGet, "/tool-runs/"+runID, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		var view map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		status = view["status"].(string)
		stdoutTail = view["stdout_tail"].(string)
		if status == "SUCCEEDED" {
			require.Contains(t, stdoutTail, "start: hi")
			require.Contains(t, stdoutTail, "done")
			artifacts := view["artifacts"].([]any)
			require.Len(t, artifacts, 2)
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run never succeeded, last status=%s", status)
}

func TestScenario7_GitAutocommitNonRepoFailsOverHTTP(t *testing.T) {
	s := newTestToolSvc(t)
	router := s.Router()
	nonRepo := t.TempDir()

	rec := doJSON(t, router, http.MethodPost, "/tool-runs", map[string]any{
		"tool_name": "git-autocommit", "input": map[string]any{"workdir": nonRepo},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	runID := created["tool_run_id"].(string)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		rec = doJSON(t, router, http.MethodGet, "/tool-runs/"+runID, nil)
		var view map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
		if view["status"].(string) == "FAILED" {
			require.Contains(t, view["stderr_tail"], "not a git repository")
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("run never failed")
}

func TestGetUnknownRunReturns404(t *testing.T) {
	s := newTestToolSvc(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/tool-runs/run-missing", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
