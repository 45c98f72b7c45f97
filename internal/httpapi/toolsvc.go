package httpapi

import (
	"net/http"
	"strings"

	"orchestrator-core/internal/apierr"
	"orchestrator-core/internal/idutil"
	"orchestrator-core/internal/toolsupervisor"
	"orchestrator-core/internal/toolsupervisor/adapters"
)

// ToolSupervisorServer holds the dependencies the Tool Supervisor's
// handlers need.
type ToolSupervisorServer struct {
	Supervisor *toolsupervisor.Supervisor
	TailLines  int
}

// Router builds the Tool Supervisor's ServeMux, grounded on the same
// router.go shape as the Tracker's.
func (s *ToolSupervisorServer) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /tooler/run", s.handleToolerRun)
	mux.HandleFunc("POST /tool-runs", s.handleCreateAsyncRun)
	mux.HandleFunc("GET /tool-runs/{id}", s.handleGetAsyncRun)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func (s *ToolSupervisorServer) tailLines() int {
	if s.TailLines <= 0 {
		return 200
	}
	return s.TailLines
}

func (s *ToolSupervisorServer) handleToolerRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ToolName string         `json:"tool_name"`
		Text     string         `json:"text"`
		Input    map[string]any `json:"input"`
	}
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	toolName := body.ToolName
	if toolName == "" {
		toolName = "tooler"
	}
	input := body.Input
	if input == nil {
		input = map[string]any{}
	}
	if body.Text != "" {
		input["text"] = body.Text
	}

	exitCode, stdout, stderr, markers, err := s.Supervisor.RunSync(r.Context(), toolName, input)
	if err != nil {
		WriteError(w, apierr.BadRequest("%v", err))
		return
	}

	// auth-failure special case: codex's auth precondition failing on the
	// synchronous path surfaces as 500 per spec.md §4.3, since there is no
	// valid result to report 200 with.
	if toolName == "codex" && exitCode != 0 && adapters.IsAuthFailure(stderr) {
		WriteError(w, apierr.Internal(nil, "codex authentication failed: %s", strings.TrimSpace(stderr)))
		return
	}

	resp := map[string]any{
		"tool": toolName, "exit_code": exitCode, "result_text": strings.TrimSpace(stdout), "stderr": stderr,
	}
	if branch, ok := markers["branch"]; ok {
		resp["branch"] = branch
	}
	if commit, ok := markers["commit_hash"]; ok {
		resp["commit_hash"] = commit
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ToolSupervisorServer) handleCreateAsyncRun(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ToolName    string         `json:"tool_name"`
		Input       map[string]any `json:"input"`
		CallbackURL string         `json:"callback_url"`
	}
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if body.ToolName == "" {
		WriteError(w, apierr.BadRequest("tool_name is required"))
		return
	}

	runID := idutil.NewRunID()
	run, err := s.Supervisor.CreateAsync(r.Context(), runID, body.ToolName, body.Input, body.CallbackURL)
	if err != nil {
		WriteError(w, apierr.BadRequest("%v", err))
		return
	}
	current, _ := s.Supervisor.Get(run.ID)
	writeJSON(w, http.StatusCreated, map[string]any{
		"tool_run_id": current.ID, "pid": nilIfZero(current.PID), "status": string(current.Status),
	})
}

func nilIfZero(pid int) any {
	if pid == 0 {
		return nil
	}
	return pid
}

func (s *ToolSupervisorServer) handleGetAsyncRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, ok := s.Supervisor.Get(id)
	if !ok {
		WriteError(w, apierr.NotFound("tool run %q not found", id))
		return
	}
	stdoutTail, _ := s.Supervisor.Tail(run.StdoutPath, s.tailLines())
	stderrTail, _ := s.Supervisor.Tail(run.StderrPath, s.tailLines())

	resp := map[string]any{
		"tool_run_id": run.ID, "status": string(run.Status), "stdout_tail": stdoutTail, "stderr_tail": stderrTail,
		"artifacts": run.Artifacts, "pid": nilIfZero(run.PID), "exit_code": run.ExitCode,
		"started_at": run.StartedAt, "finished_at": run.FinishedAt,
	}
	if branch, ok := run.Markers["branch"]; ok {
		resp["branch"] = branch
	}
	if commit, ok := run.Markers["commit_hash"]; ok {
		resp["commit_hash"] = commit
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *ToolSupervisorServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "toolsvc"})
}
