package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"orchestrator-core/internal/apierr"
	"orchestrator-core/internal/dispatcher"
	"orchestrator-core/internal/idutil"
	"orchestrator-core/internal/store"
	"orchestrator-core/internal/taskstate"
)

// TrackerServer holds the dependencies the Tracker's handlers need.
type TrackerServer struct {
	Store      store.Store
	Dispatcher *dispatcher.Dispatcher
}

// Router builds the Tracker's net/http 1.22+ method-pattern ServeMux,
// grounded on the teacher's router.go.
func (s *TrackerServer) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /projects", s.handleCreateProject)
	mux.HandleFunc("GET /projects", s.handleListProjects)
	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PATCH /tasks/{id}", s.handlePatchTask)
	mux.HandleFunc("POST /tool-runs", s.handleCreateToolRunRow)
	mux.HandleFunc("GET /tool-runs/{id}", s.handleGetToolRunRow)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apierr.BadRequest("invalid JSON body: %v", err)
	}
	return nil
}

type projectView struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Metadata  string `json:"metadata,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toProjectView(p *store.Project) projectView {
	return projectView{
		ID: p.ID, Name: p.Name, Metadata: p.Metadata,
		CreatedAt: p.CreatedAt.Format(time.RFC3339), UpdatedAt: p.UpdatedAt.Format(time.RFC3339),
	}
}

func slugify(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	lastDash := false
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteRune('-')
				lastDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func (s *TrackerServer) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name     string `json:"name"`
		Metadata string `json:"metadata"`
	}
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if strings.TrimSpace(body.Name) == "" {
		WriteError(w, apierr.BadRequest("name is required"))
		return
	}
	p := &store.Project{ID: idutil.NewProjectID(), Name: body.Name, Slug: slugify(body.Name), Metadata: body.Metadata}
	if err := s.Store.CreateProject(r.Context(), p); err != nil {
		WriteError(w, apierr.Internal(err, "create project failed"))
		return
	}
	writeJSON(w, http.StatusCreated, toProjectView(p))
}

func (s *TrackerServer) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.Store.ListProjects(r.Context())
	if err != nil {
		WriteError(w, apierr.Internal(err, "list projects failed"))
		return
	}
	views := make([]projectView, 0, len(projects))
	for _, p := range projects {
		views = append(views, toProjectView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

type historyEntryView struct {
	From      *string `json:"from"`
	To        string  `json:"to"`
	ChangedAt string  `json:"changed_at"`
}

type taskView struct {
	ID            string  `json:"id"`
	ProjectID     string  `json:"project_id"`
	InputType     string  `json:"input_type"`
	RawText       *string `json:"raw_text"`
	RawAudioURI   *string `json:"raw_audio_uri"`
	Transcript    *string `json:"transcript"`
	RefinedText   *string `json:"refined_text"`
	FinalSummary  *string `json:"final_summary"`
	FinalAudioURI *string `json:"final_audio_uri"`
	FailureReason *string `json:"failure_reason"`
	Status        string  `json:"status"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`

	StatusHistory []historyEntryView `json:"status_history,omitempty"`
}

func toTaskView(t *store.Task) taskView {
	return taskView{
		ID: t.ID, ProjectID: t.ProjectID, InputType: string(t.InputType),
		RawText: t.RawText, RawAudioURI: t.RawAudioURI, Transcript: t.Transcript,
		RefinedText: t.RefinedText, FinalSummary: t.FinalSummary, FinalAudioURI: t.FinalAudioURI,
		FailureReason: t.FailureReason, Status: string(t.Status),
		CreatedAt: t.CreatedAt.Format(time.RFC3339), UpdatedAt: t.UpdatedAt.Format(time.RFC3339),
	}
}

func (s *TrackerServer) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ProjectID   string  `json:"project_id"`
		InputType   string  `json:"input_type"`
		RawText     *string `json:"raw_text"`
		RawAudioURI *string `json:"raw_audio_uri"`
	}
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if body.ProjectID == "" {
		WriteError(w, apierr.BadRequest("project_id is required"))
		return
	}
	if _, err := s.Store.GetProject(r.Context(), body.ProjectID); err != nil {
		WriteError(w, apierr.BadRequest("project_id %q does not exist", body.ProjectID))
		return
	}
	inputType := store.InputType(body.InputType)
	switch inputType {
	case store.InputText:
		if body.RawText == nil || strings.TrimSpace(*body.RawText) == "" {
			WriteError(w, apierr.BadRequest("raw_text is required for input_type=text"))
			return
		}
		if body.RawAudioURI != nil {
			WriteError(w, apierr.BadRequest("raw_audio_uri must be absent for input_type=text"))
			return
		}
	case store.InputVoice:
		if body.RawAudioURI == nil || strings.TrimSpace(*body.RawAudioURI) == "" {
			WriteError(w, apierr.BadRequest("raw_audio_uri is required for input_type=voice"))
			return
		}
		if body.RawText != nil {
			WriteError(w, apierr.BadRequest("raw_text must be absent for input_type=voice"))
			return
		}
	default:
		WriteError(w, apierr.BadRequest("input_type must be %q or %q", store.InputText, store.InputVoice))
		return
	}

	task := &store.Task{
		ID: idutil.NewTaskID(), ProjectID: body.ProjectID, InputType: inputType,
		RawText: body.RawText, RawAudioURI: body.RawAudioURI, Status: taskstate.Received,
		SourceChannel: "unknown",
	}
	if err := s.Store.CreateTask(r.Context(), task); err != nil {
		WriteError(w, apierr.Internal(err, "create task failed"))
		return
	}
	if s.Dispatcher != nil {
		s.Dispatcher.Enqueue(task.ID)
	}
	writeJSON(w, http.StatusCreated, toTaskView(task))
}

func (s *TrackerServer) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	task, err := s.Store.GetTask(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	hist, err := s.Store.ListTaskHistory(r.Context(), id)
	if err != nil {
		WriteError(w, apierr.Internal(err, "load history failed"))
		return
	}
	view := toTaskView(task)
	view.StatusHistory = make([]historyEntryView, 0, len(hist))
	for _, h := range hist {
		var from *string
		if h.FromStatus != nil {
			f := string(*h.FromStatus)
			from = &f
		}
		view.StatusHistory = append(view.StatusHistory, historyEntryView{
			From: from, To: string(h.ToStatus), ChangedAt: h.ChangedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, view)
}

// patchableFields is the PATCH /tasks/{id} whitelist per spec.md §6.
var patchableFields = map[string]bool{
	"status": true, "transcript": true, "refined_text": true, "final_summary": true,
	"final_audio_uri": true, "raw_audio_uri": true, "failure_reason": true,
}

func (s *TrackerServer) handlePatchTask(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		WriteError(w, apierr.BadRequest("invalid JSON body: %v", err))
		return
	}
	for field := range raw {
		if !patchableFields[field] {
			WriteError(w, apierr.BadRequest("unknown field %q", field))
			return
		}
	}

	var transitionErr error
	updated, err := s.Store.UpdateTask(r.Context(), id, func(t *store.Task) error {
		if v, ok := raw["status"]; ok {
			var status string
			if err := json.Unmarshal(v, &status); err != nil {
				return apierr.BadRequest("status must be a string")
			}
			next := taskstate.Status(status)
			if !taskstate.Valid(next) {
				return apierr.BadRequest("unknown status %q", status)
			}
			if err := taskstate.ValidateTransition(t.Status, next); err != nil {
				transitionErr = apierr.BadRequest("%v", err)
				return transitionErr
			}
			t.Status = next
		}
		if v, ok := raw["transcript"]; ok {
			if err := unmarshalNullableString(v, &t.Transcript); err != nil {
				return err
			}
		}
		if v, ok := raw["refined_text"]; ok {
			if err := unmarshalNullableString(v, &t.RefinedText); err != nil {
				return err
			}
		}
		if v, ok := raw["final_summary"]; ok {
			if err := unmarshalNullableString(v, &t.FinalSummary); err != nil {
				return err
			}
		}
		if v, ok := raw["final_audio_uri"]; ok {
			if err := unmarshalNullableString(v, &t.FinalAudioURI); err != nil {
				return err
			}
		}
		if v, ok := raw["raw_audio_uri"]; ok {
			if err := unmarshalNullableString(v, &t.RawAudioURI); err != nil {
				return err
			}
		}
		if v, ok := raw["failure_reason"]; ok {
			if err := unmarshalNullableString(v, &t.FailureReason); err != nil {
				return err
			}
			if t.FailureReason != nil {
				truncated := apierr.Truncate(*t.FailureReason, 500)
				t.FailureReason = &truncated
			}
		}
		return nil
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskView(updated))
}

func unmarshalNullableString(raw json.RawMessage, dst **string) error {
	var v *string
	if err := json.Unmarshal(raw, &v); err != nil {
		return apierr.BadRequest("expected string or null")
	}
	*dst = v
	return nil
}

type toolRunView struct {
	ID         string  `json:"id"`
	TaskID     string  `json:"task_id"`
	ToolName   string  `json:"tool_name"`
	Status     string  `json:"status"`
	Input      string  `json:"input,omitempty"`
	Output     string  `json:"output,omitempty"`
	StartedAt  *string `json:"started_at"`
	FinishedAt *string `json:"finished_at"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

func toToolRunView(r *store.ToolRun) toolRunView {
	v := toolRunView{
		ID: r.ID, TaskID: r.TaskID, ToolName: r.ToolName, Status: string(r.Status),
		Input: r.Input, Output: r.Output,
		CreatedAt: r.CreatedAt.Format(time.RFC3339), UpdatedAt: r.UpdatedAt.Format(time.RFC3339),
	}
	if r.StartedAt != nil {
		s := r.StartedAt.Format(time.RFC3339)
		v.StartedAt = &s
	}
	if r.FinishedAt != nil {
		s := r.FinishedAt.Format(time.RFC3339)
		v.FinishedAt = &s
	}
	return v
}

func (s *TrackerServer) handleCreateToolRunRow(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TaskID     string  `json:"task_id"`
		ToolName   string  `json:"tool_name"`
		Status     string  `json:"status"`
		Input      string  `json:"input"`
		Output     string  `json:"output"`
		StartedAt  *string `json:"started_at"`
		FinishedAt *string `json:"finished_at"`
	}
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, err)
		return
	}
	if body.TaskID == "" || body.ToolName == "" {
		WriteError(w, apierr.BadRequest("task_id and tool_name are required"))
		return
	}
	status := store.ToolRunQueued
	if body.Status != "" {
		status = store.ToolRunStatus(body.Status)
	}
	run := &store.ToolRun{
		ID: idutil.NewToolRunID(), TaskID: body.TaskID, ToolName: body.ToolName,
		Status: status, Input: body.Input, Output: body.Output,
	}
	if t, err := parseOptionalTime(body.StartedAt); err == nil {
		run.StartedAt = t
	}
	if t, err := parseOptionalTime(body.FinishedAt); err == nil {
		run.FinishedAt = t
	}
	if err := s.Store.CreateToolRun(r.Context(), run); err != nil {
		WriteError(w, apierr.BadRequest("create tool run failed: %v", err))
		return
	}
	writeJSON(w, http.StatusCreated, toToolRunView(run))
}

func parseOptionalTime(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *TrackerServer) handleGetToolRunRow(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	run, err := s.Store.GetToolRun(r.Context(), id)
	if err != nil {
		WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toToolRunView(run))
}

func (s *TrackerServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "tracker"})
}
