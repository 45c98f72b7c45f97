package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"orchestrator-core/internal/store"
	"orchestrator-core/internal/store/sqlite"
	"orchestrator-core/internal/taskstate"
)

func newTestTracker(t *testing.T) (*TrackerServer, store.Store) {
	t.Helper()
	st, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return &TrackerServer{Store: st}, st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateAndListProjects(t *testing.T) {
	s, _ := newTestTracker(t)
	router := s.Router()

	rec := doJSON(t, router, http.MethodPost, "/projects", map[string]string{"name": "My Project"})
	require.Equal(t, http.StatusCreated, rec.Code)

	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.Equal(t, "My Project", created["name"])

	rec = doJSON(t, router, http.MethodGet, "/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
}

func TestCreateProjectRequiresName(t *testing.T) {
	s, _ := newTestTracker(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/projects", map[string]string{"name": ""})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func createProjectHelper(t *testing.T, router http.Handler) string {
	rec := doJSON(t, router, http.MethodPost, "/projects", map[string]string{"name": "P"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	return created["id"].(string)
}

func TestCreateTaskTextRequiresRawText(t *testing.T) {
	s, _ := newTestTracker(t)
	router := s.Router()
	projectID := createProjectHelper(t, router)

	rec := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{"project_id": projectID, "input_type": "text"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/tasks", map[string]any{"project_id": projectID, "input_type": "text", "raw_text": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
}

func TestCreateTaskUnknownProjectRejected(t *testing.T) {
	s, _ := newTestTracker(t)
	rec := doJSON(t, s.Router(), http.MethodPost, "/tasks", map[string]any{"project_id": "proj-missing", "input_type": "text", "raw_text": "hi"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetTaskIncludesHistory(t *testing.T) {
	s, _ := newTestTracker(t)
	router := s.Router()
	projectID := createProjectHelper(t, router)

	rec := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{"project_id": projectID, "input_type": "text", "raw_text": "hi"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	taskID := created["id"].(string)

	rec = doJSON(t, router, http.MethodGet, "/tasks/"+taskID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	hist := view["status_history"].([]any)
	require.Len(t, hist, 1)
}

func TestScenario8_PatchDeliveredToRefiningRejected(t *testing.T) {
	s, st := newTestTracker(t)
	router := s.Router()
	projectID := createProjectHelper(t, router)

	rec := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{"project_id": projectID, "input_type": "text", "raw_text": "hi"})
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	taskID := created["id"].(string)

	summary := "done"
	_, err := st.UpdateTask(t.Context(), taskID, func(task *store.Task) error {
		task.Status = taskstate.Routed
		return nil
	})
	require.NoError(t, err)
	_, err = st.UpdateTask(t.Context(), taskID, func(task *store.Task) error {
		task.Status = taskstate.Refining
		return nil
	})
	require.NoError(t, err)
	_, err = st.UpdateTask(t.Context(), taskID, func(task *store.Task) error {
		task.Status = taskstate.ToolQueued
		return nil
	})
	require.NoError(t, err)
	_, err = st.UpdateTask(t.Context(), taskID, func(task *store.Task) error {
		task.Status = taskstate.ToolRunning
		return nil
	})
	require.NoError(t, err)
	_, err = st.UpdateTask(t.Context(), taskID, func(task *store.Task) error {
		task.Status = taskstate.Summarizing
		return nil
	})
	require.NoError(t, err)
	_, err = st.UpdateTask(t.Context(), taskID, func(task *store.Task) error {
		task.Status = taskstate.Delivered
		task.FinalSummary = &summary
		return nil
	})
	require.NoError(t, err)

	rec = doJSON(t, router, http.MethodPatch, "/tasks/"+taskID, map[string]any{"status": "REFINING"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	after, err := st.GetTask(t.Context(), taskID)
	require.NoError(t, err)
	require.Equal(t, taskstate.Delivered, after.Status)
}

func TestPatchTaskRejectsUnknownField(t *testing.T) {
	s, _ := newTestTracker(t)
	router := s.Router()
	projectID := createProjectHelper(t, router)
	rec := doJSON(t, router, http.MethodPost, "/tasks", map[string]any{"project_id": projectID, "input_type": "text", "raw_text": "hi"})
	var created map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	taskID := created["id"].(string)

	rec = doJSON(t, router, http.MethodPatch, "/tasks/"+taskID, map[string]any{"bogus_field": "x"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestTracker(t)
	rec := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
