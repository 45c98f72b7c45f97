package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"orchestrator-core/internal/idutil"
	"orchestrator-core/internal/store"
	"orchestrator-core/internal/taskstate"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open("file::memory:?cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func createTestProject(t *testing.T, s *Store) *store.Project {
	t.Helper()
	p := &store.Project{ID: idutil.NewProjectID(), Name: "P", Slug: "p"}
	require.NoError(t, s.CreateProject(context.Background(), p))
	return p
}

func TestCreateAndGetProject(t *testing.T) {
	s := openTestStore(t)
	p := createTestProject(t, s)

	got, err := s.GetProject(context.Background(), p.ID)
	require.NoError(t, err)
	require.Equal(t, "P", got.Name)
	require.False(t, got.CreatedAt.IsZero())
}

func TestCreateTaskWritesInitialHistoryRow(t *testing.T) {
	s := openTestStore(t)
	p := createTestProject(t, s)
	raw := "Deploy v2"
	task := &store.Task{
		ID:        idutil.NewTaskID(),
		ProjectID: p.ID,
		InputType: store.InputText,
		RawText:   &raw,
		Status:    taskstate.Received,
	}
	require.NoError(t, s.CreateTask(context.Background(), task))

	hist, err := s.ListTaskHistory(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	require.Nil(t, hist[0].FromStatus)
	require.Equal(t, taskstate.Received, hist[0].ToStatus)
}

func TestUpdateTaskAppendsHistoryAndAdvancesUpdatedAt(t *testing.T) {
	s := openTestStore(t)
	p := createTestProject(t, s)
	raw := "Deploy v2"
	task := &store.Task{ID: idutil.NewTaskID(), ProjectID: p.ID, InputType: store.InputText, RawText: &raw, Status: taskstate.Received}
	require.NoError(t, s.CreateTask(context.Background(), task))
	firstUpdated := task.UpdatedAt

	updated, err := s.UpdateTask(context.Background(), task.ID, func(t *store.Task) error {
		t.Status = taskstate.Routed
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, taskstate.Routed, updated.Status)
	require.True(t, updated.UpdatedAt.After(firstUpdated))

	hist, err := s.ListTaskHistory(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.NotNil(t, hist[1].FromStatus)
	require.Equal(t, taskstate.Received, *hist[1].FromStatus)
	require.Equal(t, taskstate.Routed, hist[1].ToStatus)
}

func TestUpdateTaskNoOpDoesNotAppendHistory(t *testing.T) {
	s := openTestStore(t)
	p := createTestProject(t, s)
	raw := "x"
	task := &store.Task{ID: idutil.NewTaskID(), ProjectID: p.ID, InputType: store.InputText, RawText: &raw, Status: taskstate.Received}
	require.NoError(t, s.CreateTask(context.Background(), task))

	_, err := s.UpdateTask(context.Background(), task.ID, func(t *store.Task) error {
		t.Status = taskstate.Received
		return nil
	})
	require.NoError(t, err)

	hist, err := s.ListTaskHistory(context.Background(), task.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
}

func TestGetTaskNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetTask(context.Background(), "task-missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestToolRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	p := createTestProject(t, s)
	raw := "x"
	task := &store.Task{ID: idutil.NewTaskID(), ProjectID: p.ID, InputType: store.InputText, RawText: &raw, Status: taskstate.Received}
	require.NoError(t, s.CreateTask(context.Background(), task))

	run := &store.ToolRun{ID: idutil.NewToolRunID(), TaskID: task.ID, ToolName: "tooler", Status: store.ToolRunQueued, Input: `{"text":"x"}`}
	require.NoError(t, s.CreateToolRun(context.Background(), run))

	updated, err := s.UpdateToolRun(context.Background(), run.ID, func(r *store.ToolRun) error {
		r.Status = store.ToolRunSucceeded
		r.Output = `{"result_text":"ok"}`
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, store.ToolRunSucceeded, updated.Status)
}

func TestCreateToolRunRejectsUnknownTask(t *testing.T) {
	s := openTestStore(t)
	run := &store.ToolRun{ID: idutil.NewToolRunID(), TaskID: "task-bogus", ToolName: "tooler", Status: store.ToolRunQueued}
	require.Error(t, s.CreateToolRun(context.Background(), run))
}
