// Package sqlite implements internal/store.Store over modernc.org/sqlite,
// a pure-Go driver, so the Persistent Store is a single file with no cgo
// dependency, matching the "one database file" requirement.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"orchestrator-core/internal/store"
	"orchestrator-core/internal/taskstate"
)

const schema = `
CREATE TABLE IF NOT EXISTS projects (
  id TEXT PRIMARY KEY, name TEXT NOT NULL, slug TEXT NOT NULL UNIQUE,
  metadata TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  project_id TEXT NOT NULL REFERENCES projects(id),
  input_type TEXT NOT NULL CHECK (input_type IN ('text','voice')),
  raw_text TEXT, raw_audio_uri TEXT,
  transcript TEXT, refined_text TEXT, final_summary TEXT, final_audio_uri TEXT,
  failure_reason TEXT, status TEXT NOT NULL, source_channel TEXT NOT NULL DEFAULT 'unknown',
  created_at TEXT NOT NULL, updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS task_status_history (
  id TEXT PRIMARY KEY, task_id TEXT NOT NULL REFERENCES tasks(id),
  from_status TEXT, to_status TEXT NOT NULL, changed_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS tool_runs (
  id TEXT PRIMARY KEY, task_id TEXT NOT NULL REFERENCES tasks(id),
  tool_name TEXT NOT NULL, adapter_version TEXT, status TEXT NOT NULL,
  input TEXT, output TEXT,
  started_at TEXT, finished_at TEXT, created_at TEXT NOT NULL, updated_at TEXT NOT NULL
);
`

// Store is a single-writer-disciplined sqlite-backed store.Store.
type Store struct {
	db *sql.DB
	// writeMu serializes write transactions process-wide; the dispatcher
	// and HTTP handlers never hold it across a collaborator HTTP call.
	writeMu sync.Mutex
}

// Open opens (creating if absent) the sqlite database at dsn, a filesystem
// path, e.g. "/var/lib/orchestrator/core.db" or ":memory:" for tests.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite + WAL: one connection avoids SQLITE_BUSY churn
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enable foreign_keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enable wal: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func nowRFC3339() string { return time.Now().UTC().Format(time.RFC3339Nano) }

// afterMonotonic returns a timestamp strictly after prev, satisfying
// invariant 3 (updated_at strictly advances) even under a coarse clock.
func afterMonotonic(prev time.Time) time.Time {
	now := time.Now().UTC()
	if !now.After(prev) {
		return prev.Add(time.Nanosecond)
	}
	return now
}

func (s *Store) CreateProject(ctx context.Context, p *store.Project) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	now := nowRFC3339()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, slug, metadata, created_at, updated_at) VALUES (?,?,?,?,?,?)`,
		p.ID, p.Name, p.Slug, p.Metadata, now, now)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, now)
	p.UpdatedAt = p.CreatedAt
	return nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*store.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, slug, metadata, created_at, updated_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*store.Project
	for rows.Next() {
		p := &store.Project{}
		var created, updated string
		var metadata sql.NullString
		if err := rows.Scan(&p.ID, &p.Name, &p.Slug, &metadata, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		p.Metadata = metadata.String
		p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) GetProject(ctx context.Context, id string) (*store.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, slug, metadata, created_at, updated_at FROM projects WHERE id = ?`, id)
	p := &store.Project{}
	var created, updated string
	var metadata sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.Slug, &metadata, &created, &updated); err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	p.Metadata = metadata.String
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return p, nil
}

func (s *Store) CreateTask(ctx context.Context, t *store.Task) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := nowRFC3339()
	if t.SourceChannel == "" {
		t.SourceChannel = "unknown"
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO tasks
		(id, project_id, input_type, raw_text, raw_audio_uri, transcript, refined_text,
		 final_summary, final_audio_uri, failure_reason, status, source_channel, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, string(t.InputType), t.RawText, t.RawAudioURI, t.Transcript, t.RefinedText,
		t.FinalSummary, t.FinalAudioURI, t.FailureReason, string(t.Status), t.SourceChannel, now, now)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO task_status_history (id, task_id, from_status, to_status, changed_at)
		VALUES (?,?,NULL,?,?)`, t.ID+"-hist-0", t.ID, string(t.Status), now)
	if err != nil {
		return fmt.Errorf("insert initial history row: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, now)
	t.UpdatedAt = t.CreatedAt
	return nil
}

func scanTask(row interface {
	Scan(dest ...any) error
}) (*store.Task, error) {
	t := &store.Task{}
	var inputType, status, created, updated string
	var rawText, rawAudio, transcript, refined, summary, audioURI, failureReason sql.NullString
	err := row.Scan(&t.ID, &t.ProjectID, &inputType, &rawText, &rawAudio, &transcript, &refined,
		&summary, &audioURI, &failureReason, &status, &t.SourceChannel, &created, &updated)
	if err != nil {
		return nil, err
	}
	t.InputType = store.InputType(inputType)
	t.Status = taskstate.Status(status)
	t.RawText = nullableStr(rawText)
	t.RawAudioURI = nullableStr(rawAudio)
	t.Transcript = nullableStr(transcript)
	t.RefinedText = nullableStr(refined)
	t.FinalSummary = nullableStr(summary)
	t.FinalAudioURI = nullableStr(audioURI)
	t.FailureReason = nullableStr(failureReason)
	t.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	t.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return t, nil
}

func nullableStr(n sql.NullString) *string {
	if !n.Valid {
		return nil
	}
	v := n.String
	return &v
}

func (s *Store) GetTask(ctx context.Context, id string) (*store.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, project_id, input_type, raw_text, raw_audio_uri,
		transcript, refined_text, final_summary, final_audio_uri, failure_reason, status,
		source_channel, created_at, updated_at FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return t, nil
}

// UpdateTask loads the task, lets fn mutate a copy, and persists every
// field plus (when status changed) a new TaskStatusHistory row, all inside
// one short transaction. updated_at is advanced by the store, never by fn.
func (s *Store) UpdateTask(ctx context.Context, id string, fn func(t *store.Task) error) (*store.Task, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT id, project_id, input_type, raw_text, raw_audio_uri,
		transcript, refined_text, final_summary, final_audio_uri, failure_reason, status,
		source_channel, created_at, updated_at FROM tasks WHERE id = ?`, id)
	current, err := scanTask(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load task: %w", err)
	}

	prevStatus := current.Status
	updated := *current
	if err := fn(&updated); err != nil {
		return nil, err
	}

	updated.UpdatedAt = afterMonotonic(current.UpdatedAt)
	updatedAtStr := updated.UpdatedAt.Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx, `UPDATE tasks SET project_id=?, input_type=?, raw_text=?, raw_audio_uri=?,
		transcript=?, refined_text=?, final_summary=?, final_audio_uri=?, failure_reason=?, status=?,
		source_channel=?, updated_at=? WHERE id=?`,
		updated.ProjectID, string(updated.InputType), updated.RawText, updated.RawAudioURI,
		updated.Transcript, updated.RefinedText, updated.FinalSummary, updated.FinalAudioURI,
		updated.FailureReason, string(updated.Status), updated.SourceChannel, updatedAtStr, id)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}

	if !taskstate.IsNoOp(prevStatus, updated.Status) {
		histID := id + "-hist-" + updatedAtStr
		from := string(prevStatus)
		_, err = tx.ExecContext(ctx, `INSERT INTO task_status_history (id, task_id, from_status, to_status, changed_at)
			VALUES (?,?,?,?,?)`, histID, id, from, string(updated.Status), updatedAtStr)
		if err != nil {
			return nil, fmt.Errorf("insert history row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	updated.CreatedAt = current.CreatedAt
	return &updated, nil
}

func (s *Store) ListTaskHistory(ctx context.Context, taskID string) ([]*store.StatusHistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, task_id, from_status, to_status, changed_at
		FROM task_status_history WHERE task_id = ? ORDER BY changed_at ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*store.StatusHistoryEntry
	for rows.Next() {
		e := &store.StatusHistoryEntry{}
		var from sql.NullString
		var changed string
		if err := rows.Scan(&e.ID, &e.TaskID, &from, &e.ToStatus, &changed); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if from.Valid {
			fs := taskstate.Status(from.String)
			e.FromStatus = &fs
		}
		e.ChangedAt, _ = time.Parse(time.RFC3339Nano, changed)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) CreateToolRun(ctx context.Context, r *store.ToolRun) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// invariant 7: task_id must reference an existing task. The foreign key
	// pragma enforces this at the engine level; we surface a clearer error.
	if _, err := s.GetTask(ctx, r.TaskID); err != nil {
		return fmt.Errorf("tool run references unknown task %q: %w", r.TaskID, err)
	}

	now := nowRFC3339()
	var started, finished sql.NullString
	if r.StartedAt != nil {
		started = sql.NullString{String: r.StartedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	if r.FinishedAt != nil {
		finished = sql.NullString{String: r.FinishedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO tool_runs
		(id, task_id, tool_name, adapter_version, status, input, output, started_at, finished_at, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		r.ID, r.TaskID, r.ToolName, r.AdapterVersion, string(r.Status), r.Input, r.Output, started, finished, now, now)
	if err != nil {
		return fmt.Errorf("insert tool run: %w", err)
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, now)
	r.UpdatedAt = r.CreatedAt
	return nil
}

func scanToolRun(row interface {
	Scan(dest ...any) error
}) (*store.ToolRun, error) {
	r := &store.ToolRun{}
	var status, created, updated string
	var adapterVersion, input, output, started, finished sql.NullString
	err := row.Scan(&r.ID, &r.TaskID, &r.ToolName, &adapterVersion, &status, &input, &output,
		&started, &finished, &created, &updated)
	if err != nil {
		return nil, err
	}
	r.Status = store.ToolRunStatus(status)
	r.AdapterVersion = adapterVersion.String
	r.Input = input.String
	r.Output = output.String
	if started.Valid {
		t, _ := time.Parse(time.RFC3339Nano, started.String)
		r.StartedAt = &t
	}
	if finished.Valid {
		t, _ := time.Parse(time.RFC3339Nano, finished.String)
		r.FinishedAt = &t
	}
	r.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	r.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return r, nil
}

func (s *Store) GetToolRun(ctx context.Context, id string) (*store.ToolRun, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, task_id, tool_name, adapter_version, status, input, output,
		started_at, finished_at, created_at, updated_at FROM tool_runs WHERE id = ?`, id)
	r, err := scanToolRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("get tool run: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateToolRun(ctx context.Context, id string, fn func(r *store.ToolRun) error) (*store.ToolRun, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT id, task_id, tool_name, adapter_version, status, input, output,
		started_at, finished_at, created_at, updated_at FROM tool_runs WHERE id = ?`, id)
	current, err := scanToolRun(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("load tool run: %w", err)
	}

	updated := *current
	if err := fn(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = afterMonotonic(current.UpdatedAt)

	var started, finished sql.NullString
	if updated.StartedAt != nil {
		started = sql.NullString{String: updated.StartedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	if updated.FinishedAt != nil {
		finished = sql.NullString{String: updated.FinishedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `UPDATE tool_runs SET tool_name=?, adapter_version=?, status=?, input=?, output=?,
		started_at=?, finished_at=?, updated_at=? WHERE id=?`,
		updated.ToolName, updated.AdapterVersion, string(updated.Status), updated.Input, updated.Output,
		started, finished, updated.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, fmt.Errorf("update tool run: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	updated.CreatedAt = current.CreatedAt
	return &updated, nil
}
