package toolsupervisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"orchestrator-core/internal/logging"
)

// RunStatus mirrors store.ToolRunStatus without importing the store
// package, keeping the supervisor usable standalone (its in-memory
// registry is a cache, not the source of truth, per spec.md §3).
type RunStatus string

const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunSucceeded RunStatus = "SUCCEEDED"
	RunFailed    RunStatus = "FAILED"
)

// Run is the in-memory view of one async tool-run.
type Run struct {
	mu sync.Mutex

	ID          string
	ToolName    string
	Status      RunStatus
	StdoutPath  string
	StderrPath  string
	Artifacts   []string
	PID         int
	ExitCode    int
	StartupErr  string
	CallbackURL string
	CallbackSent bool
	StartedAt   *time.Time
	FinishedAt  *time.Time
	Markers     map[string]string

	cmd *exec.Cmd
}

func (r *Run) snapshot() Run {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *r
	cp.Artifacts = append([]string(nil), r.Artifacts...)
	cp.cmd = nil
	return cp
}

// PrivilegeDrop names the unix user a subprocess should run as, when set.
type PrivilegeDrop struct {
	Username string
}

// Config controls artifact placement and tail size.
type Config struct {
	ArtifactsRoot string
	TailLines     int
	Privilege     *PrivilegeDrop
	CallbackHTTP  *http.Client
}

// Supervisor owns the in-memory tool-run registry and launches/watches
// subprocesses, grounded on the teacher's internal/devops/process.Manager
// (process-group tracked lifecycle) adapted to ephemeral, bounded-lifetime
// runs rather than long-lived named services.
type Supervisor struct {
	registry *Registry
	cfg      Config
	log      logging.Logger

	mu   sync.Mutex
	runs map[string]*Run

	tailCache *lru.Cache[string, []byte]
}

// New builds a Supervisor over the given adapter registry.
func New(registry *Registry, cfg Config, log logging.Logger) *Supervisor {
	if cfg.TailLines <= 0 {
		cfg.TailLines = 200
	}
	if cfg.CallbackHTTP == nil {
		cfg.CallbackHTTP = &http.Client{Timeout: 5 * time.Second}
	}
	cache, _ := lru.New[string, []byte](256)
	return &Supervisor{
		registry:  registry,
		cfg:       cfg,
		log:       logging.NewComponentLogger(log, "toolsupervisor"),
		runs:      make(map[string]*Run),
		tailCache: cache,
	}
}

// CreateAsync resolves the adapter, allocates a run directory, registers
// the run, and launches a detached worker goroutine. It then waits 50ms
// before returning, so PID is usually populated; it does not wait for it.
func (s *Supervisor) CreateAsync(ctx context.Context, runID, toolName string, input map[string]any, callbackURL string) (*Run, error) {
	adapter, err := s.registry.Resolve(toolName)
	if err != nil {
		return nil, err
	}

	dir := filepath.Join(s.cfg.ArtifactsRoot, runID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create artifacts dir: %w", err)
	}
	stdoutPath := filepath.Join(dir, "stdout.log")
	stderrPath := filepath.Join(dir, "stderr.log")

	run := &Run{
		ID: runID, ToolName: toolName, Status: RunQueued,
		StdoutPath: stdoutPath, StderrPath: stderrPath,
		Artifacts:   []string{stdoutPath, stderrPath},
		CallbackURL: callbackURL,
	}
	s.mu.Lock()
	s.runs[runID] = run
	s.mu.Unlock()

	go s.watch(context.Background(), run, adapter, input)

	// give the worker a brief head start so PID is usually populated by the
	// time CreateAsync's caller responds, per spec.md §4.3.
	time.Sleep(50 * time.Millisecond)
	return run, nil
}

// Get returns the run's current snapshot, polling a still-live process
// non-blockingly and finalizing state if it has exited since the watcher
// last updated it.
func (s *Supervisor) Get(runID string) (*Run, bool) {
	s.mu.Lock()
	run, ok := s.runs[runID]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}

	run.mu.Lock()
	cmd := run.cmd
	stillRunning := run.Status == RunRunning
	run.mu.Unlock()

	if stillRunning && cmd != nil && cmd.Process != nil {
		var ws syscall.WaitStatus
		pid, err := syscall.Wait4(cmd.Process.Pid, &ws, syscall.WNOHANG, nil)
		if err == nil && pid == cmd.Process.Pid {
			s.finalize(run, ws.ExitStatus())
		}
	}

	cp := run.snapshot()
	return &cp, true
}

// Tail reads the last n lines of path, using the LRU cache keyed by path
// and the file's current size to avoid re-reading unchanged tails.
func (s *Supervisor) Tail(path string, n int) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	cacheKey := fmt.Sprintf("%s@%d", path, info.Size())
	if cached, ok := s.tailCache.Get(cacheKey); ok {
		return string(cached), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	tail := lastNLines(data, n)
	s.tailCache.Add(cacheKey, tail)
	return string(tail), nil
}

func lastNLines(data []byte, n int) []byte {
	lines := bytes.Split(data, []byte("\n"))
	if len(lines) <= n {
		return data
	}
	return bytes.Join(lines[len(lines)-n:], []byte("\n"))
}

func (s *Supervisor) watch(ctx context.Context, run *Run, adapter Adapter, input map[string]any) {
	now := time.Now().UTC()
	run.mu.Lock()
	run.Status = RunRunning
	run.StartedAt = &now
	run.mu.Unlock()

	cmdSpec, err := adapter.Resolve(ctx, input)
	if err != nil {
		// CreateAsync does not validate input, so a Resolve error is
		// reported here as the run's startup failure.
		cmdSpec = Command{StartupError: err.Error()}
	}

	if cmdSpec.StartupError != "" {
		os.WriteFile(run.StderrPath, []byte(cmdSpec.StartupError), 0o644)
		s.markFailed(run, -1, cmdSpec.StartupError)
		s.sendCallback(run)
		return
	}

	if s.cfg.Privilege != nil && s.cfg.Privilege.Username != "" {
		if _, err := user.Lookup(s.cfg.Privilege.Username); err != nil {
			reason := fmt.Sprintf("privilege drop user %q not found", s.cfg.Privilege.Username)
			os.WriteFile(run.StderrPath, []byte(reason), 0o644)
			s.markFailed(run, -1, reason)
			s.sendCallback(run)
			return
		}
	}

	stdoutFile, err := os.Create(run.StdoutPath)
	if err != nil {
		s.markFailed(run, -1, err.Error())
		s.sendCallback(run)
		return
	}
	defer stdoutFile.Close()
	stderrFile, err := os.Create(run.StderrPath)
	if err != nil {
		s.markFailed(run, -1, err.Error())
		s.sendCallback(run)
		return
	}
	defer stderrFile.Close()

	cmd := exec.Command(cmdSpec.Argv[0], cmdSpec.Argv[1:]...)
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.Env = append(os.Environ(), cmdSpec.Env...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if s.cfg.Privilege != nil && s.cfg.Privilege.Username != "" {
		if u, err := user.Lookup(s.cfg.Privilege.Username); err == nil {
			uid, _ := strconv.ParseUint(u.Uid, 10, 32)
			gid, _ := strconv.ParseUint(u.Gid, 10, 32)
			cmd.SysProcAttr.Credential = &syscall.Credential{Uid: uint32(uid), Gid: uint32(gid)}
		}
	}

	if err := cmd.Start(); err != nil {
		s.markFailed(run, -1, fmt.Sprintf("spawn failed: %v", err))
		s.sendCallback(run)
		return
	}

	run.mu.Lock()
	run.PID = cmd.Process.Pid
	run.cmd = cmd
	run.mu.Unlock()

	err = cmd.Wait()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}
	s.finalize(run, exitCode)
	s.sendCallback(run)
}

func (s *Supervisor) finalize(run *Run, exitCode int) {
	run.mu.Lock()
	if run.Status != RunRunning {
		run.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	run.ExitCode = exitCode
	run.FinishedAt = &now
	if exitCode == 0 {
		run.Status = RunSucceeded
	} else {
		run.Status = RunFailed
	}
	stdoutPath := run.StdoutPath
	run.mu.Unlock()

	adapter, err := s.registry.Resolve(run.ToolName)
	if err != nil {
		return
	}
	stdout, _ := os.ReadFile(stdoutPath)
	markers := adapter.PostProcess(string(stdout), exitCode)
	if len(markers) > 0 {
		run.mu.Lock()
		run.Markers = markers
		for k, v := range markers {
			entry := k + ":" + v
			if !containsStr(run.Artifacts, entry) {
				run.Artifacts = append(run.Artifacts, entry)
			}
		}
		run.mu.Unlock()
	}
}

func containsStr(xs []string, v string) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

func (s *Supervisor) markFailed(run *Run, exitCode int, startupErr string) {
	run.mu.Lock()
	defer run.mu.Unlock()
	now := time.Now().UTC()
	run.Status = RunFailed
	run.ExitCode = exitCode
	run.StartupErr = startupErr
	run.FinishedAt = &now
}

// callbackPayload is posted to CallbackURL on completion.
type callbackPayload struct {
	ToolRunID string   `json:"tool_run_id"`
	Status    string   `json:"status"`
	PID       int      `json:"pid"`
	ExitCode  int      `json:"exit_code"`
	Artifacts []string `json:"artifacts"`
}

// sendCallback posts the completion callback if configured and not already
// sent; CallbackSent guards against a second post. Only the watcher calls
// it: Get never posts, and a failed post is not retried.
func (s *Supervisor) sendCallback(run *Run) {
	run.mu.Lock()
	url := run.CallbackURL
	alreadySent := run.CallbackSent
	run.mu.Unlock()
	if url == "" || alreadySent {
		return
	}

	cp := run.snapshot()
	payload := callbackPayload{
		ToolRunID: cp.ID, Status: string(cp.Status), PID: cp.PID,
		ExitCode: cp.ExitCode, Artifacts: cp.Artifacts,
	}
	body, _ := json.Marshal(payload)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		s.log.Warn("callback request build failed", logging.Fields{"run_id": cp.ID, "err": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.cfg.CallbackHTTP.Do(req)
	if err != nil {
		s.log.Warn("callback post failed", logging.Fields{"run_id": cp.ID, "err": err.Error()})
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		run.mu.Lock()
		run.CallbackSent = true
		run.mu.Unlock()
	} else {
		s.log.Warn("callback rejected", logging.Fields{"run_id": cp.ID, "status": strconv.Itoa(resp.StatusCode)})
	}
}

// RunSync executes toolName's command to completion inline, for the
// synchronous /tooler/run path. It writes no artifact files; stdout/stderr
// are captured to memory buffers only.
func (s *Supervisor) RunSync(ctx context.Context, toolName string, input map[string]any) (exitCode int, stdout, stderr string, markers map[string]string, err error) {
	adapter, err := s.registry.Resolve(toolName)
	if err != nil {
		return 0, "", "", nil, err
	}
	cmdSpec, err := adapter.Resolve(ctx, input)
	if err != nil {
		return 0, "", "", nil, err
	}
	if cmdSpec.StartupError != "" {
		return -1, "", cmdSpec.StartupError, nil, nil
	}

	var outBuf, errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, cmdSpec.Argv[0], cmdSpec.Argv[1:]...)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	cmd.Env = append(os.Environ(), cmdSpec.Env...)

	runErr := cmd.Run()

	code := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			return 0, "", "", nil, fmt.Errorf("spawn failed: %w", runErr)
		}
	}
	markers = adapter.PostProcess(outBuf.String(), code)
	return code, outBuf.String(), errBuf.String(), markers, nil
}
