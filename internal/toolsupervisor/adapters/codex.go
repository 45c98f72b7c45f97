package adapters

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"orchestrator-core/internal/toolsupervisor"
)

// CodexConfig controls the codex adapter's auth/home-directory lookup and
// mock mode, sourced from internal/config.
type CodexConfig struct {
	// HomeDir is the directory codex stores its auth credential file
	// under, e.g. "~/.codex".
	HomeDir string
	// Mock short-circuits Resolve to a deterministic echo command,
	// bypassing the binary and auth-credential checks entirely.
	Mock bool
	// BinaryName is the executable looked up on PATH, defaulting to
	// "codex".
	BinaryName string
}

// Codex wraps the external `codex` CLI, grounded on the teacher's
// internal/infra/external/codex executor's auth-hint/binary-resolution
// preconditions.
type Codex struct {
	Cfg CodexConfig
	// lookPath is overridable in tests.
	lookPath func(string) (string, error)
	// statFn is overridable in tests.
	statFn func(string) (os.FileInfo, error)
}

// NewCodex builds a Codex adapter with real exec.LookPath/os.Stat.
func NewCodex(cfg CodexConfig) *Codex {
	if cfg.BinaryName == "" {
		cfg.BinaryName = "codex"
	}
	return &Codex{Cfg: cfg, lookPath: exec.LookPath, statFn: os.Stat}
}

func (c *Codex) Name() string { return "codex" }

func (c *Codex) Version() string {
	path, err := c.lookPath(c.Cfg.BinaryName)
	if err != nil {
		return "unknown"
	}
	out, err := exec.Command(path, "--version").Output()
	if err != nil {
		return "unknown"
	}
	return string(out)
}

func (c *Codex) authCredentialPath() string {
	return filepath.Join(c.Cfg.HomeDir, "auth.json")
}

func (c *Codex) Resolve(ctx context.Context, input map[string]any) (toolsupervisor.Command, error) {
	prompt, _ := input["prompt"].(string)
	if prompt == "" {
		return toolsupervisor.Command{}, fmt.Errorf("codex requires a non-empty prompt")
	}
	workdir, _ := input["workdir"].(string)
	if workdir == "" {
		return toolsupervisor.Command{}, fmt.Errorf("codex requires workdir")
	}
	info, err := c.statFn(workdir)
	if err != nil || !info.IsDir() {
		return toolsupervisor.Command{}, fmt.Errorf("codex workdir %q does not exist", workdir)
	}
	skipGitCheck, _ := input["skip_git_repo_check"].(bool)
	if !skipGitCheck {
		if gi, err := c.statFn(filepath.Join(workdir, ".git")); err != nil || gi == nil {
			return toolsupervisor.Command{}, fmt.Errorf("codex workdir %q is not a git repository", workdir)
		}
	}

	if c.Cfg.Mock {
		return toolsupervisor.Command{Argv: []string{"sh", "-c", fmt.Sprintf("echo %q", "mock codex run: "+prompt)}}, nil
	}

	binPath, err := c.lookPath(c.Cfg.BinaryName)
	if err != nil {
		return toolsupervisor.Command{StartupError: fmt.Sprintf("codex binary %q not found on PATH", c.Cfg.BinaryName)}, nil
	}
	if _, err := c.statFn(c.authCredentialPath()); err != nil {
		return toolsupervisor.Command{StartupError: fmt.Sprintf("codex auth credential missing under %q (run `codex login`)", c.Cfg.HomeDir)}, nil
	}

	mode := "readonly"
	if auto, _ := input["full_auto"].(bool); auto {
		mode = "full-auto"
	}
	argv := []string{binPath, "exec", "--mode", mode}
	if model, _ := input["model"].(string); model != "" {
		argv = append(argv, "--model", model)
	}
	if approval, _ := input["approval_policy"].(string); approval != "" {
		argv = append(argv, "--approval-policy", approval)
	}
	if jsonOut, _ := input["json"].(bool); jsonOut {
		argv = append(argv, "--json")
	}
	argv = append(argv, "--cd", workdir, prompt)

	return toolsupervisor.Command{Argv: argv, Env: []string{"CODEX_HOME=" + c.Cfg.HomeDir}}, nil
}

func (c *Codex) PostProcess(stdout string, exitCode int) map[string]string { return nil }

// IsAuthFailure reports whether stderr indicates a codex auth-credential
// failure, used by the synchronous /tooler/run path's HTTP 500 special
// case per spec.md §4.3.
func IsAuthFailure(stderr string) bool {
	for _, sub := range []string{"auth credential", "not authenticated", "codex login"} {
		if strings.Contains(stderr, sub) {
			return true
		}
	}
	return false
}
