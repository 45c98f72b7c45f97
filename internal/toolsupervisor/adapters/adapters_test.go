package adapters

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDummyResolveRejectsOutOfRangeSleep(t *testing.T) {
	_, err := Dummy{}.Resolve(context.Background(), map[string]any{"sleep_seconds": 31.0})
	require.Error(t, err)
}

func TestDummyResolveDefaultsMessage(t *testing.T) {
	cmd, err := Dummy{}.Resolve(context.Background(), map[string]any{})
	require.NoError(t, err)
	require.Contains(t, cmd.Argv[2], "start: hi")
}

func fakeStat(existing map[string]bool) func(string) (os.FileInfo, error) {
	return func(path string) (os.FileInfo, error) {
		if existing[path] {
			return fakeDirInfo{}, nil
		}
		return nil, os.ErrNotExist
	}
}

type fakeDirInfo struct{ os.FileInfo }

func (fakeDirInfo) IsDir() bool { return true }

func TestCodexResolveRequiresPrompt(t *testing.T) {
	c := NewCodex(CodexConfig{})
	_, err := c.Resolve(context.Background(), map[string]any{"workdir": "/repo"})
	require.Error(t, err)
}

func TestCodexResolveRequiresGitRepoUnlessSkipped(t *testing.T) {
	c := NewCodex(CodexConfig{})
	c.statFn = fakeStat(map[string]bool{"/repo": true})
	_, err := c.Resolve(context.Background(), map[string]any{"prompt": "do it", "workdir": "/repo"})
	require.Error(t, err)

	_, err = c.Resolve(context.Background(), map[string]any{"prompt": "do it", "workdir": "/repo", "skip_git_repo_check": true})
	require.NoError(t, err)
}

func TestCodexResolveMockBypassesChecks(t *testing.T) {
	c := NewCodex(CodexConfig{Mock: true})
	c.statFn = fakeStat(map[string]bool{"/repo": true, "/repo/.git": true})
	cmd, err := c.Resolve(context.Background(), map[string]any{"prompt": "do it", "workdir": "/repo"})
	require.NoError(t, err)
	require.Empty(t, cmd.StartupError)
}

func TestCodexResolveStartupErrorWhenBinaryMissing(t *testing.T) {
	c := NewCodex(CodexConfig{})
	c.statFn = fakeStat(map[string]bool{"/repo": true, "/repo/.git": true})
	c.lookPath = func(string) (string, error) { return "", os.ErrNotExist }
	cmd, err := c.Resolve(context.Background(), map[string]any{"prompt": "do it", "workdir": "/repo"})
	require.NoError(t, err)
	require.NotEmpty(t, cmd.StartupError)
}

func TestIsAuthFailure(t *testing.T) {
	assert.True(t, IsAuthFailure("error: not authenticated, run codex login"))
	assert.False(t, IsAuthFailure("random failure"))
}

func TestGitAutocommitResolveRequiresGitRepo(t *testing.T) {
	g := NewGitAutocommit(false)
	g.statFn = fakeStat(map[string]bool{})
	_, err := g.Resolve(context.Background(), map[string]any{"workdir": "/tmp/nogit"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "not a git repository")
}

func TestGitAutocommitResolveBuildsBranchFromDate(t *testing.T) {
	g := NewGitAutocommit(false)
	g.statFn = fakeStat(map[string]bool{"/repo/.git": true})
	g.now = func() time.Time { return time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC) }
	cmd, err := g.Resolve(context.Background(), map[string]any{"workdir": "/repo"})
	require.NoError(t, err)
	require.Contains(t, cmd.Argv[2], "autobot/2026-08-01")
}

func TestGitAutocommitPostProcessExtractsMarkers(t *testing.T) {
	g := NewGitAutocommit(false)
	stdout := "some output\n__BRANCH__=autobot/2026-08-01\n__COMMIT_HASH__=abc123\n"
	markers := g.PostProcess(stdout, 0)
	require.Equal(t, "autobot/2026-08-01", markers["branch"])
	require.Equal(t, "abc123", markers["commit_hash"])
}

func TestGitAutocommitPostProcessNilWhenNoMarkers(t *testing.T) {
	g := NewGitAutocommit(false)
	require.Nil(t, g.PostProcess("no markers here", 1))
}
