package adapters

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"orchestrator-core/internal/toolsupervisor"
)

const (
	branchMarkerPrefix = "__BRANCH__="
	commitMarkerPrefix = "__COMMIT_HASH__="
)

// GitAutocommit stages and commits any working-tree changes on a fresh
// dated branch, optionally pushing, grounded on spec.md §4.3.
type GitAutocommit struct {
	// Push, when true, appends a push step after the commit.
	Push bool
	// now is overridable in tests.
	now    func() time.Time
	statFn func(string) (os.FileInfo, error)
}

func NewGitAutocommit(push bool) *GitAutocommit {
	return &GitAutocommit{Push: push, now: time.Now, statFn: os.Stat}
}

func (g *GitAutocommit) Name() string    { return "git-autocommit" }
func (g *GitAutocommit) Version() string { return "1" }

func (g *GitAutocommit) Resolve(ctx context.Context, input map[string]any) (toolsupervisor.Command, error) {
	workdir, _ := input["workdir"].(string)
	if workdir == "" {
		return toolsupervisor.Command{}, fmt.Errorf("git-autocommit requires workdir")
	}
	if _, err := g.statFn(workdir + "/.git"); err != nil {
		return toolsupervisor.Command{}, fmt.Errorf("git-autocommit workdir %q is not a git repository", workdir)
	}

	branch := "autobot/" + g.now().UTC().Format("2006-01-02")
	subject, _ := input["subject"].(string)
	if subject == "" {
		subject = "autobot commit"
	}

	script := strings.Builder{}
	fmt.Fprintf(&script, "set -e; cd %q; git checkout -B %q; git add -A; ", workdir, branch)
	fmt.Fprintf(&script, "git diff --cached --quiet || git commit -m %q; ", subject)
	fmt.Fprintf(&script, "echo %s%s; ", branchMarkerPrefix, branch)
	fmt.Fprintf(&script, "echo %s$(git rev-parse HEAD)", commitMarkerPrefix)
	if g.Push {
		fmt.Fprintf(&script, "; git push origin %q", branch)
	}

	return toolsupervisor.Command{Argv: []string{"sh", "-c", script.String()}}, nil
}

// PostProcess scans stdout for the __BRANCH__= and __COMMIT_HASH__= marker
// lines emitted by Resolve's script and returns them keyed for the caller
// to fold into ToolRun.artifacts as "branch:<name>" / "commit_hash:<sha>".
func (g *GitAutocommit) PostProcess(stdout string, exitCode int) map[string]string {
	markers := map[string]string{}
	scanner := bufio.NewScanner(strings.NewReader(stdout))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, branchMarkerPrefix):
			markers["branch"] = strings.TrimPrefix(line, branchMarkerPrefix)
		case strings.HasPrefix(line, commitMarkerPrefix):
			markers["commit_hash"] = strings.TrimPrefix(line, commitMarkerPrefix)
		}
	}
	if len(markers) == 0 {
		return nil
	}
	return markers
}
