// Package adapters implements the built-in Tool Run Supervisor adapters:
// dummy, codex, git-autocommit, grounded on the teacher's
// internal/infra/coding/adapters (codex.go, helpers.go) shape.
package adapters

import (
	"context"
	"fmt"

	"orchestrator-core/internal/toolsupervisor"
)

// Dummy echoes a configurable message and sleeps a bounded duration, used
// by scenario 5's smoke test and local development.
type Dummy struct{}

func (Dummy) Name() string    { return "dummy" }
func (Dummy) Version() string { return "1" }

func (Dummy) Resolve(ctx context.Context, input map[string]any) (toolsupervisor.Command, error) {
	message, _ := input["message"].(string)
	if message == "" {
		message = "hi"
	}
	sleepSeconds := 0.0
	if v, ok := input["sleep_seconds"].(float64); ok {
		sleepSeconds = v
	}
	if sleepSeconds < 0 || sleepSeconds > 30 {
		return toolsupervisor.Command{}, fmt.Errorf("sleep_seconds must be within [0, 30]")
	}
	script := fmt.Sprintf("echo start: %s && sleep %g && echo done", message, sleepSeconds)
	return toolsupervisor.Command{Argv: []string{"sh", "-c", script}}, nil
}

func (Dummy) PostProcess(stdout string, exitCode int) map[string]string { return nil }
