package async

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orchestrator-core/internal/logging"
)

func TestGoRunsFunction(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	ran := false
	Go(logging.Nop(), "test.ok", func() {
		defer wg.Done()
		ran = true
	})
	wg.Wait()
	assert.True(t, ran)
}

func TestGoRecoversPanicWithoutCrashing(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)

	calls := &recordingLogger{}
	Go(calls, "test.panic", func() {
		defer wg.Done()
		panic("boom")
	})
	wg.Wait()

	calls.mu.Lock()
	defer calls.mu.Unlock()
	require.Len(t, calls.errors, 1)
	assert.Equal(t, "test.panic", calls.errors[0]["name"])
	assert.Equal(t, "boom", calls.errors[0]["recover"])
}

func TestRecoverNoPanicIsNoop(t *testing.T) {
	calls := &recordingLogger{}
	func() {
		defer Recover(calls, "test.clean")
	}()
	calls.mu.Lock()
	defer calls.mu.Unlock()
	assert.Empty(t, calls.errors)
}

// recordingLogger captures Error calls so panic recovery can be asserted on
// without depending on the text logger's output format.
type recordingLogger struct {
	mu     sync.Mutex
	errors []logging.Fields
}

func (r *recordingLogger) Debug(string, logging.Fields) {}
func (r *recordingLogger) Info(string, logging.Fields)  {}
func (r *recordingLogger) Warn(string, logging.Fields)  {}
func (r *recordingLogger) Error(msg string, fields logging.Fields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errors = append(r.errors, fields)
}
func (r *recordingLogger) With(logging.Fields) logging.Logger { return r }
