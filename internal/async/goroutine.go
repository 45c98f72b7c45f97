// Package async provides a minimal panic-safe goroutine launcher shared by
// the HTTP listener and dispatcher worker, so a single misbehaving
// background task cannot crash the whole process.
package async

import (
	"runtime/debug"

	"orchestrator-core/internal/logging"
)

// Go runs fn in a goroutine guarded by panic recovery, logging through log
// if fn panics.
func Go(log logging.Logger, name string, fn func()) {
	go func() {
		defer Recover(log, name)
		fn()
	}()
}

// Recover logs panic details without crashing the process. Call it directly
// via defer when Go's goroutine wrapping isn't a fit.
func Recover(log logging.Logger, name string) {
	if r := recover(); r != nil {
		log = logging.OrNop(log)
		log.Error("goroutine panic", logging.Fields{
			"name": name, "recover": r, "stack": string(debug.Stack()),
		})
	}
}
