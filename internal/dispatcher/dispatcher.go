// Package dispatcher implements the single-worker FIFO pipeline that walks
// each task through its stages by calling out to collaborator services,
// grounded on the teacher's internal/orchestrator stage-sequencing shape
// (RetryPolicy, StageTimeouts, Prometheus metrics) generalized from video
// job stages to the chat-request pipeline's stages.
package dispatcher

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"orchestrator-core/internal/apierr"
	"orchestrator-core/internal/collaborators"
	"orchestrator-core/internal/idutil"
	"orchestrator-core/internal/logging"
	"orchestrator-core/internal/metrics"
	"orchestrator-core/internal/store"
	"orchestrator-core/internal/taskstate"
	"orchestrator-core/internal/telemetry"
)

// Collaborators bundles every external service the dispatcher calls.
type Collaborators struct {
	ASR        *collaborators.ASR
	Refine     *collaborators.Refine
	Summarizer *collaborators.Summarizer
	TTS        *collaborators.TTS
	Tooler     *collaborators.Tooler
}

// BotCallback posts the final delivery notice to the chat frontend, if
// configured. nil disables the callback (step 11 becomes a no-op).
type BotCallback interface {
	Deliver(ctx context.Context, taskID, status, summary, audioURI string) error
}

// Config controls chunked ASR and stage timeouts.
type Config struct {
	// ChunkSeconds, when > 0, splits voice input longer than this duration
	// into sequential ASR calls (SPEC_FULL.md §4.2 chunked-ASR supplement).
	ChunkSeconds float64
	StageTimeout time.Duration
}

func (c Config) stageTimeout() time.Duration {
	if c.StageTimeout <= 0 {
		return 20 * time.Second
	}
	return c.StageTimeout
}

// Dispatcher is the single background worker draining the task queue.
type Dispatcher struct {
	store    store.Store
	collab   Collaborators
	callback BotCallback
	cfg      Config
	metrics  *metrics.Metrics
	log      logging.Logger

	queue chan string
}

// New builds a Dispatcher with an internal FIFO queue of the given
// capacity.
func New(st store.Store, collab Collaborators, callback BotCallback, cfg Config, m *metrics.Metrics, log logging.Logger, queueCapacity int) *Dispatcher {
	if queueCapacity <= 0 {
		queueCapacity = 1024
	}
	return &Dispatcher{
		store:    st,
		collab:   collab,
		callback: callback,
		cfg:      cfg,
		metrics:  m,
		log:      logging.NewComponentLogger(log, "dispatcher"),
		queue:    make(chan string, queueCapacity),
	}
}

// Enqueue places a task id on the FIFO queue for processing. It never
// blocks the caller's HTTP handler beyond the queue's capacity.
func (d *Dispatcher) Enqueue(taskID string) {
	d.queue <- taskID
}

// Run drains the queue until ctx is cancelled, processing one task id at a
// time per spec.md §5's single-worker model.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-d.queue:
			d.process(ctx, taskID)
		}
	}
}

func (d *Dispatcher) process(ctx context.Context, taskID string) {
	task, err := d.store.GetTask(ctx, taskID)
	if err != nil {
		d.log.Warn("dropping unknown task", logging.Fields{"task_id": taskID, "err": err.Error()})
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.fail(ctx, taskID, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := d.run(ctx, task); err != nil {
		d.fail(ctx, taskID, err)
	}
}

func (d *Dispatcher) run(ctx context.Context, task *store.Task) error {
	stageCtx, cancel := context.WithTimeout(ctx, d.cfg.stageTimeout())
	defer cancel()

	if err := d.transition(ctx, task.ID, taskstate.Routed); err != nil {
		return err
	}

	var transcript string
	if task.InputType == store.InputVoice {
		if err := d.transition(ctx, task.ID, taskstate.Transcribing); err != nil {
			return err
		}
		text, err := d.transcribe(stageCtx, task)
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) == "" {
			return fmt.Errorf("asr returned empty transcript")
		}
		transcript = text
		if _, err := d.store.UpdateTask(ctx, task.ID, func(t *store.Task) error {
			t.Transcript = &transcript
			return nil
		}); err != nil {
			return err
		}
	}
	if err := d.transition(ctx, task.ID, taskstate.Refining); err != nil {
		return err
	}

	refineInput := transcript
	if task.InputType == store.InputText && task.RawText != nil {
		refineInput = *task.RawText
	}
	refined, _, err := d.collab.Refine.Do(stageCtx, refineInput)
	if err != nil {
		return apierr.Upstream(err, "refine call failed")
	}
	if strings.TrimSpace(refined) == "" {
		return fmt.Errorf("refine returned empty result")
	}
	if _, err := d.store.UpdateTask(ctx, task.ID, func(t *store.Task) error {
		t.RefinedText = &refined
		return nil
	}); err != nil {
		return err
	}

	if err := d.transition(ctx, task.ID, taskstate.ToolQueued); err != nil {
		return err
	}
	run := &store.ToolRun{
		ID:       idutil.NewToolRunID(),
		TaskID:   task.ID,
		ToolName: "tooler",
		Status:   store.ToolRunQueued,
		Input:    fmt.Sprintf(`{"text":%q}`, refined),
	}
	if err := d.store.CreateToolRun(ctx, run); err != nil {
		return err
	}

	if err := d.transition(ctx, task.ID, taskstate.ToolRunning); err != nil {
		return err
	}
	startedAt := time.Now().UTC()
	if _, err := d.store.UpdateToolRun(ctx, run.ID, func(r *store.ToolRun) error {
		r.Status = store.ToolRunRunning
		r.StartedAt = &startedAt
		return nil
	}); err != nil {
		return err
	}

	toolResp, err := d.collab.Tooler.Run(stageCtx, collaborators.ToolerRequest{TaskID: task.ID, Text: refined})
	if err != nil {
		return apierr.Upstream(err, "tool supervisor call failed")
	}
	finishedAt := time.Now().UTC()
	if _, err := d.store.UpdateToolRun(ctx, run.ID, func(r *store.ToolRun) error {
		r.Status = store.ToolRunSucceeded
		r.FinishedAt = &finishedAt
		r.Output = fmt.Sprintf(`{"exit_code":%d,"result_text":%q,"stderr":%q}`,
			toolResp.ExitCode, toolResp.ResultText, toolResp.Stderr)
		return nil
	}); err != nil {
		return err
	}

	if err := d.transition(ctx, task.ID, taskstate.Summarizing); err != nil {
		return err
	}
	mode := collaborators.ModeText
	if task.InputType == store.InputVoice {
		mode = collaborators.ModeAudio
	}
	summary, err := d.collab.Summarizer.Do(stageCtx, refined, toolResp.ResultText, toolResp.Stderr, mode)
	if err != nil {
		return apierr.Upstream(err, "summarizer call failed")
	}
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("summarizer returned empty result")
	}
	if _, err := d.store.UpdateTask(ctx, task.ID, func(t *store.Task) error {
		t.FinalSummary = &summary
		return nil
	}); err != nil {
		return err
	}

	var audioURI string
	if task.InputType == store.InputVoice {
		if err := d.transition(ctx, task.ID, taskstate.TTSGenerating); err != nil {
			return err
		}
		audioURI, err = d.collab.TTS.Synthesize(stageCtx, summary, task.ID)
		if err != nil {
			return apierr.Upstream(err, "tts call failed")
		}
		if _, err := d.store.UpdateTask(ctx, task.ID, func(t *store.Task) error {
			t.FinalAudioURI = &audioURI
			return nil
		}); err != nil {
			return err
		}
	}

	if err := d.transition(ctx, task.ID, taskstate.Delivered); err != nil {
		return err
	}
	if _, err := d.store.UpdateTask(ctx, task.ID, func(t *store.Task) error {
		t.FailureReason = nil
		return nil
	}); err != nil {
		return err
	}

	if d.callback != nil {
		cbCtx, cbCancel := context.WithTimeout(ctx, 5*time.Second)
		defer cbCancel()
		if err := d.callback.Deliver(cbCtx, task.ID, string(taskstate.Delivered), summary, audioURI); err != nil {
			d.log.Warn("bot callback failed", logging.Fields{"task_id": task.ID, "err": err.Error()})
		}
	}
	return nil
}

// transcribe runs the ASR stage, splitting into chunk_seconds-sized
// sequential calls when configured and the input exceeds one chunk.
func (d *Dispatcher) transcribe(ctx context.Context, task *store.Task) (string, error) {
	if task.RawAudioURI == nil {
		return "", fmt.Errorf("voice task missing raw_audio_uri")
	}
	audioURI := *task.RawAudioURI
	duration := durationFromURI(audioURI)

	if d.cfg.ChunkSeconds <= 0 || duration <= 0 || duration <= d.cfg.ChunkSeconds {
		return d.collab.ASR.Transcribe(ctx, audioURI, 0, 0)
	}

	n := int(math.Ceil(duration / d.cfg.ChunkSeconds))
	parts := make([]string, 0, n)
	for i := 0; i < n; i++ {
		offset := float64(i) * d.cfg.ChunkSeconds
		remaining := duration - offset
		chunkLen := d.cfg.ChunkSeconds
		if remaining < chunkLen {
			chunkLen = remaining
		}
		text, err := d.collab.ASR.Transcribe(ctx, audioURI, offset, chunkLen)
		if err != nil {
			return "", apierr.Upstream(err, "asr chunk %d/%d failed", i+1, n)
		}
		if t := strings.TrimSpace(text); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.TrimSpace(strings.Join(parts, " ")), nil
}

// durationFromURI reads the optional duration_seconds query parameter a
// chat frontend may attach to raw_audio_uri, e.g.
// "file:///t/x.wav?duration_seconds=32". Absence or a malformed value
// returns 0, which disables chunking (degenerates to a single ASR call).
func durationFromURI(uri string) float64 {
	idx := strings.Index(uri, "duration_seconds=")
	if idx < 0 {
		return 0
	}
	rest := uri[idx+len("duration_seconds="):]
	end := strings.IndexAny(rest, "&#")
	if end >= 0 {
		rest = rest[:end]
	}
	v, err := strconv.ParseFloat(rest, 64)
	if err != nil {
		return 0
	}
	return v
}

// transition validates and persists a state transition, recording the
// stage span/metric. It is a thin wrapper so every dispatcher step uses
// the same validator the HTTP PATCH handler uses: no bypass path exists.
func (d *Dispatcher) transition(ctx context.Context, taskID string, next taskstate.Status) error {
	ctx, span := telemetry.StartSpan(ctx, "dispatcher", "stage:"+string(next))
	defer span.End()

	start := time.Now()
	_, err := d.store.UpdateTask(ctx, taskID, func(t *store.Task) error {
		if verr := taskstate.ValidateTransition(t.Status, next); verr != nil {
			return verr
		}
		t.Status = next
		return nil
	})
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	if d.metrics != nil {
		d.metrics.ObserveStage(string(next), outcome, time.Since(start))
	}
	return err
}

// fail runs the failure routine: reload status, and if not already in a
// terminal state (DELIVERED or FAILED), set FAILED with a truncated
// failure_reason.
func (d *Dispatcher) fail(ctx context.Context, taskID string, cause error) {
	d.log.Error("task failed", logging.Fields{"task_id": taskID, "err": cause.Error()})
	reason := apierr.Truncate(cause.Error(), 500)
	_, err := d.store.UpdateTask(ctx, taskID, func(t *store.Task) error {
		if taskstate.IsTerminal(t.Status) {
			return nil
		}
		t.Status = taskstate.Failed
		t.FailureReason = &reason
		return nil
	})
	if err != nil {
		d.log.Error("failed to persist failure routine", logging.Fields{"task_id": taskID, "err": err.Error()})
	}
}
