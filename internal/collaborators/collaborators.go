// Package collaborators implements thin POST-JSON clients against the five
// external services the dispatcher calls out to (ASR, Refine, Summarizer,
// TTS, Tooler's synchronous endpoint), each wrapped in the shared resilience
// and tracing stack.
package collaborators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"orchestrator-core/internal/httpclient"
	"orchestrator-core/internal/resilience"
	"orchestrator-core/internal/telemetry"
)

// maxResponseBytes bounds how much of a collaborator's response body this
// client will buffer. None of the five contracts return anything close to
// this; it exists to stop a misbehaving collaborator from exhausting memory.
const maxResponseBytes = 8 << 20

// Client is the shared transport every collaborator wrapper uses.
type Client struct {
	HTTP    *http.Client
	Retrier *resilience.Retrier
	Breaker *resilience.Breaker
}

// NewClient builds a Client with the default retry policy and a fresh
// circuit breaker.
func NewClient(httpClient *http.Client) *Client {
	return &Client{
		HTTP:    httpClient,
		Retrier: resilience.NewRetrier(resilience.DefaultRetryPolicy()),
		Breaker: resilience.NewBreaker(5, 0),
	}
}

// postJSON posts body as JSON to url, decodes the response into out, and
// wraps the call in the breaker and retrier. span is the OpenTelemetry span
// name used for this call (e.g. "collaborators.asr.transcribe").
func (c *Client) postJSON(ctx context.Context, span, url string, body, out any) error {
	ctx, sp := telemetry.StartSpan(ctx, "collaborators", span)
	defer sp.End()

	if err := c.Breaker.Allow(); err != nil {
		return fmt.Errorf("%s: %w", span, err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: marshal request: %w", span, err)
	}

	err = c.Retrier.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return &resilience.PermanentError{Err: err}
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return &resilience.TransientError{Err: err}
		}
		defer resp.Body.Close()

		data, readErr := httpclient.ReadAllWithLimit(resp.Body, maxResponseBytes)
		if readErr != nil {
			return &resilience.TransientError{Err: fmt.Errorf("%s: read response: %w", span, readErr)}
		}
		if resp.StatusCode >= 500 {
			return &resilience.TransientError{Err: fmt.Errorf("%s: status %d: %s", span, resp.StatusCode, string(data))}
		}
		if resp.StatusCode >= 400 {
			return &resilience.PermanentError{Err: fmt.Errorf("%s: status %d: %s", span, resp.StatusCode, string(data))}
		}
		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return &resilience.PermanentError{Err: fmt.Errorf("%s: decode response: %w", span, err)}
			}
		}
		return nil
	})

	if err != nil {
		c.Breaker.RecordFailure()
		return err
	}
	c.Breaker.RecordSuccess()
	return nil
}

// ASR wraps the speech-recognition collaborator.
type ASR struct {
	BaseURL string
	Client  *Client
}

type asrRequest struct {
	AudioURI       string  `json:"audio_uri"`
	OffsetSeconds  float64 `json:"offset_seconds,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
}

type asrResponse struct {
	TranscriptText string `json:"transcript_text"`
	Transcript     string `json:"transcript"`
}

// Transcribe calls POST /asr/transcribe and returns the transcript text,
// tolerating either "transcript_text" or "transcript" in the response.
func (a *ASR) Transcribe(ctx context.Context, audioURI string, offsetSeconds, durationSeconds float64) (string, error) {
	var resp asrResponse
	req := asrRequest{AudioURI: audioURI, OffsetSeconds: offsetSeconds, DurationSeconds: durationSeconds}
	if err := a.Client.postJSON(ctx, "asr.transcribe", a.BaseURL+"/asr/transcribe", req, &resp); err != nil {
		return "", err
	}
	if resp.TranscriptText != "" {
		return resp.TranscriptText, nil
	}
	return resp.Transcript, nil
}

// Refine wraps the text-refinement collaborator.
type Refine struct {
	BaseURL string
	Client  *Client
}

type refineRequest struct {
	Text     string   `json:"text"`
	Projects []string `json:"projects"`
}

type refineResponse struct {
	RefinedText         string  `json:"refined_text"`
	InferredProjectSlug *string `json:"inferred_project_slug"`
}

// Do calls POST /refine with projects always empty, per the declared
// resolution that richer project inference is out of scope.
func (r *Refine) Do(ctx context.Context, text string) (refinedText string, inferredProjectSlug *string, err error) {
	var resp refineResponse
	req := refineRequest{Text: text, Projects: []string{}}
	if err := r.Client.postJSON(ctx, "refine", r.BaseURL+"/refine", req, &resp); err != nil {
		return "", nil, err
	}
	return resp.RefinedText, resp.InferredProjectSlug, nil
}

// Summarizer wraps the summarization collaborator.
type Summarizer struct {
	BaseURL string
	Client  *Client
}

type summarizeRequest struct {
	RefinedText string `json:"refined_text"`
	ToolStdout  string `json:"tool_stdout"`
	ToolStderr  string `json:"tool_stderr"`
	Mode        string `json:"mode"`
}

type summarizeResponse struct {
	SummaryText string `json:"summary_text"`
	Summary     string `json:"summary"`
}

// Mode values accepted by the Summarizer contract.
const (
	ModeText  = "text"
	ModeAudio = "audio"
)

// Do calls POST /summarize and returns the summary, tolerating either
// "summary_text" or "summary" in the response.
func (s *Summarizer) Do(ctx context.Context, refinedText, toolStdout, toolStderr, mode string) (string, error) {
	var resp summarizeResponse
	req := summarizeRequest{RefinedText: refinedText, ToolStdout: toolStdout, ToolStderr: toolStderr, Mode: mode}
	if err := s.Client.postJSON(ctx, "summarize", s.BaseURL+"/summarize", req, &resp); err != nil {
		return "", err
	}
	if resp.SummaryText != "" {
		return resp.SummaryText, nil
	}
	return resp.Summary, nil
}

// TTS wraps the text-to-speech collaborator.
type TTS struct {
	BaseURL string
	Client  *Client
}

type ttsRequest struct {
	Text   string `json:"text"`
	TaskID string `json:"task_id"`
}

type ttsResponse struct {
	AudioURI string `json:"audio_uri"`
}

// Synthesize calls POST /tts/synthesize and returns the synthesized
// audio's URI.
func (t *TTS) Synthesize(ctx context.Context, text, taskID string) (string, error) {
	var resp ttsResponse
	req := ttsRequest{Text: text, TaskID: taskID}
	if err := t.Client.postJSON(ctx, "tts.synthesize", t.BaseURL+"/tts/synthesize", req, &resp); err != nil {
		return "", err
	}
	return resp.AudioURI, nil
}

// Tooler wraps the Tool Supervisor's synchronous /tooler/run endpoint.
type Tooler struct {
	BaseURL string
	Client  *Client
}

// ToolerRequest is the dispatcher's inline tool call body.
type ToolerRequest struct {
	TaskID   string         `json:"task_id"`
	Text     string         `json:"text,omitempty"`
	ToolName string         `json:"tool_name,omitempty"`
	Input    map[string]any `json:"input,omitempty"`
}

// ToolerResponse is the Tool Supervisor's synchronous result.
type ToolerResponse struct {
	Tool       string `json:"tool"`
	ExitCode   int    `json:"exit_code"`
	ResultText string `json:"result_text"`
	Stderr     string `json:"stderr"`
	Branch     string `json:"branch,omitempty"`
	CommitHash string `json:"commit_hash,omitempty"`
}

// Run calls POST /tooler/run. Per the declared resolution of the spec's
// open question, the Tool Supervisor returns HTTP 200 even when the
// subprocess exits non-zero (ExitCode != 0, Stderr populated); only a true
// infrastructure failure (non-2xx) surfaces as a Go error here.
func (t *Tooler) Run(ctx context.Context, req ToolerRequest) (*ToolerResponse, error) {
	var resp ToolerResponse
	if err := t.Client.postJSON(ctx, "tooler.run", t.BaseURL+"/tooler/run", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// BotCallback posts the final delivery notice back to the chat frontend.
// It satisfies dispatcher.BotCallback; a nil *BotCallback or empty BaseURL
// makes step 11 of the pipeline a no-op.
type BotCallback struct {
	BaseURL string
	Client  *Client
}

type botCallbackRequest struct {
	TaskID   string `json:"task_id"`
	Status   string `json:"status"`
	Summary  string `json:"summary,omitempty"`
	AudioURI string `json:"audio_uri,omitempty"`
}

// Deliver calls POST /bot/callback. A nil receiver or empty BaseURL is
// treated as "no callback configured" and returns nil without a request.
func (b *BotCallback) Deliver(ctx context.Context, taskID, status, summary, audioURI string) error {
	if b == nil || b.BaseURL == "" {
		return nil
	}
	req := botCallbackRequest{TaskID: taskID, Status: status, Summary: summary, AudioURI: audioURI}
	return b.Client.postJSON(ctx, "bot.callback", b.BaseURL+"/bot/callback", req, nil)
}
