// Package stt wraps whisper.cpp for non-streaming transcription. The GGML
// model is loaded once at process start and its inference state is reused
// across captures; the voice worker serializes jobs to it.
package stt

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	whisper "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

// ErrKind classifies transcriber failures for the HUD.
type ErrKind int

const (
	ErrModelLoad ErrKind = iota
	ErrInferenceTimeout
	ErrRuntime
)

// Error is an enum-tagged transcriber failure.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Params are the exposed whisper decoding knobs.
type Params struct {
	Language    string  // BCP-47 code, "" = en
	BeamSize    int     // 0 = whisper default
	Temperature float32 // 0 = greedy
	Timeout     time.Duration
}

// Transcriber holds the loaded model and one reusable context.
type Transcriber struct {
	params Params

	mu    sync.Mutex // one inference at a time; the context is not thread-safe
	model whisper.Model
	ctx   whisper.Context
}

// New loads the GGML model at path. Load failures are fatal at startup when
// no fallback is configured.
func New(path string, params Params) (*Transcriber, error) {
	model, err := whisper.New(path)
	if err != nil {
		return nil, &Error{Kind: ErrModelLoad, Err: fmt.Errorf("load model %s: %w", path, err)}
	}
	ctx, err := model.NewContext()
	if err != nil {
		model.Close()
		return nil, &Error{Kind: ErrModelLoad, Err: fmt.Errorf("create context: %w", err)}
	}

	lang := params.Language
	if lang == "" {
		lang = "en"
	}
	if err := ctx.SetLanguage(lang); err != nil {
		model.Close()
		return nil, &Error{Kind: ErrModelLoad, Err: fmt.Errorf("set language %q: %w", lang, err)}
	}
	ctx.SetTranslate(false)
	if params.BeamSize > 0 {
		ctx.SetBeamSize(params.BeamSize)
	}
	if params.Temperature > 0 {
		ctx.SetTemperature(params.Temperature)
	}

	return &Transcriber{params: params, model: model, ctx: ctx}, nil
}

// Transcribe runs one complete PCM buffer through the model and returns the
// sanitized text. An empty string means the model heard nothing usable.
func (t *Transcriber) Transcribe(pcm []int16) (string, error) {
	samples := make([]float32, len(pcm))
	for i, s := range pcm {
		samples[i] = float32(s) / 32768
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		text, err := t.run(samples)
		done <- result{text, err}
	}()

	timeout := t.params.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case res := <-done:
		if res.err != nil {
			return "", &Error{Kind: ErrRuntime, Err: res.err}
		}
		return Sanitize(res.text), nil
	case <-time.After(timeout):
		// The cgo call cannot be interrupted; it finishes in the background
		// while the mutex keeps the next job off the context.
		go func() { <-done }()
		return "", &Error{Kind: ErrInferenceTimeout, Err: fmt.Errorf("inference exceeded %s", timeout)}
	}
}

func (t *Transcriber) run(samples []float32) (string, error) {
	if err := t.ctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("process audio: %w", err)
	}
	var parts []string
	for {
		segment, err := t.ctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}

// Close releases the model.
func (t *Transcriber) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.model != nil {
		t.model.Close()
		t.model = nil
	}
}
