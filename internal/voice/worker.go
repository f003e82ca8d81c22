// Package voice runs one voice job at a time: microphone frames through VAD
// and the capture machine, then the finished buffer through STT. Lifecycle
// messages flow to the event loop over a channel; all cancellation is
// cooperative and observed within 200 ms.
package voice

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/jguida941/voiceterm-sub001/internal/audio"
	"github.com/jguida941/voiceterm-sub001/internal/capture"
	"github.com/jguida941/voiceterm-sub001/internal/stt"
	"github.com/jguida941/voiceterm-sub001/internal/vad"
)

// Origin records what triggered a voice job.
type Origin int

const (
	OriginManual Origin = iota
	OriginAuto
	OriginWake
)

func (o Origin) String() string {
	switch o {
	case OriginAuto:
		return "auto-voice"
	case OriginWake:
		return "wake"
	default:
		return "manual"
	}
}

// Transcript is the immutable result of one successful voice job.
type Transcript struct {
	Text      string
	SttMs     int
	CaptureMs int
	Origin    Origin
}

// MsgKind tags a lifecycle message.
type MsgKind int

const (
	MsgStarted MsgKind = iota
	MsgMeter
	MsgPartial
	MsgTranscript
	MsgEmpty
	MsgError
	MsgCancelled
)

// ErrKind classifies voice job failures for the HUD.
type ErrKind int

const (
	ErrDeviceLost ErrKind = iota
	ErrModelLoad
	ErrInferenceTimeout
	ErrRuntime
)

// Message is one voice-worker lifecycle event. Messages for a single job are
// ordered: Started, zero or more Meter/Partial, then exactly one terminal
// message (Transcript, Empty, Error, or Cancelled).
type Message struct {
	Kind       MsgKind
	Origin     Origin
	Level      float64 // MsgMeter: RMS dBFS
	Stage      string  // MsgPartial: human-readable stage
	Transcript Transcript
	ErrKind    ErrKind
	Err        error
}

// Config holds the capture parameters a job starts with.
type Config struct {
	ThresholdDb   float64
	SilenceTail   time.Duration
	MinSpeech     time.Duration
	MaxCapture    time.Duration
	LookbackMs    int
	MeterInterval time.Duration
}

type ctrlKind int

const (
	ctrlStart ctrlKind = iota
	ctrlFinish
	ctrlCancel
	ctrlThreshold
	ctrlShutdown
)

type ctrlMsg struct {
	kind        ctrlKind
	origin      Origin
	cfg         Config
	thresholdDb float64
}

// Worker owns the recorder and serializes voice jobs to the transcriber.
type Worker struct {
	// Events carries lifecycle messages to the event loop. Sends that would
	// block are counted and dropped only for Meter messages; terminal
	// messages always block until delivered.
	Events chan Message

	recorder    *audio.Recorder
	transcriber *stt.Transcriber

	ctrl         chan ctrlMsg
	done         chan struct{}
	droppedMeter atomic.Uint64
}

// NewWorker wires the recorder and transcriber into a worker. Call Run on
// its own goroutine.
func NewWorker(rec *audio.Recorder, tr *stt.Transcriber) *Worker {
	return &Worker{
		Events:   make(chan Message, 64),
		recorder: rec,
		ctrl:     make(chan ctrlMsg, 8),
		done:     make(chan struct{}),
		transcriber: tr,
	}
}

// Start begins a voice job. A start while a capture is active finishes that
// capture rather than restarting it; a start while the previous job is still
// transcribing is ignored.
func (w *Worker) Start(origin Origin, cfg Config) {
	w.ctrl <- ctrlMsg{kind: ctrlStart, origin: origin, cfg: cfg}
}

// Finish ends the active capture immediately (stop hotkey or send-now).
func (w *Worker) Finish() {
	w.ctrl <- ctrlMsg{kind: ctrlFinish}
}

// Cancel aborts the active job without transcribing.
func (w *Worker) Cancel() {
	w.ctrl <- ctrlMsg{kind: ctrlCancel}
}

// SetThreshold adjusts the VAD threshold for the active and future jobs.
func (w *Worker) SetThreshold(db float64) {
	w.ctrl <- ctrlMsg{kind: ctrlThreshold, thresholdDb: db}
}

// Shutdown stops the worker loop, waiting a bounded time for it to finish.
func (w *Worker) Shutdown() {
	select {
	case w.ctrl <- ctrlMsg{kind: ctrlShutdown}:
	default:
	}
	select {
	case <-w.done:
	case <-time.After(500 * time.Millisecond):
	}
}

// DroppedMeters returns how many meter updates were dropped on backpressure.
func (w *Worker) DroppedMeters() uint64 { return w.droppedMeter.Load() }

// DroppedFrames returns the recorder's cumulative overflow count.
func (w *Worker) DroppedFrames() uint64 { return w.recorder.Dropped() }

type job struct {
	origin     Origin
	cfg        Config
	machine    *capture.Machine
	detector   *vad.Detector
	lastMeter  time.Time
	startedAt  time.Time
}

// sttOutcome is the result of one background transcription.
type sttOutcome struct {
	origin    Origin
	captureMs int
	text      string
	sttMs     int
	err       error
}

// Run is the worker loop. Frames are consumed continuously: outside a job
// they feed the rolling lookback ring, inside a job they feed the capture
// machine. Transcription runs on its own goroutine so Cancel and Shutdown
// stay observable while the model is busy.
func (w *Worker) Run() {
	defer close(w.done)

	var (
		active       *job
		lookback     *audio.LookbackRing
		lostCh       <-chan struct{}
		sttDone      chan sttOutcome // nil while no transcription is in flight
		sttAbandoned bool            // the in-flight result was cancelled
	)

	for {
		select {
		case msg := <-w.ctrl:
			switch msg.kind {
			case ctrlStart:
				if active != nil {
					// Second start while capturing acts as finish.
					sttDone, sttAbandoned = w.finalize(active), false
					active = nil
					continue
				}
				if sttDone != nil {
					continue // previous job still finalizing
				}
				if err := w.recorder.Start(); err != nil {
					w.emit(Message{Kind: MsgError, Origin: msg.origin, ErrKind: ErrDeviceLost, Err: err})
					continue
				}
				lostCh = w.recorder.Lost()
				if lookback == nil {
					lookback = audio.NewLookbackRing(msg.cfg.LookbackMs)
				}
				cfg := msg.cfg
				if msg.origin == OriginManual {
					cfg.SilenceTail += capture.ManualGrace
				}
				active = &job{
					origin: msg.origin,
					cfg:    cfg,
					machine: capture.New(capture.Config{
						SilenceTail: cfg.SilenceTail,
						MinSpeech:   cfg.MinSpeech,
						MaxCapture:  cfg.MaxCapture,
					}, lookback),
					detector:  vad.NewDetector(cfg.ThresholdDb),
					startedAt: time.Now(),
				}
				w.emit(Message{Kind: MsgStarted, Origin: msg.origin})

			case ctrlFinish:
				if active != nil {
					active.machine.FinishManual()
					sttDone, sttAbandoned = w.finalize(active), false
					active = nil
				}

			case ctrlCancel:
				if active != nil {
					w.emit(Message{Kind: MsgCancelled, Origin: active.origin})
					active = nil
				} else if sttDone != nil && !sttAbandoned {
					// Cancel during transcription: the cgo call cannot be
					// interrupted, so the result is discarded on arrival.
					sttAbandoned = true
					w.emit(Message{Kind: MsgCancelled})
				}

			case ctrlThreshold:
				if active != nil {
					active.detector.ThresholdDb = msg.thresholdDb
				}

			case ctrlShutdown:
				if active != nil {
					w.emit(Message{Kind: MsgCancelled, Origin: active.origin})
				} else if sttDone != nil && !sttAbandoned {
					w.emit(Message{Kind: MsgCancelled})
				}
				w.recorder.Stop()
				return
			}

		case res := <-sttDone:
			abandoned := sttAbandoned
			sttDone, sttAbandoned = nil, false
			if !abandoned {
				w.emitOutcome(res)
			}

		case frame := <-w.recorder.Frames:
			if active == nil {
				if lookback != nil {
					lookback.Push(frame)
				}
				continue
			}
			speech := active.detector.Process(frame.Samples)
			w.meter(active, frame.Time)
			if active.machine.Feed(frame, speech) {
				sttDone, sttAbandoned = w.finalize(active), false
				active = nil
			}

		case <-lostCh:
			lostCh = nil // closed until the next successful Start
			if active != nil {
				w.emit(Message{Kind: MsgError, Origin: active.origin, ErrKind: ErrDeviceLost, Err: audio.ErrDeviceLost})
				active = nil
			}
		}
	}
}

// meter emits a throttled level update.
func (w *Worker) meter(j *job, now time.Time) {
	interval := j.cfg.MeterInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	if now.Sub(j.lastMeter) < interval {
		return
	}
	j.lastMeter = now
	select {
	case w.Events <- Message{Kind: MsgMeter, Origin: j.origin, Level: j.detector.LastDb()}:
	default:
		w.droppedMeter.Add(1)
	}
}

// finalize ends a capture: Empty and model errors resolve immediately and
// return nil; otherwise transcription starts on its own goroutine and the
// returned channel delivers the outcome to the Run loop.
func (w *Worker) finalize(j *job) chan sttOutcome {
	if j.machine.State() == capture.StateEmpty || j.machine.TooShort() {
		w.emit(Message{Kind: MsgEmpty, Origin: j.origin})
		return nil
	}
	if w.transcriber == nil {
		w.emit(Message{Kind: MsgError, Origin: j.origin, ErrKind: ErrModelLoad,
			Err: errors.New("no whisper model configured")})
		return nil
	}

	w.emit(Message{Kind: MsgPartial, Origin: j.origin, Stage: "Finalizing capture..."})

	out := sttOutcome{
		origin:    j.origin,
		captureMs: int(j.machine.CaptureDuration() / time.Millisecond),
	}
	buf := j.machine.Buffer()
	done := make(chan sttOutcome, 1)
	go func() {
		start := time.Now()
		out.text, out.err = w.transcriber.Transcribe(buf)
		out.sttMs = int(time.Since(start) / time.Millisecond)
		done <- out
	}()
	return done
}

// emitOutcome translates a finished transcription into its terminal message.
func (w *Worker) emitOutcome(res sttOutcome) {
	if res.err != nil {
		w.emit(Message{Kind: MsgError, Origin: res.origin, ErrKind: classify(res.err), Err: res.err})
		return
	}
	if res.text == "" {
		w.emit(Message{Kind: MsgEmpty, Origin: res.origin})
		return
	}
	w.emit(Message{Kind: MsgTranscript, Origin: res.origin, Transcript: Transcript{
		Text:      res.text,
		SttMs:     res.sttMs,
		CaptureMs: res.captureMs,
		Origin:    res.origin,
	}})
}

func classify(err error) ErrKind {
	var sttErr *stt.Error
	if errors.As(err, &sttErr) {
		switch sttErr.Kind {
		case stt.ErrModelLoad:
			return ErrModelLoad
		case stt.ErrInferenceTimeout:
			return ErrInferenceTimeout
		}
	}
	return ErrRuntime
}

// emit delivers a non-meter message, blocking until the loop accepts it.
func (w *Worker) emit(m Message) {
	w.Events <- m
}
