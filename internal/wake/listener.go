// Package wake listens for a spoken wake phrase while the overlay is idle.
// It runs its own small capture pipeline and matches short transcriptions
// against an explicit alias list.
package wake

import (
	"strings"
	"time"

	"github.com/jguida941/voiceterm-sub001/internal/audio"
	"github.com/jguida941/voiceterm-sub001/internal/capture"
	"github.com/jguida941/voiceterm-sub001/internal/stt"
	"github.com/jguida941/voiceterm-sub001/internal/vad"
)

// Aliases are the accepted wake phrases. The list is explicit: whisper's
// guesses at "voiceterm" vary, so common mishearings are enumerated rather
// than fuzzy-matched.
var Aliases = []string{
	"voice term",
	"voiceterm",
	"voice therm",
	"code x",
	"codex",
	"claud",
	"clawed",
	"claude",
}

// Detection is one wake event.
type Detection struct {
	Phrase string
	At     time.Time
}

// Listener captures short speech bursts and reports wake-phrase matches.
type Listener struct {
	// Detections delivers wake events to the event loop.
	Detections chan Detection
	// Failed is closed if the listener dies; the HUD shows Wake: ERR.
	Failed chan struct{}

	rec         *audio.Recorder
	transcriber *stt.Transcriber
	thresholdDb float64
	stop        chan struct{}
}

// NewListener builds a wake listener with its own recorder. The transcriber
// is shared with the voice worker, which serializes access internally.
func NewListener(tr *stt.Transcriber, thresholdDb float64) (*Listener, error) {
	rec, err := audio.NewRecorder(audio.DefaultChannelFrames, audio.QualityLow)
	if err != nil {
		return nil, err
	}
	return &Listener{
		Detections:  make(chan Detection, 4),
		Failed:      make(chan struct{}),
		rec:         rec,
		transcriber: tr,
		thresholdDb: thresholdDb,
		stop:        make(chan struct{}),
	}, nil
}

// Run is the listener loop: capture a short burst of speech, transcribe it,
// match it. Call on its own goroutine; Stop ends it.
func (l *Listener) Run() {
	if err := l.rec.Start(); err != nil {
		close(l.Failed)
		return
	}
	defer l.rec.Close()

	detector := vad.NewDetector(l.thresholdDb)
	var machine *capture.Machine

	for {
		select {
		case <-l.stop:
			return
		case <-l.rec.Lost():
			close(l.Failed)
			return
		case frame := <-l.rec.Frames:
			speech := detector.Process(frame.Samples)
			if machine == nil {
				if !speech {
					continue
				}
				machine = capture.New(capture.Config{
					SilenceTail: 400 * time.Millisecond,
					MinSpeech:   250 * time.Millisecond,
					MaxCapture:  2 * time.Second,
				}, nil)
			}
			if !machine.Feed(frame, speech) {
				continue
			}
			if machine.State() == capture.StateDone && !machine.TooShort() {
				if phrase, ok := l.match(machine.Buffer()); ok {
					select {
					case l.Detections <- Detection{Phrase: phrase, At: time.Now()}:
					default:
					}
				}
			}
			machine = nil
			detector.Reset()
		}
	}
}

// Stop ends the listener loop.
func (l *Listener) Stop() {
	close(l.stop)
}

// match transcribes the burst and checks it against the alias list.
func (l *Listener) match(pcm []int16) (string, bool) {
	text, err := l.transcriber.Transcribe(pcm)
	if err != nil || text == "" {
		return "", false
	}
	return MatchPhrase(text)
}

// MatchPhrase normalizes a transcript and reports the first alias it
// contains.
func MatchPhrase(text string) (string, bool) {
	norm := normalize(text)
	for _, alias := range Aliases {
		if strings.Contains(norm, alias) {
			return alias, true
		}
	}
	return "", false
}

// normalize lowercases and strips punctuation so "Claude!" matches "claude".
func normalize(text string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(text) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
