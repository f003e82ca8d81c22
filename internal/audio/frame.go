// Package audio captures microphone PCM and emits fixed-size mono 16 kHz
// frames on a bounded channel. Overflow drops the oldest frame and counts it.
package audio

import "time"

const (
	// SampleRate is the pipeline-wide PCM rate. Whisper models expect 16 kHz.
	SampleRate = 16000

	// FrameDuration is the fixed length of one AudioFrame.
	FrameDuration = 20 * time.Millisecond

	// FrameSamples is the sample count of one frame at SampleRate.
	FrameSamples = SampleRate / 50

	// DefaultChannelFrames is the default capacity of the frame channel
	// (one second of audio).
	DefaultChannelFrames = 50
)

// Frame is one fixed-duration block of mono 16-bit PCM with its capture time.
type Frame struct {
	Samples []int16
	Time    time.Time
}

// DurationOf returns the play time of n samples at SampleRate.
func DurationOf(n int) time.Duration {
	return time.Duration(n) * time.Second / SampleRate
}

// SamplesFor returns the sample count covering d at SampleRate.
func SamplesFor(d time.Duration) int {
	return int(d * SampleRate / time.Second)
}

func durationMs(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
