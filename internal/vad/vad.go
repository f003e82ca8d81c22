// Package vad classifies audio frames as speech or silence using an RMS
// energy threshold with hysteresis smoothing.
package vad

import "math"

// Detector is a per-frame speech/silence classifier. Not safe for concurrent
// use; one detector belongs to one capture.
type Detector struct {
	ThresholdDb float64

	// SpeechFrames consecutive speech-energy frames are required to enter
	// speech; SilenceFrames consecutive silence frames to leave it.
	SpeechFrames  int
	SilenceFrames int

	inSpeech   bool
	speechRun  int
	silenceRun int
	lastDb     float64
}

// NewDetector returns a detector with the given threshold and default
// smoothing (3 frames to enter speech, 2 to leave).
func NewDetector(thresholdDb float64) *Detector {
	return &Detector{
		ThresholdDb:   thresholdDb,
		SpeechFrames:  3,
		SilenceFrames: 2,
	}
}

// Process classifies one frame and returns the smoothed speech decision.
func (d *Detector) Process(samples []int16) bool {
	db := RmsDb(samples)
	d.lastDb = db

	if db > d.ThresholdDb {
		d.speechRun++
		d.silenceRun = 0
		if !d.inSpeech && d.speechRun >= d.SpeechFrames {
			d.inSpeech = true
		}
	} else {
		d.silenceRun++
		d.speechRun = 0
		if d.inSpeech && d.silenceRun >= d.SilenceFrames {
			d.inSpeech = false
		}
	}
	return d.inSpeech
}

// LastDb returns the RMS level of the most recent frame, for the HUD meter.
func (d *Detector) LastDb() float64 { return d.lastDb }

// Reset clears smoothing state between captures.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechRun = 0
	d.silenceRun = 0
}

// RmsDb computes the RMS level of s16 PCM in dBFS. Silence returns -96.
func RmsDb(samples []int16) float64 {
	if len(samples) == 0 {
		return -96
	}
	var sum float64
	for _, s := range samples {
		v := float64(s) / 32768
		sum += v * v
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms <= 0 {
		return -96
	}
	db := 20 * math.Log10(rms)
	if db < -96 {
		db = -96
	}
	return db
}
