package audio

import (
	"testing"
	"time"
)

func TestDurationOf(t *testing.T) {
	if d := DurationOf(SampleRate); d != time.Second {
		t.Errorf("DurationOf(SampleRate) = %v, want 1s", d)
	}
	if d := DurationOf(FrameSamples); d != FrameDuration {
		t.Errorf("DurationOf(FrameSamples) = %v, want %v", d, FrameDuration)
	}
}

func TestSamplesFor(t *testing.T) {
	if n := SamplesFor(200 * time.Millisecond); n != 3200 {
		t.Errorf("SamplesFor(200ms) = %d, want 3200", n)
	}
}

func TestDownmixAverages(t *testing.T) {
	stereo := []int16{100, 200, -100, -200}
	mono := Downmix(stereo, 2)
	if len(mono) != 2 || mono[0] != 150 || mono[1] != -150 {
		t.Errorf("Downmix = %v", mono)
	}
}

func TestDownmixMonoPassthrough(t *testing.T) {
	in := []int16{1, 2, 3}
	if got := Downmix(in, 1); &got[0] != &in[0] {
		t.Error("mono downmix should not copy")
	}
}

func TestResampleHalvesLength(t *testing.T) {
	in := make([]int16, 480) // 10 ms at 48 kHz
	out := Resample(in, 48000, 16000, QualityLow)
	if len(out) != 160 {
		t.Errorf("len = %d, want 160", len(out))
	}
}

func TestResampleSameRateIsIdentity(t *testing.T) {
	in := []int16{1, 2, 3}
	if got := Resample(in, 16000, 16000, QualityLow); &got[0] != &in[0] {
		t.Error("same-rate resample should not copy")
	}
}

func TestResamplePreservesConstantSignal(t *testing.T) {
	in := make([]int16, 4800)
	for i := range in {
		in[i] = 1000
	}
	for _, q := range []Quality{QualityLow, QualityHigh} {
		out := Resample(in, 48000, 16000, q)
		for i, v := range out {
			if v < 990 || v > 1010 {
				t.Fatalf("quality %v: sample %d = %d, want ~1000", q, i, v)
			}
		}
	}
}

func TestLookbackRingRetention(t *testing.T) {
	r := NewLookbackRing(100) // 1600 samples
	for i := 0; i < 20; i++ {
		r.Push(Frame{Samples: make([]int16, FrameSamples)})
	}
	if r.Len() != 1600 {
		t.Errorf("Len = %d, want 1600", r.Len())
	}
	out := r.Drain()
	if len(out) != 1600 {
		t.Errorf("Drain = %d samples, want 1600", len(out))
	}
	if r.Len() != 0 {
		t.Error("ring not empty after drain")
	}
}

func TestLookbackRingOrder(t *testing.T) {
	r := NewLookbackRing(40) // two frames
	a := make([]int16, FrameSamples)
	b := make([]int16, FrameSamples)
	c := make([]int16, FrameSamples)
	a[0], b[0], c[0] = 1, 2, 3
	r.Push(Frame{Samples: a})
	r.Push(Frame{Samples: b})
	r.Push(Frame{Samples: c}) // evicts a
	out := r.Drain()
	if out[0] != 2 || out[FrameSamples] != 3 {
		t.Errorf("Drain order wrong: first=%d second=%d", out[0], out[FrameSamples])
	}
}

func TestLookbackRingZeroRetention(t *testing.T) {
	r := NewLookbackRing(0)
	r.Push(Frame{Samples: make([]int16, FrameSamples)})
	if r.Len() != 0 {
		t.Errorf("Len = %d, want 0", r.Len())
	}
}
