package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"
)

// ErrDeviceLost is reported when the capture device stops outside of Stop.
// There is no hot-plug recovery: the current voice job terminates.
var ErrDeviceLost = errors.New("audio device lost")

const preferredDeviceRate = 48000

// Recorder owns the capture device. It converts whatever the device delivers
// to mono 16 kHz and emits fixed-size frames on Frames. The device callback
// never blocks: on overflow the oldest frame is dropped and counted.
type Recorder struct {
	Frames chan Frame

	quality Quality

	ctx    *malgo.AllocatedContext
	device *malgo.Device

	mu       sync.Mutex
	running  bool
	stopping bool
	carry    []int16 // resampled samples not yet filling a frame

	dropped atomic.Uint64

	// lost is closed when the device disappears mid-capture; Start replaces
	// it so one loss only fails the job that was running at the time.
	lost       chan struct{}
	lostClosed bool
}

// NewRecorder initializes the audio context. The device is not opened until
// Start.
func NewRecorder(channelFrames int, q Quality) (*Recorder, error) {
	if channelFrames <= 0 {
		channelFrames = DefaultChannelFrames
	}
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	return &Recorder{
		Frames:  make(chan Frame, channelFrames),
		quality: q,
		ctx:     ctx,
		lost:    make(chan struct{}),
	}, nil
}

// Start opens the default capture device and begins emitting frames. After
// a device loss it reopens from scratch; the loss only terminated the job
// that was capturing at the time.
func (r *Recorder) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.running {
		return nil
	}
	if r.device != nil {
		// Left over from a device loss; the stop callback cannot uninit.
		r.device.Uninit()
		r.device = nil
	}

	cfg := malgo.DefaultDeviceConfig(malgo.Capture)
	cfg.Capture.Format = malgo.FormatS16
	cfg.Capture.Channels = 2
	cfg.SampleRate = preferredDeviceRate
	cfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, in []byte, frameCount uint32) {
			r.onData(in, int(frameCount))
		},
		Stop: func() {
			r.mu.Lock()
			defer r.mu.Unlock()
			if r.stopping {
				return
			}
			// Unexpected stop: the device is gone. Mark not running so a
			// later Start reopens it.
			r.running = false
			if !r.lostClosed {
				r.lostClosed = true
				close(r.lost)
			}
		},
	}

	device, err := malgo.InitDevice(r.ctx.Context, cfg, callbacks)
	if err != nil {
		return fmt.Errorf("open capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return fmt.Errorf("start capture device: %w", err)
	}
	r.device = device
	r.running = true
	r.carry = r.carry[:0]
	r.lost = make(chan struct{})
	r.lostClosed = false
	return nil
}

// onData runs on the miniaudio callback thread. It must not block.
func (r *Recorder) onData(in []byte, frameCount int) {
	channels := 2
	samples := make([]int16, frameCount*channels)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(in[2*i:]))
	}
	mono := Downmix(samples, channels)
	pcm := Resample(mono, preferredDeviceRate, SampleRate, r.quality)

	r.mu.Lock()
	r.carry = append(r.carry, pcm...)
	now := time.Now()
	for len(r.carry) >= FrameSamples {
		frame := Frame{Samples: append([]int16(nil), r.carry[:FrameSamples]...), Time: now}
		r.carry = r.carry[FrameSamples:]
		select {
		case r.Frames <- frame:
		default:
			// Drop the oldest queued frame to make room.
			select {
			case <-r.Frames:
				r.dropped.Add(1)
			default:
			}
			select {
			case r.Frames <- frame:
			default:
				r.dropped.Add(1)
			}
		}
	}
	r.mu.Unlock()
}

// Stop halts capture. Frames already queued remain readable.
func (r *Recorder) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.stopping = true
	device := r.device
	r.device = nil
	r.running = false
	r.mu.Unlock()

	device.Uninit()

	r.mu.Lock()
	r.stopping = false
	r.mu.Unlock()
}

// Close releases the audio context. The recorder is unusable afterwards.
func (r *Recorder) Close() {
	r.Stop()
	_ = r.ctx.Uninit()
	r.ctx.Free()
}

// Lost is closed if the current device disappears while capturing. Callers
// must re-read it each select iteration: Start installs a fresh channel.
func (r *Recorder) Lost() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lost
}

// Dropped returns the cumulative count of frames dropped on overflow.
func (r *Recorder) Dropped() uint64 { return r.dropped.Load() }
