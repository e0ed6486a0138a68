//go:build !nocgo
// +build !nocgo

package tts

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process
var (
	otoContext     *oto.Context
	otoContextOnce sync.Once
	otoContextErr  error
)

// ProductionAudioContext implements AudioContext on the system audio device.
// A single oto player pulls float32 frames from a timeline, so scheduled
// buffers play at exact sample offsets and silence fills the gaps.
type ProductionAudioContext struct {
	mu     sync.Mutex
	tl     *timeline
	player *oto.Player
}

// timelineReader adapts a timeline to the io.Reader oto pulls from
type timelineReader struct {
	tl *timeline
}

// Read renders len(p)/4 mono frames. It never returns io.EOF so the
// device keeps running between narrations.
func (r timelineReader) Read(p []byte) (int, error) {
	frames := len(p) / 4
	r.tl.advance(frames, p[:frames*4])
	return frames * 4, nil
}

// platformBufferSize returns the device buffer size for the current OS
func platformBufferSize() time.Duration {
	switch runtime.GOOS {
	case "darwin":
		// CoreAudio benefits from larger buffers
		return 100 * time.Millisecond
	case "windows":
		return 80 * time.Millisecond
	default:
		return 50 * time.Millisecond
	}
}

// NewProductionAudioContext opens the audio device. bufferSize of zero
// selects a platform default.
func NewProductionAudioContext(bufferSize time.Duration) (*ProductionAudioContext, error) {
	if bufferSize <= 0 {
		bufferSize = platformBufferSize()
	}

	otoContextOnce.Do(func() {
		options := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatFloat32LE,
			BufferSize:   bufferSize,
		}

		log.Debug("Initializing production audio context",
			"sample_rate", options.SampleRate,
			"channels", options.ChannelCount,
			"buffer_size", options.BufferSize)

		c, ready, err := oto.NewContext(options)
		if err != nil {
			otoContextErr = fmt.Errorf("failed to create audio context: %w", err)
			return
		}

		select {
		case <-ready:
			otoContext = c
		case <-time.After(5 * time.Second):
			otoContextErr = fmt.Errorf("audio context initialization timeout")
		}
	})
	if otoContextErr != nil {
		return nil, otoContextErr
	}

	pac := &ProductionAudioContext{tl: newTimeline(SampleRate, true)}
	pac.player = otoContext.NewPlayer(timelineReader{tl: pac.tl})
	pac.player.Play()

	log.Debug("Production audio context initialized successfully")
	return pac, nil
}

// CurrentTime returns seconds of audio handed to the device
func (pac *ProductionAudioContext) CurrentTime() float64 {
	return pac.tl.currentTime()
}

// State returns the context state
func (pac *ProductionAudioContext) State() ContextState {
	return pac.tl.getState()
}

// Resume restarts output after Suspend
func (pac *ProductionAudioContext) Resume(ctx context.Context) error {
	pac.mu.Lock()
	defer pac.mu.Unlock()

	switch pac.tl.getState() {
	case ContextClosed:
		return ErrContextClosed
	case ContextRunning:
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := otoContext.Resume(); err != nil {
		return fmt.Errorf("failed to resume audio context: %w", err)
	}
	pac.player.Play()
	pac.tl.setState(ContextRunning)
	return nil
}

// Suspend pauses the device
func (pac *ProductionAudioContext) Suspend() error {
	pac.mu.Lock()
	defer pac.mu.Unlock()

	if pac.tl.getState() == ContextClosed {
		return ErrContextClosed
	}
	pac.player.Pause()
	if err := otoContext.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend audio context: %w", err)
	}
	pac.tl.setState(ContextSuspended)
	return nil
}

// Start places buf on the timeline
func (pac *ProductionAudioContext) Start(buf *AudioBuffer, at float64, onEnded func()) (Source, error) {
	return pac.tl.start(buf, at, onEnded)
}

// SampleRate returns the sample rate
func (pac *ProductionAudioContext) SampleRate() int {
	return SampleRate
}

// Close stops the player. The oto context itself lives for the process.
func (pac *ProductionAudioContext) Close() error {
	pac.mu.Lock()
	defer pac.mu.Unlock()

	if pac.tl.getState() == ContextClosed {
		return nil
	}
	pac.tl.close()
	pac.player.Pause()
	return pac.player.Close()
}
