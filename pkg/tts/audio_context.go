package tts

import (
	"context"
	"fmt"
)

// AudioContext is the audio output engine that mixes and outputs scheduled
// sample buffers. Its clock starts at zero and advances in seconds of
// rendered audio.
// Implementations exist for real hardware (oto) and for tests (mock).
type AudioContext interface {
	// CurrentTime returns the output clock in seconds
	CurrentTime() float64

	// State returns whether the context is running, suspended or closed
	State() ContextState

	// Resume restarts a suspended context. It is a no-op when running.
	Resume(ctx context.Context) error

	// Suspend pauses the output clock
	Suspend() error

	// Start schedules buf to begin at the given clock time. onEnded is
	// called once when the buffer finishes playing naturally. It is never
	// called for a source stopped with Source.Stop. Start on a closed
	// context returns ErrContextClosed.
	Start(buf *AudioBuffer, at float64, onEnded func()) (Source, error)

	// SampleRate returns the output sample rate
	SampleRate() int

	// Close releases the output device
	Close() error
}

// Source is a handle to one scheduled buffer.
type Source interface {
	// Stop silences the source immediately. Stopping a finished source
	// returns an error that callers may ignore.
	Stop() error
}

// ContextState describes the output context lifecycle
type ContextState int

const (
	// ContextRunning means the clock is advancing
	ContextRunning ContextState = iota
	// ContextSuspended means output is paused until Resume
	ContextSuspended
	// ContextClosed means the context can no longer be used
	ContextClosed
)

// String returns the string representation of the state
func (s ContextState) String() string {
	switch s {
	case ContextRunning:
		return "running"
	case ContextSuspended:
		return "suspended"
	case ContextClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// AudioContextType represents the type of audio context to create
type AudioContextType int

const (
	// AudioContextProduction uses real audio hardware via oto
	AudioContextProduction AudioContextType = iota
	// AudioContextMock uses a wall-clock driven mock without a device
	AudioContextMock
	// AudioContextAuto automatically detects the appropriate type
	AudioContextAuto
)

// ParseAudioContextType maps a config value to an AudioContextType
func ParseAudioContextType(s string) (AudioContextType, error) {
	switch s {
	case "", "auto":
		return AudioContextAuto, nil
	case "oto", "production":
		return AudioContextProduction, nil
	case "mock", "none":
		return AudioContextMock, nil
	default:
		return AudioContextAuto, fmt.Errorf("%w: unknown audio backend %q", ErrInvalidConfig, s)
	}
}
