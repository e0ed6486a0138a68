package tts

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// MockStart records one Start call on a MockAudioContext.
type MockStart struct {
	At       float64
	Duration float64
}

// MockAudioContext implements AudioContext without an output device.
// Its clock only moves when Advance is called, or in real time once
// RunClock is started.
type MockAudioContext struct {
	tl *timeline

	mu      sync.Mutex
	starts  []MockStart
	resumes int
	stopRun context.CancelFunc
}

// NewMockAudioContext creates a new mock audio context
func NewMockAudioContext() *MockAudioContext {
	log.Debug("Creating mock audio context")
	return &MockAudioContext{tl: newTimeline(SampleRate, false)}
}

// CurrentTime returns the mock clock in seconds
func (m *MockAudioContext) CurrentTime() float64 {
	return m.tl.currentTime()
}

// State returns the context state
func (m *MockAudioContext) State() ContextState {
	return m.tl.getState()
}

// Resume restarts a suspended mock
func (m *MockAudioContext) Resume(context.Context) error {
	if m.tl.getState() == ContextClosed {
		return ErrContextClosed
	}
	m.mu.Lock()
	m.resumes++
	m.mu.Unlock()
	m.tl.setState(ContextRunning)
	return nil
}

// Suspend pauses the mock clock
func (m *MockAudioContext) Suspend() error {
	if m.tl.getState() == ContextClosed {
		return ErrContextClosed
	}
	m.tl.setState(ContextSuspended)
	return nil
}

// Start schedules buf on the mock timeline
func (m *MockAudioContext) Start(buf *AudioBuffer, at float64, onEnded func()) (Source, error) {
	src, err := m.tl.start(buf, at, onEnded)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.starts = append(m.starts, MockStart{At: at, Duration: buf.Duration()})
	m.mu.Unlock()
	return src, nil
}

// SampleRate returns the sample rate
func (m *MockAudioContext) SampleRate() int {
	return SampleRate
}

// Close closes the mock and stops its clock
func (m *MockAudioContext) Close() error {
	m.mu.Lock()
	if m.stopRun != nil {
		m.stopRun()
		m.stopRun = nil
	}
	m.mu.Unlock()
	m.tl.close()
	log.Debug("Mock audio context closed")
	return nil
}

// Advance moves the clock forward by the given number of seconds, firing
// end callbacks for sources that finish. A suspended mock does not move.
func (m *MockAudioContext) Advance(seconds float64) {
	if m.tl.getState() != ContextRunning {
		return
	}
	m.tl.advance(int(math.Round(seconds*float64(SampleRate))), nil)
}

// RunClock advances the clock in real time every tick until ctx is done
// or the mock is closed. It simulates a device for headless runs.
func (m *MockAudioContext) RunClock(ctx context.Context, tick time.Duration) {
	ctx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	if m.stopRun != nil {
		m.stopRun()
	}
	m.stopRun = cancel
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(tick)
		defer ticker.Stop()
		last := time.Now()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				m.Advance(now.Sub(last).Seconds())
				last = now
			}
		}
	}()
}

// Starts returns every Start call seen so far
func (m *MockAudioContext) Starts() []MockStart {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockStart, len(m.starts))
	copy(out, m.starts)
	return out
}

// Resumes returns how many times Resume was called
func (m *MockAudioContext) Resumes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumes
}

// Playing returns the number of sources still scheduled
func (m *MockAudioContext) Playing() int {
	return m.tl.active()
}
