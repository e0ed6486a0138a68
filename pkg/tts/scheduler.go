package tts

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/bookvoice/internal/observe"
)

// ScheduledSource is one buffer handed to the output context.
type ScheduledSource struct {
	Duration  float64 // seconds
	StartTime float64 // output clock
	handle    Source
}

// SchedulerConfig contains configuration for the playback scheduler
type SchedulerConfig struct {
	// StartDelay is added to the clock when a new narration is anchored,
	// giving the first segment a moment to reach the device.
	StartDelay time.Duration
}

// DefaultSchedulerConfig returns the default scheduler configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{StartDelay: 100 * time.Millisecond}
}

// Scheduler owns a lazily created output context and plays decoded buffers
// back to back. Each buffer starts where the previous one ends, regardless
// of when it arrived.
type Scheduler struct {
	mu        sync.Mutex
	factory   AudioFactory
	config    SchedulerConfig
	ctx       AudioContext
	nextStart float64
	active    map[*ScheduledSource]struct{}
	metrics   *observe.Metrics
}

// NewScheduler creates a scheduler. The output context is not created
// until the first Prepare or ScheduleNext.
func NewScheduler(factory AudioFactory, config SchedulerConfig) *Scheduler {
	return &Scheduler{
		factory: factory,
		config:  config,
		active:  make(map[*ScheduledSource]struct{}),
	}
}

// SetMetrics attaches metric instruments. A nil value disables recording.
func (s *Scheduler) SetMetrics(m *observe.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

func (s *Scheduler) recordActive(delta int64) {
	if s.metrics != nil {
		s.metrics.ActiveSources.Add(context.Background(), delta)
	}
}

// outputContext returns the output context, creating it once (must be called
// with lock held)
func (s *Scheduler) outputContext() (AudioContext, error) {
	if s.ctx != nil {
		return s.ctx, nil
	}
	ac, err := s.factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	if ac.SampleRate() != SampleRate {
		_ = ac.Close()
		return nil, fmt.Errorf("%w: context runs at %d Hz", ErrInvalidSampleRate, ac.SampleRate())
	}
	s.ctx = ac
	return ac, nil
}

// Prepare readies the output context for a new narration: it creates the
// context if needed, resumes it when suspended and anchors the next start
// time slightly ahead of the clock.
func (s *Scheduler) Prepare(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ac, err := s.outputContext()
	if err != nil {
		return err
	}

	if ac.State() == ContextSuspended {
		log.Debug("Resuming suspended audio context")
		if err := ac.Resume(ctx); err != nil {
			return err
		}
	}

	s.nextStart = ac.CurrentTime() + s.config.StartDelay.Seconds()
	return nil
}

// ScheduleNext starts buf at max(clock, nextStart) and advances nextStart by
// the buffer's duration. onEnded runs after the source has left the active
// set, and only when it finishes naturally.
func (s *Scheduler) ScheduleNext(buf *AudioBuffer, onEnded func()) (*ScheduledSource, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ac, err := s.outputContext()
	if err != nil {
		return nil, err
	}

	src := &ScheduledSource{
		Duration:  buf.Duration(),
		StartTime: math.Max(ac.CurrentTime(), s.nextStart),
	}

	handle, err := ac.Start(buf, src.StartTime, func() { s.ended(src, onEnded) })
	if err != nil {
		return nil, err
	}
	src.handle = handle

	s.nextStart = src.StartTime + src.Duration
	s.active[src] = struct{}{}
	s.recordActive(1)
	return src, nil
}

// ended removes a naturally finished source and then notifies the caller
func (s *Scheduler) ended(src *ScheduledSource, onEnded func()) {
	s.mu.Lock()
	_, ok := s.active[src]
	delete(s.active, src)
	s.mu.Unlock()

	if !ok {
		// stopped in the meantime
		return
	}
	s.recordActive(-1)
	if onEnded != nil {
		onEnded()
	}
}

// StopAll force-stops every active source and resets the start anchor.
// Stop errors from already finished sources are ignored.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for src := range s.active {
		if src.handle != nil {
			if err := src.handle.Stop(); err != nil {
				log.Debug("Ignoring stop error", "error", err)
			}
		}
		delete(s.active, src)
		s.recordActive(-1)
	}
	s.nextStart = 0
}

// Active returns the number of sources still playing or queued
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.active)
}

// NextStartTime returns the time the next buffer would start at
func (s *Scheduler) NextStartTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextStart
}

// Close stops all sources and closes the output context
func (s *Scheduler) Close() error {
	s.StopAll()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx == nil {
		return nil
	}
	err := s.ctx.Close()
	s.ctx = nil
	return err
}
