package tts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/bookvoice/internal/observe"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// fakeSynth returns silence for every segment. Segments listed in gates
// block until their gate is closed; segments in errs fail.
type fakeSynth struct {
	mu        sync.Mutex
	calls     []string
	gates     map[string]chan struct{}
	errs      map[string]error
	durations map[string]float64
	raw       map[string][]byte
}

func newFakeSynth() *fakeSynth {
	return &fakeSynth{
		gates:     make(map[string]chan struct{}),
		errs:      make(map[string]error),
		durations: make(map[string]float64),
		raw:       make(map[string][]byte),
	}
}

func (f *fakeSynth) Name() string { return "fake" }

func (f *fakeSynth) Synthesize(ctx context.Context, text string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	gate := f.gates[text]
	err := f.errs[text]
	d, ok := f.durations[text]
	raw, hasRaw := f.raw[text]
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if hasRaw {
		return raw, nil
	}
	if !ok {
		d = 1
	}
	return GenerateSilence(time.Duration(d*float64(time.Second)), DefaultPCMFormat()), nil
}

func (f *fakeSynth) gate(text string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[text] = ch
	return ch
}

func (f *fakeSynth) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSynth) called(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == text {
			return true
		}
	}
	return false
}

type sessionHarness struct {
	session   *Session
	synth     *fakeSynth
	mock      *MockAudioContext
	mu        sync.Mutex
	completed []int
}

func newSessionHarness(t *testing.T, lookahead int) *sessionHarness {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	h := &sessionHarness{synth: newFakeSynth(), mock: NewMockAudioContext()}
	scheduler := NewScheduler(func() (AudioContext, error) { return h.mock, nil }, DefaultSchedulerConfig())
	h.session = NewSession(h.synth, scheduler, SessionConfig{
		// one sentence per segment
		Segmenter: SegmenterConfig{Limit: 4},
		Lookahead: lookahead,
		Metrics:   metrics,
		OnComplete: func(pageID int) {
			h.mu.Lock()
			h.completed = append(h.completed, pageID)
			h.mu.Unlock()
		},
	})
	t.Cleanup(func() { _ = h.session.Close() })
	return h
}

func (h *sessionHarness) completions() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.completed...)
}

// pipelines returns how many pipeline goroutines are still running
func (h *sessionHarness) pipelines() int {
	h.session.mu.Lock()
	defer h.session.mu.Unlock()
	return h.session.running
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSessionEmptyText(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t "} {
		t.Run(fmt.Sprintf("%q", text), func(t *testing.T) {
			h := newSessionHarness(t, 0)

			var events []State
			h.session.Subscribe(func(s State) { events = append(events, s) })

			h.session.Play(3, text)

			if !h.session.Snapshot().Idle() {
				t.Errorf("Expected idle, got %+v", h.session.Snapshot())
			}
			if h.synth.callCount() != 0 {
				t.Errorf("Expected no synthesis calls, got %d", h.synth.callCount())
			}
			if len(h.mock.Starts()) != 0 {
				t.Errorf("Expected no audio, got %d starts", len(h.mock.Starts()))
			}
			for _, e := range events {
				if !e.Idle() {
					t.Errorf("Unexpected non-idle event %+v", e)
				}
			}
		})
	}
}

func TestSessionPlaysPageGapless(t *testing.T) {
	h := newSessionHarness(t, 0)
	h.synth.durations["One."] = 1.5
	h.synth.durations["Two."] = 0.5
	h.synth.durations["Three."] = 0.25

	h.session.Play(7, "One. Two. Three.")

	waitFor(t, "all segments scheduled", func() bool { return h.pipelines() == 0 })

	state := h.session.Snapshot()
	if state.Phase() != PhasePlaying || state.PlayingPage != 7 || state.GeneratingPage != NoPage {
		t.Fatalf("Expected playing page 7, got %+v", state)
	}

	starts := h.mock.Starts()
	if len(starts) != 3 {
		t.Fatalf("Expected 3 segments scheduled, got %d", len(starts))
	}
	if math.Abs(starts[0].At-0.1) > 1e-9 {
		t.Errorf("Expected first segment at the start delay, got %f", starts[0].At)
	}
	for n := 0; n < len(starts)-1; n++ {
		want := starts[n].At + starts[n].Duration
		if math.Abs(starts[n+1].At-want) > 1e-9 {
			t.Errorf("Segment %d starts at %f, expected %f", n+1, starts[n+1].At, want)
		}
	}
	if starts[0].Duration != 1.5 || starts[1].Duration != 0.5 || starts[2].Duration != 0.25 {
		t.Errorf("Segments played out of order: %+v", starts)
	}

	h.mock.Advance(1)
	if h.session.Snapshot().Idle() {
		t.Fatal("Session went idle before audio finished")
	}

	h.mock.Advance(2)
	if !h.session.Snapshot().Idle() {
		t.Fatalf("Expected idle after playback, got %+v", h.session.Snapshot())
	}
	if got := h.completions(); len(got) != 1 || got[0] != 7 {
		t.Errorf("Expected completion for page 7, got %v", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := h.session.Wait(ctx); err != nil {
		t.Errorf("Wait failed: %v", err)
	}
}

func TestSessionStaleRequestDiscarded(t *testing.T) {
	h := newSessionHarness(t, 0)
	release := h.synth.gate("Alpha.")

	h.session.Play(1, "Alpha. More alpha.")
	waitFor(t, "page 1 synthesis", func() bool { return h.synth.called("Alpha.") })
	first := h.session.Snapshot()
	if first.GeneratingPage != 1 {
		t.Fatalf("Expected page 1 generating, got %+v", first)
	}

	h.session.Play(2, "Beta.")
	waitFor(t, "page 2 playing", func() bool { return h.session.Snapshot().PlayingPage == 2 })

	close(release)
	waitFor(t, "pipelines to exit", func() bool { return h.pipelines() == 0 })

	state := h.session.Snapshot()
	if state.PlayingPage != 2 || state.GeneratingPage != NoPage {
		t.Errorf("Stale result changed state: %+v", state)
	}
	if state.RequestID <= first.RequestID {
		t.Errorf("Expected request id to grow, got %d after %d", state.RequestID, first.RequestID)
	}
	if n := len(h.mock.Starts()); n != 1 {
		t.Errorf("Expected only page 2 audio, got %d starts", n)
	}
	if h.synth.called("More alpha.") {
		t.Error("Superseded request kept synthesizing")
	}
}

func TestSessionToggleOff(t *testing.T) {
	t.Run("while generating", func(t *testing.T) {
		h := newSessionHarness(t, 0)
		release := h.synth.gate("Gated.")

		h.session.Play(4, "Gated.")
		waitFor(t, "synthesis", func() bool { return h.synth.called("Gated.") })

		h.session.Play(4, "Gated.")
		if !h.session.Snapshot().Idle() {
			t.Fatalf("Expected idle after toggle, got %+v", h.session.Snapshot())
		}

		close(release)
		waitFor(t, "pipeline exit", func() bool { return h.pipelines() == 0 })

		if !h.session.Snapshot().Idle() {
			t.Errorf("Expected idle, got %+v", h.session.Snapshot())
		}
		if len(h.mock.Starts()) != 0 {
			t.Errorf("Expected no audio after toggle, got %d starts", len(h.mock.Starts()))
		}
		if h.synth.callCount() != 1 {
			t.Errorf("Toggle started a new request: %d calls", h.synth.callCount())
		}
	})

	t.Run("while playing", func(t *testing.T) {
		h := newSessionHarness(t, 0)

		h.session.Play(4, "Hello.")
		waitFor(t, "playback", func() bool { return h.session.Snapshot().PlayingPage == 4 })

		h.session.Play(4, "Hello.")
		if !h.session.Snapshot().Idle() {
			t.Fatalf("Expected idle after toggle, got %+v", h.session.Snapshot())
		}
		if h.mock.Playing() != 0 {
			t.Errorf("Expected audio silenced, %d sources left", h.mock.Playing())
		}

		h.mock.Advance(5)
		if len(h.completions()) != 0 {
			t.Errorf("Stopped narration must not complete, got %v", h.completions())
		}
	})
}

func TestSessionStop(t *testing.T) {
	h := newSessionHarness(t, 0)

	// idle stop is a no-op
	h.session.Stop()
	if !h.session.Snapshot().Idle() {
		t.Fatal("Expected idle")
	}

	h.session.Play(1, "One. Two.")
	waitFor(t, "scheduling", func() bool { return h.pipelines() == 0 })

	h.session.Stop()
	if !h.session.Snapshot().Idle() {
		t.Errorf("Expected idle after stop, got %+v", h.session.Snapshot())
	}
	if h.mock.Playing() != 0 {
		t.Errorf("Expected no sources after stop, got %d", h.mock.Playing())
	}
}

func TestSessionNavigate(t *testing.T) {
	h := newSessionHarness(t, 0)

	h.session.Play(1, "Page one.")
	waitFor(t, "playback", func() bool { return h.session.Snapshot().PlayingPage == 1 })

	h.session.Navigate(1)
	if h.session.Snapshot().PlayingPage != 1 {
		t.Fatal("Navigating to the narrated page must not stop it")
	}

	h.session.Navigate(2)
	if !h.session.Snapshot().Idle() {
		t.Errorf("Expected idle after navigating away, got %+v", h.session.Snapshot())
	}
}

func TestSessionServiceErrorAborts(t *testing.T) {
	h := newSessionHarness(t, 0)
	h.synth.errs["Two."] = errors.New("quota exceeded")

	h.session.Play(1, "One. Two. Three.")
	waitFor(t, "pipeline exit", func() bool { return h.pipelines() == 0 })

	if !h.session.Snapshot().Idle() {
		t.Errorf("Expected idle after service error, got %+v", h.session.Snapshot())
	}
	if h.synth.called("Three.") {
		t.Error("Pipeline continued after service error")
	}
	if h.mock.Playing() != 0 {
		t.Errorf("Expected already scheduled audio stopped, got %d sources", h.mock.Playing())
	}
	if len(h.completions()) != 0 {
		t.Errorf("Aborted narration must not complete, got %v", h.completions())
	}
}

func TestSessionSkipsBadSegments(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakeSynth)
	}{
		{
			name:  "no audio",
			setup: func(f *fakeSynth) { f.errs["Two."] = fmt.Errorf("%w: empty candidate", ErrNoAudio) },
		},
		{
			name:  "odd byte count",
			setup: func(f *fakeSynth) { f.raw["Two."] = []byte{1, 2, 3} },
		},
		{
			name:  "empty payload",
			setup: func(f *fakeSynth) { f.raw["Two."] = []byte{} },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newSessionHarness(t, 0)
			tt.setup(h.synth)

			h.session.Play(5, "One. Two. Three.")
			waitFor(t, "pipeline exit", func() bool { return h.pipelines() == 0 })

			if !h.synth.called("Three.") {
				t.Fatal("Pipeline stopped at a bad segment")
			}
			starts := h.mock.Starts()
			if len(starts) != 2 {
				t.Fatalf("Expected 2 segments scheduled, got %d", len(starts))
			}
			if math.Abs(starts[1].At-(starts[0].At+starts[0].Duration)) > 1e-9 {
				t.Errorf("Skipped segment left a gap: %+v", starts)
			}

			h.mock.Advance(3)
			if !h.session.Snapshot().Idle() {
				t.Errorf("Expected idle, got %+v", h.session.Snapshot())
			}
			if got := h.completions(); len(got) != 1 || got[0] != 5 {
				t.Errorf("Expected completion for page 5, got %v", got)
			}
		})
	}
}

func TestSessionAllSegmentsSkipped(t *testing.T) {
	h := newSessionHarness(t, 0)
	h.synth.errs["Only."] = ErrNoAudio

	h.session.Play(2, "Only.")
	waitFor(t, "pipeline exit", func() bool { return h.pipelines() == 0 })

	if !h.session.Snapshot().Idle() {
		t.Errorf("Expected idle, got %+v", h.session.Snapshot())
	}
	if len(h.completions()) != 0 {
		t.Errorf("Narration without audio must not complete, got %v", h.completions())
	}
}

func TestSessionLookahead(t *testing.T) {
	h := newSessionHarness(t, 2)
	durations := map[string]float64{"A1.": 0.5, "B2.": 0.25, "C3.": 1, "D4.": 0.125}
	for k, v := range durations {
		h.synth.durations[k] = v
	}

	h.session.Play(9, "A1. B2. C3. D4.")
	waitFor(t, "pipeline exit", func() bool { return h.pipelines() == 0 })

	starts := h.mock.Starts()
	if len(starts) != 4 {
		t.Fatalf("Expected 4 segments, got %d", len(starts))
	}
	order := []float64{0.5, 0.25, 1, 0.125}
	for i, s := range starts {
		if s.Duration != order[i] {
			t.Errorf("Segment %d has duration %f, expected %f", i, s.Duration, order[i])
		}
		if i > 0 && math.Abs(s.At-(starts[i-1].At+starts[i-1].Duration)) > 1e-9 {
			t.Errorf("Gap before segment %d", i)
		}
	}

	h.mock.Advance(2)
	if got := h.completions(); len(got) != 1 || got[0] != 9 {
		t.Errorf("Expected completion for page 9, got %v", got)
	}
}

func TestSessionLookaheadSuperseded(t *testing.T) {
	h := newSessionHarness(t, 2)
	release := h.synth.gate("Slow.")

	h.session.Play(1, "Slow. Rest.")
	waitFor(t, "synthesis", func() bool { return h.synth.called("Slow.") })

	h.session.Play(2, "Other.")
	waitFor(t, "page 2 playing", func() bool { return h.session.Snapshot().PlayingPage == 2 })

	close(release)
	waitFor(t, "pipelines to exit", func() bool { return h.pipelines() == 0 })

	if n := len(h.mock.Starts()); n != 1 {
		t.Errorf("Expected only page 2 audio, got %d starts", n)
	}
}

func TestSessionResumesSuspendedOutput(t *testing.T) {
	h := newSessionHarness(t, 0)
	if err := h.mock.Suspend(); err != nil {
		t.Fatalf("Suspend failed: %v", err)
	}

	h.session.Play(1, "Wake up.")
	waitFor(t, "playback", func() bool { return h.session.Snapshot().PlayingPage == 1 })

	if h.mock.Resumes() != 1 {
		t.Errorf("Expected output resumed once, got %d", h.mock.Resumes())
	}
}

func TestSessionEvents(t *testing.T) {
	h := newSessionHarness(t, 0)

	var mu sync.Mutex
	var phases []Phase
	cancel := h.session.Subscribe(func(s State) {
		mu.Lock()
		phases = append(phases, s.Phase())
		mu.Unlock()
	})

	h.session.Play(1, "Hi.")
	waitFor(t, "pipeline exit", func() bool { return h.pipelines() == 0 })
	h.mock.Advance(2)

	mu.Lock()
	got := append([]Phase(nil), phases...)
	mu.Unlock()

	if len(got) == 0 || got[len(got)-1] != PhaseIdle {
		t.Fatalf("Expected to end idle, got %v", got)
	}
	sawPlaying := false
	for _, p := range got {
		if p == PhasePlaying {
			sawPlaying = true
		}
	}
	if !sawPlaying {
		t.Errorf("Expected a playing event, got %v", got)
	}

	cancel()
	h.session.Play(1, "Again.")
	mu.Lock()
	defer mu.Unlock()
	if len(phases) != len(got) {
		t.Error("Cancelled subscriber still received events")
	}
}

func TestSessionRequestIDsIncrease(t *testing.T) {
	fixed := time.UnixMilli(1_700_000_000_000)
	s := NewSession(newFakeSynth(), NewScheduler(func() (AudioContext, error) {
		return NewMockAudioContext(), nil
	}, DefaultSchedulerConfig()), SessionConfig{Now: func() time.Time { return fixed }})
	defer s.Close()

	var last int64
	for i := 0; i < 5; i++ {
		s.mu.Lock()
		id := s.mintID()
		s.mu.Unlock()
		if id <= last {
			t.Fatalf("id %d not greater than %d", id, last)
		}
		last = id
	}
	if last != fixed.UnixMilli()+4 {
		t.Errorf("Expected id %d, got %d", fixed.UnixMilli()+4, last)
	}
}

func TestSessionClose(t *testing.T) {
	h := newSessionHarness(t, 0)
	release := h.synth.gate("Blocked.")

	h.session.Play(1, "Blocked.")
	waitFor(t, "synthesis", func() bool { return h.synth.called("Blocked.") })

	done := make(chan error, 1)
	go func() { done <- h.session.Close() }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		close(release)
		t.Fatal("Close did not cancel the pipeline")
	}

	h.session.Play(2, "After close.")
	if !h.session.Snapshot().Idle() {
		t.Error("Closed session accepted a new narration")
	}
	if h.mock.State() != ContextClosed {
		t.Errorf("Expected output closed, got %v", h.mock.State())
	}
}
