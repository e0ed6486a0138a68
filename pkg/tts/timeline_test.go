package tts

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

func constantBuffer(frames int, v float32) *AudioBuffer {
	ch := make([]float32, frames)
	for i := range ch {
		ch[i] = v
	}
	return &AudioBuffer{SampleRate: 10, Channels: [][]float32{ch}}
}

func sampleAt(out []byte, i int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
}

func TestTimelineMix(t *testing.T) {
	tl := newTimeline(10, false)

	if _, err := tl.start(constantBuffer(4, 0.25), 0.2, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if _, err := tl.start(constantBuffer(4, 0.5), 0.4, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}

	out := make([]byte, 10*4)
	tl.advance(10, out)

	want := []float32{0, 0, 0.25, 0.25, 0.75, 0.75, 0.5, 0.5, 0, 0}
	for i, w := range want {
		if got := sampleAt(out, i); got != w {
			t.Errorf("frame %d: got %f, want %f", i, got, w)
		}
	}
	if tl.active() != 0 {
		t.Errorf("Expected finished sources removed, got %d", tl.active())
	}
}

func TestTimelineClipping(t *testing.T) {
	tl := newTimeline(10, false)
	_, _ = tl.start(constantBuffer(2, 0.75), 0, nil)
	_, _ = tl.start(constantBuffer(2, 0.75), 0, nil)

	out := make([]byte, 2*4)
	tl.advance(2, out)
	if got := sampleAt(out, 0); got != 1 {
		t.Errorf("Expected clipped sample 1.0, got %f", got)
	}
}

func TestTimelineEndCallbacks(t *testing.T) {
	tl := newTimeline(10, false)

	var order []string
	_, _ = tl.start(constantBuffer(5, 0), 0.3, func() { order = append(order, "late") })
	_, _ = tl.start(constantBuffer(3, 0), 0, func() { order = append(order, "early") })

	tl.advance(4, nil)
	if len(order) != 1 || order[0] != "early" {
		t.Fatalf("Expected only the early source to end, got %v", order)
	}
	tl.advance(4, nil)
	if len(order) != 2 || order[1] != "late" {
		t.Fatalf("Expected late source to end second, got %v", order)
	}
}

func TestTimelineStop(t *testing.T) {
	tl := newTimeline(10, false)

	called := false
	src, err := tl.start(constantBuffer(5, 1), 0, func() { called = true })
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := src.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := src.Stop(); !errors.Is(err, errSourceFinished) {
		t.Errorf("Expected errSourceFinished on second stop, got %v", err)
	}

	out := make([]byte, 5*4)
	tl.advance(5, out)
	if called {
		t.Error("Stopped source fired its end callback")
	}
	if got := sampleAt(out, 0); got != 0 {
		t.Errorf("Stopped source still audible: %f", got)
	}
}

func TestTimelinePastStartClamped(t *testing.T) {
	tl := newTimeline(10, false)
	tl.advance(5, nil)

	src, err := tl.start(constantBuffer(2, 0), 0.1, nil)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if src.start != 5 {
		t.Errorf("Expected start clamped to frame 5, got %d", src.start)
	}
}

func TestTimelineClosed(t *testing.T) {
	tl := newTimeline(10, false)
	tl.close()

	if _, err := tl.start(constantBuffer(1, 0), 0, nil); !errors.Is(err, ErrContextClosed) {
		t.Errorf("Expected ErrContextClosed, got %v", err)
	}
	tl.setState(ContextRunning)
	if tl.getState() != ContextClosed {
		t.Error("Closed timeline changed state")
	}
}

func TestMockAudioContextSuspendedClock(t *testing.T) {
	m := NewMockAudioContext()
	defer m.Close()

	_ = m.Suspend()
	m.Advance(1)
	if m.CurrentTime() != 0 {
		t.Errorf("Suspended clock moved to %f", m.CurrentTime())
	}

	_ = m.Resume(context.Background())
	m.Advance(1)
	if m.CurrentTime() != 1 {
		t.Errorf("Expected clock at 1.0, got %f", m.CurrentTime())
	}
}
