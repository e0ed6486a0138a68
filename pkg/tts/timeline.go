package tts

import (
	"encoding/binary"
	"errors"
	"math"
	"sort"
	"sync"
)

var errSourceFinished = errors.New("source already finished")

// timeline mixes scheduled buffers onto a frame clock. It backs both the
// oto context, where the device pulls frames through Read, and the mock
// context, where tests push the clock forward explicitly.
type timeline struct {
	mu        sync.Mutex
	rate      int
	pos       int64 // frames rendered so far
	sources   []*timelineSource
	scratch   []float32
	state     ContextState
	asyncEnds bool // dispatch onEnded on a new goroutine
}

// timelineSource is one buffer placed on the timeline
type timelineSource struct {
	tl      *timeline
	buf     *AudioBuffer
	start   int64
	end     int64
	onEnded func()
	done    bool
}

func newTimeline(rate int, asyncEnds bool) *timeline {
	return &timeline{
		rate:      rate,
		state:     ContextRunning,
		asyncEnds: asyncEnds,
	}
}

// currentTime returns the clock in seconds
func (t *timeline) currentTime() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return float64(t.pos) / float64(t.rate)
}

func (t *timeline) getState() ContextState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *timeline) setState(s ContextState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != ContextClosed {
		t.state = s
	}
}

// start places buf at clock time at. A start time in the past begins
// playback at the current frame.
func (t *timeline) start(buf *AudioBuffer, at float64, onEnded func()) (*timelineSource, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == ContextClosed {
		return nil, ErrContextClosed
	}

	start := int64(math.Round(at * float64(t.rate)))
	if start < t.pos {
		start = t.pos
	}

	src := &timelineSource{
		tl:      t,
		buf:     buf,
		start:   start,
		end:     start + int64(buf.Frames()),
		onEnded: onEnded,
	}
	t.sources = append(t.sources, src)
	return src, nil
}

// Stop removes the source without firing its end callback
func (s *timelineSource) Stop() error {
	t := s.tl
	t.mu.Lock()
	defer t.mu.Unlock()

	if s.done {
		return errSourceFinished
	}
	s.done = true
	t.remove(s)
	return nil
}

// remove deletes src from the active list (must be called with lock held)
func (t *timeline) remove(src *timelineSource) {
	for i, s := range t.sources {
		if s == src {
			t.sources = append(t.sources[:i], t.sources[i+1:]...)
			return
		}
	}
}

// advance renders frames of audio. When out is non-nil the mix is written
// to it as float32 little-endian mono. Sources that finish inside the
// window have their callbacks fired after the lock is released.
func (t *timeline) advance(frames int, out []byte) {
	t.mu.Lock()

	if cap(t.scratch) < frames {
		t.scratch = make([]float32, frames)
	}
	mix := t.scratch[:frames]
	for i := range mix {
		mix[i] = 0
	}

	lo, hi := t.pos, t.pos+int64(frames)
	for _, src := range t.sources {
		from, to := max(src.start, lo), min(src.end, hi)
		for abs := from; abs < to; abs++ {
			mix[abs-lo] += src.buf.Mono(int(abs - src.start))
		}
	}
	t.pos = hi

	var finished []*timelineSource
	kept := t.sources[:0]
	for _, src := range t.sources {
		if src.end <= t.pos {
			src.done = true
			finished = append(finished, src)
			continue
		}
		kept = append(kept, src)
	}
	for i := len(kept); i < len(t.sources); i++ {
		t.sources[i] = nil
	}
	t.sources = kept

	if out != nil {
		for i, v := range mix {
			v = float32(math.Max(-1, math.Min(1, float64(v))))
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
	}
	async := t.asyncEnds
	t.mu.Unlock()

	sort.SliceStable(finished, func(i, j int) bool { return finished[i].end < finished[j].end })
	callbacks := make([]func(), 0, len(finished))
	for _, src := range finished {
		if src.onEnded != nil {
			callbacks = append(callbacks, src.onEnded)
		}
	}
	if len(callbacks) == 0 {
		return
	}
	if async {
		go runAll(callbacks)
		return
	}
	runAll(callbacks)
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}

// close marks the timeline closed and drops every source silently
func (t *timeline) close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, src := range t.sources {
		src.done = true
	}
	t.sources = nil
	t.state = ContextClosed
}

// active returns the number of sources still on the timeline
func (t *timeline) active() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sources)
}
