package tts

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/bookvoice/internal/observe"
	"golang.org/x/sync/errgroup"
)

var errSuperseded = errors.New("request superseded")

// SessionConfig holds the narration session configuration.
type SessionConfig struct {
	// Segmenter configures how page text is split into segments
	Segmenter SegmenterConfig

	// Lookahead is how many segments may be synthesized ahead of the one
	// being scheduled. Zero keeps synthesis strictly sequential.
	Lookahead int

	// Metrics receives pipeline instruments. Nil uses observe.DefaultMetrics.
	Metrics *observe.Metrics

	// OnComplete is called after every segment of a page finished playing
	// naturally. It is not called for stopped or superseded narrations.
	OnComplete func(pageID int)

	// Now supplies the clock used to mint request ids. Nil uses time.Now.
	Now func() time.Time
}

// playbackRequest is the bookkeeping for one Play call
type playbackRequest struct {
	id           int64
	pageID       int
	segments     []string
	scheduled    int
	allScheduled bool
}

// synthResult carries one synthesized segment through the read-ahead channel
type synthResult struct {
	index int
	audio []byte
	err   error
}

// Session is the single owner of narration state. Each Play mints a new
// request id; every asynchronous step re-checks that id before touching
// state or the scheduler, so the most recent Play or Stop always wins.
type Session struct {
	synth     Synthesizer
	scheduler *Scheduler
	segmenter *Segmenter
	lookahead int
	metrics   *observe.Metrics
	onDone    func(pageID int)
	now       func() time.Time

	mu      sync.Mutex
	state   State
	req     *playbackRequest
	lastID  int64
	running int
	closed  bool
	changed chan struct{}

	emitMu    sync.Mutex
	listeners map[int]func(State)
	nextSub   int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewSession creates an idle session that narrates through synth and plays
// through scheduler.
func NewSession(synth Synthesizer, scheduler *Scheduler, config SessionConfig) *Session {
	if config.Metrics == nil {
		config.Metrics = observe.DefaultMetrics()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Lookahead < 0 {
		config.Lookahead = 0
	}

	scheduler.SetMetrics(config.Metrics)

	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		synth:     synth,
		scheduler: scheduler,
		segmenter: NewSegmenter(config.Segmenter),
		lookahead: config.Lookahead,
		metrics:   config.Metrics,
		onDone:    config.OnComplete,
		now:       config.Now,
		state:     idleState(),
		changed:   make(chan struct{}),
		listeners: make(map[int]func(State)),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Play narrates text as pageID. Calling Play for the page that is already
// generating or playing stops it instead. Any other narration is stopped
// first. Empty or whitespace-only text leaves the session idle.
func (s *Session) Play(pageID int, text string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		log.Warn("Play on closed session", "page", pageID)
		return
	}

	if s.state.PlayingPage == pageID || s.state.GeneratingPage == pageID {
		log.Debug("Narration toggled off", "page", pageID)
		s.stopLocked()
		s.mu.Unlock()
		s.emit()
		return
	}

	s.stopLocked()

	if strings.TrimSpace(text) == "" {
		log.Debug("Nothing to narrate", "page", pageID)
		s.mu.Unlock()
		s.emit()
		return
	}

	req := &playbackRequest{
		id:       s.mintID(),
		pageID:   pageID,
		segments: s.segmenter.Split(text),
	}
	s.req = req
	s.state = State{RequestID: req.id, PlayingPage: NoPage, GeneratingPage: pageID}
	s.running++
	s.wg.Add(1)
	s.notifyLocked()
	s.mu.Unlock()

	log.Info("Narration requested", "page", pageID, "request", req.id, "segments", len(req.segments))
	s.emit()

	go s.run(req)
}

// Stop silences all audio and returns to idle. Safe to call when idle.
func (s *Session) Stop() {
	s.mu.Lock()
	wasIdle := s.state.Idle() && s.scheduler.Active() == 0
	s.stopLocked()
	s.mu.Unlock()

	if !wasIdle {
		log.Debug("Narration stopped")
	}
	s.emit()
}

// Navigate tells the session the reader moved to pageID. Narration of any
// other page is stopped.
func (s *Session) Navigate(pageID int) {
	s.mu.Lock()
	page := s.state.Page()
	s.mu.Unlock()

	if page != NoPage && page != pageID {
		log.Debug("Navigated away from narrated page", "from", page, "to", pageID)
		s.Stop()
	}
}

// Snapshot returns the current state
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn to receive the current state after every change.
// Calls are serialized. fn must not call back into the session
// synchronously. The returned function removes the subscription.
func (s *Session) Subscribe(fn func(State)) (cancel func()) {
	s.emitMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.listeners[id] = fn
	s.emitMu.Unlock()

	return func() {
		s.emitMu.Lock()
		delete(s.listeners, id)
		s.emitMu.Unlock()
	}
}

// Wait blocks until the session is idle and no pipeline is running, or
// until ctx is done.
func (s *Session) Wait(ctx context.Context) error {
	for {
		s.mu.Lock()
		if s.state.Idle() && s.running == 0 && s.scheduler.Active() == 0 {
			s.mu.Unlock()
			return nil
		}
		ch := s.changed
		s.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close stops narration, waits for pipelines to exit and releases the
// output context.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopLocked()
	s.mu.Unlock()
	s.emit()

	s.cancel()
	s.wg.Wait()
	return s.scheduler.Close()
}

// mintID returns a millisecond timestamp that is strictly greater than
// every id minted before (must be called with lock held)
func (s *Session) mintID() int64 {
	id := s.now().UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// stopLocked stops all sources and resets to idle (must be called with
// lock held)
func (s *Session) stopLocked() {
	s.scheduler.StopAll()
	s.req = nil
	s.state = idleState()
	s.notifyLocked()
}

// notifyLocked wakes Wait callers (must be called with lock held)
func (s *Session) notifyLocked() {
	close(s.changed)
	s.changed = make(chan struct{})
}

// emit delivers the latest state to subscribers
func (s *Session) emit() {
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	if len(s.listeners) == 0 {
		return
	}
	snap := s.Snapshot()
	for _, fn := range s.listeners {
		fn(snap)
	}
}

// isActive reports whether id is still the active request
func (s *Session) isActive(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.RequestID == id && s.req != nil
}

// superseded records the silent discard of a stale result
func (s *Session) superseded(req *playbackRequest, index int) {
	log.Debug("Discarding superseded result", "request", req.id, "page", req.pageID, "segment", index)
	s.metrics.RequestsSuperseded.Add(context.Background(), 1)
}

// run is the pipeline goroutine for one request
func (s *Session) run(req *playbackRequest) {
	defer s.pipelineDone()
	defer s.recoverPanic(req.id)

	s.mu.Lock()
	if s.state.RequestID != req.id {
		s.mu.Unlock()
		s.superseded(req, 0)
		return
	}
	// Held across Prepare so StopAll cannot run between the resume and
	// the scheduling anchor.
	err := s.scheduler.Prepare(s.ctx)
	s.mu.Unlock()
	if err != nil {
		log.Error("Audio output unavailable", "error", err)
		s.abort(req.id)
		return
	}

	if s.lookahead > 0 {
		s.runLookahead(req)
		return
	}

	for i, text := range req.segments {
		if !s.isActive(req.id) {
			s.superseded(req, i)
			return
		}
		audio, err := s.synth.Synthesize(s.ctx, text)
		if !s.handleResult(req, i, audio, err) {
			return
		}
	}
	s.finishScheduling(req)
}

// runLookahead synthesizes up to lookahead segments ahead of the one being
// scheduled. Results are consumed in order.
func (s *Session) runLookahead(req *playbackRequest) {
	results := make(chan synthResult, s.lookahead)
	g, gctx := errgroup.WithContext(s.ctx)

	g.Go(func() error {
		defer close(results)
		for i, text := range req.segments {
			if !s.isActive(req.id) {
				return nil
			}
			audio, err := s.synth.Synthesize(s.ctx, text)
			select {
			case results <- synthResult{index: i, audio: audio, err: err}:
			case <-gctx.Done():
				return gctx.Err()
			}
			if err != nil && !IsSegmentError(err) {
				return nil
			}
		}
		return nil
	})

	g.Go(func() error {
		for r := range results {
			if !s.handleResult(req, r.index, r.audio, r.err) {
				return errSuperseded
			}
		}
		if !s.isActive(req.id) {
			s.superseded(req, len(req.segments))
			return errSuperseded
		}
		s.finishScheduling(req)
		return nil
	})

	_ = g.Wait()
}

// handleResult applies one synthesis result. It returns false when the
// pipeline must stop: the request was superseded or the service failed.
func (s *Session) handleResult(req *playbackRequest, index int, audio []byte, err error) bool {
	if !s.isActive(req.id) {
		s.superseded(req, index)
		return false
	}

	if err != nil && !IsSegmentError(err) {
		log.Error("Narration aborted", "page", req.pageID, "segment", index, "error", err)
		s.abort(req.id)
		return false
	}

	var buf *AudioBuffer
	if err == nil {
		buf, err = DecodePCM(audio, SampleRate, Channels)
	}
	if err != nil {
		log.Warn("Skipping segment", "page", req.pageID, "segment", index, "error", err)
		s.metrics.SegmentsSkipped.Add(context.Background(), 1)
		return true
	}

	s.mu.Lock()
	if s.state.RequestID != req.id {
		s.mu.Unlock()
		s.superseded(req, index)
		return false
	}

	id, segment := req.id, index
	if _, err := s.scheduler.ScheduleNext(buf, func() { s.sourceEnded(id, segment) }); err != nil {
		s.mu.Unlock()
		log.Debug("Ignoring start failure", "page", req.pageID, "segment", index, "error", err)
		return true
	}
	req.scheduled++
	s.metrics.SegmentsScheduled.Add(context.Background(), 1)

	first := s.state.PlayingPage != req.pageID
	if first {
		s.state.PlayingPage = req.pageID
		s.state.GeneratingPage = NoPage
		s.notifyLocked()
	}
	s.mu.Unlock()

	if first {
		log.Info("Narration playing", "page", req.pageID, "request", req.id)
		s.emit()
	}
	return true
}

// finishScheduling marks every segment of req as handed off. If nothing
// is left playing the session goes idle right away.
func (s *Session) finishScheduling(req *playbackRequest) {
	s.mu.Lock()
	if s.state.RequestID != req.id {
		s.mu.Unlock()
		s.superseded(req, len(req.segments))
		return
	}
	req.allScheduled = true
	done := s.completeIfDrainedLocked()
	s.mu.Unlock()

	s.finish(done)
}

// sourceEnded handles the natural end of segment index of request id
func (s *Session) sourceEnded(id int64, index int) {
	s.mu.Lock()
	if s.state.RequestID != id {
		s.mu.Unlock()
		return
	}
	log.Debug("Segment finished", "request", id, "segment", index)
	done := s.completeIfDrainedLocked()
	s.mu.Unlock()

	s.finish(done)
}

// completeIfDrainedLocked resets to idle when the active request has been
// fully scheduled and no source is left. It returns the completed
// request, or nil. Must be called with lock held.
func (s *Session) completeIfDrainedLocked() *playbackRequest {
	req := s.req
	if req == nil || !req.allScheduled || s.scheduler.Active() > 0 {
		return nil
	}
	s.req = nil
	s.state = idleState()
	s.notifyLocked()
	return req
}

// finish emits the idle state and runs the completion hook
func (s *Session) finish(req *playbackRequest) {
	if req == nil {
		return
	}
	s.emit()
	if req.scheduled == 0 {
		log.Warn("Narration produced no audio", "page", req.pageID)
		return
	}
	log.Info("Narration finished", "page", req.pageID, "request", req.id)
	if s.onDone != nil {
		s.onDone(req.pageID)
	}
}

// abort resets to idle if id is still active
func (s *Session) abort(id int64) {
	s.mu.Lock()
	if s.state.RequestID != id {
		s.mu.Unlock()
		return
	}
	s.stopLocked()
	s.mu.Unlock()
	s.emit()
}

// pipelineDone records the exit of a pipeline goroutine
func (s *Session) pipelineDone() {
	s.mu.Lock()
	s.running--
	s.notifyLocked()
	s.mu.Unlock()
	s.wg.Done()
}

// recoverPanic recovers from panics in pipeline goroutines.
func (s *Session) recoverPanic(id int64) {
	if r := recover(); r != nil {
		log.Error("Narration pipeline panic", "request", id, "panic", r)
		s.abort(id)
	}
}
