package stt

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/semaphore"
)

// Scheduler owns the session transcript and mediates access to the single
// recognition resource. Partial snapshots are best-effort: they try the
// recognition slot without waiting and are dropped under contention. Final
// segments are never dropped; they go through a single worker goroutine that
// blocks on the slot, which also serializes finals in submission order.
type Scheduler struct {
	rec  Recognizer
	gate *semaphore.Weighted
	log  *slog.Logger

	// OnPartialText receives the latest live partial text; each call replaces
	// the previous value wholesale. OnFinalText receives the newly committed
	// segment text. Both must be set before the first Handle call and are
	// invoked while the recognition slot is held, so they should return
	// quickly.
	OnPartialText func(text string)
	OnFinalText   func(text string)

	mu          sync.Mutex
	committed   string
	livePartial string

	ready   atomic.Bool
	finals  chan []float32
	pending sync.WaitGroup
	once    sync.Once
	closed  chan struct{}

	finalsProcessed metric.Int64Counter
	partialsDropped metric.Int64Counter
	inferSeconds    metric.Float64Histogram
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithGate shares a recognition slot between schedulers. The recognition
// engine is a single resource, so every scheduler talking to the same engine
// must share one gate.
func WithGate(gate *semaphore.Weighted) SchedulerOption {
	return func(s *Scheduler) { s.gate = gate }
}

// NewGate returns a recognition slot admitting one inference at a time.
func NewGate() *semaphore.Weighted {
	return semaphore.NewWeighted(1)
}

func NewScheduler(rec Recognizer, log *slog.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		rec:    rec,
		gate:   NewGate(),
		log:    log.With(slog.String("component", "scheduler")),
		finals: make(chan []float32, 64),
		closed: make(chan struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	s.initMetrics()
	go s.runFinals()
	return s
}

func (s *Scheduler) initMetrics() {
	meter := otel.Meter("github.com/verbalabs/verba-core/stt")
	var err error
	s.finalsProcessed, err = meter.Int64Counter("verba_stt_finals_total",
		metric.WithDescription("Final segments committed to the transcript"))
	if err != nil {
		s.log.Warn("failed to create finals counter", slogError(err))
	}
	s.partialsDropped, err = meter.Int64Counter("verba_stt_partials_dropped_total",
		metric.WithDescription("Partial snapshots dropped because an inference was in flight"))
	if err != nil {
		s.log.Warn("failed to create partials counter", slogError(err))
	}
	s.inferSeconds, err = meter.Float64Histogram("verba_stt_inference_seconds",
		metric.WithDescription("Recognition call duration"))
	if err != nil {
		s.log.Warn("failed to create inference histogram", slogError(err))
	}
}

// SetReady marks the recognition engine as loaded. Segment events arriving
// while not ready are silently dropped.
func (s *Scheduler) SetReady(ready bool) {
	s.ready.Store(ready)
}

func (s *Scheduler) Ready() bool {
	return s.ready.Load()
}

// CommittedText returns the transcript committed so far.
func (s *Scheduler) CommittedText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// PartialText returns the current live partial text.
func (s *Scheduler) PartialText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.livePartial
}

// HandlePartial runs a speculative recognition pass on an in-progress segment
// snapshot. If the recognition slot is busy the snapshot is dropped; partials
// never queue, so capture latency cannot grow unbounded. Never blocks.
func (s *Scheduler) HandlePartial(samples []float32) {
	if !s.ready.Load() {
		return
	}
	if !s.gate.TryAcquire(1) {
		s.addDroppedPartial()
		return
	}
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		defer s.gate.Release(1)

		res, err := s.transcribe(samples)
		if err != nil {
			s.log.Warn("partial transcription failed", slogError(err))
			return
		}
		if res.Text == "" {
			return
		}
		s.mu.Lock()
		s.livePartial = res.Text
		s.mu.Unlock()
		if s.OnPartialText != nil {
			s.OnPartialText(res.Text)
		}
	}()
}

// HandleFinal enqueues a closed segment for authoritative recognition. Finals
// are processed in submission order; the enqueue itself does not wait on any
// in-flight inference.
func (s *Scheduler) HandleFinal(samples []float32) {
	if !s.ready.Load() {
		return
	}
	s.pending.Add(1)
	select {
	case s.finals <- samples:
	case <-s.closed:
		s.pending.Done()
	}
}

func (s *Scheduler) runFinals() {
	for {
		select {
		case samples := <-s.finals:
			s.processFinal(samples)
			s.pending.Done()
		case <-s.closed:
			// Drain anything enqueued before close.
			for {
				select {
				case samples := <-s.finals:
					s.processFinal(samples)
					s.pending.Done()
				default:
					return
				}
			}
		}
	}
}

func (s *Scheduler) processFinal(samples []float32) {
	// Waits out any in-flight partial. Background context: an accepted final
	// is never cancelled once submitted.
	if err := s.gate.Acquire(context.Background(), 1); err != nil {
		return
	}
	defer s.gate.Release(1)

	res, err := s.transcribe(samples)
	if err != nil {
		// The segment's audio is lost; committed text stays untouched.
		s.log.Warn("final transcription failed", slogError(err))
		return
	}
	if res.Text == "" {
		return
	}

	s.mu.Lock()
	if s.committed == "" {
		s.committed = res.Text
	} else {
		s.committed += " " + res.Text
	}
	s.livePartial = ""
	s.mu.Unlock()

	s.addFinalProcessed()
	if s.OnFinalText != nil {
		s.OnFinalText(res.Text)
	}
	if s.OnPartialText != nil {
		s.OnPartialText("")
	}
}

func (s *Scheduler) transcribe(samples []float32) (Result, error) {
	start := time.Now()
	res, err := s.rec.Transcribe(context.Background(), samples)
	if s.inferSeconds != nil {
		s.inferSeconds.Record(context.Background(), time.Since(start).Seconds())
	}
	return res, err
}

// ResetState clears the transcript for a new session. Callers should stop
// chunk delivery and Wait for in-flight work first; results landing after a
// reset would otherwise seed the fresh transcript.
func (s *Scheduler) ResetState() {
	s.mu.Lock()
	s.committed = ""
	s.livePartial = ""
	s.mu.Unlock()
}

// Wait blocks until every enqueued final and in-flight partial has completed.
func (s *Scheduler) Wait() {
	s.pending.Wait()
}

// Close stops the final worker after draining already-enqueued segments.
func (s *Scheduler) Close() {
	s.once.Do(func() {
		close(s.closed)
	})
}

func (s *Scheduler) addFinalProcessed() {
	if s.finalsProcessed != nil {
		s.finalsProcessed.Add(context.Background(), 1)
	}
}

func (s *Scheduler) addDroppedPartial() {
	if s.partialsDropped != nil {
		s.partialsDropped.Add(context.Background(), 1)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
