package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeRecognizer tracks concurrency and lets tests inject per-call latency and
// errors. Text is derived from the segment length so ordering is observable.
type fakeRecognizer struct {
	delayFor func(samples int) time.Duration
	err      error

	mu          sync.Mutex
	calls       int
	inflight    int
	maxInflight int
}

func (f *fakeRecognizer) Transcribe(_ context.Context, samples []float32) (Result, error) {
	f.mu.Lock()
	f.calls++
	f.inflight++
	if f.inflight > f.maxInflight {
		f.maxInflight = f.inflight
	}
	var delay time.Duration
	if f.delayFor != nil {
		delay = f.delayFor(len(samples))
	}
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	f.inflight--
	f.mu.Unlock()

	if f.err != nil {
		return Result{}, f.err
	}
	return Result{Text: fmt.Sprintf("seg-%d", len(samples))}, nil
}

func (f *fakeRecognizer) stats() (calls, maxInflight int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.maxInflight
}

// blockingRecognizer holds every call until release is closed.
type blockingRecognizer struct {
	release chan struct{}
	text    string
}

func (b *blockingRecognizer) Transcribe(_ context.Context, _ []float32) (Result, error) {
	<-b.release
	return Result{Text: b.text}, nil
}

func samplesOf(n int) []float32 {
	return make([]float32, n)
}

func TestAtMostOneInferenceInFlight(t *testing.T) {
	rec := &fakeRecognizer{delayFor: func(int) time.Duration { return 5 * time.Millisecond }}
	s := NewScheduler(rec, newTestLogger())
	t.Cleanup(s.Close)
	s.SetReady(true)

	for i := 0; i < 20; i++ {
		s.HandlePartial(samplesOf(100))
		s.HandleFinal(samplesOf(8000 + i))
	}
	s.Wait()

	calls, maxInflight := rec.stats()
	if maxInflight != 1 {
		t.Fatalf("expected at most 1 inference in flight, saw %d", maxInflight)
	}
	if calls < 20 {
		t.Fatalf("expected at least the 20 finals to run, got %d calls", calls)
	}
}

func TestFinalsCommitInSubmissionOrder(t *testing.T) {
	// The earlier final is slow, the later one fast; order must still hold.
	rec := &fakeRecognizer{delayFor: func(n int) time.Duration {
		if n == 100 {
			return 30 * time.Millisecond
		}
		return 0
	}}
	s := NewScheduler(rec, newTestLogger())
	t.Cleanup(s.Close)
	s.SetReady(true)

	s.HandleFinal(samplesOf(100))
	s.HandleFinal(samplesOf(200))
	s.Wait()

	if got := s.CommittedText(); got != "seg-100 seg-200" {
		t.Fatalf("finals reordered: committed = %q", got)
	}
}

func TestPartialDroppedUnderContention(t *testing.T) {
	rec := &blockingRecognizer{release: make(chan struct{}), text: "hello"}
	s := NewScheduler(rec, newTestLogger())
	t.Cleanup(s.Close)
	s.SetReady(true)

	// First partial takes the slot and blocks inside the recognizer.
	s.HandlePartial(samplesOf(100))
	// Second partial finds the slot busy and must be dropped without effect.
	s.HandlePartial(samplesOf(200))

	if got := s.CommittedText(); got != "" {
		t.Fatalf("dropped partial mutated committed text: %q", got)
	}

	close(rec.release)
	s.Wait()
	if got := s.PartialText(); got != "hello" {
		t.Fatalf("expected surviving partial text, got %q", got)
	}
}

func TestFinalWaitsOutInFlightPartial(t *testing.T) {
	rec := &blockingRecognizer{release: make(chan struct{}), text: "done"}
	s := NewScheduler(rec, newTestLogger())
	t.Cleanup(s.Close)
	s.SetReady(true)

	s.HandlePartial(samplesOf(100))
	s.HandleFinal(samplesOf(200))

	// The final must not have run yet: the partial still holds the slot.
	if got := s.CommittedText(); got != "" {
		t.Fatalf("final committed while partial held the slot: %q", got)
	}

	close(rec.release)
	s.Wait()
	if got := s.CommittedText(); got != "done" {
		t.Fatalf("expected final committed after partial released, got %q", got)
	}
}

func TestEventsDroppedBeforeReady(t *testing.T) {
	rec := &fakeRecognizer{}
	s := NewScheduler(rec, newTestLogger())
	t.Cleanup(s.Close)

	s.HandlePartial(samplesOf(100))
	s.HandleFinal(samplesOf(200))
	s.Wait()

	calls, _ := rec.stats()
	if calls != 0 {
		t.Fatalf("expected no recognition before ready, got %d calls", calls)
	}
	if s.CommittedText() != "" || s.PartialText() != "" {
		t.Fatal("transcript mutated before ready")
	}
}

func TestRecognitionErrorLeavesStateUntouched(t *testing.T) {
	rec := &fakeRecognizer{err: errors.New("engine fault")}
	s := NewScheduler(rec, newTestLogger())
	t.Cleanup(s.Close)
	s.SetReady(true)

	s.HandlePartial(samplesOf(100))
	s.Wait()
	s.HandleFinal(samplesOf(200))
	s.Wait()

	if s.CommittedText() != "" {
		t.Fatalf("failed final mutated committed text: %q", s.CommittedText())
	}
	if s.PartialText() != "" {
		t.Fatalf("failed partial mutated live text: %q", s.PartialText())
	}
}

func TestFinalClearsLivePartial(t *testing.T) {
	rec := &fakeRecognizer{}
	s := NewScheduler(rec, newTestLogger())
	t.Cleanup(s.Close)
	s.SetReady(true)

	var lastPartial string
	var notifyMu sync.Mutex
	s.OnPartialText = func(text string) {
		notifyMu.Lock()
		lastPartial = text
		notifyMu.Unlock()
	}

	s.HandlePartial(samplesOf(100))
	s.Wait()
	if s.PartialText() != "seg-100" {
		t.Fatalf("expected live partial, got %q", s.PartialText())
	}

	s.HandleFinal(samplesOf(200))
	s.Wait()
	if s.PartialText() != "" {
		t.Fatalf("final did not clear live partial: %q", s.PartialText())
	}
	notifyMu.Lock()
	defer notifyMu.Unlock()
	if lastPartial != "" {
		t.Fatalf("observer not told partial was cleared, last = %q", lastPartial)
	}
}

func TestResetStateClearsTranscript(t *testing.T) {
	rec := &fakeRecognizer{}
	s := NewScheduler(rec, newTestLogger())
	t.Cleanup(s.Close)
	s.SetReady(true)

	s.HandleFinal(samplesOf(100))
	s.Wait()
	if s.CommittedText() == "" {
		t.Fatal("expected committed text before reset")
	}

	s.ResetState()
	if s.CommittedText() != "" || s.PartialText() != "" {
		t.Fatal("reset did not clear transcript state")
	}

	// A fresh session after reset behaves like a new one.
	s.HandleFinal(samplesOf(200))
	s.Wait()
	if got := s.CommittedText(); got != "seg-200" {
		t.Fatalf("expected fresh transcript after reset, got %q", got)
	}
}

func TestSharedGateSerializesSchedulers(t *testing.T) {
	rec := &fakeRecognizer{delayFor: func(int) time.Duration { return 5 * time.Millisecond }}
	gate := NewGate()
	a := NewScheduler(rec, newTestLogger(), WithGate(gate))
	b := NewScheduler(rec, newTestLogger(), WithGate(gate))
	t.Cleanup(a.Close)
	t.Cleanup(b.Close)
	a.SetReady(true)
	b.SetReady(true)

	for i := 0; i < 10; i++ {
		a.HandleFinal(samplesOf(100 + i))
		b.HandleFinal(samplesOf(200 + i))
	}
	a.Wait()
	b.Wait()

	_, maxInflight := rec.stats()
	if maxInflight != 1 {
		t.Fatalf("shared gate violated: %d inferences in flight", maxInflight)
	}
}
