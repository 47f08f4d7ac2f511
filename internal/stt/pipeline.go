package stt

import (
	"context"
	"time"

	"github.com/verbalabs/verba-core/internal/vad"
)

// Pipeline couples a voice-activity segmenter to an inference scheduler for
// one audio session. Chunks go in through Process; level, partial-text, and
// committed-text notifications come out through the callbacks. Process is
// synchronous and never blocks on recognition.
type Pipeline struct {
	Scheduler *Scheduler
	segmenter *vad.Segmenter

	// OnLevel receives the RMS loudness of every processed chunk. OnSpeechStart
	// fires when a new segment opens. Set before the first Process call.
	OnLevel       func(rms float64)
	OnSpeechStart func()

	// PartialsEnabled routes partial snapshots to the scheduler. Disable it to
	// run final-only recognition, e.g. when interim publishing is off.
	PartialsEnabled bool
}

func NewPipeline(cfg vad.Config, scheduler *Scheduler) *Pipeline {
	p := &Pipeline{Scheduler: scheduler, PartialsEnabled: true}
	p.segmenter = vad.NewSegmenter(cfg, p)
	return p
}

// Process feeds one chunk of 16 kHz mono float samples through segmentation.
func (p *Pipeline) Process(chunk []float32) {
	p.segmenter.Process(chunk)
}

// ForceFlush finalizes any in-progress segment, e.g. at end-of-stream.
func (p *Pipeline) ForceFlush() {
	p.segmenter.ForceFlush()
}

// Reset discards all in-progress segmentation state and clears the
// transcript. Stop chunk delivery and Wait before calling.
func (p *Pipeline) Reset() {
	p.segmenter.Reset()
	p.Scheduler.ResetState()
}

// Wait blocks until all scheduled recognition work has completed.
func (p *Pipeline) Wait() {
	p.Scheduler.Wait()
}

// Level, SpeechStart, Partial, and Final implement vad.Listener.

func (p *Pipeline) Level(rms float64) {
	if p.OnLevel != nil {
		p.OnLevel(rms)
	}
}

func (p *Pipeline) SpeechStart() {
	if p.OnSpeechStart != nil {
		p.OnSpeechStart()
	}
}

func (p *Pipeline) Partial(samples []float32) {
	if !p.PartialsEnabled {
		return
	}
	p.Scheduler.HandlePartial(samples)
}

func (p *Pipeline) Final(samples []float32) {
	p.Scheduler.HandleFinal(samples)
}

// ReplayOptions controls Replay chunking and pacing.
type ReplayOptions struct {
	// ChunkSamples is the slice size fed per Process call. Defaults to 1600
	// samples (100 ms at 16 kHz).
	ChunkSamples int
	// Pacing is an artificial delay between chunks so a replayed file moves
	// through the pipeline at capture speed. Zero replays as fast as possible;
	// segmentation boundaries are identical either way because the segmenter
	// counts samples, not wall-clock time.
	Pacing time.Duration
}

// Replay feeds a bulk sample sequence through the identical Process path in
// fixed time slices and force-flushes at end-of-stream so trailing speech is
// not lost. There is no separate whole-file transcription path.
func (p *Pipeline) Replay(ctx context.Context, samples []float32, opts ReplayOptions) error {
	chunkSize := opts.ChunkSamples
	if chunkSize <= 0 {
		chunkSize = 1600
	}

	for start := 0; start < len(samples); start += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + chunkSize
		if end > len(samples) {
			end = len(samples)
		}
		p.Process(samples[start:end])

		if opts.Pacing > 0 {
			select {
			case <-time.After(opts.Pacing):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}

	p.ForceFlush()
	return nil
}
