package vad

import (
	"math"
	"time"
)

// Listener receives segmentation events pushed synchronously from Process.
// Level fires once per chunk and always before any other event derived from
// that chunk. Partial and Final receive copies of the accumulated buffer, so
// callers may retain or mutate them freely.
type Listener interface {
	Level(rms float64)
	SpeechStart()
	Partial(samples []float32)
	Final(samples []float32)
}

// Config holds segmenter tuning. SilenceThreshold is an RMS value over
// normalized float samples; chunks above it count as speech.
type Config struct {
	SampleRate       int
	SilenceThreshold float64
	MinSpeech        time.Duration
	MaxSilence       time.Duration
}

func DefaultConfig() Config {
	return Config{
		SampleRate:       16000,
		SilenceThreshold: 0.02,
		MinSpeech:        500 * time.Millisecond,
		MaxSilence:       800 * time.Millisecond,
	}
}

// Segmenter turns a stream of fixed-rate audio chunks into voice-activity
// delimited segments. It is not safe for concurrent use; a session owns one
// Segmenter and calls Process from a single goroutine.
type Segmenter struct {
	cfg      Config
	listener Listener

	active  bool
	buf     []float32
	speech  float64 // accumulated speech seconds since segment start
	silence float64 // accumulated trailing silence seconds
}

func NewSegmenter(cfg Config, listener Listener) *Segmenter {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 16000
	}
	return &Segmenter{cfg: cfg, listener: listener}
}

// Process consumes one chunk. Duration accounting uses sample counts, not
// wall-clock time, so a replayed file segments identically to live capture.
func (s *Segmenter) Process(chunk []float32) {
	rms := RMS(chunk)
	s.listener.Level(rms)

	dur := float64(len(chunk)) / float64(s.cfg.SampleRate)
	loud := rms > s.cfg.SilenceThreshold

	if !s.active {
		if !loud {
			return
		}
		s.active = true
		s.silence = 0
		s.speech += dur
		s.buf = append(s.buf, chunk...)
		s.listener.SpeechStart()
		return
	}

	s.buf = append(s.buf, chunk...)
	if loud {
		s.silence = 0
		s.speech += dur
		s.listener.Partial(snapshot(s.buf))
		return
	}

	// Quiet chunk while active: keep it for trailing context and finalize
	// once the silence window is exceeded.
	s.silence += dur
	if s.silence > s.cfg.MaxSilence.Seconds() {
		s.finalize()
	}
}

// ForceFlush finalizes any in-progress segment. Callers use it at
// end-of-stream so trailing speech that never hit the silence window is not
// lost.
func (s *Segmenter) ForceFlush() {
	if !s.active {
		return
	}
	s.finalize()
}

// Reset discards all in-progress state without emitting events.
func (s *Segmenter) Reset() {
	s.active = false
	s.buf = s.buf[:0]
	s.speech = 0
	s.silence = 0
}

// finalize emits the accumulated buffer when enough speech was captured;
// segments shorter than MinSpeech are dropped as noise. State always resets
// to idle either way.
func (s *Segmenter) finalize() {
	if s.speech > s.cfg.MinSpeech.Seconds() {
		s.listener.Final(snapshot(s.buf))
	}
	s.Reset()
}

func snapshot(buf []float32) []float32 {
	out := make([]float32, len(buf))
	copy(out, buf)
	return out
}

// RMS returns the root-mean-square amplitude of a sample block. Empty chunks
// yield 0, never NaN.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range samples {
		f := float64(v)
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}
