package stt

import (
	"context"
	"fmt"

	"github.com/verbalabs/verba-core/internal/config"
)

// Result captures recognizer output for one segment.
type Result struct {
	Text       string
	Confidence float64
}

// Recognizer abstracts the speech recognition engine. Implementations take
// normalized float32 mono samples at the configured sample rate and must be
// safe to call repeatedly; no session state is assumed between calls.
//
// The scheduler guarantees at most one Transcribe call is in flight at a time,
// so implementations need not be concurrency-safe beyond that.
type Recognizer interface {
	Transcribe(ctx context.Context, samples []float32) (Result, error)
}

// NewRecognizer builds the recognizer backend selected by cfg.Mode.
func NewRecognizer(cfg config.STTConfig) (Recognizer, error) {
	switch cfg.Mode {
	case "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "native":
		return NewWhisperRecognizer(cfg)
	default:
		return nil, fmt.Errorf("unknown stt mode %q", cfg.Mode)
	}
}
