package stt

import (
	"context"
	"fmt"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer that reports the segment length
// instead of real text, for tests and smoke runs without a model.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, samples []float32) (Result, error) {
	return Result{
		Text:       fmt.Sprintf("[transcript samples=%d]", len(samples)),
		Confidence: 0,
	}, nil
}
