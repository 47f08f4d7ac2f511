// This file contains the whisper.cpp-backed recognizer using the CGO Go
// bindings. The whisper.cpp static library (libwhisper.a) and headers
// (whisper.h) must be available at link time via LIBRARY_PATH and
// C_INCLUDE_PATH.

package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/verbalabs/verba-core/internal/config"
)

type whisperRecognizer struct {
	model    whisperlib.Model
	language string
}

// NewWhisperRecognizer loads a whisper.cpp model from cfg.ModelPath. The model
// is loaded once and reused for every segment; a fresh whisper context is
// created per inference because contexts are not reusable across calls.
func NewWhisperRecognizer(cfg config.STTConfig) (Recognizer, error) {
	if cfg.ModelPath == "" {
		return nil, errors.New("stt model path must not be empty")
	}
	model, err := whisperlib.New(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("load whisper model %q: %w", cfg.ModelPath, err)
	}
	return &whisperRecognizer{model: model, language: cfg.Language}, nil
}

func (r *whisperRecognizer) Transcribe(ctx context.Context, samples []float32) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	wctx, err := r.model.NewContext()
	if err != nil {
		return Result{}, fmt.Errorf("create whisper context: %w", err)
	}
	if r.language != "" {
		if err := wctx.SetLanguage(r.language); err != nil {
			return Result{}, fmt.Errorf("set whisper language %q: %w", r.language, err)
		}
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return Result{}, fmt.Errorf("whisper process: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Result{}, fmt.Errorf("read whisper segment: %w", err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return Result{Text: strings.Join(parts, " ")}, nil
}

// Close releases the loaded model.
func (r *whisperRecognizer) Close() error {
	if r.model != nil {
		return r.model.Close()
	}
	return nil
}
