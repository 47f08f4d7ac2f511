// verba-file transcribes a WAV file offline by replaying it through the same
// segmentation pipeline used for live audio. There is no separate whole-file
// transcription path: the file is delivered in 100 ms slices so voice-activity
// boundaries match what live capture would have produced.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/verbalabs/verba-core/internal/audio"
	"github.com/verbalabs/verba-core/internal/config"
	"github.com/verbalabs/verba-core/internal/stt"
)

func main() {
	var (
		configPath string
		filePath   string
		realtime   bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file (defaults used when empty)")
	flag.StringVar(&filePath, "file", "", "WAV file to transcribe (16 kHz mono)")
	flag.BoolVar(&realtime, "realtime", false, "Pace replay at capture speed instead of as fast as possible")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	if filePath == "" {
		logger.Error("missing required -file flag")
		os.Exit(2)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	samples, rate, err := audio.LoadWAV(filePath)
	if err != nil {
		logger.Error("failed to load audio", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if rate != cfg.VAD.SampleRate {
		logger.Error("sample rate mismatch, resample the file first",
			slog.Int("file_rate", rate), slog.Int("expected", cfg.VAD.SampleRate))
		os.Exit(1)
	}

	recognizer, err := stt.NewRecognizer(cfg.STT)
	if err != nil {
		logger.Error("failed to build recognizer", slog.String("error", err.Error()))
		os.Exit(1)
	}

	scheduler := stt.NewScheduler(recognizer, logger)
	defer scheduler.Close()
	scheduler.SetReady(true)

	pipeline := stt.NewPipeline(stt.SegmenterConfig(cfg.VAD), scheduler)
	pipeline.PartialsEnabled = false

	opts := stt.ReplayOptions{ChunkSamples: cfg.VAD.ReplayChunkSamples}
	if realtime {
		opts.Pacing = time.Duration(cfg.VAD.ReplayChunkSamples) * time.Second / time.Duration(cfg.VAD.SampleRate)
	}

	if err := pipeline.Replay(context.Background(), samples, opts); err != nil {
		logger.Error("replay failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	pipeline.Wait()

	fmt.Println(scheduler.CommittedText())
}
