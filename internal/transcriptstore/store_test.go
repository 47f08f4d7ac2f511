package transcriptstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/verbalabs/verba-core/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.TranscriptStoreConfig{RetentionMode: "ephemeral"}
	ts, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = ts.Close() })
	if err := ts.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := ts.AppendSegment(ctx, Segment{SessionID: "s", Text: "ignored"}); err != nil {
		t.Fatalf("ephemeral append should be a no-op: %v", err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptStoreConfig{Path: filepath.Join(tmp, "transcripts.db"), RetentionMode: "session"}
	ts, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = ts.Close() })

	sessionID := "session-123"
	if err := ts.AppendSession(context.Background(), sessionID); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := ts.AppendSegment(context.Background(), Segment{SessionID: sessionID, Text: "hello there", Confidence: 0.9}); err != nil {
		t.Fatalf("append segment: %v", err)
	}
	if err := ts.AppendSegment(context.Background(), Segment{SessionID: sessionID, Text: "general"}); err != nil {
		t.Fatalf("append segment: %v", err)
	}

	segments, err := ts.ListSegments(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].Text != "hello there" {
		t.Fatalf("unexpected first segment: %q", segments[0].Text)
	}

	transcript, err := ts.SessionTranscript(context.Background(), sessionID)
	if err != nil {
		t.Fatalf("session transcript: %v", err)
	}
	if transcript != "hello there general" {
		t.Fatalf("unexpected transcript: %q", transcript)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.TranscriptStoreConfig{
		Path:          filepath.Join(tmp, "transcripts.db"),
		RetentionMode: "persistent",
		RetentionDays: 1,
		MaxSessions:   1,
	}
	ts, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open transcript store: %v", err)
	}
	t.Cleanup(func() { _ = ts.Close() })

	ts.clock = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := ts.AppendSession(context.Background(), "old-session"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := ts.AppendSegment(context.Background(), Segment{SessionID: "old-session", Text: "stale"}); err != nil {
		t.Fatalf("append segment: %v", err)
	}

	ts.clock = func() time.Time { return time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := ts.AppendSession(context.Background(), "new-session"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := ts.Prune(context.Background()); err != nil {
		t.Fatalf("prune: %v", err)
	}

	segments, err := ts.ListSegments(context.Background(), "old-session", 10)
	if err != nil {
		t.Fatalf("list segments: %v", err)
	}
	if len(segments) != 0 {
		t.Fatalf("expected old session pruned, got %d segments", len(segments))
	}
}
