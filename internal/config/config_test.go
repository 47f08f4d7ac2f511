package config

import "testing"

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.VAD.SampleRate != 16000 {
		t.Fatalf("expected 16kHz default sample rate, got %d", cfg.VAD.SampleRate)
	}
	if cfg.VAD.SilenceThreshold != 0.02 {
		t.Fatalf("expected default silence threshold 0.02, got %f", cfg.VAD.SilenceThreshold)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("VERBA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("VERBA_BUS_USERNAME", "alice")
	t.Setenv("VERBA_BUS_PASSWORD", "secret")
	t.Setenv("VERBA_VAD_SILENCE_THRESHOLD", "0.05")
	t.Setenv("VERBA_VAD_MIN_SPEECH_MS", "300")
	t.Setenv("VERBA_VAD_MAX_SILENCE_MS", "1200")
	t.Setenv("VERBA_STT_MODE", "mock")
	t.Setenv("VERBA_STT_PUBLISH_INTERIM", "false")
	t.Setenv("VERBA_TRANSCRIPT_STORE_PATH", "./tmp.db")
	t.Setenv("VERBA_TRANSCRIPT_STORE_RETENTION_MODE", "persistent")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if cfg.VAD.SilenceThreshold != 0.05 {
		t.Fatalf("expected silence threshold override, got %f", cfg.VAD.SilenceThreshold)
	}
	if cfg.VAD.MinSpeechMS != 300 {
		t.Fatalf("expected min speech override, got %d", cfg.VAD.MinSpeechMS)
	}
	if cfg.VAD.MaxSilenceMS != 1200 {
		t.Fatalf("expected max silence override, got %d", cfg.VAD.MaxSilenceMS)
	}
	if cfg.STT.PublishInterim {
		t.Fatal("expected publish interim override false")
	}
	if cfg.TranscriptStore.Path != "./tmp.db" {
		t.Fatalf("expected transcript store path override")
	}
	if cfg.TranscriptStore.RetentionMode != "persistent" {
		t.Fatalf("expected transcript store retention mode override")
	}
}

func TestValidateRejectsBadMode(t *testing.T) {
	t.Setenv("VERBA_STT_MODE", "carrier-pigeon")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for unknown stt mode")
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("VERBA_STT_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected error for exec mode without command")
	}
}
