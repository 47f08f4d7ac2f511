package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName     string                `yaml:"runtime_name"`
	Environment     string                `yaml:"environment"`
	HTTP            HTTPConfig            `yaml:"http"`
	Telemetry       TelemetryConfig       `yaml:"telemetry"`
	Bus             BusConfig             `yaml:"bus"`
	VAD             VADConfig             `yaml:"vad"`
	STT             STTConfig             `yaml:"stt"`
	TranscriptStore TranscriptStoreConfig `yaml:"transcript_store"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

// VADConfig controls the voice-activity segmenter. Durations are in
// milliseconds; the silence threshold is an RMS value over float samples in
// [-1.0, 1.0].
type VADConfig struct {
	SampleRate         int     `yaml:"sample_rate"`
	SilenceThreshold   float64 `yaml:"silence_threshold"`
	MinSpeechMS        int     `yaml:"min_speech_ms"`
	MaxSilenceMS       int     `yaml:"max_silence_ms"`
	ReplayChunkSamples int     `yaml:"replay_chunk_samples"`
}

type STTConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Mode           string `yaml:"mode"` // mock, exec, native
	Command        string `yaml:"command"`
	ModelPath      string `yaml:"model_path"`
	Language       string `yaml:"language"`
	SampleRate     int    `yaml:"sample_rate"`
	Channels       int    `yaml:"channels"`
	PublishInterim bool   `yaml:"publish_interim"`
}

type TranscriptStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

func Default() Config {
	return Config{
		RuntimeName: "verba-runtime",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8080,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9091",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		VAD: VADConfig{
			SampleRate:         16000,
			SilenceThreshold:   0.02,
			MinSpeechMS:        500,
			MaxSilenceMS:       800,
			ReplayChunkSamples: 1600,
		},
		STT: STTConfig{
			Enabled:        true,
			Mode:           "mock",
			SampleRate:     16000,
			Channels:       1,
			PublishInterim: true,
		},
		TranscriptStore: TranscriptStoreConfig{
			Path:          "./data/verba-transcripts.db",
			RetentionMode: "ephemeral",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "VERBA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "VERBA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "VERBA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "VERBA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "VERBA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VERBA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VERBA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VERBA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Bus.Embedded, "VERBA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VERBA_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VERBA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VERBA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VERBA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VERBA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VERBA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VERBA_BUS_CONNECT_TIMEOUT_MS")
	overrideInt(&cfg.VAD.SampleRate, "VERBA_VAD_SAMPLE_RATE")
	overrideFloat(&cfg.VAD.SilenceThreshold, "VERBA_VAD_SILENCE_THRESHOLD")
	overrideInt(&cfg.VAD.MinSpeechMS, "VERBA_VAD_MIN_SPEECH_MS")
	overrideInt(&cfg.VAD.MaxSilenceMS, "VERBA_VAD_MAX_SILENCE_MS")
	overrideInt(&cfg.VAD.ReplayChunkSamples, "VERBA_VAD_REPLAY_CHUNK_SAMPLES")
	overrideBool(&cfg.STT.Enabled, "VERBA_STT_ENABLED")
	overrideString(&cfg.STT.Mode, "VERBA_STT_MODE")
	overrideString(&cfg.STT.Command, "VERBA_STT_COMMAND")
	overrideString(&cfg.STT.ModelPath, "VERBA_STT_MODEL_PATH")
	overrideString(&cfg.STT.Language, "VERBA_STT_LANGUAGE")
	overrideInt(&cfg.STT.SampleRate, "VERBA_STT_SAMPLE_RATE")
	overrideInt(&cfg.STT.Channels, "VERBA_STT_CHANNELS")
	overrideBool(&cfg.STT.PublishInterim, "VERBA_STT_PUBLISH_INTERIM")
	overrideString(&cfg.TranscriptStore.Path, "VERBA_TRANSCRIPT_STORE_PATH")
	overrideString(&cfg.TranscriptStore.RetentionMode, "VERBA_TRANSCRIPT_STORE_RETENTION_MODE")
	overrideInt(&cfg.TranscriptStore.RetentionDays, "VERBA_TRANSCRIPT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.TranscriptStore.MaxSessions, "VERBA_TRANSCRIPT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.TranscriptStore.VacuumOnStart, "VERBA_TRANSCRIPT_STORE_VACUUM_ON_START")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func overrideFloat(target *float64, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			*target = parsed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if cfg.VAD.SampleRate <= 0 {
		return errors.New("vad.sample_rate must be positive")
	}
	if cfg.VAD.SilenceThreshold <= 0 || cfg.VAD.SilenceThreshold >= 1 {
		return errors.New("vad.silence_threshold must be between 0 and 1")
	}
	if cfg.VAD.MinSpeechMS < 0 {
		return errors.New("vad.min_speech_ms must be >= 0")
	}
	if cfg.VAD.MaxSilenceMS <= 0 {
		return errors.New("vad.max_silence_ms must be positive")
	}
	if cfg.VAD.ReplayChunkSamples <= 0 {
		return errors.New("vad.replay_chunk_samples must be positive")
	}
	if cfg.STT.Enabled {
		switch cfg.STT.Mode {
		case "mock", "exec", "native":
		default:
			return errors.New("stt.mode must be one of mock|exec|native")
		}
		if cfg.STT.SampleRate <= 0 {
			return errors.New("stt.sample_rate must be positive")
		}
		if cfg.STT.Channels <= 0 {
			return errors.New("stt.channels must be positive")
		}
		if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
			return errors.New("stt.command must be set when mode=exec")
		}
		if cfg.STT.Mode == "native" && cfg.STT.ModelPath == "" {
			return errors.New("stt.model_path must be set when mode=native")
		}
	}
	if cfg.TranscriptStore.Path == "" {
		return errors.New("transcript_store.path must not be empty")
	}
	switch cfg.TranscriptStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("transcript_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.TranscriptStore.RetentionDays < 0 {
		return errors.New("transcript_store.retention_days must be >= 0")
	}
	return nil
}
