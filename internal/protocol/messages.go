package protocol

import "time"

// AudioFrame represents PCM audio data streamed from capture devices.
// PCM is 16-bit signed little-endian at SampleRate; the service converts it
// to float32 before segmentation.
type AudioFrame struct {
	SessionID  string `json:"session_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// LevelUpdate carries the RMS loudness of a single processed chunk, published
// for UI level meters.
type LevelUpdate struct {
	SessionID string    `json:"session_id"`
	RMS       float64   `json:"rms"`
	Timestamp time.Time `json:"timestamp"`
}

// Transcript represents recognition output broadcast on the bus. Partial
// transcripts replace the previous partial wholesale; final transcripts are
// appended permanently to the session transcript.
type Transcript struct {
	SessionID  string    `json:"session_id"`
	Text       string    `json:"text"`
	Partial    bool      `json:"partial"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence float64   `json:"confidence,omitempty"`
}

const (
	SubjectAudioFramePrefix  = "audio.frame"
	SubjectAudioLevel        = "audio.level"
	SubjectTranscriptPartial = "stt.text.partial"
	SubjectTranscriptFinal   = "stt.text.final"
)
