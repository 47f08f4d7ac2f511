package stt

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/verbalabs/verba-core/internal/audio"
	"github.com/verbalabs/verba-core/internal/bus"
	"github.com/verbalabs/verba-core/internal/config"
	"github.com/verbalabs/verba-core/internal/protocol"
	"github.com/verbalabs/verba-core/internal/transcriptstore"
	"github.com/verbalabs/verba-core/internal/vad"
	"golang.org/x/sync/semaphore"
)

// Service subscribes to audio frames on the bus and drives one segmentation
// pipeline per session. All pipelines share one recognition gate: the engine
// is a single resource no matter how many sessions feed it.
type Service struct {
	cfg      config.STTConfig
	vadCfg   vad.Config
	bus      *bus.Client
	rec      Recognizer
	store    *transcriptstore.Store
	gate     *semaphore.Weighted
	sessions map[string]*session
	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	sub      *nats.Subscription
	wg       sync.WaitGroup
	ready    bool
}

type session struct {
	id       string
	pipeline *Pipeline
}

func NewService(parent context.Context, cfg config.STTConfig, vadCfg config.VADConfig, busClient *bus.Client, rec Recognizer, store *transcriptstore.Store) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		vadCfg:   SegmenterConfig(vadCfg),
		bus:      busClient,
		rec:      rec,
		store:    store,
		gate:     NewGate(),
		sessions: make(map[string]*session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// SegmenterConfig maps the yaml-level VAD settings onto segmenter tuning.
func SegmenterConfig(cfg config.VADConfig) vad.Config {
	return vad.Config{
		SampleRate:       cfg.SampleRate,
		SilenceThreshold: cfg.SilenceThreshold,
		MinSpeech:        time.Duration(cfg.MinSpeechMS) * time.Millisecond,
		MaxSilence:       time.Duration(cfg.MaxSilenceMS) * time.Millisecond,
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	subject := protocol.SubjectAudioFramePrefix + ".>"
	sub, err := s.bus.Conn().Subscribe(subject, s.handleFrame)
	if err != nil {
		return err
	}
	s.sub = sub
	s.ready = true
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.pipeline.Scheduler.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) Healthy() bool {
	return !s.cfg.Enabled || s.ready
}

func (s *Service) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		s.bus.Logger().Warn("failed to decode audio frame", slogError(err))
		return
	}

	sess := s.ensureSession(frame.SessionID)

	channels := frame.Channels
	if channels <= 0 {
		channels = s.cfg.Channels
	}
	chunk := audio.PCM16ToFloat32Mono(frame.PCM, channels)
	sess.pipeline.Process(chunk)

	if frame.Final {
		sess.pipeline.ForceFlush()
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			sess.pipeline.Wait()
			sess.pipeline.Scheduler.Close()
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
		}()
	}
}

func (s *Service) ensureSession(sessionID string) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess
	}

	scheduler := NewScheduler(s.rec, s.bus.Logger(), WithGate(s.gate))
	scheduler.SetReady(true)
	scheduler.OnPartialText = func(text string) {
		if text == "" {
			return
		}
		s.publishTranscript(sessionID, text, true)
	}
	scheduler.OnFinalText = func(text string) {
		s.publishTranscript(sessionID, text, false)
		s.recordSegment(sessionID, text)
	}

	pipeline := NewPipeline(s.vadCfg, scheduler)
	pipeline.PartialsEnabled = s.cfg.PublishInterim
	pipeline.OnLevel = func(rms float64) {
		s.publishLevel(sessionID, rms)
	}

	sess := &session{id: sessionID, pipeline: pipeline}
	s.sessions[sessionID] = sess

	if s.store != nil {
		if err := s.store.AppendSession(s.ctx, sessionID); err != nil {
			s.bus.Logger().Warn("failed to record session", slogError(err))
		}
	}
	return sess
}

func (s *Service) publishTranscript(sessionID, text string, partial bool) {
	if text == "" {
		return
	}
	subject := protocol.SubjectTranscriptFinal
	if partial {
		subject = protocol.SubjectTranscriptPartial
	}
	msg := protocol.Transcript{
		SessionID: sessionID,
		Text:      text,
		Partial:   partial,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		s.bus.Logger().Warn("failed to marshal transcript", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(subject, data); err != nil {
		s.bus.Logger().Warn("failed to publish transcript", slogError(err))
	}
}

func (s *Service) publishLevel(sessionID string, rms float64) {
	msg := protocol.LevelUpdate{
		SessionID: sessionID,
		RMS:       rms,
		Timestamp: time.Now().UTC(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectAudioLevel, data); err != nil {
		s.bus.Logger().Warn("failed to publish level update", slogError(err))
	}
}

func (s *Service) recordSegment(sessionID, text string) {
	if s.store == nil {
		return
	}
	err := s.store.AppendSegment(s.ctx, transcriptstore.Segment{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		s.bus.Logger().Warn("failed to record transcript segment", slogError(err))
	}
}
