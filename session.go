package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/audio"
	"github.com/dgnsrekt/cuecast/internal/clip"
	"github.com/dgnsrekt/cuecast/internal/config"
	"github.com/dgnsrekt/cuecast/internal/observe"
	"github.com/dgnsrekt/cuecast/internal/orchestrator"
	"github.com/dgnsrekt/cuecast/internal/phrases"
	"github.com/dgnsrekt/cuecast/internal/speech"
)

// session owns everything a command needs to play audio.
type session struct {
	orch     *orchestrator.Orchestrator
	device   *audio.Device
	provider *observe.Provider
	cancel   context.CancelFunc
}

func newSession(ctx context.Context, cfg config.Config) (*session, error) {
	ctx, cancel := context.WithCancel(ctx)
	s := &session{cancel: cancel}
	logger := log.Default()

	metrics := observe.Discard()
	if cfg.Metrics.Addr != "" {
		p, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "cuecast", ServiceVersion: Version})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("unable to set up metrics: %w", err)
		}
		s.provider = p
		metrics = p.Metrics
		go func() {
			if err := p.Serve(ctx, cfg.Metrics.Addr); err != nil {
				log.Warn("Metrics server stopped", "addr", cfg.Metrics.Addr, "err", err)
			}
		}()
	}

	device, err := audio.NewDevice(audio.DefaultDeviceConfig())
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("unable to open audio output: %w", err)
	}
	s.device = device

	loader, err := newLoader(cfg.Assets)
	if err != nil {
		s.Close()
		return nil, err
	}

	store, err := newPhraseStore(ctx, cfg.Phrases)
	if err != nil {
		s.Close()
		return nil, err
	}

	profiler, err := cfg.Profiler()
	if err != nil {
		s.Close()
		return nil, err
	}

	deps := orchestrator.Deps{
		Sink:     device,
		Loader:   loader,
		Layout:   clip.Layout{Ext: cfg.Assets.Ext},
		Profiler: profiler,
		Phrases:  store,
		Logger:   logger,
		Metrics:  metrics,
	}
	if backends := speechBackends(cfg.Speech); len(backends) > 0 {
		deps.Engine = speech.NewDeviceEngine(device, logger, backends...)
	}

	orch, err := orchestrator.New(deps, orchestrator.Config{
		Volume:    cfg.Playback.Volume,
		Locale:    cfg.Playback.Locale,
		UserAgent: cfg.Host.UserAgent,
		VoiceWait: cfg.Playback.VoiceWait,
		Resolver:  cfg.ResolverConfig(),
		Prefetch:  cfg.CacheConfig(),
	})
	if err != nil {
		s.Close()
		return nil, err
	}
	s.orch = orch
	return s, nil
}

func newLoader(cfg config.AssetsConfig) (clip.Loader, error) {
	if cfg.BaseURL != "" {
		l, err := clip.NewHTTPLoader(cfg.BaseURL, http.DefaultClient)
		if err != nil {
			return nil, fmt.Errorf("invalid asset base url: %w", err)
		}
		log.Debug("Loading clips over HTTP", "base", cfg.BaseURL)
		return l, nil
	}
	log.Debug("Loading clips from directory", "dir", cfg.Dir)
	return clip.NewDirLoader(cfg.Dir), nil
}

func newPhraseStore(ctx context.Context, cfg config.PhrasesConfig) (*phrases.Store, error) {
	if cfg.File == "" {
		return phrases.NewStore(nil), nil
	}
	c, err := phrases.LoadFile(cfg.File)
	if err != nil {
		return nil, fmt.Errorf("unable to load phrases: %w", err)
	}
	store := phrases.NewStore(c)
	if cfg.Watch {
		go func() {
			if err := store.Watch(ctx, cfg.File, log.Default()); err != nil {
				log.Warn("Phrase catalog watch stopped", "err", err)
			}
		}()
	}
	return store, nil
}

// speechBackends returns the configured synthesis backends in preference
// order. An empty result means the host has no speech at all.
func speechBackends(cfg config.SpeechConfig) []speech.Backend {
	gtts := speech.NewGTTS(speech.GTTSConfig{
		Binary:            cfg.GTTS.Binary,
		TLD:               cfg.GTTS.TLD,
		Slow:              cfg.GTTS.Slow,
		RequestsPerMinute: cfg.GTTS.RequestsPerMinute,
	})

	var piper *speech.Piper
	if cfg.Piper.ModelPath != "" {
		var err error
		piper, err = speech.NewPiper(speech.PiperConfig{
			Binary:    cfg.Piper.Binary,
			ModelPath: cfg.Piper.ModelPath,
			Speaker:   cfg.Piper.Speaker,
		})
		if err != nil {
			log.Warn("Piper unavailable", "err", err)
			piper = nil
		}
	}

	switch cfg.Engine {
	case config.EngineNone:
		return nil
	case config.EngineGTTS:
		return []speech.Backend{gtts}
	case config.EnginePiper:
		if piper == nil {
			return nil
		}
		return []speech.Backend{piper}
	}

	var out []speech.Backend
	if piper != nil {
		if err := piper.Available(); err == nil {
			out = append(out, piper)
		} else {
			log.Debug("Skipping piper", "err", err)
		}
	}
	if err := gtts.Available(); err == nil {
		out = append(out, gtts)
	} else {
		log.Debug("Skipping gtts", "err", err)
	}
	return out
}

// Close releases the orchestrator, the audio device and the metrics
// provider.
func (s *session) Close() {
	if s.orch != nil {
		s.orch.Close()
	}
	if s.device != nil {
		if err := s.device.Close(); err != nil {
			log.Debug("Audio device close failed", "err", err)
		}
	}
	if s.provider != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := s.provider.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Debug("Metrics shutdown failed", "err", err)
		}
		cancel()
	}
	s.cancel()
}
