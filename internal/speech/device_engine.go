package speech

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/audio"
	"github.com/dgnsrekt/cuecast/internal/cue"
)

// Backend turns text into PCM with one synthesis program.
type Backend interface {
	// Name identifies the backend in logs.
	Name() string

	// Voices lists the voices the backend offers. It may be slow.
	Voices(ctx context.Context) ([]Voice, error)

	// Synthesize renders u with voice v, which is one of Voices or nil.
	Synthesize(ctx context.Context, u Utterance, v *Voice) ([]byte, audio.Format, error)
}

// voiceLoadTimeout bounds a backend voice listing.
const voiceLoadTimeout = 10 * time.Second

// DeviceEngine is an Engine that synthesizes with backends and plays the
// result on an audio sink. The voice list loads lazily in the background
// on first use.
type DeviceEngine struct {
	sink     audio.Sink
	backends []Backend
	logger   *log.Logger

	mu      sync.Mutex
	voices  []Voice
	owners  map[Voice]Backend
	loading bool
	changed chan struct{}
	current *utterance
}

type utterance struct {
	cancel context.CancelFunc
}

// NewDeviceEngine creates an engine playing on sink.
func NewDeviceEngine(sink audio.Sink, logger *log.Logger, backends ...Backend) *DeviceEngine {
	if logger == nil {
		logger = log.Default()
	}
	return &DeviceEngine{
		sink:     sink,
		backends: backends,
		logger:   logger,
		owners:   make(map[Voice]Backend),
		changed:  make(chan struct{}),
	}
}

// Voices returns the voices loaded so far and starts loading on first call.
func (e *DeviceEngine) Voices() []Voice {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLoadLocked()

	out := make([]Voice, len(e.voices))
	copy(out, e.voices)
	return out
}

// VoicesChanged fires when a backend's voices arrive.
func (e *DeviceEngine) VoicesChanged() <-chan struct{} {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startLoadLocked()
	return e.changed
}

func (e *DeviceEngine) startLoadLocked() {
	if e.loading {
		return
	}
	e.loading = true
	for _, b := range e.backends {
		go e.loadVoices(b)
	}
}

func (e *DeviceEngine) loadVoices(b Backend) {
	ctx, cancel := context.WithTimeout(context.Background(), voiceLoadTimeout)
	defer cancel()

	voices, err := b.Voices(ctx)
	if err != nil {
		e.logger.Warn("Failed to list voices", "backend", b.Name(), "err", err)
		return
	}
	if len(voices) == 0 {
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, v := range voices {
		if _, ok := e.owners[v]; ok {
			continue
		}
		e.owners[v] = b
		e.voices = append(e.voices, v)
	}
	close(e.changed)
	e.changed = make(chan struct{})
	e.logger.Debug("Voices loaded", "backend", b.Name(), "count", len(voices))
}

// backendFor returns the backend that owns v, or the first backend.
func (e *DeviceEngine) backendFor(v *Voice) Backend {
	e.mu.Lock()
	defer e.mu.Unlock()
	if v != nil {
		if b, ok := e.owners[*v]; ok {
			return b
		}
	}
	if len(e.backends) == 0 {
		return nil
	}
	return e.backends[0]
}

// Speak synthesizes and plays u, replacing any current utterance.
func (e *DeviceEngine) Speak(ctx context.Context, u Utterance) error {
	if u.Text == "" {
		return nil
	}
	b := e.backendFor(u.Voice)
	if b == nil {
		return cue.ErrSynthesisUnavailable
	}

	speakCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	mine := &utterance{cancel: cancel}

	e.mu.Lock()
	if e.current != nil {
		e.current.cancel()
	}
	e.current = mine
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		if e.current == mine {
			e.current = nil
		}
		e.mu.Unlock()
	}()

	interrupted := func(err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if speakCtx.Err() != nil {
			return cue.ErrInterrupted
		}
		return err
	}

	pcm, format, err := b.Synthesize(speakCtx, u, u.Voice)
	if err != nil {
		return interrupted(fmt.Errorf("%w: %s: %v", cue.ErrSynthesisEngine, b.Name(), err))
	}
	if pcm, err = audio.Resample(pcm, format, e.sink.Format()); err != nil {
		return fmt.Errorf("%w: %v", cue.ErrSynthesisEngine, err)
	}

	pb, err := e.sink.Start(pcm, u.Volume)
	if err != nil {
		return err
	}
	if err := pb.Wait(speakCtx); err != nil {
		return interrupted(err)
	}
	return nil
}

// Cancel interrupts the current utterance.
func (e *DeviceEngine) Cancel() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil {
		e.current.cancel()
		e.current = nil
	}
}

// errNoVoices is returned by backends that find nothing to offer.
var errNoVoices = errors.New("no voices available")
