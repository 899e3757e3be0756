// Package orchestrator is the public face of cuecast. One Orchestrator is
// created per session and handed to the UI; it unlocks audio, classifies the
// host, serializes playback requests and resolves each one through the
// fallback chain.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/audio"
	"github.com/dgnsrekt/cuecast/internal/cache"
	"github.com/dgnsrekt/cuecast/internal/clip"
	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/dgnsrekt/cuecast/internal/observe"
	"github.com/dgnsrekt/cuecast/internal/phrases"
	"github.com/dgnsrekt/cuecast/internal/profile"
	"github.com/dgnsrekt/cuecast/internal/queue"
	"github.com/dgnsrekt/cuecast/internal/resolve"
	"github.com/dgnsrekt/cuecast/internal/speech"
	"github.com/dgnsrekt/cuecast/internal/tone"
	"github.com/dgnsrekt/cuecast/internal/unlock"
)

// ErrClosed is returned by background playback after Close.
var ErrClosed = errors.New("orchestrator closed")

// Deps are the platform collaborators. Sink and Loader are required.
type Deps struct {
	Sink   audio.Sink
	Loader clip.Loader
	Layout clip.Layout
	Decode audio.DecodeFunc

	// Engine is nil when the host has no speech synthesis at all.
	Engine speech.Engine

	Profiler *profile.Profiler
	Delay    profile.DelayPolicy
	Phrases  *phrases.Store
	Picker   *phrases.Picker

	Logger  *log.Logger
	Metrics *observe.Metrics
}

// Config holds the session settings.
type Config struct {
	Volume    float64
	Locale    string
	UserAgent string
	VoiceWait time.Duration
	Resolver  resolve.Config
	Prefetch  cache.Config
}

// DefaultConfig returns the standard session settings.
func DefaultConfig() Config {
	return Config{
		Volume:    1,
		Locale:    "zh-CN",
		VoiceWait: speech.DefaultVoiceWait,
		Resolver:  resolve.DefaultConfig(),
		Prefetch:  cache.DefaultConfig(),
	}
}

// Stats is a snapshot of the queue and prefetch cache.
type Stats struct {
	Queue    queue.Stats
	Prefetch cache.Stats
}

// Orchestrator coordinates all audio of a session.
type Orchestrator struct {
	deps   Deps
	config Config
	logger *log.Logger

	volume atomic.Uint64

	unlock    *unlock.Coordinator
	tones     *tone.Player
	prefetch  *cache.Prefetcher
	resolver  *resolve.Resolver
	scheduler *queue.Scheduler

	bgMu       sync.Mutex
	background audio.Playback

	closeOnce sync.Once
	closed    atomic.Bool
}

// New wires an orchestrator from deps.
func New(deps Deps, config Config) (*Orchestrator, error) {
	if deps.Sink == nil {
		return nil, errors.New("orchestrator needs an audio sink")
	}
	if deps.Loader == nil {
		return nil, errors.New("orchestrator needs a clip loader")
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if deps.Layout.Ext == "" {
		deps.Layout = clip.DefaultLayout()
	}
	if deps.Decode == nil {
		deps.Decode = audio.DecoderFor(deps.Layout.Ext)
	}
	if deps.Profiler == nil {
		deps.Profiler = profile.Default()
	}
	if deps.Phrases == nil {
		deps.Phrases = phrases.NewStore(nil)
	}
	if config.Locale == "" {
		config.Locale = DefaultConfig().Locale
	}
	if config.Prefetch.Timeout <= 0 {
		config.Prefetch.Timeout = cache.DefaultConfig().Timeout
	}

	o := &Orchestrator{deps: deps, config: config, logger: deps.Logger}
	o.volume.Store(math.Float64bits(clampVolume(config.Volume)))

	var speaker *speech.Speaker
	if deps.Engine != nil {
		sel, err := speech.NewSelector(config.Locale)
		if err != nil {
			return nil, fmt.Errorf("voice selector: %w", err)
		}
		speaker = speech.NewSpeaker(deps.Engine, speech.SpeakerConfig{
			Selector:  sel,
			VoiceWait: config.VoiceWait,
			Delay:     deps.Delay,
			Profile:   o.Profile,
		}, deps.Logger)
	}

	o.unlock = unlock.New(deps.Sink, deps.Engine, deps.Logger)
	o.tones = tone.NewPlayer(deps.Sink, o.unlock.Unlock, o.Volume, deps.Logger, deps.Metrics)
	o.prefetch = cache.NewPrefetcher(
		cache.ClipLoader(deps.Loader, deps.Layout, deps.Decode, deps.Sink.Format()),
		config.Prefetch, deps.Logger, deps.Metrics)
	o.scheduler = queue.NewScheduler(deps.Logger, deps.Metrics)

	resolver, err := resolve.New(resolve.Deps{
		Loader:  deps.Loader,
		Layout:  deps.Layout,
		Decode:  deps.Decode,
		Cache:   o.prefetch,
		Sink:    deps.Sink,
		Speaker: speaker,
		Profile: o.Profile,
		Phrases: deps.Phrases,
		Picker:  deps.Picker,
		Volume:  o.Volume,
		Logger:  deps.Logger,
		Metrics: deps.Metrics,
	}, config.Resolver)
	if err != nil {
		return nil, err
	}
	o.resolver = resolver

	return o, nil
}

// UnlockAudio runs the one-time unlock step. Later calls do nothing.
func (o *Orchestrator) UnlockAudio() {
	o.unlock.Unlock()
}

// Unlocked reports whether the session has been unlocked.
func (o *Orchestrator) Unlocked() bool {
	return o.unlock.Unlocked()
}

// SetVolume clamps v to [0,1] and applies it to later playback and the
// background track.
func (o *Orchestrator) SetVolume(v float64) {
	v = clampVolume(v)
	o.volume.Store(math.Float64bits(v))

	o.bgMu.Lock()
	defer o.bgMu.Unlock()
	if o.background != nil {
		o.background.SetVolume(v)
	}
}

// Volume returns the current session volume.
func (o *Orchestrator) Volume() float64 {
	return math.Float64frombits(o.volume.Load())
}

// Profile classifies the host. It is recomputed on every call.
func (o *Orchestrator) Profile() profile.Profile {
	return o.deps.Profiler.Classify(profile.Signals{
		UserAgent: o.config.UserAgent,
		SpeechAPI: o.deps.Engine != nil,
	})
}

// PlayCharacterSound queues a pronunciation of text.
func (o *Orchestrator) PlayCharacterSound(text string) *queue.Handle {
	return o.enqueue(cue.Request{Kind: cue.KindCharacter, Text: text})
}

// PlayPraise queues a praise phrase from cat.
func (o *Orchestrator) PlayPraise(cat cue.PraiseCategory) *queue.Handle {
	if cat == "" {
		cat = cue.PraiseBasic
	}
	return o.enqueue(cue.Request{Kind: cue.KindPraise, Category: cat})
}

// PlayEncouragement queues a consolation phrase.
func (o *Orchestrator) PlayEncouragement() *queue.Handle {
	return o.enqueue(cue.Request{Kind: cue.KindEncouragement})
}

func (o *Orchestrator) enqueue(req cue.Request) *queue.Handle {
	o.unlock.Unlock()
	return o.scheduler.Enqueue(req.Kind.String()+":"+req.Label(), queue.TaskFunc(func(ctx context.Context) error {
		return o.resolver.Resolve(ctx, req)
	}))
}

// PrefetchCharacters starts loading clips for tokens likely to be played
// soon. It never blocks.
func (o *Orchestrator) PrefetchCharacters(tokens []string) {
	o.unlock.Unlock()
	o.prefetch.Prefetch(tokens)
}

// WaitPrefetch blocks until every started prefetch has finished.
func (o *Orchestrator) WaitPrefetch() {
	o.prefetch.Wait()
}

// PlaySound plays a UI tone immediately, outside the queue.
func (o *Orchestrator) PlaySound(kind cue.ToneKind) {
	o.tones.Play(kind)
}

// StopAll cancels the queued and in-flight requests and silences speech.
// The background track keeps playing. It returns the number of requests
// canceled.
func (o *Orchestrator) StopAll() int {
	n := o.scheduler.Stop()
	if o.deps.Engine != nil {
		o.deps.Engine.Cancel()
	}
	o.logger.Debug("Stopped all playback", "canceled", n)
	return n
}

// IsPlaying reports whether a request is in flight.
func (o *Orchestrator) IsPlaying() bool {
	return o.scheduler.IsPlaying()
}

// Pending returns the number of queued requests behind the one in flight.
func (o *Orchestrator) Pending() int {
	return o.scheduler.Len()
}

// Stats returns queue and prefetch statistics.
func (o *Orchestrator) Stats() Stats {
	return Stats{Queue: o.scheduler.Stats(), Prefetch: o.prefetch.Stats()}
}

// PlayBackground loads ref and loops it outside the queue, replacing any
// current background track.
func (o *Orchestrator) PlayBackground(ctx context.Context, ref string) error {
	if o.closed.Load() {
		return ErrClosed
	}
	o.unlock.Unlock()

	ctx, cancel := context.WithTimeout(ctx, o.config.Prefetch.Timeout)
	defer cancel()

	data, err := o.deps.Loader.Load(ctx, ref)
	if err != nil {
		return fmt.Errorf("load background %s: %w", ref, err)
	}
	pcm, err := o.deps.Decode(data, o.deps.Sink.Format())
	if err != nil {
		return fmt.Errorf("decode background %s: %w", ref, err)
	}

	o.bgMu.Lock()
	defer o.bgMu.Unlock()

	if o.closed.Load() {
		return ErrClosed
	}
	if o.background != nil {
		o.background.Stop()
		o.background = nil
	}
	pb, err := o.deps.Sink.Loop(pcm, o.Volume())
	if err != nil {
		return fmt.Errorf("start background %s: %w", ref, err)
	}
	o.background = pb
	o.logger.Debug("Background track started", "ref", ref)
	return nil
}

// PauseBackground pauses the background track, if any.
func (o *Orchestrator) PauseBackground() {
	o.bgMu.Lock()
	defer o.bgMu.Unlock()
	if o.background != nil {
		o.background.Pause()
	}
}

// ResumeBackground resumes a paused background track.
func (o *Orchestrator) ResumeBackground() {
	o.bgMu.Lock()
	defer o.bgMu.Unlock()
	if o.background != nil {
		o.background.Resume()
	}
}

// StopBackground stops the background track.
func (o *Orchestrator) StopBackground() {
	o.bgMu.Lock()
	defer o.bgMu.Unlock()
	if o.background != nil {
		o.background.Stop()
		o.background = nil
	}
}

// Close stops all playback, abandons prefetches and waits for background
// goroutines. The orchestrator cannot be used afterwards.
func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		o.closed.Store(true)
		o.StopAll()
		o.scheduler.Close()
		o.prefetch.Close()
		o.StopBackground()
	})
}

func clampVolume(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
