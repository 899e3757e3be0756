// Package resolve runs the fallback chain for a single playback request:
// pre-recorded clips first, then speech synthesis, then the terminal phrase
// pool and fallback clips.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/audio"
	"github.com/dgnsrekt/cuecast/internal/clip"
	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/dgnsrekt/cuecast/internal/observe"
	"github.com/dgnsrekt/cuecast/internal/phrases"
	"github.com/dgnsrekt/cuecast/internal/profile"
	"github.com/dgnsrekt/cuecast/internal/speech"
)

const (
	// DefaultLoadTimeout bounds fetching and decoding one clip.
	DefaultLoadTimeout = 1200 * time.Millisecond

	// DefaultRetryDelay is the pause before retrying a rejected start.
	DefaultRetryDelay = 150 * time.Millisecond
)

// Cache is the read side of the prefetch cache.
type Cache interface {
	Get(token string) ([]byte, bool)
}

// Config holds the resolver timings.
type Config struct {
	LoadTimeout time.Duration
	RetryDelay  time.Duration
}

// DefaultConfig returns the standard timings.
func DefaultConfig() Config {
	return Config{LoadTimeout: DefaultLoadTimeout, RetryDelay: DefaultRetryDelay}
}

// Deps are the collaborators a Resolver drives. Loader and Sink are
// required; the rest fall back to harmless defaults.
type Deps struct {
	Loader clip.Loader
	Layout clip.Layout
	Decode audio.DecodeFunc
	Cache  Cache
	Sink   audio.Sink

	// Speaker is nil when no speech engine is configured.
	Speaker *speech.Speaker

	// Profile classifies the host on each request.
	Profile func() profile.Profile

	Phrases *phrases.Store
	Picker  *phrases.Picker

	// Volume returns the current session volume.
	Volume func() float64

	Logger  *log.Logger
	Metrics *observe.Metrics
}

// Resolver executes fallback plans. It is safe for concurrent use, although
// the scheduler only ever runs one plan at a time.
type Resolver struct {
	deps   Deps
	config Config
	logger *log.Logger
}

// New creates a resolver.
func New(deps Deps, config Config) (*Resolver, error) {
	if deps.Loader == nil {
		return nil, errors.New("resolver needs a clip loader")
	}
	if deps.Sink == nil {
		return nil, errors.New("resolver needs an audio sink")
	}
	if deps.Layout.Ext == "" {
		deps.Layout = clip.DefaultLayout()
	}
	if deps.Decode == nil {
		deps.Decode = audio.DecoderFor(deps.Layout.Ext)
	}
	if deps.Profile == nil {
		deps.Profile = func() profile.Profile { return profile.Profile{SpeechSupported: deps.Speaker != nil} }
	}
	if deps.Phrases == nil {
		deps.Phrases = phrases.NewStore(nil)
	}
	if deps.Picker == nil {
		deps.Picker = phrases.NewPicker(nil)
	}
	if deps.Volume == nil {
		deps.Volume = func() float64 { return 1 }
	}
	if deps.Logger == nil {
		deps.Logger = log.Default()
	}
	if config.LoadTimeout <= 0 {
		config.LoadTimeout = DefaultLoadTimeout
	}
	if config.RetryDelay < 0 {
		config.RetryDelay = 0
	}
	return &Resolver{deps: deps, config: config, logger: deps.Logger}, nil
}

// Plan returns the ordered attempts for req under prof. Synthesis tiers are
// left out when prof says speech is unsupported.
func (r *Resolver) Plan(req cue.Request, prof profile.Profile) []Attempt {
	label := req.Label()
	speak := prof.SpeechSupported && r.deps.Speaker != nil

	var plan []Attempt
	switch req.Kind {
	case cue.KindCharacter:
		if req.Text == "" {
			return nil
		}
		plan = append(plan,
			&clipAttempt{r: r, tier: cue.TierClip, label: label, ref: r.deps.Layout.CharacterRef(req.Text), cacheKey: req.Text},
			&clipAttempt{r: r, tier: cue.TierClipEncoded, label: label, ref: r.deps.Layout.EncodedCharacterRef(req.Text)},
		)
		if speak {
			plan = append(plan, &speechAttempt{r: r, tier: cue.TierSynthesis, label: label,
				text: fixed(req.Text), tone: speech.CharacterTone()})
		}

	case cue.KindPraise, cue.KindEncouragement:
		tone := speech.PraiseTone(r.deps.Volume())
		refs := r.deps.Layout.PraiseRefs(req.Category)
		if req.Kind == cue.KindEncouragement {
			tone = speech.EncouragementTone(r.deps.Volume())
			refs = r.deps.Layout.EncouragementRefs()
		}
		if speak {
			curated := func() string {
				text := req.Text
				if text == "" {
					text = r.deps.Picker.Pick(r.deps.Phrases.Catalog().Candidates(req.Kind, req.Category))
				}
				return text
			}
			literal := func() string {
				return r.deps.Picker.Pick(phrases.Literal(req.Kind))
			}
			plan = append(plan,
				&speechAttempt{r: r, tier: cue.TierSynthesis, label: label, text: curated, tone: tone},
				&speechAttempt{r: r, tier: cue.TierPhrasePool, label: label, text: literal, tone: tone},
			)
		}
		for _, ref := range refs {
			plan = append(plan, &clipAttempt{r: r, tier: cue.TierFallbackClip, label: label, ref: ref})
		}
	}
	return plan
}

// Resolve runs the plan for req until one attempt succeeds. Every failed
// attempt is logged with its tier and reason. When all of them fail the
// returned error wraps cue.ErrExhausted. A done ctx ends the chain early
// and its error is returned.
func (r *Resolver) Resolve(ctx context.Context, req cue.Request) error {
	start := time.Now()
	prof := r.deps.Profile()
	label := req.Label()

	if !prof.SpeechSupported && req.Kind != cue.KindTone {
		r.logger.Debug("Speech unsupported, skipping synthesis tiers",
			"token", label, "browser", prof.BrowserLabel, "reason", prof.Reason)
	}

	var errs []error
	for _, a := range r.Plan(req, prof) {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := a.Try(ctx)
		r.deps.Metrics.RecordAttempt(context.WithoutCancel(ctx), string(a.Tier()), err == nil)
		if err == nil {
			r.logger.Debug("Playback resolved", "token", label, "tier", a.Tier(), "took", time.Since(start))
			r.deps.Metrics.RecordResolution(context.WithoutCancel(ctx), req.Kind.String(), true, time.Since(start))
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.logger.Warn("Playback tier failed", "token", label, "tier", a.Tier(), "reason", err)
		errs = append(errs, err)
	}

	r.deps.Metrics.RecordResolution(context.WithoutCancel(ctx), req.Kind.String(), false, time.Since(start))
	r.logger.Warn("No playback tier succeeded, staying silent", "token", label, "attempts", len(errs))
	return fmt.Errorf("%s: %w", label, errors.Join(append([]error{cue.ErrExhausted}, errs...)...))
}

func fixed(text string) func() string {
	return func() string { return text }
}
