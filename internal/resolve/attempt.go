package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/dgnsrekt/cuecast/internal/speech"
)

// Attempt is one tier of a fallback plan. Try blocks until the attempt
// has played to the end or failed.
type Attempt interface {
	Tier() cue.Tier
	Try(ctx context.Context) error
}

// clipAttempt plays one pre-recorded clip.
type clipAttempt struct {
	r     *Resolver
	tier  cue.Tier
	label string
	ref   string

	// cacheKey, when set, is looked up in the prefetch cache first.
	cacheKey string
}

func (a *clipAttempt) Tier() cue.Tier { return a.tier }

func (a *clipAttempt) Try(ctx context.Context) error {
	pcm, err := a.pcm(ctx)
	if err != nil {
		return cue.NewError(a.tier, a.label, err)
	}
	if err := a.r.play(ctx, pcm); err != nil {
		return cue.NewError(a.tier, a.label, err)
	}
	return nil
}

func (a *clipAttempt) pcm(ctx context.Context) ([]byte, error) {
	if a.cacheKey != "" && a.r.deps.Cache != nil {
		if pcm, ok := a.r.deps.Cache.Get(a.cacheKey); ok {
			a.r.logger.Debug("Clip served from prefetch cache", "token", a.label)
			return pcm, nil
		}
	}
	return a.r.load(ctx, a.ref)
}

type loadResult struct {
	pcm []byte
	err error
}

// load fetches and decodes ref within the load timeout.
func (r *Resolver) load(ctx context.Context, ref string) ([]byte, error) {
	loadCtx, cancel := context.WithTimeout(ctx, r.config.LoadTimeout)
	defer cancel()

	done := make(chan loadResult, 1)
	go func() {
		data, err := r.deps.Loader.Load(loadCtx, ref)
		if err == nil {
			data, err = r.deps.Decode(data, r.deps.Sink.Format())
		}
		done <- loadResult{pcm: data, err: err}
	}()

	select {
	case res := <-done:
		if res.err == nil {
			return res.pcm, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(res.err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", cue.ErrResourceLoadTimeout, ref)
		}
		return nil, fmt.Errorf("%w: %w", cue.ErrResourceLoadError, res.err)
	case <-loadCtx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s after %s", cue.ErrResourceLoadTimeout, ref, r.config.LoadTimeout)
	}
}

// play starts pcm and waits for it to end. A refused start is retried once
// after resuming the output.
func (r *Resolver) play(ctx context.Context, pcm []byte) error {
	sink := r.deps.Sink

	pb, err := sink.Start(pcm, r.deps.Volume())
	if err != nil {
		r.logger.Debug("Playback start refused, resuming output and retrying", "err", err)
		if rerr := sink.Resume(); rerr != nil {
			r.logger.Debug("Output resume failed", "err", rerr)
		}

		if r.config.RetryDelay > 0 {
			t := time.NewTimer(r.config.RetryDelay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			}
		}

		pb, err = sink.Start(pcm, r.deps.Volume())
		if err != nil {
			if errors.Is(err, cue.ErrPlaybackStartRejected) {
				return err
			}
			return fmt.Errorf("%w: %w", cue.ErrPlaybackStartRejected, err)
		}
	}
	return pb.Wait(ctx)
}

// speechAttempt speaks a phrase chosen when the attempt runs.
type speechAttempt struct {
	r     *Resolver
	tier  cue.Tier
	label string
	text  func() string
	tone  speech.ToneProfile
}

func (a *speechAttempt) Tier() cue.Tier { return a.tier }

func (a *speechAttempt) Try(ctx context.Context) error {
	text := a.text()
	if text == "" {
		return cue.NewError(a.tier, a.label, fmt.Errorf("%w: nothing to say", cue.ErrSynthesisUnavailable))
	}

	err := a.r.deps.Speaker.Speak(ctx, text, a.tone)
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, cue.ErrSynthesisUnavailable), errors.Is(err, cue.ErrSynthesisEngine):
		return cue.NewError(a.tier, a.label, err)
	default:
		return cue.NewError(a.tier, a.label, fmt.Errorf("%w: %w", cue.ErrSynthesisEngine, err))
	}
}
