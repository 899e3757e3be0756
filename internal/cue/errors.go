package cue

import (
	"errors"
	"fmt"
)

// Failure classes reported by the fallback tiers. None of them escape the
// orchestrator; each one only advances the chain.
var (
	// ErrResourceLoadTimeout indicates a clip did not become playable in time.
	ErrResourceLoadTimeout = errors.New("resource load timed out")

	// ErrResourceLoadError indicates a clip could not be fetched or decoded.
	ErrResourceLoadError = errors.New("resource load failed")

	// ErrPlaybackStartRejected indicates the output refused to start playback.
	ErrPlaybackStartRejected = errors.New("playback start rejected")

	// ErrSynthesisUnavailable indicates no speech engine can serve the request.
	ErrSynthesisUnavailable = errors.New("speech synthesis unavailable")

	// ErrSynthesisEngine indicates the speech engine reported an error.
	ErrSynthesisEngine = errors.New("speech synthesis engine error")

	// ErrInterrupted indicates an utterance was cancelled by a later one.
	ErrInterrupted = errors.New("speech interrupted")

	// ErrEnvironmentUnsupported indicates the host profile rules out a tier.
	ErrEnvironmentUnsupported = errors.New("environment unsupported")

	// ErrExhausted indicates every tier of a request failed.
	ErrExhausted = errors.New("all playback tiers failed")
)

// Error carries the tier and token a failure belongs to.
type Error struct {
	Tier  Tier
	Token string
	Err   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("%s: %v", e.Tier, e.Err)
	}
	return fmt.Sprintf("%s %q: %v", e.Tier, e.Token, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with tier and token context.
func NewError(tier Tier, token string, err error) *Error {
	return &Error{Tier: tier, Token: token, Err: err}
}

// IsBenign reports whether err is a normal completion signal rather than a
// failure.
func IsBenign(err error) bool {
	return err == nil || errors.Is(err, ErrInterrupted)
}
