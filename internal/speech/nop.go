package speech

import (
	"context"

	"github.com/dgnsrekt/cuecast/internal/cue"
)

// Nop is an engine for hosts without speech synthesis.
type Nop struct{}

// Voices returns nothing.
func (Nop) Voices() []Voice { return nil }

// VoicesChanged never fires.
func (Nop) VoicesChanged() <-chan struct{} { return nil }

// Speak always fails with cue.ErrSynthesisUnavailable, except for the empty
// warm-up probe which is a no-op.
func (Nop) Speak(_ context.Context, u Utterance) error {
	if u.Text == "" {
		return nil
	}
	return cue.ErrSynthesisUnavailable
}

// Cancel does nothing.
func (Nop) Cancel() {}
