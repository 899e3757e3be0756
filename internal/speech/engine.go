package speech

import (
	"context"
	"fmt"
)

// Voice is one synthesis voice offered by an engine.
type Voice struct {
	Name string
	Lang string

	// Local marks on-device voices that need no network.
	Local bool
}

// String returns a description for logs.
func (v Voice) String() string {
	src := "remote"
	if v.Local {
		src = "local"
	}
	return fmt.Sprintf("%s (%s) [%s]", v.Name, v.Lang, src)
}

// Utterance is a single request to speak text.
type Utterance struct {
	Text string
	Lang string

	// Voice is nil to use the engine default for Lang.
	Voice *Voice

	Rate   float64
	Pitch  float64
	Volume float64
}

// Engine is a speech synthesis facility.
type Engine interface {
	// Voices returns the voices known so far. The list may be empty until
	// the engine finishes loading it.
	Voices() []Voice

	// VoicesChanged returns a channel that is closed the next time the
	// voice list changes. A nil channel means the list never changes.
	VoicesChanged() <-chan struct{}

	// Speak blocks until the utterance finishes. It returns
	// cue.ErrInterrupted when Cancel or a later Speak cuts it short.
	Speak(ctx context.Context, u Utterance) error

	// Cancel stops the current utterance, if any.
	Cancel()
}
