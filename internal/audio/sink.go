package audio

import "context"

// Sink is the output that clips, tones and speech are scheduled on.
// Several playbacks may be active at once; the device mixes them.
type Sink interface {
	// Start begins playing pcm at the given volume. It returns
	// cue.ErrPlaybackStartRejected when the output refuses new playback,
	// for example while it is suspended.
	Start(pcm []byte, volume float64) (Playback, error)

	// Loop plays pcm repeatedly until the playback is stopped.
	Loop(pcm []byte, volume float64) (Playback, error)

	// Resume re-establishes a suspended output.
	Resume() error

	// Suspended reports whether the output currently refuses playback.
	Suspended() bool

	// Format returns the PCM format the sink expects.
	Format() Format
}

// Playback is a single active sound on a Sink.
type Playback interface {
	// Wait blocks until playback ends. If ctx is done first the playback
	// is stopped and ctx.Err() returned.
	Wait(ctx context.Context) error

	// Done is closed when playback has ended or was stopped.
	Done() <-chan struct{}

	Pause()
	Resume()
	Stop()
	SetVolume(volume float64)
}
