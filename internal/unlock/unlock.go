// Package unlock performs the one-time audio readiness step a session needs
// before audible output is reliable.
package unlock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/audio"
	"github.com/dgnsrekt/cuecast/internal/speech"
)

const (
	// silenceLength is the length of the silent sound that opens the output.
	silenceLength = 10 * time.Millisecond

	// probeTimeout bounds the speech warm-up probe.
	probeTimeout = 100 * time.Millisecond
)

// Coordinator unlocks audio output exactly once. Every step is best
// effort: failures are logged and the session counts as unlocked anyway.
type Coordinator struct {
	sink   audio.Sink
	engine speech.Engine
	logger *log.Logger

	once     sync.Once
	unlocked atomic.Bool
}

// New creates a coordinator. engine may be nil when the host has no speech.
func New(sink audio.Sink, engine speech.Engine, logger *log.Logger) *Coordinator {
	if logger == nil {
		logger = log.Default()
	}
	return &Coordinator{sink: sink, engine: engine, logger: logger}
}

// Unlock runs the unlock steps on the first call and does nothing after.
func (c *Coordinator) Unlock() {
	c.once.Do(func() {
		defer c.unlocked.Store(true)
		c.logger.Debug("Unlocking audio")
		c.unlockOutput()
		c.warmSpeech()
	})
}

// Unlocked reports whether Unlock has run.
func (c *Coordinator) Unlocked() bool {
	return c.unlocked.Load()
}

func (c *Coordinator) unlockOutput() {
	if c.sink == nil {
		return
	}
	if c.sink.Suspended() {
		if err := c.sink.Resume(); err != nil {
			c.logger.Warn("Audio output resume failed", "err", err)
		}
	}

	pb, err := c.sink.Start(audio.Silence(silenceLength, c.sink.Format()), 0)
	if err != nil {
		c.logger.Warn("Silent unlock sound failed", "err", err)
		return
	}
	go func() {
		_ = pb.Wait(context.Background())
	}()
}

func (c *Coordinator) warmSpeech() {
	if c.engine == nil {
		return
	}
	c.engine.Cancel()

	// Listing voices starts the engine's lazy voice loading.
	c.logger.Debug("Speech engine warm-up", "voices", len(c.engine.Voices()))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), probeTimeout)
		defer cancel()
		probe := speech.Utterance{Volume: 0, Rate: 10}
		if err := c.engine.Speak(ctx, probe); err != nil && ctx.Err() == nil {
			c.logger.Debug("Speech warm-up probe failed", "err", err)
		}
	}()
}
