// Package tone synthesizes the short UI feedback tones. Tones never go
// through the playback queue: they start immediately, may overlap queued
// playback and never report failure.
package tone

import (
	"context"
	"encoding/binary"
	"math"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/audio"
	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/dgnsrekt/cuecast/internal/observe"
)

// Shape is a sine tone with an exponential pitch glide and gain decay.
type Shape struct {
	StartFreq float64
	EndFreq   float64

	// Glide is how long the pitch takes to reach EndFreq.
	Glide time.Duration

	// Gain is the peak gain before volume is applied.
	Gain float64

	Duration time.Duration
}

// floorGain is the level the gain envelope decays to.
const floorGain = 0.01

var shapes = map[cue.ToneKind]Shape{
	// C5 up to G5
	cue.ToneCorrect: {StartFreq: 523.25, EndFreq: 783.99, Glide: 100 * time.Millisecond, Gain: 0.3, Duration: 200 * time.Millisecond},
	cue.ToneWrong:   {StartFreq: 200, EndFreq: 200, Gain: 0.2, Duration: 150 * time.Millisecond},
	cue.ToneButton:  {StartFreq: 800, EndFreq: 800, Gain: 0.1, Duration: 50 * time.Millisecond},
}

// ShapeFor returns the shape of a tone kind.
func ShapeFor(kind cue.ToneKind) (Shape, bool) {
	s, ok := shapes[kind]
	return s, ok
}

// Synthesize renders s at the given volume into PCM of format f.
func Synthesize(s Shape, f audio.Format, volume float64) []byte {
	frames := f.Frames(s.Duration)
	out := make([]byte, 0, frames*f.BytesPerFrame())

	peak := s.Gain * volume
	if peak <= 0 || frames == 0 {
		return audio.Silence(s.Duration, f)
	}
	total := s.Duration.Seconds()
	glide := s.Glide.Seconds()
	dt := 1 / float64(f.SampleRate)

	phase := 0.0
	for i := 0; i < frames; i++ {
		t := float64(i) * dt

		freq := s.EndFreq
		if glide > 0 && t < glide {
			freq = s.StartFreq * math.Pow(s.EndFreq/s.StartFreq, t/glide)
		}

		gain := peak
		if peak > floorGain {
			gain = peak * math.Pow(floorGain/peak, t/total)
		}

		v := int16(math.Sin(phase) * gain * math.MaxInt16)
		for c := 0; c < f.Channels; c++ {
			out = binary.LittleEndian.AppendUint16(out, uint16(v))
		}

		phase += 2 * math.Pi * freq * dt
		if phase > 2*math.Pi {
			phase -= 2 * math.Pi
		}
	}
	return out
}

// Player plays tones on a sink.
type Player struct {
	sink    audio.Sink
	unlock  func()
	volume  func() float64
	logger  *log.Logger
	metrics *observe.Metrics
}

// NewPlayer creates a tone player. unlock runs before every tone; volume
// returns the current session volume.
func NewPlayer(sink audio.Sink, unlock func(), volume func() float64, logger *log.Logger, metrics *observe.Metrics) *Player {
	if unlock == nil {
		unlock = func() {}
	}
	if volume == nil {
		volume = func() float64 { return 1 }
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Player{sink: sink, unlock: unlock, volume: volume, logger: logger, metrics: metrics}
}

// Play starts kind and returns without waiting for it to finish. Failures
// are silent.
func (p *Player) Play(kind cue.ToneKind) {
	p.unlock()

	shape, ok := ShapeFor(kind)
	if !ok || p.sink == nil {
		return
	}
	volume := p.volume()
	if volume <= 0 {
		return
	}

	// Volume is already applied to the samples.
	pb, err := p.sink.Start(Synthesize(shape, p.sink.Format(), volume), 1)
	if err != nil {
		p.logger.Debug("Tone skipped", "tone", kind, "err", err)
		return
	}
	p.metrics.RecordTone(context.Background(), string(kind))
	go func() {
		_ = pb.Wait(context.Background())
	}()
}
