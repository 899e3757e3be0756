package speech

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/dgnsrekt/cuecast/internal/profile"
)

// ToneProfile is the delivery applied to an utterance.
type ToneProfile struct {
	Rate   float64
	Pitch  float64
	Volume float64

	// Prefer lists voice name fragment groups tried in order as a
	// tie-breaker between equally good voices.
	Prefer [][]string
}

// CharacterTone is a neutral, clear delivery for pronunciations.
func CharacterTone() ToneProfile {
	return ToneProfile{Rate: 0.8, Pitch: 1.0, Volume: 1.0}
}

// warmVoices favours child voices, then female voices.
var warmVoices = [][]string{
	{"小", "Child", "Kid"},
	{"Female", "女"},
}

// PraiseTone is a lighter, higher register for praise.
func PraiseTone(volume float64) ToneProfile {
	return ToneProfile{Rate: 1.0, Pitch: 1.5, Volume: volume, Prefer: warmVoices}
}

// EncouragementTone is a gentle delivery for consolation.
func EncouragementTone(volume float64) ToneProfile {
	return ToneProfile{Rate: 0.9, Pitch: 1.4, Volume: volume, Prefer: warmVoices}
}

// DefaultVoiceWait bounds how long Speak waits for a voice list.
const DefaultVoiceWait = 2 * time.Second

// SpeakerConfig configures a Speaker.
type SpeakerConfig struct {
	Selector Selector

	// VoiceWait bounds the wait for a non-empty voice list.
	VoiceWait time.Duration

	// Delay returns the pause before each utterance.
	Delay profile.DelayPolicy

	// Profile supplies the current host profile for Delay.
	Profile func() profile.Profile
}

// Speaker speaks text on an engine with voice selection and tone profiles.
type Speaker struct {
	engine Engine
	config SpeakerConfig
	logger *log.Logger
}

// NewSpeaker creates a speaker over engine.
func NewSpeaker(engine Engine, config SpeakerConfig, logger *log.Logger) *Speaker {
	if config.VoiceWait <= 0 {
		config.VoiceWait = DefaultVoiceWait
	}
	if config.Delay == nil {
		config.Delay = profile.DefaultDelay
	}
	if config.Profile == nil {
		config.Profile = func() profile.Profile { return profile.Profile{} }
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Speaker{engine: engine, config: config, logger: logger}
}

// Speak cancels any current utterance, waits for voices, picks one and
// speaks text. An interrupted utterance counts as a normal completion.
func (s *Speaker) Speak(ctx context.Context, text string, tone ToneProfile) error {
	s.engine.Cancel()

	voices := s.waitVoices(ctx)
	voice, match := s.config.Selector.Select(voices, tone.Prefer...)
	if voice != nil {
		s.logger.Debug("Selected voice", "voice", voice.String(), "match", match)
	} else {
		s.logger.Debug("No matching voice, using engine default", "voices", len(voices))
	}

	if delay := s.config.Delay(s.config.Profile()); delay > 0 {
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	err := s.engine.Speak(ctx, Utterance{
		Text:   text,
		Lang:   s.config.Selector.Locale(),
		Voice:  voice,
		Rate:   tone.Rate,
		Pitch:  tone.Pitch,
		Volume: tone.Volume,
	})
	if errors.Is(err, cue.ErrInterrupted) {
		s.logger.Debug("Utterance interrupted", "text", text)
		return nil
	}
	return err
}

// waitVoices returns the voice list, waiting up to VoiceWait for it to
// become non-empty. On timeout it returns whatever is there, possibly nothing.
func (s *Speaker) waitVoices(ctx context.Context) []Voice {
	changed := s.engine.VoicesChanged()
	if voices := s.engine.Voices(); len(voices) > 0 {
		return voices
	}
	if changed == nil {
		return nil
	}

	t := time.NewTimer(s.config.VoiceWait)
	defer t.Stop()

	select {
	case <-changed:
		return s.engine.Voices()
	case <-t.C:
		s.logger.Debug("Voice list still empty, proceeding without a voice", "waited", s.config.VoiceWait)
		return nil
	case <-ctx.Done():
		return nil
	}
}
