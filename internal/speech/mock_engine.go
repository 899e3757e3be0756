package speech

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/cuecast/internal/cue"
)

// MockEngine implements Engine for testing purposes.
type MockEngine struct {
	// SpeakDuration is how long each utterance takes.
	SpeakDuration time.Duration

	// Err, when set, is returned by every non-empty Speak.
	Err error

	mu         sync.Mutex
	voices     []Voice
	changed    chan struct{}
	spoken     []Utterance
	cancels    int
	current    chan struct{}
	speakCalls int
}

// NewMockEngine creates a mock engine with the given voices.
func NewMockEngine(voices ...Voice) *MockEngine {
	return &MockEngine{voices: voices, changed: make(chan struct{})}
}

// SetVoices replaces the voice list and signals the change.
func (m *MockEngine) SetVoices(voices ...Voice) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voices = voices
	close(m.changed)
	m.changed = make(chan struct{})
}

func (m *MockEngine) Voices() []Voice {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Voice, len(m.voices))
	copy(out, m.voices)
	return out
}

func (m *MockEngine) VoicesChanged() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.changed
}

func (m *MockEngine) Speak(ctx context.Context, u Utterance) error {
	m.mu.Lock()
	m.speakCalls++
	if u.Text == "" {
		m.mu.Unlock()
		return nil
	}
	m.spoken = append(m.spoken, u)
	if m.Err != nil {
		err := m.Err
		m.mu.Unlock()
		return err
	}
	interrupt := make(chan struct{})
	m.current = interrupt
	d := m.SpeakDuration
	m.mu.Unlock()

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-interrupt:
		return cue.ErrInterrupted
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockEngine) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels++
	if m.current != nil {
		close(m.current)
		m.current = nil
	}
}

// Spoken returns the non-empty utterances seen so far.
func (m *MockEngine) Spoken() []Utterance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Utterance, len(m.spoken))
	copy(out, m.spoken)
	return out
}

// SpeakCalls returns every Speak call including empty probes.
func (m *MockEngine) SpeakCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.speakCalls
}

// Cancels returns how many times Cancel was called.
func (m *MockEngine) Cancels() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancels
}
