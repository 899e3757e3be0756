package audio

import (
	"context"
	"sync"
	"time"

	"github.com/dgnsrekt/cuecast/internal/cue"
)

// StartRecord describes one accepted or rejected Start call on a MockDevice.
type StartRecord struct {
	Bytes    int
	Volume   float64
	Loop     bool
	Rejected bool
	At       time.Time
}

// MockDevice implements Sink for testing purposes.
// It simulates playback timing without producing sound.
type MockDevice struct {
	// PlayDuration is how long each non-looping playback lasts.
	// Zero means playback finishes immediately.
	PlayDuration time.Duration

	// OnStart is called for every accepted playback.
	OnStart func(pcm []byte, volume float64)

	format Format

	mu         sync.Mutex
	suspended  bool
	rejectNext int
	starts     []StartRecord
	resumes    int
	active     int
	maxActive  int
}

// NewMockDevice creates a mock device in the default format.
func NewMockDevice() *MockDevice {
	return &MockDevice{format: DefaultFormat()}
}

// Format returns the mock format.
func (m *MockDevice) Format() Format {
	return m.format
}

// RejectNext makes the next n Start calls fail with ErrPlaybackStartRejected.
func (m *MockDevice) RejectNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectNext = n
}

// Suspend makes every Start fail until Resume is called.
func (m *MockDevice) Suspend() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.suspended = true
}

// Start simulates a single playback.
func (m *MockDevice) Start(pcm []byte, volume float64) (Playback, error) {
	return m.start(pcm, volume, false)
}

// Loop simulates a looping playback that only ends on Stop.
func (m *MockDevice) Loop(pcm []byte, volume float64) (Playback, error) {
	return m.start(pcm, volume, true)
}

func (m *MockDevice) start(pcm []byte, volume float64, loop bool) (Playback, error) {
	m.mu.Lock()
	rec := StartRecord{Bytes: len(pcm), Volume: volume, Loop: loop, At: time.Now()}
	if m.suspended || m.rejectNext > 0 {
		if m.rejectNext > 0 {
			m.rejectNext--
		}
		rec.Rejected = true
		m.starts = append(m.starts, rec)
		m.mu.Unlock()
		return nil, cue.ErrPlaybackStartRejected
	}
	if len(pcm) == 0 {
		m.mu.Unlock()
		return nil, ErrEmptyAudio
	}

	m.starts = append(m.starts, rec)
	m.active++
	if m.active > m.maxActive {
		m.maxActive = m.active
	}
	onStart := m.OnStart
	duration := m.PlayDuration
	m.mu.Unlock()

	if onStart != nil {
		onStart(pcm, volume)
	}

	pb := &mockPlayback{device: m, done: make(chan struct{}), volume: volume}
	switch {
	case loop:
	case duration <= 0:
		pb.Stop()
	default:
		pb.mu.Lock()
		pb.timer = time.AfterFunc(duration, pb.Stop)
		pb.mu.Unlock()
	}
	return pb, nil
}

// Resume clears the suspended state.
func (m *MockDevice) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	m.suspended = false
	return nil
}

// Suspended reports the simulated suspension state.
func (m *MockDevice) Suspended() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.suspended
}

// Starts returns every Start/Loop call seen so far.
func (m *MockDevice) Starts() []StartRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]StartRecord, len(m.starts))
	copy(out, m.starts)
	return out
}

// Accepted returns the number of playbacks that actually started.
func (m *MockDevice) Accepted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.starts {
		if !s.Rejected {
			n++
		}
	}
	return n
}

// Resumes returns how often Resume was called.
func (m *MockDevice) Resumes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resumes
}

// Active returns the number of playbacks that have not ended.
func (m *MockDevice) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// MaxActive returns the highest number of simultaneous playbacks seen.
func (m *MockDevice) MaxActive() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxActive
}

type mockPlayback struct {
	device *MockDevice
	timer  *time.Timer
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	paused bool
	volume float64
}

func (p *mockPlayback) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.Stop()
		return ctx.Err()
	}
}

func (p *mockPlayback) Done() <-chan struct{} {
	return p.done
}

func (p *mockPlayback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
}

func (p *mockPlayback) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
}

// Paused reports whether Pause was called last.
func (p *mockPlayback) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

func (p *mockPlayback) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = volume
}

func (p *mockPlayback) Stop() {
	p.once.Do(func() {
		p.mu.Lock()
		timer := p.timer
		p.mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		p.device.mu.Lock()
		p.device.active--
		p.device.mu.Unlock()
		close(p.done)
	})
}
