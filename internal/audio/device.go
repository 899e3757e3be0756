package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/ebitengine/oto/v3"
)

// DeviceConfig contains configuration for the output device.
type DeviceConfig struct {
	Format       Format
	BufferSize   time.Duration // oto buffer; smaller is lower latency
	PollInterval time.Duration // how often playback completion is checked
}

// DefaultDeviceConfig returns the default device configuration.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Format:       DefaultFormat(),
		BufferSize:   50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

// validateConfig validates the device configuration.
func validateConfig(config DeviceConfig) error {
	// oto only supports these rates reliably
	if config.Format.SampleRate != 44100 && config.Format.SampleRate != 48000 {
		return fmt.Errorf("sample rate must be 44100 or 48000 Hz, got %d", config.Format.SampleRate)
	}
	if config.Format.Channels != 1 && config.Format.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Format.Channels)
	}
	if config.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	if config.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// Device implements Sink on top of a single oto context.
// The context is created once per process and reused.
type Device struct {
	context   *oto.Context
	format    Format
	poll      time.Duration
	suspended atomic.Bool

	mu     sync.Mutex
	active map[*devicePlayback]struct{}
	closed bool
}

// NewDevice creates the output device and waits for it to be ready.
func NewDevice(config DeviceConfig) (*Device, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.Format.SampleRate,
		ChannelCount: config.Format.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	}

	ctx, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}
	<-ready

	return &Device{
		context: ctx,
		format:  config.Format,
		poll:    config.PollInterval,
		active:  make(map[*devicePlayback]struct{}),
	}, nil
}

// Format returns the device PCM format.
func (d *Device) Format() Format {
	return d.format
}

// Start plays pcm once.
func (d *Device) Start(pcm []byte, volume float64) (Playback, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}
	// Keep our own copy alive for the lifetime of the player.
	data := make([]byte, len(pcm))
	copy(data, pcm)
	return d.start(bytes.NewReader(data), volume)
}

// Loop plays pcm until stopped.
func (d *Device) Loop(pcm []byte, volume float64) (Playback, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}
	data := make([]byte, len(pcm))
	copy(data, pcm)
	return d.start(&loopReader{data: data}, volume)
}

func (d *Device) start(r io.Reader, volume float64) (Playback, error) {
	if d.suspended.Load() {
		return nil, cue.ErrPlaybackStartRejected
	}
	if err := d.context.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", cue.ErrPlaybackStartRejected, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, fmt.Errorf("%w: device closed", cue.ErrPlaybackStartRejected)
	}

	player := d.context.NewPlayer(r)
	player.SetVolume(clampVolume(volume))
	player.Play()

	pb := &devicePlayback{
		device: d,
		player: player,
		done:   make(chan struct{}),
	}
	d.active[pb] = struct{}{}
	go pb.monitor(d.poll)

	return pb, nil
}

// Suspend pauses the output; new playback is rejected until Resume.
func (d *Device) Suspend() error {
	d.suspended.Store(true)
	if err := d.context.Suspend(); err != nil {
		return fmt.Errorf("failed to suspend oto context: %w", err)
	}
	return nil
}

// Resume re-enables the output.
func (d *Device) Resume() error {
	if err := d.context.Resume(); err != nil {
		return fmt.Errorf("failed to resume oto context: %w", err)
	}
	d.suspended.Store(false)
	return nil
}

// Suspended reports whether the device rejects new playback.
func (d *Device) Suspended() bool {
	return d.suspended.Load()
}

// Close stops every active playback. oto/v3 has no context close; the
// context is released with the process.
func (d *Device) Close() error {
	d.mu.Lock()
	d.closed = true
	active := make([]*devicePlayback, 0, len(d.active))
	for pb := range d.active {
		active = append(active, pb)
	}
	d.mu.Unlock()

	for _, pb := range active {
		pb.Stop()
	}
	return nil
}

func (d *Device) release(pb *devicePlayback) {
	d.mu.Lock()
	delete(d.active, pb)
	d.mu.Unlock()
}

// devicePlayback tracks one oto player until it drains.
type devicePlayback struct {
	device *Device
	player *oto.Player

	mu     sync.Mutex
	paused bool
	done   chan struct{}
	once   sync.Once
}

func (p *devicePlayback) monitor(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			p.mu.Lock()
			finished := !p.paused && !p.player.IsPlaying()
			p.mu.Unlock()
			if finished {
				p.finish()
				return
			}
		}
	}
}

func (p *devicePlayback) finish() {
	p.once.Do(func() {
		p.mu.Lock()
		p.player.Pause()
		_ = p.player.Close()
		p.mu.Unlock()
		close(p.done)
		p.device.release(p)
	})
}

func (p *devicePlayback) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.Stop()
		return ctx.Err()
	}
}

func (p *devicePlayback) Done() <-chan struct{} {
	return p.done
}

func (p *devicePlayback) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = true
	p.player.Pause()
}

func (p *devicePlayback) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.paused = false
	p.player.Play()
}

func (p *devicePlayback) Stop() {
	p.finish()
}

func (p *devicePlayback) SetVolume(volume float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.player.SetVolume(clampVolume(volume))
}

// loopReader replays data forever.
type loopReader struct {
	data []byte
	pos  int
}

func (l *loopReader) Read(b []byte) (int, error) {
	n := 0
	for n < len(b) {
		if l.pos >= len(l.data) {
			l.pos = 0
		}
		c := copy(b[n:], l.data[l.pos:])
		l.pos += c
		n += c
	}
	return n, nil
}

func clampVolume(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
