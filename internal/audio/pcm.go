package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Format describes signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat returns the device format: 44.1kHz stereo.
func DefaultFormat() Format {
	return Format{SampleRate: 44100, Channels: 2}
}

// BytesPerFrame returns the size of one sample across all channels.
func (f Format) BytesPerFrame() int {
	return 2 * f.Channels
}

// Duration returns the play time of n bytes of PCM in this format.
func (f Format) Duration(n int) time.Duration {
	if f.SampleRate == 0 || f.Channels == 0 {
		return 0
	}
	frames := n / f.BytesPerFrame()
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate)
}

// Frames returns how many frames last d.
func (f Format) Frames(d time.Duration) int {
	return int(int64(d) * int64(f.SampleRate) / int64(time.Second))
}

// Silence returns d worth of zeroed PCM.
func Silence(d time.Duration, f Format) []byte {
	return make([]byte, f.Frames(d)*f.BytesPerFrame())
}

// Resample converts PCM between formats with linear interpolation. Channel
// counts of one and two are supported in either direction.
func Resample(in []byte, from, to Format) ([]byte, error) {
	if from.Channels < 1 || from.Channels > 2 || to.Channels < 1 || to.Channels > 2 {
		return nil, fmt.Errorf("unsupported channel conversion %d -> %d", from.Channels, to.Channels)
	}
	if from.SampleRate <= 0 || to.SampleRate <= 0 {
		return nil, errors.New("sample rate must be positive")
	}
	if len(in)%from.BytesPerFrame() != 0 {
		return nil, fmt.Errorf("PCM length %d is not aligned to %d-byte frames", len(in), from.BytesPerFrame())
	}
	if from == to {
		return in, nil
	}

	frames := readFrames(in, from.Channels)
	if len(frames) == 0 {
		return []byte{}, nil
	}

	ratio := float64(to.SampleRate) / float64(from.SampleRate)
	outFrames := int(float64(len(frames)) * ratio)
	out := make([]byte, 0, outFrames*to.BytesPerFrame())

	for i := 0; i < outFrames; i++ {
		pos := float64(i) / ratio
		idx := int(pos)
		frac := pos - float64(idx)

		var l, r float64
		if idx >= len(frames)-1 {
			last := frames[len(frames)-1]
			l, r = float64(last[0]), float64(last[1])
		} else {
			a, b := frames[idx], frames[idx+1]
			l = float64(a[0])*(1-frac) + float64(b[0])*frac
			r = float64(a[1])*(1-frac) + float64(b[1])*frac
		}

		if to.Channels == 1 {
			out = appendSample(out, (l+r)/2)
		} else {
			out = appendSample(out, l)
			out = appendSample(out, r)
		}
	}

	return out, nil
}

// readFrames reads PCM into left/right pairs; mono is duplicated.
func readFrames(in []byte, channels int) [][2]int16 {
	step := 2 * channels
	frames := make([][2]int16, 0, len(in)/step)
	for i := 0; i+step <= len(in); i += step {
		l := int16(binary.LittleEndian.Uint16(in[i:]))
		r := l
		if channels == 2 {
			r = int16(binary.LittleEndian.Uint16(in[i+2:]))
		}
		frames = append(frames, [2]int16{l, r})
	}
	return frames
}

func appendSample(out []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint16(out, uint16(clamp16(v)))
}

func clamp16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32768 {
		return -32768
	}
	return int16(v)
}
