package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// ErrEmptyAudio is returned when there is nothing to decode.
var ErrEmptyAudio = errors.New("audio data is empty")

// DecodeMP3 decodes an MP3 resource into PCM in the given format.
func DecodeMP3(data []byte, f Format) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}

	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create mp3 decoder: %w", err)
	}

	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("failed to decode mp3: %w", err)
	}
	if len(pcm) == 0 {
		return nil, ErrEmptyAudio
	}

	// go-mp3 always produces 16-bit stereo at the stream's sample rate.
	src := Format{SampleRate: dec.SampleRate(), Channels: 2}
	pcm = pcm[:len(pcm)-len(pcm)%src.BytesPerFrame()]

	return Resample(pcm, src, f)
}

// DecodeFunc converts a fetched resource into PCM in the given format.
type DecodeFunc func(data []byte, f Format) ([]byte, error)

// DecoderFor returns the decoder for a clip file extension. Raw PCM assets
// use the "pcm" extension; everything else is decoded as MP3.
func DecoderFor(ext string) DecodeFunc {
	switch ext {
	case "pcm", ".pcm", "raw", ".raw":
		return RawPCM
	default:
		return DecodeMP3
	}
}

// RawPCM accepts data that is already PCM in the target format.
func RawPCM(data []byte, f Format) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyAudio
	}
	if len(data)%f.BytesPerFrame() != 0 {
		return nil, fmt.Errorf("PCM length %d is not aligned to %d-byte frames", len(data), f.BytesPerFrame())
	}
	return data, nil
}
