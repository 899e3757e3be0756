package speech

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgnsrekt/cuecast/internal/audio"
)

// PiperConfig holds configuration for the Piper backend.
type PiperConfig struct {
	// Binary is the piper executable. Default: "piper".
	Binary string

	// ModelPath is the .onnx voice model (required).
	ModelPath string

	// ConfigPath defaults to the model path with a .json extension.
	ConfigPath string

	// Speaker selects a speaker id in multi-speaker models.
	Speaker string

	// Timeout bounds one synthesis.
	Timeout time.Duration
}

// Piper synthesizes offline with a Piper voice model. Its voice is local.
type Piper struct {
	config PiperConfig
}

// piperModelConfig is the subset of the model's JSON config we read.
type piperModelConfig struct {
	Dataset  string `json:"dataset"`
	Language struct {
		Code string `json:"code"`
	} `json:"language"`
	Audio struct {
		SampleRate int `json:"sample_rate"`
	} `json:"audio"`
}

// NewPiper creates a Piper backend.
func NewPiper(config PiperConfig) (*Piper, error) {
	if config.ModelPath == "" {
		return nil, errors.New("model path is required")
	}
	if config.ConfigPath == "" {
		config.ConfigPath = strings.TrimSuffix(config.ModelPath, filepath.Ext(config.ModelPath)) + ".json"
	}
	if config.Binary == "" {
		config.Binary = "piper"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Piper{config: config}, nil
}

// Name identifies the backend.
func (p *Piper) Name() string { return "piper" }

// Available checks the binary and model files.
func (p *Piper) Available() error {
	if _, err := exec.LookPath(p.config.Binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", p.config.Binary, err)
	}
	if _, err := os.Stat(p.config.ModelPath); err != nil {
		return fmt.Errorf("model file not accessible: %w", err)
	}
	return nil
}

func (p *Piper) readModelConfig() (piperModelConfig, error) {
	var mc piperModelConfig
	data, err := os.ReadFile(p.config.ConfigPath)
	if err != nil {
		return mc, fmt.Errorf("read model config: %w", err)
	}
	if err := json.Unmarshal(data, &mc); err != nil {
		return mc, fmt.Errorf("parse model config: %w", err)
	}
	if mc.Audio.SampleRate == 0 {
		mc.Audio.SampleRate = 22050
	}
	if mc.Dataset == "" {
		mc.Dataset = strings.TrimSuffix(filepath.Base(p.config.ModelPath), filepath.Ext(p.config.ModelPath))
	}
	return mc, nil
}

// Voices returns the single voice of the configured model.
func (p *Piper) Voices(context.Context) ([]Voice, error) {
	mc, err := p.readModelConfig()
	if err != nil {
		return nil, err
	}
	if mc.Language.Code == "" {
		return nil, errNoVoices
	}
	return []Voice{{Name: "Piper " + mc.Dataset, Lang: mc.Language.Code, Local: true}}, nil
}

// Synthesize renders u to raw mono PCM at the model's sample rate.
func (p *Piper) Synthesize(ctx context.Context, u Utterance, _ *Voice) ([]byte, audio.Format, error) {
	mc, err := p.readModelConfig()
	if err != nil {
		return nil, audio.Format{}, err
	}

	// Speed: 0.5 = half speed (scale 2.0), 2.0 = double speed (scale 0.5)
	lengthScale := 1.0
	if u.Rate > 0 {
		lengthScale = 1.0 / u.Rate
	}

	args := []string{
		"--model", p.config.ModelPath,
		"--config", p.config.ConfigPath,
		"--output-raw",
		"--length-scale", fmt.Sprintf("%.2f", lengthScale),
	}
	if p.config.Speaker != "" {
		args = append(args, "--speaker", p.config.Speaker)
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	// Text goes on stdin, preconfigured before the process starts.
	pcm, err := runCommand(ctx, strings.NewReader(u.Text), p.config.Binary, args...)
	if err != nil {
		return nil, audio.Format{}, err
	}
	if len(pcm) == 0 {
		return nil, audio.Format{}, audio.ErrEmptyAudio
	}

	f := audio.Format{SampleRate: mc.Audio.SampleRate, Channels: 1}
	pcm = pcm[:len(pcm)-len(pcm)%f.BytesPerFrame()]
	return pcm, f, nil
}
