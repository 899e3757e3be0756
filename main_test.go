package main

import (
	"testing"

	"github.com/dgnsrekt/cuecast/internal/config"
)

func TestApplyFlagsOverridesOnlyChanged(t *testing.T) {
	if err := rootCmd.ParseFlags([]string{"--volume", "0.3", "--no-speech", "--user-agent", "MicroMessenger"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}

	c := config.Default()
	c.Assets.Dir = "from-file"
	if err := applyFlags(rootCmd, &c); err != nil {
		t.Fatalf("applyFlags() error = %v", err)
	}

	if c.Playback.Volume != 0.3 {
		t.Errorf("volume = %v, want 0.3", c.Playback.Volume)
	}
	if c.Speech.Engine != config.EngineNone {
		t.Errorf("engine = %q, want %q", c.Speech.Engine, config.EngineNone)
	}
	if c.Host.UserAgent != "MicroMessenger" {
		t.Errorf("user agent = %q", c.Host.UserAgent)
	}
	if c.Assets.Dir != "from-file" {
		t.Errorf("assets dir = %q, unchanged flag must not override", c.Assets.Dir)
	}
}

func TestApplyFlagsValidates(t *testing.T) {
	if err := rootCmd.ParseFlags([]string{"--volume", "3"}); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	c := config.Default()
	if err := applyFlags(rootCmd, &c); err == nil {
		t.Error("applyFlags() accepted volume 3")
	}
}

func TestSpeechBackends(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.SpeechConfig
		want int
	}{
		{"none", config.SpeechConfig{Engine: config.EngineNone}, 0},
		{"gtts forced", config.SpeechConfig{Engine: config.EngineGTTS}, 1},
		{"piper without model", config.SpeechConfig{Engine: config.EnginePiper}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := len(speechBackends(tt.cfg)); got != tt.want {
				t.Errorf("len(speechBackends()) = %d, want %d", got, tt.want)
			}
		})
	}
}
