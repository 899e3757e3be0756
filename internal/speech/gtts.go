package speech

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dgnsrekt/cuecast/internal/audio"
)

// GTTSConfig holds configuration for the gTTS backend.
type GTTSConfig struct {
	// Binary is the gtts-cli executable. Default: "gtts-cli".
	Binary string

	// TLD selects the Google Translate host (e.g. "com", "com.hk").
	TLD string

	// Slow requests the slower reading speed.
	Slow bool

	// RequestsPerMinute rate limits synthesis to avoid being blocked
	// (defaults to 50).
	RequestsPerMinute int

	// Timeout bounds one synthesis, including the network round trip.
	Timeout time.Duration
}

// GTTS synthesizes with gtts-cli (Google Translate TTS). It needs network
// access, so its voices are remote.
type GTTS struct {
	config      GTTSConfig
	rateLimiter *rate.Limiter
}

// NewGTTS creates a gTTS backend.
func NewGTTS(config GTTSConfig) *GTTS {
	if config.Binary == "" {
		config.Binary = "gtts-cli"
	}
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = 50
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	return &GTTS{
		config:      config,
		rateLimiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(config.RequestsPerMinute)), 1),
	}
}

// Name identifies the backend.
func (g *GTTS) Name() string { return "gtts" }

// Available reports whether gtts-cli is on PATH.
func (g *GTTS) Available() error {
	if _, err := exec.LookPath(g.config.Binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w\n\nInstall with: pip install gtts", g.config.Binary, err)
	}
	return nil
}

// Voices lists the languages gtts-cli supports, one remote voice each.
func (g *GTTS) Voices(ctx context.Context) ([]Voice, error) {
	out, err := runCommand(ctx, nil, g.config.Binary, "--all")
	if err != nil {
		return nil, err
	}
	voices := parseGTTSLanguages(out)
	if len(voices) == 0 {
		return nil, errNoVoices
	}
	return voices, nil
}

// parseGTTSLanguages parses `gtts-cli --all` output ("  zh-CN: Chinese").
func parseGTTSLanguages(out []byte) []Voice {
	var voices []Voice
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		code, name, ok := strings.Cut(strings.TrimSpace(sc.Text()), ":")
		code, name = strings.TrimSpace(code), strings.TrimSpace(name)
		if !ok || code == "" || name == "" || strings.ContainsAny(code, " \t") {
			continue
		}
		voices = append(voices, Voice{Name: "gTTS " + name, Lang: code})
	}
	return voices
}

// Synthesize renders u to MP3 with gtts-cli and decodes it.
func (g *GTTS) Synthesize(ctx context.Context, u Utterance, v *Voice) ([]byte, audio.Format, error) {
	// Google has limits on text length
	const maxTextSize = 5000
	if len(u.Text) > maxTextSize {
		return nil, audio.Format{}, fmt.Errorf("text too long: %d characters (max %d)", len(u.Text), maxTextSize)
	}

	if err := g.rateLimiter.Wait(ctx); err != nil {
		return nil, audio.Format{}, fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	lang := u.Lang
	if v != nil && v.Lang != "" {
		lang = v.Lang
	}
	args := []string{u.Text, "-l", lang}
	if g.config.TLD != "" {
		args = append(args, "--tld", g.config.TLD)
	}
	if g.config.Slow {
		args = append(args, "--slow")
	}
	args = append(args, "-o", "-")

	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	mp3Data, err := runCommand(ctx, strings.NewReader(""), g.config.Binary, args...)
	if err != nil {
		return nil, audio.Format{}, fmt.Errorf("MP3 generation failed: %w", err)
	}

	f := audio.DefaultFormat()
	pcm, err := audio.DecodeMP3(mp3Data, f)
	if err != nil {
		return nil, audio.Format{}, err
	}
	return pcm, f, nil
}
