// Package config holds the cuecast settings and loads them from the config
// file, the environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/spf13/viper"
	"golang.org/x/text/language"

	"github.com/dgnsrekt/cuecast/internal/cache"
	"github.com/dgnsrekt/cuecast/internal/profile"
	"github.com/dgnsrekt/cuecast/internal/resolve"
	"github.com/dgnsrekt/cuecast/internal/speech"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CUECAST_"

// Speech engine names.
const (
	EngineAuto  = "auto"
	EngineGTTS  = "gtts"
	EnginePiper = "piper"
	EngineNone  = "none"
)

// Config contains all cuecast settings.
type Config struct {
	Assets   AssetsConfig   `yaml:"assets" mapstructure:"assets" envPrefix:"ASSETS_"`
	Playback PlaybackConfig `yaml:"playback" mapstructure:"playback" envPrefix:"PLAYBACK_"`
	Prefetch PrefetchConfig `yaml:"prefetch" mapstructure:"prefetch" envPrefix:"PREFETCH_"`
	Host     HostConfig     `yaml:"host" mapstructure:"host" envPrefix:"HOST_"`
	Speech   SpeechConfig   `yaml:"speech" mapstructure:"speech" envPrefix:"SPEECH_"`
	Phrases  PhrasesConfig  `yaml:"phrases" mapstructure:"phrases" envPrefix:"PHRASES_"`
	Metrics  MetricsConfig  `yaml:"metrics" mapstructure:"metrics" envPrefix:"METRICS_"`
	Log      LogConfig      `yaml:"log" mapstructure:"log" envPrefix:"LOG_"`
}

// AssetsConfig locates the pre-recorded clips. BaseURL wins over Dir.
type AssetsConfig struct {
	Dir     string `yaml:"dir" mapstructure:"dir" env:"DIR"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url" env:"BASE_URL"`
	Ext     string `yaml:"ext" mapstructure:"ext" env:"EXT"`
}

// PlaybackConfig controls clip and speech playback.
type PlaybackConfig struct {
	Volume      float64       `yaml:"volume" mapstructure:"volume" env:"VOLUME"`
	Locale      string        `yaml:"locale" mapstructure:"locale" env:"LOCALE"`
	LoadTimeout time.Duration `yaml:"load_timeout" mapstructure:"load_timeout" env:"LOAD_TIMEOUT"`
	RetryDelay  time.Duration `yaml:"retry_delay" mapstructure:"retry_delay" env:"RETRY_DELAY"`
	VoiceWait   time.Duration `yaml:"voice_wait" mapstructure:"voice_wait" env:"VOICE_WAIT"`
}

// PrefetchConfig controls the prefetch cache.
type PrefetchConfig struct {
	Concurrency int           `yaml:"concurrency" mapstructure:"concurrency" env:"CONCURRENCY"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout" env:"TIMEOUT"`
}

// HostConfig describes the host the orchestrator runs in.
type HostConfig struct {
	// UserAgent is the identifying string classified by the profiler.
	UserAgent string `yaml:"user_agent" mapstructure:"user_agent" env:"USER_AGENT"`

	// Rules replaces the built-in classification table when non-empty.
	Rules []profile.Rule `yaml:"rules" mapstructure:"rules"`
}

// SpeechConfig selects and configures the speech engine.
type SpeechConfig struct {
	Engine string      `yaml:"engine" mapstructure:"engine" env:"ENGINE"`
	GTTS   GTTSConfig  `yaml:"gtts" mapstructure:"gtts" envPrefix:"GTTS_"`
	Piper  PiperConfig `yaml:"piper" mapstructure:"piper" envPrefix:"PIPER_"`
}

// GTTSConfig configures the gtts-cli backend.
type GTTSConfig struct {
	Binary            string `yaml:"binary" mapstructure:"binary" env:"BINARY"`
	TLD               string `yaml:"tld" mapstructure:"tld" env:"TLD"`
	Slow              bool   `yaml:"slow" mapstructure:"slow" env:"SLOW"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute" env:"REQUESTS_PER_MINUTE"`
}

// PiperConfig configures the Piper backend.
type PiperConfig struct {
	Binary    string `yaml:"binary" mapstructure:"binary" env:"BINARY"`
	ModelPath string `yaml:"model_path" mapstructure:"model_path" env:"MODEL_PATH"`
	Speaker   string `yaml:"speaker" mapstructure:"speaker" env:"SPEAKER"`
}

// PhrasesConfig points at an optional phrase catalog override.
type PhrasesConfig struct {
	File  string `yaml:"file" mapstructure:"file" env:"FILE"`
	Watch bool   `yaml:"watch" mapstructure:"watch" env:"WATCH"`
}

// MetricsConfig enables the Prometheus endpoint when Addr is set.
type MetricsConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr" env:"ADDR"`
}

// LogConfig controls logging.
type LogConfig struct {
	Debug bool   `yaml:"debug" mapstructure:"debug" env:"DEBUG"`
	File  string `yaml:"file" mapstructure:"file" env:"FILE"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	prefetch := cache.DefaultConfig()
	return Config{
		Assets: AssetsConfig{Dir: "assets", Ext: "mp3"},
		Playback: PlaybackConfig{
			Volume:      1.0,
			Locale:      "zh-CN",
			LoadTimeout: resolve.DefaultLoadTimeout,
			RetryDelay:  resolve.DefaultRetryDelay,
			VoiceWait:   speech.DefaultVoiceWait,
		},
		Prefetch: PrefetchConfig{Concurrency: prefetch.Concurrency, Timeout: prefetch.Timeout},
		Speech: SpeechConfig{
			Engine: EngineAuto,
			GTTS:   GTTSConfig{Binary: "gtts-cli", TLD: "com", RequestsPerMinute: 50},
			Piper:  PiperConfig{Binary: "piper"},
		},
	}
}

// Load reads the settings from v on top of the defaults, then applies the
// CUECAST_* environment overrides and validates the result.
func Load(v *viper.Viper) (Config, error) {
	cfg := Default()
	if v != nil {
		if err := v.Unmarshal(&cfg); err != nil {
			return cfg, fmt.Errorf("unable to decode configuration: %w", err)
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides cfg with any CUECAST_* variables that are set.
func ApplyEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("unable to parse environment: %w", err)
	}
	return nil
}

// Validate checks the configuration and normalizes names.
func (c *Config) Validate() error {
	var errs []error

	if c.Assets.BaseURL != "" {
		u, err := url.Parse(c.Assets.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("assets base_url %q must be an http or https URL", c.Assets.BaseURL))
		}
	} else if c.Assets.Dir == "" {
		errs = append(errs, errors.New("either assets dir or base_url is required"))
	}
	c.Assets.Ext = strings.TrimPrefix(c.Assets.Ext, ".")

	if c.Playback.Volume < 0 || c.Playback.Volume > 1 {
		errs = append(errs, fmt.Errorf("volume must be between 0.0 and 1.0, got %.2f", c.Playback.Volume))
	}
	if _, err := language.Parse(c.Playback.Locale); err != nil {
		errs = append(errs, fmt.Errorf("invalid locale %q: %w", c.Playback.Locale, err))
	}
	if c.Playback.LoadTimeout <= 0 {
		errs = append(errs, fmt.Errorf("load_timeout must be positive, got %s", c.Playback.LoadTimeout))
	}
	if c.Playback.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry_delay must not be negative, got %s", c.Playback.RetryDelay))
	}
	if c.Playback.VoiceWait <= 0 {
		errs = append(errs, fmt.Errorf("voice_wait must be positive, got %s", c.Playback.VoiceWait))
	}

	if c.Prefetch.Concurrency < 1 || c.Prefetch.Concurrency > 64 {
		errs = append(errs, fmt.Errorf("prefetch concurrency must be between 1 and 64, got %d", c.Prefetch.Concurrency))
	}
	if c.Prefetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("prefetch timeout must be positive, got %s", c.Prefetch.Timeout))
	}

	for i, r := range c.Host.Rules {
		if _, err := regexp.Compile(r.Pattern); err != nil {
			errs = append(errs, fmt.Errorf("host rule %d: %w", i, err))
		}
	}

	engines := []string{EngineAuto, EngineGTTS, EnginePiper, EngineNone}
	c.Speech.Engine = strings.ToLower(strings.TrimSpace(c.Speech.Engine))
	if c.Speech.Engine == "" {
		c.Speech.Engine = EngineAuto
	}
	valid := false
	for _, e := range engines {
		if c.Speech.Engine == e {
			valid = true
			break
		}
	}
	if !valid {
		errs = append(errs, fmt.Errorf("invalid speech engine %q: must be one of %v", c.Speech.Engine, engines))
	}
	if c.Speech.Engine == EnginePiper && c.Speech.Piper.ModelPath == "" {
		errs = append(errs, errors.New("speech engine piper needs piper.model_path"))
	}
	if c.Speech.GTTS.RequestsPerMinute < 0 {
		errs = append(errs, fmt.Errorf("gtts requests_per_minute must not be negative, got %d", c.Speech.GTTS.RequestsPerMinute))
	}

	return errors.Join(errs...)
}

// ResolverConfig returns the resolver timings.
func (c Config) ResolverConfig() resolve.Config {
	return resolve.Config{LoadTimeout: c.Playback.LoadTimeout, RetryDelay: c.Playback.RetryDelay}
}

// CacheConfig returns the prefetch cache settings.
func (c Config) CacheConfig() cache.Config {
	return cache.Config{Concurrency: c.Prefetch.Concurrency, Timeout: c.Prefetch.Timeout}
}

// Profiler builds the host profiler from the configured rules.
func (c Config) Profiler() (*profile.Profiler, error) {
	return profile.NewProfiler(c.Host.Rules)
}

// SetDefaults registers the defaults with v so they show up in
// v.AllSettings and can be overridden by bound flags.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("assets.dir", d.Assets.Dir)
	v.SetDefault("assets.base_url", d.Assets.BaseURL)
	v.SetDefault("assets.ext", d.Assets.Ext)
	v.SetDefault("playback.volume", d.Playback.Volume)
	v.SetDefault("playback.locale", d.Playback.Locale)
	v.SetDefault("playback.load_timeout", d.Playback.LoadTimeout)
	v.SetDefault("playback.retry_delay", d.Playback.RetryDelay)
	v.SetDefault("playback.voice_wait", d.Playback.VoiceWait)
	v.SetDefault("prefetch.concurrency", d.Prefetch.Concurrency)
	v.SetDefault("prefetch.timeout", d.Prefetch.Timeout)
	v.SetDefault("host.user_agent", d.Host.UserAgent)
	v.SetDefault("speech.engine", d.Speech.Engine)
	v.SetDefault("speech.gtts.binary", d.Speech.GTTS.Binary)
	v.SetDefault("speech.gtts.tld", d.Speech.GTTS.TLD)
	v.SetDefault("speech.gtts.requests_per_minute", d.Speech.GTTS.RequestsPerMinute)
	v.SetDefault("speech.piper.binary", d.Speech.Piper.Binary)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("log.debug", d.Log.Debug)
}
