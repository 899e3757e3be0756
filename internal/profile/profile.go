// Package profile classifies the host environment from its identifying
// string and reports whether speech synthesis is worth attempting.
//
// Classification is table driven: an ordered list of rules, first match
// wins. The verdict is a hint for skipping doomed synthesis attempts, never
// a hard gate on playback.
package profile

import (
	"fmt"
	"regexp"
	"time"
)

// Signals are the ambient host facts the profiler reads.
type Signals struct {
	// UserAgent is the host identifying string.
	UserAgent string

	// SpeechAPI reports whether a speech engine is present at all.
	SpeechAPI bool
}

// Profile is the capability verdict for a host.
type Profile struct {
	BrowserLabel    string
	SpeechSupported bool
	Reason          string

	// SlowWarmup marks device families that need a longer pause before a
	// new utterance is accepted.
	SlowWarmup bool
}

// Rule maps a host pattern to a label and speech verdict.
type Rule struct {
	Pattern  string `yaml:"pattern" mapstructure:"pattern"`
	Label    string `yaml:"label" mapstructure:"label"`
	NoSpeech bool   `yaml:"no_speech" mapstructure:"no_speech"`
	Reason   string `yaml:"reason" mapstructure:"reason"`
}

const (
	// UnknownLabel is used when no rule matches.
	UnknownLabel = "Unknown"

	// ReasonNoSpeechAPI is reported when the host has no speech engine.
	ReasonNoSpeechAPI = "speech synthesis API not available"

	// ReasonIncomplete is reported for hosts with unreliable synthesis.
	ReasonIncomplete = "speech synthesis support is incomplete in this browser"
)

// DefaultRules returns the built-in classification table.
func DefaultRules() []Rule {
	return []Rule{
		{Pattern: `(?i)MicroMessenger`, Label: "WeChat", NoSpeech: true, Reason: ReasonIncomplete},
		{Pattern: `(?i)baiduboxapp|baidubrowser`, Label: "Baidu", NoSpeech: true, Reason: ReasonIncomplete},
		{Pattern: `(?i)QQBrowser`, Label: "QQ Browser"},
		{Pattern: `(?i)UCBrowser`, Label: "UC Browser"},
		{Pattern: `(?i)MiuiBrowser`, Label: "MIUI Browser"},
		{Pattern: `(?i)Chrome`, Label: "Chrome"},
		{Pattern: `(?i)Safari`, Label: "Safari"},
		{Pattern: `(?i)Firefox`, Label: "Firefox"},
	}
}

// slowWarmupPattern matches Xiaomi family devices.
var slowWarmupPattern = regexp.MustCompile(`(?i)\b(xiaomi|redmi|miui)|\bMi\s`)

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Profiler classifies hosts against an ordered rule table.
type Profiler struct {
	rules []compiledRule
}

// NewProfiler compiles rules. An empty list uses DefaultRules.
func NewProfiler(rules []Rule) (*Profiler, error) {
	if len(rules) == 0 {
		rules = DefaultRules()
	}

	p := &Profiler{rules: make([]compiledRule, 0, len(rules))}
	for i, r := range rules {
		if r.Pattern == "" || r.Label == "" {
			return nil, fmt.Errorf("rule %d: pattern and label are required", i)
		}
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i, r.Label, err)
		}
		if r.NoSpeech && r.Reason == "" {
			r.Reason = ReasonIncomplete
		}
		p.rules = append(p.rules, compiledRule{Rule: r, re: re})
	}
	return p, nil
}

// Default returns a profiler over DefaultRules.
func Default() *Profiler {
	p, err := NewProfiler(nil)
	if err != nil {
		panic(err)
	}
	return p
}

// Classify computes the profile for sig. It is cheap and has no state, so
// callers recompute it on demand.
func (p *Profiler) Classify(sig Signals) Profile {
	prof := Profile{
		BrowserLabel:    UnknownLabel,
		SpeechSupported: true,
		SlowWarmup:      slowWarmupPattern.MatchString(sig.UserAgent),
	}

	var matched *compiledRule
	for i := range p.rules {
		if p.rules[i].re.MatchString(sig.UserAgent) {
			matched = &p.rules[i]
			break
		}
	}
	if matched != nil {
		prof.BrowserLabel = matched.Label
	}

	switch {
	case !sig.SpeechAPI:
		prof.SpeechSupported = false
		prof.Reason = ReasonNoSpeechAPI
	case matched != nil && matched.NoSpeech:
		prof.SpeechSupported = false
		prof.Reason = matched.Reason
	}
	return prof
}

// DelayPolicy returns the extra pause to insert before a new utterance.
type DelayPolicy func(Profile) time.Duration

const (
	// SlowWarmupDelay applies to device families flagged SlowWarmup.
	SlowWarmupDelay = 150 * time.Millisecond

	// BaseDelay applies everywhere else.
	BaseDelay = 50 * time.Millisecond
)

// DefaultDelay waits longer on slow warm-up devices.
func DefaultDelay(p Profile) time.Duration {
	if p.SlowWarmup {
		return SlowWarmupDelay
	}
	return BaseDelay
}

// NoDelay never waits.
func NoDelay(Profile) time.Duration {
	return 0
}
