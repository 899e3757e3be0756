package speech

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// Match is how well a voice fits the target locale, best last.
type Match int

const (
	MatchNone Match = iota
	MatchNameHint
	MatchFamily
	MatchExact
	MatchExactLocal
)

// String returns the string representation of the match level
func (m Match) String() string {
	switch m {
	case MatchNone:
		return "none"
	case MatchNameHint:
		return "name-hint"
	case MatchFamily:
		return "family"
	case MatchExact:
		return "exact"
	case MatchExactLocal:
		return "exact-local"
	default:
		return "unknown"
	}
}

// extraHints are voice name fragments beyond the display names.
var extraHints = map[string][]string{
	"zh": {"Mandarin", "普通话"},
}

// Selector picks the voice that best fits a target locale.
type Selector struct {
	Target language.Tag

	// NameHints are substrings of voice names that indicate the target
	// language when the voice's own locale does not.
	NameHints []string
}

// NewSelector creates a selector for locale. Name hints default to the
// language's English and native names.
func NewSelector(locale string, hints ...string) (Selector, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return Selector{}, fmt.Errorf("invalid locale %q: %w", locale, err)
	}
	if len(hints) == 0 {
		hints = defaultHints(tag)
	}
	return Selector{Target: tag, NameHints: hints}, nil
}

func defaultHints(tag language.Tag) []string {
	base, _ := tag.Base()
	var hints []string
	if name := display.English.Languages().Name(base); name != "" {
		hints = append(hints, name)
	}
	if name := display.Self.Name(language.Make(base.String())); name != "" {
		hints = append(hints, name)
	}
	return append(hints, extraHints[base.String()]...)
}

// Locale returns the target locale in BCP 47 form.
func (s Selector) Locale() string {
	return s.Target.String()
}

// Rank reports how well v fits the target.
func (s Selector) Rank(v Voice) Match {
	if tag, err := language.Parse(strings.ReplaceAll(v.Lang, "_", "-")); err == nil {
		tb, _, tr := s.Target.Raw()
		vb, _, vr := tag.Raw()
		switch {
		case vb == tb && vr == tr && v.Local:
			return MatchExactLocal
		case vb == tb && vr == tr:
			return MatchExact
		case vb == tb:
			return MatchFamily
		}
	}
	for _, hint := range s.NameHints {
		if hint != "" && strings.Contains(v.Name, hint) {
			return MatchNameHint
		}
	}
	return MatchNone
}

// Select returns the best voice, or nil when none fits. Within the best
// match level, prefer groups are tried in order as a tie-breaker: the first
// voice whose name contains any fragment of a group wins. Otherwise the
// first voice at that level is used.
func (s Selector) Select(voices []Voice, prefer ...[]string) (*Voice, Match) {
	best := MatchNone
	var candidates []int
	for i, v := range voices {
		m := s.Rank(v)
		switch {
		case m > best:
			best = m
			candidates = append(candidates[:0], i)
		case m == best && m != MatchNone:
			candidates = append(candidates, i)
		}
	}
	if best == MatchNone {
		return nil, MatchNone
	}

	for _, group := range prefer {
		for _, i := range candidates {
			for _, frag := range group {
				if strings.Contains(voices[i].Name, frag) {
					v := voices[i]
					return &v, best
				}
			}
		}
	}
	v := voices[candidates[0]]
	return &v, best
}
