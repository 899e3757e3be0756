package cue

import (
	"fmt"
	"strings"
)

// Kind identifies what a playback request asks for.
type Kind int

const (
	KindCharacter Kind = iota
	KindPraise
	KindEncouragement
	KindTone
)

// String returns the string representation of the request kind.
func (k Kind) String() string {
	switch k {
	case KindCharacter:
		return "character"
	case KindPraise:
		return "praise"
	case KindEncouragement:
		return "encouragement"
	case KindTone:
		return "tone"
	default:
		return "unknown"
	}
}

// PraiseCategory selects the phrase pool used for positive feedback.
type PraiseCategory string

const (
	PraiseBasic   PraiseCategory = "basic"
	PraiseCombo   PraiseCategory = "combo"
	PraisePerfect PraiseCategory = "perfect"
)

// PraiseCategories lists the categories in catalog order.
var PraiseCategories = []PraiseCategory{PraiseBasic, PraiseCombo, PraisePerfect}

// ParsePraiseCategory parses a category name. The empty string maps to basic.
func ParsePraiseCategory(s string) (PraiseCategory, error) {
	switch PraiseCategory(strings.ToLower(strings.TrimSpace(s))) {
	case "", PraiseBasic:
		return PraiseBasic, nil
	case PraiseCombo:
		return PraiseCombo, nil
	case PraisePerfect:
		return PraisePerfect, nil
	}
	return "", fmt.Errorf("unknown praise category %q (want basic, combo or perfect)", s)
}

// ToneKind selects one of the fixed UI feedback tones.
type ToneKind string

const (
	ToneCorrect ToneKind = "correct"
	ToneWrong   ToneKind = "wrong"
	ToneButton  ToneKind = "button"
)

// ParseToneKind parses a tone name.
func ParseToneKind(s string) (ToneKind, error) {
	switch ToneKind(strings.ToLower(strings.TrimSpace(s))) {
	case ToneCorrect:
		return ToneCorrect, nil
	case ToneWrong:
		return ToneWrong, nil
	case ToneButton:
		return ToneButton, nil
	}
	return "", fmt.Errorf("unknown tone %q (want correct, wrong or button)", s)
}

// Request is an immutable playback request produced by a UI collaborator.
type Request struct {
	Kind     Kind
	Text     string
	Category PraiseCategory
}

// Label returns a short identifier for logs: the token for pronunciations,
// the category for praise.
func (r Request) Label() string {
	switch r.Kind {
	case KindPraise:
		return "praise:" + string(r.Category)
	case KindEncouragement:
		return "encouragement"
	default:
		return r.Text
	}
}

// Tier is one step of the fallback chain.
type Tier string

const (
	TierClip         Tier = "clip"
	TierClipEncoded  Tier = "clip-encoded"
	TierSynthesis    Tier = "synthesis"
	TierPhrasePool   Tier = "phrase-pool"
	TierFallbackClip Tier = "fallback-clip"
)
