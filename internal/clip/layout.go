package clip

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/dgnsrekt/cuecast/internal/cue"
)

// FallbackVariants is the number of numbered fallback clips per category.
const FallbackVariants = 3

// Layout maps cue tokens to clip references under the asset base.
type Layout struct {
	// Ext is the clip file extension without the dot.
	Ext string
}

// DefaultLayout returns the mp3 layout.
func DefaultLayout() Layout {
	return Layout{Ext: "mp3"}
}

func (l Layout) ext() string {
	ext := strings.TrimPrefix(l.Ext, ".")
	if ext == "" {
		return "mp3"
	}
	return ext
}

// CharacterRef is the primary reference for a token, using it verbatim.
func (l Layout) CharacterRef(token string) string {
	return fmt.Sprintf("characters/%s.%s", token, l.ext())
}

// EncodedCharacterRef is the percent-encoded alternate reference for a token.
func (l Layout) EncodedCharacterRef(token string) string {
	return fmt.Sprintf("characters/%s.%s", url.PathEscape(token), l.ext())
}

// CharacterRefs returns the primary and encoded references, in that order.
func (l Layout) CharacterRefs(token string) []string {
	return []string{l.CharacterRef(token), l.EncodedCharacterRef(token)}
}

// PraiseRefs returns the numbered fallback clips for a praise category.
func (l Layout) PraiseRefs(cat cue.PraiseCategory) []string {
	return l.numbered("praise/praise_" + string(cat))
}

// EncouragementRefs returns the numbered encouragement fallback clips.
func (l Layout) EncouragementRefs() []string {
	return l.numbered("praise/encouragement")
}

func (l Layout) numbered(prefix string) []string {
	refs := make([]string, 0, FallbackVariants)
	for i := 1; i <= FallbackVariants; i++ {
		refs = append(refs, fmt.Sprintf("%s_%02d.%s", prefix, i, l.ext()))
	}
	return refs
}
