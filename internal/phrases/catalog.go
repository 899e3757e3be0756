// Package phrases holds the curated praise and encouragement phrases and
// picks one to speak.
package phrases

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/dgnsrekt/cuecast/internal/cue"
)

//go:embed catalog.yml
var defaultCatalog []byte

// MaxRunes is the longest phrase that is spoken.
const MaxRunes = 8

// internalPunct are separators that mark a phrase as more than one clause.
const internalPunct = "，、。；,;"

var (
	// LiteralPraise is used when no curated praise phrase qualifies.
	LiteralPraise = []string{"真棒！", "太棒了！", "做得好！", "很厉害！", "不错哦！", "答对了！"}

	// LiteralEncouragement is used when no curated encouragement qualifies.
	LiteralEncouragement = []string{"加油！", "再试试！", "别灰心！", "你可以！", "别担心！", "继续加油！"}
)

// Phrase is one catalog entry.
type Phrase struct {
	Text string `yaml:"text"`
}

// Pool is a list of phrases.
type Pool struct {
	Phrases []Phrase `yaml:"phrases"`
}

// Catalog is the full phrase set. YAML and JSON documents are accepted.
type Catalog struct {
	PraisePools       map[cue.PraiseCategory]Pool `yaml:"praise"`
	EncouragementPool Pool                        `yaml:"encouragement"`
}

// Parse decodes a catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse phrase catalog: %w", err)
	}
	for cat := range c.PraisePools {
		if _, err := cue.ParsePraiseCategory(string(cat)); err != nil {
			return nil, fmt.Errorf("parse phrase catalog: %w", err)
		}
	}
	return &c, nil
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("phrase catalog %s is empty", path)
	}
	return Parse(data)
}

// Default returns the embedded catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(err)
	}
	return c
}

// Speakable reports whether text is short and a single clause.
func Speakable(text string) bool {
	n := utf8.RuneCountInString(text)
	return n > 0 && n <= MaxRunes && !strings.ContainsAny(text, internalPunct)
}

func filter(pool Pool) []string {
	var out []string
	for _, p := range pool.Phrases {
		if text := strings.TrimSpace(p.Text); Speakable(text) {
			out = append(out, text)
		}
	}
	return out
}

// Praise returns the speakable curated phrases for cat, or the literal
// pool when none qualify.
func (c *Catalog) Praise(cat cue.PraiseCategory) []string {
	if c != nil {
		if out := filter(c.PraisePools[cat]); len(out) > 0 {
			return out
		}
	}
	return LiteralPraise
}

// Encouragement returns the speakable curated encouragement phrases, or the
// literal pool when none qualify.
func (c *Catalog) Encouragement() []string {
	if c != nil {
		if out := filter(c.EncouragementPool); len(out) > 0 {
			return out
		}
	}
	return LiteralEncouragement
}

// Candidates returns the curated phrases for a praise or encouragement
// request.
func (c *Catalog) Candidates(kind cue.Kind, cat cue.PraiseCategory) []string {
	if kind == cue.KindEncouragement {
		return c.Encouragement()
	}
	return c.Praise(cat)
}

// Literal returns the fixed literal pool for kind.
func Literal(kind cue.Kind) []string {
	if kind == cue.KindEncouragement {
		return LiteralEncouragement
	}
	return LiteralPraise
}
