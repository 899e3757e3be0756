package phrases

import (
	"context"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/cue"
)

func TestSpeakable(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"真棒！", true},
		{"继续加油！", true},
		{"一二三四五六七八", true},
		{"一二三四五六七八九", false},
		{"对啦，就是这样！", false},
		{"好、很好", false},
		{"ok;go", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Speakable(tt.text); got != tt.want {
			t.Errorf("Speakable(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestDefaultCatalogFilters(t *testing.T) {
	c := Default()

	for _, cat := range cue.PraiseCategories {
		got := c.Praise(cat)
		if len(got) == 0 {
			t.Fatalf("%s: no candidates", cat)
		}
		for _, p := range got {
			if !Speakable(p) {
				t.Errorf("%s: unspeakable candidate %q", cat, p)
			}
		}
	}
	if slices.Contains(c.Praise(cue.PraiseBasic), "对啦，就是这样！") {
		t.Error("phrase with internal punctuation must be filtered")
	}
	if slices.Contains(c.Encouragement(), "没关系，我们再来一次！") {
		t.Error("long encouragement must be filtered")
	}
}

func TestCandidatesFallBackToLiteralPool(t *testing.T) {
	c, err := Parse([]byte(`
praise:
  combo:
    phrases:
      - text: 这句话实在是太长了根本念不完
      - text: 好，很好
encouragement:
  phrases: []
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := c.Candidates(cue.KindPraise, cue.PraiseCombo); !slices.Equal(got, LiteralPraise) {
		t.Errorf("expected literal praise pool, got %v", got)
	}
	if got := c.Candidates(cue.KindPraise, cue.PraisePerfect); !slices.Equal(got, LiteralPraise) {
		t.Errorf("missing category should use the literal pool, got %v", got)
	}
	if got := c.Candidates(cue.KindEncouragement, ""); !slices.Equal(got, LiteralEncouragement) {
		t.Errorf("expected literal encouragement pool, got %v", got)
	}

	var nilCatalog *Catalog
	if got := nilCatalog.Praise(cue.PraiseBasic); !slices.Equal(got, LiteralPraise) {
		t.Errorf("nil catalog should use the literal pool, got %v", got)
	}
}

func TestParseJSONAndErrors(t *testing.T) {
	c, err := Parse([]byte(`{"praise": {"basic": {"phrases": [{"text": "好！"}]}}}`))
	if err != nil {
		t.Fatalf("JSON catalog rejected: %v", err)
	}
	if got := c.Praise(cue.PraiseBasic); !slices.Equal(got, []string{"好！"}) {
		t.Errorf("unexpected phrases %v", got)
	}

	if _, err := Parse([]byte(`praise: {legendary: {phrases: []}}`)); err == nil {
		t.Error("expected error for unknown category")
	}
	if _, err := Parse([]byte(`praise: [`)); err == nil {
		t.Error("expected error for malformed document")
	}
}

func TestPickerIsUniformAndDeterministic(t *testing.T) {
	p := NewPicker(rand.NewPCG(1, 2))
	q := NewPicker(rand.NewPCG(1, 2))

	seen := make(map[string]int)
	for i := 0; i < 600; i++ {
		a, b := p.Pick(LiteralPraise), q.Pick(LiteralPraise)
		if a != b {
			t.Fatal("same seed should give the same sequence")
		}
		seen[a]++
	}
	if len(seen) != len(LiteralPraise) {
		t.Errorf("expected every phrase to be picked, got %v", seen)
	}
	if p.Pick(nil) != "" {
		t.Error("empty candidates should give an empty pick")
	}
}

func TestStoreReloadAndWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "phrases.yml")
	write := func(text string) {
		t.Helper()
		doc := "encouragement:\n  phrases:\n    - text: " + text + "\n"
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("第一版！")

	s := NewStore(nil)
	if err := s.Reload(path); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := s.Catalog().Encouragement(); !slices.Equal(got, []string{"第一版！"}) {
		t.Fatalf("unexpected catalog %v", got)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- s.Watch(ctx, path, log.New(io.Discard))
	}()
	time.Sleep(50 * time.Millisecond)

	write("第二版！")
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if slices.Equal(s.Catalog().Encouragement(), []string{"第二版！"}) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if got := s.Catalog().Encouragement(); !slices.Equal(got, []string{"第二版！"}) {
		t.Errorf("catalog was not reloaded, have %v", got)
	}

	// A broken document keeps the previous catalog.
	if err := os.WriteFile(path, []byte("encouragement: ["), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if got := s.Catalog().Encouragement(); !slices.Equal(got, []string{"第二版！"}) {
		t.Errorf("broken reload replaced the catalog: %v", got)
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}

func TestCatalogPoolsAndAccessors(t *testing.T) {
	c, err := Parse([]byte(`
praise:
  perfect:
    phrases:
      - text: 满分！
encouragement:
  phrases:
    - text: 慢慢来！
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if got := len(c.PraisePools[cue.PraisePerfect].Phrases); got != 1 {
		t.Fatalf("expected 1 perfect phrase, got %d", got)
	}
	if got := c.Praise(cue.PraisePerfect); !slices.Equal(got, []string{"满分！"}) {
		t.Errorf("Praise(perfect) = %v", got)
	}

	built := &Catalog{EncouragementPool: Pool{Phrases: []Phrase{{Text: "别放弃！"}}}}
	if got := built.Encouragement(); !slices.Equal(got, []string{"别放弃！"}) {
		t.Errorf("Encouragement() = %v", got)
	}
	if got := c.Encouragement(); !slices.Equal(got, []string{"慢慢来！"}) {
		t.Errorf("parsed Encouragement() = %v", got)
	}
}
