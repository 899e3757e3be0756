package resolve

import (
	"context"
	"errors"
	"io"
	"math/rand/v2"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/cuecast/internal/audio"
	"github.com/dgnsrekt/cuecast/internal/clip"
	"github.com/dgnsrekt/cuecast/internal/cue"
	"github.com/dgnsrekt/cuecast/internal/phrases"
	"github.com/dgnsrekt/cuecast/internal/profile"
	"github.com/dgnsrekt/cuecast/internal/speech"
)

var testClip = make([]byte, 400)

type fixture struct {
	loader *clip.MapLoader
	device *audio.MockDevice
	engine *speech.MockEngine
	prof   profile.Profile
	cache  mapCache
	store  *phrases.Store
}

type mapCache map[string][]byte

func (c mapCache) Get(token string) ([]byte, bool) {
	pcm, ok := c[token]
	return pcm, ok
}

func newFixture() *fixture {
	return &fixture{
		loader: clip.NewMapLoader(nil),
		device: audio.NewMockDevice(),
		engine: speech.NewMockEngine(speech.Voice{Name: "Tingting", Lang: "zh-CN", Local: true}),
		prof:   profile.Profile{BrowserLabel: "Chrome", SpeechSupported: true},
		cache:  mapCache{},
		store:  phrases.NewStore(nil),
	}
}

func (f *fixture) resolver(t *testing.T, engine speech.Engine, config Config) *Resolver {
	t.Helper()
	logger := log.New(io.Discard)

	sel, err := speech.NewSelector("zh-CN")
	if err != nil {
		t.Fatal(err)
	}
	if engine == nil {
		engine = f.engine
	}
	speaker := speech.NewSpeaker(engine, speech.SpeakerConfig{
		Selector:  sel,
		VoiceWait: 50 * time.Millisecond,
		Delay:     profile.NoDelay,
	}, logger)

	r, err := New(Deps{
		Loader:  f.loader,
		Layout:  clip.Layout{Ext: "pcm"},
		Cache:   f.cache,
		Sink:    f.device,
		Speaker: speaker,
		Profile: func() profile.Profile { return f.prof },
		Phrases: f.store,
		Picker:  phrases.NewPicker(rand.NewPCG(7, 11)),
		Logger:  logger,
	}, config)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return r
}

func fastConfig() Config {
	return Config{LoadTimeout: 100 * time.Millisecond, RetryDelay: 10 * time.Millisecond}
}

func tiers(plan []Attempt) []cue.Tier {
	out := make([]cue.Tier, 0, len(plan))
	for _, a := range plan {
		out = append(out, a.Tier())
	}
	return out
}

func TestNewRequiresLoaderAndSink(t *testing.T) {
	if _, err := New(Deps{Sink: audio.NewMockDevice()}, DefaultConfig()); err == nil {
		t.Error("expected error without loader")
	}
	if _, err := New(Deps{Loader: clip.NewMapLoader(nil)}, DefaultConfig()); err == nil {
		t.Error("expected error without sink")
	}
}

func TestPlanOrder(t *testing.T) {
	f := newFixture()
	r := f.resolver(t, nil, fastConfig())

	supported := profile.Profile{SpeechSupported: true}
	unsupported := profile.Profile{SpeechSupported: false, Reason: "test"}

	tests := []struct {
		name string
		req  cue.Request
		prof profile.Profile
		want []cue.Tier
	}{
		{
			name: "character with speech",
			req:  cue.Request{Kind: cue.KindCharacter, Text: "M"},
			prof: supported,
			want: []cue.Tier{cue.TierClip, cue.TierClipEncoded, cue.TierSynthesis},
		},
		{
			name: "character without speech",
			req:  cue.Request{Kind: cue.KindCharacter, Text: "M"},
			prof: unsupported,
			want: []cue.Tier{cue.TierClip, cue.TierClipEncoded},
		},
		{
			name: "praise with speech",
			req:  cue.Request{Kind: cue.KindPraise, Category: cue.PraiseCombo},
			prof: supported,
			want: []cue.Tier{cue.TierSynthesis, cue.TierPhrasePool, cue.TierFallbackClip, cue.TierFallbackClip, cue.TierFallbackClip},
		},
		{
			name: "praise without speech",
			req:  cue.Request{Kind: cue.KindPraise, Category: cue.PraiseCombo},
			prof: unsupported,
			want: []cue.Tier{cue.TierFallbackClip, cue.TierFallbackClip, cue.TierFallbackClip},
		},
		{
			name: "encouragement with speech",
			req:  cue.Request{Kind: cue.KindEncouragement},
			prof: supported,
			want: []cue.Tier{cue.TierSynthesis, cue.TierPhrasePool, cue.TierFallbackClip, cue.TierFallbackClip, cue.TierFallbackClip},
		},
		{
			name: "empty token",
			req:  cue.Request{Kind: cue.KindCharacter},
			prof: supported,
			want: []cue.Tier{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tiers(r.Plan(tt.req, tt.prof))
			if !slices.Equal(got, tt.want) {
				t.Errorf("plan = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCharacterPlaysClip(t *testing.T) {
	f := newFixture()
	f.loader.Set("characters/M.pcm", testClip)
	r := f.resolver(t, nil, fastConfig())

	if err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindCharacter, Text: "M"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := f.device.Accepted(); got != 1 {
		t.Errorf("expected 1 playback, got %d", got)
	}
	if len(f.engine.Spoken()) != 0 {
		t.Error("speech should not be used when the clip plays")
	}
}

func TestEncodedClipTier(t *testing.T) {
	f := newFixture()
	f.loader.Set("characters/%E4%BD%A0.pcm", testClip)
	r := f.resolver(t, nil, fastConfig())

	if err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindCharacter, Text: "你"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if f.loader.Calls("characters/你.pcm") != 1 {
		t.Error("expected the verbatim reference to be tried first")
	}
	if f.device.Accepted() != 1 || len(f.engine.Spoken()) != 0 {
		t.Error("expected the encoded clip to play")
	}
}

func TestCacheHitSkipsLoad(t *testing.T) {
	f := newFixture()
	f.cache["R"] = testClip
	r := f.resolver(t, nil, fastConfig())

	if err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindCharacter, Text: "R"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := f.loader.Total(); got != 0 {
		t.Errorf("expected no loads, got %d", got)
	}
	if f.device.Accepted() != 1 {
		t.Error("expected the cached clip to play")
	}
}

func TestLoadTimeoutFallsBackToSpeech(t *testing.T) {
	f := newFixture()
	never := make(chan struct{})
	f.loader.Set("characters/M.pcm", testClip)
	f.loader.Delay = func(string) <-chan struct{} { return never }
	r := f.resolver(t, nil, Config{LoadTimeout: 60 * time.Millisecond, RetryDelay: 10 * time.Millisecond})

	start := time.Now()
	if err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindCharacter, Text: "M"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 120*time.Millisecond {
		t.Errorf("expected two load timeouts before speech, took %v", elapsed)
	}
	if got := f.loader.Calls("characters/M.pcm"); got != 2 {
		t.Errorf("expected both clip tiers to load, got %d", got)
	}
	spoken := f.engine.Spoken()
	if len(spoken) != 1 || spoken[0].Text != "M" {
		t.Fatalf("expected M to be spoken, got %+v", spoken)
	}
	if spoken[0].Rate != speech.CharacterTone().Rate {
		t.Errorf("expected character tone, got rate %v", spoken[0].Rate)
	}
}

func TestRejectedStartRetriedOnce(t *testing.T) {
	f := newFixture()
	f.loader.Set("characters/M.pcm", testClip)
	f.device.RejectNext(1)
	r := f.resolver(t, nil, fastConfig())

	if err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindCharacter, Text: "M"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	starts := f.device.Starts()
	if len(starts) != 2 || !starts[0].Rejected || starts[1].Rejected {
		t.Fatalf("expected a rejected start then an accepted one, got %+v", starts)
	}
	if gap := starts[1].At.Sub(starts[0].At); gap < 10*time.Millisecond {
		t.Errorf("retry came after %v, want at least the retry delay", gap)
	}
	if f.device.Resumes() != 1 {
		t.Errorf("expected one resume, got %d", f.device.Resumes())
	}
	if f.loader.Calls("characters/M.pcm") != 1 {
		t.Error("a retry should not reload the clip")
	}
}

func TestRejectedTwiceAdvancesTier(t *testing.T) {
	f := newFixture()
	f.loader.Set("characters/M.pcm", testClip)
	f.device.RejectNext(2)
	r := f.resolver(t, nil, fastConfig())

	if err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindCharacter, Text: "M"}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got := len(f.device.Starts()); got != 3 {
		t.Errorf("expected 3 starts (two rejected, one in the next tier), got %d", got)
	}
	if f.loader.Calls("characters/M.pcm") != 2 {
		t.Error("expected the encoded tier to load again")
	}
	if len(f.engine.Spoken()) != 0 {
		t.Error("speech should not be reached")
	}
}

func TestPraiseSpeaksCuratedPhrase(t *testing.T) {
	f := newFixture()
	catalog, err := phrases.Parse([]byte("praise:\n  perfect:\n    phrases:\n      - text: 满分！\n"))
	if err != nil {
		t.Fatal(err)
	}
	f.store.Replace(catalog)
	r := f.resolver(t, nil, fastConfig())

	if err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindPraise, Category: cue.PraisePerfect}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	spoken := f.engine.Spoken()
	if len(spoken) != 1 || spoken[0].Text != "满分！" {
		t.Fatalf("expected curated phrase, got %+v", spoken)
	}
	if spoken[0].Pitch != speech.PraiseTone(1).Pitch {
		t.Errorf("expected praise pitch, got %v", spoken[0].Pitch)
	}
	if f.loader.Total() != 0 {
		t.Error("fallback clips should not be loaded")
	}
}

// failFirst fails its first utterance and speaks normally after.
type failFirst struct {
	*speech.MockEngine
	failed atomic.Bool
}

func (e *failFirst) Speak(ctx context.Context, u speech.Utterance) error {
	if u.Text != "" && e.failed.CompareAndSwap(false, true) {
		return errors.New("voice crashed")
	}
	return e.MockEngine.Speak(ctx, u)
}

func TestEncouragementFallsBackToLiteralPool(t *testing.T) {
	f := newFixture()
	engine := &failFirst{MockEngine: f.engine}
	r := f.resolver(t, engine, fastConfig())

	if err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindEncouragement}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	spoken := f.engine.Spoken()
	if len(spoken) != 1 {
		t.Fatalf("expected one successful utterance, got %+v", spoken)
	}
	if !slices.Contains(phrases.LiteralEncouragement, spoken[0].Text) {
		t.Errorf("expected a literal phrase, got %q", spoken[0].Text)
	}
}

func TestPraiseWithoutSpeechUsesFallbackClips(t *testing.T) {
	f := newFixture()
	f.prof = profile.Profile{BrowserLabel: "WeChat", SpeechSupported: false, Reason: "in-app browser"}
	f.loader.Set("praise/praise_combo_02.pcm", testClip)
	r := f.resolver(t, nil, fastConfig())

	if err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindPraise, Category: cue.PraiseCombo}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if f.engine.SpeakCalls() != 0 {
		t.Error("speech must be skipped entirely")
	}
	if f.loader.Calls("praise/praise_combo_01.pcm") != 1 || f.loader.Calls("praise/praise_combo_02.pcm") != 1 {
		t.Error("expected fallback clips to be tried in order")
	}
	if f.loader.Calls("praise/praise_combo_03.pcm") != 0 {
		t.Error("third clip should not be tried after the second played")
	}
}

func TestExhaustedIsSilent(t *testing.T) {
	f := newFixture()
	f.prof.SpeechSupported = false
	r := f.resolver(t, nil, fastConfig())

	err := r.Resolve(context.Background(), cue.Request{Kind: cue.KindEncouragement})
	if !errors.Is(err, cue.ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, cue.ErrResourceLoadError) {
		t.Errorf("expected load errors in the chain, got %v", err)
	}
	var ce *cue.Error
	if !errors.As(err, &ce) || ce.Tier != cue.TierFallbackClip {
		t.Errorf("expected tier context, got %v", err)
	}
	if f.device.Accepted() != 0 {
		t.Error("nothing should play")
	}
}

func TestResolveStopsOnCancel(t *testing.T) {
	f := newFixture()
	never := make(chan struct{})
	f.loader.Set("characters/M.pcm", testClip)
	f.loader.Delay = func(string) <-chan struct{} { return never }
	r := f.resolver(t, nil, Config{LoadTimeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(30*time.Millisecond, cancel)

	err := r.Resolve(ctx, cue.Request{Kind: cue.KindCharacter, Text: "M"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if got := f.loader.Total(); got != 1 {
		t.Errorf("later tiers should not start after cancel, got %d loads", got)
	}
	if f.engine.SpeakCalls() != 0 {
		t.Error("speech should not start after cancel")
	}
}
